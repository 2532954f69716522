package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// CurrentVersion is the current record format version.
const CurrentVersion = 1

// Record is the installation record written into the target system once
// the software is installed.
type Record struct {
	Version     int              `toml:"version"`
	GeneratedAt time.Time        `toml:"generated_at"`
	Product     ProductLock      `toml:"product"`
	Registered  bool             `toml:"registered"`
	Entries     map[string]Entry `toml:"repository"`
	path        string
}

// New creates an empty record.
func New() *Record {
	return &Record{
		Version:     CurrentVersion,
		GeneratedAt: time.Now(),
		Entries:     make(map[string]Entry),
	}
}

// Load reads an existing record. A missing file yields an empty record.
func Load(path string) (*Record, error) {
	r := New()
	r.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return r, nil
	}

	if _, err := toml.DecodeFile(path, r); err != nil {
		return nil, fmt.Errorf("failed to parse install record: %w", err)
	}
	if r.Version > CurrentVersion {
		return nil, fmt.Errorf("unsupported install record version %d", r.Version)
	}
	if r.Entries == nil {
		r.Entries = make(map[string]Entry)
	}

	return r, nil
}

// Save writes the record to path, creating missing parent directories.
func (r *Record) Save(path string) error {
	r.GeneratedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create install record: %w", err)
	}

	if _, err := f.WriteString("# installd installation record\n# DO NOT EDIT - written by the installer\n\n"); err != nil {
		_ = f.Close()
		return err
	}

	if err := toml.NewEncoder(f).Encode(r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode install record: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write install record: %w", err)
	}

	r.path = path
	return nil
}

// Path returns the path the record was loaded from or saved to.
func (r *Record) Path() string {
	return r.path
}

// SetProduct records the installed product.
func (r *Record) SetProduct(p ProductLock) {
	r.Product = p
}

// Update updates or adds an entry for a repository.
func (r *Record) Update(name string, entry Entry) {
	if r.Entries == nil {
		r.Entries = make(map[string]Entry)
	}
	r.Entries[name] = entry
}

// Get retrieves the entry for a repository.
func (r *Record) Get(name string) (Entry, bool) {
	entry, ok := r.Entries[name]
	return entry, ok
}

// Remove removes an entry from the record.
func (r *Record) Remove(name string) bool {
	if _, ok := r.Entries[name]; ok {
		delete(r.Entries, name)
		return true
	}
	return false
}

// Names returns the repository names in lexical order.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.Entries))
	for name := range r.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of repository entries.
func (r *Record) Len() int {
	return len(r.Entries)
}
