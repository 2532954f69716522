package lockfile

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	r := New()

	if r.Version != CurrentVersion {
		t.Errorf("expected version %d, got %d", CurrentVersion, r.Version)
	}
	if r.Entries == nil {
		t.Error("expected Entries to be initialized")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty record, got %d entries", r.Len())
	}
}

func TestLoad_NonExistent(t *testing.T) {
	r, err := Load("/nonexistent/path/to/install.lock")
	if err != nil {
		t.Fatalf("expected no error for nonexistent file, got: %v", err)
	}

	if r.Version != CurrentVersion {
		t.Errorf("expected version %d, got %d", CurrentVersion, r.Version)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty record, got %d entries", r.Len())
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "installd", "install.lock")

	r := New()
	r.SetProduct(ProductLock{Name: "tumbleweed", Version: "20240101", Arch: "x86_64"})
	r.Registered = true
	r.Update("oss", NewEntry("https://download.example.com/oss", "http", "", "sha256:1111"))
	r.Update("extras", NewEntry("https://git.example.com/extras.git", "git", "stable", "abc123"))

	if err := r.Save(path); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if r.Path() != path {
		t.Errorf("expected path %s, got %s", path, r.Path())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("record not created: %v", err)
	}
	if !strings.HasPrefix(string(data), "# installd installation record") {
		t.Error("expected header comment")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if loaded.Product.Name != "tumbleweed" || loaded.Product.Arch != "x86_64" {
		t.Errorf("unexpected product: %+v", loaded.Product)
	}
	if !loaded.Registered {
		t.Error("expected registered flag to survive")
	}

	entry, ok := loaded.Get("extras")
	if !ok {
		t.Fatal("expected extras entry")
	}
	if entry.ResolvedRef != "abc123" || entry.RequestedRef != "stable" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestLoad_FutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.lock")
	if err := os.WriteFile(path, []byte("version = 99\n"), 0644); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.lock")
	if err := os.WriteFile(path, []byte("version = [\n"), 0644); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestRecord_Entries(t *testing.T) {
	r := New()
	r.Update("updates", Entry{URL: "u"})
	r.Update("oss", Entry{URL: "o"})

	if got := r.Names(); !reflect.DeepEqual(got, []string{"oss", "updates"}) {
		t.Errorf("expected sorted names, got %v", got)
	}

	if !r.Remove("oss") {
		t.Error("expected oss to be removed")
	}
	if r.Remove("oss") {
		t.Error("expected second removal to report false")
	}
	if _, ok := r.Get("oss"); ok {
		t.Error("expected oss to be gone")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
}

func TestRecord_UpdateOnZeroValue(t *testing.T) {
	var r Record
	r.Update("oss", Entry{URL: "o"})

	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
}
