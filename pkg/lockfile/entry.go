package lockfile

import "time"

// Entry records the state a repository was installed from.
type Entry struct {
	URL          string    `toml:"url"`
	Type         string    `toml:"type"`
	RequestedRef string    `toml:"requested_ref,omitempty"`
	ResolvedRef  string    `toml:"resolved_ref"`
	FetchedAt    time.Time `toml:"fetched_at"`
}

// ProductLock records the installed product.
type ProductLock struct {
	Name    string `toml:"name"`
	Version string `toml:"version,omitempty"`
	Arch    string `toml:"arch,omitempty"`
}

// NewEntry creates an entry fetched now.
func NewEntry(url, repoType, requestedRef, resolvedRef string) Entry {
	return Entry{
		URL:          url,
		Type:         repoType,
		RequestedRef: requestedRef,
		ResolvedRef:  resolvedRef,
		FetchedAt:    time.Now(),
	}
}

// IsStale returns true if the entry was fetched for a different ref.
func (e *Entry) IsStale(requestedRef string) bool {
	return e.RequestedRef != requestedRef
}

// Age returns the duration since the repository was fetched.
func (e *Entry) Age() time.Duration {
	return time.Since(e.FetchedAt)
}
