package downloader

import (
	"context"
	"time"
)

// Downloader probes and fetches software repositories.
type Downloader interface {
	// Probe resolves the current reference of the repository at source
	// without storing anything locally. For git this is the commit the
	// requested ref points to, for HTTP the hash of the repository index.
	Probe(ctx context.Context, source string) (string, error)

	// Fetch stores the repository metadata under destination and returns
	// the resolved reference.
	Fetch(ctx context.Context, source, destination string) (string, error)

	// Type returns the downloader type (git, http).
	Type() string
}

// Options configures downloader behavior.
type Options struct {
	// Git-specific options
	Branch  string
	Tag     string
	Commit  string
	Depth   int
	Shallow bool

	// HTTP-specific options
	UserAgent     string
	RetryAttempts int
	RetryDelay    time.Duration

	// Common options
	Timeout time.Duration
}

// DefaultOptions returns options with default values.
func DefaultOptions() Options {
	return Options{
		Depth:         1,
		Shallow:       true,
		UserAgent:     "installd/1.0",
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
		Timeout:       10 * time.Minute,
	}
}

// GetEffectiveRef returns the ref to resolve (commit > tag > branch).
func (o *Options) GetEffectiveRef() string {
	if o.Commit != "" {
		return o.Commit
	}
	if o.Tag != "" {
		return o.Tag
	}
	return o.Branch
}
