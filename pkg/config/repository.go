package config

// RepositoryType defines the type of repository.
type RepositoryType string

const (
	RepoTypeGit  RepositoryType = "git"
	RepoTypeHTTP RepositoryType = "http"
)

// Repository is a software repository a product is installed from.
type Repository struct {
	Name    string
	URL     string
	Type    RepositoryType
	Branch  string   // Git branch (optional)
	Tag     string   // Git tag (optional)
	Commit  string   // Git commit SHA (optional)
	Shallow *bool    // Override global shallow clone setting
	Depth   *int     // Override global clone depth
	Tags    []string // User-defined tags for filtering
}

// RepositoryFile is the raw TOML structure for a repository.
type RepositoryFile struct {
	Name    string   `toml:"name"`
	URL     string   `toml:"url"`
	Type    string   `toml:"type"`
	Branch  string   `toml:"branch,omitempty"`
	Tag     string   `toml:"tag,omitempty"`
	Commit  string   `toml:"commit,omitempty"`
	Shallow *bool    `toml:"shallow,omitempty"`
	Depth   *int     `toml:"depth,omitempty"`
	Tags    []string `toml:"tags,omitempty"`
}

// GetEffectiveRef returns the requested git reference. Priority: commit >
// tag > branch. An empty result means the remote HEAD.
func (r *Repository) GetEffectiveRef() string {
	if r.Commit != "" {
		return r.Commit
	}
	if r.Tag != "" {
		return r.Tag
	}
	return r.Branch
}

// IsShallow returns whether to use shallow clone for this repository.
func (r *Repository) IsShallow(defaultShallow bool) bool {
	if r.Shallow != nil {
		return *r.Shallow
	}
	return defaultShallow
}

// GetDepth returns the clone depth for this repository.
func (r *Repository) GetDepth(defaultDepth int) int {
	if r.Depth != nil {
		return *r.Depth
	}
	return defaultDepth
}

// HasTag returns true if the repository carries the tag.
func (r *Repository) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
