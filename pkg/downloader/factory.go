package downloader

import (
	"fmt"
	"strings"

	"github.com/tierone/installd/pkg/config"
)

var (
	gitURLPrefixes = []string{"git@", "git://", "ssh://"}
	gitHosts       = []string{"github.com", "gitlab.com"}
	httpSchemes    = []string{"http://", "https://", "file://"}
)

// New returns the downloader for repoType.
func New(repoType config.RepositoryType, opts Options) (Downloader, error) {
	switch repoType {
	case config.RepoTypeGit:
		return NewGitDownloader(opts), nil
	case config.RepoTypeHTTP:
		return NewHTTPDownloader(opts), nil
	default:
		return nil, fmt.Errorf("unknown repository type: %s", repoType)
	}
}

// OptionsFor merges the per-repository settings of repo with the
// transfer settings of cfg.
func OptionsFor(repo *config.Repository, cfg *config.Config) Options {
	return Options{
		Branch:        repo.Branch,
		Tag:           repo.Tag,
		Commit:        repo.Commit,
		Depth:         repo.GetDepth(cfg.Git.CloneDepth),
		Shallow:       repo.IsShallow(cfg.Git.ShallowClone),
		UserAgent:     cfg.HTTP.UserAgent,
		RetryAttempts: cfg.HTTP.RetryAttempts,
		RetryDelay:    cfg.HTTP.RetryDelay,
		Timeout:       cfg.General.Timeout,
	}
}

// ForConfig returns a constructor building the downloader of any
// repository of cfg.
func ForConfig(cfg *config.Config) func(*config.Repository) (Downloader, error) {
	return func(repo *config.Repository) (Downloader, error) {
		dl, err := New(repo.Type, OptionsFor(repo, cfg))
		if err != nil {
			return nil, fmt.Errorf("repository %s: %w", repo.Name, err)
		}
		return dl, nil
	}
}

// DetectType guesses the repository type from the URL. Anything that is
// neither a known git location nor an http or file URL is taken for a
// local git checkout.
func DetectType(url string) config.RepositoryType {
	if strings.HasSuffix(url, ".git") || hasAnyPrefix(url, gitURLPrefixes) {
		return config.RepoTypeGit
	}
	for _, host := range gitHosts {
		if strings.Contains(url, host) {
			return config.RepoTypeGit
		}
	}
	if hasAnyPrefix(url, httpSchemes) {
		return config.RepoTypeHTTP
	}
	return config.RepoTypeGit
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
