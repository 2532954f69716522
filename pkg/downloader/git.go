package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// ErrRefNotFound is returned when the requested branch or tag does not
// exist on the remote.
var ErrRefNotFound = errors.New("reference not found")

// GitDownloader probes and fetches git repositories with go-git.
type GitDownloader struct {
	options Options
}

// NewGitDownloader creates a new GitDownloader with the given options.
func NewGitDownloader(opts Options) *GitDownloader {
	return &GitDownloader{
		options: opts,
	}
}

// Type returns the downloader type.
func (g *GitDownloader) Type() string {
	return "git"
}

// Probe lists the remote references and returns the commit the requested
// ref points to. A pinned commit is returned as is.
func (g *GitDownloader) Probe(ctx context.Context, source string) (string, error) {
	if g.options.Commit != "" {
		return g.options.Commit, nil
	}

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{source},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{
		PeelingOption: git.AppendPeeled,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list remote: %w", err)
	}

	return resolveRef(refs, g.wantedRef())
}

// Fetch clones the repository into destination and returns the checked
// out commit. An existing destination is replaced.
func (g *GitDownloader) Fetch(ctx context.Context, source, destination string) (string, error) {
	if err := os.RemoveAll(destination); err != nil {
		return "", fmt.Errorf("failed to clean destination: %w", err)
	}

	opts := &git.CloneOptions{
		URL:  source,
		Tags: git.NoTags,
	}

	if g.options.Commit == "" {
		opts.ReferenceName = g.wantedRef()
		opts.SingleBranch = true
		if g.options.Shallow && g.options.Depth > 0 {
			opts.Depth = g.options.Depth
		}
	}

	repo, err := git.PlainCloneContext(ctx, destination, false, opts)
	if err != nil {
		return "", fmt.Errorf("failed to clone: %w", err)
	}

	if g.options.Commit != "" {
		wt, err := repo.Worktree()
		if err != nil {
			return "", err
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(g.options.Commit)}); err != nil {
			return "", fmt.Errorf("failed to checkout %s: %w", g.options.Commit, err)
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// wantedRef returns the reference to resolve; empty means the remote HEAD.
func (g *GitDownloader) wantedRef() plumbing.ReferenceName {
	switch {
	case g.options.Tag != "":
		return plumbing.NewTagReferenceName(g.options.Tag)
	case g.options.Branch != "":
		return plumbing.NewBranchReferenceName(g.options.Branch)
	default:
		return ""
	}
}

func resolveRef(refs []*plumbing.Reference, want plumbing.ReferenceName) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	if want == "" {
		want = plumbing.HEAD
	}

	// Annotated tags resolve to the peeled commit.
	if want.IsTag() {
		if peeled, ok := byName[want+"^{}"]; ok {
			return peeled.Hash().String(), nil
		}
	}

	ref, ok := byName[want]
	for i := 0; ok && ref.Type() == plumbing.SymbolicReference && i < 5; i++ {
		ref, ok = byName[ref.Target()]
	}
	if !ok || ref.Type() != plumbing.HashReference {
		return "", fmt.Errorf("%s: %w", want, ErrRefNotFound)
	}

	return ref.Hash().String(), nil
}

// IsGitRepository reports whether path holds a git repository.
func IsGitRepository(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

// HeadCommit returns the commit checked out at path.
func HeadCommit(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}
