package software

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/types"
)

// probeAll probes repos concurrently while advancing the tracker one step
// per repository, in configuration order.
func (s *Software) probeAll(ctx context.Context, repos []config.Repository) ([]types.RepositoryResult, error) {
	results := make([]types.RepositoryResult, len(repos))
	done := make([]chan struct{}, len(repos))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	go func() {
		for i := range repos {
			i := i
			g.Go(func() error {
				defer close(done[i])
				results[i] = s.probeRepository(ctx, &repos[i])
				return nil
			})
		}
	}()

	var stepErr error
	for i, repo := range repos {
		if stepErr == nil {
			stepErr = s.tracker.Step(fmt.Sprintf("Probing repository %s", repo.Name))
		}
		<-done[i]
	}
	_ = g.Wait()

	if stepErr != nil {
		return nil, stepErr
	}
	return results, nil
}

func (s *Software) probeRepository(ctx context.Context, repo *config.Repository) types.RepositoryResult {
	start := time.Now()
	res := types.RepositoryResult{Name: repo.Name, URL: repo.URL, Type: string(repo.Type)}

	dl, err := s.newDownloader(repo)
	if err != nil {
		res.Error = err
		return res
	}

	ref, err := dl.Probe(ctx, repo.URL)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		s.log.Info("repository probe failed", "repository", repo.Name, "error", err.Error())
		return res
	}

	res.Success = true
	res.ResolvedRef = ref
	s.log.V(1).Info("repository probed", "repository", repo.Name, "ref", ref)
	return res
}
