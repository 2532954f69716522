package software

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/downloader"
	"github.com/tierone/installd/pkg/notify"
	"github.com/tierone/installd/pkg/progress"
	"github.com/tierone/installd/pkg/status"
	"github.com/tierone/installd/pkg/types"
)

// CacheDir is where Install stores repository metadata, relative to the
// target system.
const CacheDir = "var/cache/installd/repos"

// DownloaderFactory builds the downloader for a repository.
type DownloaderFactory func(repo *config.Repository) (downloader.Downloader, error)

// Software is the software subsystem: it probes the configured
// repositories, selects a product and installs its repositories into the
// target system.
type Software struct {
	cfg           *config.Config
	log           logr.Logger
	busy          *status.BusyRegistry
	tracker       *progress.Tracker
	newDownloader DownloaderFactory
	concurrency   int

	mu          sync.RWMutex
	probe       *types.ProbeResult
	available   map[string]bool
	selected    string
	hasSelected bool
	proposal    *Proposal

	// selectMu serializes selection changes with their notification.
	selectMu         sync.Mutex
	productListeners *notify.Registry[string]
}

// Option configures the subsystem.
type Option func(*Software)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Software) {
		s.log = log
	}
}

// WithBusyRegistry sets the registry the subsystem reports to.
func WithBusyRegistry(r *status.BusyRegistry) Option {
	return func(s *Software) {
		s.busy = r
	}
}

// WithDownloaderFactory replaces the downloader construction.
func WithDownloaderFactory(f DownloaderFactory) Option {
	return func(s *Software) {
		s.newDownloader = f
	}
}

// WithConcurrency sets how many repositories are probed at once.
func WithConcurrency(n int) Option {
	return func(s *Software) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates the subsystem for the products and repositories of cfg.
func New(cfg *config.Config, opts ...Option) *Software {
	s := &Software{
		cfg:         cfg,
		log:         logr.Discard(),
		concurrency: DefaultConcurrency,
		available:   make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.busy == nil {
		s.busy = status.NewBusyRegistry(s.log)
	}
	if s.newDownloader == nil {
		s.newDownloader = downloader.ForConfig(cfg)
	}
	s.log = s.log.WithName(BusyName)
	s.tracker = progress.New(progress.WithName("software-progress"), progress.WithLogger(s.log))
	s.productListeners = notify.NewRegistry[string]("software-product", s.log)

	return s
}

// Progress returns the tracker driven by Probe and Install.
func (s *Software) Progress() *progress.Tracker {
	return s.tracker
}

// Products returns every configured product with its availability.
func (s *Software) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]Product, 0, len(s.cfg.Products))
	for _, p := range s.cfg.Products {
		products = append(products, productFromConfig(p, s.available[p.Name]))
	}
	return products
}

// AvailableProducts returns the names of the products the last probe found
// installable, in configuration order.
func (s *Software) AvailableProducts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availableLocked()
}

func (s *Software) availableLocked() []string {
	var names []string
	for _, p := range s.cfg.Products {
		if s.available[p.Name] {
			names = append(names, p.Name)
		}
	}
	return names
}

// SelectedProduct returns the selected product. ok is false when nothing
// is selected.
func (s *Software) SelectedProduct() (name string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.hasSelected
}

// Product returns a configured product.
func (s *Software) Product(name string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.cfg.GetProduct(name)
	if !ok {
		return Product{}, false
	}
	return productFromConfig(*p, s.available[name]), true
}

// SelectProduct selects the product to install. Listeners are notified
// when the selection changes; the current proposal is dropped then.
func (s *Software) SelectProduct(name string) error {
	if _, ok := s.cfg.GetProduct(name); !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownProduct)
	}

	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	s.mu.Lock()
	changed := s.setSelectedLocked(name)
	s.mu.Unlock()

	if changed {
		s.log.Info("product selected", "product", name)
		s.productListeners.Notify(name)
	}
	return nil
}

func (s *Software) setSelectedLocked(name string) bool {
	if s.hasSelected && s.selected == name {
		return false
	}
	s.selected = name
	s.hasSelected = true
	if s.proposal != nil && s.proposal.Product.Name != name {
		s.proposal = nil
	}
	return true
}

// OnProductSelected registers a listener for selection changes.
func (s *Software) OnProductSelected(fn notify.Listener[string]) notify.Handle {
	return s.productListeners.Add(fn)
}

// Repositories returns the results of the last probe for every
// configured repository.
func (s *Software) Repositories() []Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repos := make([]Repository, 0, len(s.cfg.Repositories))
	for _, r := range s.cfg.Repositories {
		view := Repository{Name: r.Name, URL: r.URL, Type: string(r.Type)}
		if s.probe != nil {
			if res, ok := s.probe.Get(r.Name); ok {
				view.Probed = true
				view.Success = res.Success
				view.ResolvedRef = res.ResolvedRef
				view.DurationMS = res.Duration.Milliseconds()
				if res.Error != nil {
					view.Error = res.Error.Error()
				}
			}
		}
		repos = append(repos, view)
	}
	return repos
}

// ProbeResult returns the last probe result, if any.
func (s *Software) ProbeResult() (*types.ProbeResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probe, s.probe != nil
}

// Proposal returns the current proposal.
func (s *Software) Proposal() (Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.proposal == nil {
		return Proposal{}, false
	}
	return *s.proposal, true
}

// Valid reports whether a product is selected and a proposal for it
// exists.
func (s *Software) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasSelected && s.proposal != nil && s.proposal.Product.Name == s.selected
}

// Propose builds the proposal for the selected product from the last
// probe.
func (s *Software) Propose(ctx context.Context) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasSelected {
		return Proposal{}, ErrNoProduct
	}
	prod, ok := s.cfg.GetProduct(s.selected)
	if !ok {
		return Proposal{}, fmt.Errorf("%s: %w", s.selected, ErrUnknownProduct)
	}

	proposal := Proposal{Product: productFromConfig(*prod, s.available[prod.Name])}
	for _, name := range prod.Repositories {
		repo, ok := s.cfg.GetRepository(name)
		if !ok {
			return Proposal{}, fmt.Errorf("repository %s: %w", name, ErrNotProbed)
		}
		var res types.RepositoryResult
		if s.probe != nil {
			res, ok = s.probe.Get(name)
		}
		if s.probe == nil || !ok || !res.Success {
			return Proposal{}, fmt.Errorf("repository %s: %w", name, ErrNotProbed)
		}
		proposal.Repositories = append(proposal.Repositories, ProposedRepository{
			Name:         repo.Name,
			URL:          repo.URL,
			Type:         string(repo.Type),
			RequestedRef: repo.GetEffectiveRef(),
			ResolvedRef:  res.ResolvedRef,
		})
	}

	s.proposal = &proposal
	s.log.V(1).Info("proposal ready", "product", prod.Name, "repositories", len(proposal.Repositories))
	return proposal, nil
}

// Probe resolves every configured repository and computes the products
// that can be installed. The selected product is kept when it is still
// available, otherwise the first available product is selected.
func (s *Software) Probe(ctx context.Context) error {
	return s.busy.BusyWhile(BusyName, func() error {
		return s.probeRepositories(ctx)
	})
}

func (s *Software) probeRepositories(ctx context.Context) error {
	repos := s.cfg.Repositories
	if err := s.tracker.Start(len(repos) + 2); err != nil {
		return err
	}

	start := time.Now()
	results, err := s.probeAll(ctx, repos)
	if err != nil {
		return err
	}
	probe := types.NewProbeResult(results, time.Since(start))

	if err := s.tracker.Step("Searching for supported products"); err != nil {
		return err
	}
	available := make(map[string]bool)
	for _, p := range s.cfg.Products {
		available[p.Name] = productAvailable(p, probe)
	}

	if err := s.tracker.Step("Making initial proposal"); err != nil {
		return err
	}

	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	s.mu.Lock()
	s.probe = probe
	s.available = available
	s.proposal = nil
	names := s.availableLocked()
	var changed bool
	var selected string
	if len(names) > 0 {
		selected = names[0]
		if s.hasSelected && available[s.selected] {
			selected = s.selected
		}
		changed = s.setSelectedLocked(selected)
	}
	s.mu.Unlock()

	s.log.Info("repositories probed",
		"total", probe.TotalRepos, "failed", probe.FailureCount, "available", len(names), "duration", probe.Duration)

	if len(names) == 0 {
		return fmt.Errorf("%w: %d of %d repositories failed", ErrNoProductAvailable, probe.FailureCount, probe.TotalRepos)
	}
	if changed {
		s.log.Info("product selected", "product", selected)
		s.productListeners.Notify(selected)
	}
	return nil
}

func productAvailable(p config.Product, probe *types.ProbeResult) bool {
	for _, name := range p.Repositories {
		res, ok := probe.Get(name)
		if !ok || !res.Success {
			return false
		}
	}
	return true
}

// Install fetches the metadata of every proposed repository into the
// target system and returns one result per repository.
func (s *Software) Install(ctx context.Context, targetDir string) ([]types.RepositoryResult, error) {
	proposal, ok := s.Proposal()
	if !ok {
		return nil, ErrNoProposal
	}

	var results []types.RepositoryResult
	err := s.busy.BusyWhile(BusyName, func() error {
		if err := s.tracker.Start(len(proposal.Repositories)); err != nil {
			return err
		}

		for _, pr := range proposal.Repositories {
			if err := s.tracker.Step(fmt.Sprintf("Fetching repository %s", pr.Name)); err != nil {
				return err
			}

			res := s.fetch(ctx, pr, targetDir)
			results = append(results, res)
			if !res.Success {
				return fmt.Errorf("repository %s: %w", pr.Name, res.Error)
			}
		}
		return nil
	})

	return results, err
}

func (s *Software) fetch(ctx context.Context, pr ProposedRepository, targetDir string) types.RepositoryResult {
	start := time.Now()
	res := types.RepositoryResult{Name: pr.Name, URL: pr.URL, Type: pr.Type}

	repo, ok := s.cfg.GetRepository(pr.Name)
	if !ok {
		res.Error = fmt.Errorf("repository not configured")
		return res
	}

	// Fetch exactly what was probed.
	pinned := *repo
	if repo.Type == config.RepoTypeGit && pr.ResolvedRef != "" {
		pinned.Branch, pinned.Tag, pinned.Commit = "", "", pr.ResolvedRef
	}

	dl, err := s.newDownloader(&pinned)
	if err != nil {
		res.Error = err
		return res
	}

	dest := filepath.Join(targetDir, CacheDir, pr.Name)
	ref, err := dl.Fetch(ctx, pr.URL, dest)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		s.log.Error(err, "fetch failed", "repository", pr.Name)
		return res
	}

	res.Success = true
	res.ResolvedRef = ref
	s.log.V(1).Info("repository fetched", "repository", pr.Name, "ref", ref, "duration", res.Duration)
	return res
}
