package software

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/downloader"
	"github.com/tierone/installd/pkg/status"
	"github.com/tierone/installd/pkg/types"
)

type fakeDownloader struct {
	repo *config.Repository
	src  *fakeSource
}

func (d *fakeDownloader) Type() string { return string(d.repo.Type) }

func (d *fakeDownloader) Probe(ctx context.Context, source string) (string, error) {
	d.src.mu.Lock()
	defer d.src.mu.Unlock()
	d.src.probed = append(d.src.probed, d.repo.Name)
	if err, ok := d.src.fail[d.repo.Name]; ok {
		return "", err
	}
	return "ref-" + d.repo.Name, nil
}

func (d *fakeDownloader) Fetch(ctx context.Context, source, destination string) (string, error) {
	d.src.mu.Lock()
	d.src.fetched = append(d.src.fetched, *d.repo)
	err, failed := d.src.fetchFail[d.repo.Name]
	d.src.mu.Unlock()
	if failed {
		return "", err
	}
	if err := os.MkdirAll(destination, 0755); err != nil {
		return "", err
	}
	return "ref-" + d.repo.Name, nil
}

type fakeSource struct {
	mu        sync.Mutex
	fail      map[string]error
	fetchFail map[string]error
	probed    []string
	fetched   []config.Repository
}

func (f *fakeSource) factory(repo *config.Repository) (downloader.Downloader, error) {
	return &fakeDownloader{repo: repo, src: f}, nil
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Repositories = []config.Repository{
		{Name: "oss", URL: "https://download.example.com/oss", Type: config.RepoTypeHTTP},
		{Name: "updates", URL: "https://download.example.com/updates", Type: config.RepoTypeHTTP},
		{Name: "extras", URL: "https://git.example.com/extras.git", Type: config.RepoTypeGit, Branch: "stable"},
	}
	cfg.Products = []config.Product{
		{Name: "enterprise", DisplayName: "Enterprise Server", Repositories: []string{"oss", "extras"}, Registration: config.RegistrationMandatory},
		{Name: "tumbleweed", Repositories: []string{"oss", "updates"}},
	}
	return cfg
}

func newTestSoftware(t *testing.T, src *fakeSource) (*Software, *status.BusyRegistry) {
	t.Helper()
	busy := status.NewBusyRegistry(logr.Discard())
	return New(testConfig(),
		WithBusyRegistry(busy),
		WithDownloaderFactory(src.factory),
		WithConcurrency(2),
	), busy
}

func TestProbe_SelectsFirstAvailable(t *testing.T) {
	src := &fakeSource{}
	s, busy := newTestSoftware(t, src)

	var selections []string
	s.OnProductSelected(func(name string) error {
		selections = append(selections, name)
		return nil
	})

	var snapshots []types.ProgressSnapshot
	s.Progress().OnChange(func(snap types.ProgressSnapshot) error {
		snapshots = append(snapshots, snap)
		return nil
	})

	var busyChanges [][]string
	busy.OnChange(func(names []string) error {
		busyChanges = append(busyChanges, names)
		return nil
	})

	require.NoError(t, s.Probe(context.Background()))

	name, ok := s.SelectedProduct()
	require.True(t, ok)
	assert.Equal(t, "enterprise", name)
	assert.Equal(t, []string{"enterprise"}, selections)
	assert.Equal(t, []string{"enterprise", "tumbleweed"}, s.AvailableProducts())
	assert.ElementsMatch(t, []string{"oss", "updates", "extras"}, src.probed)

	descriptions := make([]string, 0, len(snapshots))
	for _, snap := range snapshots[1:] {
		descriptions = append(descriptions, snap.Description)
	}
	assert.Equal(t, []string{
		"Probing repository oss",
		"Probing repository updates",
		"Probing repository extras",
		"Searching for supported products",
		"Making initial proposal",
	}, descriptions)
	assert.True(t, s.Progress().Finished())

	assert.Equal(t, [][]string{{"software"}, {}}, busyChanges)
}

func TestProbe_FailedRepositoryMakesProductUnavailable(t *testing.T) {
	src := &fakeSource{fail: map[string]error{"extras": errors.New("connection refused")}}
	s, _ := newTestSoftware(t, src)

	require.NoError(t, s.Probe(context.Background()))

	name, ok := s.SelectedProduct()
	require.True(t, ok)
	assert.Equal(t, "tumbleweed", name)

	products := s.Products()
	require.Len(t, products, 2)
	assert.False(t, products[0].Available)
	assert.True(t, products[1].Available)
	assert.Equal(t, "Enterprise Server", products[0].DisplayName)

	repos := s.Repositories()
	require.Len(t, repos, 3)
	assert.True(t, repos[2].Probed)
	assert.False(t, repos[2].Success)
	assert.Equal(t, "connection refused", repos[2].Error)
	assert.Equal(t, "ref-oss", repos[0].ResolvedRef)
}

func TestProbe_NoProductAvailable(t *testing.T) {
	src := &fakeSource{fail: map[string]error{"oss": errors.New("timeout")}}
	s, busy := newTestSoftware(t, src)

	err := s.Probe(context.Background())
	assert.ErrorIs(t, err, ErrNoProductAvailable)
	assert.Empty(t, busy.Names())

	_, ok := s.SelectedProduct()
	assert.False(t, ok)
	assert.False(t, s.Valid())
	assert.True(t, s.Progress().Finished())
}

func TestProbe_KeepsAvailableSelection(t *testing.T) {
	src := &fakeSource{}
	s, _ := newTestSoftware(t, src)

	require.NoError(t, s.SelectProduct("tumbleweed"))

	var selections []string
	s.OnProductSelected(func(name string) error {
		selections = append(selections, name)
		return nil
	})

	require.NoError(t, s.Probe(context.Background()))

	name, _ := s.SelectedProduct()
	assert.Equal(t, "tumbleweed", name)
	assert.Empty(t, selections)
}

func TestProbe_RejectsWhileBusy(t *testing.T) {
	s, busy := newTestSoftware(t, &fakeSource{})
	require.True(t, busy.Mark(BusyName))

	err := s.Probe(context.Background())
	assert.ErrorIs(t, err, status.ErrBusy)
}

func TestSelectProduct(t *testing.T) {
	s, _ := newTestSoftware(t, &fakeSource{})

	var selections []string
	s.OnProductSelected(func(name string) error {
		selections = append(selections, name)
		return nil
	})

	_, ok := s.SelectedProduct()
	assert.False(t, ok)

	require.NoError(t, s.SelectProduct("tumbleweed"))
	require.NoError(t, s.SelectProduct("tumbleweed"))
	require.NoError(t, s.SelectProduct("enterprise"))

	err := s.SelectProduct("windows")
	assert.ErrorIs(t, err, ErrUnknownProduct)

	assert.Equal(t, []string{"tumbleweed", "enterprise"}, selections)
	name, ok := s.SelectedProduct()
	assert.True(t, ok)
	assert.Equal(t, "enterprise", name)
}

func TestPropose(t *testing.T) {
	s, _ := newTestSoftware(t, &fakeSource{})

	_, err := s.Propose(context.Background())
	assert.ErrorIs(t, err, ErrNoProduct)

	require.NoError(t, s.SelectProduct("enterprise"))
	_, err = s.Propose(context.Background())
	assert.ErrorIs(t, err, ErrNotProbed)

	require.NoError(t, s.Probe(context.Background()))
	assert.False(t, s.Valid())

	proposal, err := s.Propose(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Valid())

	assert.Equal(t, "enterprise", proposal.Product.Name)
	require.Len(t, proposal.Repositories, 2)
	assert.Equal(t, ProposedRepository{
		Name:         "extras",
		URL:          "https://git.example.com/extras.git",
		Type:         "git",
		RequestedRef: "stable",
		ResolvedRef:  "ref-extras",
	}, proposal.Repositories[1])

	got, ok := s.Proposal()
	require.True(t, ok)
	assert.Equal(t, proposal, got)

	require.NoError(t, s.SelectProduct("tumbleweed"))
	assert.False(t, s.Valid())
	_, ok = s.Proposal()
	assert.False(t, ok)
}

func TestInstall(t *testing.T) {
	src := &fakeSource{}
	s, _ := newTestSoftware(t, src)
	target := t.TempDir()

	_, err := s.Install(context.Background(), target)
	assert.ErrorIs(t, err, ErrNoProposal)

	require.NoError(t, s.Probe(context.Background()))
	_, err = s.Propose(context.Background())
	require.NoError(t, err)

	results, err := s.Install(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "ref-extras", results[1].ResolvedRef)

	assert.DirExists(t, filepath.Join(target, CacheDir, "oss"))
	assert.DirExists(t, filepath.Join(target, CacheDir, "extras"))

	// git repositories are fetched at the probed commit
	require.Len(t, src.fetched, 2)
	assert.Equal(t, "ref-extras", src.fetched[1].Commit)
	assert.Empty(t, src.fetched[1].Branch)

	snap := s.Progress().Snapshot()
	assert.Equal(t, 2, snap.TotalSteps)
	assert.Equal(t, "Fetching repository extras", snap.Description)
	assert.True(t, snap.Finished)
}

func TestInstall_FetchFailure(t *testing.T) {
	src := &fakeSource{fetchFail: map[string]error{"oss": errors.New("disk full")}}
	s, busy := newTestSoftware(t, src)

	require.NoError(t, s.Probe(context.Background()))
	_, err := s.Propose(context.Background())
	require.NoError(t, err)

	results, err := s.Install(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oss")
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Empty(t, busy.Names())
}
