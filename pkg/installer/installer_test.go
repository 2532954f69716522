package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/downloader"
	"github.com/tierone/installd/pkg/lockfile"
	"github.com/tierone/installd/pkg/manager"
	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/types"
)

type stubDownloader struct {
	repo *config.Repository
	fail error
}

func (d *stubDownloader) Type() string { return string(d.repo.Type) }

func (d *stubDownloader) Probe(ctx context.Context, source string) (string, error) {
	if d.fail != nil {
		return "", d.fail
	}
	return "probed-" + d.repo.Name, nil
}

func (d *stubDownloader) Fetch(ctx context.Context, source, destination string) (string, error) {
	if d.fail != nil {
		return "", d.fail
	}
	return "fetched-" + d.repo.Name, nil
}

type stubFactory struct {
	mu   sync.Mutex
	fail error
}

func (f *stubFactory) new(repo *config.Repository) (downloader.Downloader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &stubDownloader{repo: repo, fail: f.fail}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.General.TargetDir = t.TempDir()
	cfg.Repositories = []config.Repository{
		{Name: "oss", URL: "https://download.example.com/oss", Type: config.RepoTypeHTTP},
		{Name: "updates", URL: "https://download.example.com/updates", Type: config.RepoTypeHTTP},
	}
	cfg.Products = []config.Product{
		{Name: "tumbleweed", Version: "20240101", Arch: "x86_64", Repositories: []string{"oss", "updates"}},
		{Name: "minimal", Repositories: []string{"oss"}},
	}
	return cfg
}

func newTestInstaller(t *testing.T, cfg *config.Config, f *stubFactory) *Installer {
	t.Helper()
	i := New(cfg, WithDownloaderFactory(f.new))
	t.Cleanup(i.Close)
	return i
}

func TestConfigPhase(t *testing.T) {
	i := newTestInstaller(t, testConfig(t), &stubFactory{})

	require.NoError(t, i.Manager().RunConfigPhase(context.Background()))

	assert.Equal(t, types.PhaseConfig, i.Manager().Phase())
	assert.True(t, i.Manager().CanInstall())
	assert.Empty(t, i.Busy().Names())

	proposal, ok := i.Software().Proposal()
	require.True(t, ok)
	assert.Equal(t, "tumbleweed", proposal.Product.Name)
	require.Len(t, proposal.Repositories, 2)
	assert.Equal(t, "probed-oss", proposal.Repositories[0].ResolvedRef)

	snap := i.Manager().Progress().Snapshot()
	assert.Equal(t, 3, snap.TotalSteps)
	assert.Equal(t, "Making software proposal", snap.Description)
	assert.True(t, snap.Finished)
}

func TestConfigPhase_SoftwareFailure(t *testing.T) {
	i := newTestInstaller(t, testConfig(t), &stubFactory{fail: errors.New("connection refused")})

	err := i.Manager().RunConfigPhase(context.Background())

	var berr *manager.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "software", berr.Subsystem)
	assert.Equal(t, types.PhaseConfig, berr.Phase)
	assert.Equal(t, types.PhaseStartup, i.Manager().Phase())
	assert.False(t, i.Manager().CanInstall())
}

func TestInstallPhase(t *testing.T) {
	cfg := testConfig(t)
	i := newTestInstaller(t, cfg, &stubFactory{})
	require.NoError(t, i.Manager().RunConfigPhase(context.Background()))

	require.NoError(t, i.Manager().RunInstallPhase(context.Background()))
	assert.Equal(t, types.PhaseInstall, i.Manager().Phase())

	snap := i.Manager().Progress().Snapshot()
	assert.Equal(t, 4, snap.TotalSteps)
	assert.Equal(t, "Saving installation record", snap.Description)

	record, err := lockfile.Load(cfg.RecordPath())
	require.NoError(t, err)
	assert.Equal(t, "tumbleweed", record.Product.Name)
	assert.Equal(t, "20240101", record.Product.Version)
	assert.False(t, record.Registered)
	assert.Equal(t, []string{"oss", "updates"}, record.Names())
	entry, ok := record.Get("oss")
	require.True(t, ok)
	assert.Equal(t, "fetched-oss", entry.ResolvedRef)

	_, err = os.Stat(filepath.Join(cfg.General.TargetDir, network.RecordPath))
	assert.NoError(t, err)
}

func TestInstallPhase_UpdatesExistingRecord(t *testing.T) {
	cfg := testConfig(t)
	old := lockfile.New()
	old.Update("legacy", lockfile.NewEntry("https://download.example.com/legacy", "http", "", "sha256:0"))
	old.Update("oss", lockfile.NewEntry("https://download.example.com/oss", "http", "", "fetched-oss"))
	require.NoError(t, old.Save(cfg.RecordPath()))

	i := newTestInstaller(t, cfg, &stubFactory{})
	require.NoError(t, i.Manager().RunConfigPhase(context.Background()))
	require.NoError(t, i.Manager().RunInstallPhase(context.Background()))

	record, err := lockfile.Load(cfg.RecordPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"oss", "updates"}, record.Names())
}

func TestInstallPhase_SoftwareFailure(t *testing.T) {
	cfg := testConfig(t)
	f := &stubFactory{}
	i := newTestInstaller(t, cfg, f)
	require.NoError(t, i.Manager().RunConfigPhase(context.Background()))

	f.mu.Lock()
	f.fail = errors.New("mirror offline")
	f.mu.Unlock()

	err := i.Manager().RunInstallPhase(context.Background())

	var berr *manager.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, types.PhaseInstall, berr.Phase)
	assert.Equal(t, "software", berr.Subsystem)
	assert.Equal(t, types.PhaseConfig, i.Manager().Phase())
	assert.Equal(t, types.StatusIdle, i.Manager().Status())
	assert.Empty(t, i.Manager().BusySubsystems())

	snap := i.Manager().Progress().Snapshot()
	assert.True(t, snap.Finished)
	assert.Equal(t, "Installing software", snap.Description)

	_, err = os.Stat(cfg.RecordPath())
	assert.True(t, os.IsNotExist(err))
}

func TestInstallPhase_RequiresRegistration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Products[0].Registration = config.RegistrationMandatory
	i := newTestInstaller(t, cfg, &stubFactory{})
	require.NoError(t, i.Manager().RunConfigPhase(context.Background()))

	assert.False(t, i.Manager().CanInstall())
	err := i.Manager().RunInstallPhase(context.Background())
	assert.ErrorIs(t, err, manager.ErrInvalidSettings)
	assert.Equal(t, types.PhaseConfig, i.Manager().Phase())

	_, err = os.Stat(cfg.RecordPath())
	assert.True(t, os.IsNotExist(err))
}

func TestInstallPhase_OptionalRegistration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Products[0].Registration = config.RegistrationOptional
	i := newTestInstaller(t, cfg, &stubFactory{})
	require.NoError(t, i.Manager().RunConfigPhase(context.Background()))

	assert.True(t, i.Manager().CanInstall())
}

func TestProductSelectionReprobes(t *testing.T) {
	i := newTestInstaller(t, testConfig(t), &stubFactory{})
	require.NoError(t, i.Manager().RunConfigPhase(context.Background()))

	var statuses []types.ServiceStatus
	var mu sync.Mutex
	i.Manager().OnStatusChange(func(s types.ServiceStatus) error {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s)
		return nil
	})

	require.NoError(t, i.Software().SelectProduct("minimal"))
	i.Wait()

	proposal, ok := i.Software().Proposal()
	require.True(t, ok)
	assert.Equal(t, "minimal", proposal.Product.Name)

	name, ok := i.Software().SelectedProduct()
	require.True(t, ok)
	assert.Equal(t, "minimal", name)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []types.ServiceStatus{types.StatusBusy, types.StatusIdle}, statuses)
}
