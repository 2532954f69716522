// Package installer builds the service context: the subsystems, the busy
// registry they share and the manager driving them.
package installer

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/manager"
	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/registration"
	"github.com/tierone/installd/pkg/software"
	"github.com/tierone/installd/pkg/status"
	"github.com/tierone/installd/pkg/types"
)

// ErrRegistrationRequired is returned by the install phase when the
// selected product must be registered first.
var ErrRegistrationRequired = errors.New("product requires registration")

// Installer owns every subsystem and implements manager.Backend.
type Installer struct {
	cfg          *config.Config
	log          logr.Logger
	busy         *status.BusyRegistry
	software     *software.Software
	network      *network.Network
	registration *registration.Registration
	manager      *manager.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type options struct {
	log                logr.Logger
	networkClient      network.Client
	downloaderFactory  software.DownloaderFactory
	registrationClient *registration.Client
}

// Option configures the installer.
type Option func(*options)

// WithLogger sets the logger handed to every subsystem.
func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithNetworkClient sets the connection manager. Without one the network
// subsystem reports an empty model.
func WithNetworkClient(c network.Client) Option {
	return func(o *options) {
		o.networkClient = c
	}
}

// WithDownloaderFactory replaces the repository downloaders.
func WithDownloaderFactory(f software.DownloaderFactory) Option {
	return func(o *options) {
		o.downloaderFactory = f
	}
}

// WithRegistrationClient replaces the subscription service client.
func WithRegistrationClient(c *registration.Client) Option {
	return func(o *options) {
		o.registrationClient = c
	}
}

// New builds the service context for cfg.
func New(cfg *config.Config, opts ...Option) *Installer {
	o := options{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	i := &Installer{
		cfg:    cfg,
		log:    o.log.WithName("installer"),
		busy:   status.NewBusyRegistry(o.log),
		ctx:    ctx,
		cancel: cancel,
	}

	swOpts := []software.Option{software.WithLogger(o.log), software.WithBusyRegistry(i.busy)}
	if o.downloaderFactory != nil {
		swOpts = append(swOpts, software.WithDownloaderFactory(o.downloaderFactory))
	}
	i.software = software.New(cfg, swOpts...)

	var nm network.Client
	if cfg.Network.Enabled {
		nm = o.networkClient
	}
	i.network = network.New(nm, network.WithLogger(o.log), network.WithBusyRegistry(i.busy))

	regOpts := []registration.Option{registration.WithLogger(o.log), registration.WithBusyRegistry(i.busy)}
	if o.registrationClient != nil {
		regOpts = append(regOpts, registration.WithClient(o.registrationClient))
	}
	i.registration = registration.New(cfg, i.software, regOpts...)

	i.manager = manager.New(i,
		manager.WithLogger(o.log.WithName("manager")),
		manager.WithBusyRegistry(i.busy),
	)

	i.software.OnProductSelected(i.productSelected)

	return i
}

// Config returns the configuration the installer was built with.
func (i *Installer) Config() *config.Config { return i.cfg }

// Manager returns the state machine.
func (i *Installer) Manager() *manager.Manager { return i.manager }

// Software returns the software subsystem.
func (i *Installer) Software() *software.Software { return i.software }

// Network returns the network subsystem.
func (i *Installer) Network() *network.Network { return i.network }

// Registration returns the registration subsystem.
func (i *Installer) Registration() *registration.Registration { return i.registration }

// Busy returns the registry shared by the subsystems.
func (i *Installer) Busy() *status.BusyRegistry { return i.busy }

// Close cancels background phase runs and waits for them.
func (i *Installer) Close() {
	i.cancel()
	i.wg.Wait()
}

// Wait blocks until background phase runs are done.
func (i *Installer) Wait() {
	i.wg.Wait()
}

// productSelected re-runs the config phase for a selection made while the
// manager is idle. Selections made by a running phase are covered by it.
func (i *Installer) productSelected(name string) error {
	if i.manager.Status() == types.StatusBusy {
		i.log.V(1).Info("product selected during a phase, not re-probing", "product", name)
		return nil
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.manager.RunConfigPhase(i.ctx); err != nil {
			if errors.Is(err, manager.ErrBusy) {
				i.log.Info("manager busy, skipping re-probe", "product", name)
				return
			}
			i.log.Error(err, "re-probe after product selection failed", "product", name)
		}
	}()
	return nil
}
