package registration

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/notify"
	"github.com/tierone/installd/pkg/status"
)

// ProductSelector reports the selected product.
type ProductSelector interface {
	SelectedProduct() (string, bool)
}

// Registration is the registration subsystem.
type Registration struct {
	cfg      *config.Config
	products ProductSelector
	client   *Client
	log      logr.Logger
	busy     *status.BusyRegistry
	hostname func() (string, error)

	mu      sync.RWMutex
	code    string
	email   string
	creds   *Credentials
	service *Service

	listeners *notify.Registry[State]
}

// Option configures the subsystem.
type Option func(*Registration)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Registration) {
		r.log = log
	}
}

// WithBusyRegistry sets the registry the subsystem reports to.
func WithBusyRegistry(b *status.BusyRegistry) Option {
	return func(r *Registration) {
		r.busy = b
	}
}

// WithClient replaces the subscription service client.
func WithClient(c *Client) Option {
	return func(r *Registration) {
		r.client = c
	}
}

// New creates the subsystem for the service configured in cfg.
func New(cfg *config.Config, products ProductSelector, opts ...Option) *Registration {
	r := &Registration{
		cfg:      cfg,
		products: products,
		log:      logr.Discard(),
		hostname: os.Hostname,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.busy == nil {
		r.busy = status.NewBusyRegistry(r.log)
	}
	if r.client == nil {
		r.client = NewClient(cfg.Registration.URL, cfg.Registration.Timeout, cfg.HTTP.UserAgent)
	}
	r.log = r.log.WithName(BusyName)
	r.listeners = notify.NewRegistry[State]("registration-state", r.log)

	return r
}

// Requirement returns whether the selected product needs registration.
func (r *Registration) Requirement() Requirement {
	prod, ok := r.selectedProduct()
	if !ok {
		return NotRequired
	}
	return RequirementFor(prod.Registration)
}

func (r *Registration) selectedProduct() (*config.Product, bool) {
	if r.products == nil {
		return nil, false
	}
	name, ok := r.products.SelectedProduct()
	if !ok {
		return nil, false
	}
	return r.cfg.GetProduct(name)
}

// Registered reports whether the system is registered.
func (r *Registration) Registered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.creds != nil
}

// State returns the current registration state.
func (r *Registration) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked(r.Requirement())
}

func (r *Registration) stateLocked(req Requirement) State {
	st := State{
		Registered:  r.creds != nil,
		Email:       r.email,
		Requirement: req,
	}
	if r.code != "" {
		st.Code = MaskCode(r.code)
	}
	if r.service != nil {
		svc := *r.service
		st.Service = &svc
	}
	return st
}

// OnStateChange registers a listener called after Register and
// Deregister.
func (r *Registration) OnStateChange(fn notify.Listener[State]) notify.Handle {
	return r.listeners.Add(fn)
}

// Register announces the system with code and activates the selected
// product.
func (r *Registration) Register(ctx context.Context, code, email string) error {
	if code == "" {
		return ErrInvalidCode
	}
	if r.Registered() {
		return ErrAlreadyRegistered
	}
	prod, ok := r.selectedProduct()
	if !ok {
		return ErrNoProduct
	}

	return r.busy.BusyWhile(BusyName, func() error {
		hostname, err := r.hostname()
		if err != nil {
			return fmt.Errorf("reading hostname: %w", err)
		}

		creds, err := r.client.Announce(ctx, code, AnnounceRequest{
			Hostname:     hostname,
			DistroTarget: r.distroTarget(prod),
			Email:        email,
		})
		if err != nil {
			return err
		}
		r.log.V(1).Info("system announced", "login", creds.Login)

		service, err := r.client.Activate(ctx, creds, ActivateRequest{
			Identifier: prod.Name,
			Version:    prod.Version,
			Arch:       prod.Arch,
			Token:      code,
			Email:      email,
		})
		if err != nil {
			return err
		}

		r.mu.Lock()
		r.code = code
		r.email = email
		r.creds = &creds
		r.service = &service
		r.mu.Unlock()

		r.log.Info("system registered", "product", prod.Name, "service", service.Name)
		r.listeners.Notify(r.State())
		return nil
	})
}

func (r *Registration) distroTarget(prod *config.Product) string {
	if r.cfg.Registration.DistroTarget != "" {
		return r.cfg.Registration.DistroTarget
	}
	return fmt.Sprintf("%s-%s-%s", prod.Name, prod.Version, prod.Arch)
}

// Deregister removes the system from the subscription service.
func (r *Registration) Deregister(ctx context.Context) error {
	r.mu.RLock()
	creds := r.creds
	r.mu.RUnlock()
	if creds == nil {
		return ErrNotRegistered
	}

	return r.busy.BusyWhile(BusyName, func() error {
		if err := r.client.Deregister(ctx, *creds); err != nil {
			return err
		}

		r.mu.Lock()
		r.code = ""
		r.email = ""
		r.creds = nil
		r.service = nil
		r.mu.Unlock()

		r.log.Info("system deregistered")
		r.listeners.Notify(r.State())
		return nil
	})
}
