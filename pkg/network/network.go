package network

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/notify"
	"github.com/tierone/installd/pkg/progress"
	"github.com/tierone/installd/pkg/status"
)

const (
	// BusyName is the name the subsystem reports to the busy registry.
	BusyName = "network"

	// RecordPath is where Install writes the network configuration,
	// relative to the target system.
	RecordPath = "etc/installd/network.toml"
)

// Network is the network subsystem. It caches the connection model read
// from the Client and writes it to the target system on Install. Without a
// Client the subsystem reports an empty model and rejects changes.
type Network struct {
	client  Client
	log     logr.Logger
	busy    *status.BusyRegistry
	tracker *progress.Tracker

	mu    sync.RWMutex
	state State

	listeners *notify.Registry[State]
}

// Option configures the subsystem.
type Option func(*Network)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(n *Network) {
		n.log = log
	}
}

// WithBusyRegistry sets the registry the subsystem reports to.
func WithBusyRegistry(r *status.BusyRegistry) Option {
	return func(n *Network) {
		n.busy = r
	}
}

// New creates the subsystem. client may be nil.
func New(client Client, opts ...Option) *Network {
	n := &Network{
		client: client,
		log:    logr.Discard(),
		state:  emptyState(),
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.busy == nil {
		n.busy = status.NewBusyRegistry(n.log)
	}
	n.log = n.log.WithName(BusyName)
	n.tracker = progress.New(progress.WithName("network-progress"), progress.WithLogger(n.log))
	n.listeners = notify.NewRegistry[State]("network-state", n.log)

	return n
}

func emptyState() State {
	return State{Connections: []Connection{}, Active: []ActiveConnection{}}
}

// Enabled reports whether a connection manager is available.
func (n *Network) Enabled() bool {
	return n.client != nil
}

// Progress returns the tracker driven by Probe.
func (n *Network) Progress() *progress.Tracker {
	return n.tracker
}

// OnChange registers a listener called with the model after every probe
// or change.
func (n *Network) OnChange(fn notify.Listener[State]) notify.Handle {
	return n.listeners.Add(fn)
}

// State returns a copy of the cached model.
func (n *Network) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyState(n.state)
}

// Connections returns the cached connection profiles.
func (n *Network) Connections() []Connection {
	return n.State().Connections
}

// Connection returns the cached profile with the given id.
func (n *Network) Connection(id string) (Connection, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, c := range n.state.Connections {
		if c.ID == id {
			return c, nil
		}
	}
	return Connection{}, fmt.Errorf("%s: %w", id, ErrConnectionNotFound)
}

// ActiveConnections returns the cached active connections.
func (n *Network) ActiveConnections() []ActiveConnection {
	return n.State().Active
}

// Hostname returns the cached hostname.
func (n *Network) Hostname() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state.Hostname
}

// AccessPoints scans the wifi devices. It is not cached.
func (n *Network) AccessPoints(ctx context.Context) ([]AccessPoint, error) {
	if n.client == nil {
		return []AccessPoint{}, nil
	}
	return n.client.AccessPoints(ctx)
}

// Probe reads the connection model from the connection manager.
func (n *Network) Probe(ctx context.Context) error {
	return n.busy.BusyWhile(BusyName, func() error {
		if err := n.tracker.Start(3); err != nil {
			return err
		}

		if n.client == nil {
			for _, step := range []string{"Reading connections", "Reading active connections", "Reading hostname"} {
				if err := n.tracker.Step(step); err != nil {
					return err
				}
			}
			n.log.Info("network management disabled")
			n.publish(emptyState())
			return nil
		}

		st, err := n.read(ctx, true)
		if err != nil {
			return err
		}
		n.log.Info("network probed", "connections", len(st.Connections), "active", len(st.Active))
		n.publish(st)
		return nil
	})
}

func (n *Network) read(ctx context.Context, steps bool) (State, error) {
	step := func(description string) error {
		if !steps {
			return nil
		}
		return n.tracker.Step(description)
	}

	st := emptyState()
	var err error

	if err := step("Reading connections"); err != nil {
		return State{}, err
	}
	if st.Connections, err = n.client.Connections(ctx); err != nil {
		return State{}, err
	}

	if err := step("Reading active connections"); err != nil {
		return State{}, err
	}
	if st.Active, err = n.client.ActiveConnections(ctx); err != nil {
		return State{}, err
	}

	if err := step("Reading hostname"); err != nil {
		return State{}, err
	}
	if st.Hostname, err = n.client.Hostname(ctx); err != nil {
		return State{}, err
	}

	return st, nil
}

func (n *Network) publish(st State) {
	n.mu.Lock()
	n.state = st
	n.mu.Unlock()

	n.listeners.Notify(copyState(st))
}

// AddConnection creates and activates a connection profile.
func (n *Network) AddConnection(ctx context.Context, c Connection) (Connection, error) {
	var added Connection
	err := n.mutate(ctx, func() error {
		var err error
		added, err = n.client.AddConnection(ctx, c)
		if err != nil {
			return err
		}
		n.log.Info("connection added", "id", added.ID, "name", added.Name)
		return n.client.ActivateConnection(ctx, added.ID)
	})
	return added, err
}

// UpdateConnection changes and reactivates an existing profile.
func (n *Network) UpdateConnection(ctx context.Context, c Connection) error {
	return n.mutate(ctx, func() error {
		if err := n.client.UpdateConnection(ctx, c); err != nil {
			return err
		}
		n.log.Info("connection updated", "id", c.ID)
		return n.client.ActivateConnection(ctx, c.ID)
	})
}

// DeleteConnection removes a profile.
func (n *Network) DeleteConnection(ctx context.Context, id string) error {
	return n.mutate(ctx, func() error {
		if err := n.client.DeleteConnection(ctx, id); err != nil {
			return err
		}
		n.log.Info("connection deleted", "id", id)
		return nil
	})
}

func (n *Network) mutate(ctx context.Context, fn func() error) error {
	if n.client == nil {
		return ErrDisabled
	}

	return n.busy.BusyWhile(BusyName, func() error {
		if err := fn(); err != nil {
			return err
		}
		st, err := n.read(ctx, false)
		if err != nil {
			return err
		}
		n.publish(st)
		return nil
	})
}

type networkRecord struct {
	Hostname    string             `toml:"hostname,omitempty"`
	Connections []connectionRecord `toml:"connection"`
}

type connectionRecord struct {
	ID        string    `toml:"id"`
	Name      string    `toml:"name"`
	Type      string    `toml:"type"`
	Interface string    `toml:"interface,omitempty"`
	IPv4      IPv4      `toml:"ipv4"`
	Wireless  *Wireless `toml:"wireless,omitempty"`
}

// Install writes the cached model to RecordPath below targetDir. Wireless
// passwords are not written.
func (n *Network) Install(ctx context.Context, targetDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	st := n.State()
	record := networkRecord{Hostname: st.Hostname}
	for _, c := range st.Connections {
		rec := connectionRecord{
			ID:        c.ID,
			Name:      c.Name,
			Type:      string(c.Type),
			Interface: c.Interface,
			IPv4:      c.IPv4,
		}
		if c.Wireless != nil {
			w := *c.Wireless
			w.Password = ""
			rec.Wireless = &w
		}
		record.Connections = append(record.Connections, rec)
	}

	path := filepath.Join(targetDir, RecordPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating network record: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# Network configuration written by installd.\n\n"); err != nil {
		return "", fmt.Errorf("writing network record: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(record); err != nil {
		return "", fmt.Errorf("encoding network record: %w", err)
	}

	n.log.Info("network configuration written", "path", path, "connections", len(record.Connections))
	return path, nil
}

func copyState(st State) State {
	out := State{
		Connections: make([]Connection, len(st.Connections)),
		Active:      make([]ActiveConnection, len(st.Active)),
		Hostname:    st.Hostname,
	}
	copy(out.Connections, st.Connections)
	copy(out.Active, st.Active)
	return out
}
