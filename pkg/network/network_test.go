package network

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierone/installd/pkg/status"
	"github.com/tierone/installd/pkg/types"
)

// fakeClient keeps connections in memory.
type fakeClient struct {
	mu          sync.Mutex
	connections []Connection
	active      []ActiveConnection
	hostname    string
	points      []AccessPoint
	activated   []string
	nextID      int
	listErr     error
}

func (c *fakeClient) Connections(ctx context.Context) ([]Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]Connection, len(c.connections))
	copy(out, c.connections)
	return out, nil
}

func (c *fakeClient) Connection(ctx context.Context, id string) (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.connections {
		if conn.ID == id {
			return conn, nil
		}
	}
	return Connection{}, ErrConnectionNotFound
}

func (c *fakeClient) AddConnection(ctx context.Context, conn Connection) (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	conn.ID = fmt.Sprintf("uuid-%d", c.nextID)
	c.connections = append(c.connections, conn)
	return conn, nil
}

func (c *fakeClient) UpdateConnection(ctx context.Context, conn Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.connections {
		if c.connections[i].ID == conn.ID {
			c.connections[i] = conn
			return nil
		}
	}
	return ErrConnectionNotFound
}

func (c *fakeClient) DeleteConnection(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.connections {
		if c.connections[i].ID == id {
			c.connections = append(c.connections[:i], c.connections[i+1:]...)
			return nil
		}
	}
	return ErrConnectionNotFound
}

func (c *fakeClient) ActivateConnection(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activated = append(c.activated, id)
	return nil
}

func (c *fakeClient) ActiveConnections(ctx context.Context) ([]ActiveConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActiveConnection, len(c.active))
	copy(out, c.active)
	return out, nil
}

func (c *fakeClient) AccessPoints(ctx context.Context) ([]AccessPoint, error) {
	return c.points, nil
}

func (c *fakeClient) Hostname(ctx context.Context) (string, error) {
	return c.hostname, nil
}

func newFakeClient() *fakeClient {
	wired := NewConnection("Wired connection 1")
	wired.ID = "uuid-wired"
	wired.Interface = "eth0"

	wifi := NewConnection("Home")
	wifi.ID = "uuid-wifi"
	wifi.Type = TypeWireless
	wifi.Wireless = &Wireless{SSID: "HomeNet", Security: "wpa-psk", Password: "secret"}

	return &fakeClient{
		connections: []Connection{wired, wifi},
		active:      []ActiveConnection{{ID: "uuid-wired", Name: "Wired connection 1", Type: TypeEthernet, State: StateActivated}},
		hostname:    "installer",
	}
}

func TestNetwork_Probe(t *testing.T) {
	busy := status.NewBusyRegistry(logr.Discard())
	n := New(newFakeClient(), WithBusyRegistry(busy))

	var busyChanges [][]string
	busy.OnChange(func(names []string) error {
		busyChanges = append(busyChanges, names)
		return nil
	})
	var states []State
	n.OnChange(func(s State) error {
		states = append(states, s)
		return nil
	})
	var steps []types.ProgressSnapshot
	n.Progress().OnChange(func(s types.ProgressSnapshot) error {
		steps = append(steps, s)
		return nil
	})

	require.NoError(t, n.Probe(context.Background()))

	assert.Len(t, n.Connections(), 2)
	assert.Len(t, n.ActiveConnections(), 1)
	assert.Equal(t, "installer", n.Hostname())
	assert.Len(t, states, 1)
	assert.Equal(t, [][]string{{"network"}, {}}, busyChanges)

	require.Len(t, steps, 4)
	assert.Equal(t, "Reading connections", steps[1].Description)
	assert.Equal(t, "Reading hostname", steps[3].Description)
	assert.True(t, steps[3].Finished)

	c, err := n.Connection("uuid-wifi")
	require.NoError(t, err)
	assert.Equal(t, "Home", c.Name)
	_, err = n.Connection("missing")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestNetwork_ProbeFailure(t *testing.T) {
	client := newFakeClient()
	client.listErr = errors.New("NetworkManager not running")
	n := New(client)

	err := n.Probe(context.Background())

	assert.ErrorContains(t, err, "NetworkManager not running")
	assert.Empty(t, n.Connections())
}

func TestNetwork_Disabled(t *testing.T) {
	n := New(nil)

	require.NoError(t, n.Probe(context.Background()))
	assert.False(t, n.Enabled())
	assert.Empty(t, n.Connections())
	assert.True(t, n.Progress().Finished())

	_, err := n.AddConnection(context.Background(), NewConnection("x"))
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, n.DeleteConnection(context.Background(), "x"), ErrDisabled)

	points, err := n.AccessPoints(context.Background())
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestNetwork_AddUpdateDelete(t *testing.T) {
	client := newFakeClient()
	n := New(client)
	require.NoError(t, n.Probe(context.Background()))

	var states []State
	n.OnChange(func(s State) error {
		states = append(states, s)
		return nil
	})

	added, err := n.AddConnection(context.Background(), NewConnection("Static"))
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", added.ID)
	assert.Len(t, n.Connections(), 3)

	added.IPv4.Method = "manual"
	added.IPv4.Addresses = []IPAddress{{Address: "10.0.0.2", Prefix: 24}}
	require.NoError(t, n.UpdateConnection(context.Background(), added))
	got, err := n.Connection("uuid-1")
	require.NoError(t, err)
	assert.Equal(t, "manual", got.IPv4.Method)

	require.NoError(t, n.DeleteConnection(context.Background(), "uuid-1"))
	_, err = n.Connection("uuid-1")
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	assert.Len(t, states, 3)
	assert.Equal(t, []string{"uuid-1", "uuid-1"}, client.activated)
}

func TestNetwork_RejectsConcurrentChange(t *testing.T) {
	busy := status.NewBusyRegistry(logr.Discard())
	n := New(newFakeClient(), WithBusyRegistry(busy))

	var inner error
	err := busy.BusyWhile(BusyName, func() error {
		inner = n.DeleteConnection(context.Background(), "uuid-wired")
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, inner, status.ErrBusy)
}

func TestNetwork_InstallOmitsPasswords(t *testing.T) {
	n := New(newFakeClient())
	require.NoError(t, n.Probe(context.Background()))

	target := t.TempDir()
	path, err := n.Install(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target, RecordPath), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	var record networkRecord
	_, err = toml.Decode(string(data), &record)
	require.NoError(t, err)
	assert.Equal(t, "installer", record.Hostname)
	require.Len(t, record.Connections, 2)
	assert.Equal(t, "eth0", record.Connections[0].Interface)
	require.NotNil(t, record.Connections[1].Wireless)
	assert.Equal(t, "HomeNet", record.Connections[1].Wireless.SSID)

	// The cached model keeps the password.
	c, err := n.Connection("uuid-wifi")
	require.NoError(t, err)
	assert.Equal(t, "secret", c.Wireless.Password)
}
