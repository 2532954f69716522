// Package network adapts the NetworkManager D-Bus API to a flat
// connection model and provides the network subsystem of the installer.
package network

import "errors"

// ConnectionType is the NetworkManager connection type.
type ConnectionType string

const (
	TypeEthernet ConnectionType = "802-3-ethernet"
	TypeWireless ConnectionType = "802-11-wireless"
)

// ConnectionState mirrors NMActiveConnectionState.
type ConnectionState uint32

const (
	StateUnknown ConnectionState = iota
	StateActivating
	StateActivated
	StateDeactivating
	StateDeactivated
)

func (s ConnectionState) String() string {
	switch s {
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateDeactivating:
		return "deactivating"
	case StateDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

var (
	// ErrConnectionNotFound is returned for an unknown connection id.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrDisabled is returned by mutating operations when the network
	// subsystem runs without NetworkManager.
	ErrDisabled = errors.New("network management disabled")
)

// IPAddress is an IPv4 address with its prefix length.
type IPAddress struct {
	Address string `json:"address" toml:"address"`
	Prefix  uint32 `json:"prefix" toml:"prefix"`
}

// IPv4 holds the IPv4 settings of a connection.
type IPv4 struct {
	Method      string      `json:"method" toml:"method"`
	Addresses   []IPAddress `json:"addresses" toml:"addresses"`
	Gateway     string      `json:"gateway,omitempty" toml:"gateway,omitempty"`
	NameServers []string    `json:"nameServers" toml:"name_servers"`
}

// Wireless holds the wireless settings of a connection.
type Wireless struct {
	SSID     string `json:"ssid" toml:"ssid"`
	Hidden   bool   `json:"hidden" toml:"hidden"`
	Mode     string `json:"mode,omitempty" toml:"mode,omitempty"`
	Security string `json:"security,omitempty" toml:"security,omitempty"`
	Password string `json:"password,omitempty" toml:"-"`
}

// Connection is a NetworkManager connection profile.
type Connection struct {
	// ID is the connection UUID.
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Path      string         `json:"path,omitempty"`
	Type      ConnectionType `json:"type"`
	Interface string         `json:"interface,omitempty"`
	IPv4      IPv4           `json:"ipv4"`
	Wireless  *Wireless      `json:"wireless,omitempty"`
}

// ActiveConnection is a connection currently applied to a device.
type ActiveConnection struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      ConnectionType  `json:"type"`
	State     ConnectionState `json:"state"`
	Addresses []IPAddress     `json:"addresses"`
}

// AccessPoint is a scanned wireless network.
type AccessPoint struct {
	SSID      string   `json:"ssid"`
	HWAddress string   `json:"hwAddress"`
	Strength  uint8    `json:"strength"`
	Security  []string `json:"security"`
}

// State is the network model reported to listeners.
type State struct {
	Connections []Connection       `json:"connections"`
	Active      []ActiveConnection `json:"active"`
	Hostname    string             `json:"hostname"`
}

// NewConnection returns a connection with the defaults NetworkManager
// applies to new profiles.
func NewConnection(name string) Connection {
	return Connection{
		Name: name,
		Type: TypeEthernet,
		IPv4: IPv4{Method: "auto", Addresses: []IPAddress{}, NameServers: []string{}},
	}
}
