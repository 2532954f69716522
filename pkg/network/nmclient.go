package network

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/godbus/dbus/v5"
)

const (
	nmService = "org.freedesktop.NetworkManager"
	nmPath    = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface   = "org.freedesktop.NetworkManager"

	settingsPath    = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")
	settingsIface   = nmIface + ".Settings"
	connectionIface = settingsIface + ".Connection"
	activeIface     = nmIface + ".Connection.Active"
	ip4ConfigIface  = nmIface + ".IP4Config"
	deviceIface     = nmIface + ".Device"
	wirelessIface   = deviceIface + ".Wireless"
	apIface         = nmIface + ".AccessPoint"

	propertiesGet = "org.freedesktop.DBus.Properties.Get"

	// NMDeviceType of wifi devices.
	deviceTypeWifi = 2

	errInvalidConnection = settingsIface + ".InvalidConnection"
)

// ObjectGetter returns proxies for remote objects. *dbus.Conn implements
// it.
type ObjectGetter interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// NMClient talks to NetworkManager over D-Bus.
type NMClient struct {
	bus ObjectGetter
	log logr.Logger
}

// NewNMClient creates a client on an established bus connection.
func NewNMClient(bus ObjectGetter, log logr.Logger) *NMClient {
	return &NMClient{bus: bus, log: log.WithName("networkmanager")}
}

func (c *NMClient) object(path dbus.ObjectPath) dbus.BusObject {
	return c.bus.Object(nmService, path)
}

func (c *NMClient) call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
	c.log.V(2).Info("calling", "path", path, "method", method)
	return c.object(path).CallWithContext(ctx, method, 0, args...)
}

func (c *NMClient) property(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	if err := c.call(ctx, path, propertiesGet, iface, name).Store(&v); err != nil {
		return dbus.Variant{}, fmt.Errorf("reading %s.%s: %w", iface, name, err)
	}
	return v, nil
}

// Connections returns every connection profile.
func (c *NMClient) Connections(ctx context.Context) ([]Connection, error) {
	var paths []dbus.ObjectPath
	if err := c.call(ctx, settingsPath, settingsIface+".ListConnections").Store(&paths); err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	connections := make([]Connection, 0, len(paths))
	for _, path := range paths {
		settings, err := c.settings(ctx, path)
		if err != nil {
			return nil, err
		}
		connections = append(connections, ConnectionFromSettings(path, settings))
	}
	return connections, nil
}

// Connection returns the profile with the given UUID.
func (c *NMClient) Connection(ctx context.Context, id string) (Connection, error) {
	path, err := c.connectionPath(ctx, id)
	if err != nil {
		return Connection{}, err
	}
	settings, err := c.settings(ctx, path)
	if err != nil {
		return Connection{}, err
	}
	return ConnectionFromSettings(path, settings), nil
}

func (c *NMClient) connectionPath(ctx context.Context, id string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := c.call(ctx, settingsPath, settingsIface+".GetConnectionByUuid", id).Store(&path)
	if err != nil {
		if dbusErrorName(err) == errInvalidConnection {
			return "", fmt.Errorf("%s: %w", id, ErrConnectionNotFound)
		}
		return "", fmt.Errorf("looking up connection %s: %w", id, err)
	}
	return path, nil
}

func (c *NMClient) settings(ctx context.Context, path dbus.ObjectPath) (Settings, error) {
	var settings Settings
	if err := c.call(ctx, path, connectionIface+".GetSettings").Store(&settings); err != nil {
		return nil, fmt.Errorf("reading settings of %s: %w", path, err)
	}
	return settings, nil
}

// AddConnection creates a profile and returns it as stored.
func (c *NMClient) AddConnection(ctx context.Context, conn Connection) (Connection, error) {
	settings := MergeConnectionSettings(Settings{}, conn)

	var path dbus.ObjectPath
	if err := c.call(ctx, settingsPath, settingsIface+".AddConnection", settings).Store(&path); err != nil {
		return Connection{}, fmt.Errorf("adding connection %s: %w", conn.Name, err)
	}

	stored, err := c.settings(ctx, path)
	if err != nil {
		return Connection{}, err
	}
	return ConnectionFromSettings(path, stored), nil
}

// UpdateConnection merges conn into the stored profile with the same UUID.
func (c *NMClient) UpdateConnection(ctx context.Context, conn Connection) error {
	path, err := c.connectionPath(ctx, conn.ID)
	if err != nil {
		return err
	}
	original, err := c.settings(ctx, path)
	if err != nil {
		return err
	}

	merged := MergeConnectionSettings(original, conn)
	if err := c.call(ctx, path, connectionIface+".Update", merged).Err; err != nil {
		return fmt.Errorf("updating connection %s: %w", conn.ID, err)
	}
	return nil
}

// DeleteConnection removes the profile with the given UUID.
func (c *NMClient) DeleteConnection(ctx context.Context, id string) error {
	path, err := c.connectionPath(ctx, id)
	if err != nil {
		return err
	}
	if err := c.call(ctx, path, connectionIface+".Delete").Err; err != nil {
		return fmt.Errorf("deleting connection %s: %w", id, err)
	}
	return nil
}

// ActivateConnection applies the profile with the given UUID, letting
// NetworkManager choose the device.
func (c *NMClient) ActivateConnection(ctx context.Context, id string) error {
	path, err := c.connectionPath(ctx, id)
	if err != nil {
		return err
	}
	var active dbus.ObjectPath
	err = c.call(ctx, nmPath, nmIface+".ActivateConnection", path, dbus.ObjectPath("/"), dbus.ObjectPath("/")).Store(&active)
	if err != nil {
		return fmt.Errorf("activating connection %s: %w", id, err)
	}
	c.log.V(1).Info("connection activated", "id", id, "active", active)
	return nil
}

// ActiveConnections returns the connections applied to devices.
func (c *NMClient) ActiveConnections(ctx context.Context) ([]ActiveConnection, error) {
	v, err := c.property(ctx, nmPath, nmIface, "ActiveConnections")
	if err != nil {
		return nil, err
	}
	var paths []dbus.ObjectPath
	if err := v.Store(&paths); err != nil {
		return nil, fmt.Errorf("decoding active connections: %w", err)
	}

	active := make([]ActiveConnection, 0, len(paths))
	for _, path := range paths {
		ac, err := c.activeConnection(ctx, path)
		if err != nil {
			return nil, err
		}
		active = append(active, ac)
	}
	return active, nil
}

func (c *NMClient) activeConnection(ctx context.Context, path dbus.ObjectPath) (ActiveConnection, error) {
	props := make(map[string]dbus.Variant, 5)
	for _, name := range []string{"Id", "Uuid", "Type", "State", "Ip4Config"} {
		v, err := c.property(ctx, path, activeIface, name)
		if err != nil {
			return ActiveConnection{}, err
		}
		props[name] = v
	}

	ac := ActiveConnection{
		ID:        variantString(props["Uuid"]),
		Name:      variantString(props["Id"]),
		Type:      ConnectionType(variantString(props["Type"])),
		State:     ConnectionState(variantUint32(props["State"])),
		Addresses: []IPAddress{},
	}

	ip4, _ := props["Ip4Config"].Value().(dbus.ObjectPath)
	if ip4 != "" && ip4 != "/" {
		v, err := c.property(ctx, ip4, ip4ConfigIface, "AddressData")
		if err != nil {
			return ActiveConnection{}, err
		}
		ac.Addresses = addressesFromVariant(v)
	}
	return ac, nil
}

// AccessPoints returns the access points seen by every wifi device.
func (c *NMClient) AccessPoints(ctx context.Context) ([]AccessPoint, error) {
	var devices []dbus.ObjectPath
	if err := c.call(ctx, nmPath, nmIface+".GetDevices").Store(&devices); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	points := []AccessPoint{}
	for _, device := range devices {
		v, err := c.property(ctx, device, deviceIface, "DeviceType")
		if err != nil {
			return nil, err
		}
		if variantUint32(v) != deviceTypeWifi {
			continue
		}

		v, err = c.property(ctx, device, wirelessIface, "AccessPoints")
		if err != nil {
			return nil, err
		}
		var paths []dbus.ObjectPath
		if err := v.Store(&paths); err != nil {
			return nil, fmt.Errorf("decoding access points of %s: %w", device, err)
		}
		for _, path := range paths {
			ap, err := c.accessPoint(ctx, path)
			if err != nil {
				return nil, err
			}
			points = append(points, ap)
		}
	}
	return points, nil
}

func (c *NMClient) accessPoint(ctx context.Context, path dbus.ObjectPath) (AccessPoint, error) {
	props := make(map[string]dbus.Variant, 6)
	for _, name := range []string{"Ssid", "HwAddress", "Strength", "Flags", "WpaFlags", "RsnFlags"} {
		v, err := c.property(ctx, path, apIface, name)
		if err != nil {
			return AccessPoint{}, err
		}
		props[name] = v
	}

	ap := AccessPoint{
		HWAddress: variantString(props["HwAddress"]),
		Security: SecurityFromFlags(
			variantUint32(props["Flags"]),
			variantUint32(props["WpaFlags"]),
			variantUint32(props["RsnFlags"]),
		),
	}
	if ssid, ok := props["Ssid"].Value().([]byte); ok {
		ap.SSID = string(ssid)
	}
	if strength, ok := props["Strength"].Value().(byte); ok {
		ap.Strength = strength
	}
	return ap, nil
}

// Hostname returns the persistent hostname known to NetworkManager.
func (c *NMClient) Hostname(ctx context.Context) (string, error) {
	v, err := c.property(ctx, settingsPath, settingsIface, "Hostname")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(variantString(v)), nil
}

func dbusErrorName(err error) string {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) {
		return ptr.Name
	}
	return ""
}
