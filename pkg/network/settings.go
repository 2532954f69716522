package network

import (
	"encoding/binary"
	"net/netip"

	"github.com/godbus/dbus/v5"
)

// Settings is the a{sa{sv}} settings dictionary of a NetworkManager
// connection.
type Settings map[string]map[string]dbus.Variant

const (
	sectionConnection = "connection"
	sectionIPv4       = "ipv4"
	sectionWireless   = "802-11-wireless"
	sectionSecurity   = "802-11-wireless-security"
)

// Access point flags, see NM80211ApFlags and NM80211ApSecurityFlags.
const (
	apFlagPrivacy     = 0x1
	apSecKeyMgmt8021X = 0x200
)

// ConnectionFromSettings builds the flat model of a connection profile.
func ConnectionFromSettings(path dbus.ObjectPath, s Settings) Connection {
	conn := s[sectionConnection]
	c := Connection{
		ID:        variantString(conn["uuid"]),
		Name:      variantString(conn["id"]),
		Path:      string(path),
		Type:      ConnectionType(variantString(conn["type"])),
		Interface: variantString(conn["interface-name"]),
	}

	ipv4 := s[sectionIPv4]
	c.IPv4 = IPv4{
		Method:      variantString(ipv4["method"]),
		Addresses:   addressesFromVariant(ipv4["address-data"]),
		Gateway:     variantString(ipv4["gateway"]),
		NameServers: []string{},
	}
	if dns, ok := ipv4["dns"].Value().([]uint32); ok {
		for _, v := range dns {
			c.IPv4.NameServers = append(c.IPv4.NameServers, IPv4FromUint32(v))
		}
	}

	if wireless, ok := s[sectionWireless]; ok {
		w := &Wireless{
			Mode: variantString(wireless["mode"]),
		}
		if ssid, ok := wireless["ssid"].Value().([]byte); ok {
			w.SSID = string(ssid)
		}
		if hidden, ok := wireless["hidden"].Value().(bool); ok {
			w.Hidden = hidden
		}
		if sec, ok := s[sectionSecurity]; ok {
			w.Security = variantString(sec["key-mgmt"])
		}
		c.Wireless = w
	}

	return c
}

// MergeConnectionSettings returns a copy of original updated with the
// values of c. Sections and keys c does not model are kept.
func MergeConnectionSettings(original Settings, c Connection) Settings {
	merged := make(Settings, len(original)+2)
	for section, values := range original {
		copied := make(map[string]dbus.Variant, len(values))
		for k, v := range values {
			copied[k] = v
		}
		merged[section] = copied
	}

	conn := section(merged, sectionConnection)
	conn["id"] = dbus.MakeVariant(c.Name)
	if c.ID != "" {
		conn["uuid"] = dbus.MakeVariant(c.ID)
	}
	if c.Type != "" {
		conn["type"] = dbus.MakeVariant(string(c.Type))
	}
	if c.Interface != "" {
		conn["interface-name"] = dbus.MakeVariant(c.Interface)
	}

	ipv4 := section(merged, sectionIPv4)
	// "addresses" is the deprecated form of "address-data".
	delete(ipv4, "addresses")

	method := c.IPv4.Method
	if method == "" {
		method = "auto"
	}
	ipv4["method"] = dbus.MakeVariant(method)

	addressData := make([]map[string]dbus.Variant, 0, len(c.IPv4.Addresses))
	for _, a := range c.IPv4.Addresses {
		addressData = append(addressData, map[string]dbus.Variant{
			"address": dbus.MakeVariant(a.Address),
			"prefix":  dbus.MakeVariant(a.Prefix),
		})
	}
	ipv4["address-data"] = dbus.MakeVariant(addressData)

	if len(c.IPv4.Addresses) > 0 && c.IPv4.Gateway != "" {
		ipv4["gateway"] = dbus.MakeVariant(c.IPv4.Gateway)
	} else {
		delete(ipv4, "gateway")
	}

	dns := make([]uint32, 0, len(c.IPv4.NameServers))
	for _, ns := range c.IPv4.NameServers {
		if v, ok := IPv4ToUint32(ns); ok {
			dns = append(dns, v)
		}
	}
	ipv4["dns"] = dbus.MakeVariant(dns)

	if w := c.Wireless; w != nil {
		wireless := section(merged, sectionWireless)
		wireless["ssid"] = dbus.MakeVariant([]byte(w.SSID))
		wireless["hidden"] = dbus.MakeVariant(w.Hidden)
		mode := w.Mode
		if mode == "" {
			mode = "infrastructure"
		}
		wireless["mode"] = dbus.MakeVariant(mode)

		if w.Security != "" {
			sec := section(merged, sectionSecurity)
			sec["key-mgmt"] = dbus.MakeVariant(w.Security)
			if w.Password != "" {
				sec["psk"] = dbus.MakeVariant(w.Password)
			}
		}
	}

	return merged
}

func section(s Settings, name string) map[string]dbus.Variant {
	values, ok := s[name]
	if !ok {
		values = make(map[string]dbus.Variant)
		s[name] = values
	}
	return values
}

// SecurityFromFlags returns the security protocols an access point
// supports.
func SecurityFromFlags(flags, wpaFlags, rsnFlags uint32) []string {
	security := []string{}

	if flags&apFlagPrivacy != 0 && wpaFlags == 0 && rsnFlags == 0 {
		security = append(security, "WEP")
	}
	if wpaFlags > 0 {
		security = append(security, "WPA1")
	}
	if rsnFlags > 0 {
		security = append(security, "WPA2")
	}
	if (wpaFlags|rsnFlags)&apSecKeyMgmt8021X != 0 {
		security = append(security, "802.1X")
	}

	return security
}

// IPv4FromUint32 converts an address as NetworkManager stores it (network
// byte order read as a little endian integer) to dotted notation.
func IPv4FromUint32(v uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b).String()
}

// IPv4ToUint32 is the inverse of IPv4FromUint32.
func IPv4ToUint32(s string) (uint32, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, false
	}
	b := addr.As4()
	return binary.LittleEndian.Uint32(b[:]), true
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

func addressesFromVariant(v dbus.Variant) []IPAddress {
	addresses := []IPAddress{}
	data, ok := v.Value().([]map[string]dbus.Variant)
	if !ok {
		return addresses
	}
	for _, entry := range data {
		addresses = append(addresses, IPAddress{
			Address: variantString(entry["address"]),
			Prefix:  variantUint32(entry["prefix"]),
		})
	}
	return addresses
}

func variantUint32(v dbus.Variant) uint32 {
	switch n := v.Value().(type) {
	case uint32:
		return n
	case int32:
		return uint32(n)
	case uint64:
		return uint32(n)
	case int64:
		return uint32(n)
	default:
		return 0
	}
}
