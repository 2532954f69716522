// Package bus exports the manager on D-Bus.
package bus

import (
	"github.com/godbus/dbus/v5"
	"github.com/tierone/installd/pkg/types"
)

const (
	// ServiceName is the well-known bus name of the installer.
	ServiceName = "org.tierone.Installd"

	// ObjectPath is where the manager is exported.
	ObjectPath = dbus.ObjectPath("/org/tierone/Installd/Manager1")

	ManagerIface       = ServiceName + ".Manager1"
	ProgressIface      = ServiceName + ".Progress1"
	ServiceStatusIface = ServiceName + ".ServiceStatus1"

	// BusyError is the error name returned when the manager is busy.
	BusyError = ServiceName + ".Error.Busy"

	propertiesChanged  = "org.freedesktop.DBus.Properties.PropertiesChanged"
	emitsChangedSignal = "org.freedesktop.DBus.Property.EmitsChangedSignal"
)

// Step is the (us) encoding of the current progress step.
type Step struct {
	ID          uint32
	Description string
}

func labelTable(infos []types.PhaseInfo) []map[string]dbus.Variant {
	table := make([]map[string]dbus.Variant, 0, len(infos))
	for _, info := range infos {
		table = append(table, map[string]dbus.Variant{
			"id":    dbus.MakeVariant(info.ID),
			"label": dbus.MakeVariant(info.Label),
		})
	}
	return table
}

// progressValues returns the Progress1 property values for a snapshot.
func progressValues(s types.ProgressSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"TotalSteps":  uint32(s.TotalSteps),
		"CurrentStep": Step{ID: uint32(s.CurrentStep), Description: s.Description},
		"Finished":    s.Finished,
	}
}

// progressChanged is the changed-properties argument of the Progress1
// PropertiesChanged signal.
func progressChanged(s types.ProgressSnapshot) map[string]dbus.Variant {
	values := progressValues(s)
	changed := make(map[string]dbus.Variant, len(values))
	for name, v := range values {
		changed[name] = dbus.MakeVariant(v)
	}
	return changed
}

func busyValue(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
