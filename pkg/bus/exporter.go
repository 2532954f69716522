package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/manager"
	"github.com/tierone/installd/pkg/types"
)

// Connect opens a connection to the system or session bus.
func Connect(kind config.BusKind) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if kind == config.BusSession {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s bus: %w", kind, err)
	}
	return conn, nil
}

// managerObject implements the methods of the Manager1 interface.
type managerObject struct {
	ctx context.Context
	mgr *manager.Manager
	log logr.Logger
}

// Probe runs the config phase.
func (o *managerObject) Probe() *dbus.Error {
	return o.dbusError(o.mgr.RunConfigPhase(o.ctx))
}

// Commit runs the install phase.
func (o *managerObject) Commit() *dbus.Error {
	return o.dbusError(o.mgr.RunInstallPhase(o.ctx))
}

// CanInstall reports whether the install phase may run.
func (o *managerObject) CanInstall() (bool, *dbus.Error) {
	return o.mgr.CanInstall(), nil
}

func (o *managerObject) dbusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, manager.ErrBusy):
		return dbus.NewError(BusyError, []interface{}{err.Error()})
	case errors.Is(err, manager.ErrInvalidSettings):
		return dbus.MakeFailedError(errors.New("Installation settings are invalid"))
	default:
		o.log.Error(err, "method failed")
		return dbus.MakeFailedError(err)
	}
}

// Exporter publishes a manager on a bus connection and keeps its
// properties in sync with the manager state.
type Exporter struct {
	conn   *dbus.Conn
	mgr    *manager.Manager
	log    logr.Logger
	props  *prop.Properties
	closed atomic.Bool
}

// Export exports mgr on conn at ObjectPath. Method calls run with ctx.
func Export(ctx context.Context, conn *dbus.Conn, mgr *manager.Manager, log logr.Logger) (*Exporter, error) {
	e := &Exporter{
		conn: conn,
		mgr:  mgr,
		log:  log.WithName("dbus"),
	}

	obj := &managerObject{ctx: ctx, mgr: mgr, log: e.log}
	if err := conn.Export(obj, ObjectPath, ManagerIface); err != nil {
		return nil, fmt.Errorf("exporting %s: %w", ManagerIface, err)
	}

	props, err := prop.Export(conn, ObjectPath, propertyMap(mgr))
	if err != nil {
		return nil, fmt.Errorf("exporting properties: %w", err)
	}
	e.props = props

	node := introspectNode(obj, props)
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("exporting introspection: %w", err)
	}

	e.subscribe()
	return e, nil
}

func propertyMap(mgr *manager.Manager) prop.Map {
	snap := mgr.Progress().Snapshot()
	progress := make(map[string]*prop.Prop)
	for name, v := range progressValues(snap) {
		progress[name] = &prop.Prop{Value: v, Emit: prop.EmitFalse}
	}

	return prop.Map{
		ManagerIface: {
			"InstallationPhases":       {Value: labelTable(types.Phases()), Emit: prop.EmitConst},
			"CurrentInstallationPhase": {Value: uint32(mgr.Phase()), Emit: prop.EmitTrue},
			"BusyServices":             {Value: busyValue(mgr.BusySubsystems()), Emit: prop.EmitTrue},
		},
		ProgressIface: progress,
		ServiceStatusIface: {
			"AllValues": {Value: labelTable(types.ServiceStatuses()), Emit: prop.EmitConst},
			"Current":   {Value: uint32(mgr.Status()), Emit: prop.EmitTrue},
		},
	}
}

func introspectNode(obj *managerObject, props *prop.Properties) *introspect.Node {
	return &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       ManagerIface,
				Methods:    introspect.Methods(obj),
				Properties: sortedProperties(props.Introspection(ManagerIface)),
			},
			{
				Name:       ProgressIface,
				Properties: emitsChanged(sortedProperties(props.Introspection(ProgressIface))),
			},
			{
				Name:       ServiceStatusIface,
				Properties: sortedProperties(props.Introspection(ServiceStatusIface)),
			},
		},
	}
}

func sortedProperties(p []introspect.Property) []introspect.Property {
	sort.Slice(p, func(i, j int) bool { return p[i].Name < p[j].Name })
	return p
}

// emitsChanged marks properties whose changes are signalled by the
// exporter itself rather than by prop.
func emitsChanged(p []introspect.Property) []introspect.Property {
	for i := range p {
		p[i].Annotations = []introspect.Annotation{{Name: emitsChangedSignal, Value: "true"}}
	}
	return p
}

func (e *Exporter) subscribe() {
	e.mgr.OnPhaseChange(func(p types.Phase) error {
		return e.update(ManagerIface, "CurrentInstallationPhase", uint32(p))
	})
	e.mgr.OnBusyChange(func(names []string) error {
		return e.update(ManagerIface, "BusyServices", busyValue(names))
	})
	e.mgr.OnStatusChange(func(s types.ServiceStatus) error {
		return e.update(ServiceStatusIface, "Current", uint32(s))
	})
	e.mgr.Progress().OnChange(e.updateProgress)
}

// updateProgress stores the snapshot and announces it with a single
// PropertiesChanged signal carrying every Progress1 property.
func (e *Exporter) updateProgress(s types.ProgressSnapshot) error {
	if e.closed.Load() {
		return nil
	}
	for name, v := range progressValues(s) {
		if err := e.update(ProgressIface, name, v); err != nil {
			return err
		}
	}
	if err := e.conn.Emit(ObjectPath, propertiesChanged, ProgressIface, progressChanged(s), []string{}); err != nil {
		return fmt.Errorf("emitting %s changes: %w", ProgressIface, err)
	}
	return nil
}

// update sets a property and emits PropertiesChanged. SetMust panics on
// emission failures, which are returned as errors here.
func (e *Exporter) update(iface, name string, v interface{}) (err error) {
	if e.closed.Load() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("updating %s.%s: %v", iface, name, r)
		}
	}()
	e.props.SetMust(iface, name, v)
	return nil
}

// RequestName claims ServiceName on the bus.
func (e *Exporter) RequestName() error {
	reply, err := e.conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", ServiceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", ServiceName)
	}
	e.log.Info("bus name acquired", "name", ServiceName)
	return nil
}

// Close stops property updates and unexports the object.
func (e *Exporter) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, iface := range []string{ManagerIface, "org.freedesktop.DBus.Properties", "org.freedesktop.DBus.Introspectable"} {
		if err := e.conn.Export(nil, ObjectPath, iface); err != nil {
			return fmt.Errorf("unexporting %s: %w", iface, err)
		}
	}
	return nil
}
