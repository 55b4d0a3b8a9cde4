package service

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	systemdDest      = "org.freedesktop.systemd1"
	systemdPath      = dbus.ObjectPath("/org/freedesktop/systemd1")
	managerInterface = "org.freedesktop.systemd1.Manager"
	noSuchUnitError  = "org.freedesktop.systemd1.NoSuchUnit"
)

// DBusBackend talks to the systemd manager over the system bus.
type DBusBackend struct {
	conn *dbus.Conn
}

// NewDBusBackend opens a private system bus connection owned by the
// backend; Close releases it.
func NewDBusBackend() (*DBusBackend, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	return &DBusBackend{conn: conn}, nil
}

func (b *DBusBackend) manager() dbus.BusObject {
	return b.conn.Object(systemdDest, systemdPath)
}

func (b *DBusBackend) StartUnit(ctx context.Context, unit string) error {
	call := b.manager().CallWithContext(ctx, managerInterface+".StartUnit", 0, unit, "replace")
	if call.Err != nil {
		return fmt.Errorf("start %s: %w", unit, call.Err)
	}
	return nil
}

func (b *DBusBackend) StopUnit(ctx context.Context, unit string) error {
	call := b.manager().CallWithContext(ctx, managerInterface+".StopUnit", 0, unit, "replace")
	if call.Err != nil {
		return fmt.Errorf("stop %s: %w", unit, call.Err)
	}
	return nil
}

// IsActive reads the unit's ActiveState. Units that are not loaded are
// inactive.
func (b *DBusBackend) IsActive(ctx context.Context, unit string) (bool, error) {
	path, err := b.unitPath(ctx, unit)
	if err != nil {
		var dbusErr dbus.Error
		if asDBusError(err, &dbusErr) && dbusErr.Name == noSuchUnitError {
			return false, nil
		}
		return false, err
	}

	variant, err := b.conn.Object(systemdDest, path).GetProperty("org.freedesktop.systemd1.Unit.ActiveState")
	if err != nil {
		return false, fmt.Errorf("active state of %s: %w", unit, err)
	}
	state, _ := variant.Value().(string)
	return activeState(state), nil
}

func (b *DBusBackend) unitPath(ctx context.Context, unit string) (dbus.ObjectPath, error) {
	call := b.manager().CallWithContext(ctx, managerInterface+".GetUnit", 0, unit)
	if call.Err != nil {
		return "", call.Err
	}
	path, ok := call.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("unexpected unit path type")
	}
	return path, nil
}

// Close releases the bus connection.
func (b *DBusBackend) Close() error {
	return b.conn.Close()
}

func activeState(state string) bool {
	switch state {
	case "active", "reloading", "activating", "deactivating":
		return true
	default:
		return false
	}
}

func asDBusError(err error, target *dbus.Error) bool {
	switch e := err.(type) {
	case dbus.Error:
		*target = e
		return true
	case *dbus.Error:
		*target = *e
		return true
	default:
		return false
	}
}
