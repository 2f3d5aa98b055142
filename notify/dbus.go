package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsService + ".Notify"
)

// DBusDisplayer shows notifications through the freedesktop notification
// service on the session bus.
type DBusDisplayer struct {
	obj     dbus.BusObject
	appName string
	icon    string
}

// NewDBusDisplayer returns a displayer on conn.
func NewDBusDisplayer(conn *dbus.Conn, appName, icon string) *DBusDisplayer {
	return &DBusDisplayer{
		obj:     conn.Object(notificationsService, dbus.ObjectPath(notificationsPath)),
		appName: appName,
		icon:    icon,
	}
}

// Show implements Displayer.
func (d *DBusDisplayer) Show(ctx context.Context, n Notification) (uint32, error) {
	hints := map[string]dbus.Variant{
		// The relay plays its own sound.
		"suppress-sound": dbus.MakeVariant(true),
		"desktop-entry":  dbus.MakeVariant(d.appName),
	}
	call := d.obj.CallWithContext(ctx, notifyMethod, 0,
		d.appName, uint32(0), d.icon, n.Title, n.Body, []string{}, hints, int32(-1))
	if call.Err != nil {
		return 0, fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return id, nil
}
