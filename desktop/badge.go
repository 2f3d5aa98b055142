package desktop

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const launcherEntryUpdate = "com.canonical.Unity.LauncherEntry.Update"

// Emitter sends D-Bus signals. *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Badge shows a count on the launcher icon through the Unity LauncherEntry
// protocol, which GNOME docks and KDE also understand.
type Badge struct {
	conn   Emitter
	appURI string
	path   dbus.ObjectPath
}

// NewBadge returns a Badge for the application whose desktop file is
// desktopID (for example "pushrelay.desktop").
func NewBadge(conn Emitter, desktopID string) *Badge {
	return &Badge{
		conn:   conn,
		appURI: "application://" + desktopID,
		path:   dbus.ObjectPath("/com/canonical/unity/launcherentry/pushrelay"),
	}
}

// Set shows n, or hides the badge when n is zero or less.
func (b *Badge) Set(n int) error {
	if b == nil || b.conn == nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	props := map[string]dbus.Variant{
		"count":         dbus.MakeVariant(int64(n)),
		"count-visible": dbus.MakeVariant(n > 0),
	}
	if err := b.conn.Emit(b.path, launcherEntryUpdate, b.appURI, props); err != nil {
		return fmt.Errorf("badge count: %w", err)
	}
	return nil
}
