package desktop

import (
	"sync"

	"go.uber.org/zap"
)

// Integration bundles the OS hooks the settings entries drive.
type Integration struct {
	autostart *Autostart
	badge     *Badge
	logger    *zap.Logger

	mu     sync.Mutex
	window *Window
}

// New returns an Integration. Either collaborator may be nil.
func New(autostart *Autostart, badge *Badge, logger *zap.Logger) *Integration {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Integration{autostart: autostart, badge: badge, logger: logger}
}

// SetLaunchOnStartup toggles the autostart entry.
func (d *Integration) SetLaunchOnStartup(enabled bool) error {
	if d.autostart == nil {
		return nil
	}
	if err := d.autostart.Set(enabled); err != nil {
		return err
	}
	d.logger.Debug("launch on startup", zap.Bool("enabled", enabled), zap.String("entry", d.autostart.Path()))
	return nil
}

// SetBadgeCount updates the launcher badge.
func (d *Integration) SetBadgeCount(n int) error {
	return d.badge.Set(n)
}

// SetTrayOnly records the preference. A browser window cannot leave the
// taskbar, so the tray process keeps it visible.
func (d *Integration) SetTrayOnly(trayOnly bool) error {
	d.logger.Debug("tray only", zap.Bool("trayOnly", trayOnly))
	return nil
}

// AttachWindow makes w the main window.
func (d *Integration) AttachWindow(w *Window) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = w
}

// Window returns the main window once one is attached.
func (d *Integration) Window() (*Window, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window, d.window != nil
}
