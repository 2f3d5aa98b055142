package settings

import "pushrelay/desktop"

// Desktop is the OS integration entries apply their values to.
type Desktop interface {
	SetLaunchOnStartup(enabled bool) error
	SetBadgeCount(n int) error
	SetTrayOnly(trayOnly bool) error
	// Window returns the main window once it exists.
	Window() (Window, bool)
}

// Window is the main application window.
type Window interface {
	Bounds() (desktop.Bounds, bool)
	SetBounds(b desktop.Bounds) error
	SetAlwaysOnTop(on bool) error
	Show() error
	Hide() error
	OnBoundsChanged(fn func(desktop.Bounds))
	OnVisibilityChanged(fn func(visible bool))
}

// NopDesktop ignores every call and never has a window.
type NopDesktop struct{}

func (NopDesktop) SetLaunchOnStartup(bool) error { return nil }
func (NopDesktop) SetBadgeCount(int) error       { return nil }
func (NopDesktop) SetTrayOnly(bool) error        { return nil }
func (NopDesktop) Window() (Window, bool)        { return nil, false }
