package settings

import (
	"errors"
	"sync"

	"pushrelay/desktop"
)

type fakeWindow struct {
	mu             sync.Mutex
	bounds         desktop.Bounds
	hasBounds      bool
	topmost        bool
	visible        bool
	setBoundsCalls int
	onBounds       []func(desktop.Bounds)
	onVisible      []func(bool)
}

func (w *fakeWindow) Bounds() (desktop.Bounds, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds, w.hasBounds
}

func (w *fakeWindow) SetBounds(b desktop.Bounds) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bounds = b
	w.setBoundsCalls++
	return nil
}

func (w *fakeWindow) SetAlwaysOnTop(on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.topmost = on
	return nil
}

func (w *fakeWindow) Show() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
	return nil
}

func (w *fakeWindow) Hide() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = false
	return nil
}

func (w *fakeWindow) OnBoundsChanged(fn func(desktop.Bounds)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onBounds = append(w.onBounds, fn)
}

func (w *fakeWindow) OnVisibilityChanged(fn func(bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onVisible = append(w.onVisible, fn)
}

func (w *fakeWindow) observers() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.onBounds), len(w.onVisible)
}

// move simulates the user dragging the window.
func (w *fakeWindow) move(b desktop.Bounds) {
	w.mu.Lock()
	w.bounds = b
	fns := append([]func(desktop.Bounds){}, w.onBounds...)
	w.mu.Unlock()
	for _, fn := range fns {
		fn(b)
	}
}

func (w *fakeWindow) state() (desktop.Bounds, bool, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds, w.topmost, w.visible
}

type fakeDesktop struct {
	mu        sync.Mutex
	window    *fakeWindow
	launch    []bool
	badges    []int
	trayOnly  []bool
	launchErr error
}

func (d *fakeDesktop) SetLaunchOnStartup(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.launchErr != nil {
		return d.launchErr
	}
	d.launch = append(d.launch, enabled)
	return nil
}

func (d *fakeDesktop) SetBadgeCount(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.badges = append(d.badges, n)
	return nil
}

func (d *fakeDesktop) SetTrayOnly(trayOnly bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trayOnly = append(d.trayOnly, trayOnly)
	return nil
}

func (d *fakeDesktop) Window() (Window, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window == nil {
		return nil, false
	}
	return d.window, true
}

func (d *fakeDesktop) attach(w *fakeWindow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = w
}

func (d *fakeDesktop) trayOnlyCalls() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.trayOnly...)
}

var errLaunch = errors.New("autostart unavailable")
