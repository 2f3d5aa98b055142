package desktop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"pushrelay/poll"
)

// WatchInterval is how often Window.Watch samples the browser window.
const WatchInterval = 500 * time.Millisecond

// Target is the browser window a page lives in. *rod.Page implements it.
type Target interface {
	GetWindow() (*proto.BrowserBounds, error)
	SetWindow(bounds *proto.BrowserBounds) error
}

// Window drives the browser window hosting the web page over CDP. The
// protocol has no move or resize events, so Watch samples the window and
// reports changes.
type Window struct {
	target Target
	logger *zap.Logger

	mu        sync.Mutex
	known     bool
	last      Bounds
	visible   bool
	onBounds  []func(Bounds)
	onVisible []func(bool)
}

// NewWindow wraps target.
func NewWindow(target Target, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Window{target: target, logger: logger, visible: true}
}

func (w *Window) read() (Bounds, bool, error) {
	wb, err := w.target.GetWindow()
	if err != nil {
		return Bounds{}, false, err
	}
	if wb == nil || wb.Width == nil || wb.Height == nil {
		return Bounds{}, false, fmt.Errorf("window has no size")
	}
	b := Bounds{Width: *wb.Width, Height: *wb.Height}
	if wb.Left != nil {
		b.X = *wb.Left
	}
	if wb.Top != nil {
		b.Y = *wb.Top
	}
	return b, wb.WindowState != proto.BrowserWindowStateMinimized, nil
}

// Bounds returns the current window rectangle. The second result is false
// while the browser cannot report one.
func (w *Window) Bounds() (Bounds, bool) {
	b, _, err := w.read()
	if err != nil {
		return Bounds{}, false
	}
	return b, true
}

// SetBounds moves and resizes the window.
func (w *Window) SetBounds(b Bounds) error {
	// Chrome refuses bounds while the window is minimized or maximized.
	if err := w.target.SetWindow(&proto.BrowserBounds{WindowState: proto.BrowserWindowStateNormal}); err != nil {
		return fmt.Errorf("set window bounds: %w", err)
	}
	err := w.target.SetWindow(&proto.BrowserBounds{
		Left:   gson.Int(b.X),
		Top:    gson.Int(b.Y),
		Width:  gson.Int(b.Width),
		Height: gson.Int(b.Height),
	})
	if err != nil {
		return fmt.Errorf("set window bounds: %w", err)
	}
	w.mu.Lock()
	w.known, w.last, w.visible = true, b, true
	w.mu.Unlock()
	return nil
}

// SetAlwaysOnTop is not available over CDP; the request is logged.
func (w *Window) SetAlwaysOnTop(on bool) error {
	w.logger.Debug("always on top is not supported by the browser window", zap.Bool("on", on))
	return nil
}

// Show restores the window.
func (w *Window) Show() error {
	return w.setVisible(true)
}

// Hide minimizes the window.
func (w *Window) Hide() error {
	return w.setVisible(false)
}

func (w *Window) setVisible(visible bool) error {
	state := proto.BrowserWindowStateNormal
	if !visible {
		state = proto.BrowserWindowStateMinimized
	}
	if err := w.target.SetWindow(&proto.BrowserBounds{WindowState: state}); err != nil {
		return fmt.Errorf("set window state %s: %w", state, err)
	}
	w.mu.Lock()
	w.visible = visible
	w.mu.Unlock()
	return nil
}

// OnBoundsChanged registers fn for moves and resizes seen by Watch.
func (w *Window) OnBoundsChanged(fn func(Bounds)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onBounds = append(w.onBounds, fn)
}

// OnVisibilityChanged registers fn for minimize and restore seen by Watch.
func (w *Window) OnVisibilityChanged(fn func(bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onVisible = append(w.onVisible, fn)
}

// Watch samples the window until ctx ends.
func (w *Window) Watch(ctx context.Context, clock poll.Clock) {
	if clock == nil {
		clock = poll.RealClock()
	}
	ticker := clock.NewTicker(WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			w.Sample()
		}
	}
}

// Sample reads the window once and notifies observers of any change.
func (w *Window) Sample() {
	b, visible, err := w.read()
	if err != nil {
		w.logger.Debug("window sample failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	first := !w.known
	moved := !first && b != w.last && visible
	shown := !first && visible != w.visible
	w.known = true
	if visible {
		// Minimized windows report stale or zero geometry.
		w.last = b
	}
	w.visible = visible
	onBounds := append([]func(Bounds){}, w.onBounds...)
	onVisible := append([]func(bool){}, w.onVisible...)
	w.mu.Unlock()

	if moved {
		for _, fn := range onBounds {
			fn(b)
		}
	}
	if shown {
		for _, fn := range onVisible {
			fn(visible)
		}
	}
}
