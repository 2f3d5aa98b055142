package desktop

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutostartToggle(t *testing.T) {
	a := &Autostart{Dir: filepath.Join(t.TempDir(), "autostart"), Name: "pushrelay", Exec: "/opt/push relay/pushrelay"}
	assert.False(t, a.Enabled())

	require.NoError(t, a.Set(true))
	assert.True(t, a.Enabled())
	raw, err := os.ReadFile(a.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[Desktop Entry]\n")
	assert.Contains(t, string(raw), "Exec=\"/opt/push relay/pushrelay\"\n")

	// Idempotent both ways.
	require.NoError(t, a.Set(true))
	require.NoError(t, a.Set(false))
	require.NoError(t, a.Set(false))
	assert.False(t, a.Enabled())
}

type emitted struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

type fakeEmitter struct {
	mu    sync.Mutex
	calls []emitted
	err   error
}

func (f *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, emitted{path, name, values})
	return f.err
}

func TestBadgeEmitsLauncherEntryUpdate(t *testing.T) {
	e := &fakeEmitter{}
	b := NewBadge(e, "pushrelay.desktop")

	require.NoError(t, b.Set(3))
	require.NoError(t, b.Set(-1))
	require.Len(t, e.calls, 2)

	first := e.calls[0]
	assert.Equal(t, launcherEntryUpdate, first.name)
	require.Len(t, first.values, 2)
	assert.Equal(t, "application://pushrelay.desktop", first.values[0])
	props := first.values[1].(map[string]dbus.Variant)
	assert.Equal(t, int64(3), props["count"].Value())
	assert.Equal(t, true, props["count-visible"].Value())

	props = e.calls[1].values[1].(map[string]dbus.Variant)
	assert.Equal(t, int64(0), props["count"].Value())
	assert.Equal(t, false, props["count-visible"].Value())
}

func TestBadgeWithoutBusIsNoop(t *testing.T) {
	var b *Badge
	assert.NoError(t, b.Set(1))
	assert.NoError(t, NewBadge(nil, "x.desktop").Set(1))
}

func TestBadgeError(t *testing.T) {
	e := &fakeEmitter{err: errors.New("no bus")}
	assert.Error(t, NewBadge(e, "x.desktop").Set(1))
}

type fakeTarget struct {
	mu     sync.Mutex
	bounds proto.BrowserBounds
	sets   []proto.BrowserBounds
	err    error
}

func intp(v int) *int { return &v }

func newFakeTarget(b Bounds) *fakeTarget {
	return &fakeTarget{bounds: proto.BrowserBounds{
		Left: intp(b.X), Top: intp(b.Y), Width: intp(b.Width), Height: intp(b.Height),
		WindowState: proto.BrowserWindowStateNormal,
	}}
}

func (f *fakeTarget) GetWindow() (*proto.BrowserBounds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b := f.bounds
	return &b, nil
}

func (f *fakeTarget) SetWindow(b *proto.BrowserBounds) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, *b)
	if b.WindowState != "" {
		f.bounds.WindowState = b.WindowState
	}
	if b.Left != nil {
		f.bounds.Left = b.Left
	}
	if b.Top != nil {
		f.bounds.Top = b.Top
	}
	if b.Width != nil {
		f.bounds.Width = b.Width
	}
	if b.Height != nil {
		f.bounds.Height = b.Height
	}
	return nil
}

func TestWindowBoundsAndState(t *testing.T) {
	target := newFakeTarget(Bounds{X: 1, Y: 2, Width: 300, Height: 400})
	w := NewWindow(target, nil)

	b, ok := w.Bounds()
	require.True(t, ok)
	assert.Equal(t, Bounds{X: 1, Y: 2, Width: 300, Height: 400}, b)

	want := Bounds{X: 10, Y: 20, Width: 320, Height: 640}
	require.NoError(t, w.SetBounds(want))
	b, _ = w.Bounds()
	assert.Equal(t, want, b)

	require.NoError(t, w.Hide())
	assert.Equal(t, proto.BrowserWindowStateMinimized, target.bounds.WindowState)
	require.NoError(t, w.Show())
	assert.Equal(t, proto.BrowserWindowStateNormal, target.bounds.WindowState)
	assert.NoError(t, w.SetAlwaysOnTop(true))
}

func TestWindowBoundsUnavailable(t *testing.T) {
	target := newFakeTarget(Bounds{})
	target.err = errors.New("target closed")
	_, ok := NewWindow(target, nil).Bounds()
	assert.False(t, ok)
}

func TestWindowSampleReportsChanges(t *testing.T) {
	target := newFakeTarget(Bounds{X: 0, Y: 0, Width: 300, Height: 400})
	w := NewWindow(target, nil)

	var moves []Bounds
	var visibility []bool
	w.OnBoundsChanged(func(b Bounds) { moves = append(moves, b) })
	w.OnVisibilityChanged(func(v bool) { visibility = append(visibility, v) })

	w.Sample() // baseline
	assert.Empty(t, moves)

	target.mu.Lock()
	target.bounds.Left = intp(50)
	target.mu.Unlock()
	w.Sample()
	w.Sample()
	require.Len(t, moves, 1)
	assert.Equal(t, 50, moves[0].X)

	target.mu.Lock()
	target.bounds.WindowState = proto.BrowserWindowStateMinimized
	target.mu.Unlock()
	w.Sample()
	target.mu.Lock()
	target.bounds.WindowState = proto.BrowserWindowStateNormal
	target.mu.Unlock()
	w.Sample()

	assert.Equal(t, []bool{false, true}, visibility)
	assert.Len(t, moves, 1)
}

func TestIntegration(t *testing.T) {
	a := &Autostart{Dir: t.TempDir(), Name: "pushrelay", Exec: "/usr/bin/pushrelay"}
	e := &fakeEmitter{}
	d := New(a, NewBadge(e, "pushrelay.desktop"), nil)

	_, ok := d.Window()
	assert.False(t, ok)
	d.AttachWindow(NewWindow(newFakeTarget(Bounds{Width: 1, Height: 1}), nil))
	_, ok = d.Window()
	assert.True(t, ok)

	require.NoError(t, d.SetLaunchOnStartup(true))
	assert.True(t, a.Enabled())
	require.NoError(t, d.SetBadgeCount(2))
	assert.Len(t, e.calls, 1)
	assert.NoError(t, d.SetTrayOnly(true))
}
