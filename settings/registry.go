// Package settings holds the relay's user preferences: a static list of typed
// entries, each with a default, a coercion, and optional hooks that run at
// startup or apply the value to the operating system.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"pushrelay/poll"
)

const (
	// WindowPollInterval is how often entries bound to the window look for it.
	WindowPollInterval = time.Second
	// DefaultDebounce delays persistence of high-frequency entries.
	DefaultDebounce = time.Second
)

// ErrUnknownKey matches every *UnknownKeyError.
var ErrUnknownKey = errors.New("unknown settings key")

// UnknownKeyError is returned for a keypath with no registered entry.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown settings key %q", e.Key)
}

func (e *UnknownKeyError) Is(target error) bool {
	return target == ErrUnknownKey
}

// Entry is one registered setting.
type Entry struct {
	Keypath string
	Default any

	// Coerce converts a raw value (from Set or from the store) to the
	// entry's type. Nil stores values as given.
	Coerce func(v any) (any, error)

	// Init runs once during InitializeAll.
	Init func(r *Registry, e *Entry) error

	// Implement applies the value's side effect. It must be safe to call
	// repeatedly with the same value.
	Implement func(r *Registry, v any) error

	// Debounce delays persistence; the latest value wins.
	Debounce bool
}

func (e *Entry) coerce(v any) (any, error) {
	if e.Coerce == nil {
		return v, nil
	}
	return e.Coerce(v)
}

// Options configures a Registry.
type Options struct {
	Desktop      Desktop
	Logger       *zap.Logger
	Clock        poll.Clock
	PollInterval time.Duration
	Debounce     time.Duration
}

// Registry dispatches get/set/init/implement to registered entries.
type Registry struct {
	store   Store
	entries []*Entry
	index   map[string]*Entry

	desktop      Desktop
	logger       *zap.Logger
	clock        poll.Clock
	pollInterval time.Duration
	debounce     time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	pollers poll.Group

	mu      sync.Mutex
	pending map[string]any
	timers  map[string]*time.Timer
	closed  bool
}

// NewRegistry registers entries in order. Keypaths must be unique.
func NewRegistry(store Store, entries []*Entry, opts Options) (*Registry, error) {
	if store == nil {
		return nil, errors.New("settings: nil store")
	}
	r := &Registry{
		store:        store,
		index:        make(map[string]*Entry, len(entries)),
		desktop:      opts.Desktop,
		logger:       opts.Logger,
		clock:        opts.Clock,
		pollInterval: opts.PollInterval,
		debounce:     opts.Debounce,
		pending:      map[string]any{},
		timers:       map[string]*time.Timer{},
	}
	if r.desktop == nil {
		r.desktop = NopDesktop{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.clock == nil {
		r.clock = poll.RealClock()
	}
	if r.pollInterval <= 0 {
		r.pollInterval = WindowPollInterval
	}
	if r.debounce <= 0 {
		r.debounce = DefaultDebounce
	}
	for _, e := range entries {
		if e == nil || e.Keypath == "" {
			return nil, errors.New("settings: entry without keypath")
		}
		if _, dup := r.index[e.Keypath]; dup {
			return nil, fmt.Errorf("settings: duplicate keypath %q", e.Keypath)
		}
		r.index[e.Keypath] = e
		r.entries = append(r.entries, e)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r, nil
}

func (r *Registry) entry(key string) (*Entry, error) {
	e, ok := r.index[key]
	if !ok {
		return nil, &UnknownKeyError{Key: key}
	}
	return e, nil
}

// Desktop returns the OS integration the registry was built with.
func (r *Registry) Desktop() Desktop { return r.desktop }

// Logger returns the registry's logger.
func (r *Registry) Logger() *zap.Logger { return r.logger }

// Keys returns registered keypaths in registration order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.entries))
	for i, e := range r.entries {
		keys[i] = e.Keypath
	}
	return keys
}

// Defaults returns every entry's default keyed by keypath.
func (r *Registry) Defaults() map[string]any {
	out := make(map[string]any, len(r.entries))
	for _, e := range r.entries {
		out[e.Keypath] = e.Default
	}
	return out
}

// Get returns the value for key after coercion. A missing or uncoercible
// stored value yields the default.
func (r *Registry) Get(key string) (any, error) {
	e, err := r.entry(key)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	v, pending := r.pending[key]
	r.mu.Unlock()
	if !pending {
		var ok bool
		v, ok = r.store.Get(key)
		if !ok {
			return e.Default, nil
		}
	}

	c, err := e.coerce(v)
	if err != nil {
		r.logger.Warn("stored setting has wrong type, using default",
			zap.String("key", key), zap.Any("value", v), zap.Error(err))
		return e.Default, nil
	}
	return c, nil
}

// Set coerces v, applies it through the entry's Implement hook and then
// persists it. A failed Implement leaves the stored value untouched.
func (r *Registry) Set(key string, v any) error {
	e, err := r.entry(key)
	if err != nil {
		return err
	}
	c, err := e.coerce(v)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	r.logger.Debug("setting set", zap.String("key", key), zap.Any("value", c))

	if e.Implement != nil {
		if err := e.Implement(r, c); err != nil {
			return fmt.Errorf("implement %s: %w", key, err)
		}
	}
	return r.persist(e, c)
}

// Record persists a value that already took effect outside the registry,
// such as a window moved by the user. Implement is not called.
func (r *Registry) Record(key string, v any) error {
	e, err := r.entry(key)
	if err != nil {
		return err
	}
	c, err := e.coerce(v)
	if err != nil {
		return fmt.Errorf("record %s: %w", key, err)
	}
	return r.persist(e, c)
}

// Init runs the entry's Init hook.
func (r *Registry) Init(key string) error {
	e, err := r.entry(key)
	if err != nil {
		return err
	}
	r.logger.Debug("setting init", zap.String("key", key))
	if e.Init == nil {
		return nil
	}
	if err := e.Init(r, e); err != nil {
		return fmt.Errorf("init %s: %w", key, err)
	}
	return nil
}

// Implement applies v through the entry's Implement hook without persisting.
func (r *Registry) Implement(key string, v any) error {
	e, err := r.entry(key)
	if err != nil {
		return err
	}
	if e.Implement == nil {
		return nil
	}
	c, err := e.coerce(v)
	if err != nil {
		return fmt.Errorf("implement %s: %w", key, err)
	}
	r.logger.Debug("setting implement", zap.String("key", key), zap.Any("value", c))
	if err := e.Implement(r, c); err != nil {
		return fmt.Errorf("implement %s: %w", key, err)
	}
	return nil
}

// InitializeAll runs every Init in registration order, one at a time. Work an
// Init starts in the background is not waited for. Every entry is attempted;
// the failures are joined.
func (r *Registry) InitializeAll() error {
	var errs []error
	for _, e := range r.entries {
		if err := r.Init(e.Keypath); err != nil {
			r.logger.Warn("setting init failed", zap.String("key", e.Keypath), zap.Error(err))
			errs = append(errs, err)
		}
	}
	r.logger.Debug("settings initialized", zap.Int("entries", len(r.entries)))
	return errors.Join(errs...)
}

// ApplyDefaults merges the stored values over the declared defaults and
// writes the result back. Nested records gain missing sub-keys.
func (r *Registry) ApplyDefaults() error {
	defaults, err := normalize(r.Defaults())
	if err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	merged := mergeDefaults(r.store.GetAll(), defaults.(map[string]any))
	if err := r.store.SetAll(merged, SetAllOptions{}); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	return nil
}

// mergeDefaults fills dst with every key of defaults that dst lacks.
func mergeDefaults(dst, defaults map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, dv := range defaults {
		cur, ok := dst[k]
		if !ok {
			dst[k] = deepCopy(dv)
			continue
		}
		cm, curIsMap := cur.(map[string]any)
		dm, defIsMap := dv.(map[string]any)
		if curIsMap && defIsMap {
			dst[k] = mergeDefaults(cm, dm)
		}
	}
	return dst
}

// RemoveLegacy deletes stored top-level keys that have no entry and returns
// them sorted.
func (r *Registry) RemoveLegacy() ([]string, error) {
	var removed []string
	var errs []error
	for k := range r.store.GetAll() {
		if _, ok := r.index[k]; ok {
			continue
		}
		if err := r.store.Delete(k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
			continue
		}
		r.logger.Debug("removed legacy setting", zap.String("key", k))
		removed = append(removed, k)
	}
	sort.Strings(removed)
	return removed, errors.Join(errs...)
}

// Prettify rewrites the store indented. It flushes pending writes first.
func (r *Registry) Prettify() error {
	if err := r.Flush(); err != nil {
		return err
	}
	if err := r.store.SetAll(r.store.GetAll(), SetAllOptions{Prettify: true}); err != nil {
		return fmt.Errorf("prettify settings: %w", err)
	}
	r.logger.Info("settings saved", zap.String("file", r.store.File()))
	return nil
}

// All returns every registered value keyed by keypath.
func (r *Registry) All() map[string]any {
	out := make(map[string]any, len(r.entries))
	for _, e := range r.entries {
		v, _ := r.Get(e.Keypath)
		out[e.Keypath] = v
	}
	return out
}

func (r *Registry) persist(e *Entry, v any) error {
	if !e.Debounce {
		if err := r.store.Set(e.Keypath, v); err != nil {
			return fmt.Errorf("persist %s: %w", e.Keypath, err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		if err := r.store.Set(e.Keypath, v); err != nil {
			return fmt.Errorf("persist %s: %w", e.Keypath, err)
		}
		return nil
	}
	r.pending[e.Keypath] = v
	if t, ok := r.timers[e.Keypath]; ok {
		t.Stop()
	}
	key := e.Keypath
	r.timers[key] = time.AfterFunc(r.debounce, func() { r.flushKey(key) })
	return nil
}

func (r *Registry) flushKey(key string) {
	r.mu.Lock()
	v, ok := r.pending[key]
	delete(r.pending, key)
	delete(r.timers, key)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.store.Set(key, v); err != nil {
		r.logger.Warn("failed to persist setting", zap.String("key", key), zap.Error(err))
	}
}

// Flush writes every debounced value now.
func (r *Registry) Flush() error {
	r.mu.Lock()
	pending := r.pending
	r.pending = map[string]any{}
	for k, t := range r.timers {
		t.Stop()
		delete(r.timers, k)
	}
	r.mu.Unlock()

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := r.store.Set(k, pending[k]); err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops every window poller and flushes debounced writes.
func (r *Registry) Close() error {
	r.cancel()
	r.pollers.Stop()
	err := r.Flush()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return err
}

// WhenWindow polls for the desktop window and calls fn with it once it has
// bounds. The poll is released by Close.
func (r *Registry) WhenWindow(name string, fn func(Window)) *poll.Handle {
	var found Window
	h := poll.Start(r.ctx, poll.Options{
		Name:     name,
		Interval: r.pollInterval,
		Clock:    r.clock,
		Logger:   r.logger,
	}, func(context.Context) bool {
		w, ok := r.desktop.Window()
		if !ok || w == nil {
			return false
		}
		if _, ok := w.Bounds(); !ok {
			return false
		}
		found = w
		return true
	}, func(context.Context) {
		fn(found)
	})
	return r.pollers.Add(h)
}

// Bool returns key as a bool, or false when it is not one.
func (r *Registry) Bool(key string) bool {
	v, err := r.Get(key)
	if err != nil {
		r.logger.Error("bool setting", zap.String("key", key), zap.Error(err))
		return false
	}
	b, _ := v.(bool)
	return b
}

// Float returns key as a float64, or 0 when it is not one.
func (r *Registry) Float(key string) float64 {
	v, err := r.Get(key)
	if err != nil {
		r.logger.Error("float setting", zap.String("key", key), zap.Error(err))
		return 0
	}
	f, _ := v.(float64)
	return f
}

// String returns key as a string, or "" when it is not one.
func (r *Registry) String(key string) string {
	v, err := r.Get(key)
	if err != nil {
		r.logger.Error("string setting", zap.String("key", key), zap.Error(err))
		return ""
	}
	s, _ := v.(string)
	return s
}
