// Package intercept observes writes to keyed collections that belong to
// someone else.
//
// Wrap returns a view of a collection whose Store reports every write to an
// observer before applying it. Everything else passes straight through, so the
// owner sees exactly the collection it had before.
package intercept

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyHooked is returned when an attachment point already carries an
// interceptor.
var ErrAlreadyHooked = errors.New("attachment point already hooked")

// Collection is a keyed collection of items indexed by identity token.
type Collection[V any] interface {
	Load(key string) (V, bool)
	Store(key string, value V)
	Delete(key string)
	Range(fn func(key string, value V) bool)
	Len() int
}

// Observer sees a write before it lands. prev and existed describe the entry
// the write replaces.
type Observer[V any] func(key string, value V, prev V, existed bool)

// Map is a mutex-guarded Collection.
type Map[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewMap returns an empty Map.
func NewMap[V any]() *Map[V] {
	return &Map[V]{items: make(map[string]V)}
}

func (m *Map[V]) Load(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *Map[V]) Store(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

func (m *Map[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// Range visits entries in key order. fn must not write to m.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	items := make(map[string]V, len(m.items))
	for k, v := range m.items {
		items[k] = v
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, items[k]) {
			return
		}
	}
}

func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

type wrapped[V any] struct {
	inner    Collection[V]
	observer Observer[V]
	mu       sync.Mutex
}

// Wrap returns c with Store observed by fn. Writes through the wrapper are
// serialized so the observer and the write happen as one step.
func Wrap[V any](c Collection[V], fn Observer[V]) Collection[V] {
	return &wrapped[V]{inner: c, observer: fn}
}

func (w *wrapped[V]) Load(key string) (V, bool) { return w.inner.Load(key) }
func (w *wrapped[V]) Delete(key string)         { w.inner.Delete(key) }
func (w *wrapped[V]) Len() int                  { return w.inner.Len() }

func (w *wrapped[V]) Range(fn func(key string, value V) bool) {
	w.inner.Range(fn)
}

func (w *wrapped[V]) Store(key string, value V) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev, existed := w.inner.Load(key)
	w.observer(key, value, prev, existed)
	w.inner.Store(key, value)
}

// Values returns the collection's items in Range order.
func Values[V any](c Collection[V]) []V {
	out := make([]V, 0, c.Len())
	c.Range(func(_ string, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}
