package intercept

import (
	"sync"
)

// Hook guards a single attachment point so that an interceptor is installed
// at most once. A second Install returns ErrAlreadyHooked instead of
// wrapping the first interceptor again.
type Hook struct {
	name string

	mu        sync.Mutex
	installed bool
}

// NewHook returns a Hook for the named attachment point.
func NewHook(name string) *Hook {
	return &Hook{name: name}
}

// Name returns the attachment point name.
func (h *Hook) Name() string { return h.name }

// Install runs install once. If install fails the hook stays open and a later
// Install may retry.
func (h *Hook) Install(install func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.installed {
		return ErrAlreadyHooked
	}
	if err := install(); err != nil {
		return err
	}
	h.installed = true
	return nil
}

// Installed reports whether Install succeeded.
func (h *Hook) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}

// Differ finds keys that appeared between two snapshots of a collection it
// cannot intercept directly.
type Differ struct {
	mu   sync.Mutex
	seen map[string]struct{}
	init bool
}

// Diff records keys as the current snapshot and returns the ones that were
// absent from the previous snapshot, in input order. The first call only
// establishes the baseline and returns nil.
func (d *Differ) Diff(keys []string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[string]struct{}, len(keys))
	var added []string
	for _, k := range keys {
		if _, dup := next[k]; dup {
			continue
		}
		next[k] = struct{}{}
		if !d.init {
			continue
		}
		if _, ok := d.seen[k]; !ok {
			added = append(added, k)
		}
	}
	d.seen = next
	d.init = true
	return added
}
