// Package poll waits for state owned by someone else to become ready.
//
// A poller evaluates a readiness predicate on a fixed interval, with no
// backoff and no attempt ceiling, and runs its action exactly once when the
// predicate first holds. Callers keep the returned Handle and Stop it when
// the awaited state can no longer appear (for example on shutdown).
package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is used when Options.Interval is zero.
const DefaultInterval = 500 * time.Millisecond

// Ticker is the subset of time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests inject a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

type realTicker struct {
	t *time.Ticker
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Options configures a poller.
type Options struct {
	Name     string
	Interval time.Duration
	Clock    Clock
	Logger   *zap.Logger
}

// Handle controls a running poller.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	fired bool
	evals int
}

// Start launches a poller. ready is called once per tick until it returns
// true; action then runs once on the poller goroutine and the poller exits.
// The poller also exits when ctx ends or Stop is called.
func Start(ctx context.Context, opts Options, ready func(context.Context) bool, action func(context.Context)) *Handle {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		name:   opts.Name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ticker := clock.NewTicker(interval)
	go func() {
		defer close(h.done)
		defer ticker.Stop()
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("poller stopped", zap.String("poller", h.name))
				return
			case <-ticker.C():
			}

			h.mu.Lock()
			h.evals++
			h.mu.Unlock()

			if !ready(ctx) {
				continue
			}
			// A Stop racing with a successful check wins.
			if ctx.Err() != nil {
				return
			}

			h.mu.Lock()
			h.fired = true
			h.mu.Unlock()

			logger.Debug("poller ready", zap.String("poller", h.name))
			action(ctx)
			return
		}
	}()
	return h
}

// Stop cancels the poller. It is safe to call more than once and after the
// action has run.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.cancel()
}

// Done is closed once the poller goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the poller exits or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fired reports whether the action ran.
func (h *Handle) Fired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Evaluations returns how many times the predicate was evaluated.
func (h *Handle) Evaluations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.evals
}

// Name returns the poller's name.
func (h *Handle) Name() string {
	return h.name
}

// Group tracks handles so they can be released together.
type Group struct {
	mu      sync.Mutex
	handles []*Handle
}

// Add registers h with the group and forgets handles that have exited.
func (g *Group) Add(h *Handle) *Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	live := g.handles[:0]
	for _, old := range g.handles {
		select {
		case <-old.Done():
		default:
			live = append(live, old)
		}
	}
	clear(g.handles[len(live):])
	g.handles = append(live, h)
	return h
}

// Stop cancels every tracked handle and waits for their goroutines to exit.
func (g *Group) Stop() {
	g.mu.Lock()
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	for _, h := range handles {
		<-h.Done()
	}
}

// Len returns the number of tracked handles.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}
