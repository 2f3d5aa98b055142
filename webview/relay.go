package webview

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pushrelay/bridge"
	"pushrelay/classify"
	"pushrelay/intercept"
	"pushrelay/notify"
	"pushrelay/poll"
	"pushrelay/push"
	"pushrelay/settings"
	"pushrelay/stream"
)

const (
	bindingError  = "__pushrelay_error"
	bindingFrame  = "__pushrelay_frame"
	bindingOnline = "__pushrelay_online"
)

// Sink receives everything the relay extracts from the page.
type Sink interface {
	Enqueue(item push.Item, playSound bool)
	// Replay shows an item that is already part of the unread count.
	Replay(item push.Item)
	ReceiveClip(item push.Item)
	PromptPassword()
	SetBadgeCount(n int) error
}

// Settings is the read side of the settings registry.
type Settings interface {
	Bool(key string) bool
	Float(key string) float64
}

// Options configures a Relay.
type Options struct {
	Page     Page
	Sink     Sink
	Settings Settings
	Notifier *bridge.Notifier

	// Decrypter opens encrypted stream pushes. Nil uses the page's own key.
	Decrypter stream.Decrypter

	// DirectStream means stream frames arrive from a stream.Client, so the
	// page socket is not tapped.
	DirectStream bool

	Debug    bool
	Clock    poll.Clock
	Interval time.Duration
	Logger   *zap.Logger
}

// Relay attaches to the Pushbullet page and turns what it observes into
// notifications and state flags.
type Relay struct {
	page       Page
	sink       Sink
	settings   Settings
	notifier   *bridge.Notifier
	decoder    *stream.Decoder
	classifier *classify.Classifier
	devices    *deviceDirectory

	direct   bool
	debug    bool
	clock    poll.Clock
	interval time.Duration
	logger   *zap.Logger

	hooksMu     sync.Mutex
	hooks       map[string]*intercept.Hook
	collections []*collection

	// ctx outlives individual pollers, whose contexts end with their action.
	ctx      context.Context
	pollers  poll.Group
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	loggedIn atomic.Bool
}

// New builds a Relay. Nothing touches the page until Start.
func New(opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = bridge.NewNotifier(logger)
	}
	clock := opts.Clock
	if clock == nil {
		clock = poll.RealClock()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = poll.DefaultInterval
	}

	r := &Relay{
		page:     opts.Page,
		sink:     opts.Sink,
		settings: opts.Settings,
		notifier: notifier,
		devices:  newDeviceDirectory(),
		direct:   opts.DirectStream,
		debug:    opts.Debug,
		clock:    clock,
		interval: interval,
		logger:   logger,
		hooks:    map[string]*intercept.Hook{},
	}
	r.classifier = classify.New(r.devices, classify.WithLogger(logger))
	r.decoder = &stream.Decoder{
		Decrypter: opts.Decrypter,
		Enqueuer:  opts.Sink,
		Clipboard: opts.Sink,
		Prompter:  opts.Sink,
		SMSEnabled: func() bool {
			return r.settings.Bool(settings.KeySmsEnabled)
		},
		Logger: logger.Named("stream"),
	}
	r.collections = []*collection{
		newCollection(r, "pushes", push.KindPush),
		newCollection(r, "texts", push.KindText),
	}
	return r
}

// Decoder returns the decoder fed by the page socket. A stream.Client can
// share it.
func (r *Relay) Decoder() *stream.Decoder { return r.decoder }

// Classifier returns the relay's classifier.
func (r *Relay) Classifier() *classify.Classifier { return r.classifier }

// LoggedIn reports whether the login flow has completed.
func (r *Relay) LoggedIn() bool { return r.loggedIn.Load() }

// Start registers the page bindings and begins polling for the page to come
// up. It returns once the bindings are in place.
func (r *Relay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.ctx = ctx
	r.cancel = cancel

	if r.decoder.Decrypter == nil {
		r.decoder.Decrypter = NewPageDecrypter(ctx, r.page)
	}

	bindings := map[string]func(json.RawMessage){
		bindingError:  r.onError,
		bindingFrame:  r.onFrame,
		bindingOnline: r.onOnline,
	}
	for _, c := range r.collections {
		bindings[c.binding()] = c.handle
	}
	for name, fn := range bindings {
		if err := r.page.Bind(ctx, name, fn); err != nil {
			cancel()
			return err
		}
	}

	r.pollers.Add(poll.Start(ctx, r.pollOptions("ready"), r.check(jsReady), r.onReady))
	return nil
}

// Run starts the relay and blocks until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.Close()
	return nil
}

// Close stops all pollers and diff loops and waits for them.
func (r *Relay) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.pollers.Stop()
	r.wg.Wait()
}

func (r *Relay) pollOptions(name string) poll.Options {
	return poll.Options{
		Name:     name,
		Interval: r.interval,
		Clock:    r.clock,
		Logger:   r.logger,
	}
}

func (r *Relay) check(js string, args ...any) func(context.Context) bool {
	return func(ctx context.Context) bool {
		var ok bool
		if err := r.page.Eval(ctx, js, &ok, args...); err != nil {
			return false
		}
		return ok
	}
}

func (r *Relay) hook(name string) *intercept.Hook {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	h, ok := r.hooks[name]
	if !ok {
		h = intercept.NewHook(name)
		r.hooks[name] = h
	}
	return h
}

// attach waits for readyJS and then runs install once per attachment point.
func (r *Relay) attach(name, readyJS string, readyArgs []any, install func(context.Context) error) {
	h := r.hook(name)
	r.pollers.Add(poll.Start(r.ctx, r.pollOptions(name), r.check(readyJS, readyArgs...), func(ctx context.Context) {
		err := h.Install(func() error { return install(ctx) })
		switch {
		case errors.Is(err, intercept.ErrAlreadyHooked):
			r.logger.Debug("already hooked", zap.String("hook", name))
		case err != nil:
			r.logger.Warn("hook failed", zap.String("hook", name), zap.Error(err))
		}
	}))
}

// goPoll runs fn on every tick until the relay closes.
func (r *Relay) goPoll(name string, fn func(context.Context)) {
	ctx := r.ctx
	ticker := r.clock.NewTicker(r.interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("loop stopped", zap.String("loop", name))
				return
			case <-ticker.C():
				fn(ctx)
			}
		}
	}()
}

func (r *Relay) onReady(ctx context.Context) {
	r.logger.Info("pushbullet page ready")
	r.notifier.Online(true)

	err := r.hook("connectivity").Install(func() error {
		return r.page.Eval(ctx, jsListenConnectivity, nil, bindingOnline)
	})
	if err != nil && !errors.Is(err, intercept.ErrAlreadyHooked) {
		r.logger.Warn("connectivity listener failed", zap.Error(err))
	}

	r.attach("account", jsAccountActive, nil, r.login)
}

func (r *Relay) login(ctx context.Context) error {
	r.logger.Info("pushbullet logged in")

	if err := r.page.Eval(ctx, jsSetDebug, nil, r.debug); err != nil {
		r.logger.Debug("set page debug", zap.Error(err))
	}
	r.refreshDevices(ctx)

	r.attach("error", jsHasError, nil, r.hookError)
	for _, c := range r.collections {
		r.attach(c.name, jsHasCollection, []any{c.name}, c.install)
	}
	if !r.direct {
		r.attach("socket", jsHasSocket, nil, r.hookSocket)
	}

	items := r.recentItems(ctx)
	last := r.settings.Float(settings.KeyLastNotificationTimestamp)
	if unread := notify.CountSince(items, last); unread > 0 {
		if err := r.sink.SetBadgeCount(unread); err != nil {
			r.logger.Warn("badge update failed", zap.Error(err))
		}
	}
	if r.settings.Bool(settings.KeyRepeatRecentNotifications) {
		r.replay(items, last)
	}

	r.loggedIn.Store(true)
	r.notifier.Login(true)

	r.attach("interface", jsHasAccount, nil, func(ctx context.Context) error {
		return r.page.Eval(ctx, jsEnhance, nil)
	})
	return nil
}

func (r *Relay) replay(items []push.Item, last float64) {
	n := 0
	for _, item := range notify.Recent(items, last) {
		if !r.classifier.Check(item).Accept {
			continue
		}
		r.sink.Replay(item)
		n++
	}
	r.logger.Info("replayed recent notifications", zap.Int("count", n))
}

func (r *Relay) refreshDevices(ctx context.Context) {
	var models map[string]string
	if err := r.page.Eval(ctx, jsDevices, &models); err != nil {
		r.logger.Debug("device listing failed", zap.Error(err))
		return
	}
	r.devices.replace(models)
}

func (r *Relay) recentItems(ctx context.Context) []push.Item {
	var recent struct {
		Pushes []json.RawMessage `json:"pushes"`
		Texts  []json.RawMessage `json:"texts"`
	}
	if err := r.page.Eval(ctx, jsRecentItems, &recent); err != nil {
		r.logger.Warn("recent items unavailable", zap.Error(err))
		return nil
	}
	items := make([]push.Item, 0, len(recent.Pushes)+len(recent.Texts))
	items = appendParsed(items, push.KindPush, recent.Pushes)
	items = appendParsed(items, push.KindText, recent.Texts)
	return items
}

func appendParsed(items []push.Item, kind push.Kind, raws []json.RawMessage) []push.Item {
	for _, raw := range raws {
		if item, err := push.Parse(kind, raw); err == nil {
			items = append(items, item)
		}
	}
	return items
}

func (r *Relay) hookError(ctx context.Context) error {
	return r.page.Eval(ctx, jsHookError, nil, bindingError)
}

func (r *Relay) hookSocket(ctx context.Context) error {
	return r.page.Eval(ctx, jsHookSocket, nil, bindingFrame)
}

func (r *Relay) onError(payload json.RawMessage) {
	var title string
	if err := json.Unmarshal(payload, &title); err != nil {
		return
	}
	r.logger.Debug("page error", zap.String("title", title))
	r.notifier.NetworkError(title)
}

func (r *Relay) onFrame(payload json.RawMessage) {
	var text string
	if err := json.Unmarshal(payload, &text); err != nil {
		r.logger.Warn("bad frame payload", zap.Error(err))
		return
	}
	outcome := r.decoder.HandleFrame([]byte(text))
	r.logger.Debug("frame", zap.Stringer("outcome", outcome))
}

func (r *Relay) onOnline(payload json.RawMessage) {
	var online bool
	if err := json.Unmarshal(payload, &online); err != nil {
		return
	}
	r.notifier.Online(online)
}
