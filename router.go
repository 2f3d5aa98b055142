package main

import (
	"sync"

	"go.uber.org/zap"

	"pushrelay/bridge"
	"pushrelay/push"
)

// notifications is the part of notify.Queue the router drives.
type notifications interface {
	Enqueue(item push.Item, playSound bool)
	Replay(item push.Item)
	PromptPassword()
	SetUnread(n int)
}

// appRouter receives what a webview relay reports, either over the bridge
// socket or directly when the relay runs in this process.
type appRouter struct {
	queue  notifications
	clip   func(text string) error
	logger *zap.Logger

	mu       sync.Mutex
	online   bool
	loggedIn bool
}

func newAppRouter(queue notifications, clip func(string) error, logger *zap.Logger) *appRouter {
	return &appRouter{queue: queue, clip: clip, logger: logger}
}

// bridge.Router

func (r *appRouter) Online(online bool) {
	r.mu.Lock()
	r.online = online
	r.mu.Unlock()
	if online {
		r.logger.Info("pushbullet online")
	} else {
		r.logger.Warn("pushbullet offline")
	}
}

func (r *appRouter) Login(loggedIn bool) {
	r.mu.Lock()
	r.loggedIn = loggedIn
	r.mu.Unlock()
	r.logger.Info("pushbullet login", zap.Bool("logged_in", loggedIn))
}

func (r *appRouter) Push(item push.Item, playSound bool) {
	r.queue.Enqueue(item, playSound)
}

func (r *appRouter) Replay(item push.Item) {
	r.queue.Replay(item)
}

func (r *appRouter) Clip(item push.Item) {
	if item.Body == "" {
		return
	}
	if err := r.clip(item.Body); err != nil {
		r.logger.Warn("clipboard write failed", zap.Error(err))
		return
	}
	r.logger.Debug("clipboard updated", zap.String("source", item.SourceDeviceIden))
}

func (r *appRouter) Badge(count int) {
	r.queue.SetUnread(count)
}

func (r *appRouter) Prompt() {
	r.queue.PromptPassword()
}

// webview.Sink, for a relay in this process.

func (r *appRouter) Enqueue(item push.Item, playSound bool) { r.Push(item, playSound) }
func (r *appRouter) ReceiveClip(item push.Item)             { r.Clip(item) }
func (r *appRouter) PromptPassword()                        { r.Prompt() }

func (r *appRouter) SetBadgeCount(n int) error {
	r.Badge(n)
	return nil
}

// Send implements bridge.Channel.
func (r *appRouter) Send(name string, value bool) error {
	switch name {
	case bridge.TypeOnline:
		r.Online(value)
	case bridge.TypeLogin:
		r.Login(value)
	}
	return nil
}

func (r *appRouter) state() (online, loggedIn bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online, r.loggedIn
}
