package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pushrelay/push"
	"pushrelay/settings"
)

// DefaultQueueSize bounds how many items may wait for the worker.
const DefaultQueueSize = 256

// Displayer shows a notification and returns the desktop's id for it.
type Displayer interface {
	Show(ctx context.Context, n Notification) (uint32, error)
}

// Player plays a sound file at volume in [0, 1].
type Player interface {
	Play(ctx context.Context, file string, volume float64) error
}

// Badger sets the launcher badge.
type Badger interface {
	SetBadgeCount(n int) error
}

// Settings is the part of the settings registry the queue reads.
type Settings interface {
	Bool(key string) bool
	Float(key string) float64
	String(key string) string
	Set(key string, v any) error
}

// Options configures a Queue.
type Options struct {
	Display  Displayer
	Player   Player
	Settings Settings
	Badge    Badger
	Logger   *zap.Logger
	Size     int
}

type job struct {
	item      push.Item
	playSound bool
	prompt    bool
	// replay items are already part of the unread count.
	replay bool
}

// Queue shows notifications one at a time, in the order they were enqueued.
type Queue struct {
	display  Displayer
	player   Player
	settings Settings
	badge    Badger
	logger   *zap.Logger

	jobs chan job

	mu     sync.Mutex
	unread int
	shown  int
}

// NewQueue returns a Queue. Run must be called for anything to be shown.
func NewQueue(opts Options) *Queue {
	size := opts.Size
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		display:  opts.Display,
		player:   opts.Player,
		settings: opts.Settings,
		badge:    opts.Badge,
		logger:   logger,
		jobs:     make(chan job, size),
	}
}

// Enqueue schedules item for display. It never blocks; when the queue is full
// the item is dropped and logged.
func (q *Queue) Enqueue(item push.Item, playSound bool) {
	q.submit(job{item: item, playSound: playSound})
}

// PromptPassword asks the user for the end-to-end encryption password.
func (q *Queue) PromptPassword() {
	q.submit(job{prompt: true})
}

// Replay shows an item that was already counted as unread, silently and
// without raising the badge.
func (q *Queue) Replay(item push.Item) {
	q.submit(job{item: item, replay: true})
}

func (q *Queue) submit(j job) {
	select {
	case q.jobs <- j:
	default:
		q.logger.Warn("notification queue full, dropping", zap.String("iden", j.item.Iden))
	}
}

// SetUnread sets the badge count.
func (q *Queue) SetUnread(n int) {
	q.mu.Lock()
	q.unread = n
	q.mu.Unlock()
	q.updateBadge(n)
}

// Unread returns the current badge count.
func (q *Queue) Unread() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unread
}

// Shown returns how many notifications were displayed.
func (q *Queue) Shown() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shown
}

func (q *Queue) updateBadge(n int) {
	if q.badge == nil || !q.settings.Bool(settings.KeyAppShowBadgeCount) {
		return
	}
	if err := q.badge.SetBadgeCount(n); err != nil {
		q.logger.Warn("failed to update badge", zap.Int("count", n), zap.Error(err))
	}
}

// Run processes the queue until ctx ends.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-q.jobs:
			q.process(ctx, j)
		}
	}
}

func (q *Queue) process(ctx context.Context, j job) {
	if j.prompt {
		q.show(ctx, PasswordPrompt())
		return
	}

	notes := Render(j.item, q.settings.Bool(settings.KeyHideNotificationBody))
	if len(notes) == 0 {
		return
	}
	for _, n := range notes {
		q.show(ctx, n)
	}

	if j.playSound && q.settings.Bool(settings.KeySoundEnabled) && q.player != nil {
		file := q.settings.String(settings.KeySoundFile)
		volume := q.settings.Float(settings.KeySoundVolume)
		if err := q.player.Play(ctx, file, volume); err != nil {
			q.logger.Debug("sound not played", zap.String("file", file), zap.Error(err))
		}
	}

	if !j.replay {
		q.mu.Lock()
		q.unread += len(notes)
		unread := q.unread
		q.mu.Unlock()
		q.updateBadge(unread)
	}

	if j.item.Created > q.settings.Float(settings.KeyLastNotificationTimestamp) {
		if err := q.settings.Set(settings.KeyLastNotificationTimestamp, j.item.Created); err != nil {
			q.logger.Warn("failed to store last notification time", zap.Error(err))
		}
	}
}

func (q *Queue) show(ctx context.Context, n Notification) {
	if q.display == nil {
		return
	}
	id, err := q.display.Show(ctx, n)
	if err != nil {
		q.logger.Warn("failed to show notification", zap.String("title", n.Title), zap.Error(err))
		return
	}
	q.mu.Lock()
	q.shown++
	q.mu.Unlock()
	q.logger.Debug("notification shown",
		zap.String("id", n.ID), zap.Uint32("desktopId", id), zap.String("source", n.Source))
}
