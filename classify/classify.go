// Package classify decides whether an observed Pushbullet item should become
// a desktop notification.
package classify

import (
	"sync"

	"go.uber.org/zap"

	"pushrelay/push"
)

// LocalModel is the device model the Pushbullet web application records for
// this desktop client.
const LocalModel = "pb-for-desktop"

// Reason explains a Decision.
type Reason string

const (
	ReasonAccepted    Reason = "accepted"
	ReasonDuplicate   Reason = "duplicate"
	ReasonNotTargeted Reason = "not-targeted"
	ReasonOutgoing    Reason = "outgoing"
)

// Decision is the classifier's verdict for one item.
type Decision struct {
	Accept bool
	Reason Reason
}

// Devices resolves a device iden to its model. ok is false for unknown devices.
type Devices interface {
	Model(iden string) (model string, ok bool)
}

// DeviceMap is a static Devices lookup.
type DeviceMap map[string]string

// Model implements Devices.
func (m DeviceMap) Model(iden string) (string, bool) {
	model, ok := m[iden]
	return model, ok
}

// Classifier applies the dedup, target and direction checks in that order.
//
// Besides the authoritative listing handed to Classify it keeps its own set
// of idens it has already decided on. The listing is owned by the web
// application and may be mutated while an item is being checked; the private
// set is updated under the same lock as the decision.
type Classifier struct {
	devices Devices
	local   string
	logger  *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLocalModel overrides LocalModel.
func WithLocalModel(model string) Option {
	return func(c *Classifier) { c.local = model }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New returns a Classifier resolving target devices through devices. A nil
// devices treats every target as unknown.
func New(devices Devices, opts ...Option) *Classifier {
	c := &Classifier{
		devices: devices,
		local:   LocalModel,
		logger:  zap.NewNop(),
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seed marks idens as already known, typically the contents of a collection
// at the moment it is hooked.
func (c *Classifier) Seed(idens ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, iden := range idens {
		if iden != "" {
			c.seen[iden] = struct{}{}
		}
	}
}

// Seen reports whether iden has been seeded or classified before.
func (c *Classifier) Seen(iden string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[iden]
	return ok
}

// Classify returns the decision for item given the authoritative listing of
// the collection it is being written to.
func (c *Classifier) Classify(item push.Item, authoritative []push.Item) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.decide(item, authoritative)
	if item.Iden != "" {
		c.seen[item.Iden] = struct{}{}
	}
	c.logger.Debug("classified item",
		zap.String("iden", item.Iden),
		zap.String("kind", string(item.Kind)),
		zap.String("reason", string(d.Reason)),
	)
	return d
}

func (c *Classifier) decide(item push.Item, authoritative []push.Item) Decision {
	if c.existsLocked(item.Iden, authoritative) {
		return Decision{Reason: ReasonDuplicate}
	}
	return c.check(item)
}

// Check applies only the target and direction checks. It neither consults
// nor updates the seen-set, so it suits items known to exist already, such
// as recent pushes replayed at login.
func (c *Classifier) Check(item push.Item) Decision {
	return c.check(item)
}

func (c *Classifier) check(item push.Item) Decision {
	if target, ok := item.Target(); ok && !c.targetsUs(target) {
		return Decision{Reason: ReasonNotTargeted}
	}
	if item.Kind != push.KindText && !item.Incoming() {
		return Decision{Reason: ReasonOutgoing}
	}
	return Decision{Accept: true, Reason: ReasonAccepted}
}

func (c *Classifier) existsLocked(iden string, authoritative []push.Item) bool {
	if iden == "" {
		return false
	}
	if _, ok := c.seen[iden]; ok {
		return true
	}
	for _, other := range authoritative {
		if other.Iden == iden {
			return true
		}
	}
	return false
}

func (c *Classifier) targetsUs(target string) bool {
	if c.devices == nil {
		return false
	}
	model, ok := c.devices.Model(target)
	return ok && model == c.local
}
