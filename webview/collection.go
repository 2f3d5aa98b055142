package webview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"pushrelay/intercept"
	"pushrelay/push"
)

// entry is what the page reports for one write to a collection.
type entry struct {
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
	Listed bool            `json:"listed"`
	Target string          `json:"target"`
	Model  string          `json:"model"`
}

type hookResult struct {
	Hooked bool              `json:"hooked"`
	Items  []json.RawMessage `json:"items"`
}

// collection mirrors one of the page's keyed collections (pb.api.pushes or
// pb.api.texts). Writes reach it through the page proxy, or through the
// snapshot differ when the proxy could not be installed.
type collection struct {
	relay *Relay
	name  string
	kind  push.Kind

	mirror  *intercept.Map[push.Item]
	wrapped intercept.Collection[push.Item]
	differ  intercept.Differ

	storeMu sync.Mutex
	listed  bool
}

func newCollection(r *Relay, name string, kind push.Kind) *collection {
	c := &collection{relay: r, name: name, kind: kind, mirror: intercept.NewMap[push.Item]()}
	c.wrapped = intercept.Wrap[push.Item](c.mirror, c.observe)
	return c
}

func (c *collection) binding() string {
	return "__pushrelay_" + c.name
}

// observe runs before each write lands in the mirror.
func (c *collection) observe(_ string, item push.Item, _ push.Item, _ bool) {
	listing := intercept.Values[push.Item](c.mirror)
	if c.listed {
		listing = append(listing, item)
	}
	d := c.relay.classifier.Classify(item, listing)
	if !d.Accept {
		return
	}
	c.relay.logger.Info("new item", zap.String("collection", c.name), zap.String("iden", item.Iden))
	c.relay.sink.Enqueue(item, true)
}

// receive handles one write reported by the page.
func (c *collection) receive(e entry) {
	if len(e.Value) == 0 || string(e.Value) == "null" {
		return
	}
	item, err := push.Parse(c.kind, e.Value)
	if err != nil {
		c.relay.logger.Warn("unexpected item shape", zap.String("collection", c.name), zap.Error(err))
		return
	}
	c.relay.devices.put(e.Target, e.Model)

	key := e.Key
	if key == "" {
		key = item.Iden
	}
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	c.listed = e.Listed
	c.wrapped.Store(key, item)
}

func (c *collection) handle(payload json.RawMessage) {
	var e entry
	if err := json.Unmarshal(payload, &e); err != nil {
		c.relay.logger.Warn("bad collection payload", zap.String("collection", c.name), zap.Error(err))
		return
	}
	c.receive(e)
}

// install proxies the page collection. Items already present are recorded as
// seen so they never notify.
func (c *collection) install(ctx context.Context) error {
	var res hookResult
	if err := c.relay.page.Eval(ctx, jsHookCollection, &res, c.name, c.binding()); err != nil {
		return fmt.Errorf("hook %s: %w", c.name, err)
	}

	keys := make([]string, 0, len(res.Items))
	for _, raw := range res.Items {
		item, err := push.Parse(c.kind, raw)
		if err != nil || item.Iden == "" {
			continue
		}
		c.mirror.Store(item.Iden, item)
		c.relay.classifier.Seed(item.Iden)
		keys = append(keys, item.Iden)
	}

	if res.Hooked {
		c.relay.logger.Debug("collection proxied", zap.String("collection", c.name), zap.Int("items", len(keys)))
		return nil
	}

	c.relay.logger.Info("collection proxy refused, diffing snapshots", zap.String("collection", c.name))
	c.differ.Diff(keys)
	c.relay.goPoll("diff "+c.name, c.diffOnce)
	return nil
}

// diffOnce reports entries that appeared since the previous snapshot.
func (c *collection) diffOnce(ctx context.Context) {
	var keys []string
	if err := c.relay.page.Eval(ctx, jsCollectionKeys, &keys, c.name); err != nil {
		c.relay.logger.Debug("snapshot failed", zap.String("collection", c.name), zap.Error(err))
		return
	}
	for _, key := range c.differ.Diff(keys) {
		var e *entry
		if err := c.relay.page.Eval(ctx, jsCollectionEntry, &e, c.name, key); err != nil || e == nil {
			continue
		}
		// The differ already decided the key is new.
		e.Listed = false
		c.receive(*e)
	}
}
