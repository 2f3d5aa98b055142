package webview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"pushrelay/push"
)

// fakePage plays the Pushbullet web application. Scripts are recognised by
// identity with the constants in scripts.go.
type fakePage struct {
	mu sync.Mutex

	ready     bool
	active    bool
	debug     any
	enhanced  bool
	e2e       bool
	refuse    map[string]bool
	objs      map[string]map[string]json.RawMessage
	all       map[string][]json.RawMessage
	devices   map[string]string
	hooked    map[string]int
	bindings  map[string]func(json.RawMessage)
	evalCalls int
}

func newFakePage() *fakePage {
	return &fakePage{
		refuse:   map[string]bool{},
		objs:     map[string]map[string]json.RawMessage{"pushes": {}, "texts": {}},
		all:      map[string][]json.RawMessage{},
		devices:  map[string]string{},
		hooked:   map[string]int{},
		bindings: map[string]func(json.RawMessage){},
	}
}

func (p *fakePage) Bind(_ context.Context, name string, fn func(json.RawMessage)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[name] = fn
	return nil
}

func (p *fakePage) Eval(_ context.Context, js string, out any, args ...any) error {
	p.mu.Lock()
	res, err := p.eval(js, args)
	p.mu.Unlock()
	if err != nil || out == nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *fakePage) eval(js string, args []any) (any, error) {
	p.evalCalls++
	str := func(i int) string {
		s, _ := args[i].(string)
		return s
	}

	switch js {
	case jsReady:
		return p.ready, nil
	case jsAccountActive, jsHasAccount:
		return p.active, nil
	case jsSetDebug:
		p.debug = args[0]
		return true, nil
	case jsHasError, jsHasSocket:
		return p.active, nil
	case jsHasCollection:
		_, ok := p.objs[str(0)]
		return p.active && ok, nil
	case jsHookError:
		p.hooked["error"]++
		return true, nil
	case jsHookSocket:
		p.hooked["socket"]++
		return true, nil
	case jsListenConnectivity:
		p.hooked["connectivity"]++
		return true, nil
	case jsHookCollection:
		name := str(0)
		items := make([]json.RawMessage, 0, len(p.objs[name]))
		for _, v := range p.objs[name] {
			items = append(items, v)
		}
		if p.refuse[name] {
			return hookResult{Hooked: false, Items: items}, nil
		}
		p.hooked[name]++
		return hookResult{Hooked: true, Items: items}, nil
	case jsCollectionKeys:
		keys := make([]string, 0, len(p.objs[str(0)]))
		for k := range p.objs[str(0)] {
			keys = append(keys, k)
		}
		return keys, nil
	case jsCollectionEntry:
		v, ok := p.objs[str(0)][str(1)]
		if !ok {
			return nil, nil
		}
		return entry{Key: str(1), Value: v}, nil
	case jsDevices:
		return p.devices, nil
	case jsRecentItems:
		return map[string][]json.RawMessage{"pushes": p.all["pushes"], "texts": p.all["texts"]}, nil
	case jsEnhance:
		p.enhanced = true
		return true, nil
	case jsE2EEnabled:
		return p.e2e, nil
	case jsE2EDecrypt:
		return nil, errors.New("no key")
	case jsDispatchHost:
		return true, nil
	}
	return nil, fmt.Errorf("unexpected script %.40q", js)
}

func (p *fakePage) set(fn func(p *fakePage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakePage) hookCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hooked[name]
}

func (p *fakePage) isEnhanced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enhanced
}

// emit calls a binding the way the page would.
func (p *fakePage) emit(name string, value any) {
	p.mu.Lock()
	fn := p.bindings[name]
	p.mu.Unlock()
	raw, _ := json.Marshal(value)
	fn(raw)
}

type enqueued struct {
	item   push.Item
	sound  bool
	replay bool
}

type fakeSink struct {
	mu      sync.Mutex
	items   []enqueued
	clips   []push.Item
	prompts int
	badges  []int
}

func (s *fakeSink) Enqueue(item push.Item, playSound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, enqueued{item: item, sound: playSound})
}

func (s *fakeSink) Replay(item push.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, enqueued{item: item, replay: true})
}

func (s *fakeSink) ReceiveClip(item push.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = append(s.clips, item)
}

func (s *fakeSink) PromptPassword() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts++
}

func (s *fakeSink) SetBadgeCount(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges = append(s.badges, n)
	return nil
}

func (s *fakeSink) received() []enqueued {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]enqueued(nil), s.items...)
}

func (s *fakeSink) badgeCounts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.badges...)
}

func (s *fakeSink) promptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts
}

type fakeSettings struct {
	bools  map[string]bool
	floats map[string]float64
}

func (s fakeSettings) Bool(key string) bool     { return s.bools[key] }
func (s fakeSettings) Float(key string) float64 { return s.floats[key] }

type flag struct {
	name  string
	value bool
}

type flagRecorder struct {
	mu    sync.Mutex
	flags []flag
}

func (f *flagRecorder) Send(name string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, flag{name, value})
	return nil
}

func (f *flagRecorder) sent() []flag {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]flag(nil), f.flags...)
}
