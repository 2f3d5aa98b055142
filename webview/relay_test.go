package webview

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pushrelay/bridge"
	"pushrelay/classify"
	"pushrelay/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func startRelay(t *testing.T, page *fakePage, sink *fakeSink, prefs fakeSettings, direct bool) (*Relay, *flagRecorder) {
	t.Helper()
	flags := &flagRecorder{}
	r := New(Options{
		Page:         page,
		Sink:         sink,
		Settings:     prefs,
		Notifier:     bridge.NewNotifier(nil, flags),
		DirectStream: direct,
		Debug:        true,
		Interval:     tick,
	})
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Close)
	return r, flags
}

func noPrefs() fakeSettings {
	return fakeSettings{bools: map[string]bool{}, floats: map[string]float64{}}
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func write(key, value string, listed bool, target, model string) map[string]any {
	return map[string]any{
		"key":    key,
		"value":  raw(value),
		"listed": listed,
		"target": target,
		"model":  model,
	}
}

func idens(items []enqueued) []string {
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, e.item.Iden)
	}
	return out
}

func waitInstalled(t *testing.T, r *Relay, names ...string) {
	t.Helper()
	for _, name := range names {
		require.Eventually(t, func() bool { return r.hook(name).Installed() }, waitFor, tick, name)
	}
}

func TestLoginFlow(t *testing.T) {
	page := newFakePage()
	page.set(func(p *fakePage) {
		p.ready = true
		p.active = true
		p.devices = map[string]string{"ME": classify.LocalModel}
		p.all["pushes"] = []json.RawMessage{
			raw(`{"iden":"a","created":200}`),
			raw(`{"iden":"b","created":150}`),
			raw(`{"iden":"c","created":50}`),
			raw(`{"iden":"d","created":300,"dismissed":true}`),
			raw(`{"iden":"e","created":400,"direction":"outgoing"}`),
		}
	})
	sink := &fakeSink{}
	prefs := noPrefs()
	prefs.floats[settings.KeyLastNotificationTimestamp] = 100
	prefs.bools[settings.KeyRepeatRecentNotifications] = true

	r, flags := startRelay(t, page, sink, prefs, false)

	require.Eventually(t, r.LoggedIn, waitFor, tick)
	assert.Equal(t, []int{4}, sink.badgeCounts())

	got := sink.received()
	assert.Equal(t, []string{"b", "a"}, idens(got))
	for _, e := range got {
		assert.False(t, e.sound)
		assert.True(t, e.replay)
	}

	assert.Equal(t, []flag{{bridge.TypeOnline, true}, {bridge.TypeLogin, true}}, flags.sent())

	waitInstalled(t, r, "error", "pushes", "texts", "socket", "interface")
	assert.True(t, page.isEnhanced())
	assert.Equal(t, 1, page.hookCount("connectivity"))
	page.set(func(p *fakePage) { assert.Equal(t, true, p.debug) })
}

func TestNoReplayWithoutPreference(t *testing.T) {
	page := newFakePage()
	page.set(func(p *fakePage) {
		p.ready = true
		p.active = true
		p.all["pushes"] = []json.RawMessage{raw(`{"iden":"a","created":200}`)}
	})
	sink := &fakeSink{}
	prefs := noPrefs()
	prefs.floats[settings.KeyLastNotificationTimestamp] = 100

	r, _ := startRelay(t, page, sink, prefs, false)
	require.Eventually(t, r.LoggedIn, waitFor, tick)
	assert.Empty(t, sink.received())
	assert.Equal(t, []int{1}, sink.badgeCounts())
}

func TestProxiedWritesNotifyOnce(t *testing.T) {
	page := newFakePage()
	page.set(func(p *fakePage) {
		p.ready = true
		p.active = true
		p.devices = map[string]string{"ME": classify.LocalModel}
		p.objs["pushes"]["old"] = raw(`{"iden":"old"}`)
	})
	sink := &fakeSink{}
	r, _ := startRelay(t, page, sink, noPrefs(), false)
	waitInstalled(t, r, "pushes", "texts")

	const pushes, texts = "__pushrelay_pushes", "__pushrelay_texts"
	page.emit(pushes, write("old", `{"iden":"old"}`, false, "", ""))
	page.emit(pushes, write("n1", `{"iden":"n1","title":"hi","target_device_iden":"ME"}`, false, "ME", classify.LocalModel))
	page.emit(pushes, write("n1", `{"iden":"n1","title":"hi","target_device_iden":"ME"}`, false, "ME", classify.LocalModel))
	page.emit(pushes, write("n2", `{"iden":"n2","target_device_iden":"PHONE"}`, false, "PHONE", "android"))
	page.emit(pushes, write("n3", `{"iden":"n3"}`, true, "", ""))
	page.emit(pushes, write("n4", `{"iden":"n4","direction":"outgoing"}`, false, "", ""))
	page.emit(texts, write("t1", `{"iden":"t1","direction":"outgoing","data":{"target_device_iden":"ME"}}`, false, "ME", classify.LocalModel))
	page.emit(pushes, write("null", `null`, false, "", ""))

	got := sink.received()
	assert.Equal(t, []string{"n1", "t1"}, idens(got))
	for _, e := range got {
		assert.True(t, e.sound)
	}
	assert.Equal(t, 1, page.hookCount("pushes"))
}

func TestSnapshotDifferFallback(t *testing.T) {
	page := newFakePage()
	page.set(func(p *fakePage) {
		p.ready = true
		p.active = true
		p.refuse["pushes"] = true
		p.objs["pushes"]["old"] = raw(`{"iden":"old"}`)
	})
	sink := &fakeSink{}
	r, _ := startRelay(t, page, sink, noPrefs(), false)
	waitInstalled(t, r, "pushes")
	assert.Equal(t, 0, page.hookCount("pushes"))

	page.set(func(p *fakePage) {
		p.objs["pushes"]["new"] = raw(`{"iden":"new","title":"fresh"}`)
	})

	require.Eventually(t, func() bool { return len(sink.received()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"new"}, idens(sink.received()))

	// Later snapshots must not report it again.
	time.Sleep(10 * tick)
	assert.Len(t, sink.received(), 1)
}

func TestErrorTitleReportsNetworkLoss(t *testing.T) {
	page := newFakePage()
	_, flags := startRelay(t, page, &fakeSink{}, noPrefs(), false)

	page.emit(bindingError, "Bad Request")
	assert.Empty(t, flags.sent())

	page.emit(bindingError, "Network Error")
	page.emit(bindingError, "Network Error")
	assert.Equal(t, []flag{{bridge.TypeOnline, false}, {bridge.TypeOnline, false}}, flags.sent())
}

func TestConnectivityEvents(t *testing.T) {
	page := newFakePage()
	_, flags := startRelay(t, page, &fakeSink{}, noPrefs(), false)

	page.emit(bindingOnline, false)
	page.emit(bindingOnline, true)
	assert.Equal(t, []flag{{bridge.TypeOnline, false}, {bridge.TypeOnline, true}}, flags.sent())
}

func TestSocketFrames(t *testing.T) {
	page := newFakePage()
	sink := &fakeSink{}
	prefs := noPrefs()
	startRelay(t, page, sink, prefs, false)

	page.emit(bindingFrame, `{"type":"push","push":{"type":"mirror","iden":"m1","title":"t","application_name":"App"}}`)
	page.emit(bindingFrame, `{"type":"push","push":{"type":"sms_changed","notifications":[{"title":"x"}]}}`)
	page.emit(bindingFrame, `{"type":"push","push":{"encrypted":true,"ciphertext":"abc"}}`)
	page.emit(bindingFrame, `{"type":"push","push":{"type":"clip","body":"copied"}}`)
	page.emit(bindingFrame, `{"type":"nop"}`)
	page.emit(bindingFrame, `not json`)

	got := sink.received()
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].item.Iden)
	assert.True(t, got[0].sound)
	assert.Equal(t, 1, sink.promptCount())
	sink.mu.Lock()
	assert.Len(t, sink.clips, 1)
	sink.mu.Unlock()
}

func TestDirectStreamLeavesPageSocketAlone(t *testing.T) {
	page := newFakePage()
	page.set(func(p *fakePage) {
		p.ready = true
		p.active = true
	})
	r, _ := startRelay(t, page, &fakeSink{}, noPrefs(), true)

	waitInstalled(t, r, "error", "pushes", "texts", "interface")
	r.hooksMu.Lock()
	_, ok := r.hooks["socket"]
	r.hooksMu.Unlock()
	assert.False(t, ok)
	assert.Equal(t, 0, page.hookCount("socket"))
}

func TestCloseStopsWaitingPollers(t *testing.T) {
	page := newFakePage()
	r, _ := startRelay(t, page, &fakeSink{}, noPrefs(), false)

	time.Sleep(5 * tick)
	r.Close()
	assert.False(t, r.LoggedIn())
}
