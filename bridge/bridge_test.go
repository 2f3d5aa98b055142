package bridge

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pushrelay/push"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingRouter struct {
	mu      sync.Mutex
	online  []bool
	login   []bool
	pushes  []push.Item
	sounds  []bool
	clips   []push.Item
	replays []push.Item
	badges  []int
	prompts int
}

func (r *recordingRouter) Online(v bool) { r.mu.Lock(); r.online = append(r.online, v); r.mu.Unlock() }
func (r *recordingRouter) Login(v bool)  { r.mu.Lock(); r.login = append(r.login, v); r.mu.Unlock() }
func (r *recordingRouter) Badge(n int)   { r.mu.Lock(); r.badges = append(r.badges, n); r.mu.Unlock() }
func (r *recordingRouter) Prompt()       { r.mu.Lock(); r.prompts++; r.mu.Unlock() }
func (r *recordingRouter) Clip(it push.Item) {
	r.mu.Lock()
	r.clips = append(r.clips, it)
	r.mu.Unlock()
}
func (r *recordingRouter) Replay(it push.Item) {
	r.mu.Lock()
	r.replays = append(r.replays, it)
	r.mu.Unlock()
}
func (r *recordingRouter) Push(it push.Item, sound bool) {
	r.mu.Lock()
	r.pushes = append(r.pushes, it)
	r.sounds = append(r.sounds, sound)
	r.mu.Unlock()
}

func startServer(t *testing.T, router Router) (*Server, *Client) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "b.sock")
	srv, err := NewServer(path, router, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, <-done)
	})
	return srv, NewClient(path, nil)
}

func TestClientServerRoundTrip(t *testing.T) {
	router := &recordingRouter{}
	_, client := startServer(t, router)

	require.NoError(t, client.Send(TypeOnline, true))
	require.NoError(t, client.Send(TypeOnline, false))
	require.NoError(t, client.Send(TypeLogin, true))
	require.NoError(t, client.SetBadgeCount(4))
	client.PromptPassword()

	it, err := push.Parse(push.KindText, []byte(`{"iden":"t1","data":{"target_device_iden":"dev","message":"hi"}}`))
	require.NoError(t, err)
	client.Enqueue(it, true)

	clip, err := push.Parse(push.KindPush, []byte(`{"type":"clip","body":"copied"}`))
	require.NoError(t, err)
	client.ReceiveClip(clip)

	old, err := push.Parse(push.KindPush, []byte(`{"iden":"p0","created":150}`))
	require.NoError(t, err)
	client.Replay(old)

	router.mu.Lock()
	defer router.mu.Unlock()
	assert.Equal(t, []bool{true, false}, router.online)
	assert.Equal(t, []bool{true}, router.login)
	assert.Equal(t, []int{4}, router.badges)
	assert.Equal(t, 1, router.prompts)

	require.Len(t, router.pushes, 1)
	assert.Equal(t, "t1", router.pushes[0].Iden)
	assert.Equal(t, push.KindText, router.pushes[0].Kind)
	target, ok := router.pushes[0].Target()
	assert.True(t, ok)
	assert.Equal(t, "dev", target)
	assert.Equal(t, []bool{true}, router.sounds)

	require.Len(t, router.clips, 1)
	assert.Equal(t, "copied", router.clips[0].Body)

	require.Len(t, router.replays, 1)
	assert.Equal(t, "p0", router.replays[0].Iden)
}

func TestServerRejectsUnknownAndMalformed(t *testing.T) {
	router := &recordingRouter{}
	srv, client := startServer(t, router)

	err := client.Post(Message{Type: "reboot"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message type")

	resp := srv.handleMessage([]byte("not json"))
	assert.Equal(t, CodeParse, resp.Code)

	resp = srv.handleMessage([]byte(`{"type":"push","item":"nope"}`))
	assert.Equal(t, CodeInvalid, resp.Code)
}

func TestResponseEchoesID(t *testing.T) {
	srv, _ := startServer(t, &recordingRouter{})
	resp := srv.handleMessage([]byte(`{"id":"abc","type":"login","value":true}`))
	assert.Equal(t, Response{ID: "abc", Type: "OK"}, resp)
}

func TestClientWithoutServer(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "missing.sock"), nil)
	assert.Error(t, client.Send(TypeOnline, true))
	// Fire-and-forget calls only log.
	client.PromptPassword()
}

type recorder struct {
	name   string
	mu     sync.Mutex
	events []string
	err    error
}

func (r *recorder) Send(name string, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := "false"
	if value {
		v = "true"
	}
	r.events = append(r.events, name+"="+v)
	return r.err
}

func TestNotifierSendsOnBothChannels(t *testing.T) {
	owner := &recorder{name: "owner"}
	host := &recorder{name: "host", err: errors.New("host gone")}
	n := NewNotifier(nil, owner, host)

	n.Online(true)
	n.Online(true)
	n.Login(true)
	assert.False(t, n.NetworkError("Something else"))
	assert.True(t, n.NetworkError("Network Error"))

	want := []string{"online=true", "online=true", "login=true", "online=false"}
	assert.Equal(t, want, owner.events)
	assert.Equal(t, want, host.events)
}

func TestChannelFunc(t *testing.T) {
	var got string
	n := NewNotifier(nil, ChannelFunc(func(name string, value bool) error {
		got = name
		return nil
	}), nil)
	n.Login(false)
	assert.Equal(t, TypeLogin, got)
}
