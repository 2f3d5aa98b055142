package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"

	"pushrelay/push"
)

// Message types carried over the socket.
const (
	TypeOnline = "online"
	TypeLogin  = "login"
	TypePush   = "push"
	TypeReplay = "replay"
	TypeClip   = "clip"
	TypeBadge  = "badge"
	TypePrompt = "prompt"
)

// Message is the wire format for one line sent to the tray process.
type Message struct {
	ID    string          `json:"id,omitempty"`    // uuid, echoed in the response
	Type  string          `json:"type"`            // one of the Type* constants
	Value bool            `json:"value"`           // flag for online and login
	Count int             `json:"count,omitempty"` // badge count
	Sound bool            `json:"sound,omitempty"` // play the notification sound
	Item  json.RawMessage `json:"item,omitempty"`  // push or text for push, replay and clip
	Kind  push.Kind       `json:"kind,omitempty"`  // collection the item came from
}

// Response acknowledges one Message.
type Response struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`              // "OK" or "Error"
	Code    int    `json:"code,omitempty"`    // error code
	Message string `json:"message,omitempty"` // error message
}

// Router handles messages on the tray side. Implemented by the main app.
type Router interface {
	Online(online bool)
	Login(loggedIn bool)
	Push(item push.Item, playSound bool)
	// Replay shows an item already included in the badge count.
	Replay(item push.Item)
	Clip(item push.Item)
	Badge(count int)
	Prompt()
}

// SocketPath returns the path to the bridge Unix socket.
// Creates the parent directory if it does not exist.
func SocketPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir, _ = os.UserHomeDir()
	}
	dir := filepath.Join(configDir, "pushrelay")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "pushrelay.sock")
}
