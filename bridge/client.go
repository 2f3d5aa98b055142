package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pushrelay/push"
)

// Client sends messages to the tray process over the bridge socket. Each
// message opens a fresh connection.
type Client struct {
	sockPath string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient creates a Client for sockPath, or SocketPath when empty.
func NewClient(sockPath string, logger *zap.Logger) *Client {
	if sockPath == "" {
		sockPath = SocketPath()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{sockPath: sockPath, timeout: 5 * time.Second, logger: logger}
}

// Send implements Channel for the online and login flags.
func (c *Client) Send(name string, value bool) error {
	return c.Post(Message{Type: name, Value: value})
}

// Post sends msg and waits for the acknowledgement.
func (c *Client) Post(msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	resp, err := c.send(msg)
	if err != nil {
		return fmt.Errorf("bridge %s: %w", msg.Type, err)
	}
	if resp.Type == "Error" {
		return fmt.Errorf("bridge error (code %d): %s", resp.Code, resp.Message)
	}
	return nil
}

// Enqueue forwards an accepted item to the tray's notification queue.
func (c *Client) Enqueue(item push.Item, playSound bool) {
	c.postItem(TypePush, item, playSound)
}

// Replay forwards an item replayed at login.
func (c *Client) Replay(item push.Item) {
	c.postItem(TypeReplay, item, false)
}

// ReceiveClip forwards a clipboard push.
func (c *Client) ReceiveClip(item push.Item) {
	c.postItem(TypeClip, item, false)
}

// PromptPassword asks the tray to show the encryption password prompt.
func (c *Client) PromptPassword() {
	c.logError(c.Post(Message{Type: TypePrompt}))
}

// SetBadgeCount forwards the unread count.
func (c *Client) SetBadgeCount(n int) error {
	return c.Post(Message{Type: TypeBadge, Count: n})
}

func (c *Client) postItem(typ string, item push.Item, sound bool) {
	raw, err := json.Marshal(item)
	if err != nil {
		c.logError(fmt.Errorf("encode %s: %w", typ, err))
		return
	}
	c.logError(c.Post(Message{Type: typ, Item: raw, Kind: item.Kind, Sound: sound}))
}

func (c *Client) logError(err error) {
	if err != nil {
		c.logger.Warn("bridge send failed", zap.Error(err))
	}
}

// send opens a connection, writes the message, reads one response, and closes.
func (c *Client) send(msg Message) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.sockPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to bridge at %s: %w (is the tray app running?)", c.sockPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}
		return nil, fmt.Errorf("bridge closed connection")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}
	return &resp, nil
}
