package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultURL is the Pushbullet stream endpoint; the access token is appended.
const DefaultURL = "wss://stream.pushbullet.com/websocket/"

// DefaultReadTimeout covers the server's nop heartbeat, sent every 30
// seconds, with some slack.
const DefaultReadTimeout = 45 * time.Second

// Client reads text frames from the stream and hands them to a handler,
// reconnecting after a fixed delay when the connection drops.
type Client struct {
	URL            string
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
	// ReadTimeout bounds the wait for each frame. A silent connection is
	// dropped and redialled.
	ReadTimeout    time.Duration
	Logger         *zap.Logger
}

// NewClient returns a Client for the given access token.
func NewClient(token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		URL:            DefaultURL + strings.TrimSpace(token),
		Dialer:         websocket.DefaultDialer,
		ReconnectDelay: 5 * time.Second,
		ReadTimeout:    DefaultReadTimeout,
		Logger:         logger,
	}
}

// Run connects and delivers frames until ctx ends.
func (c *Client) Run(ctx context.Context, handle func([]byte)) error {
	for {
		err := c.runOnce(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		c.Logger.Warn("stream disconnected", zap.Error(err), zap.Duration("retry_in", c.ReconnectDelay))

		timer := time.NewTimer(c.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Client) runOnce(ctx context.Context, handle func([]byte)) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, c.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial stream: %w (http %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()
	c.Logger.Info("stream connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	timeout := c.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("read deadline: %w", err)
		}
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("stream closed by server")
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}
