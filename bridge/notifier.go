package bridge

import (
	"strings"

	"go.uber.org/zap"
)

// NetworkMarker in an error title means the page lost its connection.
const NetworkMarker = "Network"

// Channel delivers a named boolean flag to one consumer.
type Channel interface {
	Send(name string, value bool) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(name string, value bool) error

func (f ChannelFunc) Send(name string, value bool) error { return f(name, value) }

// Notifier forwards connectivity and login state to the owning process and
// to the hosting container. Repeated identical states are sent again;
// consumers get at-least-once delivery.
type Notifier struct {
	channels []Channel
	logger   *zap.Logger
}

// NewNotifier sends every flag on each of channels.
func NewNotifier(logger *zap.Logger, channels ...Channel) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{channels: channels, logger: logger}
}

// Online reports a connectivity transition.
func (n *Notifier) Online(online bool) {
	n.emit(TypeOnline, online)
}

// Login reports that the user is logged in (or out).
func (n *Notifier) Login(loggedIn bool) {
	n.emit(TypeLogin, loggedIn)
}

// NetworkError inspects an error title set by the page and reports the
// connection as lost when it names a network failure. It reports whether a
// flag was sent.
func (n *Notifier) NetworkError(title string) bool {
	if !strings.Contains(title, NetworkMarker) {
		return false
	}
	n.emit(TypeOnline, false)
	return true
}

func (n *Notifier) emit(name string, value bool) {
	n.logger.Debug("state", zap.String("name", name), zap.Bool("value", value))
	for _, c := range n.channels {
		if c == nil {
			continue
		}
		if err := c.Send(name, value); err != nil {
			n.logger.Warn("failed to send state", zap.String("name", name), zap.Bool("value", value), zap.Error(err))
		}
	}
}
