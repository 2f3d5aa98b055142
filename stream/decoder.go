// Package stream consumes the Pushbullet real-time event stream.
package stream

import (
	"encoding/json"

	"go.uber.org/zap"

	"pushrelay/push"
)

// Decrypter opens encrypted push payloads.
type Decrypter interface {
	Enabled() bool
	Decrypt(ciphertext string) ([]byte, error)
}

// Enqueuer receives items to show as notifications.
type Enqueuer interface {
	Enqueue(item push.Item, playSound bool)
}

// ClipReceiver receives universal clipboard pushes.
type ClipReceiver interface {
	ReceiveClip(item push.Item)
}

// Prompter asks the user to enter the encryption password.
type Prompter interface {
	PromptPassword()
}

// Outcome says what HandleFrame did with a frame.
type Outcome int

const (
	Dropped Outcome = iota
	Ignored
	Prompted
	Enqueued
	Clipped
)

func (o Outcome) String() string {
	switch o {
	case Dropped:
		return "dropped"
	case Ignored:
		return "ignored"
	case Prompted:
		return "prompted"
	case Enqueued:
		return "enqueued"
	case Clipped:
		return "clipped"
	default:
		return "unknown"
	}
}

type frame struct {
	Type string          `json:"type"`
	Push json.RawMessage `json:"push"`
}

type envelope struct {
	Type       string `json:"type"`
	Encrypted  bool   `json:"encrypted"`
	Ciphertext string `json:"ciphertext"`
}

// Decoder parses stream frames and dispatches pushes by type.
type Decoder struct {
	Decrypter  Decrypter
	Enqueuer   Enqueuer
	Clipboard  ClipReceiver
	Prompter   Prompter
	SMSEnabled func() bool
	Logger     *zap.Logger
}

func (d *Decoder) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// HandleFrame processes one text frame. Malformed frames are logged and
// dropped; nothing here returns an error to the transport.
func (d *Decoder) HandleFrame(raw []byte) Outcome {
	log := d.logger()

	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Warn("stream frame is not json", zap.Error(err))
		return Dropped
	}
	if f.Type != "push" {
		return Ignored
	}
	if len(f.Push) == 0 || string(f.Push) == "null" {
		return Ignored
	}

	var env envelope
	if err := json.Unmarshal(f.Push, &env); err != nil {
		log.Warn("stream push is not an object", zap.Error(err))
		return Dropped
	}

	payload := []byte(f.Push)
	if env.Encrypted {
		if d.Decrypter == nil || !d.Decrypter.Enabled() {
			if d.Prompter != nil {
				d.Prompter.PromptPassword()
			}
			return Prompted
		}
		plain, err := d.Decrypter.Decrypt(env.Ciphertext)
		if err != nil {
			log.Warn("stream push decryption failed", zap.Error(err))
			return Dropped
		}
		env = envelope{}
		if err := json.Unmarshal(plain, &env); err != nil {
			log.Warn("decrypted push is not json", zap.Error(err))
			return Dropped
		}
		payload = plain
	}

	if env.Type == "" {
		return Ignored
	}
	log.Debug("stream push", zap.String("type", env.Type))

	switch env.Type {
	case push.TypeMirror, push.TypeSMSChanged:
		if env.Type == push.TypeSMSChanged && d.SMSEnabled != nil && !d.SMSEnabled() {
			return Ignored
		}
		item, err := push.Parse(push.KindPush, payload)
		if err != nil {
			log.Warn("stream push has unexpected shape", zap.Error(err))
			return Dropped
		}
		if d.Enqueuer != nil {
			d.Enqueuer.Enqueue(item, true)
		}
		return Enqueued
	case push.TypeClip:
		item, err := push.Parse(push.KindPush, payload)
		if err != nil {
			log.Warn("stream clip has unexpected shape", zap.Error(err))
			return Dropped
		}
		if d.Clipboard != nil {
			d.Clipboard.ReceiveClip(item)
		}
		return Clipped
	default:
		return Ignored
	}
}
