// Package push holds the Pushbullet item shapes shared by the classifier,
// the stream decoder and the notification queue.
package push

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind says which external collection an item came from.
type Kind string

const (
	KindPush Kind = "push"
	KindText Kind = "text"
)

// Directions used by pushes.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
	DirectionSelf     = "self"
)

// Ephemeral push types carried by the real-time stream.
const (
	TypeMirror     = "mirror"
	TypeSMSChanged = "sms_changed"
	TypeClip       = "clip"
	TypeDismissal  = "dismissal"
)

// Item is a push or a text as the web application stores it. Fields the relay
// does not look at are kept in Raw.
type Item struct {
	Kind             Kind    `json:"-"`
	Iden             string  `json:"iden,omitempty"`
	Type             string  `json:"type,omitempty"`
	Created          float64 `json:"created,omitempty"`
	Modified         float64 `json:"modified,omitempty"`
	Direction        string  `json:"direction,omitempty"`
	TargetDeviceIden string  `json:"target_device_iden,omitempty"`
	SourceDeviceIden string  `json:"source_device_iden,omitempty"`
	Title            string  `json:"title,omitempty"`
	Body             string  `json:"body,omitempty"`
	URL              string  `json:"url,omitempty"`
	FileName         string  `json:"file_name,omitempty"`
	ApplicationName  string  `json:"application_name,omitempty"`
	SenderName       string  `json:"sender_name,omitempty"`
	Icon             string  `json:"icon,omitempty"`
	Dismissed        bool    `json:"dismissed,omitempty"`
	Encrypted        bool    `json:"encrypted,omitempty"`
	Ciphertext       string  `json:"ciphertext,omitempty"`

	Data          *TextData       `json:"data,omitempty"`
	Notifications []SMSMessage    `json:"notifications,omitempty"`
	Raw           json.RawMessage `json:"-"`

	hasDirection bool
	hasTarget    bool
}

// TextData is the payload of a text (SMS sent from the web application).
type TextData struct {
	TargetDeviceIden string `json:"target_device_iden,omitempty"`
	Message          string `json:"message,omitempty"`
	hasTarget        bool
}

// SMSMessage is one entry of an sms_changed push.
type SMSMessage struct {
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	ThreadID  string  `json:"thread_id,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

type itemAlias Item

// UnmarshalJSON decodes an item, keeping the raw bytes and recording whether
// optional fields were present at all.
func (it *Item) UnmarshalJSON(b []byte) error {
	var a itemAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	kind := it.Kind
	*it = Item(a)
	it.Kind = kind
	it.Raw = append(json.RawMessage(nil), b...)
	_, it.hasDirection = fields["direction"]
	_, it.hasTarget = fields["target_device_iden"]
	if it.Data != nil {
		var data map[string]json.RawMessage
		if raw, ok := fields["data"]; ok && json.Unmarshal(raw, &data) == nil {
			_, it.Data.hasTarget = data["target_device_iden"]
		}
	}
	return nil
}

// MarshalJSON returns Raw when the item was decoded, so unknown fields survive
// a round trip through the relay.
func (it Item) MarshalJSON() ([]byte, error) {
	if len(it.Raw) > 0 {
		return it.Raw, nil
	}
	return json.Marshal(itemAlias(it))
}

// Parse decodes an item of the given kind.
func Parse(kind Kind, b []byte) (Item, error) {
	it := Item{Kind: kind}
	if err := json.Unmarshal(b, &it); err != nil {
		return Item{}, fmt.Errorf("parse %s: %w", kind, err)
	}
	return it, nil
}

// Target returns the target device iden and whether the item declares one.
// Pushes carry it at the top level, texts under data.
func (it Item) Target() (string, bool) {
	if it.Kind == KindText {
		if it.Data == nil {
			return "", false
		}
		return it.Data.TargetDeviceIden, it.Data.hasTarget || it.Data.TargetDeviceIden != ""
	}
	return it.TargetDeviceIden, it.hasTarget || it.TargetDeviceIden != ""
}

// Incoming reports whether the item is inbound. A missing direction means
// incoming; any other value than "incoming" does not.
func (it Item) Incoming() bool {
	if !it.hasDirection && it.Direction == "" {
		return true
	}
	return it.Direction == DirectionIncoming
}

// CreatedAt converts the float seconds timestamp.
func (it Item) CreatedAt() time.Time {
	sec := int64(it.Created)
	nsec := int64((it.Created - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
