// Package notify turns accepted pushes into desktop notifications. A single
// worker shows them in order, plays the sound, and keeps the unread badge.
package notify

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pushrelay/push"
)

// Notification is one desktop notification.
type Notification struct {
	ID      string
	Title   string
	Body    string
	URL     string
	Created float64
	Source  string
}

// Render builds the notifications for item. sms_changed pushes produce one
// per message and none when the thread was only cleared.
func Render(item push.Item, hideBody bool) []Notification {
	var out []Notification
	add := func(title, body string, created float64) {
		title = strings.TrimSpace(title)
		body = strings.TrimSpace(body)
		if title == "" {
			title = "Pushbullet"
		}
		if hideBody {
			body = ""
		}
		out = append(out, Notification{
			ID:      uuid.NewString(),
			Title:   title,
			Body:    body,
			URL:     item.URL,
			Created: created,
			Source:  item.Iden,
		})
	}

	switch {
	case item.Type == push.TypeSMSChanged:
		for _, m := range item.Notifications {
			add(m.Title, m.Body, m.Timestamp)
		}
	case item.Type == push.TypeMirror:
		title := item.Title
		if item.ApplicationName != "" && item.ApplicationName != title {
			title = fmt.Sprintf("%s: %s", item.ApplicationName, title)
		}
		add(title, item.Body, item.Created)
	case item.Kind == push.KindText:
		body := ""
		if item.Data != nil {
			body = item.Data.Message
		}
		add("SMS", body, item.Created)
	default:
		title := item.Title
		if title == "" {
			title = firstNonEmpty(item.SenderName, item.FileName, item.URL)
		}
		body := item.Body
		if body == "" && item.URL != "" && title != item.URL {
			body = item.URL
		}
		add(title, body, item.Created)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// PasswordPrompt is shown when an encrypted push arrives and no password is set.
func PasswordPrompt() Notification {
	return Notification{
		ID:    uuid.NewString(),
		Title: "End-to-End Encryption",
		Body:  "Could not open message.\nClick here to enter your password.",
		URL:   "/#settings",
	}
}
