package webview

import (
	"context"
	"fmt"
	"time"
)

const pageCallTimeout = 5 * time.Second

// PageDecrypter opens encrypted pushes with the web application's own
// end-to-end key, so the password never leaves the page.
type PageDecrypter struct {
	ctx  context.Context
	page Page
}

// NewPageDecrypter returns a decrypter evaluating in page. Calls stop when
// ctx ends.
func NewPageDecrypter(ctx context.Context, page Page) *PageDecrypter {
	return &PageDecrypter{ctx: ctx, page: page}
}

// Enabled reports whether the user entered an encryption password.
func (d *PageDecrypter) Enabled() bool {
	ctx, cancel := context.WithTimeout(d.ctx, pageCallTimeout)
	defer cancel()
	var on bool
	if err := d.page.Eval(ctx, jsE2EEnabled, &on); err != nil {
		return false
	}
	return on
}

// Decrypt returns the plaintext JSON of an encrypted push.
func (d *PageDecrypter) Decrypt(ciphertext string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(d.ctx, pageCallTimeout)
	defer cancel()
	var plain string
	if err := d.page.Eval(ctx, jsE2EDecrypt, &plain, ciphertext); err != nil {
		return nil, fmt.Errorf("page decrypt: %w", err)
	}
	return []byte(plain), nil
}

// HostChannel delivers state flags to whatever embeds the page, as
// "pushrelay:<name>" DOM events on window.
type HostChannel struct {
	ctx  context.Context
	page Page
}

// NewHostChannel returns a HostChannel for page.
func NewHostChannel(ctx context.Context, page Page) *HostChannel {
	return &HostChannel{ctx: ctx, page: page}
}

// Send implements bridge.Channel.
func (h *HostChannel) Send(name string, value bool) error {
	ctx, cancel := context.WithTimeout(h.ctx, pageCallTimeout)
	defer cancel()
	if err := h.page.Eval(ctx, jsDispatchHost, nil, name, value); err != nil {
		return fmt.Errorf("dispatch %s to host: %w", name, err)
	}
	return nil
}
