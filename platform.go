package main

import (
	"github.com/atotto/clipboard"

	"pushrelay/desktop"
	"pushrelay/settings"
)

// platform is what the settings entries and the router need from the OS.
type platform struct {
	*desktop.Integration
	writeClipboard func(text string) error
}

func newPlatform(d *desktop.Integration) *platform {
	return &platform{Integration: d, writeClipboard: clipboard.WriteAll}
}

// Window implements settings.Desktop.
func (p *platform) Window() (settings.Window, bool) {
	w, ok := p.Integration.Window()
	if !ok {
		return nil, false
	}
	return w, true
}

// CopyToClipboard replaces the clipboard contents.
func (p *platform) CopyToClipboard(text string) error {
	return p.writeClipboard(text)
}
