// Package webview attaches the relay to the Pushbullet web application
// running in a browser page. It waits for the page's objects to exist,
// installs observing proxies on them, and forwards what they see to the
// classifier, the stream decoder and the notifier.
package webview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

// DefaultURL is the Pushbullet web application.
const DefaultURL = "https://www.pushbullet.com/"

// Page is the browser page the relay drives.
type Page interface {
	// Eval calls the JS function js with args and decodes its result into
	// out. out may be nil.
	Eval(ctx context.Context, js string, out any, args ...any) error
	// Bind exposes fn as window[name]. The page calls it with one JSON
	// argument.
	Bind(ctx context.Context, name string, fn func(payload json.RawMessage)) error
}

// BrowserOptions says how to reach the browser.
type BrowserOptions struct {
	// ControlURL connects to a running browser. Empty launches one.
	ControlURL  string
	Bin         string
	Headless    bool
	UserDataDir string
	URL         string
}

// RodPage is a Page backed by a Chrome tab over the DevTools protocol.
type RodPage struct {
	browser *rod.Browser
	page    *rod.Page
	logger  *zap.Logger
}

// Open connects to (or launches) a browser and opens the web application.
func Open(ctx context.Context, opts BrowserOptions, logger *zap.Logger) (*RodPage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		if opts.UserDataDir != "" {
			// Keeps the Pushbullet login between runs.
			l = l.UserDataDir(opts.UserDataDir)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
	}

	// The connection outlives ctx so Close can still shut the browser down.
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	url := opts.URL
	if url == "" {
		url = DefaultURL
	}
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	logger.Info("browser page opened", zap.String("url", url), zap.String("control", controlURL))
	return &RodPage{browser: browser, page: page, logger: logger}, nil
}

// Rod returns the underlying page, which also serves as the window target.
func (p *RodPage) Rod() *rod.Page { return p.page }

// Eval implements Page.
func (p *RodPage) Eval(ctx context.Context, js string, out any, args ...any) error {
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(js, args...).ByPromise())
	if err != nil {
		return err
	}
	if out == nil || res == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Bind implements Page. The binding lives until ctx ends.
func (p *RodPage) Bind(ctx context.Context, name string, fn func(json.RawMessage)) error {
	_, err := p.page.Context(ctx).Expose(name, func(arg gson.JSON) (interface{}, error) {
		raw, err := arg.MarshalJSON()
		if err != nil {
			return nil, err
		}
		fn(raw)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	return nil
}

// Close closes the browser.
func (p *RodPage) Close() error {
	if p.browser == nil {
		return nil
	}
	if err := p.browser.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
