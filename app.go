package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pushrelay/bridge"
	"pushrelay/desktop"
	"pushrelay/e2e"
	"pushrelay/logging"
	"pushrelay/notify"
	"pushrelay/settings"
	"pushrelay/stream"
	"pushrelay/webview"
)

// App is the tray side of pushrelay. It owns the settings registry, the
// notification queue and the bridge server webview processes post to.
type App struct {
	cfg    Config
	logger *zap.Logger

	bus      *dbus.Conn
	store    *settings.FileStore
	settings *settings.Registry
	platform *platform
	queue    *notify.Queue
	router   *appRouter
}

func newRunCommand(root *rootOptions) *cobra.Command {
	var noWebview bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tray side and the Pushbullet page",
		Long: `Run opens the settings, starts the notification queue and the bridge
socket, then opens the Pushbullet web application and relays what it sees.

With --no-webview only the tray side runs; start "pushrelay webview"
separately to feed it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := newApp(root.cfg, root.logger)
			if err != nil {
				return err
			}
			return app.Run(ctx, !noWebview)
		},
	}
	cmd.Flags().BoolVar(&noWebview, "no-webview", false, "do not open the Pushbullet page in this process")
	return cmd
}

func newApp(cfg Config, logger *zap.Logger) (*App, error) {
	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.Warn("session bus unavailable, notifications go to the log", zap.Error(err))
		bus = nil
	}

	exe, err := os.Executable()
	if err != nil {
		exe = appName
	}
	var badge *desktop.Badge
	if bus != nil {
		badge = desktop.NewBadge(bus, appName+".desktop")
	}
	integration := desktop.New(desktop.NewAutostart(appName, exe+" run"), badge, logger.Named("desktop"))
	plat := newPlatform(integration)

	store := settings.OpenFileStore(settings.DefaultPath(), logger.Named("settings"))
	reg, err := settings.NewRegistry(store, settings.DefaultEntries(settings.DefaultEnv(appName, version)), settings.Options{
		Desktop: plat,
		Logger:  logger.Named("settings"),
	})
	if err != nil {
		if bus != nil {
			_ = bus.Close()
		}
		return nil, fmt.Errorf("settings: %w", err)
	}

	var display notify.Displayer = logDisplayer{logger: logger.Named("notify")}
	if bus != nil {
		display = notify.NewDBusDisplayer(bus, appName, appName)
	}
	queue := notify.NewQueue(notify.Options{
		Display:  display,
		Player:   &notify.CommandPlayer{},
		Settings: reg,
		Badge:    integration,
		Logger:   logger.Named("notify"),
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		store:    store,
		settings: reg,
		platform: plat,
		queue:    queue,
		router:   newAppRouter(queue, plat.CopyToClipboard, logger.Named("router")),
	}, nil
}

// startup fills in defaults, applies every setting and drops unknown keys.
func (a *App) startup() {
	if err := a.settings.ApplyDefaults(); err != nil {
		a.logger.Warn("failed to write default settings", zap.Error(err))
	}
	if err := a.settings.InitializeAll(); err != nil {
		a.logger.Warn("some settings could not be applied", zap.Error(err))
	}
	removed, err := a.settings.RemoveLegacy()
	if err != nil {
		a.logger.Warn("failed to remove legacy settings", zap.Error(err))
	}
	if len(removed) > 0 {
		a.logger.Info("removed legacy settings", zap.Strings("keys", removed))
	}

	if file := a.settings.String(settings.KeyAppLogFile); file != "" {
		logger, err := logging.New(logging.Options{Level: a.cfg.LogLevel, Console: a.cfg.Debug, File: file})
		if err != nil {
			a.logger.Warn("log file unavailable", zap.String("file", file), zap.Error(err))
			return
		}
		a.logger = logger.Named(appName)
	}
}

// Run blocks until ctx ends or a component fails.
func (a *App) Run(ctx context.Context, withWebview bool) error {
	a.logger.Info("starting", zap.String("version", version))
	a.startup()
	defer a.shutdown()

	server, err := bridge.NewServer(a.cfg.Socket, a.router, a.logger.Named("bridge"))
	if err != nil {
		return fmt.Errorf("bridge server: %w", err)
	}
	a.logger.Info("bridge server started", zap.String("socket", server.Path()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Serve)
	g.Go(func() error {
		<-ctx.Done()
		server.Close()
		return nil
	})
	g.Go(func() error {
		return a.queue.Run(ctx)
	})
	g.Go(func() error {
		return a.store.Watch(ctx, func() {
			a.logger.Info("settings file changed on disk, reloaded")
		})
	})
	if withWebview {
		g.Go(func() error {
			return runPage(ctx, a.cfg, a.settings, a.router, a.router, a.platform.Integration, a.logger)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (a *App) shutdown() {
	if err := a.settings.Prettify(); err != nil {
		a.logger.Warn("failed to prettify settings", zap.Error(err))
	}
	if err := a.settings.Close(); err != nil {
		a.logger.Warn("failed to save settings", zap.Error(err))
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	a.logger.Info("stopped")
}

func newWebviewCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "webview",
		Short: "Open the Pushbullet page and post to a running tray process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runWebviewProcess(ctx, root.cfg, root.logger)
		},
	}
}

// runWebviewProcess reads settings from the shared file and reports to the
// tray process over the bridge socket.
func runWebviewProcess(ctx context.Context, cfg Config, logger *zap.Logger) error {
	store := settings.OpenFileStore(settings.DefaultPath(), logger.Named("settings"))
	reg, err := settings.NewRegistry(store, settings.DefaultEntries(settings.DefaultEnv(appName, version)), settings.Options{
		Logger: logger.Named("settings"),
	})
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	defer reg.Close()

	client := bridge.NewClient(cfg.Socket, logger.Named("bridge"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return store.Watch(ctx, func() {})
	})
	g.Go(func() error {
		return runPage(ctx, cfg, reg, client, client, nil, logger)
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// runPage opens the web application and relays it until ctx ends. owner
// receives state flags; integration, when set, adopts the browser window.
func runPage(ctx context.Context, cfg Config, prefs webview.Settings, sink webview.Sink, owner bridge.Channel, integration *desktop.Integration, logger *zap.Logger) error {
	page, err := webview.Open(ctx, cfg.browserOptions(), logger.Named("page"))
	if err != nil {
		return err
	}
	defer page.Close()

	notifier := bridge.NewNotifier(logger.Named("notifier"), owner, webview.NewHostChannel(ctx, page))

	var decrypter stream.Decrypter
	if cfg.E2EPassword != "" {
		key, err := e2e.DeriveKey(cfg.E2EPassword, cfg.UserIden)
		if err != nil {
			return fmt.Errorf("encryption key: %w", err)
		}
		decrypter = key
	}

	relay := webview.New(webview.Options{
		Page:         page,
		Sink:         sink,
		Settings:     prefs,
		Notifier:     notifier,
		Decrypter:    decrypter,
		DirectStream: cfg.AccessToken != "",
		Debug:        cfg.Debug,
		Logger:       logger.Named("relay"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(ctx)
	})
	if cfg.AccessToken != "" {
		client := stream.NewClient(cfg.AccessToken, logger.Named("stream"))
		g.Go(func() error {
			return client.Run(ctx, func(frame []byte) {
				relay.Decoder().HandleFrame(frame)
			})
		})
	}
	if integration != nil {
		window := desktop.NewWindow(page.Rod(), logger.Named("window"))
		integration.AttachWindow(window)
		g.Go(func() error {
			window.Watch(ctx, nil)
			return nil
		})
	}
	return g.Wait()
}

// logDisplayer stands in for the notification daemon when there is no
// session bus.
type logDisplayer struct {
	logger *zap.Logger
}

func (d logDisplayer) Show(_ context.Context, n notify.Notification) (uint32, error) {
	d.logger.Info("notification", zap.String("title", n.Title), zap.String("body", n.Body), zap.String("url", n.URL))
	return 0, nil
}
