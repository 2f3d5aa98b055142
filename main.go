package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pushrelay/logging"
)

const appName = "pushrelay"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions holds the global flags and what PersistentPreRunE derives
// from them.
type rootOptions struct {
	configPath string
	flags      Config

	cfg    Config
	logger *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Relay Pushbullet notifications to the desktop",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", configPath(), "path to config.yaml")
	pf.StringVar(&opts.flags.PageURL, "url", "", "Pushbullet web application URL")
	pf.StringVar(&opts.flags.ControlURL, "control-url", "", "DevTools URL of a running browser")
	pf.StringVar(&opts.flags.Browser, "browser", "", "browser binary to launch")
	pf.BoolVar(&opts.flags.Headless, "headless", false, "launch the browser headless")
	pf.StringVar(&opts.flags.UserDataDir, "user-data-dir", "", "browser profile directory")
	pf.StringVar(&opts.flags.AccessToken, "token", "", "access token for the direct stream connection")
	pf.StringVar(&opts.flags.E2EPassword, "e2e-password", "", "end-to-end encryption password")
	pf.StringVar(&opts.flags.UserIden, "user-iden", "", "account iden, the encryption salt")
	pf.StringVar(&opts.flags.LogLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&opts.flags.Debug, "debug", false, "console logs and page debug output")
	pf.StringVar(&opts.flags.Socket, "socket", "", "bridge socket path")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newWebviewCommand(opts))
	cmd.AddCommand(newSettingsCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// load reads the config file and lets explicitly set flags win over it.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	str := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool, v bool) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	str("url", &cfg.PageURL, o.flags.PageURL)
	str("control-url", &cfg.ControlURL, o.flags.ControlURL)
	str("browser", &cfg.Browser, o.flags.Browser)
	boolean("headless", &cfg.Headless, o.flags.Headless)
	str("user-data-dir", &cfg.UserDataDir, o.flags.UserDataDir)
	str("token", &cfg.AccessToken, o.flags.AccessToken)
	str("e2e-password", &cfg.E2EPassword, o.flags.E2EPassword)
	str("user-iden", &cfg.UserIden, o.flags.UserIden)
	str("log-level", &cfg.LogLevel, o.flags.LogLevel)
	boolean("debug", &cfg.Debug, o.flags.Debug)
	str("socket", &cfg.Socket, o.flags.Socket)

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Console: cfg.Debug})
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger.Named(appName)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}
}
