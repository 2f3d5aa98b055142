package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"pushrelay/bridge"
	"pushrelay/settings"
	"pushrelay/webview"
)

const envPrefix = "PUSHRELAY_"

// Config says how this process is wired: where the page lives, how to reach
// the browser and the tray process. User preferences are in the settings
// registry instead.
type Config struct {
	PageURL     string `yaml:"page_url"`
	ControlURL  string `yaml:"control_url"`
	Browser     string `yaml:"browser"`
	Headless    bool   `yaml:"headless"`
	UserDataDir string `yaml:"user_data_dir"`

	// AccessToken enables the direct stream connection.
	AccessToken string `yaml:"access_token"`
	E2EPassword string `yaml:"e2e_password"`
	UserIden    string `yaml:"user_iden"`

	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
	Socket   string `yaml:"socket"`
}

// configPath returns the full path to config.yaml.
func configPath() string {
	return filepath.Join(settings.Dir(), "config.yaml")
}

func defaultConfig() Config {
	return Config{
		PageURL:     webview.DefaultURL,
		UserDataDir: filepath.Join(settings.Dir(), "browser"),
		LogLevel:    "info",
		Socket:      bridge.SocketPath(),
	}
}

// LoadConfig reads path over the defaults and applies PUSHRELAY_* variables.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PAGE_URL":      &c.PageURL,
		"CONTROL_URL":   &c.ControlURL,
		"BROWSER":       &c.Browser,
		"USER_DATA_DIR": &c.UserDataDir,
		"ACCESS_TOKEN":  &c.AccessToken,
		"E2E_PASSWORD":  &c.E2EPassword,
		"USER_IDEN":     &c.UserIden,
		"LOG_LEVEL":     &c.LogLevel,
		"SOCKET":        &c.Socket,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"HEADLESS": &c.Headless,
		"DEBUG":    &c.Debug,
	}
	for name, dst := range bools {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = b
	}
	return nil
}

func (c Config) browserOptions() webview.BrowserOptions {
	return webview.BrowserOptions{
		ControlURL:  c.ControlURL,
		Bin:         c.Browser,
		Headless:    c.Headless,
		UserDataDir: c.UserDataDir,
		URL:         c.PageURL,
	}
}
