package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"pushrelay/desktop"
)

// Registered keypaths.
const (
	KeyAppChangelog              = "appChangelog"
	KeyAppLastVersion            = "appLastVersion"
	KeyAppLaunchOnStartup        = "appLaunchOnStartup"
	KeyAppLogFile                = "appLogFile"
	KeyAppShowBadgeCount         = "appShowBadgeCount"
	KeyAppTrayOnly               = "appTrayOnly"
	KeyWindowBounds              = "windowBounds"
	KeyWindowTopmost             = "windowTopmost"
	KeyWindowVisible             = "windowVisible"
	KeyHideNotificationBody      = "pushbulletHideNotificationBody"
	KeyLastNotificationTimestamp = "pushbulletLastNotificationTimestamp"
	KeyRepeatRecentNotifications = "pushbulletRepeatRecentNotifications"
	KeySoundEnabled              = "pushbulletSoundEnabled"
	KeySoundFile                 = "pushbulletSoundFile"
	KeySoundVolume               = "pushbulletSoundVolume"
	KeySmsEnabled                = "pushbulletSmsEnabled"
)

// DefaultWindowBounds is where the window opens the first time.
var DefaultWindowBounds = desktop.Bounds{X: 256, Y: 256, Width: 320, Height: 640}

// Env holds the values defaults are computed from.
type Env struct {
	AppName  string
	Version  string
	LogDir   string
	SoundDir string
	Now      func() time.Time
}

// DefaultEnv resolves the platform directories for name.
func DefaultEnv(name, version string) Env {
	logDir := filepath.Join(Dir(), "logs")
	if cache, err := os.UserCacheDir(); err == nil {
		logDir = filepath.Join(cache, name, "logs")
	}
	soundDir := filepath.Join(Dir(), "sounds")
	if exe, err := os.Executable(); err == nil {
		soundDir = filepath.Join(filepath.Dir(exe), "sounds")
	}
	return Env{
		AppName:  name,
		Version:  version,
		LogDir:   logDir,
		SoundDir: soundDir,
		Now:      time.Now,
	}
}

// DefaultEntries returns the relay's settings in registration order.
func DefaultEntries(env Env) []*Entry {
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.AppName == "" {
		env.AppName = "pushrelay"
	}

	return []*Entry{
		{Keypath: KeyAppChangelog, Default: "", Coerce: CoerceString},
		{Keypath: KeyAppLastVersion, Default: env.Version, Coerce: CoerceString},
		{
			Keypath:   KeyAppLaunchOnStartup,
			Default:   true,
			Coerce:    CoerceBool,
			Init:      implementCurrent,
			Implement: func(r *Registry, v any) error { return r.Desktop().SetLaunchOnStartup(v.(bool)) },
		},
		{
			Keypath: KeyAppLogFile,
			Default: filepath.Join(env.LogDir, env.AppName+".log"),
			Coerce:  CoerceString,
		},
		{
			Keypath: KeyAppShowBadgeCount,
			Default: false,
			Coerce:  CoerceBool,
			Init:    implementCurrent,
			Implement: func(r *Registry, v any) error {
				if v.(bool) {
					return nil
				}
				return r.Desktop().SetBadgeCount(0)
			},
		},
		{
			Keypath: KeyAppTrayOnly,
			Default: false,
			Coerce:  CoerceBool,
			Init:    implementCurrent,
			Implement: func(r *Registry, v any) error {
				trayOnly := v.(bool)
				r.WhenWindow(KeyAppTrayOnly, func(Window) {
					if err := r.Desktop().SetTrayOnly(trayOnly); err != nil {
						r.Logger().Warn("tray only", zap.Bool("trayOnly", trayOnly), zap.Error(err))
					}
				})
				return nil
			},
		},
		{
			Keypath:  KeyWindowBounds,
			Default:  DefaultWindowBounds,
			Coerce:   CoerceBounds,
			Debounce: true,
			Init: func(r *Registry, e *Entry) error {
				r.WhenWindow(e.Keypath, func(w Window) {
					w.OnBoundsChanged(func(b desktop.Bounds) {
						if err := r.Record(e.Keypath, b); err != nil {
							r.Logger().Warn("record window bounds", zap.Error(err))
						}
					})
					applyCurrent(r, e)
				})
				return nil
			},
			Implement: func(r *Registry, v any) error {
				w, ok := readyWindow(r)
				if !ok {
					return nil
				}
				b := v.(desktop.Bounds)
				if b.Empty() {
					return nil
				}
				return w.SetBounds(b)
			},
		},
		{
			Keypath: KeyWindowTopmost,
			Default: false,
			Coerce:  CoerceBool,
			Init: func(r *Registry, e *Entry) error {
				r.WhenWindow(e.Keypath, func(Window) { applyCurrent(r, e) })
				return nil
			},
			Implement: func(r *Registry, v any) error {
				w, ok := readyWindow(r)
				if !ok {
					return nil
				}
				return w.SetAlwaysOnTop(v.(bool))
			},
		},
		{
			Keypath:  KeyWindowVisible,
			Default:  true,
			Coerce:   CoerceBool,
			Debounce: true,
			Init: func(r *Registry, e *Entry) error {
				r.WhenWindow(e.Keypath, func(w Window) {
					w.OnVisibilityChanged(func(visible bool) {
						if err := r.Record(e.Keypath, visible); err != nil {
							r.Logger().Warn("record window visibility", zap.Error(err))
						}
					})
					applyCurrent(r, e)
				})
				return nil
			},
			Implement: func(r *Registry, v any) error {
				w, ok := readyWindow(r)
				if !ok {
					return nil
				}
				if v.(bool) {
					return w.Show()
				}
				return w.Hide()
			},
		},
		{Keypath: KeyHideNotificationBody, Default: false, Coerce: CoerceBool},
		{
			Keypath: KeyLastNotificationTimestamp,
			Default: float64(env.Now().Unix() - 86400),
			Coerce:  CoerceFloat,
		},
		{Keypath: KeyRepeatRecentNotifications, Default: true, Coerce: CoerceBool},
		{Keypath: KeySoundEnabled, Default: true, Coerce: CoerceBool},
		{
			Keypath: KeySoundFile,
			Default: filepath.Join(env.SoundDir, "default.wav"),
			Coerce:  CoerceString,
			Init: func(r *Registry, e *Entry) error {
				file := r.String(e.Keypath)
				if _, err := os.Stat(file); err == nil {
					return nil
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat sound file: %w", err)
				}
				r.Logger().Info("sound file missing, resetting to default", zap.String("file", file))
				return r.Set(e.Keypath, e.Default)
			},
		},
		{Keypath: KeySoundVolume, Default: 0.5, Coerce: CoerceFloat},
		{Keypath: KeySmsEnabled, Default: true, Coerce: CoerceBool},
	}
}

func implementCurrent(r *Registry, e *Entry) error {
	v, err := r.Get(e.Keypath)
	if err != nil {
		return err
	}
	return r.Implement(e.Keypath, v)
}

func applyCurrent(r *Registry, e *Entry) {
	if err := implementCurrent(r, e); err != nil {
		r.Logger().Warn("apply setting", zap.String("key", e.Keypath), zap.Error(err))
	}
}

func readyWindow(r *Registry) (Window, bool) {
	w, ok := r.Desktop().Window()
	if !ok || w == nil {
		return nil, false
	}
	if _, ok := w.Bounds(); !ok {
		return nil, false
	}
	return w, true
}
