package desktop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Autostart manages an XDG autostart entry so the relay starts on login.
type Autostart struct {
	Dir  string
	Name string
	Exec string
}

// NewAutostart returns an Autostart for name that launches exec. The entry
// lives in the user's autostart directory.
func NewAutostart(name, exec string) *Autostart {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return &Autostart{
		Dir:  filepath.Join(dir, "autostart"),
		Name: name,
		Exec: exec,
	}
}

// Path returns the .desktop file location.
func (a *Autostart) Path() string {
	return filepath.Join(a.Dir, a.Name+".desktop")
}

// Enabled reports whether the entry exists.
func (a *Autostart) Enabled() bool {
	_, err := os.Stat(a.Path())
	return err == nil
}

// Set writes or removes the entry.
func (a *Autostart) Set(enabled bool) error {
	if !enabled {
		if err := os.Remove(a.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("disable autostart: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("enable autostart: %w", err)
	}
	if err := os.WriteFile(a.Path(), []byte(a.entry()), 0o644); err != nil {
		return fmt.Errorf("enable autostart: %w", err)
	}
	return nil
}

func (a *Autostart) entry() string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", a.Name)
	fmt.Fprintf(&b, "Exec=%s\n", quoteExec(a.Exec))
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.String()
}

// quoteExec quotes the binary path when it contains spaces.
func quoteExec(exec string) string {
	if !strings.ContainsAny(exec, " \t") || strings.HasPrefix(exec, `"`) {
		return exec
	}
	return `"` + strings.ReplaceAll(exec, `"`, `\"`) + `"`
}
