package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// ErrNoPlayer means no sound command is installed.
var ErrNoPlayer = errors.New("no sound player available")

// CommandPlayer plays a sound file by running an external command, paplay by
// default.
type CommandPlayer struct {
	Command string
	// Args builds the argument list. Nil uses paplay's flags.
	Args func(file string, volume float64) []string
}

func paplayArgs(file string, volume float64) []string {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	return []string{"--volume=" + strconv.Itoa(int(volume*65536)), file}
}

// Play implements Player. It waits for the sound to finish.
func (p *CommandPlayer) Play(ctx context.Context, file string, volume float64) error {
	command := p.Command
	if command == "" {
		command = "paplay"
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoPlayer, command)
	}
	args := p.Args
	if args == nil {
		args = paplayArgs
	}
	if out, err := exec.CommandContext(ctx, path, args(file, volume)...).CombinedOutput(); err != nil {
		return fmt.Errorf("play %s: %w: %s", file, err, out)
	}
	return nil
}
