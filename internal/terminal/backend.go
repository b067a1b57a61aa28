package terminal

import (
	"context"
	"errors"
	"math"
	"strings"

	"pkt.systems/qermital/schema"
)

var (
	// ErrNoTTY means the terminal's tty cannot be resolved yet or anymore.
	ErrNoTTY = errors.New("terminal tty unavailable")
	// ErrNoWindow means the terminal's native window cannot be found.
	ErrNoWindow = errors.New("terminal window unavailable")
)

// Launch is what a backend needs to start one terminal.
type Launch struct {
	Session   schema.SessionID
	Window    uint64
	Directory string
	Command   string
	Settings  schema.Settings
	Mode      schema.WindowMode
}

// Backend starts and resizes terminals of one kind.
type Backend interface {
	Name() string
	Start(ctx context.Context, launch Launch) (*Process, error)
	Resize(ctx context.Context, proc *Process, geometry schema.Geometry) error
}

// Preparer is implemented by backends that need setup before each launch.
type Preparer interface {
	Prepare(ctx context.Context, settings schema.Settings) error
}

// Raiser is implemented by backends that can bring a terminal to the front.
type Raiser interface {
	Raise(ctx context.Context, proc *Process) error
}

// ShellScript builds the bash script a terminal runs: change into dir, run
// command when set, then hand over to an interactive shell.
func ShellScript(shell, dir, command string) string {
	if shell == "" {
		shell = "bash"
	}
	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(ShellQuote(dir))
	b.WriteString("; ")
	if strings.TrimSpace(command) != "" {
		b.WriteString(command)
		b.WriteString("; ")
	}
	b.WriteString("exec ")
	b.WriteString(shell)
	return b.String()
}

// ShellQuote quotes value for POSIX shells.
func ShellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// ClampUint16 converts v for the 16-bit fields of a tty window size,
// saturating instead of wrapping.
func ClampUint16(v int) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}
