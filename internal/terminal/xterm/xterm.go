// Package xterm runs each session in a uxterm window embedded into the host
// window and drives it with xdotool.
package xterm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"pkt.systems/qermital/internal/terminal"
	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

// Defaults for Config.
const (
	DefaultExecutable = "uxterm"
	DefaultClass      = "UXTerm"
	DefaultShell      = "bash"
)

// Required lists the executables the backend shells out to.
var Required = []string{"uxterm", "xdotool", "xrdb"}

// Runner runs a helper command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Config controls the backend.
type Config struct {
	Executable string
	Class      string
	Shell      string
	// XResources is merged with xrdb before each launch. Empty means
	// ~/.Xresources.
	XResources string
	// Env is appended to the terminal environment.
	Env []string
	// Run overrides how helper commands are executed.
	Run Runner
	// Start overrides how the terminal process is started.
	Start func(cmd *exec.Cmd) (*terminal.Process, error)
}

// Backend implements terminal.Backend on top of uxterm.
type Backend struct {
	cfg Config
}

var (
	_ terminal.Backend  = (*Backend)(nil)
	_ terminal.Preparer = (*Backend)(nil)
	_ terminal.Raiser   = (*Backend)(nil)
)

// New constructs an xterm backend.
func New(cfg Config) *Backend {
	if cfg.Executable == "" {
		cfg.Executable = DefaultExecutable
	}
	if cfg.Class == "" {
		cfg.Class = DefaultClass
	}
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.XResources == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.XResources = filepath.Join(home, ".Xresources")
		}
	}
	if cfg.Run == nil {
		cfg.Run = run
	}
	if cfg.Start == nil {
		cfg.Start = terminal.StartCommand
	}
	return &Backend{cfg: cfg}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "xterm"
}

// Prepare makes sure the X resources file exists and merges it.
func (b *Backend) Prepare(ctx context.Context, _ schema.Settings) error {
	if b.cfg.XResources == "" {
		return nil
	}
	log := pslog.Ctx(ctx).With("path", b.cfg.XResources)
	if _, err := os.Stat(b.cfg.XResources); errors.Is(err, os.ErrNotExist) {
		f, err := os.OpenFile(b.cfg.XResources, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create %s: %w", b.cfg.XResources, err)
		}
		_ = f.Close()
		log.Info("xterm resources created")
	}
	if _, err := b.cfg.Run(ctx, "xrdb", "-merge", b.cfg.XResources); err != nil {
		return fmt.Errorf("xrdb merge: %w", err)
	}
	log.Trace("xterm resources merged")
	return nil
}

// Args returns the uxterm argument list for launch.
func (b *Backend) Args(launch terminal.Launch) []string {
	settings := launch.Settings
	args := []string{
		"-fa", settings.FontFamily,
		"-fs", strconv.Itoa(settings.FontSize),
		"-bg", settings.Background,
		"-fg", settings.Foreground,
		"-cr", settings.Foreground,
		"-bc",
		"+sb",
		"-class", b.cfg.Class,
	}
	if launch.Window != 0 {
		args = append(args, "-into", strconv.FormatUint(launch.Window, 10))
	}
	switch launch.Mode {
	case schema.WindowHidden:
		args = append(args, "-iconic")
	case schema.WindowMaximized:
		args = append(args, "-maximized")
	}
	return append(args, "-e", b.cfg.Shell, "-c", terminal.ShellScript(b.cfg.Shell, launch.Directory, launch.Command))
}

// Env returns the environment for launch.
func (b *Backend) Env(launch terminal.Launch) []string {
	env := os.Environ()
	if launch.Window != 0 {
		env = append(env, "WINDOWID="+strconv.FormatUint(launch.Window, 10))
	}
	if b.cfg.XResources != "" {
		env = append(env, "RESOURCE_MANAGER="+b.cfg.XResources)
	}
	env = append(env, "LANG=en_US.UTF-8", "TERM=xterm-256color")
	return append(env, b.cfg.Env...)
}

// Start launches uxterm.
func (b *Backend) Start(ctx context.Context, launch terminal.Launch) (*terminal.Process, error) {
	cmd := exec.Command(b.cfg.Executable, b.Args(launch)...)
	cmd.Dir = launch.Directory
	cmd.Env = b.Env(launch)
	pslog.Ctx(ctx).Trace("xterm start", "args", strings.Join(cmd.Args, " "))
	return b.cfg.Start(cmd)
}

// Resize sizes the terminal window and its tty.
func (b *Backend) Resize(ctx context.Context, proc *terminal.Process, geometry schema.Geometry) error {
	window, err := b.window(ctx, proc)
	if err != nil {
		return err
	}
	id := strconv.FormatUint(window, 10)
	if _, err := b.cfg.Run(ctx, "xdotool", "windowsize", id, strconv.Itoa(geometry.Width), strconv.Itoa(geometry.Height)); err != nil {
		return fmt.Errorf("xdotool windowsize %s: %w", id, err)
	}
	device, err := b.tty(ctx, proc)
	if err != nil {
		return err
	}
	return setWinsize(device, geometry)
}

// Raise activates the terminal window.
func (b *Backend) Raise(ctx context.Context, proc *terminal.Process) error {
	window, err := b.window(ctx, proc)
	if err != nil {
		return err
	}
	_, err = b.cfg.Run(ctx, "xdotool", "windowactivate", strconv.FormatUint(window, 10))
	return err
}

func (b *Backend) window(ctx context.Context, proc *terminal.Process) (uint64, error) {
	if id := proc.Window(); id != 0 {
		return id, nil
	}
	out, err := b.cfg.Run(ctx, "xdotool", "search", "--pid", strconv.Itoa(proc.PID()), "--class", b.cfg.Class)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", terminal.ErrNoWindow, err)
	}
	for line := range strings.SplitSeq(string(out), "\n") {
		id, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
		if err == nil && id != 0 {
			proc.SetWindow(id)
			return id, nil
		}
	}
	return 0, terminal.ErrNoWindow
}

// tty resolves the pts of the shell running inside the terminal, falling
// back to the terminal process itself.
func (b *Backend) tty(ctx context.Context, proc *terminal.Process) (string, error) {
	pids := append(proc.Children(), proc.PID())
	for _, pid := range pids {
		out, err := b.cfg.Run(ctx, "ps", "-o", "tty=", "-p", strconv.Itoa(pid))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(out))
		if name == "" || name == "?" {
			continue
		}
		return "/dev/" + name, nil
	}
	return "", terminal.ErrNoTTY
}

func setWinsize(device string, geometry schema.Geometry) error {
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", terminal.ErrNoTTY, err)
		}
		return err
	}
	defer func() { _ = f.Close() }()
	return unix.IoctlSetWinsize(int(f.Fd()), unix.TIOCSWINSZ, winsize(geometry))
}

func winsize(geometry schema.Geometry) *unix.Winsize {
	return &unix.Winsize{
		Row:    terminal.ClampUint16(geometry.Rows),
		Col:    terminal.ClampUint16(geometry.Cols),
		Xpixel: terminal.ClampUint16(geometry.Width),
		Ypixel: terminal.ClampUint16(geometry.Height),
	}
}

func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
