// Package ptyshell runs each session as a shell on a pseudo terminal owned by
// qermital itself, for hosts without an X server.
package ptyshell

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"pkt.systems/qermital/internal/terminal"
	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

// Config controls the backend.
type Config struct {
	// Shell is the interactive shell; defaults to $SHELL, then bash.
	Shell string
	// Env is appended to the shell environment.
	Env []string
	// Output receives terminal output. When nil output is logged at trace.
	Output io.Writer
}

// Backend implements terminal.Backend on a pty.
type Backend struct {
	cfg Config
	mu  sync.Mutex
}

var _ terminal.Backend = (*Backend)(nil)

// New constructs a pty backend.
func New(cfg Config) *Backend {
	if cfg.Shell == "" {
		cfg.Shell = os.Getenv("SHELL")
	}
	if cfg.Shell == "" {
		cfg.Shell = "bash"
	}
	return &Backend{cfg: cfg}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "pty"
}

// Start runs the shell on a fresh pty.
func (b *Backend) Start(ctx context.Context, launch terminal.Launch) (*terminal.Process, error) {
	cmd := exec.Command(b.cfg.Shell, "-c", terminal.ShellScript(b.cfg.Shell, launch.Directory, launch.Command))
	cmd.Dir = launch.Directory
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")
	cmd.Env = append(cmd.Env, b.cfg.Env...)
	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return nil, err
	}
	proc := terminal.Track(cmd, tty)
	go b.drain(pslog.Ctx(ctx).With("pid", proc.PID()), tty)
	return proc, nil
}

func (b *Backend) drain(log pslog.Logger, tty *os.File) {
	if b.cfg.Output != nil {
		_, _ = io.Copy(lockedWriter{mu: &b.mu, w: b.cfg.Output}, tty)
		return
	}
	scanner := bufio.NewScanner(tty)
	for scanner.Scan() {
		log.Trace("pty output", "line", scanner.Text())
	}
}

// Resize sets the pty window size.
func (b *Backend) Resize(_ context.Context, proc *terminal.Process, geometry schema.Geometry) error {
	tty := proc.TTY()
	if tty == nil {
		return terminal.ErrNoTTY
	}
	return pty.Setsize(tty, &pty.Winsize{
		Rows: terminal.ClampUint16(geometry.Rows),
		Cols: terminal.ClampUint16(geometry.Cols),
		X:    terminal.ClampUint16(geometry.Width),
		Y:    terminal.ClampUint16(geometry.Height),
	})
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
