package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"pkt.systems/qermital/core"
	"pkt.systems/qermital/internal/logx"
	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultStartTimeout bounds how long a launch may take.
	DefaultStartTimeout = 3 * time.Second
	// DefaultStopTimeout is the grace period between terminate and kill.
	DefaultStopTimeout = 3 * time.Second
)

// ExitFunc is called when a terminal exits without being terminated.
type ExitFunc func(session schema.SessionID, handle core.ProcessHandle)

// Config controls a Supervisor.
type Config struct {
	StartTimeout time.Duration
	StopTimeout  time.Duration
	// CellSize overrides the cell derived from the font size when valid.
	CellSize schema.CellSize
	OnExit   ExitFunc
}

// Supervisor runs terminals through a backend.
type Supervisor struct {
	cfg     Config
	backend Backend
}

// Handle is a launched terminal owned by a session.
type Handle struct {
	req         core.SpawnRequest
	proc        *Process
	terminating atomic.Bool
}

// PID returns the terminal's process id.
func (h *Handle) PID() int {
	if h == nil || h.proc == nil {
		return 0
	}
	return h.proc.PID()
}

// Exited reports whether the terminal process is gone.
func (h *Handle) Exited() bool {
	return h == nil || h.proc == nil || h.proc.Exited()
}

// Process returns the underlying process.
func (h *Handle) Process() *Process {
	return h.proc
}

// Session returns the session the terminal belongs to.
func (h *Handle) Session() schema.SessionID {
	return h.req.Session
}

// NewSupervisor constructs a supervisor for backend.
func NewSupervisor(cfg Config, backend Backend) *Supervisor {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Supervisor{cfg: cfg, backend: backend}
}

var _ core.Supervisor = (*Supervisor)(nil)

type startResult struct {
	proc *Process
	err  error
}

// Spawn launches a terminal and waits up to the start timeout for it. A
// request without a surface is a programming error and panics. A failed
// backend preparation is logged and the launch goes ahead.
func (s *Supervisor) Spawn(ctx context.Context, req core.SpawnRequest) (core.ProcessHandle, error) {
	if req.Surface == nil {
		panic(fmt.Sprintf("terminal: spawn of session %s without a surface", req.Session))
	}
	log := pslog.Ctx(ctx).With("backend", s.backend.Name())
	if preparer, ok := s.backend.(Preparer); ok {
		if err := preparer.Prepare(ctx, req.Settings); err != nil {
			log.Warn("terminal prepare failed", "err", err)
		}
	}
	launch := Launch{
		Session:   req.Session,
		Window:    req.Surface.WindowID(),
		Directory: req.Directory,
		Command:   req.Command,
		Settings:  req.Settings,
		Mode:      req.Mode,
	}
	log = logx.WithSurface(log, req.Surface.ID(), launch.Window)
	log.Debug("terminal spawn start", "directory", req.Directory, "has_command", req.Command != "")

	results := make(chan startResult, 1)
	go func() {
		proc, err := s.backend.Start(ctx, launch)
		results <- startResult{proc: proc, err: err}
	}()
	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()

	var res startResult
	select {
	case res = <-results:
	case <-timer.C:
		go reapLate(results)
		log.Warn("terminal spawn timed out", "timeout", s.cfg.StartTimeout)
		return nil, fmt.Errorf("%w: %s did not start within %s", schema.ErrLaunch, s.backend.Name(), s.cfg.StartTimeout)
	case <-ctx.Done():
		go reapLate(results)
		return nil, fmt.Errorf("%w: %w", schema.ErrLaunch, ctx.Err())
	}
	if res.err != nil {
		log.Warn("terminal spawn failed", "err", res.err)
		return nil, fmt.Errorf("%w: %s: %w", schema.ErrLaunch, s.backend.Name(), res.err)
	}
	req.Command = ""
	h := &Handle{req: req, proc: res.proc}
	logx.WithPID(log, h.PID()).Info("terminal spawned")
	go s.watch(log, h)
	return h, nil
}

// reapLate kills a terminal that started after its launch was given up on.
func reapLate(results <-chan startResult) {
	res := <-results
	if res.proc != nil {
		_ = res.proc.Signal(syscall.SIGKILL)
	}
}

func (s *Supervisor) watch(log pslog.Logger, h *Handle) {
	<-h.proc.Done()
	if h.terminating.Load() {
		return
	}
	logx.WithPID(log, h.PID()).Info("terminal exited", "err", h.proc.Err())
	if s.cfg.OnExit != nil {
		s.cfg.OnExit(h.req.Session, h)
	}
}

// Resize pushes size to the terminal. It is idempotent and a no-op when the
// process has exited or its tty cannot be resolved.
func (s *Supervisor) Resize(ctx context.Context, handle core.ProcessHandle, size schema.Size) (schema.Geometry, error) {
	h, _ := handle.(*Handle)
	cell := s.cfg.CellSize
	if !cell.Valid() && h != nil {
		cell = h.req.Settings.CellSize()
	}
	geometry := schema.NewGeometry(size, cell)
	if h == nil || h.Exited() {
		return geometry, nil
	}
	log := logx.WithPID(pslog.Ctx(ctx), h.PID())
	err := s.backend.Resize(ctx, h.proc, geometry)
	switch {
	case err == nil:
		log.Trace("terminal resized", "cols", geometry.Cols, "rows", geometry.Rows)
		return geometry, nil
	case errors.Is(err, ErrNoTTY), errors.Is(err, ErrNoWindow), h.Exited():
		log.Debug("terminal resize skipped", "err", err)
		return geometry, nil
	default:
		return geometry, fmt.Errorf("%w: %w", schema.ErrResizePropagation, err)
	}
}

// Terminate asks the terminal to stop and kills it after the stop timeout.
// It is safe on an exited handle and from several goroutines.
func (s *Supervisor) Terminate(ctx context.Context, handle core.ProcessHandle) error {
	h, _ := handle.(*Handle)
	if h == nil || h.proc == nil {
		return nil
	}
	h.terminating.Store(true)
	if h.proc.Exited() {
		return nil
	}
	log := logx.WithPID(pslog.Ctx(ctx), h.PID())
	if err := h.proc.Signal(syscall.SIGTERM); err != nil {
		log.Debug("terminal terminate signal failed", "err", err)
	}
	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-h.proc.Done():
		log.Debug("terminal terminated")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	log.Warn("terminal kill after timeout", "timeout", s.cfg.StopTimeout)
	if err := h.proc.Signal(syscall.SIGKILL); err != nil {
		return err
	}
	select {
	case <-h.proc.Done():
		return nil
	case <-time.After(s.cfg.StopTimeout):
		return fmt.Errorf("terminal %d did not exit after kill", h.PID())
	}
}

// Restart stops the terminal and launches it again with settings and mode in
// the same surface and directory. The startup command is never repeated.
func (s *Supervisor) Restart(ctx context.Context, handle core.ProcessHandle, settings schema.Settings, mode schema.WindowMode) (core.ProcessHandle, error) {
	h, _ := handle.(*Handle)
	if h == nil {
		return nil, fmt.Errorf("%w: no terminal to restart", schema.ErrLaunch)
	}
	if err := s.Terminate(ctx, h); err != nil {
		pslog.Ctx(ctx).Warn("terminal restart terminate failed", "pid", h.PID(), "err", err)
	}
	req := h.req
	req.Command = ""
	req.Settings = settings
	req.Mode = mode
	return s.Spawn(ctx, req)
}

// Raise brings the terminal to the front when the backend supports it.
func (s *Supervisor) Raise(ctx context.Context, handle core.ProcessHandle) error {
	h, _ := handle.(*Handle)
	if h == nil || h.Exited() {
		return nil
	}
	raiser, ok := s.backend.(Raiser)
	if !ok {
		return nil
	}
	return raiser.Raise(ctx, h.proc)
}
