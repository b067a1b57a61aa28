package qermital

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/qermital/core"
	"pkt.systems/qermital/internal/command"
	"pkt.systems/qermital/internal/debounce"
	"pkt.systems/qermital/internal/eventbus"
	"pkt.systems/qermital/internal/instance"
	"pkt.systems/qermital/internal/settings"
	"pkt.systems/qermital/internal/settingswatch"
	"pkt.systems/qermital/internal/surface"
	"pkt.systems/qermital/schema"
)

// App owns the pane manager and the single loop that mutates it.
type App interface {
	Run(ctx context.Context) error
	Post(ctx context.Context, event Event) error
	Done() <-chan struct{}
}

// Config configures the window loop.
type Config struct {
	Manager         core.Config
	ResizeDebounce  time.Duration
	DoublePane      bool
	DoublePaneDelay time.Duration
	// WatchSettings reloads the settings file when it changes on disk.
	WatchSettings       bool
	WatchDebounce       time.Duration
	DisableAuditLogging bool
}

// Deps captures the collaborators of the window loop. Supervisor is required.
type Deps struct {
	Supervisor  core.Supervisor
	Surfaces    core.SurfaceProvider
	Coordinator *instance.Coordinator
	Settings    *settings.Store
	EventSinks  []core.EventSink
	// Console, when set, is read for slash commands; replies go to
	// ConsoleOut.
	Console    io.Reader
	ConsoleOut io.Writer
}

// Window is the App implementation. Its exported methods other than Run may
// be called from any goroutine; they post to the loop.
type Window struct {
	cfg    Config
	deps   Deps
	events chan Event
	done   chan struct{}
	bus    *eventbus.Bus
	bounce *debounce.Debouncer[schema.SurfaceID]
	runID  string

	mu      sync.Mutex
	started bool

	// owned by the loop goroutine
	manager *core.Manager
}

var _ App = (*Window)(nil)
var _ command.Window = (*Window)(nil)

// New constructs the window loop. Nothing is spawned until Run.
func New(cfg Config, deps Deps) (*Window, error) {
	if deps.Supervisor == nil {
		return nil, errors.New("supervisor is required")
	}
	if deps.Surfaces == nil {
		deps.Surfaces = surface.NewProvider(0)
	}
	if cfg.DoublePaneDelay <= 0 {
		cfg.DoublePaneDelay = 500 * time.Millisecond
	}
	w := &Window{
		cfg:    cfg,
		deps:   deps,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		runID:  uuid.NewString(),
	}
	w.bounce = debounce.New(cfg.ResizeDebounce, func(id schema.SurfaceID) {
		_ = w.Post(context.Background(), SurfaceSettledEvent{Surface: id})
	})
	return w, nil
}

// RunID identifies this run in logs.
func (w *Window) RunID() string {
	return w.runID
}

// Done is closed once Run has returned and every session is terminated.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

// Post hands an event to the loop.
func (w *Window) Post(ctx context.Context, event Event) error {
	select {
	case <-w.done:
		return schema.ErrWindowClosed
	default:
	}
	select {
	case w.events <- event:
		return nil
	case <-w.done:
		return schema.ErrWindowClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessExited posts a process exit notification. It matches
// terminal.ExitFunc.
func (w *Window) ProcessExited(id schema.SessionID, handle core.ProcessHandle) {
	_ = w.Post(context.Background(), ProcessExitedEvent{Session: id, Handle: handle})
}

// Run creates the initial session and dispatches events until ctx is done or
// a quit is requested. Every session is terminated before Run returns.
func (w *Window) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("window already running")
	}
	w.started = true
	w.mu.Unlock()
	defer close(w.done)

	log := pslog.Ctx(ctx).With("run_id", w.runID)
	ctx = pslog.ContextWithLogger(ctx, log)
	w.bus = eventbus.New(log)

	manager, err := core.NewManager(ctx, w.cfg.Manager, core.ManagerDeps{
		Supervisor: w.deps.Supervisor,
		Surfaces:   w.deps.Surfaces,
		Resizer:    w.bounce,
		EventSink:  fanout(append([]core.EventSink{w.bus}, w.deps.EventSinks...)...),
		Logger:     log,
	})
	if err != nil {
		w.bounce.Stop()
		return err
	}
	w.manager = manager

	feedCtx, stopFeeds := context.WithCancel(ctx)
	var feeds sync.WaitGroup
	w.startFeeds(feedCtx, &feeds)
	log.Info("window loop start", "double", w.cfg.DoublePane, "coordinator", w.deps.Coordinator != nil, "watch_settings", w.cfg.WatchSettings)

	runErr := w.loop(ctx)

	stopFeeds()
	w.bounce.Stop()
	shutdownCtx := context.WithoutCancel(ctx)
	if err := w.manager.Shutdown(shutdownCtx); err != nil {
		log.Warn("window shutdown incomplete", "err", err)
	}
	if w.deps.Coordinator != nil {
		if err := w.deps.Coordinator.Close(); err != nil {
			log.Debug("window coordinator close failed", "err", err)
		}
	}
	feeds.Wait()
	log.Info("window loop stopped")
	return runErr
}

func (w *Window) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-w.events:
			if quit := w.dispatch(ctx, event); quit {
				return nil
			}
		}
	}
}

// startFeeds starts the goroutines that post into the loop.
func (w *Window) startFeeds(ctx context.Context, wg *sync.WaitGroup) {
	log := pslog.Ctx(ctx)
	if coord := w.deps.Coordinator; coord != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := coord.Serve(ctx, func(ctx context.Context, msg schema.Message) {
				_ = w.Post(ctx, OpenTabEvent{Message: msg})
			})
			if err != nil {
				log.Warn("window coordinator stopped", "err", err)
			}
		}()
	}
	if w.cfg.WatchSettings && w.deps.Settings != nil {
		watcher, err := settingswatch.New(w.deps.Settings.Path(), w.cfg.WatchDebounce, func() {
			w.reloadSettings(ctx)
		})
		if err != nil {
			log.Warn("window settings watch unavailable", "err", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := watcher.Run(ctx); err != nil {
					log.Warn("window settings watch stopped", "err", err)
				}
			}()
		}
	}
	if w.cfg.DoublePane {
		timer := time.AfterFunc(w.cfg.DoublePaneDelay, func() {
			_ = w.Post(ctx, OpenSecondPaneEvent{})
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			timer.Stop()
		}()
	}
	if w.deps.Console != nil {
		out := w.deps.ConsoleOut
		if out == nil {
			out = io.Discard
		}
		handler := command.NewHandler(w, out, command.HandlerConfig{
			Store:               w.saver(),
			DisableAuditLogging: w.cfg.DisableAuditLogging,
		})
		events, cancel := w.bus.Subscribe(schema.EventSessionExited, schema.EventSessionFailed, schema.EventPaneOpened)
		wg.Add(2)
		go func() {
			defer wg.Done()
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-events:
					if !ok {
						return
					}
					if line := describeEvent(event); line != "" {
						_, _ = fmt.Fprintln(out, line)
					}
				}
			}
		}()
		go func() {
			defer wg.Done()
			err := handler.Run(ctx, w.deps.Console)
			switch {
			case errors.Is(err, command.ErrQuit):
				_ = w.Post(ctx, QuitEvent{})
			case err != nil:
				log.Warn("window console stopped", "err", err)
			}
		}()
	}
}

func (w *Window) saver() command.SettingsSaver {
	if w.deps.Settings == nil {
		return nil
	}
	return w.deps.Settings
}

// reloadSettings runs on the watcher's goroutine. A file holding an invalid
// value is ignored until it is fixed.
func (w *Window) reloadSettings(ctx context.Context) {
	loaded, err := w.deps.Settings.Load()
	if err != nil {
		pslog.Ctx(ctx).Warn("window settings reload skipped", "err", err)
		return
	}
	_ = w.Post(ctx, SettingsChangedEvent{Settings: loaded})
}

func (w *Window) dispatch(ctx context.Context, event Event) bool {
	log := pslog.Ctx(ctx)
	switch ev := event.(type) {
	case OpenTabEvent:
		snap, err := w.manager.HandleMessage(ctx, ev.Message)
		if err != nil {
			log.Warn("window open tab failed", "session", snap.ID, "err", err)
		}
	case WindowResizeEvent:
		w.manager.ResizeWindow(ctx, ev.Size)
	case SurfaceSettledEvent:
		if err := w.manager.ApplyGeometry(ctx, ev.Surface); err != nil && errors.Is(err, schema.ErrUnknownSurface) {
			log.Debug("window resize stale", "surface", ev.Surface)
		}
	case ProcessExitedEvent:
		if err := w.manager.ProcessExited(ctx, ev.Session, ev.Handle); err != nil {
			log.Warn("window process exit handling failed", "session", ev.Session, "err", err)
		}
	case SettingsChangedEvent:
		if ev.Settings == w.manager.Settings() {
			log.Debug("window settings unchanged")
			return false
		}
		if err := w.manager.ApplySettings(ctx, ev.Settings); err != nil {
			log.Warn("window settings apply failed", "err", err)
		}
	case OpenSecondPaneEvent:
		if _, err := w.manager.OpenSecondPane(ctx); err != nil {
			log.Warn("window second pane failed", "err", err)
		}
	case callEvent:
		ev.reply <- ev.fn(ctx, w.manager)
	case QuitEvent:
		log.Info("window quit requested")
		return true
	default:
		log.Warn("window event ignored", "type", fmt.Sprintf("%T", event))
	}
	return false
}

// call runs fn on the loop and waits for its result.
func (w *Window) call(ctx context.Context, fn func(ctx context.Context, m *core.Manager) error) error {
	ev := callEvent{fn: fn, reply: make(chan error, 1)}
	if err := w.Post(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-ev.reply:
		return err
	case <-w.done:
		select {
		case err := <-ev.reply:
			return err
		default:
			return schema.ErrWindowClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateSession adds a tab.
func (w *Window) CreateSession(ctx context.Context, req core.CreateSessionRequest) (schema.SessionSnapshot, error) {
	var snap schema.SessionSnapshot
	err := w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		var err error
		snap, err = m.CreateSession(ctx, req)
		return err
	})
	return snap, err
}

// OpenSecondPane opens the secondary pane with one fresh tab.
func (w *Window) OpenSecondPane(ctx context.Context) (schema.SessionSnapshot, error) {
	var snap schema.SessionSnapshot
	err := w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		var err error
		snap, err = m.OpenSecondPane(ctx)
		return err
	})
	return snap, err
}

// CloseSecondPane moves the secondary tabs back and removes the pane.
func (w *Window) CloseSecondPane(ctx context.Context) error {
	return w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		return m.CloseSecondPane(ctx)
	})
}

// MoveSession moves a tab between panes.
func (w *Window) MoveSession(ctx context.Context, req core.MoveSessionRequest) error {
	return w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		return m.MoveSession(ctx, req)
	})
}

// CloseSession closes a tab.
func (w *Window) CloseSession(ctx context.Context, id schema.SessionID) error {
	return w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		return m.CloseSession(ctx, id)
	})
}

// RenameSession relabels a tab.
func (w *Window) RenameSession(ctx context.Context, id schema.SessionID, label string) error {
	return w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		return m.RenameSession(ctx, id, label)
	})
}

// FocusSession focuses a tab within its pane.
func (w *Window) FocusSession(ctx context.Context, id schema.SessionID) error {
	return w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		return m.FocusSession(ctx, id)
	})
}

// ApplySettings restarts every session with settings.
func (w *Window) ApplySettings(ctx context.Context, settings schema.Settings) error {
	return w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		return m.ApplySettings(ctx, settings)
	})
}

// Settings returns the settings in effect.
func (w *Window) Settings(ctx context.Context) (schema.Settings, error) {
	var out schema.Settings
	err := w.call(ctx, func(_ context.Context, m *core.Manager) error {
		out = m.Settings()
		return nil
	})
	return out, err
}

// Snapshot returns a view of both panes.
func (w *Window) Snapshot(ctx context.Context) (schema.WindowSnapshot, error) {
	var out schema.WindowSnapshot
	err := w.call(ctx, func(_ context.Context, m *core.Manager) error {
		out = m.Snapshot()
		return nil
	})
	return out, err
}

// ResizeWindow records a new window extent.
func (w *Window) ResizeWindow(ctx context.Context, size schema.Size) error {
	return w.Post(ctx, WindowResizeEvent{Size: size})
}

// Raise brings the window to the foreground.
func (w *Window) Raise(ctx context.Context) error {
	return w.call(ctx, func(ctx context.Context, m *core.Manager) error {
		m.Raise(ctx)
		return nil
	})
}

func describeEvent(event schema.WindowEvent) string {
	switch event.Type {
	case schema.EventSessionExited:
		return fmt.Sprintf("tab %s exited", event.Session.ID)
	case schema.EventSessionFailed:
		return fmt.Sprintf("tab %s failed: %s", event.Session.ID, event.Error)
	case schema.EventPaneOpened:
		return "secondary pane open"
	default:
		return ""
	}
}
