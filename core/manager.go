package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"pkt.systems/qermital/internal/logx"
	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

// DefaultWindowSize is the initial window extent.
var DefaultWindowSize = schema.Size{Width: 1200, Height: 800}

// Config controls the pane manager.
type Config struct {
	// DefaultDirectory is used by sessions created without a directory.
	DefaultDirectory string
	// StartupCommand runs in the initial session only.
	StartupCommand string
	Settings       schema.Settings
	Mode           schema.WindowMode
	Size           schema.Size
	// CloseOnExit closes a session whose terminal exits on its own.
	CloseOnExit bool
}

// CreateSessionRequest describes a new tab.
type CreateSessionRequest struct {
	Pane      schema.PaneKind
	Directory string
	Command   string
}

// MoveSessionRequest describes a tab move between panes.
type MoveSessionRequest struct {
	Session schema.SessionID
	From    schema.PaneKind
	To      schema.PaneKind
}

// Manager owns the primary pane, the optional secondary pane and every
// session in them. It is not safe for concurrent use: a single event loop
// calls it, one operation at a time.
type Manager struct {
	cfg        Config
	supervisor Supervisor
	surfaces   SurfaceProvider
	resizer    ResizeNotifier
	sink       EventSink
	logger     pslog.Logger

	settings  schema.Settings
	mode      schema.WindowMode
	size      schema.Size
	primary   *pane
	secondary *pane
	sessions  map[schema.SessionID]*session
	bySurface map[schema.SurfaceID]schema.SessionID
	lastID    schema.SessionID
	closed    bool
}

func normalizeConfig(cfg Config) (Config, error) {
	if strings.TrimSpace(cfg.DefaultDirectory) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, err
		}
		cfg.DefaultDirectory = wd
	}
	if cfg.Settings == (schema.Settings{}) {
		cfg.Settings = schema.DefaultSettings()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return cfg, err
	}
	switch cfg.Mode {
	case schema.WindowNormal, schema.WindowHidden, schema.WindowMaximized:
	case "":
		cfg.Mode = schema.WindowNormal
	default:
		return cfg, fmt.Errorf("unknown window mode %q", cfg.Mode)
	}
	if cfg.Size.Width <= 0 || cfg.Size.Height <= 0 {
		cfg.Size = DefaultWindowSize
	}
	return cfg, nil
}

// NewManager constructs the window state with one primary session carrying
// the startup command. A launch failure of that session does not fail
// construction; the session is kept in the failed state.
func NewManager(ctx context.Context, cfg Config, deps ManagerDeps) (*Manager, error) {
	if deps.Supervisor == nil {
		return nil, errors.New("supervisor is required")
	}
	if deps.Surfaces == nil {
		return nil, errors.New("surface provider is required")
	}
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	m := &Manager{
		cfg:        cfg,
		supervisor: deps.Supervisor,
		surfaces:   deps.Surfaces,
		resizer:    deps.Resizer,
		sink:       deps.EventSink,
		logger:     logger,
		settings:   cfg.Settings,
		mode:       cfg.Mode,
		size:       cfg.Size,
		primary:    newPane(schema.PanePrimary),
		sessions:   make(map[schema.SessionID]*session),
		bySurface:  make(map[schema.SurfaceID]schema.SessionID),
	}
	ctx = m.withLogger(ctx)
	logger.Info("pane window open", "mode", cfg.Mode, "width", cfg.Size.Width, "height", cfg.Size.Height, "directory", cfg.DefaultDirectory)
	if _, err := m.createSession(ctx, schema.PanePrimary, "", cfg.StartupCommand); err != nil && !errors.Is(err, schema.ErrLaunch) {
		return nil, err
	}
	return m, nil
}

// CreateSession adds a tab to the requested pane and focuses it. The
// secondary pane must already be open. A launch failure is returned but the
// tab is still added in the failed state.
func (m *Manager) CreateSession(ctx context.Context, req CreateSessionRequest) (schema.SessionSnapshot, error) {
	kind := req.Pane
	if kind == "" {
		kind = schema.PanePrimary
	}
	return m.createSession(m.withLogger(ctx), kind, req.Directory, req.Command)
}

func (m *Manager) createSession(ctx context.Context, kind schema.PaneKind, directory, command string) (schema.SessionSnapshot, error) {
	if m.closed {
		return schema.SessionSnapshot{}, schema.ErrWindowClosed
	}
	target := m.pane(kind)
	if target == nil {
		if kind == schema.PaneSecondary {
			return schema.SessionSnapshot{}, schema.ErrSecondaryPaneAbsent
		}
		return schema.SessionSnapshot{}, fmt.Errorf("unknown pane %q", kind)
	}
	m.lastID++
	id := m.lastID
	log := logx.WithPaneSession(ctx, kind, id)
	if strings.TrimSpace(directory) == "" {
		directory = m.cfg.DefaultDirectory
	}
	s := &session{
		ID:        id,
		Label:     sessionLabel(id),
		Pane:      kind,
		Directory: directory,
		Surface:   m.surfaces.Acquire(id),
		command:   command,
	}
	spawnErr := m.spawn(logx.ContextWithSessionLogger(ctx, log, kind, id), s)
	m.sessions[id] = s
	m.bySurface[s.surfaceID()] = id
	target.append(id)

	m.emit(schema.EventSessionCreated, s, nil)
	if spawnErr != nil {
		m.emit(schema.EventSessionFailed, s, spawnErr)
		log.Warn("pane session create failed", "err", spawnErr)
	} else {
		log.Info("pane session created", "label", s.Label, "directory", s.Directory, "has_command", command != "")
	}
	m.notifyResize(s)
	return s.Snapshot(true), spawnErr
}

// spawn launches the session's terminal. The startup command is handed out at
// most once, whether or not the launch succeeds.
func (m *Manager) spawn(ctx context.Context, s *session) error {
	req := SpawnRequest{
		Session:   s.ID,
		Surface:   s.Surface,
		Directory: s.Directory,
		Settings:  m.settings,
		Mode:      m.mode,
	}
	if !s.commandConsumed {
		req.Command = s.command
		s.commandConsumed = true
	}
	handle, err := m.supervisor.Spawn(ctx, req)
	if err != nil {
		s.Status = schema.SessionFailed
		s.handle = nil
		s.err = err
		return err
	}
	s.Status = schema.SessionRunning
	s.handle = handle
	s.err = nil
	return nil
}

// OpenSecondPane shows the secondary pane with one fresh session. It is a
// no-op when the pane is already open.
func (m *Manager) OpenSecondPane(ctx context.Context) (schema.SessionSnapshot, error) {
	ctx = m.withLogger(ctx)
	if m.closed {
		return schema.SessionSnapshot{}, schema.ErrWindowClosed
	}
	if m.secondary != nil {
		pslog.Ctx(ctx).Debug("pane secondary already open")
		return schema.SessionSnapshot{}, nil
	}
	m.openSecondary(ctx)
	return m.createSession(ctx, schema.PaneSecondary, "", "")
}

func (m *Manager) openSecondary(ctx context.Context) {
	m.secondary = newPane(schema.PaneSecondary)
	m.emitPane(schema.EventPaneOpened, schema.PaneSecondary)
	m.notifyPane(m.primary)
	pslog.Ctx(ctx).Info("pane secondary opened", "width", m.paneSize(schema.PaneSecondary).Width)
}

// CloseSecondPane appends every secondary session to the primary pane in
// order and removes the secondary pane. The last session moved back gets
// the primary focus.
func (m *Manager) CloseSecondPane(ctx context.Context) error {
	ctx = m.withLogger(ctx)
	if m.secondary == nil {
		return nil
	}
	moved := append([]schema.SessionID(nil), m.secondary.order...)
	m.secondary.order = nil
	m.primary.order = append(m.primary.order, moved...)
	for _, id := range moved {
		s := m.sessions[id]
		s.Pane = schema.PanePrimary
		m.emit(schema.EventSessionMoved, s, nil)
	}
	if len(moved) > 0 {
		m.primary.focused = moved[len(moved)-1]
	}
	m.destroySecondary(ctx)
	pslog.Ctx(ctx).Info("pane secondary closed", "moved", len(moved))
	return nil
}

func (m *Manager) destroySecondary(ctx context.Context) {
	m.secondary = nil
	m.emitPane(schema.EventPaneClosed, schema.PaneSecondary)
	m.notifyPane(m.primary)
	pslog.Ctx(ctx).Debug("pane secondary destroyed")
}

// MoveSession moves a tab from the primary pane to the secondary pane,
// opening the secondary pane if needed. Other directions are rejected.
func (m *Manager) MoveSession(ctx context.Context, req MoveSessionRequest) error {
	ctx = m.withLogger(ctx)
	if m.closed {
		return schema.ErrWindowClosed
	}
	log := logx.WithPaneSession(ctx, req.From, req.Session)
	if req.From != schema.PanePrimary || req.To != schema.PaneSecondary {
		log.Warn("pane session move rejected", "to", req.To)
		return schema.ErrMoveNotAllowed
	}
	s := m.sessions[req.Session]
	if s == nil {
		return schema.ErrSessionNotFound
	}
	if s.Pane != req.From {
		log.Warn("pane session move rejected", "owner", s.Pane)
		return fmt.Errorf("%w: session %s is in the %s pane", schema.ErrMoveNotAllowed, s.ID, s.Pane)
	}
	if m.secondary == nil {
		m.openSecondary(ctx)
	}
	m.primary.remove(s.ID)
	s.Pane = schema.PaneSecondary
	m.secondary.append(s.ID)
	m.emit(schema.EventSessionMoved, s, nil)
	m.notifyResize(s)
	log.Info("pane session moved", "to", req.To)

	if m.primary.len() == 0 {
		m.replacePrimary(ctx)
	}
	return nil
}

// CloseSession terminates a tab's terminal and removes it. An emptied
// primary pane gets a fresh session; an emptied secondary pane is removed.
func (m *Manager) CloseSession(ctx context.Context, id schema.SessionID) error {
	ctx = m.withLogger(ctx)
	s := m.sessions[id]
	if s == nil {
		return schema.ErrSessionNotFound
	}
	log := logx.WithPaneSession(ctx, s.Pane, id)
	if s.hasProcess() {
		if err := m.supervisor.Terminate(ctx, s.handle); err != nil {
			log.Warn("pane session terminate failed", "err", err)
		}
	}
	m.forget(s)
	m.emit(schema.EventSessionClosed, s, nil)
	log.Info("pane session closed")

	switch s.Pane {
	case schema.PanePrimary:
		if m.primary.len() == 0 && !m.closed {
			m.replacePrimary(ctx)
		}
	case schema.PaneSecondary:
		if m.secondary != nil && m.secondary.len() == 0 {
			m.destroySecondary(ctx)
		}
	}
	return nil
}

func (m *Manager) forget(s *session) {
	if owner := m.pane(s.Pane); owner != nil {
		owner.remove(s.ID)
	}
	delete(m.sessions, s.ID)
	surfaceID := s.surfaceID()
	delete(m.bySurface, surfaceID)
	if m.resizer != nil {
		m.resizer.Cancel(surfaceID)
	}
	if s.Surface != nil {
		m.surfaces.Release(s.Surface)
	}
}

func (m *Manager) replacePrimary(ctx context.Context) {
	if _, err := m.createSession(ctx, schema.PanePrimary, "", ""); err != nil {
		pslog.Ctx(ctx).Warn("pane primary replacement failed", "err", err)
	}
}

// RenameSession changes a tab label.
func (m *Manager) RenameSession(ctx context.Context, id schema.SessionID, label string) error {
	ctx = m.withLogger(ctx)
	s := m.sessions[id]
	if s == nil {
		return schema.ErrSessionNotFound
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return schema.ErrEmptyLabel
	}
	s.Label = label
	m.emit(schema.EventSessionRenamed, s, nil)
	logx.WithPaneSession(ctx, s.Pane, id).Info("pane session renamed", "label", label)
	return nil
}

// FocusSession makes a tab the focused one of its pane.
func (m *Manager) FocusSession(ctx context.Context, id schema.SessionID) error {
	s := m.sessions[id]
	if s == nil {
		return schema.ErrSessionNotFound
	}
	m.pane(s.Pane).focused = id
	m.emit(schema.EventSessionFocused, s, nil)
	logx.WithPaneSession(m.withLogger(ctx), s.Pane, id).Debug("pane session focused")
	return nil
}

// ResizeWindow records a new window extent and schedules a geometry update
// for every session.
func (m *Manager) ResizeWindow(ctx context.Context, size schema.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	m.size = size
	m.notifyPane(m.primary)
	m.notifyPane(m.secondary)
	pslog.Ctx(m.withLogger(ctx)).Debug("pane window resized", "width", size.Width, "height", size.Height)
}

// ApplyGeometry pushes the current pane extent to the session owning the
// surface. It is called once a resize burst has settled.
func (m *Manager) ApplyGeometry(ctx context.Context, surface schema.SurfaceID) error {
	ctx = m.withLogger(ctx)
	id, ok := m.bySurface[surface]
	if !ok {
		return schema.ErrUnknownSurface
	}
	s := m.sessions[id]
	switch s.Status {
	case schema.SessionRunning:
	case schema.SessionFailed, schema.SessionExited:
		return nil
	}
	log := logx.WithPaneSession(ctx, s.Pane, id)
	geometry, err := m.supervisor.Resize(ctx, s.handle, m.paneSize(s.Pane))
	if err != nil {
		log.Warn("pane session resize failed", "err", err)
		return err
	}
	s.Geometry = geometry
	log.Debug("pane session resized", "cols", geometry.Cols, "rows", geometry.Rows)
	return nil
}

// ApplySettings restarts every session with the new settings. Identity,
// label and position are kept; failed sessions are retried. Per-session
// failures are joined into the returned error.
func (m *Manager) ApplySettings(ctx context.Context, settings schema.Settings) error {
	ctx = m.withLogger(ctx)
	if err := settings.Validate(); err != nil {
		return err
	}
	if m.closed {
		return schema.ErrWindowClosed
	}
	m.settings = settings
	var errs []error
	for _, s := range m.orderedSessions() {
		log := logx.WithPaneSession(ctx, s.Pane, s.ID)
		var err error
		switch s.Status {
		case schema.SessionRunning, schema.SessionExited:
			var handle ProcessHandle
			handle, err = m.supervisor.Restart(ctx, s.handle, settings, m.mode)
			if err != nil {
				s.Status = schema.SessionFailed
				s.handle = nil
				s.err = err
			} else {
				s.Status = schema.SessionRunning
				s.handle = handle
				s.err = nil
			}
		case schema.SessionFailed:
			err = m.spawn(ctx, s)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
			m.emit(schema.EventSessionFailed, s, err)
			log.Warn("pane session restart failed", "err", err)
			continue
		}
		m.emit(schema.EventSessionRestarted, s, nil)
		m.notifyResize(s)
		log.Debug("pane session restarted")
	}
	m.emitPane(schema.EventSettingsApplied, "")
	pslog.Ctx(ctx).Info("pane settings applied", "font_family", settings.FontFamily, "font_size", settings.FontSize, "failed", len(errs))
	return errors.Join(errs...)
}

// HandleMessage applies a request forwarded by another instance: a new
// primary tab in the requested folder, then the window is raised. A folder
// that is not a directory falls back to the default directory.
func (m *Manager) HandleMessage(ctx context.Context, msg schema.Message) (schema.SessionSnapshot, error) {
	ctx = m.withLogger(ctx)
	log := pslog.Ctx(ctx)
	if !msg.OpensTab() {
		log.Warn("pane message ignored", "action", msg.Action)
		return schema.SessionSnapshot{}, nil
	}
	directory := msg.FolderValue()
	if directory != "" && !isDir(directory) {
		log.Info("pane message folder unusable", "folder", directory)
		directory = ""
	}
	snap, err := m.createSession(ctx, schema.PanePrimary, directory, msg.CommandValue())
	m.Raise(ctx)
	return snap, err
}

// Raise brings the window to the foreground.
func (m *Manager) Raise(ctx context.Context) {
	ctx = m.withLogger(ctx)
	m.mode = schema.WindowNormal
	if s := m.sessions[m.primary.focused]; s != nil && s.Status == schema.SessionRunning {
		if err := m.supervisor.Raise(ctx, s.handle); err != nil {
			logx.WithPaneSession(ctx, s.Pane, s.ID).Debug("pane window raise failed", "err", err)
		}
	}
	m.emitPane(schema.EventWindowRaised, "")
}

// ProcessExited reacts to a terminal process ending on its own. Stale
// notifications for a replaced process are ignored.
func (m *Manager) ProcessExited(ctx context.Context, id schema.SessionID, handle ProcessHandle) error {
	ctx = m.withLogger(ctx)
	s := m.sessions[id]
	if s == nil || s.handle == nil || s.handle != handle {
		return nil
	}
	logx.WithPaneSession(ctx, s.Pane, id).Info("pane session process exited", "close", m.cfg.CloseOnExit)
	if m.cfg.CloseOnExit {
		return m.CloseSession(ctx, id)
	}
	s.Status = schema.SessionExited
	m.emit(schema.EventSessionExited, s, nil)
	return nil
}

// Shutdown terminates every terminal concurrently and releases all state.
func (m *Manager) Shutdown(ctx context.Context) error {
	ctx = m.withLogger(ctx)
	if m.closed {
		return nil
	}
	m.closed = true
	sessions := m.orderedSessions()
	var g errgroup.Group
	for _, s := range sessions {
		if !s.hasProcess() {
			continue
		}
		handle := s.handle
		g.Go(func() error {
			return m.supervisor.Terminate(ctx, handle)
		})
	}
	err := g.Wait()
	for _, s := range sessions {
		m.forget(s)
	}
	m.secondary = nil
	pslog.Ctx(ctx).Info("pane window closed", "sessions", len(sessions))
	return err
}

// Snapshot returns a read-only view of both panes.
func (m *Manager) Snapshot() schema.WindowSnapshot {
	snap := schema.WindowSnapshot{
		Mode:    m.mode,
		Size:    m.size,
		Primary: m.paneSnapshot(m.primary),
	}
	if m.secondary != nil {
		secondary := m.paneSnapshot(m.secondary)
		snap.Secondary = &secondary
	}
	return snap
}

// Session returns a snapshot of one session.
func (m *Manager) Session(id schema.SessionID) (schema.SessionSnapshot, bool) {
	s := m.sessions[id]
	if s == nil {
		return schema.SessionSnapshot{}, false
	}
	return s.Snapshot(m.pane(s.Pane).focused == id), true
}

// Settings returns the settings new sessions are spawned with.
func (m *Manager) Settings() schema.Settings {
	return m.settings
}

func (m *Manager) paneSnapshot(p *pane) schema.PaneSnapshot {
	snap := schema.PaneSnapshot{
		Kind:     p.kind,
		Size:     m.paneSize(p.kind),
		Focused:  p.focused,
		Sessions: make([]schema.SessionSnapshot, 0, len(p.order)),
	}
	for _, id := range p.order {
		snap.Sessions = append(snap.Sessions, m.sessions[id].Snapshot(p.focused == id))
	}
	return snap
}

func (m *Manager) pane(kind schema.PaneKind) *pane {
	switch kind {
	case schema.PanePrimary:
		return m.primary
	case schema.PaneSecondary:
		return m.secondary
	default:
		return nil
	}
}

// paneSize splits the window into two rigid halves while the secondary pane
// is open.
func (m *Manager) paneSize(kind schema.PaneKind) schema.Size {
	if m.secondary == nil {
		return m.size
	}
	half := m.size.Width / 2
	if kind == schema.PaneSecondary {
		return schema.Size{Width: m.size.Width - half, Height: m.size.Height}
	}
	return schema.Size{Width: half, Height: m.size.Height}
}

func (m *Manager) orderedSessions() []*session {
	out := make([]*session, 0, len(m.sessions))
	for _, p := range []*pane{m.primary, m.secondary} {
		if p == nil {
			continue
		}
		for _, id := range p.order {
			out = append(out, m.sessions[id])
		}
	}
	return out
}

func (m *Manager) notifyResize(s *session) {
	if m.resizer == nil || s == nil {
		return
	}
	m.resizer.Notify(s.surfaceID())
}

func (m *Manager) notifyPane(p *pane) {
	if p == nil {
		return
	}
	for _, id := range p.order {
		m.notifyResize(m.sessions[id])
	}
}

func (m *Manager) emit(eventType schema.WindowEventType, s *session, err error) {
	if m.sink == nil {
		return
	}
	event := schema.WindowEvent{
		Type:    eventType,
		Pane:    s.Pane,
		Session: s.Snapshot(false),
	}
	if p := m.pane(s.Pane); p != nil {
		event.Session.Focused = p.focused == s.ID
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.sink.OnWindowEvent(event)
}

func (m *Manager) emitPane(eventType schema.WindowEventType, kind schema.PaneKind) {
	if m.sink == nil {
		return
	}
	m.sink.OnWindowEvent(schema.WindowEvent{Type: eventType, Pane: kind})
}

type loggerMarker struct{}

// withLogger binds the manager logger to ctx once per call chain.
func (m *Manager) withLogger(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(loggerMarker{}) != nil {
		return ctx
	}
	ctx = pslog.ContextWithLogger(ctx, m.logger)
	return context.WithValue(ctx, loggerMarker{}, true)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
