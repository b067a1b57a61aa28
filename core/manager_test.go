package core

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"pkt.systems/qermital/schema"
)

func ids(values ...schema.SessionID) []schema.SessionID {
	return values
}

func TestNewManagerStartsOneSessionWithStartupCommand(t *testing.T) {
	f := newFixture(t, Config{StartupCommand: "htop"})
	snap := f.manager.Snapshot()
	if got := snap.Primary.IDs(); !reflect.DeepEqual(got, ids(1)) {
		t.Fatalf("expected primary [1], got %v", got)
	}
	if snap.Secondary != nil {
		t.Fatalf("expected no secondary pane at start")
	}
	first := snap.Primary.Sessions[0]
	if first.Label != "Terminal 1" || first.Status != schema.SessionRunning || !first.Focused {
		t.Fatalf("unexpected initial session %+v", first)
	}
	if got := f.supervisor.lastSpawn().Command; got != "htop" {
		t.Fatalf("expected startup command on initial spawn, got %q", got)
	}
	if len(f.resizer.notified) != 1 || f.resizer.notified[0] != first.Surface {
		t.Fatalf("expected initial geometry notification for surface %d, got %v", first.Surface, f.resizer.notified)
	}
}

func TestStartupCommandRunsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{StartupCommand: "make watch"})
	if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := f.manager.CloseSession(ctx, 1); err != nil {
		t.Fatalf("close session: %v", err)
	}
	if err := f.manager.CloseSession(ctx, 2); err != nil {
		t.Fatalf("close session: %v", err)
	}
	if err := f.manager.ApplySettings(ctx, schema.DefaultSettings()); err != nil {
		t.Fatalf("apply settings: %v", err)
	}
	runs := 0
	for _, req := range f.supervisor.spawns {
		if req.Command == "make watch" {
			runs++
		}
	}
	if runs != 1 {
		t.Fatalf("expected startup command exactly once, got %d", runs)
	}
}

func TestCloseOnlyPrimarySessionCreatesReplacement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	if err := f.manager.CloseSession(ctx, 1); err != nil {
		t.Fatalf("close session: %v", err)
	}
	snap := f.manager.Snapshot()
	if got := snap.Primary.IDs(); !reflect.DeepEqual(got, ids(2)) {
		t.Fatalf("expected replacement [2], got %v", got)
	}
	if snap.Primary.Sessions[0].Label != "Terminal 2" {
		t.Fatalf("unexpected replacement label %q", snap.Primary.Sessions[0].Label)
	}
	if len(f.supervisor.terminated) != 1 {
		t.Fatalf("expected one terminate, got %v", f.supervisor.terminated)
	}
	if len(f.surfaces.live) != 1 {
		t.Fatalf("expected closed surface released, live=%v", f.surfaces.live)
	}

	if _, err := f.manager.OpenSecondPane(ctx); err != nil {
		t.Fatalf("open second pane: %v", err)
	}
	if err := f.manager.CloseSecondPane(ctx); err != nil {
		t.Fatalf("close second pane: %v", err)
	}
	snap = f.manager.Snapshot()
	if got := snap.Primary.IDs(); !reflect.DeepEqual(got, ids(2, 3)) {
		t.Fatalf("expected primary [2 3], got %v", got)
	}
	if snap.Secondary != nil {
		t.Fatalf("expected secondary absent")
	}
}

func TestPrimaryPaneNeverEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 500; step++ {
		snap := f.manager.Snapshot()
		if rng.Intn(3) == 0 {
			if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{Pane: schema.PanePrimary}); err != nil {
				t.Fatalf("step %d: create: %v", step, err)
			}
		} else {
			victim := snap.Primary.Sessions[rng.Intn(len(snap.Primary.Sessions))].ID
			if err := f.manager.CloseSession(ctx, victim); err != nil {
				t.Fatalf("step %d: close %d: %v", step, victim, err)
			}
		}
		if n := len(f.manager.Snapshot().Primary.Sessions); n < 1 {
			t.Fatalf("step %d: primary pane empty", step)
		}
	}
}

func TestSecondaryPaneLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{Pane: schema.PaneSecondary}); !errors.Is(err, schema.ErrSecondaryPaneAbsent) {
		t.Fatalf("expected secondary absent error, got %v", err)
	}
	created, err := f.manager.OpenSecondPane(ctx)
	if err != nil {
		t.Fatalf("open second pane: %v", err)
	}
	snap := f.manager.Snapshot()
	if snap.Secondary == nil || len(snap.Secondary.Sessions) != 1 {
		t.Fatalf("expected secondary with one session, got %+v", snap.Secondary)
	}
	if snap.Secondary.Sessions[0].ID != created.ID || created.Pane != schema.PaneSecondary {
		t.Fatalf("unexpected created session %+v", created)
	}
	if _, err := f.manager.OpenSecondPane(ctx); err != nil {
		t.Fatalf("reopen second pane: %v", err)
	}
	if got := len(f.manager.Snapshot().Secondary.Sessions); got != 1 {
		t.Fatalf("expected reopen to be a no-op, have %d sessions", got)
	}
	if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{Pane: schema.PaneSecondary}); err != nil {
		t.Fatalf("create secondary session: %v", err)
	}
	for _, s := range f.manager.Snapshot().Secondary.Sessions {
		if err := f.manager.CloseSession(ctx, s.ID); err != nil {
			t.Fatalf("close secondary session: %v", err)
		}
	}
	if f.manager.Snapshot().Secondary != nil {
		t.Fatalf("expected secondary pane removed once empty")
	}
	if got := len(f.manager.Snapshot().Primary.Sessions); got != 1 {
		t.Fatalf("expected primary untouched, have %d sessions", got)
	}
}

func TestCloseSecondPanePreservesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.manager.OpenSecondPane(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{Pane: schema.PaneSecondary}); err != nil {
		t.Fatalf("create secondary: %v", err)
	}
	if err := f.manager.MoveSession(ctx, MoveSessionRequest{Session: 1, From: schema.PanePrimary, To: schema.PaneSecondary}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := f.manager.Snapshot().Secondary.IDs(); !reflect.DeepEqual(got, ids(3, 4, 1)) {
		t.Fatalf("expected secondary [3 4 1], got %v", got)
	}
	if err := f.manager.CloseSecondPane(ctx); err != nil {
		t.Fatalf("close second pane: %v", err)
	}
	snap := f.manager.Snapshot()
	if got := snap.Primary.IDs(); !reflect.DeepEqual(got, ids(2, 3, 4, 1)) {
		t.Fatalf("expected primary [2 3 4 1], got %v", got)
	}
	if snap.Primary.Focused != 1 {
		t.Fatalf("expected last moved session focused, got %d", snap.Primary.Focused)
	}
	for _, s := range snap.Primary.Sessions {
		if s.Pane != schema.PanePrimary {
			t.Fatalf("session %d still claims pane %s", s.ID, s.Pane)
		}
	}
	if len(f.supervisor.terminated) != 0 {
		t.Fatalf("closing the pane must not terminate sessions, got %v", f.supervisor.terminated)
	}
}

func TestMoveSessionRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	if err := f.manager.MoveSession(ctx, MoveSessionRequest{Session: 1, From: schema.PaneSecondary, To: schema.PanePrimary}); !errors.Is(err, schema.ErrMoveNotAllowed) {
		t.Fatalf("expected move rejection, got %v", err)
	}
	if err := f.manager.MoveSession(ctx, MoveSessionRequest{Session: 99, From: schema.PanePrimary, To: schema.PaneSecondary}); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.manager.MoveSession(ctx, MoveSessionRequest{Session: 1, From: schema.PanePrimary, To: schema.PaneSecondary}); err != nil {
		t.Fatalf("move only session: %v", err)
	}
	snap := f.manager.Snapshot()
	if snap.Secondary == nil || !reflect.DeepEqual(snap.Secondary.IDs(), ids(1)) {
		t.Fatalf("expected secondary [1], got %+v", snap.Secondary)
	}
	if got := snap.Primary.IDs(); !reflect.DeepEqual(got, ids(2)) {
		t.Fatalf("expected primary replacement [2], got %v", got)
	}
	if err := f.manager.MoveSession(ctx, MoveSessionRequest{Session: 1, From: schema.PanePrimary, To: schema.PaneSecondary}); !errors.Is(err, schema.ErrMoveNotAllowed) {
		t.Fatalf("expected rejection for session outside primary, got %v", err)
	}
	if len(f.supervisor.terminated) != 0 || f.supervisor.spawnCount() != 2 {
		t.Fatalf("move must not touch the process: terminated=%v spawns=%d", f.supervisor.terminated, f.supervisor.spawnCount())
	}
}

func TestSessionsLiveInExactlyOnePane(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 800; step++ {
		snap := f.manager.Snapshot()
		all := append([]schema.SessionSnapshot(nil), snap.Primary.Sessions...)
		if snap.Secondary != nil {
			all = append(all, snap.Secondary.Sessions...)
		}
		pick := all[rng.Intn(len(all))]
		switch rng.Intn(6) {
		case 0:
			_, _ = f.manager.CreateSession(ctx, CreateSessionRequest{})
		case 1:
			_, _ = f.manager.OpenSecondPane(ctx)
		case 2:
			_ = f.manager.CloseSecondPane(ctx)
		case 3, 4:
			_ = f.manager.MoveSession(ctx, MoveSessionRequest{Session: pick.ID, From: pick.Pane, To: schema.PaneSecondary})
		case 5:
			_ = f.manager.CloseSession(ctx, pick.ID)
		}
		assertPaneInvariants(t, step, f.manager)
	}
}

func assertPaneInvariants(t *testing.T, step int, m *Manager) {
	t.Helper()
	snap := m.Snapshot()
	if len(snap.Primary.Sessions) == 0 {
		t.Fatalf("step %d: primary pane empty", step)
	}
	if snap.Secondary != nil && len(snap.Secondary.Sessions) == 0 {
		t.Fatalf("step %d: secondary pane present but empty", step)
	}
	seen := map[schema.SessionID]schema.PaneKind{}
	check := func(p schema.PaneSnapshot) {
		for _, s := range p.Sessions {
			if prev, ok := seen[s.ID]; ok {
				t.Fatalf("step %d: session %d in %s and %s", step, s.ID, prev, p.Kind)
			}
			if s.Pane != p.Kind {
				t.Fatalf("step %d: session %d claims %s but sits in %s", step, s.ID, s.Pane, p.Kind)
			}
			seen[s.ID] = p.Kind
		}
	}
	check(snap.Primary)
	if snap.Secondary != nil {
		check(*snap.Secondary)
	}
	if len(seen) != len(m.sessions) {
		t.Fatalf("step %d: %d sessions tracked, %d in panes", step, len(m.sessions), len(seen))
	}
}

func TestLaunchFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.supervisor.failSpawn = func(req SpawnRequest) error {
		if req.Session == 2 {
			return launchFailure(req.Session)
		}
		return nil
	}
	snap, err := f.manager.CreateSession(ctx, CreateSessionRequest{})
	if !errors.Is(err, schema.ErrLaunch) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if snap.Status != schema.SessionFailed || snap.Error == "" {
		t.Fatalf("expected failed session snapshot, got %+v", snap)
	}
	if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{}); err != nil {
		t.Fatalf("later sessions must be unaffected: %v", err)
	}
	statuses := map[schema.SessionID]schema.SessionStatus{}
	for _, s := range f.manager.Snapshot().Primary.Sessions {
		statuses[s.ID] = s.Status
	}
	want := map[schema.SessionID]schema.SessionStatus{1: schema.SessionRunning, 2: schema.SessionFailed, 3: schema.SessionRunning}
	if !reflect.DeepEqual(statuses, want) {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if err := f.manager.CloseSession(ctx, 2); err != nil {
		t.Fatalf("close failed session: %v", err)
	}
	if len(f.supervisor.terminated) != 0 {
		t.Fatalf("failed session has no process to terminate, got %v", f.supervisor.terminated)
	}
	found := false
	for _, e := range f.sink.events {
		if e.Type == schema.EventSessionFailed && e.Session.ID == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected session_failed event, got %v", f.sink.types())
	}
}

func TestInitialLaunchFailureKeepsWindow(t *testing.T) {
	supervisor := newFakeSupervisor()
	supervisor.failSpawn = func(req SpawnRequest) error { return launchFailure(req.Session) }
	m, err := NewManager(context.Background(), Config{DefaultDirectory: t.TempDir()}, ManagerDeps{
		Supervisor: supervisor,
		Surfaces:   newFakeSurfaces(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	snap := m.Snapshot()
	if len(snap.Primary.Sessions) != 1 || snap.Primary.Sessions[0].Status != schema.SessionFailed {
		t.Fatalf("expected one failed session, got %+v", snap.Primary.Sessions)
	}
}

func TestRenameSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	if err := f.manager.RenameSession(ctx, 1, "  build  "); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if s, _ := f.manager.Session(1); s.Label != "build" {
		t.Fatalf("expected label build, got %q", s.Label)
	}
	if err := f.manager.RenameSession(ctx, 1, "   "); !errors.Is(err, schema.ErrEmptyLabel) {
		t.Fatalf("expected empty label error, got %v", err)
	}
	if err := f.manager.RenameSession(ctx, 9, "x"); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.supervisor.spawnCount() != 1 || len(f.supervisor.terminated) != 0 {
		t.Fatalf("rename must not touch processes")
	}
}

func TestFocusMovesToNeighbourOnClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	for i := 0; i < 3; i++ {
		if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := f.manager.FocusSession(ctx, 2); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if err := f.manager.CloseSession(ctx, 2); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := f.manager.Snapshot().Primary.Focused; got != 3 {
		t.Fatalf("expected right neighbour 3 focused, got %d", got)
	}
	if err := f.manager.CloseSession(ctx, 4); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.manager.FocusSession(ctx, 3); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if err := f.manager.CloseSession(ctx, 3); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := f.manager.Snapshot().Primary.Focused; got != 1 {
		t.Fatalf("expected left neighbour 1 focused, got %d", got)
	}
}

func TestResizeSplitsWindowRigidly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Size: schema.Size{Width: 1001, Height: 600}})
	primarySurface := f.manager.Snapshot().Primary.Sessions[0].Surface
	if err := f.manager.ApplyGeometry(ctx, primarySurface); err != nil {
		t.Fatalf("apply geometry: %v", err)
	}
	if got := f.supervisor.resizes[0].size; got != (schema.Size{Width: 1001, Height: 600}) {
		t.Fatalf("expected full width, got %+v", got)
	}
	f.resizer.reset()
	created, err := f.manager.OpenSecondPane(ctx)
	if err != nil {
		t.Fatalf("open second pane: %v", err)
	}
	if len(f.resizer.notified) != 2 {
		t.Fatalf("expected primary and new secondary surfaces notified, got %v", f.resizer.notified)
	}
	if err := f.manager.ApplyGeometry(ctx, primarySurface); err != nil {
		t.Fatalf("apply geometry: %v", err)
	}
	if err := f.manager.ApplyGeometry(ctx, created.Surface); err != nil {
		t.Fatalf("apply geometry: %v", err)
	}
	got := []schema.Size{f.supervisor.resizes[1].size, f.supervisor.resizes[2].size}
	want := []schema.Size{{Width: 500, Height: 600}, {Width: 501, Height: 600}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected half split %v, got %v", want, got)
	}
	s, _ := f.manager.Session(created.ID)
	if s.Geometry.Cols != 501/7 || s.Geometry.Rows != 600/15 {
		t.Fatalf("unexpected stored geometry %+v", s.Geometry)
	}

	f.resizer.reset()
	f.manager.ResizeWindow(ctx, schema.Size{Width: 800, Height: 400})
	if len(f.resizer.notified) != 2 {
		t.Fatalf("expected every surface notified on window resize, got %v", f.resizer.notified)
	}
	if err := f.manager.ApplyGeometry(ctx, schema.SurfaceID(9999)); !errors.Is(err, schema.ErrUnknownSurface) {
		t.Fatalf("expected unknown surface, got %v", err)
	}
}

func TestApplyGeometrySkipsDeadSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.supervisor.failSpawn = func(req SpawnRequest) error { return launchFailure(req.Session) }
	snap, _ := f.manager.CreateSession(ctx, CreateSessionRequest{})
	if err := f.manager.ApplyGeometry(ctx, snap.Surface); err != nil {
		t.Fatalf("apply geometry on failed session: %v", err)
	}
	if len(f.supervisor.resizes) != 0 {
		t.Fatalf("expected no resize for failed session")
	}
}

func TestApplySettingsRestartsInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	fail := true
	f.supervisor.failSpawn = func(req SpawnRequest) error {
		if req.Session == 2 && fail {
			return launchFailure(req.Session)
		}
		return nil
	}
	_, _ = f.manager.CreateSession(ctx, CreateSessionRequest{})
	if _, err := f.manager.OpenSecondPane(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	before := f.manager.Snapshot()
	fail = false

	next, err := schema.DefaultSettings().With(schema.SettingFontSize, "18")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if err := f.manager.ApplySettings(ctx, next); err != nil {
		t.Fatalf("apply settings: %v", err)
	}
	after := f.manager.Snapshot()
	if !reflect.DeepEqual(before.Primary.IDs(), after.Primary.IDs()) || !reflect.DeepEqual(before.Secondary.IDs(), after.Secondary.IDs()) {
		t.Fatalf("positions changed: before %v/%v after %v/%v", before.Primary.IDs(), before.Secondary.IDs(), after.Primary.IDs(), after.Secondary.IDs())
	}
	if len(f.supervisor.restarts) != 2 {
		t.Fatalf("expected two restarts of live sessions, got %v", f.supervisor.restarts)
	}
	for _, s := range append(after.Primary.Sessions, after.Secondary.Sessions...) {
		if s.Status != schema.SessionRunning {
			t.Fatalf("session %d not running after settings: %+v", s.ID, s)
		}
	}
	if f.manager.Settings().FontSize != 18 || f.supervisor.lastSpawn().Settings.FontSize != 18 {
		t.Fatalf("expected new settings to reach spawns")
	}
	if err := f.manager.ApplySettings(ctx, schema.Settings{FontFamily: "x", FontSize: 99}); !errors.Is(err, schema.ErrInvalidSetting) {
		t.Fatalf("expected invalid settings rejected, got %v", err)
	}
}

func TestApplySettingsRestartsInCurrentMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Mode: schema.WindowHidden})
	if got := f.supervisor.lastSpawn().Mode; got != schema.WindowHidden {
		t.Fatalf("expected hidden launch, got %q", got)
	}
	f.manager.Raise(ctx)
	if err := f.manager.ApplySettings(ctx, schema.DefaultSettings()); err != nil {
		t.Fatalf("apply settings: %v", err)
	}
	if got := f.supervisor.lastSpawn().Mode; got != schema.WindowNormal {
		t.Fatalf("expected restart in normal mode after raise, got %q", got)
	}
}

func TestApplySettingsReportsRestartFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.supervisor.failRestart = func(handle *fakeHandle) error { return launchFailure(handle.req.Session) }
	err := f.manager.ApplySettings(ctx, schema.DefaultSettings())
	if !errors.Is(err, schema.ErrLaunch) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if s, _ := f.manager.Session(1); s.Status != schema.SessionFailed {
		t.Fatalf("expected session marked failed, got %+v", s)
	}
}

func TestHandleMessageOpensPrimaryTabAndRaises(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	folder := t.TempDir()
	snap, err := f.manager.HandleMessage(ctx, schema.NewOpenTabMessage(folder, "git status"))
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if snap.Pane != schema.PanePrimary || snap.Directory != folder {
		t.Fatalf("unexpected session %+v", snap)
	}
	if got := f.supervisor.lastSpawn().Command; got != "git status" {
		t.Fatalf("expected forwarded command, got %q", got)
	}
	if len(f.supervisor.raised) != 1 {
		t.Fatalf("expected window raise, got %v", f.supervisor.raised)
	}
	types := f.sink.types()
	if types[len(types)-1] != schema.EventWindowRaised {
		t.Fatalf("expected raise event last, got %v", types)
	}

	snap, err = f.manager.HandleMessage(ctx, schema.NewOpenTabMessage("/does/not/exist", ""))
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if snap.Directory != f.manager.cfg.DefaultDirectory {
		t.Fatalf("expected default directory fallback, got %q", snap.Directory)
	}

	before := len(f.manager.Snapshot().Primary.Sessions)
	if _, err := f.manager.HandleMessage(ctx, schema.Message{Action: "close_everything"}); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if after := len(f.manager.Snapshot().Primary.Sessions); after != before {
		t.Fatalf("unknown action must not open a tab")
	}
}

func TestProcessExitedClosesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{CloseOnExit: true})
	_, _ = f.manager.CreateSession(ctx, CreateSessionRequest{})
	stale := &fakeHandle{pid: 1}
	if err := f.manager.ProcessExited(ctx, 1, stale); err != nil {
		t.Fatalf("stale exit: %v", err)
	}
	if got := f.manager.Snapshot().Primary.IDs(); !reflect.DeepEqual(got, ids(1, 2)) {
		t.Fatalf("stale exit must be ignored, got %v", got)
	}
	handle := f.manager.sessions[1].handle
	if err := f.manager.ProcessExited(ctx, 1, handle); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if got := f.manager.Snapshot().Primary.IDs(); !reflect.DeepEqual(got, ids(2)) {
		t.Fatalf("expected exited session closed, got %v", got)
	}
}

func TestProcessExitedKeepsTabWhenConfigured(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{CloseOnExit: false})
	handle := f.manager.sessions[1].handle
	if err := f.manager.ProcessExited(ctx, 1, handle); err != nil {
		t.Fatalf("exit: %v", err)
	}
	s, ok := f.manager.Session(1)
	if !ok || s.Status != schema.SessionExited {
		t.Fatalf("expected exited session kept, got %+v", s)
	}
}

func TestShutdownTerminatesEverySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	_, _ = f.manager.CreateSession(ctx, CreateSessionRequest{})
	_, _ = f.manager.OpenSecondPane(ctx)
	if err := f.manager.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(f.supervisor.terminated) != 3 {
		t.Fatalf("expected 3 terminations, got %v", f.supervisor.terminated)
	}
	if len(f.surfaces.live) != 0 {
		t.Fatalf("expected surfaces released, live=%v", f.surfaces.live)
	}
	if _, err := f.manager.CreateSession(ctx, CreateSessionRequest{}); !errors.Is(err, schema.ErrWindowClosed) {
		t.Fatalf("expected closed window, got %v", err)
	}
	if err := f.manager.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	if _, err := NewManager(context.Background(), Config{}, ManagerDeps{Surfaces: newFakeSurfaces()}); err == nil {
		t.Fatalf("expected missing supervisor error")
	}
	if _, err := NewManager(context.Background(), Config{}, ManagerDeps{Supervisor: newFakeSupervisor()}); err == nil {
		t.Fatalf("expected missing surface provider error")
	}
}
