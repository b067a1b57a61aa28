package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"pkt.systems/qermital/schema"
)

type fakeHandle struct {
	pid    int
	req    SpawnRequest
	exited bool
}

func (h *fakeHandle) PID() int     { return h.pid }
func (h *fakeHandle) Exited() bool { return h.exited }

type resizeCall struct {
	pid  int
	size schema.Size
}

type fakeSupervisor struct {
	mu         sync.Mutex
	nextPID    int
	spawns     []SpawnRequest
	terminated []int
	restarts   []int
	resizes    []resizeCall
	raised     []int
	// failSpawn returns an error for the given request when set.
	failSpawn   func(req SpawnRequest) error
	failRestart func(handle *fakeHandle) error
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{nextPID: 1000}
}

func (f *fakeSupervisor) Spawn(ctx context.Context, req SpawnRequest) (ProcessHandle, error) {
	if req.Surface == nil {
		panic("spawn without surface")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns = append(f.spawns, req)
	if f.failSpawn != nil {
		if err := f.failSpawn(req); err != nil {
			return nil, err
		}
	}
	f.nextPID++
	return &fakeHandle{pid: f.nextPID, req: req}, nil
}

func (f *fakeSupervisor) Resize(ctx context.Context, handle ProcessHandle, size schema.Size) (schema.Geometry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, resizeCall{pid: handle.PID(), size: size})
	return schema.NewGeometry(size, schema.DefaultCellSize), nil
}

func (f *fakeSupervisor) Terminate(ctx context.Context, handle ProcessHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := handle.(*fakeHandle)
	h.exited = true
	f.terminated = append(f.terminated, h.pid)
	return nil
}

func (f *fakeSupervisor) Restart(ctx context.Context, handle ProcessHandle, settings schema.Settings, mode schema.WindowMode) (ProcessHandle, error) {
	f.mu.Lock()
	old := handle.(*fakeHandle)
	old.exited = true
	f.restarts = append(f.restarts, old.pid)
	fail := f.failRestart
	f.mu.Unlock()
	if fail != nil {
		if err := fail(old); err != nil {
			return nil, err
		}
	}
	req := old.req
	req.Command = ""
	req.Settings = settings
	req.Mode = mode
	return f.Spawn(ctx, req)
}

func (f *fakeSupervisor) Raise(ctx context.Context, handle ProcessHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = append(f.raised, handle.PID())
	return nil
}

func (f *fakeSupervisor) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawns)
}

func (f *fakeSupervisor) lastSpawn() SpawnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawns[len(f.spawns)-1]
}

type fakeSurface struct {
	id schema.SurfaceID
}

func (s fakeSurface) ID() schema.SurfaceID { return s.id }
func (s fakeSurface) WindowID() uint64    { return 0 }

type fakeSurfaces struct {
	next     schema.SurfaceID
	live     map[schema.SurfaceID]bool
	released []schema.SurfaceID
}

func newFakeSurfaces() *fakeSurfaces {
	return &fakeSurfaces{next: 100, live: map[schema.SurfaceID]bool{}}
}

func (f *fakeSurfaces) Acquire(session schema.SessionID) Surface {
	f.next++
	f.live[f.next] = true
	return fakeSurface{id: f.next}
}

func (f *fakeSurfaces) Release(surface Surface) {
	delete(f.live, surface.ID())
	f.released = append(f.released, surface.ID())
}

type fakeResizer struct {
	notified []schema.SurfaceID
	canceled []schema.SurfaceID
}

func (f *fakeResizer) Notify(id schema.SurfaceID) { f.notified = append(f.notified, id) }
func (f *fakeResizer) Cancel(id schema.SurfaceID) { f.canceled = append(f.canceled, id) }

func (f *fakeResizer) reset() {
	f.notified = nil
	f.canceled = nil
}

type recordingSink struct {
	events []schema.WindowEvent
}

func (r *recordingSink) OnWindowEvent(event schema.WindowEvent) {
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []schema.WindowEventType {
	out := make([]schema.WindowEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type managerFixture struct {
	manager    *Manager
	supervisor *fakeSupervisor
	surfaces   *fakeSurfaces
	resizer    *fakeResizer
	sink       *recordingSink
}

func newFixture(t testing.TB, cfg Config) *managerFixture {
	t.Helper()
	if cfg.DefaultDirectory == "" {
		cfg.DefaultDirectory = t.TempDir()
	}
	f := &managerFixture{
		supervisor: newFakeSupervisor(),
		surfaces:   newFakeSurfaces(),
		resizer:    &fakeResizer{},
		sink:       &recordingSink{},
	}
	m, err := NewManager(context.Background(), cfg, ManagerDeps{
		Supervisor: f.supervisor,
		Surfaces:   f.surfaces,
		Resizer:    f.resizer,
		EventSink:  f.sink,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	f.manager = m
	return f
}

var errBoom = errors.New("boom")

func launchFailure(id schema.SessionID) error {
	return fmt.Errorf("%w: session %d: %w", schema.ErrLaunch, id, errBoom)
}
