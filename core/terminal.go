package core

import (
	"context"

	"pkt.systems/qermital/schema"
)

// Supervisor owns the external terminal process of each session.
type Supervisor interface {
	Spawn(ctx context.Context, req SpawnRequest) (ProcessHandle, error)
	Resize(ctx context.Context, handle ProcessHandle, size schema.Size) (schema.Geometry, error)
	Terminate(ctx context.Context, handle ProcessHandle) error
	Restart(ctx context.Context, handle ProcessHandle, settings schema.Settings, mode schema.WindowMode) (ProcessHandle, error)
	Raise(ctx context.Context, handle ProcessHandle) error
}

// ProcessHandle identifies one launched terminal process.
type ProcessHandle interface {
	PID() int
	Exited() bool
}

// SpawnRequest describes a terminal launch. Command runs once before the
// interactive shell; restarts never carry it.
type SpawnRequest struct {
	Session   schema.SessionID
	Surface   Surface
	Directory string
	Command   string
	Settings  schema.Settings
	Mode      schema.WindowMode
}

// Surface is the native region a terminal renders into.
type Surface interface {
	ID() schema.SurfaceID
	// WindowID is the native host window, or 0 for a top-level terminal.
	WindowID() uint64
}

// SurfaceProvider hands out one surface per session. Acquire cannot fail so
// that replacement sessions can always be created.
type SurfaceProvider interface {
	Acquire(session schema.SessionID) Surface
	Release(surface Surface)
}

// ResizeNotifier receives geometry change notifications per surface.
type ResizeNotifier interface {
	Notify(surface schema.SurfaceID)
	Cancel(surface schema.SurfaceID)
}
