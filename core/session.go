package core

import (
	"fmt"

	"pkt.systems/qermital/schema"
)

// session tracks one tab and its terminal process.
type session struct {
	ID        schema.SessionID
	Label     string
	Pane      schema.PaneKind
	Directory string
	Surface   Surface
	Status    schema.SessionStatus
	Geometry  schema.Geometry
	handle    ProcessHandle
	err       error
	// command is the one-shot startup command; consumed after the first spawn.
	command         string
	commandConsumed bool
}

func sessionLabel(id schema.SessionID) string {
	return fmt.Sprintf("Terminal %d", uint64(id))
}

// hasProcess reports whether a terminal process may still need stopping.
func (s *session) hasProcess() bool {
	switch s.Status {
	case schema.SessionRunning, schema.SessionExited:
		return s.handle != nil
	case schema.SessionFailed:
		return false
	default:
		panic(fmt.Sprintf("core: unknown session status %q", s.Status))
	}
}

func (s *session) surfaceID() schema.SurfaceID {
	if s.Surface == nil {
		return 0
	}
	return s.Surface.ID()
}

// Snapshot returns a read-only view of the session.
func (s *session) Snapshot(focused bool) schema.SessionSnapshot {
	snap := schema.SessionSnapshot{
		ID:        s.ID,
		Label:     s.Label,
		Pane:      s.Pane,
		Directory: s.Directory,
		Surface:   s.surfaceID(),
		Status:    s.Status,
		Geometry:  s.Geometry,
		Focused:   focused,
	}
	if s.handle != nil {
		snap.PID = s.handle.PID()
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}
