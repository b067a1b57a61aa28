package schema

// SessionStatus describes the state of a session's terminal process.
type SessionStatus string

const (
	// SessionRunning indicates the terminal process is alive.
	SessionRunning SessionStatus = "running"
	// SessionFailed indicates the terminal did not start; the tab stays.
	SessionFailed SessionStatus = "failed"
	// SessionExited indicates the terminal process ended on its own.
	SessionExited SessionStatus = "exited"
)

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID        SessionID
	Label     string
	Pane      PaneKind
	Directory string
	Surface   SurfaceID
	Status    SessionStatus
	PID       int
	Geometry  Geometry
	Focused   bool
	Error     string
}

// PaneSnapshot is a read-only view of a pane in tab order.
type PaneSnapshot struct {
	Kind     PaneKind
	Size     Size
	Focused  SessionID
	Sessions []SessionSnapshot
}

// IDs lists the session ids in tab order.
func (p PaneSnapshot) IDs() []SessionID {
	ids := make([]SessionID, 0, len(p.Sessions))
	for _, s := range p.Sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

// WindowSnapshot is a read-only view of the whole window.
type WindowSnapshot struct {
	Mode      WindowMode
	Size      Size
	Primary   PaneSnapshot
	Secondary *PaneSnapshot
}

// SessionCount returns the number of sessions across both panes.
func (w WindowSnapshot) SessionCount() int {
	n := len(w.Primary.Sessions)
	if w.Secondary != nil {
		n += len(w.Secondary.Sessions)
	}
	return n
}
