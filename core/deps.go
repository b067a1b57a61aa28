package core

import "pkt.systems/pslog"

// ManagerDeps captures the dependencies of the pane manager. Supervisor and
// Surfaces are required.
type ManagerDeps struct {
	Supervisor Supervisor
	Surfaces   SurfaceProvider
	Resizer    ResizeNotifier
	EventSink  EventSink
	Logger     pslog.Logger
}
