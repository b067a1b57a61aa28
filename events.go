package qermital

import (
	"context"

	"pkt.systems/qermital/core"
	"pkt.systems/qermital/schema"
)

// Event is one unit of work for the window loop. Handlers run to completion
// before the next event is dispatched.
type Event interface {
	event()
}

// OpenTabEvent carries a request forwarded by another instance.
type OpenTabEvent struct {
	Message schema.Message
}

// WindowResizeEvent carries a new window extent in pixels.
type WindowResizeEvent struct {
	Size schema.Size
}

// SurfaceSettledEvent fires once a resize burst for a surface has settled.
type SurfaceSettledEvent struct {
	Surface schema.SurfaceID
}

// ProcessExitedEvent reports a terminal process that ended on its own.
type ProcessExitedEvent struct {
	Session schema.SessionID
	Handle  core.ProcessHandle
}

// SettingsChangedEvent carries settings reloaded from disk.
type SettingsChangedEvent struct {
	Settings schema.Settings
}

// OpenSecondPaneEvent opens the secondary pane.
type OpenSecondPaneEvent struct{}

// QuitEvent stops the loop and closes every session.
type QuitEvent struct{}

type callEvent struct {
	fn    func(ctx context.Context, m *core.Manager) error
	reply chan error
}

func (OpenTabEvent) event()         {}
func (WindowResizeEvent) event()    {}
func (SurfaceSettledEvent) event()  {}
func (ProcessExitedEvent) event()   {}
func (SettingsChangedEvent) event() {}
func (OpenSecondPaneEvent) event()  {}
func (QuitEvent) event()            {}
func (callEvent) event()            {}
