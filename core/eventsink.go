package core

import "pkt.systems/qermital/schema"

// EventSink receives window events from the pane manager.
type EventSink interface {
	OnWindowEvent(event schema.WindowEvent)
}
