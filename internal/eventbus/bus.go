package eventbus

import (
	"context"
	"slices"
	"sync"

	"pkt.systems/qermital/core"
	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

// Bus fans window events out to subscribers. Publishing never blocks; a
// subscriber that falls behind loses events.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan schema.WindowEvent][]schema.WindowEventType
	log   pslog.Logger
	depth int
}

var _ core.EventSink = (*Bus)(nil)

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan schema.WindowEvent][]schema.WindowEventType),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the given event types, or for every
// event when none are given, and returns a channel + cancel.
func (b *Bus) Subscribe(types ...schema.WindowEventType) (<-chan schema.WindowEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.WindowEvent, b.depth)
	b.mu.Lock()
	b.subs[ch] = slices.Clone(types)
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count, "types", len(types))
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnWindowEvent publishes a window event.
func (b *Bus) OnWindowEvent(event schema.WindowEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan schema.WindowEvent, 0, len(b.subs))
	for sub, types := range b.subs {
		if len(types) == 0 || slices.Contains(types, event.Type) {
			subs = append(subs, sub)
		}
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
