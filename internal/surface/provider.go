package surface

import (
	"sync"

	"pkt.systems/qermital/core"
	"pkt.systems/qermital/schema"
)

// Surface is an embedding region handed to one terminal.
type Surface struct {
	id      schema.SurfaceID
	session schema.SessionID
	window  uint64
}

// ID returns the surface identifier.
func (s *Surface) ID() schema.SurfaceID { return s.id }

// WindowID returns the host window terminals embed into, or 0 for a
// top-level terminal window.
func (s *Surface) WindowID() uint64 { return s.window }

// Session returns the session the surface was acquired for.
func (s *Surface) Session() schema.SessionID { return s.session }

// Provider hands out surfaces with sequential ids.
type Provider struct {
	mu     sync.Mutex
	window uint64
	last   schema.SurfaceID
	live   map[schema.SurfaceID]*Surface
}

// NewProvider returns a provider embedding into window (0 for none).
func NewProvider(window uint64) *Provider {
	return &Provider{window: window, live: make(map[schema.SurfaceID]*Surface)}
}

// Acquire allocates a surface for session.
func (p *Provider) Acquire(session schema.SessionID) core.Surface {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last++
	s := &Surface{id: p.last, session: session, window: p.window}
	p.live[s.id] = s
	return s
}

// Release returns a surface. Releasing an unknown surface is a no-op.
func (p *Provider) Release(s core.Surface) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, s.ID())
}

// Live reports how many surfaces are outstanding.
func (p *Provider) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Lookup returns a live surface by id.
func (p *Provider) Lookup(id schema.SurfaceID) (*Surface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.live[id]
	return s, ok
}
