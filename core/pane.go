package core

import (
	"slices"

	"pkt.systems/qermital/schema"
)

// pane is an ordered set of sessions; order is tab order.
type pane struct {
	kind    schema.PaneKind
	order   []schema.SessionID
	focused schema.SessionID
}

func newPane(kind schema.PaneKind) *pane {
	return &pane{kind: kind}
}

func (p *pane) len() int {
	return len(p.order)
}

func (p *pane) append(id schema.SessionID) {
	p.order = append(p.order, id)
	p.focused = id
}

// remove drops id and moves focus to the right neighbour, else the left one.
func (p *pane) remove(id schema.SessionID) bool {
	idx := slices.Index(p.order, id)
	if idx < 0 {
		return false
	}
	p.order = slices.Delete(p.order, idx, idx+1)
	if p.focused == id {
		switch {
		case len(p.order) == 0:
			p.focused = 0
		case idx < len(p.order):
			p.focused = p.order[idx]
		default:
			p.focused = p.order[len(p.order)-1]
		}
	}
	return true
}
