package surface

import "testing"

func TestProviderAllocatesSequentialSurfaces(t *testing.T) {
	p := NewProvider(0x2a00007)
	first := p.Acquire(1)
	second := p.Acquire(2)
	if first.ID() != 1 || second.ID() != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID(), second.ID())
	}
	if first.WindowID() != 0x2a00007 {
		t.Fatalf("expected host window, got %#x", first.WindowID())
	}
	if p.Live() != 2 {
		t.Fatalf("expected 2 live surfaces, got %d", p.Live())
	}
	p.Release(first)
	p.Release(first)
	p.Release(nil)
	if p.Live() != 1 {
		t.Fatalf("expected 1 live surface, got %d", p.Live())
	}
	if _, ok := p.Lookup(first.ID()); ok {
		t.Fatalf("released surface still resolvable")
	}
	got, ok := p.Lookup(second.ID())
	if !ok || got.Session() != 2 {
		t.Fatalf("lookup second: %+v %v", got, ok)
	}
	if third := p.Acquire(3); third.ID() != 3 {
		t.Fatalf("ids must not be reused, got %d", third.ID())
	}
}
