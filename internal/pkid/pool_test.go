package pkid

import "testing"

func TestLeaseSequential(t *testing.T) {
	p := New(2)
	id1, ok := p.Lease()
	if !ok || id1 != 1 {
		t.Fatalf("want 1, got %d ok=%v", id1, ok)
	}
	id2, ok := p.Lease()
	if !ok || id2 != 2 {
		t.Fatalf("want 2, got %d ok=%v", id2, ok)
	}
	if _, ok := p.Lease(); ok {
		t.Fatal("expected exhaustion")
	}
}

func TestReleaseUnblocksOneWaiter(t *testing.T) {
	p := New(2)
	p.Lease()
	p.Lease()
	if _, ok := p.Lease(); ok {
		t.Fatal("pool should be exhausted")
	}
	p.Release(1)
	id, ok := p.Lease()
	if !ok || id != 1 {
		t.Fatalf("expected released pkid 1 to be leased next, got %d ok=%v", id, ok)
	}
}

func TestLeaseWrapsAround(t *testing.T) {
	p := New(3)
	p.Lease() // 1
	p.Lease() // 2
	p.Lease() // 3
	p.Release(1)
	p.Release(2)
	// last leased was 3; next lease should wrap to 1, the smallest free
	// pkid above last, wrapping around (spec.md §4.2, §9).
	id, ok := p.Lease()
	if !ok || id != 1 {
		t.Fatalf("expected wraparound to 1, got %d ok=%v", id, ok)
	}
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	p := New(1)
	id, _ := p.Lease()
	p.Release(id)
	p.Release(id)
	if p.Available() != 1 {
		t.Fatalf("expected 1 available, got %d", p.Available())
	}
}
