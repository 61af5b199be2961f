package streamid

import "testing"

func TestAllocateNeverReturnsZero(t *testing.T) {
	a := New()
	for i := 0; i < 100; i++ {
		if id := a.Allocate(); id == 0 {
			t.Fatalf("Allocate returned zero at iteration %d", i)
		}
	}
}

func TestAllocateIsMonotonicWithoutReuse(t *testing.T) {
	a := New()
	first := a.Allocate()
	second := a.Allocate()
	if second <= first {
		t.Errorf("expected second id %d > first id %d", second, first)
	}
}

func TestReleaseRecyclesID(t *testing.T) {
	a := New()
	id := a.Allocate()
	a.Release(id)

	reused := a.Allocate()
	if reused != id {
		t.Errorf("expected released id %d to be reused, got %d", id, reused)
	}
}

func TestReleaseUnknownIDIsNoop(t *testing.T) {
	a := New()
	a.Release(42) // never allocated
	id := a.Allocate()
	if id == 42 {
		t.Errorf("releasing an id never allocated must not pollute the free list")
	}
}

func TestReleaseTwiceDoesNotDoubleRecycle(t *testing.T) {
	a := New()
	id := a.Allocate()
	a.Release(id)
	a.Release(id) // no-op: already released

	first := a.Allocate()
	second := a.Allocate()
	if first == second {
		t.Fatalf("double release must not hand out the same id twice concurrently: got %d twice", first)
	}
}
