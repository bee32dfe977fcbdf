package replacer

import "testing"

func TestLRU_VictimOrder(t *testing.T) {
	r := NewLRU(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	if got := r.Size(); got != 3 {
		t.Fatalf("expected size 3, got %d", got)
	}

	frame, ok := r.Victim()
	if !ok || frame != 1 {
		t.Fatalf("expected victim 1, got %v ok=%v", frame, ok)
	}
	frame, ok = r.Victim()
	if !ok || frame != 2 {
		t.Fatalf("expected victim 2, got %v ok=%v", frame, ok)
	}
}

func TestLRU_PinRemovesFromEvictableSet(t *testing.T) {
	r := NewLRU(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	if got := r.Size(); got != 1 {
		t.Fatalf("expected size 1 after pin, got %d", got)
	}
	frame, ok := r.Victim()
	if !ok || frame != 2 {
		t.Fatalf("expected victim 2, got %v ok=%v", frame, ok)
	}
}

func TestLRU_PinNonEvictableIsNoop(t *testing.T) {
	r := NewLRU(4)
	r.Pin(99)
	if got := r.Size(); got != 0 {
		t.Fatalf("expected size 0, got %d", got)
	}
}

func TestLRU_ReUnpinGoesToTail(t *testing.T) {
	r := NewLRU(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	r.Unpin(1) // re-unpin: should land at tail, not restore original position

	frame, ok := r.Victim()
	if !ok || frame != 2 {
		t.Fatalf("expected victim 2 (oldest remaining), got %v ok=%v", frame, ok)
	}
	frame, ok = r.Victim()
	if !ok || frame != 1 {
		t.Fatalf("expected victim 1 (re-unpinned to tail), got %v ok=%v", frame, ok)
	}
}

func TestLRU_UnpinIdempotent(t *testing.T) {
	r := NewLRU(4)
	r.Unpin(1)
	r.Unpin(1)
	r.Unpin(1)
	if got := r.Size(); got != 1 {
		t.Fatalf("expected size 1, got %d", got)
	}
}

func TestLRU_VictimOnEmpty(t *testing.T) {
	r := NewLRU(4)
	if _, ok := r.Victim(); ok {
		t.Fatalf("expected no victim on empty replacer")
	}
}
