package buffer

import (
	"sync"
	"testing"
)

// memDisk is an in-memory Disk stub for tests, avoiding filesystem I/O.
type memDisk struct {
	mu    sync.Mutex
	pages map[PageID][PageSize]byte
}

func newMemDisk() *memDisk { return &memDisk{pages: make(map[PageID][PageSize]byte)} }

func (d *memDisk) ReadPage(id PageID, out []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if data, ok := d.pages[id]; ok {
		copy(out, data[:])
	}
	return nil
}

func (d *memDisk) WritePage(id PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [PageSize]byte
	copy(buf[:], data)
	d.pages[id] = buf
	return nil
}

func (d *memDisk) Shutdown() error { return nil }

func TestPool_NewAndFetch(t *testing.T) {
	p := New(3, newMemDisk())

	id, frame := p.NewPage()
	if frame == nil {
		t.Fatal("expected a frame")
	}
	frame.Data[0] = 42
	if !p.UnpinPage(id, true) {
		t.Fatal("unpin should succeed")
	}

	fetched := p.FetchPage(id)
	if fetched == nil {
		t.Fatal("expected fetched frame")
	}
	if fetched.Data[0] != 42 {
		t.Fatalf("expected persisted byte 42, got %d", fetched.Data[0])
	}
	p.UnpinPage(id, false)
}

func TestPool_ChurnAndEviction(t *testing.T) {
	p := New(3, newMemDisk())

	ids := make([]PageID, 3)
	for i := range ids {
		id, frame := p.NewPage()
		if frame == nil {
			t.Fatalf("expected frame for page %d", i)
		}
		ids[i] = id
	}

	// All three frames are pinned; nothing is evictable.
	if frame := p.FetchPage(PageID(999)); frame != nil {
		t.Fatal("expected fetch to fail: all frames pinned")
	}

	// Unpin one as dirty, making room.
	if !p.UnpinPage(ids[1], true) {
		t.Fatal("unpin should succeed")
	}

	fetched := p.FetchPage(PageID(999))
	if fetched == nil {
		t.Fatal("expected fetch to succeed after unpin freed a frame")
	}
	p.UnpinPage(PageID(999), false)
}

func TestPool_UnpinFailures(t *testing.T) {
	p := New(2, newMemDisk())

	if p.UnpinPage(PageID(5), false) {
		t.Fatal("unpin of non-resident page should fail")
	}

	id, _ := p.NewPage()
	p.UnpinPage(id, false)
	if p.UnpinPage(id, false) {
		t.Fatal("unpin at zero pin count should fail")
	}
}

func TestPool_DeletePage(t *testing.T) {
	p := New(2, newMemDisk())

	id, _ := p.NewPage()
	if p.DeletePage(id) {
		t.Fatal("delete of pinned page should fail")
	}

	p.UnpinPage(id, false)
	if !p.DeletePage(id) {
		t.Fatal("delete of unpinned page should succeed")
	}
	if !p.DeletePage(id) {
		t.Fatal("delete of already-absent page should return true")
	}
}

func TestPool_InvariantBP1(t *testing.T) {
	p := New(4, newMemDisk())
	var ids []PageID
	for i := 0; i < 4; i++ {
		id, _ := p.NewPage()
		ids = append(ids, id)
		p.UnpinPage(id, false)
	}

	p.pageFrameMu.RLock()
	for pid, fid := range p.pageTable {
		if p.frameTable[fid] != pid {
			t.Fatalf("BP1 violated: page %v -> frame %v -> page %v", pid, fid, p.frameTable[fid])
		}
	}
	p.pageFrameMu.RUnlock()
}

func TestShardedAllocation(t *testing.T) {
	disks := []Disk{newMemDisk(), newMemDisk(), newMemDisk()}
	pp := NewParallel(4, disks)

	id0, f0 := pp.NewPage(0)
	id1, f1 := pp.NewPage(1)
	if f0 == nil || f1 == nil {
		t.Fatal("expected frames")
	}
	if int64(id0)%3 != 0 {
		t.Fatalf("shard 0 allocated page %d not congruent to 0 mod 3", id0)
	}
	if int64(id1)%3 != 1 {
		t.Fatalf("shard 1 allocated page %d not congruent to 1 mod 3", id1)
	}
	pp.UnpinPage(id0, false)
	pp.UnpinPage(id1, false)
}
