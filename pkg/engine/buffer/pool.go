// Package buffer implements the buffer pool (C2): a fixed-size in-memory
// cache of on-disk pages, backed by an LRU replacer for victim selection.
package buffer

import (
	"sync"

	"coredb/pkg/engine/replacer"
	"coredb/pkg/logging"
)

// FrameID indexes into the pool's fixed frame array.
type FrameID = replacer.FrameID

// Frame is a fixed-size in-memory buffer plus the metadata describing
// which page currently occupies it.
type Frame struct {
	Data     [PageSize]byte
	PageID   PageID
	PinCount int
	Dirty    bool
}

func (f *Frame) reset() {
	f.Data = [PageSize]byte{}
	f.PageID = InvalidPageID
	f.PinCount = 0
	f.Dirty = false
}

// Pool is a single buffer pool instance managing a fixed number of frames.
// It may stand alone (NumInstances=1) or be one shard of a Parallel pool,
// in which case it owns exactly the page ids congruent to InstanceIndex
// modulo NumInstances.
type Pool struct {
	disk Disk

	// pageFrameMu guards pageTable and frameTable (the page-table latch).
	pageFrameMu sync.RWMutex
	pageTable   map[PageID]FrameID
	frameTable  map[FrameID]PageID

	// freeMu guards freeList. When both latches are needed they are
	// always acquired in this order: pageFrameMu, then freeMu.
	freeMu   sync.Mutex
	freeList []FrameID

	frames   []Frame
	replacer *replacer.LRU

	numInstances  int
	instanceIndex int
	nextPageID    int64
	pageIDMu      sync.Mutex
}

// New creates a standalone pool of poolSize frames.
func New(poolSize int, disk Disk) *Pool {
	return NewShard(poolSize, disk, 1, 0)
}

// NewShard creates a pool instance that is instanceIndex of numInstances
// in a parallel pool. Instance k owns exactly the page ids satisfying
// id mod numInstances == k.
func NewShard(poolSize int, disk Disk, numInstances, instanceIndex int) *Pool {
	p := &Pool{
		disk:          disk,
		pageTable:     make(map[PageID]FrameID, poolSize),
		frameTable:    make(map[FrameID]PageID, poolSize),
		frames:        make([]Frame, poolSize),
		replacer:      replacer.NewLRU(poolSize),
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    int64(instanceIndex),
	}
	p.freeList = make([]FrameID, poolSize)
	for i := range p.frames {
		p.frames[i].PageID = InvalidPageID
		p.freeList[i] = FrameID(i)
	}
	return p
}

// allocatePageID advances this instance's counter by numInstances so that
// page ids never collide with a sibling shard's allocations.
func (p *Pool) allocatePageID() PageID {
	p.pageIDMu.Lock()
	defer p.pageIDMu.Unlock()
	id := PageID(p.nextPageID)
	p.nextPageID += int64(p.numInstances)
	return id
}

// getFreeFrame returns a frame ready to receive a new occupant, preferring
// the free list over evicting via the replacer. Both latches are taken in
// the fixed order required by the caller (pageFrameMu already held).
func (p *Pool) getFreeFrame() (FrameID, bool) {
	p.freeMu.Lock()
	if n := len(p.freeList); n > 0 {
		frame := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.freeMu.Unlock()
		return frame, true
	}
	p.freeMu.Unlock()

	victim, ok := p.replacer.Victim()
	if !ok {
		return 0, false
	}

	f := &p.frames[victim]
	logging.Debug("evict", "page_id", f.PageID, "frame_id", victim, "dirty", f.Dirty)
	if f.Dirty {
		_ = p.disk.WritePage(f.PageID, f.Data[:])
	}
	delete(p.pageTable, p.frameTable[victim])
	delete(p.frameTable, victim)
	return victim, true
}

// NewPage allocates a fresh page id, pins a frame for it, and returns the
// pinned frame. Returns (InvalidPageID, nil) when every frame is pinned.
func (p *Pool) NewPage() (PageID, *Frame) {
	p.pageFrameMu.Lock()
	defer p.pageFrameMu.Unlock()

	frameID, ok := p.getFreeFrame()
	if !ok {
		return InvalidPageID, nil
	}

	id := p.allocatePageID()
	f := &p.frames[frameID]
	f.reset()
	f.PageID = id
	f.PinCount = 1
	f.Dirty = true

	p.pageTable[id] = frameID
	p.frameTable[frameID] = id
	return id, f
}

// FetchPage pins and returns the frame holding id, loading it from disk if
// it is not already resident. Returns nil when every frame is pinned and
// id is not already resident.
func (p *Pool) FetchPage(id PageID) *Frame {
	p.pageFrameMu.Lock()
	defer p.pageFrameMu.Unlock()

	if frameID, resident := p.pageTable[id]; resident {
		f := &p.frames[frameID]
		f.PinCount++
		p.replacer.Pin(frameID)
		return f
	}

	frameID, ok := p.getFreeFrame()
	if !ok {
		return nil
	}

	f := &p.frames[frameID]
	f.reset()
	f.PageID = id
	f.PinCount = 1
	_ = p.disk.ReadPage(id, f.Data[:])

	p.pageTable[id] = frameID
	p.frameTable[frameID] = id
	p.replacer.Pin(frameID)
	return f
}

// UnpinPage decrements the pin count of a resident page and ORs dirty into
// its dirty flag. Returns false if the page is not resident or already at
// a zero pin count.
func (p *Pool) UnpinPage(id PageID, dirty bool) bool {
	p.pageFrameMu.RLock()
	defer p.pageFrameMu.RUnlock()

	frameID, resident := p.pageTable[id]
	if !resident {
		return false
	}
	f := &p.frames[frameID]
	if f.PinCount <= 0 {
		return false
	}

	f.PinCount--
	f.Dirty = f.Dirty || dirty
	if f.PinCount == 0 {
		p.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes a resident page's frame to disk unconditionally. It
// does not clear the dirty flag, matching the letter of the contract;
// callers that want the common case should use FlushPageAndClear.
func (p *Pool) FlushPage(id PageID) bool {
	p.pageFrameMu.RLock()
	defer p.pageFrameMu.RUnlock()

	frameID, resident := p.pageTable[id]
	if !resident {
		return false
	}
	f := &p.frames[frameID]
	_ = p.disk.WritePage(id, f.Data[:])
	return true
}

// FlushPageAndClear flushes the page and clears its dirty flag, avoiding
// redundant writes on a subsequent eviction.
func (p *Pool) FlushPageAndClear(id PageID) bool {
	p.pageFrameMu.RLock()
	defer p.pageFrameMu.RUnlock()

	frameID, resident := p.pageTable[id]
	if !resident {
		return false
	}
	f := &p.frames[frameID]
	_ = p.disk.WritePage(id, f.Data[:])
	f.Dirty = false
	return true
}

// FlushAll flushes every resident page.
func (p *Pool) FlushAll() {
	p.pageFrameMu.RLock()
	defer p.pageFrameMu.RUnlock()

	for id, frameID := range p.pageTable {
		f := &p.frames[frameID]
		_ = p.disk.WritePage(id, f.Data[:])
	}
}

// DeletePage removes a page from the pool, returning its frame to the free
// list. Returns true if id is not resident (nothing to do) or was removed;
// returns false if the page is resident and still pinned.
func (p *Pool) DeletePage(id PageID) bool {
	p.pageFrameMu.Lock()
	defer p.pageFrameMu.Unlock()

	frameID, resident := p.pageTable[id]
	if !resident {
		return true
	}

	f := &p.frames[frameID]
	if f.PinCount != 0 {
		return false
	}

	if f.Dirty {
		_ = p.disk.WritePage(id, f.Data[:])
	}

	delete(p.pageTable, id)
	delete(p.frameTable, frameID)
	p.replacer.Pin(frameID) // drop from the evictable set if present
	f.reset()

	p.freeMu.Lock()
	p.freeList = append(p.freeList, frameID)
	p.freeMu.Unlock()
	return true
}

// FrameSnapshot is a point-in-time view of one resident frame, intended
// for introspection tooling rather than the hot path.
type FrameSnapshot struct {
	FrameID  FrameID
	PageID   PageID
	PinCount int
	Dirty    bool
}

// Snapshot returns every resident frame's state plus the current
// evictable order (next victim first), for display rather than control
// flow.
func (p *Pool) Snapshot() (frames []FrameSnapshot, evictableOrder []FrameID) {
	p.pageFrameMu.RLock()
	defer p.pageFrameMu.RUnlock()

	frames = make([]FrameSnapshot, 0, len(p.frameTable))
	for frameID, pageID := range p.frameTable {
		f := &p.frames[frameID]
		frames = append(frames, FrameSnapshot{
			FrameID:  frameID,
			PageID:   pageID,
			PinCount: f.PinCount,
			Dirty:    f.Dirty,
		})
	}
	return frames, p.replacer.Order()
}

// Size returns the pool's fixed frame capacity.
func (p *Pool) Size() int {
	return len(p.frames)
}
