package hashindex

import (
	"fmt"
	"sync"
	"testing"

	"coredb/pkg/engine/buffer"
)

// memDisk is an in-memory stand-in for buffer.Disk, sized generously so
// these tests never see an allocation failure from the disk side.
type memDisk struct {
	mu    sync.Mutex
	pages map[buffer.PageID][buffer.PageSize]byte
}

func newMemDisk() *memDisk { return &memDisk{pages: make(map[buffer.PageID][buffer.PageSize]byte)} }

func (d *memDisk) ReadPage(id buffer.PageID, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if page, ok := d.pages[id]; ok {
		copy(dst, page[:])
	}
	return nil
}

func (d *memDisk) WritePage(id buffer.PageID, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var page [buffer.PageSize]byte
	copy(page[:], src)
	d.pages[id] = page
	return nil
}

func (d *memDisk) Shutdown() error { return nil }

func newTestTable(t *testing.T, poolSize, bucketCapacity int) *ExtendibleHashTable[string, int] {
	t.Helper()
	pool := buffer.New(poolSize, newMemDisk())
	table, err := New[string, int](pool, HashString, bucketCapacity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return table
}

func TestRoundTrip_SmallTable(t *testing.T) {
	table := newTestTable(t, 16, DefaultBucketCapacity)

	inserted, err := table.Insert("alice", 1)
	if err != nil || !inserted {
		t.Fatalf("insert alice: inserted=%v err=%v", inserted, err)
	}
	inserted, err = table.Insert("bob", 2)
	if err != nil || !inserted {
		t.Fatalf("insert bob: inserted=%v err=%v", inserted, err)
	}

	values, err := table.GetValue("alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if len(values) != 1 || values[0] != 1 {
		t.Fatalf("expected [1], got %v", values)
	}

	removed, err := table.Remove("alice", 1)
	if err != nil || !removed {
		t.Fatalf("remove alice: removed=%v err=%v", removed, err)
	}
	values, err = table.GetValue("alice")
	if err != nil {
		t.Fatalf("get alice after remove: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected no values after remove, got %v", values)
	}
}

func TestInsert_DuplicateRejected(t *testing.T) {
	table := newTestTable(t, 16, DefaultBucketCapacity)

	if _, err := table.Insert("k", 1); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	inserted, err := table.Insert("k", 1)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate (key, value) insert to be rejected")
	}

	values, err := table.GetValue("k")
	if err != nil {
		t.Fatalf("get k: %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("expected exactly one value for k, got %v", values)
	}
}

func TestInsert_ForcesSplitAndGrowsGlobalDepth(t *testing.T) {
	table := newTestTable(t, 64, 2)

	depth, err := table.GetGlobalDepth()
	if err != nil {
		t.Fatalf("global depth: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected initial global depth 0, got %d", depth)
	}

	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("key-%d", i)
		inserted, err := table.Insert(key, i)
		if err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
		if !inserted {
			t.Fatalf("insert %s should have succeeded", key)
		}
	}

	depth, err = table.GetGlobalDepth()
	if err != nil {
		t.Fatalf("global depth: %v", err)
	}
	if depth == 0 {
		t.Fatal("expected global depth to grow after enough inserts to overflow the initial bucket")
	}

	if err := table.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}

	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("key-%d", i)
		values, err := table.GetValue(key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if len(values) != 1 || values[0] != i {
			t.Fatalf("expected [%d] for %s, got %v", i, key, values)
		}
	}
}

func TestRemove_MergesEmptyBucketBackIntoImage(t *testing.T) {
	table := newTestTable(t, 64, 2)

	keys := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("key-%d", i)
		keys = append(keys, key)
		if _, err := table.Insert(key, i); err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}

	grownDepth, err := table.GetGlobalDepth()
	if err != nil {
		t.Fatalf("global depth: %v", err)
	}
	if grownDepth == 0 {
		t.Fatal("expected the table to have split at least once before testing merge")
	}

	for i, key := range keys {
		if _, err := table.Remove(key, i); err != nil {
			t.Fatalf("remove %s: %v", key, err)
		}
	}

	if err := table.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity after draining table: %v", err)
	}

	for _, key := range keys {
		values, err := table.GetValue(key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if len(values) != 0 {
			t.Fatalf("expected no values for %s after removal, got %v", key, values)
		}
	}
}

func TestNew_FailsFastWhenPoolTooSmall(t *testing.T) {
	pool := buffer.New(1, newMemDisk())
	_, err := New[string, int](pool, HashString, DefaultBucketCapacity)
	if err == nil {
		t.Fatal("expected an error: one frame cannot hold both the directory and an initial bucket pinned at once")
	}
	if !isPoolExhausted(err) {
		t.Fatalf("expected a pool-exhaustion error, got %v", err)
	}
}

func TestInsert_FailsFastRatherThanRaisingOnPoolExhaustion(t *testing.T) {
	disk := newMemDisk()
	pool := buffer.New(2, disk)
	table, err := New[string, int](pool, HashString, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := table.Insert("a", 1); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	directory, err := table.fetchDirectory()
	if err != nil {
		t.Fatalf("fetchDirectory: %v", err)
	}
	bucketID := directory.BucketPageID(0)

	// Pin both of the pool's two frames permanently so the split that
	// "b" triggers has nowhere to allocate its new bucket page.
	if pool.FetchPage(table.directoryPageID) == nil {
		t.Fatal("expected to pin the resident directory page")
	}
	if pool.FetchPage(bucketID) == nil {
		t.Fatal("expected to pin the resident bucket page")
	}

	inserted, err := table.Insert("b", 2)
	if err != nil {
		t.Fatalf("expected Insert to fail fast without raising on pool exhaustion, got %v", err)
	}
	if inserted {
		t.Fatal("expected the exhausted split to prevent the insert from succeeding")
	}
}

func TestConcurrentInsertsPreserveIntegrity(t *testing.T) {
	table := newTestTable(t, 64, 2)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if _, err := table.Insert(key, w*100+i); err != nil {
					t.Errorf("insert %s: %v", key, err)
				}
			}
		}()
	}
	wg.Wait()

	if err := table.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}

	for w := 0; w < 8; w++ {
		for i := 0; i < 20; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			values, err := table.GetValue(key)
			if err != nil {
				t.Fatalf("get %s: %v", key, err)
			}
			if len(values) != 1 || values[0] != w*100+i {
				t.Fatalf("expected [%d] for %s, got %v", w*100+i, key, values)
			}
		}
	}
}
