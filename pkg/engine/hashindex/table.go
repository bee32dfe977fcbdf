// Package hashindex implements the extendible hash index (C3): a
// directory of buckets that doubles when a bucket overflows and halves
// when every local depth drops at least one below the global depth.
package hashindex

import (
	"fmt"
	"sync"

	"coredb/pkg/engine/buffer"
	dberror "coredb/pkg/error"
	"coredb/pkg/logging"
)

// ExtendibleHashTable is a disk-backed extendible hash index over keys of
// type K mapping to values of type V, built on top of a buffer pool for
// page pinning and eviction.
type ExtendibleHashTable[K comparable, V comparable] struct {
	pool           *buffer.Pool
	hashFn         func(K) uint32
	bucketCapacity int

	directoryPageID buffer.PageID

	// tableMu guards the directory structure: reads (GetValue, the fast
	// insert/remove path) hold it shared; structural changes (split,
	// merge, directory growth/shrink) hold it exclusive.
	tableMu sync.RWMutex

	// latchMu briefly guards bucketLatches, the lazily-created per-bucket
	// latch used to serialize concurrent access to one bucket's contents.
	latchMu       sync.Mutex
	bucketLatches map[buffer.PageID]*sync.RWMutex
}

// New creates an extendible hash table backed by pool, starting at global
// depth zero with a single bucket. bucketCapacity <= 0 selects
// DefaultBucketCapacity.
func New[K comparable, V comparable](pool *buffer.Pool, hashFn func(K) uint32, bucketCapacity int) (*ExtendibleHashTable[K, V], error) {
	if bucketCapacity <= 0 {
		bucketCapacity = DefaultBucketCapacity
	}

	t := &ExtendibleHashTable[K, V]{
		pool:           pool,
		hashFn:         hashFn,
		bucketCapacity: bucketCapacity,
		bucketLatches:  make(map[buffer.PageID]*sync.RWMutex),
	}

	dirID, dirFrame := pool.NewPage()
	if dirFrame == nil {
		return nil, errPoolExhausted
	}
	directory := newDirectoryPage()

	bucketID, bucketFrame := pool.NewPage()
	if bucketFrame == nil {
		pool.UnpinPage(dirID, false)
		pool.DeletePage(dirID)
		return nil, errPoolExhausted
	}
	bucket := newBucketPage[K, V](bucketCapacity)

	directory.SetBucketPageID(0, bucketID)
	directory.SetLocalDepth(0, 0)

	if err := encodeInto(dirFrame, directory); err != nil {
		return nil, wrapCodecError(err, "New")
	}
	if err := encodeInto(bucketFrame, bucket); err != nil {
		return nil, wrapCodecError(err, "New")
	}
	pool.UnpinPage(dirID, true)
	pool.UnpinPage(bucketID, true)

	t.directoryPageID = dirID
	return t, nil
}

func (t *ExtendibleHashTable[K, V]) bucketLatch(id buffer.PageID) *sync.RWMutex {
	t.latchMu.Lock()
	defer t.latchMu.Unlock()
	l, ok := t.bucketLatches[id]
	if !ok {
		l = &sync.RWMutex{}
		t.bucketLatches[id] = l
	}
	return l
}

func (t *ExtendibleHashTable[K, V]) forgetBucketLatch(id buffer.PageID) {
	t.latchMu.Lock()
	defer t.latchMu.Unlock()
	delete(t.bucketLatches, id)
}

func (t *ExtendibleHashTable[K, V]) fetchDirectory() (*DirectoryPage, error) {
	frame := t.pool.FetchPage(t.directoryPageID)
	if frame == nil {
		return nil, errPoolExhausted
	}
	d := newDirectoryPage()
	if err := decodeFrom(frame, d); err != nil {
		t.pool.UnpinPage(t.directoryPageID, false)
		return nil, wrapCodecError(err, "fetchDirectory")
	}
	t.pool.UnpinPage(t.directoryPageID, false)
	return d, nil
}

func (t *ExtendibleHashTable[K, V]) putDirectory(d *DirectoryPage) error {
	frame := t.pool.FetchPage(t.directoryPageID)
	if frame == nil {
		return errPoolExhausted
	}
	if err := encodeInto(frame, d); err != nil {
		t.pool.UnpinPage(t.directoryPageID, false)
		return wrapCodecError(err, "putDirectory")
	}
	t.pool.UnpinPage(t.directoryPageID, true)
	return nil
}

func (t *ExtendibleHashTable[K, V]) fetchBucket(id buffer.PageID) (*BucketPage[K, V], error) {
	frame := t.pool.FetchPage(id)
	if frame == nil {
		return nil, errPoolExhausted
	}
	b := newBucketPage[K, V](t.bucketCapacity)
	if err := decodeFrom(frame, b); err != nil {
		t.pool.UnpinPage(id, false)
		return nil, wrapCodecError(err, "fetchBucket")
	}
	t.pool.UnpinPage(id, false)
	return b, nil
}

func (t *ExtendibleHashTable[K, V]) putBucket(id buffer.PageID, b *BucketPage[K, V]) error {
	frame := t.pool.FetchPage(id)
	if frame == nil {
		return errPoolExhausted
	}
	if err := encodeInto(frame, b); err != nil {
		t.pool.UnpinPage(id, false)
		return wrapCodecError(err, "putBucket")
	}
	t.pool.UnpinPage(id, true)
	return nil
}

// GetValue returns every value stored under key.
func (t *ExtendibleHashTable[K, V]) GetValue(key K) ([]V, error) {
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()

	directory, err := t.fetchDirectory()
	if err != nil {
		return nil, err
	}
	index := directory.BucketIndex(t.hashFn(key))
	bucketID := directory.BucketPageID(index)

	latch := t.bucketLatch(bucketID)
	latch.RLock()
	defer latch.RUnlock()

	bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return nil, err
	}
	return bucket.GetValue(key, nil), nil
}

// Insert adds (key, value). It returns false without error if that exact
// pair is already present.
func (t *ExtendibleHashTable[K, V]) Insert(key K, value V) (bool, error) {
	for {
		inserted, needsSplit, err := t.tryInsert(key, value)
		if err != nil {
			if isPoolExhausted(err) {
				return false, nil
			}
			return false, err
		}
		if !needsSplit {
			return inserted, nil
		}
		if err := t.split(key); err != nil {
			if isPoolExhausted(err) {
				return false, nil
			}
			return false, err
		}
	}
}

// tryInsert is the fast path, run under a shared table latch plus an
// exclusive latch on the single target bucket. needsSplit is true when
// the bucket is full and the caller must run split before retrying.
func (t *ExtendibleHashTable[K, V]) tryInsert(key K, value V) (inserted, needsSplit bool, err error) {
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()

	directory, err := t.fetchDirectory()
	if err != nil {
		return false, false, err
	}
	index := directory.BucketIndex(t.hashFn(key))
	bucketID := directory.BucketPageID(index)

	latch := t.bucketLatch(bucketID)
	latch.Lock()
	defer latch.Unlock()

	bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return false, false, err
	}
	if bucket.Contains(key, value) {
		return false, false, nil
	}
	if bucket.IsFull() {
		return false, true, nil
	}
	bucket.Insert(key, value)
	if err := t.putBucket(bucketID, bucket); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// split grows the directory if necessary, allocates a new bucket, and
// partitions the full bucket's entries between it and its new split
// image by the bit that just became significant. It is a no-op if a
// concurrent caller already split the same bucket.
func (t *ExtendibleHashTable[K, V]) split(key K) error {
	t.tableMu.Lock()
	defer t.tableMu.Unlock()

	directory, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	index := directory.BucketIndex(t.hashFn(key))
	bucketID := directory.BucketPageID(index)

	bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return err
	}
	if !bucket.IsFull() {
		return nil
	}

	localDepth := directory.LocalDepth(index)
	if localDepth == directory.GlobalDepth() {
		if directory.GlobalDepth() >= MaxGlobalDepth {
			err := dberror.New(dberror.ErrCategoryData, "HASH_TABLE_MAX_DEPTH",
				fmt.Sprintf("hash table exhausted its maximum global depth of %d", MaxGlobalDepth))
			err.Component = "ExtendibleHashTable"
			err.Operation = "split"
			return err
		}
		directory.GrowDirectory()
	}
	newLocalDepth := localDepth + 1
	splitBit := 1 << localDepth

	newBucketID, newFrame := t.pool.NewPage()
	if newFrame == nil {
		return errPoolExhausted
	}
	newBucket := newBucketPage[K, V](t.bucketCapacity)
	oldBucket := newBucketPage[K, V](t.bucketCapacity)

	for _, e := range bucket.all() {
		if int(t.hashFn(e.Key))&splitBit != 0 {
			newBucket.Insert(e.Key, e.Value)
		} else {
			oldBucket.Insert(e.Key, e.Value)
		}
	}

	for i := 0; i < directory.Size(); i++ {
		if directory.BucketPageID(i) != bucketID {
			continue
		}
		directory.SetLocalDepth(i, newLocalDepth)
		if i&splitBit != 0 {
			directory.SetBucketPageID(i, newBucketID)
		}
	}

	if err := encodeInto(newFrame, newBucket); err != nil {
		t.pool.UnpinPage(newBucketID, false)
		return wrapCodecError(err, "split")
	}
	t.pool.UnpinPage(newBucketID, true)

	if err := t.putBucket(bucketID, oldBucket); err != nil {
		return err
	}
	logging.Debug("split", "bucket_id", bucketID, "new_bucket_id", newBucketID, "local_depth", newLocalDepth)
	return t.putDirectory(directory)
}

// Remove deletes (key, value) if present, triggering a merge when it
// leaves its bucket empty.
func (t *ExtendibleHashTable[K, V]) Remove(key K, value V) (bool, error) {
	removed, empty, bucketID, err := t.tryRemove(key, value)
	if err != nil {
		if isPoolExhausted(err) {
			return false, nil
		}
		return false, err
	}
	if removed && empty {
		// Merge failures are fail-fast no-ops: the removal already
		// succeeded, so a struggling merge never surfaces as an error.
		_ = t.merge(bucketID)
	}
	return removed, nil
}

func (t *ExtendibleHashTable[K, V]) tryRemove(key K, value V) (removed, empty bool, bucketID buffer.PageID, err error) {
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()

	directory, err := t.fetchDirectory()
	if err != nil {
		return false, false, buffer.InvalidPageID, err
	}
	index := directory.BucketIndex(t.hashFn(key))
	bucketID = directory.BucketPageID(index)

	latch := t.bucketLatch(bucketID)
	latch.Lock()
	defer latch.Unlock()

	bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return false, false, bucketID, err
	}
	removed = bucket.Remove(key, value)
	if !removed {
		return false, false, bucketID, nil
	}
	if err := t.putBucket(bucketID, bucket); err != nil {
		return false, false, bucketID, err
	}
	return true, bucket.IsEmpty(), bucketID, nil
}

// merge folds an empty bucket into its split image when the image is at
// the same local depth, then shrinks the directory in a single
// non-cascading pass while every slot's local depth allows it.
func (t *ExtendibleHashTable[K, V]) merge(bucketID buffer.PageID) error {
	t.tableMu.Lock()
	defer t.tableMu.Unlock()

	directory, err := t.fetchDirectory()
	if err != nil {
		return err
	}

	index := -1
	for i := 0; i < directory.Size(); i++ {
		if directory.BucketPageID(i) == bucketID {
			index = i
			break
		}
	}
	if index == -1 {
		return nil
	}

	localDepth := directory.LocalDepth(index)
	if localDepth == 0 {
		return nil
	}

	bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return err
	}
	if !bucket.IsEmpty() {
		return nil
	}

	imageIndex := directory.SplitImageIndex(index)
	if directory.LocalDepth(imageIndex) != localDepth {
		return nil
	}
	imageBucketID := directory.BucketPageID(imageIndex)

	for i := 0; i < directory.Size(); i++ {
		if directory.BucketPageID(i) == bucketID || directory.BucketPageID(i) == imageBucketID {
			directory.SetBucketPageID(i, imageBucketID)
			directory.DecrLocalDepth(i)
		}
	}

	t.pool.DeletePage(bucketID)
	t.forgetBucketLatch(bucketID)
	logging.Debug("merge", "bucket_id", bucketID, "image_bucket_id", imageBucketID, "local_depth", localDepth-1)

	for directory.GlobalDepth() > 0 && directory.CanShrink() {
		directory.ShrinkDirectory()
	}

	return t.putDirectory(directory)
}

// GetGlobalDepth returns the directory's current global depth.
func (t *ExtendibleHashTable[K, V]) GetGlobalDepth() (int, error) {
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()
	directory, err := t.fetchDirectory()
	if err != nil {
		return 0, err
	}
	return directory.GlobalDepth(), nil
}

// VerifyIntegrity checks that the directory's local-depth groups are
// internally consistent.
func (t *ExtendibleHashTable[K, V]) VerifyIntegrity() error {
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()
	directory, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	return directory.VerifyIntegrity()
}

// Stats is a point-in-time summary of the directory's shape, intended
// for introspection tooling rather than the hot path.
type Stats struct {
	GlobalDepth   int
	DirectorySize int
	BucketCount   int
}

// Stats reports the directory's current global depth, slot count, and
// the number of distinct buckets those slots point at.
func (t *ExtendibleHashTable[K, V]) Stats() (Stats, error) {
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()
	directory, err := t.fetchDirectory()
	if err != nil {
		return Stats{}, err
	}

	seen := make(map[buffer.PageID]struct{})
	for i := 0; i < directory.Size(); i++ {
		seen[directory.BucketPageID(i)] = struct{}{}
	}
	return Stats{
		GlobalDepth:   directory.GlobalDepth(),
		DirectorySize: directory.Size(),
		BucketCount:   len(seen),
	}, nil
}
