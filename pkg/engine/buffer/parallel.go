package buffer

import "golang.org/x/sync/errgroup"

// Parallel dispatches page requests across N independently-latched Pool
// shards, restricting lock contention for any single page id to 1/N of
// the pool instances.
type Parallel struct {
	shards []*Pool
}

// NewParallel creates a parallel pool of len(disks) shards, each holding
// poolSize frames, backed by the given disks (one per shard).
func NewParallel(poolSize int, disks []Disk) *Parallel {
	n := len(disks)
	shards := make([]*Pool, n)
	for i, d := range disks {
		shards[i] = NewShard(poolSize, d, n, i)
	}
	return &Parallel{shards: shards}
}

func (pp *Parallel) shardFor(id PageID) *Pool {
	n := int64(len(pp.shards))
	idx := int64(id) % n
	if idx < 0 {
		idx += n
	}
	return pp.shards[idx]
}

// NewPage allocates a page on the given shard index (the caller decides
// which shard should own a brand-new page).
func (pp *Parallel) NewPage(shard int) (PageID, *Frame) {
	return pp.shards[shard].NewPage()
}

func (pp *Parallel) FetchPage(id PageID) *Frame          { return pp.shardFor(id).FetchPage(id) }
func (pp *Parallel) UnpinPage(id PageID, dirty bool) bool { return pp.shardFor(id).UnpinPage(id, dirty) }
func (pp *Parallel) FlushPage(id PageID) bool             { return pp.shardFor(id).FlushPage(id) }
func (pp *Parallel) DeletePage(id PageID) bool            { return pp.shardFor(id).DeletePage(id) }

// FlushAll flushes every shard concurrently. Pool.FlushAll reports no
// errors, so the returned error is always nil.
func (pp *Parallel) FlushAll() error {
	var g errgroup.Group
	for _, shard := range pp.shards {
		shard := shard
		g.Go(func() error {
			shard.FlushAll()
			return nil
		})
	}
	return g.Wait()
}
