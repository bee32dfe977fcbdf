package hashindex

import (
	"fmt"

	"coredb/pkg/engine/buffer"
)

// MaxGlobalDepth bounds how many times the directory can double, mirroring
// the original's HASH_TABLE_DIRECTORY_MAX_DEPTH.
const MaxGlobalDepth = 9

const maxDirectorySize = 1 << MaxGlobalDepth

// DirectoryPage maps the low globalDepth bits of a key's hash to the page
// id of the bucket holding it, and records each slot's local depth: how
// many of those low bits actually distinguish its bucket from its split
// image.
type DirectoryPage struct {
	Depth         int
	LocalDepths   [maxDirectorySize]uint8
	BucketPageIDs [maxDirectorySize]buffer.PageID
}

func newDirectoryPage() *DirectoryPage {
	d := &DirectoryPage{}
	for i := range d.BucketPageIDs {
		d.BucketPageIDs[i] = buffer.InvalidPageID
	}
	return d
}

func (d *DirectoryPage) GlobalDepth() int { return d.Depth }
func (d *DirectoryPage) Size() int        { return 1 << d.Depth }

// BucketIndex maps a key's hash to a directory slot using its low
// globalDepth bits.
func (d *DirectoryPage) BucketIndex(hash uint32) int {
	return int(hash) & (d.Size() - 1)
}

func (d *DirectoryPage) BucketPageID(index int) buffer.PageID { return d.BucketPageIDs[index] }

func (d *DirectoryPage) SetBucketPageID(index int, id buffer.PageID) {
	d.BucketPageIDs[index] = id
}

func (d *DirectoryPage) LocalDepth(index int) int { return int(d.LocalDepths[index]) }

func (d *DirectoryPage) SetLocalDepth(index int, depth int) { d.LocalDepths[index] = uint8(depth) }

func (d *DirectoryPage) IncrLocalDepth(index int) { d.LocalDepths[index]++ }
func (d *DirectoryPage) DecrLocalDepth(index int) { d.LocalDepths[index]-- }

// SplitImageIndex returns the slot this bucket would merge back into: the
// one sharing every bit of index except the one just below its local
// depth, the bit that made the two buckets distinct.
func (d *DirectoryPage) SplitImageIndex(index int) int {
	depth := d.LocalDepth(index)
	if depth == 0 {
		return index
	}
	return index ^ (1 << (depth - 1))
}

// GrowDirectory doubles the directory, mirroring every existing slot's
// bucket pointer and local depth into its new high-bit twin.
func (d *DirectoryPage) GrowDirectory() {
	size := d.Size()
	for i := 0; i < size; i++ {
		d.BucketPageIDs[size+i] = d.BucketPageIDs[i]
		d.LocalDepths[size+i] = d.LocalDepths[i]
	}
	d.Depth++
}

// ShrinkDirectory halves the directory. Callers must have verified
// CanShrink first.
func (d *DirectoryPage) ShrinkDirectory() {
	d.Depth--
}

// CanShrink reports whether every slot's local depth is strictly less
// than the global depth, the precondition for halving the directory.
func (d *DirectoryPage) CanShrink() bool {
	for i := 0; i < d.Size(); i++ {
		if d.LocalDepth(i) == d.Depth {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks that every slot agrees with the rest of its
// equivalence class — the slots strided 2^depth apart that all point at
// the same bucket — on both bucket page id and local depth.
func (d *DirectoryPage) VerifyIntegrity() error {
	for i := 0; i < d.Size(); i++ {
		depth := d.LocalDepth(i)
		if depth > d.Depth {
			return fmt.Errorf("slot %d local depth %d exceeds global depth %d", i, depth, d.Depth)
		}
		stride := 1 << depth
		first := i & (stride - 1)
		for j := first; j < d.Size(); j += stride {
			if d.BucketPageIDs[j] != d.BucketPageIDs[first] {
				return fmt.Errorf("slot %d and %d share a local depth group but point to different buckets", first, j)
			}
			if d.LocalDepth(j) != depth {
				return fmt.Errorf("slot %d and %d share a local depth group but disagree on local depth", first, j)
			}
		}
	}
	return nil
}
