package hashindex

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"coredb/pkg/engine/buffer"
)

// A real fixed-layout C page casts its frame's bytes directly to a page
// struct; Go's type parameters can't be reflected into a fixed byte
// layout generically, so bucket and directory pages are gob-encoded into
// the frame instead. The frame is still the unit of pinning, dirtying,
// and eviction; only the in-page representation differs.

func encodeInto(frame *buffer.Frame, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	// gob's varint encoding keeps a directory page well under PageSize for
	// realistic page id ranges, but unlike the original's fixed 4-byte id
	// layout there's no compile-time bound — this check is what catches a
	// directory that grows past it instead.
	if buf.Len() > buffer.PageSize {
		return fmt.Errorf("encoded page is %d bytes, exceeds page size %d", buf.Len(), buffer.PageSize)
	}
	for i := range frame.Data {
		frame.Data[i] = 0
	}
	copy(frame.Data[:], buf.Bytes())
	return nil
}

func decodeFrom(frame *buffer.Frame, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(frame.Data[:])).Decode(v); err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	return nil
}
