package hashindex

import (
	"errors"

	dberror "coredb/pkg/error"
)

// errPoolExhausted marks a page fetch/allocation that failed because the
// buffer pool had no free or evictable frame. Per the failure semantics
// this index follows, Insert and Remove fail fast and return false
// rather than raise; GetValue, GetGlobalDepth, and VerifyIntegrity
// propagate it as a genuine error since they have no boolean slot to
// carry the failure silently.
var errPoolExhausted = errors.New("buffer pool exhausted: no free or evictable frame")

func isPoolExhausted(err error) bool {
	return errors.Is(err, errPoolExhausted)
}

func wrapCodecError(err error, operation string) error {
	return dberror.Wrap(err, "PAGE_CODEC_ERROR", operation, "ExtendibleHashTable")
}
