package buffer

import (
	"fmt"
	"os"
	"sync"
)

// FileDisk is a Disk backed by a single os.File, growing on demand as
// higher page ids are written.
type FileDisk struct {
	mu   sync.RWMutex
	file *os.File
}

// NewFileDisk opens (creating if absent) the file at path for page I/O.
func NewFileDisk(path string) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open disk file: %w", err)
	}
	return &FileDisk{file: f}, nil
}

func (d *FileDisk) ReadPage(id PageID, out []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(out) != PageSize {
		return fmt.Errorf("read page %d: buffer must be %d bytes, got %d", id, PageSize, len(out))
	}

	offset := int64(id) * int64(PageSize)
	n, err := d.file.ReadAt(out, offset)
	if err != nil && n == 0 {
		// Page never written: treat as a zeroed page, matching the
		// disk's "extends on demand" contract.
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	return err
}

func (d *FileDisk) WritePage(id PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(data) != PageSize {
		return fmt.Errorf("write page %d: data must be %d bytes, got %d", id, PageSize, len(data))
	}

	offset := int64(id) * int64(PageSize)
	if _, err := d.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	return d.file.Sync()
}

func (d *FileDisk) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}
