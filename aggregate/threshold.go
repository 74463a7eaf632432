package aggregate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dot5enko/mvstore/io"
	"github.com/google/uuid"
)

// Threshold caps the memory tier. Zero fields are unlimited.
type Threshold struct {
	Rows  int
	Bytes int64
}

func (t Threshold) Enabled() bool {
	return t.Rows > 0 || t.Bytes > 0
}

// exceededBy reports whether adding one row of rowBytes to a buffer of
// rows/bytes goes over the limit.
func (t Threshold) exceededBy(rows int, bytes int64, rowBytes int64) bool {
	if t.Rows > 0 && rows+1 > t.Rows {
		return true
	}
	if t.Bytes > 0 && bytes+rowBytes > t.Bytes {
		return true
	}
	return false
}

func (t Threshold) String() string {
	switch {
	case t.Rows > 0 && t.Bytes > 0:
		return fmt.Sprintf("%d rows / %d bytes", t.Rows, t.Bytes)
	case t.Rows > 0:
		return fmt.Sprintf("%d rows", t.Rows)
	case t.Bytes > 0:
		return fmt.Sprintf("%d bytes", t.Bytes)
	default:
		return "unlimited"
	}
}

// StoreFactory opens the writable backing store of a table. It is called at
// most once per table, on the first spill.
type StoreFactory func() (*io.RegionStore, error)

// TempStoreFactory creates <uuid>.spill files inside dir.
func TempStoreFactory(dir string) StoreFactory {
	return func() (*io.RegionStore, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("unable to create spill directory %s: %w", dir, err)
		}

		uid, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}

		return io.Create(filepath.Join(dir, uid.String()+".spill"))
	}
}
