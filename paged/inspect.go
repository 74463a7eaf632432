package paged

import (
	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/schema"
)

type SegmentInfo struct {
	Path     string
	FileSize int64
	Header   SegmentHeader
	Schema   schema.Schema
	Rows     uint64
	Pages    []PageEntry
}

func (info SegmentInfo) StoredBytes() (stored, raw uint64) {
	for _, p := range info.Pages {
		stored += uint64(p.StoredSize)
		raw += uint64(p.RawSize)
	}
	return stored, raw
}

// Inspect reads header, directory and footer without decoding pages.
func Inspect(store *io.RegionStore) (SegmentInfo, error) {
	meta, err := readSegmentMeta(store)
	if err != nil {
		return SegmentInfo{}, err
	}

	size, err := store.Size()
	if err != nil {
		return SegmentInfo{}, err
	}

	return SegmentInfo{
		Path:     store.Path(),
		FileSize: size,
		Header:   meta.header,
		Schema:   meta.schema,
		Rows:     meta.footer.RowCount,
		Pages:    meta.pages,
	}, nil
}
