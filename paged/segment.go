package paged

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/dot5enko/mvstore/compression"
	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/manager/cache"
	"github.com/dot5enko/mvstore/schema"
	"github.com/dot5enko/mvstore/table"
	"golang.org/x/sync/singleflight"
)

const DefaultCachePages = 64

type SegmentOptions struct {
	// decoded pages kept in memory, shared by all reopened readers
	CachePages int
	Logger     *slog.Logger
}

// state shared by every reader of the same segment file
type segmentShared struct {
	header SegmentHeader
	footer SegmentFooter
	schema schema.Schema
	pages  []PageEntry

	cache     *cache.PageCache[int, *Page]
	loadGroup singleflight.Group

	logger *slog.Logger
}

// Segment is a sealed on-disk paged table. A Segment instance owns its store
// handle and must be used by one goroutine at a time, other goroutines take
// their own instance from Reopen. Decoded pages are shared between instances.
type Segment struct {
	*segmentShared

	store *io.RegionStore
}

func OpenSegment(store *io.RegionStore, opts SegmentOptions) (*Segment, error) {
	if opts.CachePages <= 0 {
		opts.CachePages = DefaultCachePages
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	shared, err := readSegmentMeta(store)
	if err != nil {
		return nil, fmt.Errorf("unable to open segment %s: %w", store.Path(), err)
	}

	shared.cache = cache.NewPageCache[int, *Page](opts.CachePages)
	shared.logger = opts.Logger

	return &Segment{segmentShared: shared, store: store}, nil
}

// OpenSegmentFile opens a read only handle on path and the segment on it.
func OpenSegmentFile(path string, opts SegmentOptions) (*Segment, error) {
	store, err := io.Open(path)
	if err != nil {
		return nil, err
	}

	segment, err := OpenSegment(store, opts)
	if err != nil {
		store.Close()
		return nil, err
	}

	return segment, nil
}

func readSegmentMeta(store *io.RegionStore) (*segmentShared, error) {
	size, sizeErr := store.Size()
	if sizeErr != nil {
		return nil, sizeErr
	}

	if size < SegmentHeaderSize+SegmentFooterSize {
		return nil, fmt.Errorf("%w: file is only %d bytes", ErrCorruptSegment, size)
	}

	result := &segmentShared{}

	headerBuf := make([]byte, SegmentHeaderSize)
	if err := store.SetPosition(0); err != nil {
		return nil, err
	}
	if err := store.ReadFull(headerBuf); err != nil {
		return nil, fmt.Errorf("unable to read segment header: %w", err)
	}
	if err := result.header.FromBytes(headerBuf); err != nil {
		return nil, err
	}

	footerBuf := make([]byte, SegmentFooterSize)
	if err := store.SetPosition(size - SegmentFooterSize); err != nil {
		return nil, err
	}
	if err := store.ReadFull(footerBuf); err != nil {
		return nil, fmt.Errorf("unable to read segment footer: %w", err)
	}
	if err := result.footer.FromBytes(footerBuf); err != nil {
		return nil, err
	}

	dirEnd := int64(result.footer.DirectoryOffset + result.footer.DirectorySize)
	if dirEnd != size-SegmentFooterSize || result.footer.DirectoryOffset < SegmentHeaderSize {
		return nil, fmt.Errorf("%w: directory [%d, %d) doesn't fit file of %d bytes", ErrCorruptSegment, result.footer.DirectoryOffset, dirEnd, size)
	}

	dirBuf := make([]byte, result.footer.DirectorySize)
	if err := store.SetPosition(int64(result.footer.DirectoryOffset)); err != nil {
		return nil, err
	}
	if err := store.ReadFull(dirBuf); err != nil {
		return nil, fmt.Errorf("unable to read segment directory: %w", err)
	}

	pages, s, dirErr := readDirectory(dirBuf, int(result.footer.PageCount))
	if dirErr != nil {
		return nil, dirErr
	}

	if len(s.Columns) != int(result.header.Columns) {
		return nil, fmt.Errorf("%w: header says %d columns, schema has %d", ErrCorruptSegment, result.header.Columns, len(s.Columns))
	}

	// every page but the last one is full, that keeps row lookup O(1)
	total := uint64(0)
	for idx, p := range pages {
		if idx < len(pages)-1 && p.Rows != result.header.PageRows {
			return nil, fmt.Errorf("%w: page %d holds %d rows, expected %d", ErrCorruptSegment, idx, p.Rows, result.header.PageRows)
		}
		if p.Offset+uint64(p.StoredSize) > result.footer.DirectoryOffset {
			return nil, fmt.Errorf("%w: page %d overlaps the directory", ErrCorruptSegment, idx)
		}
		total += uint64(p.Rows)
	}

	if total != result.footer.RowCount {
		return nil, fmt.Errorf("%w: pages hold %d rows, footer says %d", ErrCorruptSegment, total, result.footer.RowCount)
	}

	result.schema = s
	result.pages = pages

	return result, nil
}

// Reopen returns an independent reader on a fresh handle to the same file.
func (s *Segment) Reopen() (*Segment, error) {
	dup, err := s.store.Reopen()
	if err != nil {
		return nil, err
	}
	return &Segment{segmentShared: s.segmentShared, store: dup}, nil
}

func (s *Segment) Close() error {
	return s.store.Close()
}

func (s *Segment) Store() *io.RegionStore {
	return s.store
}

func (s *Segment) Path() string {
	return s.store.Path()
}

func (s *Segment) Header() SegmentHeader {
	return s.header
}

func (s *Segment) Schema() schema.Schema {
	return s.schema.Clone()
}

func (s *Segment) RowCount() int {
	return int(s.footer.RowCount)
}

func (s *Segment) ColumnCount() int {
	return len(s.schema.Columns)
}

func (s *Segment) PageCount() int {
	return len(s.pages)
}

func (s *Segment) CacheStats() cache.CacheStats {
	return s.cache.Stats()
}

func (s *Segment) Row(i int) ([]any, error) {
	if i < 0 || i >= s.RowCount() {
		return nil, table.RowOutOfRange(i, s.RowCount())
	}

	pageRows := int(s.header.PageRows)

	p, err := s.page(i / pageRows)
	if err != nil {
		return nil, err
	}

	stored := p.Rows[i%pageRows]

	row := make([]any, len(stored))
	copy(row, stored)

	return row, nil
}

func (s *Segment) Value(row, col int) (any, error) {
	if err := table.CheckIndex(row, col, s.RowCount(), s.ColumnCount()); err != nil {
		return nil, err
	}

	pageRows := int(s.header.PageRows)

	p, err := s.page(row / pageRows)
	if err != nil {
		return nil, err
	}

	return p.Rows[row%pageRows][col], nil
}

func (s *Segment) page(idx int) (*Page, error) {
	if cached, ok := s.cache.Get(idx); ok {
		return cached, nil
	}

	v, err, _ := s.loadGroup.Do(strconv.Itoa(idx), func() (any, error) {
		loaded, loadErr := s.loadPage(idx)
		if loadErr != nil {
			return nil, loadErr
		}

		s.cache.Put(idx, loaded)
		return loaded, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*Page), nil
}

func (s *Segment) loadPage(idx int) (result *Page, topErr error) {
	entry := s.pages[idx]

	region, mapErr := s.store.MapRegion(int64(entry.Offset), int64(entry.StoredSize))
	if mapErr != nil {
		return nil, fmt.Errorf("unable to map page %d of %s: %w", idx, s.store.Path(), mapErr)
	}

	defer func() {
		if unmapErr := s.store.Unmap(region); unmapErr != nil && topErr == nil {
			result = nil
			topErr = fmt.Errorf("unable to unmap page %d of %s: %w", idx, s.store.Path(), unmapErr)
		}
	}()

	// decompression copies out of the mapping, nothing references it after unmap
	raw, decompressErr := compression.DecompressPage(region.Bytes(), entry.Codec, int(entry.RawSize))
	if decompressErr != nil {
		return nil, fmt.Errorf("page %d of %s: %w", idx, s.store.Path(), decompressErr)
	}

	decoded, decodeErr := decodePage(raw, s.schema, int(entry.Rows))
	if decodeErr != nil {
		if s.logger.Enabled(context.Background(), slog.LevelDebug) {
			s.logger.Debug("page decode failed", "segment", s.store.Path(), "page", idx, "raw", spew.Sdump(raw[:min(len(raw), 256)]))
		}
		return nil, fmt.Errorf("page %d of %s: %w", idx, s.store.Path(), decodeErr)
	}

	return decoded, nil
}
