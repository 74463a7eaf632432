package paged

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/dot5enko/mvstore/bits"
	"github.com/dot5enko/mvstore/compression"
	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/schema"
	"github.com/dot5enko/mvstore/table"
	"github.com/google/uuid"
)

// SegmentWriter is the on-disk Builder. Rows go into a pending page, full
// pages are compressed and written right away, so every page but the last
// one holds exactly PageRows rows.
type SegmentWriter struct {
	store  *io.RegionStore
	schema schema.Schema
	header SegmentHeader

	pending [][]any
	pages   []PageEntry

	end    int64
	rows   int
	sealed bool
}

// Checkpoint marks a writer state that Rollback can return to.
type Checkpoint struct {
	pages   int
	rows    int
	end     int64
	pending [][]any
}

func NewSegmentWriter(store *io.RegionStore, s schema.Schema, pageRows int) (*SegmentWriter, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !store.Writable() {
		return nil, io.ErrReadOnly
	}
	if pageRows <= 0 {
		pageRows = DefaultPageRows
	}

	uid, uidErr := uuid.NewV7()
	if uidErr != nil {
		return nil, uidErr
	}

	w := &SegmentWriter{
		store:  store,
		schema: s.Clone(),
		header: SegmentHeader{
			Version:  CurrentSegmentVersion,
			Uid:      uid,
			PageRows: uint32(pageRows),
			Columns:  uint16(len(s.Columns)),
		},
		pending: make([][]any, 0, pageRows),
	}

	headerBuf := bits.NewEncodeBuffer(make([]byte, SegmentHeaderSize), binary.LittleEndian)
	if _, err := w.header.WriteTo(&headerBuf); err != nil {
		return nil, err
	}

	if err := w.writeAt(0, headerBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("unable to write segment header: %w", err)
	}

	w.end = SegmentHeaderSize

	return w, nil
}

func (w *SegmentWriter) Uid() uuid.UUID {
	return w.header.Uid
}

func (w *SegmentWriter) Schema() schema.Schema {
	return w.schema.Clone()
}

func (w *SegmentWriter) PageRows() int {
	return int(w.header.PageRows)
}

func (w *SegmentWriter) RowCount() int {
	return w.rows
}

func (w *SegmentWriter) PageCount() int {
	return len(w.pages)
}

func (w *SegmentWriter) Sealed() bool {
	return w.sealed
}

func (w *SegmentWriter) AppendRow(values []any) error {
	if w.sealed {
		return table.ErrSealed
	}
	if len(values) != len(w.schema.Columns) {
		return table.ArityMismatch(len(values), len(w.schema.Columns))
	}
	if err := w.schema.CheckRow(values); err != nil {
		return err
	}

	row := schema.CopyRow(values)

	w.pending = append(w.pending, row)
	w.rows++

	if len(w.pending) == w.PageRows() {
		if err := w.flushPending(); err != nil {
			w.pending = w.pending[:len(w.pending)-1]
			w.rows--
			return err
		}
	}

	return nil
}

// Checkpoint and Rollback make a group of appends atomic.
func (w *SegmentWriter) Checkpoint() Checkpoint {
	return Checkpoint{
		pages:   len(w.pages),
		rows:    w.rows,
		end:     w.end,
		pending: slices.Clone(w.pending),
	}
}

func (w *SegmentWriter) Rollback(cp Checkpoint) error {
	if w.sealed {
		return table.ErrSealed
	}

	w.pages = w.pages[:cp.pages]
	w.rows = cp.rows
	w.end = cp.end

	w.pending = w.pending[:0]
	w.pending = append(w.pending, cp.pending...)

	return w.store.Truncate(cp.end)
}

func (w *SegmentWriter) flushPending() error {
	if len(w.pending) == 0 {
		return nil
	}

	raw, encodeErr := encodePage(w.schema, w.pending)
	if encodeErr != nil {
		return encodeErr
	}

	stored, codec, compressErr := compression.CompressPage(raw)
	if compressErr != nil {
		return compressErr
	}

	entry := PageEntry{
		Offset:     uint64(w.end),
		StoredSize: uint32(len(stored)),
		RawSize:    uint32(len(raw)),
		Rows:       uint32(len(w.pending)),
		Codec:      codec,
	}

	if err := w.writeAt(w.end, stored); err != nil {
		// drop whatever part of the page made it to disk
		w.store.Truncate(w.end)
		return fmt.Errorf("unable to write page %d: %w", len(w.pages), err)
	}

	w.pages = append(w.pages, entry)
	w.end += int64(len(stored))
	w.pending = make([][]any, 0, w.PageRows())

	return nil
}

func (w *SegmentWriter) writeAt(offset int64, data []byte) error {
	if err := w.store.SetPosition(offset); err != nil {
		return err
	}
	_, err := w.store.Write(data)
	return err
}

// Complete writes the last page, the directory and the footer. Calling it
// again is a no-op.
func (w *SegmentWriter) Complete() error {
	if w.sealed {
		return nil
	}

	if err := w.flushPending(); err != nil {
		return err
	}

	dir := bits.NewGrowingBuffer(len(w.pages)*pageEntrySize+256, binary.LittleEndian)
	writeDirectory(&dir, w.pages, w.schema)

	footer := SegmentFooter{
		DirectoryOffset: uint64(w.end),
		DirectorySize:   uint64(dir.Position()),
		RowCount:        uint64(w.rows),
		PageCount:       uint32(len(w.pages)),
	}
	footer.WriteTo(&dir)

	if err := w.writeAt(w.end, dir.Bytes()); err != nil {
		w.store.Truncate(w.end)
		return fmt.Errorf("unable to write segment directory: %w", err)
	}

	if err := w.store.Sync(); err != nil {
		return fmt.Errorf("unable to sync segment: %w", err)
	}

	w.end += int64(dir.Position())
	w.sealed = true

	return nil
}

// WriteSegment copies a table into a sealed segment.
func WriteSegment(store *io.RegionStore, t table.Table, pageRows int) (*SegmentWriter, error) {
	w, err := NewSegmentWriter(store, t.Schema(), pageRows)
	if err != nil {
		return nil, err
	}

	scanErr := table.Scan(t, func(i int, row []any) error {
		return w.AppendRow(row)
	})
	if scanErr != nil {
		return nil, fmt.Errorf("unable to copy row into segment: %w", scanErr)
	}

	if err := w.Complete(); err != nil {
		return nil, err
	}

	return w, nil
}
