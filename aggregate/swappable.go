// Package aggregate holds result tables that start in memory and move their
// oldest rows to a disk segment once a threshold is crossed.
package aggregate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/paged"
	"github.com/dot5enko/mvstore/schema"
	"github.com/dot5enko/mvstore/table"
)

var ErrSpillFailed = errors.New("spill to backing store failed")

type State uint8

const (
	Building State = iota
	Spilling
	Sealed
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Spilling:
		return "spilling"
	case Sealed:
		return "sealed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type Options struct {
	Threshold Threshold

	// rows per page of the backing segment
	PageRows   int
	CachePages int

	StoreFactory StoreFactory
	Logger       *slog.Logger
}

// Swappable is an append-only table whose logical content is the rows on
// disk followed by the rows in memory. A single producer appends, readers
// start after Complete, each on its own instance from Reopen.
type Swappable struct {
	schema schema.Schema
	opts   Options
	state  State

	memory      [][]any
	memoryBytes int64

	// backing tier, nil until the first spill
	store   *io.RegionStore
	writer  *paged.SegmentWriter
	segment *paged.Segment

	spilled int
	spills  int

	// only the owner deletes the backing file
	owner bool

	logger *slog.Logger
}

func New(s schema.Schema, opts Options) (*Swappable, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if opts.StoreFactory == nil {
		opts.StoreFactory = TempStoreFactory(os.TempDir())
	}
	if opts.PageRows <= 0 {
		opts.PageRows = paged.DefaultPageRows
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Swappable{
		schema: s.Clone(),
		opts:   opts,
		owner:  true,
		logger: opts.Logger,
	}, nil
}

func (t *Swappable) Schema() schema.Schema {
	return t.schema.Clone()
}

func (t *Swappable) State() State {
	return t.state
}

func (t *Swappable) RowCount() int {
	return t.spilled + len(t.memory)
}

func (t *Swappable) ColumnCount() int {
	return len(t.schema.Columns)
}

// Spills is the number of times the memory tier was flushed to disk.
func (t *Swappable) Spills() int {
	return t.spills
}

func (t *Swappable) SpilledRows() int {
	return t.spilled
}

func (t *Swappable) MemoryRows() int {
	return len(t.memory)
}

func (t *Swappable) HasBackingStore() bool {
	return t.store != nil || t.segment != nil
}

// BackingPath is the spill file path, empty for a pure in-memory table.
func (t *Swappable) BackingPath() string {
	switch {
	case t.segment != nil:
		return t.segment.Path()
	case t.store != nil:
		return t.store.Path()
	default:
		return ""
	}
}

func (t *Swappable) AppendRow(values []any) error {
	if t.state == Sealed {
		return table.ErrSealed
	}
	if len(values) != len(t.schema.Columns) {
		return table.ArityMismatch(len(values), len(t.schema.Columns))
	}
	if err := t.schema.CheckRow(values); err != nil {
		return err
	}

	rowBytes := schema.EstimateRowSize(values)

	if len(t.memory) > 0 && t.opts.Threshold.exceededBy(len(t.memory), t.memoryBytes, rowBytes) {
		if err := t.spill(); err != nil {
			return err
		}
	}

	row := schema.CopyRow(values)

	t.memory = append(t.memory, row)
	t.memoryBytes += rowBytes

	return nil
}

// spill moves the whole memory tier to the backing store. On failure nothing
// changes: the memory tier is untouched and the disk tier is rolled back.
func (t *Swappable) spill() error {
	if t.writer == nil {
		if err := t.openBackingStore(); err != nil {
			return fmt.Errorf("%w: %w", ErrSpillFailed, err)
		}
	}

	cp := t.writer.Checkpoint()

	for _, row := range t.memory {
		if err := t.writer.AppendRow(row); err != nil {
			if rollbackErr := t.writer.Rollback(cp); rollbackErr != nil {
				t.logger.Error("unable to roll back failed spill", "store", t.store.Path(), "error", rollbackErr)
			}
			return fmt.Errorf("%w: unable to write to %s: %w", ErrSpillFailed, t.store.Path(), err)
		}
	}

	flushed := len(t.memory)

	clear(t.memory)
	t.memory = t.memory[:0]
	t.memoryBytes = 0

	t.spilled += flushed
	t.spills++
	t.state = Spilling

	t.logger.Debug("spilled aggregate rows",
		"store", t.store.Path(),
		"rows", flushed,
		"spilled_total", t.spilled,
		"spill", t.spills,
		"threshold", t.opts.Threshold.String(),
	)

	return nil
}

func (t *Swappable) openBackingStore() error {
	store, err := t.opts.StoreFactory()
	if err != nil {
		return fmt.Errorf("unable to open backing store: %w", err)
	}

	writer, err := paged.NewSegmentWriter(store, t.schema, t.opts.PageRows)
	if err != nil {
		store.Close()
		if store.Writable() {
			os.Remove(store.Path())
		}
		return fmt.Errorf("unable to start segment in %s: %w", store.Path(), err)
	}

	t.store = store
	t.writer = writer

	t.logger.Info("aggregate table overflowed memory, spilling to disk",
		"store", store.Path(),
		"threshold", t.opts.Threshold.String(),
	)

	return nil
}

// Complete seals both tiers. The backing store is reopened read-only as a
// segment. Calling it again is a no-op.
func (t *Swappable) Complete() error {
	if t.state == Sealed {
		return nil
	}

	if t.writer != nil {
		if err := t.writer.Complete(); err != nil {
			return fmt.Errorf("unable to seal backing store %s: %w", t.store.Path(), err)
		}

		readOnly, err := t.store.Reopen()
		if err != nil {
			return err
		}

		if err := t.store.Close(); err != nil {
			readOnly.Close()
			return err
		}

		segment, err := paged.OpenSegment(readOnly, paged.SegmentOptions{
			CachePages: t.opts.CachePages,
			Logger:     t.logger,
		})
		if err != nil {
			readOnly.Close()
			return err
		}

		t.segment = segment
		t.store = nil
		t.writer = nil
	}

	t.state = Sealed

	return nil
}

func (t *Swappable) Row(i int) ([]any, error) {
	if t.state != Sealed {
		return nil, table.ErrNotSealed
	}
	if i < 0 || i >= t.RowCount() {
		return nil, table.RowOutOfRange(i, t.RowCount())
	}

	if i < t.spilled {
		if t.segment == nil {
			return nil, io.ErrStoreClosed
		}
		return t.segment.Row(i)
	}

	stored := t.memory[i-t.spilled]
	row := make([]any, len(stored))
	copy(row, stored)

	return row, nil
}

func (t *Swappable) Value(row, col int) (any, error) {
	if t.state != Sealed {
		return nil, table.ErrNotSealed
	}
	if err := table.CheckIndex(row, col, t.RowCount(), t.ColumnCount()); err != nil {
		return nil, err
	}

	if row < t.spilled {
		if t.segment == nil {
			return nil, io.ErrStoreClosed
		}
		return t.segment.Value(row, col)
	}

	return t.memory[row-t.spilled][col], nil
}

// Reopen returns a read-only view for another reader goroutine. The view
// shares the memory tier and gets its own handle on the backing file.
func (t *Swappable) Reopen() (*Swappable, error) {
	if t.state != Sealed {
		return nil, table.ErrNotSealed
	}

	view := *t
	view.owner = false

	if t.segment != nil {
		segment, err := t.segment.Reopen()
		if err != nil {
			return nil, err
		}
		view.segment = segment
	}

	return &view, nil
}

// Close releases the backing store. The owning table also deletes the spill
// file, views only close their handle.
func (t *Swappable) Close() error {
	path := t.BackingPath()

	var closeErr error
	switch {
	case t.segment != nil:
		closeErr = t.segment.Close()
	case t.store != nil:
		closeErr = t.store.Close()
	}

	if closeErr != nil {
		return fmt.Errorf("unable to close backing store %s: %w", path, closeErr)
	}

	if t.owner && path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("unable to remove spill file %s: %w", path, err)
		}
	}

	t.segment = nil
	t.store = nil
	t.writer = nil

	return nil
}
