package paged

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dot5enko/mvstore/compression"
	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/schema"
	"github.com/dot5enko/mvstore/table"
)

var testSchema = schema.New("orders",
	schema.Column("id", schema.Int64FieldType),
	schema.Column("amount", schema.Float64FieldType),
	schema.Column("region", schema.StringFieldType),
	schema.Column("paid", schema.BoolFieldType),
	schema.Column("created_at", schema.TimestampFieldType),
)

var baseTime = time.Date(2024, time.March, 10, 12, 30, 0, 123456789, time.UTC)

func testRow(i int) []any {
	row := []any{
		int64(i),
		float64(i) * 1.5,
		[]string{"eu", "us", "apac"}[i%3],
		i%2 == 0,
		baseTime.Add(time.Duration(i) * time.Minute),
	}

	// sprinkle some missing values
	if i%7 == 0 {
		row[2] = nil
	}
	if i%11 == 0 {
		row[4] = nil
	}

	return row
}

func writeTestSegment(t *testing.T, rows, pageRows int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "orders.seg")

	store, err := io.Create(path)
	require.NoError(t, err)

	w, err := NewSegmentWriter(store, testSchema, pageRows)
	require.NoError(t, err)

	for i := 0; i < rows; i++ {
		require.NoError(t, w.AppendRow(testRow(i)))
	}

	require.NoError(t, w.Complete())
	require.NoError(t, w.Complete())
	require.NoError(t, store.Close())

	return path
}

func TestSegmentRoundTrip(t *testing.T) {
	path := writeTestSegment(t, 1000, 64)

	segment, err := OpenSegmentFile(path, SegmentOptions{CachePages: 4})
	require.NoError(t, err)
	defer segment.Close()

	assert.Equal(t, 1000, segment.RowCount())
	assert.Equal(t, 5, segment.ColumnCount())
	assert.Equal(t, 16, segment.PageCount())
	assert.Equal(t, testSchema, segment.Schema())

	// random order to exercise the page cache
	for _, i := range []int{999, 0, 512, 63, 64, 1, 700, 999} {
		row, err := segment.Row(i)
		require.NoError(t, err)
		assert.Equal(t, testRow(i), row, "row %d", i)
	}

	v, err := segment.Value(77, 2)
	require.NoError(t, err)
	assert.Nil(t, v, "row 77 has a missing region")

	assert.Equal(t, 0, segment.Store().MappedRegions(), "every mapped page must be released")
}

func TestSegmentOutOfRange(t *testing.T) {
	path := writeTestSegment(t, 10, 4)

	segment, err := OpenSegmentFile(path, SegmentOptions{})
	require.NoError(t, err)
	defer segment.Close()

	_, err = segment.Row(10)
	assert.ErrorIs(t, err, table.ErrRowOutOfRange)

	_, err = segment.Value(0, 5)
	assert.ErrorIs(t, err, table.ErrColumnOutOfRange)
}

func TestSegmentEmpty(t *testing.T) {
	path := writeTestSegment(t, 0, 4)

	segment, err := OpenSegmentFile(path, SegmentOptions{})
	require.NoError(t, err)
	defer segment.Close()

	assert.Equal(t, 0, segment.RowCount())
	assert.Equal(t, 0, segment.PageCount())
}

func TestSegmentWriterContract(t *testing.T) {
	store, err := io.Create(filepath.Join(t.TempDir(), "c.seg"))
	require.NoError(t, err)
	defer store.Close()

	w, err := NewSegmentWriter(store, testSchema, 4)
	require.NoError(t, err)

	assert.ErrorIs(t, w.AppendRow([]any{int64(1)}), table.ErrArityMismatch)
	assert.Error(t, w.AppendRow([]any{"x", 1.0, "eu", true, baseTime}), "type mismatch")

	require.NoError(t, w.AppendRow(testRow(1)))
	require.NoError(t, w.Complete())

	assert.ErrorIs(t, w.AppendRow(testRow(2)), table.ErrSealed)
	assert.Equal(t, 1, w.RowCount())
}

func TestSegmentWriterRejectsReadOnlyStore(t *testing.T) {
	path := writeTestSegment(t, 1, 4)

	store, err := io.Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = NewSegmentWriter(store, testSchema, 4)
	assert.ErrorIs(t, err, io.ErrReadOnly)
}

func TestSegmentCheckpointRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rb.seg")
	store, err := io.Create(path)
	require.NoError(t, err)

	w, err := NewSegmentWriter(store, testSchema, 4)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, w.AppendRow(testRow(i)))
	}

	cp := w.Checkpoint()
	sizeBefore, err := store.Size()
	require.NoError(t, err)

	for i := 100; i < 110; i++ {
		require.NoError(t, w.AppendRow(testRow(i)))
	}
	assert.Equal(t, 16, w.RowCount())

	require.NoError(t, w.Rollback(cp))
	assert.Equal(t, 6, w.RowCount())
	assert.Equal(t, 1, w.PageCount())

	sizeAfter, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, sizeBefore, sizeAfter)

	for i := 6; i < 9; i++ {
		require.NoError(t, w.AppendRow(testRow(i)))
	}
	require.NoError(t, w.Complete())
	require.NoError(t, store.Close())

	segment, err := OpenSegmentFile(path, SegmentOptions{})
	require.NoError(t, err)
	defer segment.Close()

	require.Equal(t, 9, segment.RowCount())
	for i := 0; i < 9; i++ {
		row, err := segment.Row(i)
		require.NoError(t, err)
		assert.Equal(t, testRow(i), row)
	}
}

func TestSegmentIncompleteFileIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.seg")
	store, err := io.Create(path)
	require.NoError(t, err)

	w, err := NewSegmentWriter(store, testSchema, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.AppendRow(testRow(i)))
	}
	require.NoError(t, store.Close())

	_, err = OpenSegmentFile(path, SegmentOptions{})
	assert.ErrorIs(t, err, ErrCorruptSegment)
}

func TestSegmentGarbageFileIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.seg")
	require.NoError(t, os.WriteFile(path, make([]byte, 512), 0o644))

	_, err := OpenSegmentFile(path, SegmentOptions{})
	assert.ErrorIs(t, err, ErrCorruptSegment)
}

func TestSegmentCompressesRepetitivePages(t *testing.T) {
	s := schema.New("flat", schema.Column("v", schema.Int64FieldType))

	store, err := io.Create(filepath.Join(t.TempDir(), "flat.seg"))
	require.NoError(t, err)
	defer store.Close()

	w, err := NewSegmentWriter(store, s, 512)
	require.NoError(t, err)
	for i := 0; i < 1024; i++ {
		require.NoError(t, w.AppendRow([]any{int64(42)}))
	}
	require.NoError(t, w.Complete())

	info, err := Inspect(store)
	require.NoError(t, err)

	require.Len(t, info.Pages, 2)
	for _, p := range info.Pages {
		assert.Equal(t, compression.Lz4Compression, p.Codec)
		assert.Less(t, p.StoredSize, p.RawSize)
	}

	stored, raw := info.StoredBytes()
	assert.Less(t, stored, raw)
	assert.EqualValues(t, 1024, info.Rows)
}

func TestSegmentFloatSpecialValues(t *testing.T) {
	s := schema.New("f", schema.Column("v", schema.Float64FieldType))

	path := filepath.Join(t.TempDir(), "f.seg")
	store, err := io.Create(path)
	require.NoError(t, err)

	values := []float64{math.Inf(1), math.Inf(-1), -0.0, math.MaxFloat64}
	w, err := NewSegmentWriter(store, s, 2)
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, w.AppendRow([]any{v}))
	}
	require.NoError(t, w.Complete())
	require.NoError(t, store.Close())

	segment, err := OpenSegmentFile(path, SegmentOptions{})
	require.NoError(t, err)
	defer segment.Close()

	for i, want := range values {
		got, err := segment.Value(i, 0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSegmentConcurrentReopenedReaders(t *testing.T) {
	const rows = 2000
	path := writeTestSegment(t, rows, 100)

	segment, err := OpenSegmentFile(path, SegmentOptions{CachePages: 8})
	require.NoError(t, err)
	defer segment.Close()

	var group errgroup.Group

	for g := 0; g < 8; g++ {
		reader, err := segment.Reopen()
		require.NoError(t, err)

		group.Go(func() error {
			defer reader.Close()

			for i := g; i < rows; i += 7 {
				row, err := reader.Row(i)
				if err != nil {
					return err
				}
				if !assert.Equal(t, testRow(i), row) {
					return nil
				}
			}
			return nil
		})
	}

	require.NoError(t, group.Wait())
	assert.Greater(t, segment.CacheStats().Hits, 0)
}

func TestWriteSegmentFromBuilder(t *testing.T) {
	b, err := NewBuilderForSchema(testSchema, 3)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, b.AppendRow(testRow(i)))
	}
	require.NoError(t, b.Complete())

	path := filepath.Join(t.TempDir(), "copy.seg")
	store, err := io.Create(path)
	require.NoError(t, err)

	w, err := WriteSegment(store, b, 8)
	require.NoError(t, err)
	assert.Equal(t, 20, w.RowCount())
	assert.Equal(t, 3, w.PageCount())
	require.NoError(t, store.Close())

	segment, err := OpenSegmentFile(path, SegmentOptions{})
	require.NoError(t, err)
	defer segment.Close()

	for i := 0; i < 20; i++ {
		want, _ := b.Row(i)
		got, err := segment.Row(i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTimestampsReadBackInSameZone(t *testing.T) {
	s := schema.New("zoned", schema.Column("at", schema.TimestampFieldType))
	plus5 := time.FixedZone("UTC+5", 5*3600)

	b, err := NewBuilderForSchema(s, 4)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, b.AppendRow([]any{time.Date(2025, time.January, 1, 23, 0, i, 0, plus5)}))
	}
	require.NoError(t, b.Complete())

	path := filepath.Join(t.TempDir(), "zoned.seg")
	store, err := io.Create(path)
	require.NoError(t, err)
	_, err = WriteSegment(store, b, 4)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	segment, err := OpenSegmentFile(path, SegmentOptions{})
	require.NoError(t, err)
	defer segment.Close()

	for i := 0; i < 6; i++ {
		inMemory, err := b.Value(i, 0)
		require.NoError(t, err)
		onDisk, err := segment.Value(i, 0)
		require.NoError(t, err)

		assert.Equal(t, inMemory, onDisk)
		assert.Equal(t, 18, onDisk.(time.Time).Hour())
	}
}
