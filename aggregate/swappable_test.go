package aggregate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/schema"
	"github.com/dot5enko/mvstore/table"
)

var groupBySchema = schema.New("group_by",
	schema.Column("key", schema.StringFieldType),
	schema.Column("count", schema.Int64FieldType),
	schema.Column("sum", schema.Float64FieldType),
)

func groupRow(i int) []any {
	return []any{fmt.Sprintf("key-%05d", i), int64(i), float64(i) / 4}
}

// countingFactory records how many backing stores were opened.
type countingFactory struct {
	dir    string
	opened int
}

func (f *countingFactory) open() (*io.RegionStore, error) {
	f.opened++
	return TempStoreFactory(f.dir)()
}

func spillFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.spill"))
	require.NoError(t, err)
	return matches
}

func newTable(t *testing.T, threshold Threshold, factory StoreFactory) *Swappable {
	t.Helper()

	tbl, err := New(groupBySchema, Options{
		Threshold:    threshold,
		PageRows:     128,
		StoreFactory: factory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })

	return tbl
}

func TestScenarioTenThousandRows(t *testing.T) {
	factory := &countingFactory{dir: t.TempDir()}
	tbl := newTable(t, Threshold{Rows: 1000}, factory.open)

	for i := 0; i < 10_000; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}
	require.NoError(t, tbl.Complete())

	assert.Equal(t, 1, factory.opened, "exactly one backing store")
	assert.Len(t, spillFiles(t, factory.dir), 1)
	assert.Equal(t, 10_000, tbl.RowCount())
	assert.Equal(t, 9, tbl.Spills())
	assert.Equal(t, 9000, tbl.SpilledRows())
	assert.Equal(t, 1000, tbl.MemoryRows())
	assert.Equal(t, Sealed, tbl.State())

	last, err := tbl.Row(9999)
	require.NoError(t, err)
	assert.Equal(t, groupRow(9999), last)
}

func TestUniformReadAcrossTiers(t *testing.T) {
	cases := []struct {
		name       string
		rows       int
		threshold  Threshold
		wantSpills int
	}{
		{"no spill", 50, Threshold{Rows: 100}, 0},
		{"exactly at threshold", 100, Threshold{Rows: 100}, 0},
		{"one spill", 150, Threshold{Rows: 100}, 1},
		{"many spills", 1000, Threshold{Rows: 7}, 142},
		{"threshold of one row", 20, Threshold{Rows: 1}, 19},
		{"byte threshold", 500, Threshold{Bytes: 4096}, -1},
		{"unlimited", 300, Threshold{}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tbl := newTable(t, tc.threshold, TempStoreFactory(t.TempDir()))

			for i := 0; i < tc.rows; i++ {
				require.NoError(t, tbl.AppendRow(groupRow(i)))
			}
			require.NoError(t, tbl.Complete())

			if tc.wantSpills >= 0 {
				assert.Equal(t, tc.wantSpills, tbl.Spills())
			} else {
				assert.Greater(t, tbl.Spills(), 0)
			}

			require.Equal(t, tc.rows, tbl.RowCount())
			for i := 0; i < tc.rows; i++ {
				row, err := tbl.Row(i)
				require.NoError(t, err)
				require.Equal(t, groupRow(i), row, "row %d", i)
			}
		})
	}
}

func TestLazyAllocation(t *testing.T) {
	dir := t.TempDir()
	factory := &countingFactory{dir: dir}
	tbl := newTable(t, Threshold{Rows: 1000}, factory.open)

	for i := 0; i < 1000; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}
	require.NoError(t, tbl.Complete())

	assert.Zero(t, factory.opened)
	assert.False(t, tbl.HasBackingStore())
	assert.Empty(t, spillFiles(t, dir))
	assert.Empty(t, tbl.BackingPath())
}

func TestSealImmutability(t *testing.T) {
	tbl := newTable(t, Threshold{Rows: 10}, TempStoreFactory(t.TempDir()))

	for i := 0; i < 35; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}

	_, err := tbl.Row(0)
	assert.ErrorIs(t, err, table.ErrNotSealed)

	require.NoError(t, tbl.Complete())
	require.NoError(t, tbl.Complete())

	first, err := tbl.Row(3)
	require.NoError(t, err)

	// callers own the returned slice
	first[0] = "mutated"

	for range 3 {
		again, err := tbl.Row(3)
		require.NoError(t, err)
		assert.Equal(t, groupRow(3), again)
	}

	assert.ErrorIs(t, tbl.AppendRow(groupRow(99)), table.ErrSealed)
	assert.Equal(t, 35, tbl.RowCount())
}

func TestAppendContract(t *testing.T) {
	tbl := newTable(t, Threshold{Rows: 10}, TempStoreFactory(t.TempDir()))

	assert.ErrorIs(t, tbl.AppendRow([]any{"a"}), table.ErrArityMismatch)
	assert.Error(t, tbl.AppendRow([]any{"a", "not a number", 1.0}))
	assert.Zero(t, tbl.RowCount())

	require.NoError(t, tbl.AppendRow([]any{nil, nil, nil}))
	require.NoError(t, tbl.Complete())

	v, err := tbl.Value(0, 1)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = tbl.Value(1, 0)
	assert.ErrorIs(t, err, table.ErrRowOutOfRange)
	_, err = tbl.Value(0, 3)
	assert.ErrorIs(t, err, table.ErrColumnOutOfRange)
}

func TestSpillFailureKeepsAcceptedRows(t *testing.T) {
	diskFull := errors.New("no space left on device")

	tbl := newTable(t, Threshold{Rows: 5}, func() (*io.RegionStore, error) {
		return nil, diskFull
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}

	err := tbl.AppendRow(groupRow(5))
	require.ErrorIs(t, err, ErrSpillFailed)
	assert.ErrorIs(t, err, diskFull)

	assert.Equal(t, 5, tbl.RowCount())
	assert.Equal(t, Building, tbl.State())
	assert.False(t, tbl.HasBackingStore())

	require.NoError(t, tbl.Complete())
	for i := 0; i < 5; i++ {
		row, err := tbl.Row(i)
		require.NoError(t, err)
		assert.Equal(t, groupRow(i), row)
	}
}

func TestSpillFailureOnReadOnlyStore(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "readonly.spill")
	require.NoError(t, os.WriteFile(existing, nil, 0o644))

	tbl := newTable(t, Threshold{Rows: 2}, func() (*io.RegionStore, error) {
		return io.Open(existing)
	})

	require.NoError(t, tbl.AppendRow(groupRow(0)))
	require.NoError(t, tbl.AppendRow(groupRow(1)))

	err := tbl.AppendRow(groupRow(2))
	assert.ErrorIs(t, err, ErrSpillFailed)
	assert.ErrorIs(t, err, io.ErrReadOnly)
	assert.Equal(t, 2, tbl.RowCount())

	_, statErr := os.Stat(existing)
	assert.NoError(t, statErr, "a store the table could not use is left alone")
}

func TestRecoversAfterTransientSpillFailure(t *testing.T) {
	dir := t.TempDir()
	failures := 1

	tbl := newTable(t, Threshold{Rows: 3}, func() (*io.RegionStore, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("permission denied")
		}
		return TempStoreFactory(dir)()
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}
	require.ErrorIs(t, tbl.AppendRow(groupRow(3)), ErrSpillFailed)

	// the caller retries the same row
	for i := 3; i < 10; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}
	require.NoError(t, tbl.Complete())

	require.Equal(t, 10, tbl.RowCount())
	for i := 0; i < 10; i++ {
		row, err := tbl.Row(i)
		require.NoError(t, err)
		assert.Equal(t, groupRow(i), row)
	}
}

func TestConcurrentReaders(t *testing.T) {
	tbl := newTable(t, Threshold{Rows: 64}, TempStoreFactory(t.TempDir()))

	const rows = 1000
	for i := 0; i < rows; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}
	require.NoError(t, tbl.Complete())

	var group errgroup.Group
	for g := 0; g < 4; g++ {
		view, err := tbl.Reopen()
		require.NoError(t, err)

		group.Go(func() error {
			defer view.Close()

			for i := rows - 1 - g; i >= 0; i -= 3 {
				row, err := view.Row(i)
				if err != nil {
					return err
				}
				if row[1] != int64(i) {
					return fmt.Errorf("row %d holds %v", i, row[1])
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	// views never delete the owner's file
	_, err := os.Stat(tbl.BackingPath())
	assert.NoError(t, err)
}

func TestCloseRemovesSpillFile(t *testing.T) {
	dir := t.TempDir()

	tbl, err := New(groupBySchema, Options{Threshold: Threshold{Rows: 2}, StoreFactory: TempStoreFactory(dir)})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.AppendRow(groupRow(i)))
	}
	require.NoError(t, tbl.Complete())
	require.Len(t, spillFiles(t, dir), 1)

	require.NoError(t, tbl.Close())
	assert.Empty(t, spillFiles(t, dir))

	_, err = tbl.Row(0)
	assert.ErrorIs(t, err, io.ErrStoreClosed)
}

func TestTimestampsSurviveSpill(t *testing.T) {
	s := schema.New("events",
		schema.Column("at", schema.TimestampFieldType),
		schema.Column("ok", schema.BoolFieldType),
	)

	tbl, err := New(s, Options{Threshold: Threshold{Rows: 4}, StoreFactory: TempStoreFactory(t.TempDir())})
	require.NoError(t, err)
	defer tbl.Close()

	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, tbl.AppendRow([]any{base.Add(time.Duration(i) * time.Hour), i%2 == 0}))
	}
	require.NoError(t, tbl.Complete())

	v, err := tbl.Value(2, 0)
	require.NoError(t, err)
	assert.True(t, base.Add(2*time.Hour).Equal(v.(time.Time)))
}

func TestTimestampZoneMatchesAcrossTiers(t *testing.T) {
	s := schema.New("events", schema.Column("at", schema.TimestampFieldType))

	tbl, err := New(s, Options{Threshold: Threshold{Rows: 2}, StoreFactory: TempStoreFactory(t.TempDir())})
	require.NoError(t, err)
	defer tbl.Close()

	plus5 := time.FixedZone("UTC+5", 5*3600)
	for i := 0; i < 3; i++ {
		require.NoError(t, tbl.AppendRow([]any{time.Date(2025, time.January, 1, 23, 0, i, 0, plus5)}))
	}
	require.NoError(t, tbl.Complete())
	require.Equal(t, 2, tbl.SpilledRows())
	require.Equal(t, 1, tbl.MemoryRows())

	onDisk, err := tbl.Value(1, 0)
	require.NoError(t, err)
	inMemory, err := tbl.Value(2, 0)
	require.NoError(t, err)

	diskTs, memTs := onDisk.(time.Time), inMemory.(time.Time)
	assert.Equal(t, diskTs.Location(), memTs.Location())
	assert.Equal(t, diskTs.Hour(), memTs.Hour())
	assert.Equal(t, time.Second, memTs.Sub(diskTs))
	assert.Equal(t, time.Date(2025, time.January, 1, 18, 0, 2, 0, time.UTC), memTs)
}

func TestThresholdString(t *testing.T) {
	assert.Equal(t, "unlimited", Threshold{}.String())
	assert.Equal(t, "10 rows", Threshold{Rows: 10}.String())
	assert.Equal(t, "10 rows / 20 bytes", Threshold{Rows: 10, Bytes: 20}.String())
	assert.False(t, Threshold{}.Enabled())
}
