package table

import (
	"time"

	"golang.org/x/exp/constraints"

	"github.com/dot5enko/mvstore/schema"
)

type Bounds[T constraints.Ordered] struct {
	Min T
	Max T

	set bool
}

func (b *Bounds[T]) Add(v T) {
	if !b.set {
		b.Min, b.Max, b.set = v, v, true
		return
	}
	if v < b.Min {
		b.Min = v
	}
	if v > b.Max {
		b.Max = v
	}
}

// Morph widens b to cover other.
func (b *Bounds[T]) Morph(other Bounds[T]) {
	if !other.set {
		return
	}
	b.Add(other.Min)
	b.Add(other.Max)
}

func (b Bounds[T]) Empty() bool {
	return !b.set
}

func GetMaxMin[T constraints.Ordered](arr []T) Bounds[T] {
	var result Bounds[T]
	for _, v := range arr {
		result.Add(v)
	}
	return result
}

// ColumnStats summarizes one column. Min and Max are nil for bool columns and
// columns without values.
type ColumnStats struct {
	Column schema.SchemaColumn
	Values int
	Nulls  int
	Min    any
	Max    any
}

type statsCollector struct {
	ints    Bounds[int64]
	floats  Bounds[float64]
	strings Bounds[string]
	// timestamps as unix nanoseconds
	times Bounds[int64]

	trues int
}

// Stats scans t once and returns per-column value counts and bounds.
func Stats(t Table) ([]ColumnStats, error) {
	s := t.Schema()

	result := make([]ColumnStats, len(s.Columns))
	collectors := make([]statsCollector, len(s.Columns))

	for idx, col := range s.Columns {
		result[idx].Column = col
	}

	err := Scan(t, func(_ int, row []any) error {
		for idx, v := range row {
			if v == nil {
				result[idx].Nulls++
				continue
			}
			result[idx].Values++

			c := &collectors[idx]
			switch typed := v.(type) {
			case int64:
				c.ints.Add(typed)
			case float64:
				c.floats.Add(typed)
			case string:
				c.strings.Add(typed)
			case time.Time:
				c.times.Add(typed.UnixNano())
			case bool:
				if typed {
					c.trues++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for idx, col := range s.Columns {
		c := collectors[idx]

		switch col.Type {
		case schema.Int64FieldType:
			if !c.ints.Empty() {
				result[idx].Min, result[idx].Max = c.ints.Min, c.ints.Max
			}
		case schema.Float64FieldType:
			if !c.floats.Empty() {
				result[idx].Min, result[idx].Max = c.floats.Min, c.floats.Max
			}
		case schema.StringFieldType:
			if !c.strings.Empty() {
				result[idx].Min, result[idx].Max = c.strings.Min, c.strings.Max
			}
		case schema.TimestampFieldType:
			if !c.times.Empty() {
				result[idx].Min = time.Unix(0, c.times.Min).UTC()
				result[idx].Max = time.Unix(0, c.times.Max).UTC()
			}
		}
	}

	return result, nil
}
