// Package table defines the random access table contract shared by the
// in-memory paged tables, on-disk segments, aggregate tables and dynamic
// column views.
package table

import (
	"errors"
	"fmt"

	"github.com/dot5enko/mvstore/schema"
)

var (
	ErrArityMismatch    = errors.New("row arity doesn't match column count")
	ErrColumnCountUnset = errors.New("column count is not set")
	ErrColumnCountFixed = errors.New("column count can't change after rows were appended")
	ErrSealed           = errors.New("table is sealed")
	ErrNotSealed        = errors.New("table is not sealed yet")
	ErrRowOutOfRange    = errors.New("row index out of range")
	ErrColumnOutOfRange = errors.New("column index out of range")
)

// Table is a sealed, randomly indexable sequence of rows. Returned rows are
// copies, callers may modify them.
type Table interface {
	Schema() schema.Schema
	RowCount() int
	ColumnCount() int
	Row(i int) ([]any, error)
	Value(row, col int) (any, error)
}

func RowOutOfRange(i, rows int) error {
	return fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, i, rows)
}

func ColumnOutOfRange(col, columns int) error {
	return fmt.Errorf("%w: %d not in [0, %d)", ErrColumnOutOfRange, col, columns)
}

func ArityMismatch(got, want int) error {
	return fmt.Errorf("%w: got %d values, expected %d", ErrArityMismatch, got, want)
}

// CheckIndex validates a (row, col) pair against table dimensions.
func CheckIndex(row, col, rows, columns int) error {
	if row < 0 || row >= rows {
		return RowOutOfRange(row, rows)
	}
	if col < 0 || col >= columns {
		return ColumnOutOfRange(col, columns)
	}
	return nil
}

// Scan walks rows sequentially until fn returns an error.
func Scan(t Table, fn func(i int, row []any) error) error {
	rows := t.RowCount()
	for i := 0; i < rows; i++ {
		row, err := t.Row(i)
		if err != nil {
			return err
		}
		if err := fn(i, row); err != nil {
			return err
		}
	}
	return nil
}
