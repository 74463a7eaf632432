// Package paged stores rows in fixed size pages. Builder keeps the pages in
// memory, SegmentWriter and Segment keep them in a single file.
package paged

import (
	"fmt"

	"github.com/dot5enko/mvstore/schema"
	"github.com/dot5enko/mvstore/table"
)

const DefaultPageRows = 1024

// Builder is an append only row sink. After Complete it becomes an immutable
// table that is safe for concurrent reads.
type Builder struct {
	schema   schema.Schema
	columns  int
	pageRows int

	pages  [][][]any
	rows   int
	sealed bool
}

func NewBuilder(pageRows int) *Builder {
	if pageRows <= 0 {
		pageRows = DefaultPageRows
	}
	return &Builder{pageRows: pageRows}
}

// NewBuilderForSchema fixes the column count and checks appended values
// against column types.
func NewBuilderForSchema(s schema.Schema, pageRows int) (*Builder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b := NewBuilder(pageRows)
	b.schema = s.Clone()
	b.columns = len(s.Columns)

	return b, nil
}

func (b *Builder) SetColumnCount(n int) error {
	if b.sealed {
		return table.ErrSealed
	}
	if b.rows > 0 {
		return table.ErrColumnCountFixed
	}
	if n <= 0 {
		return fmt.Errorf("invalid column count %d", n)
	}
	if len(b.schema.Columns) > 0 && len(b.schema.Columns) != n {
		return fmt.Errorf("column count %d doesn't match schema `%s` with %d columns", n, b.schema.Name, len(b.schema.Columns))
	}

	b.columns = n
	return nil
}

func (b *Builder) AppendRow(values []any) error {
	if b.sealed {
		return table.ErrSealed
	}
	if b.columns == 0 {
		return table.ErrColumnCountUnset
	}
	if len(values) != b.columns {
		return table.ArityMismatch(len(values), b.columns)
	}
	if len(b.schema.Columns) > 0 {
		if err := b.schema.CheckRow(values); err != nil {
			return err
		}
	}

	slot := b.rows % b.pageRows
	if slot == 0 {
		b.pages = append(b.pages, make([][]any, 0, b.pageRows))
	}

	row := schema.CopyRow(values)

	last := len(b.pages) - 1
	b.pages[last] = append(b.pages[last], row)
	b.rows++

	return nil
}

// Complete seals the builder. Calling it again is a no-op.
func (b *Builder) Complete() error {
	if b.sealed {
		return nil
	}
	if b.columns == 0 {
		return table.ErrColumnCountUnset
	}

	b.sealed = true
	return nil
}

func (b *Builder) Sealed() bool {
	return b.sealed
}

func (b *Builder) RowCount() int {
	return b.rows
}

func (b *Builder) ColumnCount() int {
	return b.columns
}

func (b *Builder) PageRows() int {
	return b.pageRows
}

func (b *Builder) PageCount() int {
	return len(b.pages)
}

// Schema returns the schema given on construction, or generated column names
// with unknown types for builders created with NewBuilder.
func (b *Builder) Schema() schema.Schema {
	if len(b.schema.Columns) > 0 {
		return b.schema.Clone()
	}

	generated := schema.Schema{Columns: make([]schema.SchemaColumn, b.columns)}
	for i := range generated.Columns {
		generated.Columns[i].Name = fmt.Sprintf("col_%d", i)
	}
	return generated
}

func (b *Builder) Row(i int) ([]any, error) {
	if !b.sealed {
		return nil, table.ErrNotSealed
	}
	if i < 0 || i >= b.rows {
		return nil, table.RowOutOfRange(i, b.rows)
	}

	stored := b.pages[i/b.pageRows][i%b.pageRows]

	row := make([]any, len(stored))
	copy(row, stored)

	return row, nil
}

func (b *Builder) Value(row, col int) (any, error) {
	if !b.sealed {
		return nil, table.ErrNotSealed
	}
	if err := table.CheckIndex(row, col, b.rows, b.columns); err != nil {
		return nil, err
	}

	return b.pages[row/b.pageRows][row%b.pageRows][col], nil
}
