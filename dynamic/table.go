// Package dynamic wraps a table and computes some of its columns on read.
package dynamic

import (
	"fmt"

	"github.com/dot5enko/mvstore/schema"
	"github.com/dot5enko/mvstore/table"
)

// Substitution replaces output column Column with Transform applied to base
// column Source.
type Substitution struct {
	Column    int
	Source    int
	Transform Transform

	// column name in the reported schema, defaults to name(source)
	Alias string
}

// Table is a read-only view over a borrowed base table. The base is never
// written to or copied.
type Table struct {
	base table.Table
	subs []Substitution

	// output column -> substitution index, -1 when not substituted
	byColumn []int

	schema schema.Schema
}

func New(base table.Table, subs []Substitution) (*Table, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: nil base table", ErrInvalidSubstitution)
	}

	baseSchema := base.Schema()
	columns := base.ColumnCount()

	byColumn := make([]int, columns)
	for i := range byColumn {
		byColumn[i] = -1
	}

	result := &Table{
		base:     base,
		subs:     make([]Substitution, len(subs)),
		byColumn: byColumn,
	}

	out := baseSchema.Clone()

	for idx, sub := range subs {
		if sub.Column < 0 || sub.Column >= columns {
			return nil, fmt.Errorf("%w: column %d out of range [0, %d)", ErrInvalidSubstitution, sub.Column, columns)
		}
		if sub.Source < 0 || sub.Source >= columns {
			return nil, fmt.Errorf("%w: source column %d out of range [0, %d)", ErrInvalidSubstitution, sub.Source, columns)
		}
		if sub.Transform == nil {
			return nil, fmt.Errorf("%w: column %d has no transform", ErrInvalidSubstitution, sub.Column)
		}
		if byColumn[sub.Column] >= 0 {
			return nil, fmt.Errorf("%w: column %d substituted twice", ErrInvalidSubstitution, sub.Column)
		}

		if v, ok := sub.Transform.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}

		source := baseSchema.Columns[sub.Source]
		if !sub.Transform.Accepts(source.Type) {
			return nil, fmt.Errorf("%w: %s over %s column %s", ErrIncompatibleSource, sub.Transform.Name(), source.Type, source.Name)
		}

		if sub.Alias == "" {
			sub.Alias = fmt.Sprintf("%s(%s)", sub.Transform.Name(), source.Name)
		}

		out.Columns[sub.Column] = schema.Column(sub.Alias, sub.Transform.ResultType())

		byColumn[sub.Column] = idx
		result.subs[idx] = sub
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubstitution, err)
	}

	result.schema = out

	return result, nil
}

func (t *Table) Base() table.Table {
	return t.base
}

func (t *Table) Substitutions() []Substitution {
	out := make([]Substitution, len(t.subs))
	copy(out, t.subs)
	return out
}

// Schema reports substituted columns with their alias and result type.
func (t *Table) Schema() schema.Schema {
	return t.schema.Clone()
}

func (t *Table) RowCount() int {
	return t.base.RowCount()
}

func (t *Table) ColumnCount() int {
	return t.base.ColumnCount()
}

func (t *Table) Value(row, col int) (any, error) {
	if err := table.CheckIndex(row, col, t.RowCount(), t.ColumnCount()); err != nil {
		return nil, err
	}

	subIdx := t.byColumn[col]
	if subIdx < 0 {
		return t.base.Value(row, col)
	}

	sub := t.subs[subIdx]

	v, err := t.base.Value(row, sub.Source)
	if err != nil {
		return nil, err
	}

	return t.apply(sub, row, v)
}

func (t *Table) Row(i int) ([]any, error) {
	baseRow, err := t.base.Row(i)
	if err != nil {
		return nil, err
	}

	out := make([]any, len(baseRow))
	copy(out, baseRow)

	// sources are read from the base row, a source may itself be substituted
	for _, sub := range t.subs {
		v, applyErr := t.apply(sub, i, baseRow[sub.Source])
		if applyErr != nil {
			return nil, applyErr
		}
		out[sub.Column] = v
	}

	return out, nil
}

func (t *Table) apply(sub Substitution, row int, v any) (any, error) {
	result, err := sub.Transform.Apply(v)
	if err != nil {
		return nil, fmt.Errorf("row %d column %d: %w", row, sub.Column, err)
	}
	return result, nil
}
