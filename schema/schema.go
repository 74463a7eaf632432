package schema

import (
	"fmt"
	"time"
)

type Schema struct {
	Name    string         `json:"name"`
	Columns []SchemaColumn `json:"columns"`
}

func New(name string, columns ...SchemaColumn) Schema {
	return Schema{Name: name, Columns: columns}
}

func (s Schema) ColumnCount() int {
	return len(s.Columns)
}

func (s Schema) ColumnIndex(name string) int {
	for idx, it := range s.Columns {
		if it.Name == name {
			return idx
		}
	}
	return -1
}

func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema `%s` has no columns", s.Name)
	}

	seen := make(map[string]struct{}, len(s.Columns))
	for idx, col := range s.Columns {
		if !col.Type.Valid() {
			return fmt.Errorf("column #%d `%s` has invalid type %d", idx, col.Name, col.Type)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("column `%s` declared twice", col.Name)
		}
		seen[col.Name] = struct{}{}
	}

	return nil
}

// CheckRow validates the values of a row against column types.
func (s Schema) CheckRow(values []any) error {
	for idx, v := range values {
		if idx >= len(s.Columns) {
			break
		}
		if err := s.Columns[idx].Type.CheckValue(v); err != nil {
			return fmt.Errorf("column `%s`: %w", s.Columns[idx].Name, err)
		}
	}
	return nil
}

// Clone returns a copy that doesn't share the columns slice.
func (s Schema) Clone() Schema {
	cols := make([]SchemaColumn, len(s.Columns))
	copy(cols, s.Columns)
	return Schema{Name: s.Name, Columns: cols}
}

// CopyRow copies values for storage. Timestamps are converted to UTC, the
// zone they are decoded in from a segment page.
func CopyRow(values []any) []any {
	row := make([]any, len(values))
	for idx, v := range values {
		if ts, ok := v.(time.Time); ok {
			v = ts.UTC()
		}
		row[idx] = v
	}
	return row
}
