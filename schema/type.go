package schema

import (
	"fmt"
	"time"
)

type FieldType uint8

const (
	Int64FieldType FieldType = iota + 1
	Float64FieldType
	StringFieldType
	BoolFieldType
	TimestampFieldType
)

func (f FieldType) String() string {
	switch f {
	case Int64FieldType:
		return "Int64"
	case Float64FieldType:
		return "Float64"
	case StringFieldType:
		return "String"
	case BoolFieldType:
		return "Bool"
	case TimestampFieldType:
		return "Timestamp"
	default:
		return ""
	}
}

func (f FieldType) Valid() bool {
	return f >= Int64FieldType && f <= TimestampFieldType
}

// Size is the encoded size of a single value, 0 for variable length types.
func (f FieldType) Size() int {
	switch f {
	case BoolFieldType:
		return 1
	case Int64FieldType, Float64FieldType:
		return 8
	case TimestampFieldType:
		// unix seconds + nanoseconds
		return 12
	case StringFieldType:
		return 0
	default:
		panic("unknown field type " + f.String())
	}
}

func (f FieldType) IsNumeric() bool {
	return f == Int64FieldType || f == Float64FieldType
}

func ParseFieldType(name string) (FieldType, error) {
	for ft := Int64FieldType; ft <= TimestampFieldType; ft++ {
		if ft.String() == name {
			return ft, nil
		}
	}
	return 0, fmt.Errorf("unknown field type `%s`", name)
}

func (f FieldType) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid field type %d", uint8(f))
	}
	return []byte(f.String()), nil
}

func (f *FieldType) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldType(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// CheckValue reports whether v can be stored in a column of type f.
// nil is accepted by every type and means a missing value.
func (f FieldType) CheckValue(v any) error {
	if v == nil {
		return nil
	}

	ok := false
	switch f {
	case Int64FieldType:
		_, ok = v.(int64)
	case Float64FieldType:
		_, ok = v.(float64)
	case StringFieldType:
		_, ok = v.(string)
	case BoolFieldType:
		_, ok = v.(bool)
	case TimestampFieldType:
		_, ok = v.(time.Time)
	}

	if !ok {
		return fmt.Errorf("value of type %T can't be stored as %s", v, f.String())
	}
	return nil
}

// EstimateValueSize is a rough in-memory footprint of a single value.
func EstimateValueSize(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 1
	case bool:
		return 1
	case int64, float64, int, float32, int32:
		return 8
	case time.Time:
		return 24
	case string:
		return int64(len(t)) + 16
	default:
		return 16
	}
}

func EstimateRowSize(values []any) int64 {
	// slice header
	size := int64(24)
	for _, v := range values {
		// interface header
		size += 16 + EstimateValueSize(v)
	}
	return size
}
