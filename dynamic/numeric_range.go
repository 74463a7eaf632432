package dynamic

import (
	"fmt"
	"math"

	"github.com/dot5enko/mvstore/schema"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// NumericRange puts a value into the bucket floor((v-origin)/width). The
// result is the bucket lower bound, or the bucket ordinal when Ordinal is set.
type NumericRange struct {
	Width   float64
	Origin  float64
	Ordinal bool
}

func (r NumericRange) Validate() error {
	if !(r.Width > 0) || math.IsInf(r.Width, 0) {
		return fmt.Errorf("%w: bucket width must be positive and finite, got %v", ErrInvalidTransform, r.Width)
	}
	if math.IsNaN(r.Origin) || math.IsInf(r.Origin, 0) {
		return fmt.Errorf("%w: bucket origin must be finite, got %v", ErrInvalidTransform, r.Origin)
	}
	return nil
}

func (r NumericRange) Name() string {
	if r.Ordinal {
		return "bucket"
	}
	return "range"
}

func (r NumericRange) ResultType() schema.FieldType {
	if r.Ordinal {
		return schema.Int64FieldType
	}
	return schema.Float64FieldType
}

func (r NumericRange) Accepts(source schema.FieldType) bool {
	return source.IsNumeric()
}

func (r NumericRange) Apply(v any) (any, error) {
	var ordinal float64
	var ok bool

	switch typed := v.(type) {
	case nil:
		return nil, nil
	case int64:
		ordinal, ok = bucketOf(typed, r.Width, r.Origin)
	case float64:
		ordinal, ok = bucketOf(typed, r.Width, r.Origin)
	case int:
		ordinal, ok = bucketOf(typed, r.Width, r.Origin)
	case int32:
		ordinal, ok = bucketOf(typed, r.Width, r.Origin)
	case uint64:
		ordinal, ok = bucketOf(typed, r.Width, r.Origin)
	case uint32:
		ordinal, ok = bucketOf(typed, r.Width, r.Origin)
	case float32:
		ordinal, ok = bucketOf(typed, r.Width, r.Origin)
	default:
		return nil, unsupportedValue(r, v)
	}

	if !ok {
		return nil, nil
	}

	if r.Ordinal {
		// out of int64 range, no ordinal to report
		if ordinal >= math.MaxInt64 || ordinal < math.MinInt64 {
			return nil, nil
		}
		return int64(ordinal), nil
	}

	lower := ordinal*r.Width + r.Origin
	if math.IsInf(lower, 0) {
		return nil, nil
	}

	return lower, nil
}

// bucketOf returns the floored bucket ordinal, false for non-finite input.
func bucketOf[T Number](v T, width, origin float64) (float64, bool) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	ordinal := math.Floor((f - origin) / width)
	if math.IsNaN(ordinal) || math.IsInf(ordinal, 0) {
		return 0, false
	}

	return ordinal, true
}
