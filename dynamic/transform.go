package dynamic

import (
	"errors"
	"fmt"

	"github.com/dot5enko/mvstore/schema"
)

var (
	ErrInvalidSubstitution = errors.New("invalid column substitution")
	ErrIncompatibleSource  = errors.New("transform can't read source column type")
	ErrInvalidTransform    = errors.New("invalid transform parameters")
	ErrUnsupportedValue    = errors.New("unsupported source value")
)

// Transform computes a column from the value of another one. Apply must map
// nil to nil.
type Transform interface {
	Name() string
	ResultType() schema.FieldType
	Accepts(source schema.FieldType) bool
	Apply(v any) (any, error)
}

func unsupportedValue(t Transform, v any) error {
	return fmt.Errorf("%w: %s got %T", ErrUnsupportedValue, t.Name(), v)
}
