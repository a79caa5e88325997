// Package shape models partially known tensor shapes used by ONNX shape inference.
//
//   - Dimension: the length of one axis, either a known value, a named symbolic parameter or unknown.
//   - Shape: an ordered list of dimensions, or "unranked" when not even the number of axes is known.
//   - Merge / MergeDimension: reconcile two descriptions of the same axis.
//   - Broadcast: numpy-style multidirectional broadcasting of any number of shapes.
package shape

import (
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrMismatch is returned (wrapped) when two known dimensions or ranks conflict.
	ErrMismatch = errors.New("shape mismatch")

	// ErrBroadcast is returned (wrapped) when shapes cannot be broadcast together.
	ErrBroadcast = errors.New("incompatible broadcast")
)

// DimKind tells which of the Dimension variants is set.
type DimKind uint8

const (
	// Unknown dimension: nothing is known about the axis length. It is the zero value.
	Unknown DimKind = iota

	// Value dimension: the axis length is a known non-negative integer.
	Value

	// Param dimension: the axis length is a named symbolic parameter (e.g. "batch").
	Param
)

// Dimension describes the length of one axis.
//
// The zero value is an Unknown dimension.
type Dimension struct {
	kind  DimKind
	value int64
	param string
}

// Dim returns a known dimension. It panics (with an error) if value is negative.
func Dim(value int64) Dimension {
	if value < 0 {
		panic(errors.Errorf("shape.Dim(%d): dimension values must be non-negative", value))
	}
	return Dimension{kind: Value, value: value}
}

// Sym returns a symbolic dimension named param. An empty name yields an Unknown dimension.
func Sym(param string) Dimension {
	if param == "" {
		return Dimension{}
	}
	return Dimension{kind: Param, param: param}
}

// UnknownDim returns a dimension about which nothing is known.
func UnknownDim() Dimension {
	return Dimension{}
}

// Kind returns which variant the dimension holds.
func (d Dimension) Kind() DimKind { return d.kind }

// IsKnown returns whether the dimension has a known value.
func (d Dimension) IsKnown() bool { return d.kind == Value }

// IsParam returns whether the dimension is a symbolic parameter.
func (d Dimension) IsParam() bool { return d.kind == Param }

// IsUnknown returns whether nothing is known about the dimension.
func (d Dimension) IsUnknown() bool { return d.kind == Unknown }

// Value returns the known value, and whether it is known.
func (d Dimension) Value() (int64, bool) {
	return d.value, d.kind == Value
}

// Param returns the name of the symbolic parameter, or "" if the dimension is not a Param.
func (d Dimension) Param() string { return d.param }

// Is returns whether the dimension is known and equal to value.
func (d Dimension) Is(value int64) bool {
	return d.kind == Value && d.value == value
}

// Equal returns whether both dimensions hold the same variant and contents.
func (d Dimension) Equal(other Dimension) bool {
	return d == other
}

// Mul multiplies a dimension by a known factor.
// A Param survives only a multiplication by 1, otherwise it becomes Unknown.
func (d Dimension) Mul(factor int64) Dimension {
	switch {
	case d.kind == Value:
		return Dim(d.value * factor)
	case factor == 1:
		return d
	default:
		return Dimension{}
	}
}

// Div divides a dimension by a known positive divisor, truncating.
// A Param survives only a division by 1, otherwise it becomes Unknown.
func (d Dimension) Div(divisor int64) Dimension {
	switch {
	case d.kind == Value:
		return Dim(d.value / divisor)
	case divisor == 1:
		return d
	default:
		return Dimension{}
	}
}

// String implements fmt.Stringer: values are printed as numbers, parameters by name and unknowns as "?".
func (d Dimension) String() string {
	switch d.kind {
	case Value:
		return strconv.FormatInt(d.value, 10)
	case Param:
		return d.param
	default:
		return "?"
	}
}

// Merge reconciles two descriptions of the same axis.
//
// Rules, symmetric in a and b:
//
//   - Unknown and x yields x.
//   - Equal values or equal parameters are kept.
//   - A value wins over a parameter.
//   - Different parameters widen to Unknown: it is not an error.
//   - Different values fail with ErrMismatch.
func Merge(a, b Dimension) (Dimension, error) {
	switch {
	case a.kind == Unknown:
		return b, nil
	case b.kind == Unknown:
		return a, nil
	case a.kind == Value && b.kind == Value:
		if a.value != b.value {
			return Dimension{}, errors.Wrapf(ErrMismatch, "dimension values %d and %d differ", a.value, b.value)
		}
		return a, nil
	case a.kind == Value:
		return a, nil
	case b.kind == Value:
		return b, nil
	case a.param == b.param:
		return a, nil
	default:
		return Dimension{}, nil
	}
}

// MergeDimension merges the dimension in into the output slot, using the Merge rules.
// An unset (Unknown) slot simply takes the input.
func MergeDimension(in Dimension, slot *Dimension) error {
	merged, err := Merge(in, *slot)
	if err != nil {
		return err
	}
	*slot = merged
	return nil
}
