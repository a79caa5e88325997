package shape

import (
	"strings"

	"github.com/pkg/errors"
)

// Shape is an ordered list of dimensions, or unranked if even the number of axes is unknown.
//
// The zero value is an unranked shape. Shapes have value semantics: the constructors copy their
// inputs and Dims returns a copy, so a Shape can be freely shared.
type Shape struct {
	ranked bool
	dims   []Dimension
}

// Unranked returns a shape whose rank is unknown.
func Unranked() Shape {
	return Shape{}
}

// Scalar returns the rank-0 shape.
func Scalar() Shape {
	return Shape{ranked: true}
}

// Make returns a ranked shape with the given dimensions.
func Make(dims ...Dimension) Shape {
	s := Shape{ranked: true}
	if len(dims) > 0 {
		s.dims = make([]Dimension, len(dims))
		copy(s.dims, dims)
	}
	return s
}

// OfRank returns a ranked shape with rank Unknown dimensions.
func OfRank(rank int) Shape {
	s := Shape{ranked: true}
	if rank > 0 {
		s.dims = make([]Dimension, rank)
	}
	return s
}

// FromValues returns a ranked shape with the given values.
// Negative values denote unknown dimensions.
func FromValues(values ...int64) Shape {
	s := OfRank(len(values))
	for axis, v := range values {
		if v >= 0 {
			s.dims[axis] = Dim(v)
		}
	}
	return s
}

// IsRanked returns whether the number of axes is known.
func (s Shape) IsRanked() bool { return s.ranked }

// Rank returns the number of axes, or -1 if the shape is unranked.
func (s Shape) Rank() int {
	if !s.ranked {
		return -1
	}
	return len(s.dims)
}

// Dim returns the dimension of the given axis. Negative axes count from the end.
// It panics if the shape is unranked or the axis is out of range.
func (s Shape) Dim(axis int) Dimension {
	if axis < 0 {
		axis += len(s.dims)
	}
	return s.dims[axis]
}

// Dims returns a copy of the dimensions. It returns nil for unranked shapes.
func (s Shape) Dims() []Dimension {
	if !s.ranked {
		return nil
	}
	dims := make([]Dimension, len(s.dims))
	copy(dims, s.dims)
	return dims
}

// IsFullyKnown returns whether the shape is ranked and all its dimensions have known values.
func (s Shape) IsFullyKnown() bool {
	if !s.ranked {
		return false
	}
	for _, d := range s.dims {
		if !d.IsKnown() {
			return false
		}
	}
	return true
}

// Values returns the known values of the dimensions, with -1 for the ones not known.
// It returns nil for unranked shapes.
func (s Shape) Values() []int64 {
	if !s.ranked {
		return nil
	}
	values := make([]int64, len(s.dims))
	for axis, d := range s.dims {
		if v, ok := d.Value(); ok {
			values[axis] = v
		} else {
			values[axis] = -1
		}
	}
	return values
}

// NumElements returns the product of the dimensions, if they are all known.
func (s Shape) NumElements() (int64, bool) {
	if !s.IsFullyKnown() {
		return 0, false
	}
	size := int64(1)
	for _, d := range s.dims {
		size *= d.value
	}
	return size, true
}

// WithDim returns a copy of the shape with the dimension of axis replaced.
func (s Shape) WithDim(axis int, d Dimension) Shape {
	out := Make(s.dims...)
	out.dims[axis] = d
	return out
}

// Equal returns whether both shapes have the same rank-ness and identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if s.ranked != other.ranked || len(s.dims) != len(other.dims) {
		return false
	}
	for axis := range s.dims {
		if s.dims[axis] != other.dims[axis] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. E.g.: "(batch, 3, ?)", "()" for scalars and "(*)" for unranked shapes.
func (s Shape) String() string {
	if !s.ranked {
		return "(*)"
	}
	parts := make([]string, len(s.dims))
	for axis, d := range s.dims {
		parts[axis] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// MergeShapes merges two descriptions of the same tensor shape axis by axis.
//
// An unranked shape adopts the other one, ranks must otherwise agree.
func MergeShapes(a, b Shape) (Shape, error) {
	if !a.ranked {
		return Make(b.dims...).withRank(b.ranked), nil
	}
	if !b.ranked {
		return Make(a.dims...), nil
	}
	if len(a.dims) != len(b.dims) {
		return Shape{}, errors.Wrapf(ErrMismatch, "ranks %d and %d differ for shapes %s and %s", len(a.dims), len(b.dims), a, b)
	}
	out := OfRank(len(a.dims))
	for axis := range a.dims {
		d, err := Merge(a.dims[axis], b.dims[axis])
		if err != nil {
			return Shape{}, errors.WithMessagef(err, "merging axis %d of %s and %s", axis, a, b)
		}
		out.dims[axis] = d
	}
	return out, nil
}

func (s Shape) withRank(ranked bool) Shape {
	if !ranked {
		return Shape{}
	}
	return s
}
