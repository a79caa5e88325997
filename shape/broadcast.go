package shape

import (
	"slices"

	"github.com/pkg/errors"
)

// Broadcast returns the numpy-style multidirectional broadcast of the given shapes.
//
// Shapes are right-aligned, and the output rank is the largest input rank. Shapes with fewer axes
// contribute a length of 1 for their missing leading axes. For each axis:
//
//   - Known lengths other than 1 must all be equal, and that value is the output. Unknown
//     contributions don't conflict with it.
//   - If every contribution is 1, the output is 1.
//   - A single parameter name (besides 1s) is propagated, anything else is Unknown.
//
// An unranked input contributes Unknown to every axis. Only if all inputs are unranked is the output
// unranked. The result doesn't depend on the order of the inputs.
func Broadcast(shapes ...Shape) (Shape, error) {
	rank := -1
	for _, s := range shapes {
		if s.ranked && len(s.dims) > rank {
			rank = len(s.dims)
		}
	}
	if rank < 0 {
		return Unranked(), nil
	}

	out := OfRank(rank)
	for axis := 0; axis < rank; axis++ {
		var (
			known      int64 = 1
			hasUnknown bool
			params     []string
		)
		for i, s := range shapes {
			if !s.ranked {
				hasUnknown = true
				continue
			}
			inputAxis := axis - (rank - len(s.dims))
			if inputAxis < 0 {
				// Implicit leading 1.
				continue
			}
			d := s.dims[inputAxis]
			switch d.kind {
			case Value:
				if d.value == 1 {
					continue
				}
				if known != 1 && known != d.value {
					return Shape{}, errors.Wrapf(ErrBroadcast,
						"axis %d (of output rank %d): length %d of input #%d conflicts with length %d, in shapes %v",
						axis, rank, d.value, i, known, shapes)
				}
				known = d.value
			case Param:
				if !slices.Contains(params, d.param) {
					params = append(params, d.param)
				}
			default:
				hasUnknown = true
			}
		}
		switch {
		case known != 1:
			out.dims[axis] = Dim(known)
		case hasUnknown:
			// Unknown stays.
		case len(params) == 1:
			out.dims[axis] = Sym(params[0])
		case len(params) == 0:
			out.dims[axis] = Dim(1)
		}
	}
	return out, nil
}
