package defs

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/shape"
)

// inferReshape computes the output shape from the constant target shape (input 1).
//
// Target entries: 0 copies the input dimension at the same position, -1 (at most one) is inferred
// from the total number of elements, positive values are used as is.
func inferReshape(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	target, ok, err := constantInt64s(ctx, 1)
	if err != nil {
		return err
	}
	if !ok {
		// The output rank is still known if the length of the 1-D target shape is.
		if st := ctx.InputType(1); st.HasShape() && st.Shape.Rank() == 1 {
			if n, known := st.Shape.Dim(0).Value(); known {
				setOutputShape(ctx, 0, shape.OfRank(int(n)))
			}
		}
		return nil
	}

	var dataShape shape.Shape
	if data := ctx.InputType(0); data != nil {
		dataShape = data.Shape
	}
	dims := make([]shape.Dimension, len(target))
	negativeOne := -1
	// unresolvedZeros marks the positions that copy an input dimension whose value is not known.
	unresolvedZeros := make([]bool, len(target))
	outputProduct := int64(1)
	for i, t := range target {
		switch {
		case t == -1:
			if negativeOne >= 0 {
				return onnx.StructuralErrorf("target shape %v has more than one -1", target)
			}
			negativeOne = i
		case t == 0:
			unresolvedZeros[i] = true
			if !dataShape.IsRanked() {
				continue
			}
			if i >= dataShape.Rank() {
				return onnx.StructuralErrorf("target shape %v has a 0 at position %d, beyond the input rank %d", target, i, dataShape.Rank())
			}
			dims[i] = dataShape.Dim(i)
			if v, known := dims[i].Value(); known {
				outputProduct *= v
				unresolvedZeros[i] = false
			}
		case t > 0:
			dims[i] = shape.Dim(t)
			outputProduct *= t
		default:
			return onnx.StructuralErrorf("target shape %v has invalid dimension value %d", target, t)
		}
	}

	if negativeOne >= 0 {
		if outputProduct == 0 {
			return onnx.StructuralErrorf("target shape %v has a -1 and a product of 0", target)
		}
		// The input dimensions copied with a 0 appear on both sides, so they need not be known.
		inputProduct := int64(1)
		valid := dataShape.IsRanked()
		for i, d := range dataShape.Dims() {
			if v, known := d.Value(); known {
				inputProduct *= v
			} else if i >= len(unresolvedZeros) || !unresolvedZeros[i] {
				valid = false
				break
			}
		}
		if valid {
			if inputProduct%outputProduct != 0 {
				return onnx.ShapeMismatchErrorf("cannot reshape %s to %v: %d elements are not divisible by %d",
					dataShape, target, inputProduct, outputProduct)
			}
			dims[negativeOne] = shape.Dim(inputProduct / outputProduct)
		}
	} else if inputSize, known := dataShape.NumElements(); known {
		out := shape.Make(dims...)
		if outputSize, outKnown := out.NumElements(); outKnown && outputSize != inputSize {
			return onnx.ShapeMismatchErrorf("cannot reshape %s (%d elements) to %s (%d elements)",
				dataShape, inputSize, out, outputSize)
		}
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// inferShapeOp: the output is the 1-D int64 vector of the input dimensions.
func inferShapeOp(ctx onnx.InferenceContext) error {
	setOutputElemType(ctx, 0, onnx.Int64)
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	setOutputShape(ctx, 0, shape.Make(shape.Dim(int64(inputShape(ctx, 0).Rank()))))
	return nil
}

// inferSize: the output is an int64 scalar.
func inferSize(ctx onnx.InferenceContext) error {
	setOutputElemType(ctx, 0, onnx.Int64)
	setOutputShape(ctx, 0, shape.Scalar())
	return nil
}

// inferSqueeze removes the listed axes, which must have length 1 if known.
// Without axes, every axis of length 1 is removed, which requires all dimensions to be known.
func inferSqueeze(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	axes, present, err := onnx.GetInts(ctx, "axes")
	if err != nil {
		return err
	}
	dims := make([]shape.Dimension, 0, in.Rank())
	if !present {
		for _, d := range in.Dims() {
			if d.Is(1) {
				continue
			}
			if !d.IsKnown() {
				// Can't tell whether it would be squeezed.
				return nil
			}
			dims = append(dims, d)
		}
		setOutputShape(ctx, 0, shape.Make(dims...))
		return nil
	}

	normalized, err := normalizeAxes(axes, in.Rank(), "squeeze axes")
	if err != nil {
		return err
	}
	squeezed := sets.Make[int]()
	for _, axis := range normalized {
		squeezed.Insert(axis)
	}
	for axis, d := range in.Dims() {
		if !squeezed.Has(axis) {
			dims = append(dims, d)
			continue
		}
		if v, known := d.Value(); known && v != 1 {
			return onnx.StructuralErrorf("cannot squeeze axis %d of %s: it has length %d", axis, in, v)
		}
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// inferUnsqueeze inserts axes of length 1. Axes are positions in the output.
func inferUnsqueeze(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	axes, _, err := onnx.GetInts(ctx, "axes")
	if err != nil {
		return err
	}
	outRank := in.Rank() + len(axes)
	normalized, err := normalizeAxes(axes, outRank, "unsqueeze axes")
	if err != nil {
		return err
	}
	slices.Sort(normalized)

	dims := make([]shape.Dimension, 0, outRank)
	inputDims := in.Dims()
	next := 0 // Next axis to insert.
	for len(dims) < outRank {
		if next < len(normalized) && normalized[next] == len(dims) {
			dims = append(dims, shape.Dim(1))
			next++
			continue
		}
		dims = append(dims, inputDims[0])
		inputDims = inputDims[1:]
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// inferTranspose permutes the input axes, by default reversing them.
func inferTranspose(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	rank := in.Rank()
	perm, present, err := onnx.GetInts(ctx, "perm")
	if err != nil {
		return err
	}
	if !present {
		perm = make([]int64, rank)
		for i := range perm {
			perm[i] = int64(rank - 1 - i)
		}
	}
	if len(perm) != rank {
		return onnx.StructuralErrorf("invalid attribute perm %v for input shape %s: it must have one entry per axis", perm, in)
	}
	seen := sets.Make[int64]()
	dims := make([]shape.Dimension, rank)
	for i, p := range perm {
		if p < 0 || p >= int64(rank) || seen.Has(p) {
			return onnx.StructuralErrorf("invalid attribute perm %v for input shape %s: it must be a permutation of [0, %d)", perm, in, rank)
		}
		seen.Insert(p)
		dims[i] = in.Dim(int(p))
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}
