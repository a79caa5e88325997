package defs

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/shape"
)

// propagateElemType copies the element type of input inIdx to output outIdx, if known.
func propagateElemType(ctx onnx.InferenceContext, inIdx, outIdx int) {
	in, out := ctx.InputType(inIdx), ctx.OutputType(outIdx)
	if in == nil || out == nil || !in.ElemType.IsDefined() {
		return
	}
	out.ElemType = in.ElemType
}

// propagateShape copies the shape of input inIdx to output outIdx, if known.
func propagateShape(ctx onnx.InferenceContext, inIdx, outIdx int) {
	in, out := ctx.InputType(inIdx), ctx.OutputType(outIdx)
	if !in.HasShape() || out == nil {
		return
	}
	out.Shape = in.Shape
}

// setOutputElemType sets the element type of output outIdx, if the output exists.
func setOutputElemType(ctx onnx.InferenceContext, outIdx int, elemType onnx.ElementType) {
	if out := ctx.OutputType(outIdx); out != nil {
		out.ElemType = elemType
	}
}

// setOutputShape sets the shape of output outIdx, if the output exists.
func setOutputShape(ctx onnx.InferenceContext, outIdx int, s shape.Shape) {
	if out := ctx.OutputType(outIdx); out != nil {
		out.Shape = s
	}
}

// hasInputShapes returns whether the first n inputs are present and have ranked shapes.
func hasInputShapes(ctx onnx.InferenceContext, n int) bool {
	if ctx.NumInputs() < n {
		return false
	}
	for i := range n {
		if !ctx.InputType(i).HasShape() {
			return false
		}
	}
	return true
}

// inputShape returns the shape of input i, assuming the caller checked it exists.
func inputShape(ctx onnx.InferenceContext, i int) shape.Shape {
	return ctx.InputType(i).Shape
}

// normalizeAxis converts an axis in [-rank, rank) to [0, rank).
func normalizeAxis(axis int64, rank int, what string) (int, error) {
	if axis < -int64(rank) || axis >= int64(rank) {
		return 0, onnx.StructuralErrorf("%s %d out of range for rank %d, it must be in [%d, %d]", what, axis, rank, -rank, rank-1)
	}
	if axis < 0 {
		axis += int64(rank)
	}
	return int(axis), nil
}

// normalizeAxes normalizes a list of axes, failing on out-of-range and duplicate entries.
func normalizeAxes(axes []int64, rank int, what string) ([]int, error) {
	normalized := make([]int, len(axes))
	seen := sets.Make[int]()
	for i, axis := range axes {
		a, err := normalizeAxis(axis, rank, what)
		if err != nil {
			return nil, err
		}
		if seen.Has(a) {
			return nil, onnx.StructuralErrorf("%s has duplicate entries: %v", what, axes)
		}
		seen.Insert(a)
		normalized[i] = a
	}
	return normalized, nil
}

// constantInt64s returns the values of constant input i, or nil if it is not a constant.
// The constant must be int32 or int64, otherwise an error wrapping onnx.ErrUnsupportedInput is returned.
func constantInt64s(ctx onnx.InferenceContext, i int) ([]int64, bool, error) {
	data := ctx.InputData(i)
	if data == nil {
		return nil, false, nil
	}
	values, err := data.Int64s()
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// identityInference propagates type and shape of the first input to the first output.
func identityInference(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	propagateShape(ctx, 0, 0)
	return nil
}
