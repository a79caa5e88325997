package defs

import (
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/shape"
)

// inferGather: the output has rank q+r-1, with the indices dimensions replacing the data axis.
func inferGather(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	if !hasInputShapes(ctx, 2) {
		return nil
	}
	data, indices := inputShape(ctx, 0), inputShape(ctx, 1)
	r, q := data.Rank(), indices.Rank()
	if r < 1 {
		return onnx.StructuralErrorf("Gather data must have rank >= 1, got %s", data)
	}
	rawAxis, err := onnx.GetInt(ctx, "axis", 0)
	if err != nil {
		return err
	}
	axis, err := normalizeAxis(rawAxis, r, "Gather axis")
	if err != nil {
		return err
	}

	dims := make([]shape.Dimension, 0, q+r-1)
	dims = append(dims, data.Dims()[:axis]...)
	dims = append(dims, indices.Dims()...)
	dims = append(dims, data.Dims()[axis+1:]...)
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// inferScatter: the output has the type and shape of the data input. Indices and updates are only checked
// at execution.
func inferScatter(ctx onnx.InferenceContext) error {
	return identityInference(ctx)
}

// inferOneHot inserts a new axis (of unresolved length) into the indices shape, at the position given by axis.
// The element type comes from the values input.
func inferOneHot(ctx onnx.InferenceContext) error {
	if ctx.NumInputs() != 3 {
		return onnx.StructuralErrorf("OneHot requires 3 inputs, got %d", ctx.NumInputs())
	}
	if depth := ctx.InputType(1); depth.HasShape() {
		s := depth.Shape
		if s.Rank() != 1 || (s.Dim(0).IsKnown() && !s.Dim(0).Is(1)) {
			return onnx.StructuralErrorf("OneHot depth must be a 1-D tensor with one element, got %s", s)
		}
	}
	if values := ctx.InputType(2); values.HasShape() {
		s := values.Shape
		if s.Rank() != 1 || (s.Dim(0).IsKnown() && !s.Dim(0).Is(2)) {
			return onnx.StructuralErrorf("OneHot values must be a 1-D tensor with two elements (off_value, on_value), got %s", s)
		}
	}
	propagateElemType(ctx, 2, 0)
	if !hasInputShapes(ctx, 1) {
		return nil
	}

	indices := inputShape(ctx, 0)
	r := indices.Rank()
	if r < 1 {
		return onnx.StructuralErrorf("OneHot indices must have rank >= 1, got %s", indices)
	}
	rawAxis, err := onnx.GetInt(ctx, "axis", -1)
	if err != nil {
		return err
	}
	axis, err := normalizeAxis(rawAxis, r+1, "OneHot axis")
	if err != nil {
		return err
	}
	dims := make([]shape.Dimension, 0, r+1)
	dims = append(dims, indices.Dims()[:axis]...)
	dims = append(dims, shape.UnknownDim())
	dims = append(dims, indices.Dims()[axis:]...)
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// inferUnique: without axis the output is 1-D of unknown length. With axis, the selected axis becomes unknown
// and the others are copied. The optional indices, inverse_indices and counts outputs are always int64 1-D
// of unknown length.
func inferUnique(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	for i := 1; i < ctx.NumOutputs(); i++ {
		setOutputElemType(ctx, i, onnx.Int64)
		setOutputShape(ctx, i, shape.OfRank(1))
	}

	if _, hasAxis := ctx.Attribute("axis"); !hasAxis {
		setOutputShape(ctx, 0, shape.OfRank(1))
		return nil
	}
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	rawAxis, err := onnx.GetInt(ctx, "axis", 0)
	if err != nil {
		return err
	}
	axis, err := normalizeAxis(rawAxis, in.Rank(), "Unique axis")
	if err != nil {
		return err
	}
	setOutputShape(ctx, 0, in.WithDim(axis, shape.UnknownDim()))
	return nil
}
