package defs

import (
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/shape"
	"github.com/pkg/errors"
)

// inferCast: the output element type comes from the "to" attribute, the shape is the input's.
func inferCast(ctx onnx.InferenceContext) error {
	to, err := onnx.GetInt(ctx, "to", int64(onnx.Undefined))
	if err != nil {
		return err
	}
	elemType := onnx.ElementType(to)
	if !elemType.IsValid() || !elemType.IsDefined() {
		return onnx.StructuralErrorf("Cast attribute to=%d is not a valid element type", to)
	}
	setOutputElemType(ctx, 0, elemType)
	propagateShape(ctx, 0, 0)
	return nil
}

// inferBoolMask is used by IsNaN and IsInf: a bool output of the input shape.
func inferBoolMask(ctx onnx.InferenceContext) error {
	setOutputElemType(ctx, 0, onnx.Bool)
	propagateShape(ctx, 0, 0)
	return nil
}

// inferNonZero: an int64 output of shape [rank, number of non-zero elements].
func inferNonZero(ctx onnx.InferenceContext) error {
	setOutputElemType(ctx, 0, onnx.Int64)
	if !hasInputShapes(ctx, 1) {
		setOutputShape(ctx, 0, shape.OfRank(2))
		return nil
	}
	rank := int64(inputShape(ctx, 0).Rank())
	setOutputShape(ctx, 0, shape.Make(shape.Dim(rank), shape.UnknownDim()))
	return nil
}

// inferWhere: the output has the element type of X and the broadcast shape of condition, X and Y.
func inferWhere(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 1, 0)
	// An unranked input only leaves its own contribution unknown: the output is unranked only if all are.
	inputs := make([]shape.Shape, 3)
	for i := range inputs {
		tt := ctx.InputType(i)
		if tt == nil {
			return nil
		}
		inputs[i] = tt.Shape
	}
	out, err := shape.Broadcast(inputs...)
	if err != nil {
		return errors.WithMessage(err, "Where inputs condition, X and Y")
	}
	setOutputShape(ctx, 0, out)
	return nil
}

// inferReverseSequence: the output has the input shape. The batch axis is refined by the length of
// sequence_lens.
func inferReverseSequence(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	timeAxis, err := onnx.GetInt(ctx, "time_axis", 0)
	if err != nil {
		return err
	}
	batchAxis, err := onnx.GetInt(ctx, "batch_axis", 1)
	if err != nil {
		return err
	}
	if (timeAxis != 0 && timeAxis != 1) || (batchAxis != 0 && batchAxis != 1) || timeAxis == batchAxis {
		return onnx.StructuralErrorf("ReverseSequence time_axis=%d and batch_axis=%d must be 0 and 1, in any order",
			timeAxis, batchAxis)
	}
	if !hasInputShapes(ctx, 2) {
		return nil
	}
	in, seqLens := inputShape(ctx, 0), inputShape(ctx, 1)
	if in.Rank() < 2 {
		return onnx.StructuralErrorf("ReverseSequence input must have rank >= 2, got %s", in)
	}
	if seqLens.Rank() != 1 {
		return onnx.StructuralErrorf("ReverseSequence sequence_lens must have rank 1, got %s", seqLens)
	}
	batch, err := shape.Merge(in.Dim(int(batchAxis)), seqLens.Dim(0))
	if err != nil {
		return errors.WithMessagef(err, "ReverseSequence batch axis of input %s and sequence_lens %s", in, seqLens)
	}
	setOutputShape(ctx, 0, in.WithDim(int(batchAxis), batch))
	return nil
}

// inferCompress: with an axis, the output keeps the input rank with the selected axis of unknown length;
// without, the input is flattened and the output is 1-D of unknown length.
func inferCompress(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	if cond := ctx.InputType(1); cond.HasShape() && cond.Shape.Rank() != 1 {
		return onnx.StructuralErrorf("Compress condition must have rank 1, got %s", cond.Shape)
	}
	if _, hasAxis := ctx.Attribute("axis"); !hasAxis {
		setOutputShape(ctx, 0, shape.OfRank(1))
		return nil
	}
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	if in.Rank() < 1 {
		return onnx.StructuralErrorf("Compress input must have rank >= 1, got %s", in)
	}
	rawAxis, err := onnx.GetInt(ctx, "axis", 0)
	if err != nil {
		return err
	}
	axis, err := normalizeAxis(rawAxis, in.Rank(), "Compress axis")
	if err != nil {
		return err
	}
	setOutputShape(ctx, 0, in.WithDim(axis, shape.UnknownDim()))
	return nil
}
