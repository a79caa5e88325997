package defs

import (
	"slices"

	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/shape"
)

var (
	padModes          = []string{"constant", "reflect", "edge"}
	depthToSpaceModes = []string{"DCR", "CRD"}
)

// inferPad adds the begin and end pads of each axis to its length.
//
// pads is laid out as [x1_begin, x2_begin, ..., x1_end, x2_end, ...]. An axis of unknown length is only
// passed through if both of its pads are 0.
func inferPad(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	mode, err := onnx.GetString(ctx, "mode", "constant")
	if err != nil {
		return err
	}
	if !slices.Contains(padModes, mode) {
		return onnx.StructuralErrorf("Pad mode %q is not one of %q", mode, padModes)
	}
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	rank := in.Rank()
	pads, present, err := onnx.GetInts(ctx, "pads")
	if err != nil {
		return err
	}
	if !present {
		return onnx.StructuralErrorf("Pad attribute pads is required")
	}
	if len(pads) != 2*rank {
		return onnx.StructuralErrorf("Pad attribute pads %v must have 2*rank=%d entries for input %s", pads, 2*rank, in)
	}

	dims := make([]shape.Dimension, rank)
	for axis, d := range in.Dims() {
		total := pads[axis] + pads[rank+axis]
		if v, known := d.Value(); known {
			if v+total < 0 {
				return onnx.ShapeMismatchErrorf("Pad of axis %d of %s with pads (%d, %d) yields a negative length",
					axis, in, pads[axis], pads[rank+axis])
			}
			dims[axis] = shape.Dim(v + total)
		} else if pads[axis] == 0 && pads[rank+axis] == 0 {
			dims[axis] = d
		}
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// inferTile multiplies each input length by the constant repeats of its axis.
// If repeats is not a constant, only the output rank is set.
func inferTile(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	rank := in.Rank()

	data := ctx.InputData(1)
	if data == nil {
		setOutputShape(ctx, 0, shape.OfRank(rank))
		return nil
	}
	if data.ElemType != onnx.Int64 {
		return onnx.UnsupportedInputErrorf("Tile repeats must be int64, got %s", data.ElemType)
	}
	if data.Rank() != 1 {
		return onnx.StructuralErrorf("Tile repeats must be a 1-D tensor, got shape %v", data.Dims)
	}
	repeats, err := data.Int64s()
	if err != nil {
		return err
	}
	if len(repeats) != rank {
		return onnx.StructuralErrorf("Tile repeats %v must have one entry per axis of input %s", repeats, in)
	}
	dims := make([]shape.Dimension, rank)
	for axis, d := range in.Dims() {
		if repeats[axis] < 0 {
			return onnx.StructuralErrorf("Tile repeats %v cannot have negative entries", repeats)
		}
		if d.IsKnown() {
			dims[axis] = d.Mul(repeats[axis])
		}
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// blocksize reads and validates the blocksize attribute of SpaceToDepth and DepthToSpace.
func blocksize(ctx onnx.InferenceContext) (int64, error) {
	b, err := onnx.GetInt(ctx, "blocksize", 0)
	if err != nil {
		return 0, err
	}
	if b <= 0 {
		return 0, onnx.StructuralErrorf("blocksize must be positive, got %d", b)
	}
	return b, nil
}

// divisible returns an error if d is a known value not divisible by divisor.
func divisible(d shape.Dimension, divisor int64, what string) error {
	if v, known := d.Value(); known && v%divisor != 0 {
		return onnx.ShapeMismatchErrorf("%s %d is not divisible by %d", what, v, divisor)
	}
	return nil
}

// inferSpaceToDepth: [N, C, H, W] -> [N, C*b*b, H/b, W/b].
func inferSpaceToDepth(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	b, err := blocksize(ctx)
	if err != nil {
		return err
	}
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	if in.Rank() != 4 {
		return onnx.StructuralErrorf("SpaceToDepth input must be 4-dimensional, got %s", in)
	}
	if err := divisible(in.Dim(2), b, "SpaceToDepth height"); err != nil {
		return err
	}
	if err := divisible(in.Dim(3), b, "SpaceToDepth width"); err != nil {
		return err
	}
	setOutputShape(ctx, 0, shape.Make(in.Dim(0), in.Dim(1).Mul(b*b), in.Dim(2).Div(b), in.Dim(3).Div(b)))
	return nil
}

// inferDepthToSpace: [N, C, H, W] -> [N, C/(b*b), H*b, W*b].
func inferDepthToSpace(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	b, err := blocksize(ctx)
	if err != nil {
		return err
	}
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	if in.Rank() != 4 {
		return onnx.StructuralErrorf("DepthToSpace input must be 4-dimensional, got %s", in)
	}
	if err := divisible(in.Dim(1), b*b, "DepthToSpace channels"); err != nil {
		return err
	}
	setOutputShape(ctx, 0, shape.Make(in.Dim(0), in.Dim(1).Div(b*b), in.Dim(2).Mul(b), in.Dim(3).Mul(b)))
	return nil
}

// inferDepthToSpaceWithMode also validates the mode attribute, introduced in version 11.
func inferDepthToSpaceWithMode(ctx onnx.InferenceContext) error {
	mode, err := onnx.GetString(ctx, "mode", "DCR")
	if err != nil {
		return err
	}
	if !slices.Contains(depthToSpaceModes, mode) {
		return onnx.StructuralErrorf("DepthToSpace mode %q is not one of %q", mode, depthToSpaceModes)
	}
	return inferDepthToSpace(ctx)
}
