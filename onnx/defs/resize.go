package defs

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/shape"
)

var resizeModes = []string{"nearest", "linear"}

// inferResize is shared by Resize and Upsample: each output length is floor(input length * scale),
// with one scale per axis from the constant scales input (input 1).
//
// If scales is not a constant, only the output rank is set.
func inferResize(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	mode, err := onnx.GetString(ctx, "mode", "nearest")
	if err != nil {
		return err
	}
	if mode != resizeModes[0] && mode != resizeModes[1] {
		return onnx.StructuralErrorf("resize mode %q is not one of %q", mode, resizeModes)
	}
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	rank := in.Rank()
	if st := ctx.InputType(1); st.HasShape() && st.Shape.Rank() != 1 {
		return onnx.StructuralErrorf("resize scales must be a 1-D tensor, got %s", st.Shape)
	}

	data := ctx.InputData(1)
	if data == nil {
		setOutputShape(ctx, 0, shape.OfRank(rank))
		return nil
	}
	scales, err := data.Float32s()
	if err != nil {
		return err
	}
	if len(scales) != rank {
		return onnx.StructuralErrorf("resize scales %v must have one entry per axis of input %s", scales, in)
	}
	dims := make([]shape.Dimension, rank)
	for axis, d := range in.Dims() {
		scale := scales[axis]
		if scale <= 0 || math32.IsNaN(scale) || math32.IsInf(scale, 0) {
			return onnx.StructuralErrorf("resize scales %v must be finite and positive", scales)
		}
		if v, known := d.Value(); known {
			dims[axis] = shape.Dim(int64(math32.Floor(float32(v) * scale)))
		} else if scale == 1 {
			dims[axis] = d
		}
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}
