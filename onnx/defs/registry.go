// Package defs defines the schemas and shape inference functions of the ONNX tensor manipulation operators:
// Reshape, Slice, Gather, Concat, Pad, Resize and friends.
//
// Use NewRegistry to get an immutable registry with all of them, or Register to add them to a
// registry being built along with other operators.
package defs

import (
	"github.com/gomlx/onnx-shapeinfer/onnx"
)

// castTypes are the element types accepted by Cast, on both sides.
var castTypes = append(onnx.AllNumericTypes(), onnx.Bool, onnx.String)

// Schemas returns newly created schemas for all operators of this package.
//
// Schemas are frozen once registered, so each call creates new ones.
func Schemas() []*onnx.OpSchema {
	allTypes := onnx.AllTensorTypes()
	return []*onnx.OpSchema{
		onnx.NewSchema("Cast", 9).
			Attr("to", onnx.AttrInt, true).
			Input("input", "T1").
			Output("output", "T2").
			TypeConstraint("T1", castTypes...).
			TypeConstraint("T2", castTypes...).
			Inference(inferCast),

		onnx.NewSchema("Reshape", 5).
			Input("data", "T").
			Input("shape", "tensor(int64)").
			Output("reshaped", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferReshape),

		onnx.NewSchema("Shape", 1).
			Input("data", "T").
			Output("shape", "T1").
			TypeConstraint("T", allTypes...).
			TypeConstraint("T1", onnx.Int64).
			Inference(inferShapeOp),

		onnx.NewSchema("Size", 1).
			Input("data", "T").
			Output("size", "T1").
			TypeConstraint("T", allTypes...).
			TypeConstraint("T1", onnx.Int64).
			Inference(inferSize),

		onnx.NewSchema("Concat", 4).
			Attr("axis", onnx.AttrInt, true).
			VariadicInput("inputs", "T").
			Output("concat_result", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferConcat),

		onnx.NewSchema("Split", 2).
			AttrDefault("axis", onnx.IntAttr(0)).
			Attr("split", onnx.AttrInts, false).
			Input("input", "T").
			VariadicOutput("outputs", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferSplit),

		onnx.NewSchema("Slice", 10).
			Input("data", "T").
			Input("starts", "Tind").
			Input("ends", "Tind").
			OptionalInput("axes", "Tind").
			OptionalInput("steps", "Tind").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			TypeConstraint("Tind", onnx.IndexTypes()...).
			Inference(inferSlice),

		onnx.NewSchema("Transpose", 1).
			Attr("perm", onnx.AttrInts, false).
			Input("data", "T").
			Output("transposed", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferTranspose),

		onnx.NewSchema("Scatter", 9).
			AttrDefault("axis", onnx.IntAttr(0)).
			Input("data", "T").
			Input("indices", "Tind").
			Input("updates", "T").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			TypeConstraint("Tind", onnx.IndexTypes()...).
			Inference(inferScatter),

		onnx.NewSchema("Gather", 1).
			AttrDefault("axis", onnx.IntAttr(0)).
			Input("data", "T").
			Input("indices", "Tind").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			TypeConstraint("Tind", onnx.IndexTypes()...).
			Inference(inferGather),

		onnx.NewSchema("Squeeze", 1).
			Attr("axes", onnx.AttrInts, false).
			Input("data", "T").
			Output("squeezed", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferSqueeze),

		onnx.NewSchema("Unsqueeze", 1).
			Attr("axes", onnx.AttrInts, true).
			Input("data", "T").
			Output("expanded", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferUnsqueeze),

		onnx.NewSchema("Pad", 2).
			Attr("pads", onnx.AttrInts, true).
			AttrDefault("mode", onnx.StringAttr("constant")).
			AttrDefault("value", onnx.FloatAttr(0)).
			Input("data", "T").
			Output("output", "T").
			TypeConstraint("T", onnx.FloatTypes()...).
			Inference(inferPad),

		onnx.NewSchema("SpaceToDepth", 1).
			Attr("blocksize", onnx.AttrInt, true).
			Input("input", "T").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferSpaceToDepth),

		onnx.NewSchema("DepthToSpace", 1).
			Attr("blocksize", onnx.AttrInt, true).
			Input("input", "T").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferDepthToSpace),

		onnx.NewSchema("DepthToSpace", 11).
			Attr("blocksize", onnx.AttrInt, true).
			AttrDefault("mode", onnx.StringAttr("DCR")).
			Input("input", "T").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferDepthToSpaceWithMode),

		onnx.NewSchema("Tile", 6).
			Input("input", "T").
			Input("repeats", "T1").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			TypeConstraint("T1", onnx.Int64).
			Inference(inferTile),

		onnx.NewSchema("Upsample", 10).
			AttrDefault("mode", onnx.StringAttr("nearest")).
			Input("X", "T").
			Input("scales", "tensor(float)").
			Output("Y", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferResize),

		onnx.NewSchema("Resize", 10).
			AttrDefault("mode", onnx.StringAttr("nearest")).
			Input("X", "T").
			Input("scales", "tensor(float)").
			Output("Y", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferResize),

		onnx.NewSchema("Identity", 1).
			Input("input", "T").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			Inference(identityInference),

		onnx.NewSchema("Compress", 9).
			Attr("axis", onnx.AttrInt, false).
			Input("input", "T").
			Input("condition", "T1").
			Output("output", "T").
			TypeConstraint("T", allTypes...).
			TypeConstraint("T1", onnx.Bool).
			Inference(inferCompress),

		onnx.NewSchema("OneHot", 9).
			AttrDefault("axis", onnx.IntAttr(-1)).
			Input("indices", "T1").
			Input("depth", "T2").
			Input("values", "T3").
			Output("output", "T3").
			TypeConstraint("T1", onnx.AllNumericTypes()...).
			TypeConstraint("T2", onnx.AllNumericTypes()...).
			TypeConstraint("T3", allTypes...).
			Inference(inferOneHot),

		onnx.NewSchema("IsNaN", 9).
			Input("X", "T1").
			Output("Y", "T2").
			TypeConstraint("T1", onnx.FloatTypes()...).
			TypeConstraint("T2", onnx.Bool).
			Inference(inferBoolMask),

		onnx.NewSchema("IsInf", 10).
			AttrDefault("detect_negative", onnx.IntAttr(1)).
			AttrDefault("detect_positive", onnx.IntAttr(1)).
			Input("X", "T1").
			Output("Y", "T2").
			TypeConstraint("T1", onnx.Float, onnx.Double).
			TypeConstraint("T2", onnx.Bool).
			Inference(inferBoolMask),

		onnx.NewSchema("Where", 9).
			Input("condition", "B").
			Input("X", "T").
			Input("Y", "T").
			Output("output", "T").
			TypeConstraint("B", onnx.Bool).
			TypeConstraint("T", allTypes...).
			Inference(inferWhere),

		onnx.NewSchema("NonZero", 9).
			Input("X", "T").
			Output("Y", "tensor(int64)").
			TypeConstraint("T", allTypes...).
			Inference(inferNonZero),

		onnx.NewSchema("ReverseSequence", 10).
			AttrDefault("time_axis", onnx.IntAttr(0)).
			AttrDefault("batch_axis", onnx.IntAttr(1)).
			Input("input", "T").
			Input("sequence_lens", "tensor(int64)").
			Output("Y", "T").
			TypeConstraint("T", allTypes...).
			Inference(inferReverseSequence),

		onnx.NewSchema("Unique", 11).
			AttrDefault("sorted", onnx.IntAttr(1)).
			Attr("axis", onnx.AttrInt, false).
			Input("X", "T").
			Output("Y", "T").
			OptionalOutput("indices", "tensor(int64)").
			OptionalOutput("inverse_indices", "tensor(int64)").
			OptionalOutput("counts", "tensor(int64)").
			TypeConstraint("T", allTypes...).
			Inference(inferUnique),
	}
}

// Register adds all operators of this package to the builder.
func Register(b *onnx.RegistryBuilder) *onnx.RegistryBuilder {
	return b.Register(Schemas()...)
}

// NewRegistry returns an immutable registry with all operators of this package.
func NewRegistry() (*onnx.Registry, error) {
	return Register(onnx.NewRegistryBuilder()).Build()
}

// MustNewRegistry is like NewRegistry, but panics on error.
func MustNewRegistry() *onnx.Registry {
	return Register(onnx.NewRegistryBuilder()).MustBuild()
}
