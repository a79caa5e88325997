package onnx

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnx-shapeinfer/shape"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// copyInference copies the first input type to all outputs.
func copyInference(ctx InferenceContext) error {
	in := ctx.InputType(0)
	for i := range ctx.NumOutputs() {
		if in != nil {
			*ctx.OutputType(i) = *in
		}
	}
	return nil
}

func testRegistry(t *testing.T) *Registry {
	registry, err := NewRegistryBuilder().Register(
		NewSchema("Copy", 1).
			Input("x", "T").
			OptionalInput("y", "T").
			VariadicOutput("out", "T").
			TypeConstraint("T", Float, Double).
			Inference(copyInference),
		NewSchema("Copy", 3).
			AttrDefault("scale", FloatAttr(1)).
			Attr("name", AttrString, true).
			Input("x", "T").
			Output("out", "T").
			TypeConstraint("T", AllTensorTypes()...).
			Inference(func(ctx InferenceContext) error {
				scale, err := GetFloat(ctx, "scale", 0)
				if err != nil {
					return err
				}
				if scale != 1 {
					return StructuralErrorf("scale must be 1, got %g", scale)
				}
				return copyInference(ctx)
			}),
		NewSchema("ToInt", 1).
			Input("x", "tensor(float)").
			Output("out", "T").
			TypeConstraint("T", Int32).
			Inference(func(ctx InferenceContext) error {
				ctx.OutputType(0).ElemType = Int64
				return nil
			}),
		NewSchema("Panics", 1).
			Input("x", "T").
			Output("out", "T").
			TypeConstraint("T", Float).
			Inference(func(ctx InferenceContext) error {
				exceptions.Panicf("boom")
				return nil
			}),
		NewSchema("NoInference", 1).
			Input("x", "T").
			Output("out", "T").
			TypeConstraint("T", Float),
	).Build()
	require.NoError(t, err)
	return registry
}

func TestEngine(t *testing.T) {
	engine := NewEngine(testRegistry(t))
	floatType := func(values ...int64) *TensorType { return NewTensorType(Float, shape.FromValues(values...)) }

	t.Run("Resolve", func(t *testing.T) {
		node := &Node{OpType: "Copy", Inputs: []*TensorType{floatType(2, 3)}, NumOutputs: 2}
		require.NoError(t, engine.Infer(node, 2))
		require.Len(t, node.Outputs, 2)
		require.True(t, floatType(2, 3).Equal(node.Outputs[1]))

		// Copy-3 requires "name".
		node = &Node{OpType: "Copy", Inputs: []*TensorType{floatType(2, 3)}, NumOutputs: 1}
		err := engine.Infer(node, 3)
		require.ErrorIs(t, err, ErrStructural)
		require.Contains(t, err.Error(), "Copy-3")

		node.Attributes = map[string]*Attribute{"name": StringAttr("x")}
		require.NoError(t, engine.Infer(node, 3))

		node.Attributes["scale"] = FloatAttr(2)
		require.ErrorIs(t, engine.Infer(node, 3), ErrStructural)

		_, found := testRegistry(t).Resolve("Copy", 0)
		require.False(t, found)
		err = engine.Infer(&Node{OpType: "Unknown"}, 10)
		require.Equal(t, KindSchemaNotFound, KindOf(err))
	})

	t.Run("Arity", func(t *testing.T) {
		err := engine.Infer(&Node{OpType: "Copy", NumOutputs: 1}, 1)
		require.Equal(t, KindStructural, KindOf(err))

		err = engine.Infer(&Node{OpType: "Copy", Inputs: []*TensorType{nil}, NumOutputs: 1}, 1)
		require.Equal(t, KindStructural, KindOf(err))

		err = engine.Infer(&Node{OpType: "Copy", Inputs: []*TensorType{floatType(), floatType(), floatType()}, NumOutputs: 1}, 1)
		require.Equal(t, KindStructural, KindOf(err))

		// Absent optional input and zero variadic outputs are fine.
		node := &Node{OpType: "Copy", Inputs: []*TensorType{floatType(1), nil}}
		require.NoError(t, engine.Infer(node, 1))
		require.Empty(t, node.Outputs)
	})

	t.Run("TypeConstraints", func(t *testing.T) {
		err := engine.Infer(&Node{OpType: "Copy", Inputs: []*TensorType{NewTensorType(Int32, shape.Scalar())}, NumOutputs: 1}, 1)
		require.Equal(t, KindTypeConstraint, KindOf(err))

		// Same constraint, different types.
		err = engine.Infer(&Node{OpType: "Copy", Inputs: []*TensorType{floatType(), NewTensorType(Double, shape.Scalar())}, NumOutputs: 1}, 1)
		require.Equal(t, KindTypeConstraint, KindOf(err))

		// Undefined element types are not checked.
		node := &Node{OpType: "Copy", Inputs: []*TensorType{{Shape: shape.FromValues(3)}}, NumOutputs: 1}
		require.NoError(t, engine.Infer(node, 1))
		require.Equal(t, "undefined(3)", node.Outputs[0].String())

		// Wrongly inferred output types are caught, unless disabled.
		node = &Node{OpType: "ToInt", Inputs: []*TensorType{floatType(2)}, NumOutputs: 1}
		err = engine.Infer(node, 1)
		require.Equal(t, KindTypeConstraint, KindOf(err))
		require.Nil(t, node.Outputs)
		require.NoError(t, engine.WithConfig(EngineConfig{SkipOutputTypeCheck: true}).Infer(node, 1))
		require.Equal(t, Int64, node.Outputs[0].ElemType)
	})

	t.Run("WrongAttributeKind", func(t *testing.T) {
		node := &Node{
			OpType:     "Copy",
			Inputs:     []*TensorType{floatType(2)},
			Attributes: map[string]*Attribute{"name": IntAttr(1)},
			NumOutputs: 1,
		}
		require.Equal(t, KindStructural, KindOf(engine.Infer(node, 3)))
	})

	t.Run("Panics", func(t *testing.T) {
		node := &Node{OpType: "Panics", Inputs: []*TensorType{floatType(2)}, NumOutputs: 1}
		err := engine.Infer(node, 1)
		require.Error(t, err)
		require.Contains(t, err.Error(), "boom")
		require.Equal(t, KindOther, KindOf(err))
	})

	t.Run("NoInference", func(t *testing.T) {
		node := &Node{OpType: "NoInference", Inputs: []*TensorType{floatType(2)}, NumOutputs: 1}
		require.NoError(t, engine.Infer(node, 1))
		require.Nil(t, node.Outputs)
	})

	t.Run("MergeIntoExisting", func(t *testing.T) {
		node := &Node{
			OpType:  "Copy",
			Inputs:  []*TensorType{NewTensorType(Float, shape.Make(shape.Dim(2), shape.UnknownDim()))},
			Outputs: []*TensorType{NewTensorType(Undefined, shape.Make(shape.Sym("batch"), shape.Dim(3)))},
		}
		require.NoError(t, engine.Infer(node, 1))
		require.Equal(t, "float(2, 3)", node.Outputs[0].String())

		// A failed merge leaves the outputs untouched.
		node.Inputs[0] = floatType(4, 3)
		err := engine.Infer(node, 1)
		require.True(t, errors.Is(err, ErrShapeMismatch))
		require.Equal(t, "float(2, 3)", node.Outputs[0].String())

		// Re-inference with another parameter name keeps the resolved one.
		node = &Node{
			OpType:  "Copy",
			Inputs:  []*TensorType{NewTensorType(Float, shape.Make(shape.Sym("seq"), shape.Dim(3)))},
			Outputs: []*TensorType{NewTensorType(Float, shape.Make(shape.Sym("batch"), shape.Dim(3)))},
		}
		require.NoError(t, engine.Infer(node, 1))
		require.Equal(t, "float(batch, 3)", node.Outputs[0].String())
	})

	t.Run("NilArguments", func(t *testing.T) {
		require.Error(t, Infer(nil, nil))
	})
}
