package onnx

import (
	"testing"

	"github.com/gomlx/onnx-shapeinfer/shape"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementType(t *testing.T) {
	require.Equal(t, "float", Float.String())
	require.Equal(t, "bfloat16", BFloat16.String())
	require.Equal(t, "ElementType(42)", ElementType(42).String())
	require.False(t, Undefined.IsDefined())
	require.True(t, Undefined.IsValid())
	require.False(t, ElementType(42).IsValid())

	for _, name := range []string{"float", "float32", " Float "} {
		elemType, err := ParseElementType(name)
		require.NoError(t, err, name)
		require.Equal(t, Float, elemType)
	}
	elemType, err := ParseElementType("float64")
	require.NoError(t, err)
	require.Equal(t, Double, elemType)
	_, err = ParseElementType("undefined")
	require.Error(t, err)

	elemType, err = parseTensorTypeString("tensor(int64)")
	require.NoError(t, err)
	require.Equal(t, Int64, elemType)
	for _, bad := range []string{"int64", "tensor(int64", "seq(tensor(int64))", "tensor(foo)"} {
		_, err = parseTensorTypeString(bad)
		require.Error(t, err, bad)
	}
}

func TestMergeTypes(t *testing.T) {
	floatType := func(s shape.Shape) *TensorType { return NewTensorType(Float, s) }

	merged, err := MergeTypes(nil, floatType(shape.FromValues(2, -1)))
	require.NoError(t, err)
	require.Equal(t, "float(2, ?)", merged.String())

	merged, err = MergeTypes(NewTensorType(Undefined, shape.Make(shape.Sym("n"), shape.Dim(3))), floatType(shape.FromValues(2, -1)))
	require.NoError(t, err)
	require.Equal(t, "float(2, 3)", merged.String())

	merged, err = MergeTypes(floatType(shape.FromValues(2)), &TensorType{})
	require.NoError(t, err)
	require.Equal(t, "float(2)", merged.String())

	merged, err = MergeTypes(floatType(shape.FromValues(2)), nil)
	require.NoError(t, err)
	require.Equal(t, "float(2)", merged.String())

	_, err = MergeTypes(floatType(shape.FromValues(2)), NewTensorType(Double, shape.Unranked()))
	require.Equal(t, KindTypeConstraint, KindOf(err))

	_, err = MergeTypes(floatType(shape.FromValues(2)), floatType(shape.FromValues(2, 1)))
	require.Equal(t, KindShapeMismatch, KindOf(err))

	// Conflicting parameters keep the existing one.
	merged, err = MergeTypes(floatType(shape.Make(shape.Sym("N"), shape.Dim(3))), floatType(shape.Make(shape.Sym("M"), shape.Sym("K"))))
	require.NoError(t, err)
	require.Equal(t, "float(N, 3)", merged.String())
	merged, err = MergeTypes(floatType(shape.Make(shape.UnknownDim(), shape.Sym("N"))), floatType(shape.Make(shape.Sym("M"), shape.UnknownDim())))
	require.NoError(t, err)
	require.Equal(t, "float(M, N)", merged.String())

	// The arguments are not modified.
	existing := floatType(shape.FromValues(-1))
	_, err = MergeTypes(existing, floatType(shape.FromValues(5)))
	require.NoError(t, err)
	require.Equal(t, "float(?)", existing.String())
}

func TestAttributes(t *testing.T) {
	schema := NewSchema("Op", 1).
		AttrDefault("alpha", FloatAttr(0.5)).
		AttrDefault("mode", StringAttr("constant")).
		Attr("axes", AttrInts, false).
		Attr("axis", AttrInt, false)
	node := &Node{Attributes: map[string]*Attribute{
		"axes": IntsAttr(0, 2),
		"mode": StringAttr("edge"),
		"axis": StringAttr("wrong"),
	}}
	ctx := newNodeContext(node, schema)

	alpha, err := GetFloat(ctx, "alpha", 0)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), alpha)

	mode, err := GetString(ctx, "mode", "")
	require.NoError(t, err)
	assert.Equal(t, "edge", mode)

	axes, found, err := GetInts(ctx, "axes")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int64{0, 2}, axes)

	_, found, err = GetInts(ctx, "perm")
	require.NoError(t, err)
	require.False(t, found)

	v, err := GetInt(ctx, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = GetInt(ctx, "axis", 0)
	require.ErrorIs(t, err, ErrStructural)
	_, _, err = GetInts(ctx, "mode")
	require.ErrorIs(t, err, ErrStructural)
	_, err = GetFloat(ctx, "mode", 0)
	require.ErrorIs(t, err, ErrStructural)
	_, err = GetString(ctx, "axes", "")
	require.ErrorIs(t, err, ErrStructural)

	require.Equal(t, "INTS", AttrInts.String())
	require.Equal(t, "AttributeKind(99)", AttributeKind(99).String())
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindNone, KindOf(nil))
	require.Equal(t, KindOther, KindOf(errors.New("other")))
	require.Equal(t, KindStructural, KindOf(errors.WithMessage(StructuralErrorf("x"), "context")))
	require.Equal(t, KindUnsupportedInput, KindOf(UnsupportedInputErrorf("x")))
	_, err := shape.Broadcast(shape.FromValues(2), shape.FromValues(3))
	require.Equal(t, KindBroadcast, KindOf(err))
	_, err = shape.Merge(shape.Dim(2), shape.Dim(3))
	require.Equal(t, KindShapeMismatch, KindOf(err))
	require.Equal(t, "ShapeMismatch", KindShapeMismatch.String())
}
