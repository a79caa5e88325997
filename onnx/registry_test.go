package onnx

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuilder(t *testing.T) {
	t.Run("Resolve", func(t *testing.T) {
		b := NewRegistryBuilder()
		for _, version := range []int{1, 5, 13} {
			b.Register(NewSchema("Op", version).Input("x", "tensor(float)").Output("y", "tensor(float)"))
		}
		registry, err := b.Build()
		require.NoError(t, err)
		require.Equal(t, 3, registry.Len())
		require.Equal(t, []int{1, 5, 13}, registry.Versions("Op"))

		testFn := func(opset, want int) {
			schema, found := registry.Resolve("Op", opset)
			if want == 0 {
				require.False(t, found, "opset %d", opset)
				return
			}
			require.True(t, found, "opset %d", opset)
			require.Equal(t, want, schema.Version(), "opset %d", opset)
		}
		testFn(0, 0)
		testFn(1, 1)
		testFn(4, 1)
		testFn(5, 5)
		testFn(12, 5)
		testFn(20, 13)

		_, found := registry.Lookup("Op", 4)
		require.False(t, found)
		schema, found := registry.Lookup("Op", 5)
		require.True(t, found)
		require.Equal(t, "Op-5", schema.String())
	})

	t.Run("Errors", func(t *testing.T) {
		b := NewRegistryBuilder().Register(
			NewSchema("Op", 1).Input("x", "T"), // T is not declared.
			NewSchema("Dup", 1),
			NewSchema("Dup", 1),
			NewSchema("", 0),
			NewSchema("Variadic", 1).VariadicInput("xs", "tensor(int64)").Input("y", "tensor(int64)"),
			NewSchema("Attrs", 1).Attr("a", AttrInt, false).AttrDefault("a", IntAttr(1)),
			NewSchema("Empty", 1).TypeConstraint("T"),
		)
		_, err := b.Build()
		require.Error(t, err)
		msg := err.Error()
		for _, want := range []string{
			`parameter "x"`, "Dup-1 registered twice", "operator name cannot be empty", "version must be >= 1",
			"declared after variadic", `attribute "a" declared twice`, `type constraint "T" allows no types`,
		} {
			require.Contains(t, msg, want)
		}

		err = exceptions.TryCatch[error](func() { b.MustBuild() })
		require.Error(t, err)
	})

	t.Run("FrozenAfterRegistration", func(t *testing.T) {
		schema := NewSchema("Op", 1).Input("x", "tensor(float)")
		registry, err := NewRegistryBuilder().Register(schema).Build()
		require.NoError(t, err)
		schema.Input("y", "tensor(float)")
		require.Len(t, schema.Inputs(), 1)

		// A frozen schema can't be registered again.
		_, err = NewRegistryBuilder().Register(schema).Build()
		require.Error(t, err)
		require.Equal(t, 1, registry.Len())
	})

	t.Run("Schemas", func(t *testing.T) {
		registry := NewRegistryBuilder().Register(
			NewSchema("B", 2), NewSchema("A", 7), NewSchema("B", 1),
		).MustBuild()
		var names []string
		for _, s := range registry.Schemas() {
			names = append(names, s.String())
		}
		require.Equal(t, []string{"A-7", "B-1", "B-2"}, names)
	})
}

func TestSchema(t *testing.T) {
	s := NewSchema("Op", 3).
		SetDomain("ai.test").
		AttrDefault("axis", IntAttr(-1)).
		Attr("perm", AttrInts, false).
		Input("x", "T").
		OptionalInput("y", "tensor(int64)").
		Output("z", "T").
		TypeConstraint("T", Float, Double)
	_, err := NewRegistryBuilder().Register(s).Build()
	require.NoError(t, err)

	require.Equal(t, "ai.test.Op-3", s.String())
	require.Equal(t, []string{"axis", "perm"}, s.Attributes())
	require.Equal(t, int64(-1), s.AttributeDecl("axis").Default.Int)
	require.Nil(t, s.AttributeDecl("missing"))
	require.Same(t, s.TypeConstraintByName("T"), s.Inputs()[0].Constraint)
	require.Equal(t, []ElementType{Int64}, s.Inputs()[1].Constraint.Allowed)
	require.Equal(t, Optional, s.Inputs()[1].Arity)

	minCount, maxCount := arityRange(s.Inputs())
	require.Equal(t, 1, minCount)
	require.Equal(t, 2, maxCount)
	require.Nil(t, paramFor(s.Inputs(), 2))
}
