package propagate

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/onnx/defs"
	"github.com/gomlx/onnx-shapeinfer/shape"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGraph builds:
//
//	x(batch, 2, 3) -> Reshape[0, -1] -> r -> Transpose -> t -> Shape -> s
//	                                    r -> Unsqueeze[0] -> u
//	                                    r, r -> Concat[axis=1] -> c
//	                                    r -> Einsum (no schema) -> e -> Identity -> id
//	x -> Squeeze[1] (fails: axis 1 has length 2) -> sq -> Identity -> id2
//
// Nodes are listed out of order on purpose.
func testGraph() *Graph {
	return &Graph{
		Opset: 11,
		Inputs: map[string]*onnx.TensorType{
			"x": onnx.NewTensorType(onnx.Float, shape.Make(shape.Sym("batch"), shape.Dim(2), shape.Dim(3))),
		},
		Initializers: map[string]*onnx.Tensor{
			"target": onnx.Int64Tensor([]int64{0, -1}, 2),
		},
		Nodes: []*Node{
			{Name: "shape", OpType: "Shape", Inputs: []string{"t"}, Outputs: []string{"s"}},
			{Name: "identity", OpType: "Identity", Inputs: []string{"e"}, Outputs: []string{"id"}},
			{Name: "transpose", OpType: "Transpose", Inputs: []string{"r"}, Outputs: []string{"t"}},
			{Name: "reshape", OpType: "Reshape", Inputs: []string{"x", "target"}, Outputs: []string{"r"}},
			{
				Name: "unsqueeze", OpType: "Unsqueeze", Inputs: []string{"r"}, Outputs: []string{"u"},
				Attributes: map[string]*onnx.Attribute{"axes": onnx.IntsAttr(0)},
			},
			{
				Name: "concat", OpType: "Concat", Inputs: []string{"r", "r"}, Outputs: []string{"c"},
				Attributes: map[string]*onnx.Attribute{"axis": onnx.IntAttr(1)},
			},
			{Name: "einsum", OpType: "Einsum", Inputs: []string{"r"}, Outputs: []string{"e"}},
			{
				Name: "squeeze", OpType: "Squeeze", Inputs: []string{"x"}, Outputs: []string{"sq"},
				Attributes: map[string]*onnx.Attribute{"axes": onnx.IntsAttr(1)},
			},
			{Name: "identity2", OpType: "Identity", Inputs: []string{"sq"}, Outputs: []string{"id2"}},
		},
	}
}

func requireType(t *testing.T, r *Resolver, name, want string) {
	t.Helper()
	tt, found := r.Type(name)
	require.True(t, found, "no type for %q", name)
	require.Equal(t, want, tt.String(), "type of %q", name)
}

func TestSortedLevels(t *testing.T) {
	levels, err := testGraph().sortedLevels()
	require.NoError(t, err)
	var names [][]string
	for _, level := range levels {
		var levelNames []string
		for _, node := range level {
			levelNames = append(levelNames, node.key())
		}
		names = append(names, levelNames)
	}
	fmt.Printf("levels: %v\n", names)
	require.Equal(t, [][]string{
		{"reshape", "squeeze"},
		{"transpose", "unsqueeze", "concat", "einsum", "identity2"},
		{"shape", "identity"},
	}, names)

	t.Run("Cycle", func(t *testing.T) {
		g := &Graph{Nodes: []*Node{
			{Name: "input", OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{"y"}},
			{Name: "a", OpType: "Identity", Inputs: []string{"b"}, Outputs: []string{"a"}},
			{Name: "b", OpType: "Concat", Inputs: []string{"a", "y"}, Outputs: []string{"b"}},
		}}
		_, err := g.sortedLevels()
		require.ErrorContains(t, err, "cycle")
		require.ErrorContains(t, err, "a, b")
	})

	t.Run("DuplicateOutput", func(t *testing.T) {
		g := &Graph{Nodes: []*Node{
			{OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{"y"}},
			{OpType: "Shape", Inputs: []string{"x"}, Outputs: []string{"y"}},
		}}
		_, err := g.sortedLevels()
		require.ErrorContains(t, err, `"Identity:y"`)
	})
}

func TestPropagate(t *testing.T) {
	registry := must.M1(defs.NewRegistry())

	t.Run("Types", func(t *testing.T) {
		r := NewResolver(testGraph(), registry)
		require.NoError(t, r.Propagate(context.Background()))

		requireType(t, r, "x", "float(batch, 2, 3)")
		requireType(t, r, "target", "int64(2)")
		requireType(t, r, "r", "float(batch, 6)")
		requireType(t, r, "t", "float(6, batch)")
		requireType(t, r, "s", "int64(2)")
		requireType(t, r, "u", "float(1, batch, 6)")
		requireType(t, r, "c", "float(batch, 12)")

		// Einsum has no schema: its output stays unknown, but its consumer still runs.
		_, found := r.Type("e")
		require.False(t, found)
		require.Equal(t, []string{"einsum"}, r.Skipped())
		id, found := r.Type("id")
		require.True(t, found)
		require.False(t, id.ElemType.IsDefined())
		require.False(t, id.HasShape())

		// Squeeze failure is recorded, and doesn't stop the propagation.
		failures := r.Failures()
		require.Len(t, failures, 1)
		require.Equal(t, onnx.KindStructural, onnx.KindOf(failures["squeeze"]))
		_, found = r.Type("sq")
		require.False(t, found)
		_, found = r.Type("id2")
		require.True(t, found)

		// Only "s" is fully resolved.
		require.Equal(t, []string{"id", "t", "r", "u", "c", "e", "sq", "id2"}, r.Unresolved())

		summary := r.String()
		fmt.Println(summary)
		assert.Contains(t, summary, "# failures:\t1")
		assert.Contains(t, summary, "Skipped (no schema):\t[einsum]")
		assert.Contains(t, summary, "# unresolved outputs:\t8")
	})

	t.Run("GoMLXShape", func(t *testing.T) {
		r := NewResolver(testGraph(), registry)
		require.NoError(t, r.Propagate(context.Background()))

		s := must.M1(r.GoMLXShape("s"))
		require.True(t, s.Equal(shapes.Make(dtypes.Int64, 2)), "got %s", s)
		s = must.M1(r.GoMLXShape("c"))
		require.Equal(t, dtypes.Float32, s.DType)
		require.Equal(t, []int{-1, 12}, s.Dimensions)

		_, err := r.GoMLXShape("id")
		require.Error(t, err)
		_, err = r.GoMLXShape("missing")
		require.Error(t, err)
	})

	t.Run("Parallelism", func(t *testing.T) {
		sequential := NewResolver(testGraph(), registry).WithParallelism(1)
		require.NoError(t, sequential.Propagate(context.Background()))
		parallel := NewResolver(testGraph(), registry).WithParallelism(8)
		require.NoError(t, parallel.Propagate(context.Background()))
		for _, name := range []string{"r", "t", "s", "u", "c", "id", "id2"} {
			want, _ := sequential.Type(name)
			got, _ := parallel.Type(name)
			require.True(t, want.Equal(got), "%q: %s != %s", name, want, got)
		}

		// Propagating again yields the same results.
		require.NoError(t, parallel.Propagate(context.Background()))
		requireType(t, parallel, "c", "float(batch, 12)")
		require.Len(t, parallel.Failures(), 1)
	})

	t.Run("StopOnError", func(t *testing.T) {
		r := NewResolver(testGraph(), registry).WithStopOnError(true)
		err := r.Propagate(context.Background())
		require.Error(t, err)
		require.Equal(t, onnx.KindStructural, onnx.KindOf(err))
		require.Contains(t, err.Error(), "squeeze")
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewResolver(testGraph(), registry).Propagate(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("InputMismatchesInitializer", func(t *testing.T) {
		g := testGraph()
		g.Inputs["target"] = onnx.NewTensorType(onnx.Int32, shape.FromValues(2))
		err := NewResolver(g, registry).Propagate(context.Background())
		require.Equal(t, onnx.KindTypeConstraint, onnx.KindOf(err))
	})

	t.Run("ExternalData", func(t *testing.T) {
		baseDir := t.TempDir()
		data := make([]byte, 16)
		binary.LittleEndian.PutUint64(data, 0)
		binary.LittleEndian.PutUint64(data[8:], uint64(math.MaxUint64)) // -1
		require.NoError(t, os.WriteFile(filepath.Join(baseDir, "target.bin"), data, 0o644))
		g := testGraph()
		g.Initializers["target"] = &onnx.Tensor{
			Name:     "target",
			ElemType: onnx.Int64,
			Dims:     []int64{2},
			External: &onnx.ExternalData{Location: "target.bin"},
		}

		// Without a reader the target shape is not a constant: only the output rank is known.
		r := NewResolver(g, registry)
		require.NoError(t, r.Propagate(context.Background()))
		requireType(t, r, "r", "float(?, ?)")

		reader := onnx.NewExternalDataReader(baseDir)
		defer func() { require.NoError(t, reader.Close()) }()
		r = NewResolver(g, registry).WithExternalData(reader)
		require.NoError(t, r.Propagate(context.Background()))
		requireType(t, r, "r", "float(batch, 6)")
	})

	t.Run("NotPropagated", func(t *testing.T) {
		r := NewResolver(testGraph(), registry)
		require.Contains(t, r.String(), "not propagated")
		require.Error(t, NewResolver(nil, registry).Propagate(context.Background()))
	})
}
