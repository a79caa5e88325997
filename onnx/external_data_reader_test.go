package onnx

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExternalDataReader(t *testing.T) {
	baseDir := t.TempDir()
	data := make([]byte, 4+3*8)
	for i, v := range []int64{2, -1, 4} {
		binary.LittleEndian.PutUint64(data[4+i*8:], uint64(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "weights.bin"), data, 0o644))

	external := &Tensor{
		Name:     "target",
		ElemType: Int64,
		Dims:     []int64{3},
		External: &ExternalData{Location: "weights.bin", Offset: 4},
	}
	_, err := external.Int64s()
	require.ErrorIs(t, err, ErrUnsupportedInput)

	reader := NewExternalDataReader(baseDir)
	loaded, err := reader.Load(external)
	require.NoError(t, err)
	values, err := loaded.Int64s()
	require.NoError(t, err)
	require.Equal(t, []int64{2, -1, 4}, values)
	require.Empty(t, external.RawData, "Load must not modify its argument")

	loaded, err = LoadDirect(baseDir, external)
	require.NoError(t, err)
	values, err = loaded.Int64s()
	require.NoError(t, err)
	require.Equal(t, []int64{2, -1, 4}, values)

	// Tensors without external data are returned as is.
	inline := Int64Tensor([]int64{1})
	same, err := reader.Load(inline)
	require.NoError(t, err)
	require.Same(t, inline, same)

	// Errors.
	_, err = reader.Load(&Tensor{ElemType: Int64, Dims: []int64{2}, External: &ExternalData{Location: "weights.bin", Length: 8}})
	require.ErrorContains(t, err, "doesn't match")
	_, err = reader.Load(&Tensor{ElemType: Int64, Dims: []int64{4}, External: &ExternalData{Location: "weights.bin", Offset: 4}})
	require.Error(t, err)
	_, err = reader.Load(&Tensor{ElemType: String, Dims: []int64{1}, External: &ExternalData{Location: "weights.bin"}})
	require.ErrorIs(t, err, ErrUnsupportedInput)
	_, err = reader.Load(&Tensor{ElemType: Float, Dims: []int64{1}, External: &ExternalData{Location: "missing.bin"}})
	require.Error(t, err)
	_, err = NewExternalDataReader("").Load(external)
	require.Error(t, err)

	require.NoError(t, reader.Close())
	_, err = reader.Load(external)
	require.Error(t, err)
}
