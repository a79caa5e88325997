package onnx

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/onnx-shapeinfer/shape"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Tensor is a constant tensor value, like an ONNX initializer or a "Constant" node output.
//
// It mirrors the storage of the ONNX TensorProto: data is either in one of the typed slices, or
// little-endian encoded in RawData.
type Tensor struct {
	Name     string
	ElemType ElementType
	Dims     []int64

	Int32Data  []int32 // Also used by ONNX for int8/int16/uint8/uint16/bool/float16 values.
	Int64Data  []int64
	FloatData  []float32
	DoubleData []float64
	RawData    []byte

	// External is set if the data is stored in a separate file, see ExternalDataReader.
	// It must be loaded into RawData before the values can be read.
	External *ExternalData
}

// Shape returns the (fully known) shape of the tensor.
func (t *Tensor) Shape() shape.Shape {
	return shape.FromValues(t.Dims...)
}

// Rank returns the number of axes of the tensor.
func (t *Tensor) Rank() int {
	return len(t.Dims)
}

// Size returns the number of elements declared by Dims.
func (t *Tensor) Size() int {
	size := 1
	for _, d := range t.Dims {
		size *= int(d)
	}
	return size
}

// checkLoaded returns an error if the tensor is nil or its external data was not loaded.
func (t *Tensor) checkLoaded() error {
	if t == nil {
		return errors.New("nil tensor")
	}
	if t.External != nil && len(t.RawData) == 0 && t.Size() > 0 {
		return UnsupportedInputErrorf("tensor %q: external data in %q not loaded", t.Name, t.External.Location)
	}
	return nil
}

// Int64s returns the values of an int32 or int64 tensor.
//
// Other element types return an error wrapping ErrUnsupportedInput.
func (t *Tensor) Int64s() ([]int64, error) {
	if err := t.checkLoaded(); err != nil {
		return nil, err
	}
	switch t.ElemType {
	case Int64:
		if len(t.RawData) > 0 {
			if len(t.RawData)%8 != 0 {
				return nil, UnsupportedInputErrorf("tensor %q: raw data length %d is not a multiple of 8", t.Name, len(t.RawData))
			}
			result := make([]int64, len(t.RawData)/8)
			for i := range result {
				result[i] = int64(binary.LittleEndian.Uint64(t.RawData[i*8:]))
			}
			return result, nil
		}
		result := make([]int64, len(t.Int64Data))
		copy(result, t.Int64Data)
		return result, nil

	case Int32:
		if len(t.RawData) > 0 {
			if len(t.RawData)%4 != 0 {
				return nil, UnsupportedInputErrorf("tensor %q: raw data length %d is not a multiple of 4", t.Name, len(t.RawData))
			}
			result := make([]int64, len(t.RawData)/4)
			for i := range result {
				result[i] = int64(int32(binary.LittleEndian.Uint32(t.RawData[i*4:])))
			}
			return result, nil
		}
		result := make([]int64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			result[i] = int64(v)
		}
		return result, nil

	default:
		return nil, UnsupportedInputErrorf("tensor %q has element type %s, only int32 or int64 are supported", t.Name, t.ElemType)
	}
}

// Float32s returns the values of a float16, float or double tensor converted to float32.
//
// Other element types return an error wrapping ErrUnsupportedInput.
func (t *Tensor) Float32s() ([]float32, error) {
	if err := t.checkLoaded(); err != nil {
		return nil, err
	}
	switch t.ElemType {
	case Float:
		if len(t.RawData) > 0 {
			if len(t.RawData)%4 != 0 {
				return nil, UnsupportedInputErrorf("tensor %q: raw data length %d is not a multiple of 4", t.Name, len(t.RawData))
			}
			result := make([]float32, len(t.RawData)/4)
			for i := range result {
				result[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.RawData[i*4:]))
			}
			return result, nil
		}
		result := make([]float32, len(t.FloatData))
		copy(result, t.FloatData)
		return result, nil

	case Double:
		if len(t.RawData) > 0 {
			if len(t.RawData)%8 != 0 {
				return nil, UnsupportedInputErrorf("tensor %q: raw data length %d is not a multiple of 8", t.Name, len(t.RawData))
			}
			result := make([]float32, len(t.RawData)/8)
			for i := range result {
				result[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(t.RawData[i*8:])))
			}
			return result, nil
		}
		result := make([]float32, len(t.DoubleData))
		for i, v := range t.DoubleData {
			result[i] = float32(v)
		}
		return result, nil

	case Float16:
		// float16 values are stored as raw 16 bits, either in RawData or one per entry of Int32Data.
		if len(t.RawData) > 0 {
			if len(t.RawData)%2 != 0 {
				return nil, UnsupportedInputErrorf("tensor %q: raw data length %d is not a multiple of 2", t.Name, len(t.RawData))
			}
			result := make([]float32, len(t.RawData)/2)
			for i := range result {
				result[i] = float16.Frombits(binary.LittleEndian.Uint16(t.RawData[i*2:])).Float32()
			}
			return result, nil
		}
		result := make([]float32, len(t.Int32Data))
		for i, v := range t.Int32Data {
			result[i] = float16.Frombits(uint16(v)).Float32()
		}
		return result, nil

	default:
		return nil, UnsupportedInputErrorf("tensor %q has element type %s, only float16, float or double are supported", t.Name, t.ElemType)
	}
}

// Int64Tensor creates a constant int64 tensor with the given values. If dims is nil, a 1-D tensor is created.
func Int64Tensor(values []int64, dims ...int64) *Tensor {
	if dims == nil {
		dims = []int64{int64(len(values))}
	}
	return &Tensor{ElemType: Int64, Dims: dims, Int64Data: values}
}

// Int32Tensor creates a constant 1-D int32 tensor with the given values.
func Int32Tensor(values ...int32) *Tensor {
	return &Tensor{ElemType: Int32, Dims: []int64{int64(len(values))}, Int32Data: values}
}

// FloatTensor creates a constant 1-D float tensor with the given values.
func FloatTensor(values ...float32) *Tensor {
	return &Tensor{ElemType: Float, Dims: []int64{int64(len(values))}, FloatData: values}
}

// Type returns the TensorType of the constant tensor.
func (t *Tensor) Type() *TensorType {
	return &TensorType{ElemType: t.ElemType, Shape: t.Shape()}
}
