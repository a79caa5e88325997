// Package togomlx contains conversion utilities from the inferred ONNX types to GoMLX.
package togomlx

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/pkg/errors"
)

// DType converts an ONNX element type to a GoMLX data type.
func DType(elemType onnx.ElementType) (dtypes.DType, error) {
	switch elemType {
	case onnx.Float:
		return dtypes.Float32, nil
	case onnx.Float16:
		return dtypes.Float16, nil
	case onnx.BFloat16:
		return dtypes.BFloat16, nil
	case onnx.Double:
		return dtypes.Float64, nil
	case onnx.Int32:
		return dtypes.Int32, nil
	case onnx.Int64:
		return dtypes.Int64, nil
	case onnx.Uint8:
		return dtypes.Uint8, nil
	case onnx.Int8:
		return dtypes.Int8, nil
	case onnx.Int16:
		return dtypes.Int16, nil
	case onnx.Uint16:
		return dtypes.Uint16, nil
	case onnx.Uint32:
		return dtypes.Uint32, nil
	case onnx.Uint64:
		return dtypes.Uint64, nil
	case onnx.Bool:
		return dtypes.Bool, nil
	case onnx.Complex64:
		return dtypes.Complex64, nil
	case onnx.Complex128:
		return dtypes.Complex128, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported/unknown ONNX element type %s", elemType)
	}
}

// Shape converts an inferred ONNX tensor type to a GoMLX shapes.Shape (it includes the dtype).
//
// Dimensions that are not known values (symbolic or unknown) are converted to -1, and the
// returned shape is dynamic. The rank and element type must be known.
func Shape(tt *onnx.TensorType) (shapes.Shape, error) {
	if tt == nil {
		return shapes.Shape{}, errors.New("ONNX tensor type is nil")
	}
	dtype, err := DType(tt.ElemType)
	if err != nil {
		return shapes.Shape{}, err
	}
	if !tt.Shape.IsRanked() {
		return shapes.Shape{}, errors.Errorf("tensor type %s has no known rank", tt)
	}
	dims := make([]int, tt.Shape.Rank())
	dynamic := false
	for axis, d := range tt.Shape.Dims() {
		if v, known := d.Value(); known {
			dims[axis] = int(v)
			continue
		}
		dims[axis] = -1
		dynamic = true
	}
	if dynamic {
		return shapes.MakeDynamic(dtype, dims...), nil
	}
	return shapes.Make(dtype, dims...), nil
}
