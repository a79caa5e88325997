package onnx

import (
	"fmt"

	"github.com/gomlx/onnx-shapeinfer/shape"
	"github.com/pkg/errors"
)

// TensorType describes the type of one input or output of a node: its element type and shape.
//
// An Undefined ElemType and an unranked Shape mean they were not (yet) inferred.
type TensorType struct {
	ElemType ElementType
	Shape    shape.Shape
}

// NewTensorType returns a TensorType with the given element type and shape.
func NewTensorType(elemType ElementType, s shape.Shape) *TensorType {
	return &TensorType{ElemType: elemType, Shape: s}
}

// HasShape returns whether tt is not nil and has a ranked shape.
func (tt *TensorType) HasShape() bool {
	return tt != nil && tt.Shape.IsRanked()
}

// Clone returns a copy of tt. Shapes have value semantics, so a shallow copy suffices.
func (tt *TensorType) Clone() *TensorType {
	if tt == nil {
		return nil
	}
	c := *tt
	return &c
}

// Equal returns whether both types hold the same element type and shape.
func (tt *TensorType) Equal(other *TensorType) bool {
	if tt == nil || other == nil {
		return tt == other
	}
	return tt.ElemType == other.ElemType && tt.Shape.Equal(other.Shape)
}

// String implements fmt.Stringer, e.g. "float(batch, 3)".
func (tt *TensorType) String() string {
	if tt == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s%s", tt.ElemType, tt.Shape)
}

// MergeTypes merges an inferred type into an existing one and returns the result.
//
// Element types must agree if both are defined. Shapes are merged with shape.MergeShapes, so known
// information in either is never lost. Unlike shape.Merge, two different parameters keep the existing
// one, so an already resolved dimension is never widened back to unknown. Either argument may be nil.
func MergeTypes(existing, inferred *TensorType) (*TensorType, error) {
	if existing == nil {
		return inferred.Clone(), nil
	}
	if inferred == nil {
		return existing.Clone(), nil
	}
	merged := &TensorType{ElemType: existing.ElemType}
	if inferred.ElemType.IsDefined() {
		if existing.ElemType.IsDefined() && existing.ElemType != inferred.ElemType {
			return nil, TypeConstraintErrorf("inferred element type %s differs from existing %s", inferred.ElemType, existing.ElemType)
		}
		merged.ElemType = inferred.ElemType
	}
	var err error
	merged.Shape, err = shape.MergeShapes(existing.Shape, inferred.Shape)
	if err != nil {
		return nil, errors.WithMessagef(err, "merging inferred shape %s into existing %s", inferred.Shape, existing.Shape)
	}
	if existing.Shape.IsRanked() {
		for axis := range merged.Shape.Rank() {
			if d := existing.Shape.Dim(axis); d.IsParam() && merged.Shape.Dim(axis).IsUnknown() {
				merged.Shape = merged.Shape.WithDim(axis, d)
			}
		}
	}
	return merged, nil
}
