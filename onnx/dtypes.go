package onnx

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ElementType is the scalar type of the elements of a tensor.
//
// Values are numbered as ONNX TensorProto.DataType, so they can be converted to/from the protos directly.
type ElementType int32

const (
	Undefined  ElementType = 0
	Float      ElementType = 1
	Uint8      ElementType = 2
	Int8       ElementType = 3
	Uint16     ElementType = 4
	Int16      ElementType = 5
	Int32      ElementType = 6
	Int64      ElementType = 7
	String     ElementType = 8
	Bool       ElementType = 9
	Float16    ElementType = 10
	Double     ElementType = 11
	Uint32     ElementType = 12
	Uint64     ElementType = 13
	Complex64  ElementType = 14
	Complex128 ElementType = 15
	BFloat16   ElementType = 16
)

var elementTypeNames = map[ElementType]string{
	Undefined:  "undefined",
	Float:      "float",
	Uint8:      "uint8",
	Int8:       "int8",
	Uint16:     "uint16",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	String:     "string",
	Bool:       "bool",
	Float16:    "float16",
	Double:     "double",
	Uint32:     "uint32",
	Uint64:     "uint64",
	Complex64:  "complex64",
	Complex128: "complex128",
	BFloat16:   "bfloat16",
}

// String returns the ONNX name of the type, as used in "tensor(<name>)" type strings.
func (t ElementType) String() string {
	if name, found := elementTypeNames[t]; found {
		return name
	}
	return "ElementType(" + strconv.Itoa(int(t)) + ")"
}

// IsDefined returns whether the element type has been set.
func (t ElementType) IsDefined() bool { return t != Undefined }

// IsValid returns whether t is one of the known element types, including Undefined.
func (t ElementType) IsValid() bool {
	_, found := elementTypeNames[t]
	return found
}

// ParseElementType converts an ONNX element type name ("float", "int64", ...) to an ElementType.
// For convenience "float32" and "float64" are accepted as aliases of "float" and "double".
func ParseElementType(name string) (ElementType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "float32":
		return Float, nil
	case "float64":
		return Double, nil
	}
	for t, tName := range elementTypeNames {
		if t != Undefined && tName == name {
			return t, nil
		}
	}
	return Undefined, errors.Errorf("unknown ONNX element type %q", name)
}

// parseTensorTypeString parses type strings like "tensor(int64)".
func parseTensorTypeString(typeStr string) (ElementType, error) {
	inner, found := strings.CutPrefix(typeStr, "tensor(")
	if !found || !strings.HasSuffix(inner, ")") {
		return Undefined, errors.Errorf("type string %q is not of the form \"tensor(<type>)\"", typeStr)
	}
	return ParseElementType(strings.TrimSuffix(inner, ")"))
}

// AllTensorTypes returns every element type a tensor can hold.
func AllTensorTypes() []ElementType {
	return []ElementType{
		Uint8, Uint16, Uint32, Uint64, Int8, Int16, Int32, Int64,
		Float16, Float, Double, String, Bool, Complex64, Complex128,
	}
}

// AllNumericTypes returns the integer and floating point element types.
func AllNumericTypes() []ElementType {
	return []ElementType{
		Uint8, Uint16, Uint32, Uint64, Int8, Int16, Int32, Int64,
		Float16, Float, Double,
	}
}

// FloatTypes returns the floating point element types.
func FloatTypes() []ElementType {
	return []ElementType{Float16, Float, Double}
}

// IndexTypes returns the element types accepted for indices.
func IndexTypes() []ElementType {
	return []ElementType{Int32, Int64}
}
