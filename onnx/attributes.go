package onnx

import (
	"fmt"
)

// AttributeKind enumerates the types of values an Attribute can hold.
type AttributeKind int

const (
	AttrUndefined AttributeKind = iota
	AttrInt
	AttrFloat
	AttrString
	AttrInts
	AttrFloats
	AttrStrings
	AttrTensor
)

var attributeKindNames = [...]string{"UNDEFINED", "INT", "FLOAT", "STRING", "INTS", "FLOATS", "STRINGS", "TENSOR"}

// String implements fmt.Stringer, using the ONNX AttributeProto type names.
func (k AttributeKind) String() string {
	if k < 0 || int(k) >= len(attributeKindNames) {
		return fmt.Sprintf("AttributeKind(%d)", int(k))
	}
	return attributeKindNames[k]
}

// Attribute is a tagged union holding the value of a node attribute. Only the field matching Kind is used.
type Attribute struct {
	Kind    AttributeKind
	Int     int64
	Float   float32
	String  string
	Ints    []int64
	Floats  []float32
	Strings []string
	Tensor  *Tensor
}

// IntAttr creates an INT attribute.
func IntAttr(v int64) *Attribute { return &Attribute{Kind: AttrInt, Int: v} }

// FloatAttr creates a FLOAT attribute.
func FloatAttr(v float32) *Attribute { return &Attribute{Kind: AttrFloat, Float: v} }

// StringAttr creates a STRING attribute.
func StringAttr(v string) *Attribute { return &Attribute{Kind: AttrString, String: v} }

// IntsAttr creates an INTS attribute.
func IntsAttr(v ...int64) *Attribute { return &Attribute{Kind: AttrInts, Ints: v} }

// FloatsAttr creates a FLOATS attribute.
func FloatsAttr(v ...float32) *Attribute { return &Attribute{Kind: AttrFloats, Floats: v} }

// StringsAttr creates a STRINGS attribute.
func StringsAttr(v ...string) *Attribute { return &Attribute{Kind: AttrStrings, Strings: v} }

// TensorAttr creates a TENSOR attribute.
func TensorAttr(t *Tensor) *Attribute { return &Attribute{Kind: AttrTensor, Tensor: t} }

// AttributeDecl declares an attribute accepted by an operator schema.
type AttributeDecl struct {
	Name     string
	Kind     AttributeKind
	Required bool

	// Default value used when an optional attribute is absent. May be nil.
	Default *Attribute
}

// GetInt returns the value of an INT attribute, or defaultValue if absent.
//
// Schema-declared defaults are applied by the context, so defaultValue is only used when the schema
// declares none.
func GetInt(ctx InferenceContext, name string, defaultValue int64) (int64, error) {
	attr, found := ctx.Attribute(name)
	if !found {
		return defaultValue, nil
	}
	if attr.Kind != AttrInt {
		return 0, StructuralErrorf("attribute %q should be %s, got %s", name, AttrInt, attr.Kind)
	}
	return attr.Int, nil
}

// GetFloat returns the value of a FLOAT attribute, or defaultValue if absent.
func GetFloat(ctx InferenceContext, name string, defaultValue float32) (float32, error) {
	attr, found := ctx.Attribute(name)
	if !found {
		return defaultValue, nil
	}
	if attr.Kind != AttrFloat {
		return 0, StructuralErrorf("attribute %q should be %s, got %s", name, AttrFloat, attr.Kind)
	}
	return attr.Float, nil
}

// GetString returns the value of a STRING attribute, or defaultValue if absent.
func GetString(ctx InferenceContext, name string, defaultValue string) (string, error) {
	attr, found := ctx.Attribute(name)
	if !found {
		return defaultValue, nil
	}
	if attr.Kind != AttrString {
		return "", StructuralErrorf("attribute %q should be %s, got %s", name, AttrString, attr.Kind)
	}
	return attr.String, nil
}

// GetInts returns the value of an INTS attribute, and whether it was present.
func GetInts(ctx InferenceContext, name string) ([]int64, bool, error) {
	attr, found := ctx.Attribute(name)
	if !found {
		return nil, false, nil
	}
	if attr.Kind != AttrInts {
		return nil, false, StructuralErrorf("attribute %q should be %s, got %s", name, AttrInts, attr.Kind)
	}
	return attr.Ints, true, nil
}
