package onnx

import (
	"github.com/gomlx/onnx-shapeinfer/shape"
	"github.com/pkg/errors"
)

// Sentinel errors classifying inference failures. Failures returned by this package wrap one of
// them, so they can be tested with errors.Is, or classified with KindOf.
var (
	// ErrStructural: wrong arity, missing or mistyped attribute, invalid or duplicate axes, wrong fixed rank.
	ErrStructural = errors.New("structural error")

	// ErrTypeConstraint: an element type doesn't belong to its declared type constraint.
	ErrTypeConstraint = errors.New("type constraint violation")

	// ErrShapeMismatch: conflicting known dimensions or ranks.
	ErrShapeMismatch = shape.ErrMismatch

	// ErrBroadcast: shapes that can't be broadcast together.
	ErrBroadcast = shape.ErrBroadcast

	// ErrUnsupportedInput: a constant input needed for inference is not in a supported encoding.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrSchemaNotFound: no schema registered for the operator name and version.
	ErrSchemaNotFound = errors.New("schema not found")
)

// ErrorKind classifies an inference error.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindStructural
	KindTypeConstraint
	KindShapeMismatch
	KindBroadcast
	KindUnsupportedInput
	KindSchemaNotFound
	KindOther
)

var errorKindNames = [...]string{"None", "Structural", "TypeConstraint", "ShapeMismatch", "Broadcast",
	"UnsupportedInput", "SchemaNotFound", "Other"}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return "Invalid"
	}
	return errorKindNames[k]
}

// KindOf returns the classification of err. It returns KindNone for a nil error, and KindOther for
// errors not wrapping any of the sentinel errors.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStructural):
		return KindStructural
	case errors.Is(err, ErrTypeConstraint):
		return KindTypeConstraint
	case errors.Is(err, ErrShapeMismatch):
		return KindShapeMismatch
	case errors.Is(err, ErrBroadcast):
		return KindBroadcast
	case errors.Is(err, ErrUnsupportedInput):
		return KindUnsupportedInput
	case errors.Is(err, ErrSchemaNotFound):
		return KindSchemaNotFound
	default:
		return KindOther
	}
}

// StructuralErrorf returns an error wrapping ErrStructural.
func StructuralErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrStructural, format, args...)
}

// TypeConstraintErrorf returns an error wrapping ErrTypeConstraint.
func TypeConstraintErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrTypeConstraint, format, args...)
}

// ShapeMismatchErrorf returns an error wrapping ErrShapeMismatch.
func ShapeMismatchErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrShapeMismatch, format, args...)
}

// UnsupportedInputErrorf returns an error wrapping ErrUnsupportedInput.
func UnsupportedInputErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupportedInput, format, args...)
}
