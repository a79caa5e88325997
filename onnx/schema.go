package onnx

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// InferenceFunction computes output types and shapes of a node from its inputs and attributes.
//
// It must be pure: it only reads the context and writes its output slots. Missing information (unknown
// shapes, non-constant inputs) is not an error: the function should simply infer less. Errors are
// reserved for violations of the operator contract.
type InferenceFunction func(ctx InferenceContext) error

// Arity of a formal input or output parameter.
type Arity int

const (
	// Single parameters must be present exactly once.
	Single Arity = iota

	// Optional parameters may be absent.
	Optional

	// Variadic parameters take zero or more values. Only the last parameter can be variadic.
	Variadic
)

// String implements fmt.Stringer.
func (a Arity) String() string {
	switch a {
	case Single:
		return "single"
	case Optional:
		return "optional"
	case Variadic:
		return "variadic"
	default:
		return fmt.Sprintf("Arity(%d)", int(a))
	}
}

// FormalParameter declares one input or output slot of an operator.
type FormalParameter struct {
	Name string

	// TypeStr is either the name of a type constraint of the schema (e.g. "T") or a literal type
	// string like "tensor(int64)".
	TypeStr string
	Arity   Arity

	// Constraint resolved from TypeStr when the schema is finalized.
	Constraint *TypeConstraint
}

// TypeConstraint is a named set of allowed element types.
type TypeConstraint struct {
	Name    string
	Allowed []ElementType
}

// Allows returns whether the element type is in the constraint set.
func (tc *TypeConstraint) Allows(t ElementType) bool {
	return slices.Contains(tc.Allowed, t)
}

// OpSchema is the versioned contract of one operator: its attributes, inputs, outputs, type constraints
// and inference function.
//
// Each (name, version) is an independent record: there is no inheritance between versions.
// Schemas are created with NewSchema and are read-only once registered.
type OpSchema struct {
	name    string
	domain  string
	version int

	attributes      map[string]*AttributeDecl
	inputs, outputs []*FormalParameter
	constraints     map[string]*TypeConstraint
	inference       InferenceFunction

	// err accumulates errors while building the schema. They are reported at registration.
	err       error
	finalized bool
}

// NewSchema starts the definition of the schema for the operator name at the given version.
// Use the chained methods to declare attributes, inputs, outputs and constraints.
//
// Example:
//
//	onnx.NewSchema("Reshape", 5).
//		Input("data", "T").
//		Input("shape", "tensor(int64)").
//		Output("reshaped", "T").
//		TypeConstraint("T", onnx.AllTensorTypes()...).
//		Inference(inferReshape)
func NewSchema(name string, version int) *OpSchema {
	s := &OpSchema{
		name:        name,
		version:     version,
		attributes:  make(map[string]*AttributeDecl),
		constraints: make(map[string]*TypeConstraint),
	}
	if name == "" {
		s.addErrorf("operator name cannot be empty")
	}
	if version < 1 {
		s.addErrorf("version must be >= 1, got %d", version)
	}
	return s
}

// Name of the operator.
func (s *OpSchema) Name() string { return s.name }

// Domain of the operator. Empty for the default ONNX domain.
func (s *OpSchema) Domain() string { return s.domain }

// Version is the operator set version that introduced this definition.
func (s *OpSchema) Version() int { return s.version }

// Inputs returns the formal input parameters.
func (s *OpSchema) Inputs() []*FormalParameter { return s.inputs }

// Outputs returns the formal output parameters.
func (s *OpSchema) Outputs() []*FormalParameter { return s.outputs }

// AttributeDecl returns the declaration of the attribute, or nil if it is not declared.
func (s *OpSchema) AttributeDecl(name string) *AttributeDecl { return s.attributes[name] }

// Attributes returns the declared attribute names, sorted.
func (s *OpSchema) Attributes() []string {
	names := make([]string, 0, len(s.attributes))
	for name := range s.attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TypeConstraintByName returns the named type constraint, or nil.
func (s *OpSchema) TypeConstraintByName(name string) *TypeConstraint { return s.constraints[name] }

// InferenceFunction returns the shape inference function. It may be nil if the operator has none.
func (s *OpSchema) InferenceFunction() InferenceFunction { return s.inference }

// String implements fmt.Stringer, e.g. "Reshape-5".
func (s *OpSchema) String() string {
	if s.domain != "" {
		return fmt.Sprintf("%s.%s-%d", s.domain, s.name, s.version)
	}
	return fmt.Sprintf("%s-%d", s.name, s.version)
}

func (s *OpSchema) addErrorf(format string, args ...any) {
	s.err = multierr.Append(s.err, errors.Errorf("schema %s-%d: "+format, append([]any{s.name, s.version}, args...)...))
}

func (s *OpSchema) checkMutable() bool {
	if s.finalized {
		s.addErrorf("schema modified after registration")
		return false
	}
	return true
}

// SetDomain sets the operator domain. The default ONNX domain is "".
func (s *OpSchema) SetDomain(domain string) *OpSchema {
	if s.checkMutable() {
		s.domain = domain
	}
	return s
}

// Attr declares an attribute. Required attributes must be set in every node, optional ones may be absent.
func (s *OpSchema) Attr(name string, kind AttributeKind, required bool) *OpSchema {
	if !s.checkMutable() {
		return s
	}
	if _, found := s.attributes[name]; found {
		s.addErrorf("attribute %q declared twice", name)
		return s
	}
	s.attributes[name] = &AttributeDecl{Name: name, Kind: kind, Required: required}
	return s
}

// AttrDefault declares an optional attribute with a default value, used when the node doesn't set it.
func (s *OpSchema) AttrDefault(name string, defaultValue *Attribute) *OpSchema {
	if !s.checkMutable() {
		return s
	}
	if defaultValue == nil {
		s.addErrorf("attribute %q declared with a nil default", name)
		return s
	}
	if _, found := s.attributes[name]; found {
		s.addErrorf("attribute %q declared twice", name)
		return s
	}
	s.attributes[name] = &AttributeDecl{Name: name, Kind: defaultValue.Kind, Default: defaultValue}
	return s
}

func (s *OpSchema) addParam(params *[]*FormalParameter, kind, name, typeStr string, arity Arity) *OpSchema {
	if !s.checkMutable() {
		return s
	}
	if n := len(*params); n > 0 && (*params)[n-1].Arity == Variadic {
		s.addErrorf("%s %q declared after variadic %s %q", kind, name, kind, (*params)[n-1].Name)
	}
	*params = append(*params, &FormalParameter{Name: name, TypeStr: typeStr, Arity: arity})
	return s
}

// Input declares the next required input.
func (s *OpSchema) Input(name, typeStr string) *OpSchema {
	return s.addParam(&s.inputs, "input", name, typeStr, Single)
}

// OptionalInput declares the next input as optional.
func (s *OpSchema) OptionalInput(name, typeStr string) *OpSchema {
	return s.addParam(&s.inputs, "input", name, typeStr, Optional)
}

// VariadicInput declares the last input as taking any number of values.
func (s *OpSchema) VariadicInput(name, typeStr string) *OpSchema {
	return s.addParam(&s.inputs, "input", name, typeStr, Variadic)
}

// Output declares the next required output.
func (s *OpSchema) Output(name, typeStr string) *OpSchema {
	return s.addParam(&s.outputs, "output", name, typeStr, Single)
}

// OptionalOutput declares the next output as optional.
func (s *OpSchema) OptionalOutput(name, typeStr string) *OpSchema {
	return s.addParam(&s.outputs, "output", name, typeStr, Optional)
}

// VariadicOutput declares the last output as taking any number of values.
func (s *OpSchema) VariadicOutput(name, typeStr string) *OpSchema {
	return s.addParam(&s.outputs, "output", name, typeStr, Variadic)
}

// TypeConstraint declares a named set of allowed element types, referred to by inputs and outputs.
func (s *OpSchema) TypeConstraint(name string, allowed ...ElementType) *OpSchema {
	if !s.checkMutable() {
		return s
	}
	if _, found := s.constraints[name]; found {
		s.addErrorf("type constraint %q declared twice", name)
		return s
	}
	if len(allowed) == 0 {
		s.addErrorf("type constraint %q allows no types", name)
	}
	s.constraints[name] = &TypeConstraint{Name: name, Allowed: slices.Clone(allowed)}
	return s
}

// Inference sets the type and shape inference function.
func (s *OpSchema) Inference(fn InferenceFunction) *OpSchema {
	if s.checkMutable() {
		s.inference = fn
	}
	return s
}

// finalize resolves the type strings of the formal parameters and freezes the schema.
func (s *OpSchema) finalize() error {
	if s.finalized {
		return errors.Errorf("schema %s already registered", s)
	}
	for _, params := range [][]*FormalParameter{s.inputs, s.outputs} {
		for _, p := range params {
			if tc, found := s.constraints[p.TypeStr]; found {
				p.Constraint = tc
				continue
			}
			elemType, err := parseTensorTypeString(p.TypeStr)
			if err != nil {
				s.addErrorf("parameter %q: type %q is neither a type constraint nor a valid type string: %v",
					p.Name, p.TypeStr, err)
				continue
			}
			p.Constraint = &TypeConstraint{Name: p.TypeStr, Allowed: []ElementType{elemType}}
		}
	}
	s.finalized = true
	return s.err
}

// arityRange returns the minimum and maximum number of values accepted by params. max is -1 if unbounded.
func arityRange(params []*FormalParameter) (minCount, maxCount int) {
	for i, p := range params {
		switch p.Arity {
		case Single:
			minCount = i + 1
			maxCount++
		case Optional:
			maxCount++
		case Variadic:
			return minCount, -1
		}
	}
	return minCount, maxCount
}

// paramFor returns the formal parameter for the value at position idx, taking a trailing variadic into account.
func paramFor(params []*FormalParameter, idx int) *FormalParameter {
	if idx < len(params) {
		return params[idx]
	}
	if n := len(params); n > 0 && params[n-1].Arity == Variadic {
		return params[n-1]
	}
	return nil
}
