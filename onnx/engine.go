package onnx

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// EngineConfig controls the checks done by the Engine around inference functions.
type EngineConfig struct {
	// SkipOutputTypeCheck disables checking inferred output element types against the schema constraints.
	SkipOutputTypeCheck bool
}

// Engine validates nodes against their schemas and runs their inference functions.
//
// It holds no mutable state, and can be used concurrently on different nodes.
type Engine struct {
	lookup SchemaLookup
	config EngineConfig
}

// NewEngine creates an Engine that finds schemas with lookup.
func NewEngine(lookup SchemaLookup) *Engine {
	return &Engine{lookup: lookup}
}

// WithConfig returns a copy of the engine using the given configuration.
func (e *Engine) WithConfig(config EngineConfig) *Engine {
	return &Engine{lookup: e.lookup, config: config}
}

// Infer resolves the schema of the node valid at the given operator set version, and runs inference.
// See the package function Infer.
func (e *Engine) Infer(node *Node, opset int) error {
	schema, found := e.lookup.Resolve(node.OpType, opset)
	if !found {
		return errors.Wrapf(ErrSchemaNotFound, "no schema for %s at opset %d", node, opset)
	}
	return infer(node, schema, e.config)
}

// Infer validates the node against the schema, runs its inference function and merges the inferred
// types into node.Outputs.
//
// It returns nil if the node is valid, even if nothing could be inferred. Errors wrap one of the
// sentinel errors (ErrStructural, ErrTypeConstraint, ...). After a failure node.Outputs is left
// unchanged.
//
// Calling Infer again on an unchanged node yields the same outputs.
func Infer(node *Node, schema *OpSchema) error {
	return infer(node, schema, EngineConfig{})
}

func infer(node *Node, schema *OpSchema, config EngineConfig) (err error) {
	if node == nil || schema == nil {
		return errors.New("onnx.Infer() requires a non-nil node and schema")
	}
	defer func() {
		if err != nil {
			err = errors.WithMessagef(err, "inferring %s with schema %s", node, schema)
		}
	}()
	if err = validateNode(node, schema); err != nil {
		return err
	}
	if schema.inference == nil {
		return nil
	}

	ctx := newNodeContext(node, schema)
	panicErr := exceptions.TryCatch[error](func() { err = schema.inference(ctx) })
	if panicErr != nil {
		return errors.WithMessage(panicErr, "inference function panicked")
	}
	if err != nil {
		return err
	}

	if !config.SkipOutputTypeCheck {
		if err = checkOutputTypes(ctx.outputs, schema); err != nil {
			return err
		}
	}

	// Merge into the node outputs: only commit if all merges succeed.
	merged := make([]*TensorType, len(ctx.outputs))
	for i, inferred := range ctx.outputs {
		var existing *TensorType
		if i < len(node.Outputs) {
			existing = node.Outputs[i]
		}
		merged[i], err = MergeTypes(existing, inferred)
		if err != nil {
			return errors.WithMessagef(err, "output #%d", i)
		}
	}
	node.Outputs = merged
	return nil
}

// validateNode checks arity, input type constraints and attributes.
func validateNode(node *Node, schema *OpSchema) error {
	if err := checkArity("inputs", len(node.Inputs), schema.inputs); err != nil {
		return err
	}
	if err := checkArity("outputs", node.numOutputs(), schema.outputs); err != nil {
		return err
	}
	for i, param := range schema.inputs {
		if param.Arity == Single && (i >= len(node.Inputs) || node.Inputs[i] == nil) {
			return StructuralErrorf("required input #%d (%q) is missing", i, param.Name)
		}
	}

	// Element types must be allowed by the constraint, and consistent among slots sharing it.
	bound := make(map[string]ElementType)
	for i, input := range node.Inputs {
		if input == nil || !input.ElemType.IsDefined() {
			continue
		}
		param := paramFor(schema.inputs, i)
		if err := checkConstraint(fmt.Sprintf("input #%d (%q)", i, param.Name), input.ElemType, param, bound); err != nil {
			return err
		}
	}

	for name, decl := range schema.attributes {
		attr, found := node.Attributes[name]
		if !found || attr == nil {
			if decl.Required {
				return StructuralErrorf("required attribute %q is missing", name)
			}
			continue
		}
		if attr.Kind != decl.Kind {
			return StructuralErrorf("attribute %q should be of kind %s, got %s", name, decl.Kind, attr.Kind)
		}
	}
	return nil
}

func checkArity(what string, count int, params []*FormalParameter) error {
	minCount, maxCount := arityRange(params)
	if count < minCount {
		return StructuralErrorf("expected at least %d %s, got %d", minCount, what, count)
	}
	if maxCount >= 0 && count > maxCount {
		return StructuralErrorf("expected at most %d %s, got %d", maxCount, what, count)
	}
	return nil
}

func checkConstraint(slot string, elemType ElementType, param *FormalParameter, bound map[string]ElementType) error {
	tc := param.Constraint
	if tc == nil {
		return nil
	}
	if !tc.Allows(elemType) {
		return TypeConstraintErrorf("%s has element type %s, not allowed by constraint %q %v", slot, elemType, tc.Name, tc.Allowed)
	}
	if prev, found := bound[tc.Name]; found && prev != elemType {
		return TypeConstraintErrorf("%s has element type %s, but constraint %q is already bound to %s", slot, elemType, tc.Name, prev)
	}
	bound[tc.Name] = elemType
	return nil
}

func checkOutputTypes(outputs []*TensorType, schema *OpSchema) error {
	bound := make(map[string]ElementType)
	for i, output := range outputs {
		if !output.ElemType.IsDefined() {
			continue
		}
		param := paramFor(schema.outputs, i)
		if param == nil {
			continue
		}
		if err := checkConstraint(fmt.Sprintf("inferred output #%d (%q)", i, param.Name), output.ElemType, param, bound); err != nil {
			return err
		}
	}
	return nil
}
