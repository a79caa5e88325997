package onnx

// InferenceContext is the per-node handle through which an InferenceFunction reads the node's inputs and
// attributes, and writes its outputs.
//
// A context is created fresh for one inference call and is only used by that call.
type InferenceContext interface {
	// NumInputs returns the number of inputs of the node, including absent optional ones.
	NumInputs() int

	// NumOutputs returns the number of outputs of the node.
	NumOutputs() int

	// InputType returns the type of input i, or nil if the input is absent or i is out of range.
	InputType(i int) *TensorType

	// InputData returns the constant value of input i, or nil if it is not a compile-time constant.
	InputData(i int) *Tensor

	// Attribute returns the node attribute by name. Absent attributes declared with a default in the
	// schema return the default.
	Attribute(name string) (*Attribute, bool)

	// OutputType returns the mutable type of output i. It returns nil if i is out of range.
	OutputType(i int) *TensorType
}

// Node is the description of one graph node given to the inference engine.
//
// It is owned by the caller (the graph container): Inputs, Constants and Attributes are read-only
// for inference, and Outputs receives the inferred types.
type Node struct {
	Name   string
	OpType string
	Domain string

	// Inputs types, one per input. A nil entry denotes an absent optional input.
	Inputs []*TensorType

	// Constants holds the values of the inputs that are compile-time constants (initializers),
	// indexed by input position.
	Constants map[int]*Tensor

	Attributes map[string]*Attribute

	// Outputs are the output slots. Previously known (declared or inferred) types can be set before
	// inference: inferred information is merged into them. Inference grows it to the number of outputs
	// given by NumOutputs if shorter.
	Outputs []*TensorType

	// NumOutputs is the number of outputs of the node. If 0, len(Outputs) is used.
	NumOutputs int
}

// numOutputs returns the number of outputs of the node.
func (n *Node) numOutputs() int {
	if n.NumOutputs > 0 {
		return n.NumOutputs
	}
	return len(n.Outputs)
}

// String returns a short description of the node for error messages.
func (n *Node) String() string {
	if n.Name != "" {
		return n.OpType + " node " + `"` + n.Name + `"`
	}
	return n.OpType + " node"
}

// nodeContext implements InferenceContext over a Node, with fresh output slots.
type nodeContext struct {
	node    *Node
	schema  *OpSchema
	outputs []*TensorType
}

var _ InferenceContext = (*nodeContext)(nil)

func newNodeContext(node *Node, schema *OpSchema) *nodeContext {
	ctx := &nodeContext{
		node:    node,
		schema:  schema,
		outputs: make([]*TensorType, node.numOutputs()),
	}
	for i := range ctx.outputs {
		ctx.outputs[i] = &TensorType{}
	}
	return ctx
}

func (c *nodeContext) NumInputs() int  { return len(c.node.Inputs) }
func (c *nodeContext) NumOutputs() int { return len(c.outputs) }

func (c *nodeContext) InputType(i int) *TensorType {
	if i < 0 || i >= len(c.node.Inputs) {
		return nil
	}
	return c.node.Inputs[i]
}

func (c *nodeContext) InputData(i int) *Tensor {
	if c.InputType(i) == nil {
		return nil
	}
	return c.node.Constants[i]
}

func (c *nodeContext) Attribute(name string) (*Attribute, bool) {
	if attr, found := c.node.Attributes[name]; found && attr != nil {
		return attr, true
	}
	if decl := c.schema.AttributeDecl(name); decl != nil && decl.Default != nil {
		return decl.Default, true
	}
	return nil, false
}

func (c *nodeContext) OutputType(i int) *TensorType {
	if i < 0 || i >= len(c.outputs) {
		return nil
	}
	return c.outputs[i]
}
