// Package propagate runs shape and type inference over a whole graph of ONNX nodes.
//
// The graph is sorted into topological levels, and the nodes of each level are inferred concurrently
// with the schemas of an onnx.SchemaLookup (usually the registry from the defs package). The types
// inferred for each node's outputs feed the inputs of the nodes that consume them.
package propagate

import (
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/pkg/errors"
)

// Node is one operator in a Graph. Inputs and outputs are referred to by name.
type Node struct {
	Name   string
	OpType string
	Domain string

	// Inputs names. An empty name denotes an absent optional input.
	Inputs []string

	// Outputs names. An empty name denotes an unused optional output.
	Outputs []string

	Attributes map[string]*onnx.Attribute
}

// key identifies the node in logs and in the results: its name, or its first output if it has no name.
func (n *Node) key() string {
	if n.Name != "" {
		return n.Name
	}
	for _, output := range n.Outputs {
		if output != "" {
			return n.OpType + ":" + output
		}
	}
	return n.OpType
}

// Graph of nodes to propagate types through.
type Graph struct {
	Nodes []*Node

	// Inputs holds the declared types of the graph inputs. Partially known types (e.g. with symbolic
	// dimensions) are fine.
	Inputs map[string]*onnx.TensorType

	// Initializers holds the constant tensors of the graph. They are given to the inference functions
	// as constant inputs, and their types are taken from the tensors.
	Initializers map[string]*onnx.Tensor

	// Opset is the version of the default operator set the graph was built with.
	Opset int
}

// sortedLevels returns a topological sorting of the nodes, grouped in levels: the nodes of a level only
// depend on nodes of previous levels, so they can be processed concurrently.
//
// Names consumed but not produced by any node are taken as given (graph inputs, initializers or
// missing values). It returns an error if the graph has a cycle or if a name is produced twice.
//
// Careful not to mix up node.Name and node.Outputs (there can be more than one output).
func (g *Graph) sortedLevels() ([][]*Node, error) {
	producers := make(map[string]int, len(g.Nodes))
	for nodeIdx, node := range g.Nodes {
		for _, output := range node.Outputs {
			if output == "" {
				continue
			}
			if prevIdx, found := producers[output]; found {
				return nil, errors.Errorf("output %q is produced by both %q and %q",
					output, g.Nodes[prevIdx].key(), node.key())
			}
			producers[output] = nodeIdx
		}
	}

	// Build reverse dependency map and the count of pending dependencies per node.
	dependants := make([]sets.Set[int], len(g.Nodes))
	pending := make([]int, len(g.Nodes))
	for nodeIdx, node := range g.Nodes {
		deps := sets.Make[int]()
		for _, input := range node.Inputs {
			if producerIdx, found := producers[input]; found {
				deps.Insert(producerIdx)
			}
		}
		pending[nodeIdx] = len(deps)
		for producerIdx := range deps {
			if dependants[producerIdx] == nil {
				dependants[producerIdx] = sets.Make[int]()
			}
			dependants[producerIdx].Insert(nodeIdx)
		}
	}

	var levels [][]*Node
	var current []int
	for nodeIdx := range g.Nodes {
		if pending[nodeIdx] == 0 {
			current = append(current, nodeIdx)
		}
	}
	numSorted := 0
	for len(current) > 0 {
		level := make([]*Node, 0, len(current))
		var next []int
		for _, nodeIdx := range current {
			level = append(level, g.Nodes[nodeIdx])
			for dep := range dependants[nodeIdx] {
				pending[dep]--
				if pending[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		// Keep the graph order within a level, so logs and errors are deterministic.
		slices.Sort(next)
		levels = append(levels, level)
		numSorted += len(level)
		current = next
	}
	if numSorted != len(g.Nodes) {
		var inCycle []string
		for nodeIdx, count := range pending {
			if count > 0 {
				inCycle = append(inCycle, g.Nodes[nodeIdx].key())
			}
		}
		return nil, errors.Errorf("sorting graph failed: found %d nodes connected to inputs, but there were %d nodes, "+
			"nodes in (or after) a cycle: %s", numSorted, len(g.Nodes), strings.Join(inCycle, ", "))
	}
	return levels, nil
}
