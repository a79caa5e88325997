package propagate

import (
	"bytes"
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
)

// Unresolved returns the node outputs, in graph order, whose element type or shape was not fully
// resolved by Propagate.
func (r *Resolver) Unresolved() []string {
	r.muResults.Lock()
	defer r.muResults.Unlock()
	var unresolved []string
	for _, node := range r.graph.Nodes {
		for _, output := range node.Outputs {
			if output == "" {
				continue
			}
			tt, found := r.types[output]
			if !found || !tt.ElemType.IsDefined() || !tt.Shape.IsFullyKnown() {
				unresolved = append(unresolved, output)
			}
		}
	}
	return unresolved
}

// String implements fmt.Stringer, and pretty prints a summary of the propagation.
func (r *Resolver) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Type propagation:\n")
	if r.graph == nil {
		w("\tno graph\n")
		return buf.String()
	}
	w("\t# nodes:\t%d\n", len(r.graph.Nodes))
	w("\tOpset:\t%d\n", r.graph.Opset)
	opTypesSet := sets.Make[string]()
	for _, node := range r.graph.Nodes {
		opTypesSet.Insert(node.OpType)
	}
	w("\tOp types:\t%v\n", slices.Sorted(maps.Keys(opTypesSet)))
	if !r.propagated {
		w("\tnot propagated\n")
		return buf.String()
	}

	failures := r.Failures()
	if len(failures) > 0 {
		w("\t# failures:\t%d\n", len(failures))
		for _, key := range slices.Sorted(maps.Keys(failures)) {
			w("\t\t%s: %v\n", key, failures[key])
		}
	}
	if skipped := r.Skipped(); len(skipped) > 0 {
		w("\tSkipped (no schema):\t%v\n", skipped)
	}

	// Unresolved outputs by op type, most frequent first.
	producerOp := make(map[string]string)
	for _, node := range r.graph.Nodes {
		for _, output := range node.Outputs {
			producerOp[output] = node.OpType
		}
	}
	unresolvedByOp := make(map[string]int)
	unresolved := r.Unresolved()
	for _, output := range unresolved {
		unresolvedByOp[producerOp[output]]++
	}
	w("\t# unresolved outputs:\t%d\n", len(unresolved))
	ops := slices.SortedFunc(maps.Keys(unresolvedByOp), func(a, b string) int {
		if c := cmp.Compare(unresolvedByOp[b], unresolvedByOp[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	for _, op := range ops {
		w("\t\t%s:\t%d\n", op, unresolvedByOp[op])
	}
	return buf.String()
}
