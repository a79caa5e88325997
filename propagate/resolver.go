package propagate

import (
	"context"
	"maps"
	"runtime"
	"slices"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/onnx-shapeinfer/internal/togomlx"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Resolver propagates types through a Graph.
//
// Types are resolved in priority order:
// 1. Initializers (the type of the constant tensor);
// 2. Graph inputs (declared types, merged with the initializer's if both are given);
// 3. Inferred types of node outputs.
//
// Create it with NewResolver, configure it with the With... methods and call Propagate.
type Resolver struct {
	graph  *Graph
	engine *onnx.Engine

	parallelism  int
	stopOnError  bool
	externalData *onnx.ExternalDataReader

	// constants are the initializers, with their external data loaded.
	constants map[string]*onnx.Tensor

	// muResults protects the results below, written concurrently by the nodes of a level.
	muResults sync.Mutex
	types     map[string]*onnx.TensorType
	failures  map[string]error
	skipped   []string

	// Whether propagation has been run.
	propagated bool
}

// NewResolver creates a Resolver for graph, finding the operator schemas with lookup.
func NewResolver(graph *Graph, lookup onnx.SchemaLookup) *Resolver {
	return &Resolver{
		graph:       graph,
		engine:      onnx.NewEngine(lookup),
		parallelism: runtime.NumCPU(),
	}
}

// WithParallelism sets the maximum number of nodes inferred concurrently. Values <= 0 mean
// runtime.NumCPU(). It returns the Resolver itself, so calls can be chained.
func (r *Resolver) WithParallelism(n int) *Resolver {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	r.parallelism = n
	return r
}

// WithStopOnError makes Propagate return on the first node failure, instead of recording it and
// continuing with the other nodes. It returns the Resolver itself, so calls can be chained.
func (r *Resolver) WithStopOnError(stop bool) *Resolver {
	r.stopOnError = stop
	return r
}

// WithExternalData sets the reader used to load initializers whose data is stored in external files,
// so they can be used as constant inputs. Without it, such initializers only contribute their type.
func (r *Resolver) WithExternalData(reader *onnx.ExternalDataReader) *Resolver {
	r.externalData = reader
	return r
}

// Propagate infers the types of all node outputs of the graph.
//
// Node failures are recorded (see Failures) and only affect the failed node, whose outputs are left
// unresolved: downstream nodes still run with whatever is known. Nodes whose operator has no schema
// are recorded in Skipped. Propagate returns an error if the graph can't be sorted, if the context
// is cancelled, or on the first node failure if WithStopOnError was set.
//
// Calling Propagate again resets the previous results.
func (r *Resolver) Propagate(ctx context.Context) error {
	if r.graph == nil {
		return errors.New("propagate.Resolver has no graph")
	}
	levels, err := r.graph.sortedLevels()
	if err != nil {
		return err
	}
	if err := r.seedTypes(); err != nil {
		return err
	}
	klog.V(1).Infof("propagating types through %d nodes in %d levels (opset %d, parallelism %d)",
		len(r.graph.Nodes), len(levels), r.graph.Opset, r.parallelism)

	for levelIdx, level := range levels {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(r.parallelism)
		for _, node := range level {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				return r.propagateNode(node)
			})
		}
		if err := g.Wait(); err != nil {
			return errors.WithMessagef(err, "propagating types at level %d", levelIdx)
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "propagation interrupted after level %d", levelIdx)
		}
	}
	r.propagated = true
	klog.V(1).Infof("propagation done: %d types known, %d node failures, %d nodes skipped",
		len(r.types), len(r.failures), len(r.skipped))
	return nil
}

// seedTypes resets the results and populates them with the types of the initializers and graph inputs.
func (r *Resolver) seedTypes() error {
	r.muResults.Lock()
	defer r.muResults.Unlock()
	r.types = make(map[string]*onnx.TensorType, len(r.graph.Inputs)+len(r.graph.Initializers))
	r.constants = make(map[string]*onnx.Tensor, len(r.graph.Initializers))
	r.failures = make(map[string]error)
	r.skipped = nil
	r.propagated = false
	for name, tensor := range r.graph.Initializers {
		if tensor == nil {
			continue
		}
		r.types[name] = tensor.Type()
		if tensor.External != nil {
			if r.externalData == nil {
				continue
			}
			loaded, err := r.externalData.Load(tensor)
			if err != nil {
				return errors.WithMessagef(err, "loading initializer %q", name)
			}
			tensor = loaded
		}
		r.constants[name] = tensor
	}
	for name, tt := range r.graph.Inputs {
		merged, err := onnx.MergeTypes(r.types[name], tt)
		if err != nil {
			return errors.WithMessagef(err, "graph input %q doesn't match its initializer", name)
		}
		r.types[name] = merged
	}
	return nil
}

// propagateNode runs inference on one node and records its outputs, its failure or its skipping.
// It only returns an error if the propagation should stop.
func (r *Resolver) propagateNode(node *Node) error {
	onnxNode := r.onnxNode(node)
	err := r.engine.Infer(onnxNode, r.graph.Opset)

	r.muResults.Lock()
	defer r.muResults.Unlock()
	key := node.key()
	switch {
	case errors.Is(err, onnx.ErrSchemaNotFound):
		klog.V(2).Infof("node %s: no schema for %s at opset %d, skipped", key, node.OpType, r.graph.Opset)
		r.skipped = append(r.skipped, key)
		return nil
	case err != nil:
		klog.V(2).Infof("node %s: inference failed: %v", key, err)
		r.failures[key] = err
		if r.stopOnError {
			return errors.WithMessagef(err, "node %s", key)
		}
		return nil
	}
	for outputIdx, output := range node.Outputs {
		if output == "" || outputIdx >= len(onnxNode.Outputs) || onnxNode.Outputs[outputIdx] == nil {
			continue
		}
		r.types[output] = onnxNode.Outputs[outputIdx]
	}
	if klog.V(2).Enabled() {
		klog.Infof("node %s (%s): outputs %v", key, node.OpType, onnxNode.Outputs)
	}
	return nil
}

// onnxNode builds the node given to the inference engine, with the currently known types of the inputs.
func (r *Resolver) onnxNode(node *Node) *onnx.Node {
	r.muResults.Lock()
	defer r.muResults.Unlock()
	onnxNode := &onnx.Node{
		Name:       node.Name,
		OpType:     node.OpType,
		Domain:     node.Domain,
		Inputs:     make([]*onnx.TensorType, len(node.Inputs)),
		Attributes: node.Attributes,
		NumOutputs: len(node.Outputs),
	}
	for inputIdx, input := range node.Inputs {
		if input == "" {
			continue
		}
		if tt, found := r.types[input]; found {
			onnxNode.Inputs[inputIdx] = tt.Clone()
		} else {
			// Present, but nothing known about it.
			onnxNode.Inputs[inputIdx] = &onnx.TensorType{}
		}
		if tensor, found := r.constants[input]; found {
			if onnxNode.Constants == nil {
				onnxNode.Constants = make(map[int]*onnx.Tensor)
			}
			onnxNode.Constants[inputIdx] = tensor
		}
	}
	return onnxNode
}

// Type returns the resolved type of the named value (graph input, initializer or node output).
func (r *Resolver) Type(name string) (*onnx.TensorType, bool) {
	r.muResults.Lock()
	defer r.muResults.Unlock()
	tt, found := r.types[name]
	return tt.Clone(), found
}

// Failures returns the inference error of each failed node, indexed by node name.
func (r *Resolver) Failures() map[string]error {
	r.muResults.Lock()
	defer r.muResults.Unlock()
	return maps.Clone(r.failures)
}

// Skipped returns the sorted names of the nodes whose operator had no schema.
func (r *Resolver) Skipped() []string {
	r.muResults.Lock()
	defer r.muResults.Unlock()
	return slices.Sorted(slices.Values(r.skipped))
}

// GoMLXShape returns the resolved type of the named value converted to a GoMLX shape.
// Unresolved dimensions are converted to -1 (a dynamic shape).
//
// It returns an error if the value is unknown, or if its rank or element type weren't resolved.
func (r *Resolver) GoMLXShape(name string) (shapes.Shape, error) {
	tt, found := r.Type(name)
	if !found {
		return shapes.Shape{}, errors.Errorf("no type resolved for %q", name)
	}
	s, err := togomlx.Shape(tt)
	if err != nil {
		return shapes.Shape{}, errors.WithMessagef(err, "converting type of %q", name)
	}
	return s, nil
}
