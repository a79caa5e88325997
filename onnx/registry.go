package onnx

import (
	"cmp"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// SchemaLookup is implemented by anything that can resolve operator schemas, typically a *Registry.
type SchemaLookup interface {
	// Lookup returns the schema for the exact (name, version), if registered.
	Lookup(name string, version int) (*OpSchema, bool)

	// Resolve returns the schema for name valid at the given operator set version: the one with the
	// highest version <= opset.
	Resolve(name string, opset int) (*OpSchema, bool)
}

type schemaKey struct {
	name    string
	version int
}

// RegistryBuilder collects schemas during the registration phase. Call Build to get the immutable Registry.
//
// A RegistryBuilder is not safe for concurrent use.
type RegistryBuilder struct {
	schemas map[schemaKey]*OpSchema
	err     error
	built   bool
}

// NewRegistryBuilder returns an empty RegistryBuilder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{schemas: make(map[schemaKey]*OpSchema)}
}

// Register adds the schema, keyed by (name, version). Errors (duplicates, malformed schemas) are
// accumulated and returned by Build.
func (b *RegistryBuilder) Register(schemas ...*OpSchema) *RegistryBuilder {
	for _, s := range schemas {
		if b.built {
			b.err = multierr.Append(b.err, errors.Errorf("schema %s registered after Build()", s))
			continue
		}
		if err := s.finalize(); err != nil {
			b.err = multierr.Append(b.err, err)
			continue
		}
		key := schemaKey{name: s.name, version: s.version}
		if _, found := b.schemas[key]; found {
			b.err = multierr.Append(b.err, errors.Errorf("schema %s registered twice", s))
			continue
		}
		b.schemas[key] = s
	}
	return b
}

// Build returns the immutable Registry with all registered schemas, or the combined registration errors.
func (b *RegistryBuilder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.built = true
	r := &Registry{
		schemas:  make(map[schemaKey]*OpSchema, len(b.schemas)),
		versions: make(map[string][]int),
	}
	for key, s := range b.schemas {
		r.schemas[key] = s
		r.versions[key.name] = append(r.versions[key.name], key.version)
	}
	for _, versions := range r.versions {
		slices.Sort(versions)
	}
	return r, nil
}

// MustBuild is like Build, but panics on errors.
func (b *RegistryBuilder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		exceptions.Panicf("failed to build schema registry: %+v", err)
	}
	return r
}

// Registry is an immutable collection of operator schemas, keyed by (name, version).
//
// It is safe for concurrent use: after Build it is never modified.
type Registry struct {
	schemas  map[schemaKey]*OpSchema
	versions map[string][]int // Sorted versions available per operator name.
}

var _ SchemaLookup = (*Registry)(nil)

// Lookup implements SchemaLookup.
func (r *Registry) Lookup(name string, version int) (*OpSchema, bool) {
	s, found := r.schemas[schemaKey{name: name, version: version}]
	return s, found
}

// Resolve implements SchemaLookup.
func (r *Registry) Resolve(name string, opset int) (*OpSchema, bool) {
	versions := r.versions[name]
	idx, found := slices.BinarySearch(versions, opset)
	if !found {
		// idx is the position of the first version > opset.
		if idx == 0 {
			return nil, false
		}
		idx--
	}
	return r.Lookup(name, versions[idx])
}

// Versions returns the registered versions of the operator, sorted.
func (r *Registry) Versions(name string) []int {
	return slices.Clone(r.versions[name])
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	return len(r.schemas)
}

// Schemas returns all schemas sorted by name and version.
func (r *Registry) Schemas() []*OpSchema {
	all := make([]*OpSchema, 0, len(r.schemas))
	for _, s := range r.schemas {
		all = append(all, s)
	}
	slices.SortFunc(all, func(a, b *OpSchema) int {
		if c := cmp.Compare(a.name, b.name); c != 0 {
			return c
		}
		return cmp.Compare(a.version, b.version)
	})
	return all
}
