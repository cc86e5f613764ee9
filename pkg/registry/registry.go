// Package registry implements the relation catalog: a mapping from relation
// names to schemas with unique names and insertion-order listing.
package registry

import (
	"github.com/l7mp/triejoin/pkg/schema"
)

// Dropper is the storage-layer collaborator notified when a catalog entry is
// removed so that the backing tuple storage can be dropped with it.
type Dropper interface {
	DropRelation(name string)
}

// Registry maps relation names to schemas. Names are unique at any time and
// listed in registration order. The registry is not safe for concurrent use;
// callers serialize access (the engine funnels all mutation through its
// single-writer lock).
type Registry struct {
	schemas map[string]*schema.Schema
	order   []string
	dropper Dropper
}

// New creates an empty registry. The dropper may be nil if no storage layer
// is attached.
func New(dropper Dropper) *Registry {
	return &Registry{
		schemas: make(map[string]*schema.Schema),
		dropper: dropper,
	}
}

// Register adds a named relation with the given schema. Registering an
// existing name fails, as does a nil schema.
func (r *Registry) Register(name string, s *schema.Schema) error {
	if s == nil {
		return schema.NewInvalidSchemaError("nil schema")
	}
	if _, ok := r.schemas[name]; ok {
		return NewDuplicateRelationError(name)
	}

	r.schemas[name] = s
	r.order = append(r.order, name)

	return nil
}

// GetSchema returns the schema of the named relation.
func (r *Registry) GetSchema(name string) (*schema.Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, NewRelationNotFoundError(name)
	}
	return s, nil
}

// HasRelation reports whether the name is registered.
func (r *Registry) HasRelation(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// RelationNames returns the registered names in registration order.
func (r *Registry) RelationNames() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Remove deletes the named relation and signals the storage layer to drop the
// backing tuple storage.
func (r *Registry) Remove(name string) error {
	if _, ok := r.schemas[name]; !ok {
		return NewRelationNotFoundError(name)
	}

	delete(r.schemas, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.dropper != nil {
		r.dropper.DropRelation(name)
	}

	return nil
}

// Clear removes all entries and their backing storage. Never fails.
func (r *Registry) Clear() {
	for _, name := range r.order {
		if r.dropper != nil {
			r.dropper.DropRelation(name)
		}
	}
	r.schemas = make(map[string]*schema.Schema)
	r.order = nil
}
