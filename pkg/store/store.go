// Package store implements per-relation tuple storage with bag semantics.
//
// Each relation holds a primary B-tree of (tuple key, tuple, multiplicity)
// entries plus one B-tree index per attribute mapping (value, tuple key)
// pairs in value order. Mutation happens only through Insert/Delete/ApplyDelta
// on the live trees; readers take Snapshots, which clone the trees
// copy-on-write so that an in-flight batch never disturbs a running query.
package store

import (
	"github.com/l7mp/triejoin/pkg/registry"
	"github.com/l7mp/triejoin/pkg/schema"
)

// Store owns the tuple storage of all registered relations. It implements
// registry.Dropper so that removing a catalog entry drops the backing
// storage. Like the registry, the store relies on the engine's single-writer
// discipline and is not internally synchronized.
type Store struct {
	relations map[string]*Relation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{relations: make(map[string]*Relation)}
}

// Create allocates tuple storage for a relation.
func (s *Store) Create(name string, sch *schema.Schema) *Relation {
	rel := NewRelation(name, sch)
	s.relations[name] = rel
	return rel
}

// Relation returns the storage of the named relation.
func (s *Store) Relation(name string) (*Relation, error) {
	rel, ok := s.relations[name]
	if !ok {
		return nil, registry.NewRelationNotFoundError(name)
	}
	return rel, nil
}

// DropRelation drops the backing storage of a relation. Dropping an unknown
// name is a no-op: the registry is the authority on catalog membership.
func (s *Store) DropRelation(name string) {
	delete(s.relations, name)
}

// RelationNames returns the names of relations with backing storage, in no
// particular order. Diagnostic listing goes through the registry, which keeps
// registration order.
func (s *Store) RelationNames() []string {
	names := make([]string, 0, len(s.relations))
	for name := range s.relations {
		names = append(names, name)
	}
	return names
}
