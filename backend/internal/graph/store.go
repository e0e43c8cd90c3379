package graph

import (
	"context"
	"fmt"
)

// Operation names, shared by store errors, logs and the tool layer
const (
	OpReadGraph          = "read_graph"
	OpCreateEntities     = "create_entities"
	OpCreateRelations    = "create_relations"
	OpAddObservations    = "add_observations"
	OpDeleteEntities     = "delete_entities"
	OpDeleteObservations = "delete_observations"
	OpDeleteRelations    = "delete_relations"
	OpSearchMemories     = "search_memories"
	OpFindMemoriesByName = "find_memories_by_name"
	OpCreateIndex        = "create_fulltext_index"
	OpCreateConstraint   = "create_name_constraint"
)

// DefaultWriteConcurrency bounds how many per-item writes of one batch are in flight
const DefaultWriteConcurrency = 4

// Store is the knowledge store contract. Implementations never hold an
// in-process lock across calls; each item of a batch is one atomic backend write.
// When a batch write fails part way, the results of the items already applied
// are returned together with the error.
type Store interface {
	ReadGraph(ctx context.Context) (*KnowledgeGraph, error)
	CreateEntities(ctx context.Context, entities []Entity) ([]Entity, error)
	CreateRelations(ctx context.Context, relations []Relation) ([]Relation, error)
	AddObservations(ctx context.Context, additions []ObservationAddition) ([]ObservationResult, error)
	DeleteEntities(ctx context.Context, names []string) error
	DeleteObservations(ctx context.Context, deletions []ObservationDeletion) error
	DeleteRelations(ctx context.Context, relations []Relation) error
	SearchMemories(ctx context.Context, query string) (*KnowledgeGraph, error)
	FindMemoriesByName(ctx context.Context, names []string) (*KnowledgeGraph, error)
}

// IndexManager prepares the backend schema used by search
type IndexManager interface {
	CreateFulltextIndex(ctx context.Context) error
	CreateNameConstraint(ctx context.Context) error
}

// Backend is a store together with its schema management and lifecycle
type Backend interface {
	Store
	IndexManager
	Close() error
}

// Options tunes a store implementation
type Options struct {
	// Database selects the logical database (Neo4j only; empty means server default)
	Database string
	// WriteConcurrency caps concurrent per-item writes inside one batch call
	WriteConcurrency int
}

// WriteLimit returns the effective per-batch write concurrency
func (o Options) WriteLimit() int {
	if o.WriteConcurrency < 1 {
		return DefaultWriteConcurrency
	}
	return o.WriteConcurrency
}

// ValidateEntity rejects entities the backend cannot key
func ValidateEntity(e Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	return nil
}

// ValidateRelation rejects relations the backend cannot key
func ValidateRelation(r Relation) error {
	switch {
	case r.Source == "":
		return fmt.Errorf("relation source must not be empty")
	case r.Target == "":
		return fmt.Errorf("relation target must not be empty")
	case r.RelationType == "":
		return fmt.Errorf("relation type must not be empty (%s -> %s)", r.Source, r.Target)
	}
	return nil
}
