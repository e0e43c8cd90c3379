package graph

import (
	"fmt"
)

// Entity is a uniquely named node carrying a type and free-text observations
type Entity struct {
	Name         string   `json:"name" validate:"required"`
	Type         string   `json:"type"`
	Observations []string `json:"observations"`
}

// Relation is a directed, typed edge identified by (source, target, relationType)
type Relation struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	RelationType string `json:"relationType" validate:"required"`
}

// Key returns the composite identity of the relation
func (r Relation) Key() string {
	return r.Source + "\x00" + r.RelationType + "\x00" + r.Target
}

func (r Relation) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", r.Source, r.RelationType, r.Target)
}

// ObservationAddition asks for observations to be appended to an existing entity
type ObservationAddition struct {
	EntityName   string   `json:"entityName" validate:"required"`
	Observations []string `json:"observations" validate:"required"`
}

// ObservationDeletion asks for exact-match observations to be removed from an entity
type ObservationDeletion struct {
	EntityName   string   `json:"entityName" validate:"required"`
	Observations []string `json:"observations" validate:"required"`
}

// ObservationResult reports what one ObservationAddition actually changed
type ObservationResult struct {
	EntityName        string   `json:"entityName"`
	AddedObservations []string `json:"addedObservations"`
	Error             string   `json:"error,omitempty"`

	Err error `json:"-"`
}

// KnowledgeGraph is a snapshot of (part of) the graph
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// NewKnowledgeGraph returns an empty graph whose slices marshal as [] rather than null
func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{
		Entities:  []Entity{},
		Relations: []Relation{},
	}
}

// EntityNames lists the names of the graph's entities in order
func (g *KnowledgeGraph) EntityNames() []string {
	names := make([]string, 0, len(g.Entities))
	for _, e := range g.Entities {
		names = append(names, e.Name)
	}
	return names
}

// NewObservationResults prepares one empty result per addition, in order
func NewObservationResults(additions []ObservationAddition) []ObservationResult {
	results := make([]ObservationResult, len(additions))
	for i, a := range additions {
		results[i] = ObservationResult{EntityName: a.EntityName, AddedObservations: []string{}}
	}
	return results
}

// Fail records err as this item's outcome
func (res *ObservationResult) Fail(err error) {
	res.Err = err
	res.Error = err.Error()
}

// MarkUnapplied fails every result whose item never ran because the batch
// was aborted with err. Completed items keep their outcome.
func MarkUnapplied(results []ObservationResult, done []bool, err error) {
	for i := range results {
		if !done[i] {
			results[i].Fail(err)
		}
	}
}
