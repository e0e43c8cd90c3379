package graph

import (
	"github.com/samber/lo"
)

// ============================================================================
// Observation Deduplication
// ============================================================================

// UniqueObservations collapses exact duplicates, keeping first occurrences in order.
// Matching is exact and case-sensitive: "Fact" and "fact" are different observations.
func UniqueObservations(observations []string) []string {
	if len(observations) == 0 {
		return []string{}
	}
	return lo.Uniq(observations)
}

// ============================================================================
// Neighbourhood Helpers
// ============================================================================

// ExpandNames returns names followed by every relation endpoint not already
// listed, in relation order. The result is the entity set of a connected
// neighbourhood result.
func ExpandNames(names []string, relations []Relation) []string {
	expanded := make([]string, 0, len(names)+2*len(relations))
	expanded = append(expanded, names...)
	for _, r := range relations {
		expanded = append(expanded, r.Source, r.Target)
	}
	return lo.Uniq(expanded)
}

// SortByNames orders entities by their position in names. Entities whose name
// is not listed keep their relative order at the end.
func SortByNames(entities []Entity, names []string) []Entity {
	position := make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := position[n]; !ok {
			position[n] = i
		}
	}
	sorted := make([]Entity, 0, len(entities))
	var rest []Entity
	slots := make([]*Entity, len(names))
	for i := range entities {
		if p, ok := position[entities[i].Name]; ok && slots[p] == nil {
			slots[p] = &entities[i]
			continue
		}
		rest = append(rest, entities[i])
	}
	for _, e := range slots {
		if e != nil {
			sorted = append(sorted, *e)
		}
	}
	return append(sorted, rest...)
}

// UniqueRelations drops repeated triples, keeping the first occurrence
func UniqueRelations(relations []Relation) []Relation {
	return lo.UniqBy(relations, func(r Relation) string {
		return r.Key()
	})
}
