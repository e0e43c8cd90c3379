// Package graphtest holds the behavioural contract every graph.Backend must
// satisfy. Backend packages run it from their own tests.
package graphtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-mcp/backend/internal/graph"
	apperrors "memory-mcp/backend/pkg/errors"
)

// Factory returns an empty, index-ready backend. It registers its own cleanup.
type Factory func(t *testing.T) graph.Backend

// RunStoreSuite runs the store contract against backends produced by newBackend.
// Every subtest gets a fresh backend.
func RunStoreSuite(t *testing.T, newBackend Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s graph.Backend)
	}{
		{"Scenario", testScenario},
		{"EntityIdentity", testEntityIdentity},
		{"ConcurrentCreateSameName", testConcurrentCreateSameName},
		{"MergeKeepsType", testMergeKeepsType},
		{"MergeIdempotence", testMergeIdempotence},
		{"CreateEntitiesPreservesOrder", testCreateEntitiesPreservesOrder},
		{"ObservationDedup", testObservationDedup},
		{"AddObservationsPartialFailure", testAddObservationsPartialFailure},
		{"RelationUniqueness", testRelationUniqueness},
		{"RelationsAreDirected", testRelationsAreDirected},
		{"CreateRelationsSkipsMissingEndpoints", testCreateRelationsSkipsMissingEndpoints},
		{"CascadeDelete", testCascadeDelete},
		{"DeletionTolerance", testDeletionTolerance},
		{"DeleteObservations", testDeleteObservations},
		{"DeleteRelations", testDeleteRelations},
		{"SearchConnectivity", testSearchConnectivity},
		{"SearchBlankQuery", testSearchBlankQuery},
		{"SearchObservationsAndType", testSearchObservationsAndType},
		{"FindMemoriesByName", testFindMemoriesByName},
		{"IndexManagerIdempotent", testIndexManagerIdempotent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newBackend(t))
		})
	}
}

func person(name string, observations ...string) graph.Entity {
	if observations == nil {
		observations = []string{}
	}
	return graph.Entity{Name: name, Type: "person", Observations: observations}
}

func knows(source, target string) graph.Relation {
	return graph.Relation{Source: source, Target: target, RelationType: "KNOWS"}
}

func findEntity(kg *graph.KnowledgeGraph, name string) (graph.Entity, bool) {
	for _, e := range kg.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return graph.Entity{}, false
}

func countEntities(kg *graph.KnowledgeGraph, name string) int {
	n := 0
	for _, e := range kg.Entities {
		if e.Name == name {
			n++
		}
	}
	return n
}

func readGraph(t *testing.T, s graph.Store) *graph.KnowledgeGraph {
	t.Helper()
	kg, err := s.ReadGraph(context.Background())
	require.NoError(t, err)
	return kg
}

func testScenario(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("A", "x"), person("B")})
	require.NoError(t, err)
	_, err = s.CreateRelations(ctx, []graph.Relation{knows("A", "B")})
	require.NoError(t, err)

	kg := readGraph(t, s)
	assert.Len(t, kg.Entities, 2)
	assert.Len(t, kg.Relations, 1)

	merged, err := s.CreateEntities(ctx, []graph.Entity{person("A", "x", "y")})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "A", merged[0].Name)
	assert.Equal(t, []string{"x", "y"}, merged[0].Observations)

	require.NoError(t, s.DeleteEntities(ctx, []string{"A"}))

	kg = readGraph(t, s)
	require.Len(t, kg.Entities, 1)
	assert.Equal(t, "B", kg.Entities[0].Name)
	assert.Empty(t, kg.Relations)
}

func testEntityIdentity(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateEntities(ctx, []graph.Entity{person("Sarah", fmt.Sprintf("fact %d", i))})
		require.NoError(t, err)
	}
	_, err := s.CreateEntities(ctx, []graph.Entity{person("Sarah"), person("Sarah", "fact 0")})
	require.NoError(t, err)

	kg := readGraph(t, s)
	assert.Equal(t, 1, countEntities(kg, "Sarah"))

	sarah, ok := findEntity(kg, "Sarah")
	require.True(t, ok)
	assert.Equal(t, []string{"fact 0", "fact 1", "fact 2"}, sarah.Observations)
}

func testConcurrentCreateSameName(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.CreateEntities(ctx, []graph.Entity{person("Shared", fmt.Sprintf("from caller %d", i))})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	kg := readGraph(t, s)
	require.Equal(t, 1, countEntities(kg, "Shared"))
	shared, _ := findEntity(kg, "Shared")
	assert.Len(t, shared.Observations, len(errs))
}

func testMergeKeepsType(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{{Name: "Go", Type: "language", Observations: []string{"compiled"}}})
	require.NoError(t, err)

	out, err := s.CreateEntities(ctx, []graph.Entity{{Name: "Go", Type: "game", Observations: []string{"has goroutines"}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "language", out[0].Type)
	assert.Equal(t, []string{"compiled", "has goroutines"}, out[0].Observations)
}

func testMergeIdempotence(t *testing.T, s graph.Backend) {
	ctx := context.Background()
	e := person("Idem", "one", "two", "one")

	first, err := s.CreateEntities(ctx, []graph.Entity{e})
	require.NoError(t, err)
	second, err := s.CreateEntities(ctx, []graph.Entity{e})
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two"}, first[0].Observations)
	assert.Equal(t, first, second)
}

func testCreateEntitiesPreservesOrder(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	var in []graph.Entity
	for i := 0; i < 25; i++ {
		in = append(in, person(fmt.Sprintf("entity-%02d", i), fmt.Sprintf("obs %d", i)))
	}

	out, err := s.CreateEntities(ctx, in)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.Equal(t, in[i].Observations, out[i].Observations)
	}
}

func testObservationDedup(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("Dedup", "likes tea")})
	require.NoError(t, err)

	results, err := s.AddObservations(ctx, []graph.ObservationAddition{{
		EntityName:   "Dedup",
		Observations: []string{"likes tea", "Likes tea", "likes tea", "rides a bike"},
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Dedup", results[0].EntityName)
	assert.Equal(t, []string{"Likes tea", "rides a bike"}, results[0].AddedObservations)
	assert.Empty(t, results[0].Error)

	again, err := s.AddObservations(ctx, []graph.ObservationAddition{{
		EntityName:   "Dedup",
		Observations: []string{"likes tea"},
	}})
	require.NoError(t, err)
	assert.Empty(t, again[0].AddedObservations)
	assert.NoError(t, again[0].Err)

	kg := readGraph(t, s)
	dedup, _ := findEntity(kg, "Dedup")
	assert.Equal(t, []string{"likes tea", "Likes tea", "rides a bike"}, dedup.Observations)
}

func testAddObservationsPartialFailure(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("Known")})
	require.NoError(t, err)

	results, err := s.AddObservations(ctx, []graph.ObservationAddition{
		{EntityName: "Ghost", Observations: []string{"boo"}},
		{EntityName: "Known", Observations: []string{"exists"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Ghost", results[0].EntityName)
	assert.True(t, apperrors.IsNotFound(results[0].Err))
	assert.Contains(t, results[0].Error, "Ghost")
	assert.Empty(t, results[0].AddedObservations)

	assert.Equal(t, "Known", results[1].EntityName)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, []string{"exists"}, results[1].AddedObservations)

	kg := readGraph(t, s)
	_, ghost := findEntity(kg, "Ghost")
	assert.False(t, ghost, "addObservations must not create entities")
}

func testRelationUniqueness(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("A"), person("B")})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := s.CreateRelations(ctx, []graph.Relation{knows("A", "B")})
		require.NoError(t, err)
		assert.Equal(t, []graph.Relation{knows("A", "B")}, out)
	}
	_, err = s.CreateRelations(ctx, []graph.Relation{knows("A", "B"), knows("A", "B")})
	require.NoError(t, err)

	kg := readGraph(t, s)
	assert.Equal(t, []graph.Relation{knows("A", "B")}, kg.Relations)
}

func testRelationsAreDirected(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("A"), person("B")})
	require.NoError(t, err)
	_, err = s.CreateRelations(ctx, []graph.Relation{
		knows("A", "B"),
		knows("B", "A"),
		{Source: "A", Target: "B", RelationType: "WORKS_WITH"},
	})
	require.NoError(t, err)

	kg := readGraph(t, s)
	assert.ElementsMatch(t, []graph.Relation{
		knows("A", "B"),
		knows("B", "A"),
		{Source: "A", Target: "B", RelationType: "WORKS_WITH"},
	}, kg.Relations)
}

func testCreateRelationsSkipsMissingEndpoints(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("A"), person("B"), person("C")})
	require.NoError(t, err)

	out, err := s.CreateRelations(ctx, []graph.Relation{
		knows("B", "C"),
		knows("A", "Nobody"),
		{Source: "A", Target: "B", RelationType: "has space"},
		knows("Nobody", "A"),
	})
	require.NoError(t, err)
	assert.Equal(t, []graph.Relation{
		knows("B", "C"),
		{Source: "A", Target: "B", RelationType: "has space"},
	}, out)

	kg := readGraph(t, s)
	assert.Len(t, kg.Entities, 3)
	assert.Len(t, kg.Relations, 2)
}

func testCascadeDelete(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("Hub"), person("A"), person("B")})
	require.NoError(t, err)
	_, err = s.CreateRelations(ctx, []graph.Relation{
		knows("Hub", "A"),
		knows("B", "Hub"),
		knows("A", "B"),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntities(ctx, []string{"Hub"}))

	kg := readGraph(t, s)
	for _, r := range kg.Relations {
		assert.NotEqual(t, "Hub", r.Source)
		assert.NotEqual(t, "Hub", r.Target)
	}
	assert.Equal(t, []graph.Relation{knows("A", "B")}, kg.Relations)
	assert.Len(t, kg.Entities, 2)
}

func testDeletionTolerance(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	assert.NoError(t, s.DeleteEntities(ctx, []string{"does-not-exist"}))
	assert.NoError(t, s.DeleteEntities(ctx, nil))
	assert.NoError(t, s.DeleteRelations(ctx, []graph.Relation{knows("X", "Y")}))
	assert.NoError(t, s.DeleteObservations(ctx, []graph.ObservationDeletion{
		{EntityName: "does-not-exist", Observations: []string{"anything"}},
	}))

	kg := readGraph(t, s)
	assert.Empty(t, kg.Entities)
	assert.Empty(t, kg.Relations)
}

func testDeleteObservations(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{
		person("Obs", "keep", "drop", "Drop"),
		person("Lonely", "only"),
	})
	require.NoError(t, err)

	deletions := []graph.ObservationDeletion{
		{EntityName: "Obs", Observations: []string{"drop", "never there"}},
		{EntityName: "Lonely", Observations: []string{"only"}},
	}
	require.NoError(t, s.DeleteObservations(ctx, deletions))
	require.NoError(t, s.DeleteObservations(ctx, deletions))

	kg := readGraph(t, s)
	obs, ok := findEntity(kg, "Obs")
	require.True(t, ok)
	assert.Equal(t, []string{"keep", "Drop"}, obs.Observations)

	lonely, ok := findEntity(kg, "Lonely")
	require.True(t, ok, "removing the last observation keeps the entity")
	assert.Empty(t, lonely.Observations)
}

func testDeleteRelations(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("A"), person("B")})
	require.NoError(t, err)
	_, err = s.CreateRelations(ctx, []graph.Relation{
		knows("A", "B"),
		knows("B", "A"),
		{Source: "A", Target: "B", RelationType: "WORKS_WITH"},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRelations(ctx, []graph.Relation{
		knows("A", "B"),
		{Source: "A", Target: "B", RelationType: "works_with"},
	}))

	kg := readGraph(t, s)
	assert.ElementsMatch(t, []graph.Relation{
		knows("B", "A"),
		{Source: "A", Target: "B", RelationType: "WORKS_WITH"},
	}, kg.Relations)
	assert.Len(t, kg.Entities, 2)
}

func seedSearchGraph(t *testing.T, s graph.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{
		person("Alice", "drinks espresso every morning"),
		person("Bob", "plays chess"),
		person("Carol", "enjoys green tea"),
		{Name: "Acme", Type: "company", Observations: []string{"makes anvils"}},
	})
	require.NoError(t, err)
	_, err = s.CreateRelations(ctx, []graph.Relation{
		knows("Alice", "Bob"),
		{Source: "Carol", Target: "Alice", RelationType: "MENTORS"},
		{Source: "Bob", Target: "Acme", RelationType: "WORKS_AT"},
	})
	require.NoError(t, err)
}

func testSearchConnectivity(t *testing.T, s graph.Backend) {
	seedSearchGraph(t, s)

	kg, err := s.SearchMemories(context.Background(), "espresso")
	require.NoError(t, err)

	require.NotEmpty(t, kg.Entities)
	assert.Equal(t, "Alice", kg.Entities[0].Name, "matches come first")
	assert.ElementsMatch(t, []string{"Alice", "Bob", "Carol"}, kg.EntityNames())
	assert.ElementsMatch(t, []graph.Relation{
		knows("Alice", "Bob"),
		{Source: "Carol", Target: "Alice", RelationType: "MENTORS"},
	}, kg.Relations)

	names := kg.EntityNames()
	for _, r := range kg.Relations {
		assert.Contains(t, names, r.Source)
		assert.Contains(t, names, r.Target)
	}
}

func testSearchBlankQuery(t *testing.T, s graph.Backend) {
	seedSearchGraph(t, s)

	for _, q := range []string{"", "   "} {
		kg, err := s.SearchMemories(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, kg.Entities)
		assert.Empty(t, kg.Relations)
	}

	kg, err := s.SearchMemories(context.Background(), "nothingmatchesthis")
	require.NoError(t, err)
	assert.NotNil(t, kg.Entities)
	assert.Empty(t, kg.Entities)
}

func testSearchObservationsAndType(t *testing.T, s graph.Backend) {
	seedSearchGraph(t, s)
	ctx := context.Background()

	kg, err := s.SearchMemories(ctx, "company")
	require.NoError(t, err)
	assert.Equal(t, "Acme", kg.Entities[0].Name)
	assert.ElementsMatch(t, []string{"Acme", "Bob"}, kg.EntityNames())

	kg, err = s.SearchMemories(ctx, "Carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol", kg.Entities[0].Name)

	kg, err = s.SearchMemories(ctx, "tea")
	require.NoError(t, err)
	assert.Contains(t, kg.EntityNames(), "Carol")
}

func testFindMemoriesByName(t *testing.T, s graph.Backend) {
	seedSearchGraph(t, s)
	ctx := context.Background()

	kg, err := s.FindMemoriesByName(ctx, []string{"Acme", "Nobody"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Bob"}, kg.EntityNames())
	assert.Equal(t, []graph.Relation{{Source: "Bob", Target: "Acme", RelationType: "WORKS_AT"}}, kg.Relations)

	kg, err = s.FindMemoriesByName(ctx, []string{"acme"})
	require.NoError(t, err)
	assert.Empty(t, kg.Entities, "names match exactly")

	kg, err = s.FindMemoriesByName(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, kg.Entities)
	assert.Empty(t, kg.Relations)
}

func testIndexManagerIdempotent(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	require.NoError(t, s.CreateFulltextIndex(ctx))
	require.NoError(t, s.CreateNameConstraint(ctx))

	_, err := s.CreateEntities(ctx, []graph.Entity{person("Indexed", "searchable words")})
	require.NoError(t, err)

	kg, err := s.SearchMemories(ctx, "searchable")
	require.NoError(t, err)
	assert.Equal(t, []string{"Indexed"}, kg.EntityNames())
}
