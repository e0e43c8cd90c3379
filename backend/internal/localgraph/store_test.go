package localgraph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-mcp/backend/internal/graph"
	"memory-mcp/backend/internal/graph/graphtest"
	apperrors "memory-mcp/backend/pkg/errors"
)

func newIndexedStore(t *testing.T, path string) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, path, graph.Options{WriteConcurrency: 4})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.CreateNameConstraint(ctx))
	require.NoError(t, s.CreateFulltextIndex(ctx))
	return s
}

func TestStoreContract_Memory(t *testing.T) {
	graphtest.RunStoreSuite(t, func(t *testing.T) graph.Backend {
		return newIndexedStore(t, MemoryPath)
	})
}

func TestStoreContract_File(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file-backed contract run")
	}
	graphtest.RunStoreSuite(t, func(t *testing.T) graph.Backend {
		return newIndexedStore(t, filepath.Join(t.TempDir(), "memory.db"))
	})
}

// rejectFaults installs triggers that abort writes of the fault names
func rejectFaults(t *testing.T, b graph.Backend) {
	t.Helper()
	s, ok := b.(*Store)
	require.True(t, ok)

	_, err := s.db.Exec(`CREATE TRIGGER reject_entity BEFORE INSERT ON entities
		WHEN NEW.name = '` + graphtest.FaultEntityName + `'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)
	_, err = s.db.Exec(`CREATE TRIGGER reject_relation BEFORE INSERT ON relations
		WHEN NEW.relation_type = '` + graphtest.FaultRelationType + `'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)
}

func TestStore_PartialFailure(t *testing.T) {
	graphtest.RunPartialFailureSuite(t, func(t *testing.T) graph.Backend {
		ctx := context.Background()
		s, err := Open(ctx, MemoryPath, graph.Options{WriteConcurrency: 1})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		require.NoError(t, s.CreateFulltextIndex(ctx))
		return s
	}, rejectFaults)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory.db")

	s, err := Open(ctx, path, graph.Options{})
	require.NoError(t, err)
	require.NoError(t, s.CreateFulltextIndex(ctx))
	_, err = s.CreateEntities(ctx, []graph.Entity{{Name: "Ada", Type: "person", Observations: []string{"wrote the first program"}}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, graph.Options{})
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.indexed.Load(), "existing index is detected on open")

	_, err = reopened.AddObservations(ctx, []graph.ObservationAddition{{EntityName: "Ada", Observations: []string{"studied engines"}}})
	require.NoError(t, err)

	kg, err := reopened.SearchMemories(ctx, "engines")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada"}, kg.EntityNames())
	assert.Equal(t, []string{"wrote the first program", "studied engines"}, kg.Entities[0].Observations)
}

func TestStore_IndexBackfillsExistingEntities(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, MemoryPath, graph.Options{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CreateEntities(ctx, []graph.Entity{{Name: "Early", Type: "note", Observations: []string{"written before indexing"}}})
	require.NoError(t, err)

	_, err = s.SearchMemories(ctx, "indexing")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeOperation), "search without an index fails as an operation error")

	require.NoError(t, s.CreateFulltextIndex(ctx))
	require.NoError(t, s.CreateFulltextIndex(ctx))

	kg, err := s.SearchMemories(ctx, "indexing")
	require.NoError(t, err)
	assert.Equal(t, []string{"Early"}, kg.EntityNames())
}

func TestStore_SearchTracksDeletes(t *testing.T) {
	ctx := context.Background()
	s := newIndexedStore(t, MemoryPath)

	_, err := s.CreateEntities(ctx, []graph.Entity{
		{Name: "Temp", Type: "note", Observations: []string{"ephemeral detail"}},
		{Name: "Kept", Type: "note", Observations: []string{"durable detail"}},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteObservations(ctx, []graph.ObservationDeletion{{EntityName: "Kept", Observations: []string{"durable detail"}}}))
	kg, err := s.SearchMemories(ctx, "durable")
	require.NoError(t, err)
	assert.Empty(t, kg.Entities)

	require.NoError(t, s.DeleteEntities(ctx, []string{"Temp"}))
	kg, err = s.SearchMemories(ctx, "ephemeral")
	require.NoError(t, err)
	assert.Empty(t, kg.Entities)
}

func TestStore_SearchTreatsOperatorsAsText(t *testing.T) {
	ctx := context.Background()
	s := newIndexedStore(t, MemoryPath)

	_, err := s.CreateEntities(ctx, []graph.Entity{{Name: "Q", Type: "note", Observations: []string{"AND OR NOT near"}}})
	require.NoError(t, err)

	for _, q := range []string{`"unbalanced`, `NOT`, `a:b*`, `(`} {
		_, err := s.SearchMemories(ctx, q)
		assert.NoError(t, err, q)
	}

	kg, err := s.SearchMemories(ctx, `"`)
	require.NoError(t, err)
	assert.Empty(t, kg.Entities)
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, MemoryPath, graph.Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.ReadGraph(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsBackendUnavailable(err))
	assert.True(t, apperrors.IsRetryable(err))

	results, err := s.AddObservations(ctx, []graph.ObservationAddition{{EntityName: "A", Observations: []string{"x"}}})
	require.Error(t, err)
	assert.True(t, apperrors.IsBackendUnavailable(err))
	require.Len(t, results, 1)
	assert.True(t, apperrors.IsBackendUnavailable(results[0].Err))
}

func TestStore_CancelledContext(t *testing.T) {
	s := newIndexedStore(t, MemoryPath)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateEntities(ctx, []graph.Entity{{Name: "Never"}})
	require.Error(t, err)
	assert.False(t, apperrors.IsBackendUnavailable(err))

	kg, err := s.ReadGraph(context.Background())
	require.NoError(t, err)
	assert.Empty(t, kg.Entities)
}

func TestStore_RejectsUnkeyableInput(t *testing.T) {
	ctx := context.Background()
	s := newIndexedStore(t, MemoryPath)

	_, err := s.CreateEntities(ctx, []graph.Entity{{Name: ""}})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeOperation))

	_, err = s.CreateRelations(ctx, []graph.Relation{{Source: "A", Target: "B"}})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeOperation))
}

func TestMatchExpression(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"empty", "", ""},
		{"blank", "  \t ", ""},
		{"single", "coffee", `"coffee"`},
		{"several", "green  tea", `"green" OR "tea"`},
		{"quotes stripped", `say "hi"`, `"say" OR "hi"`},
		{"only quotes", `"" "`, ""},
		{"punctuation dropped", `( coffee * )`, `"coffee"`},
		{"inner punctuation kept", `a:b*`, `"a:b*"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchExpression(tt.query))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	typed := apperrors.NewEntityNotFound("A")
	assert.Same(t, typed, classify("op", typed))

	err := classify("read_graph", errors.New("sql: database is closed"))
	assert.True(t, apperrors.IsBackendUnavailable(err))

	err = classify("read_graph", errors.New("no such table: entity_search"))
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeOperation))
}
