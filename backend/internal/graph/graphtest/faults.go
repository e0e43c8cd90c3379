package graphtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-mcp/backend/internal/graph"
	apperrors "memory-mcp/backend/pkg/errors"
)

// Names the fault injector must make unwritable
const (
	// FaultEntityName is an entity whose creation fails
	FaultEntityName = "broken"
	// FaultRelationType is a relation type whose creation fails
	FaultRelationType = "BROKEN"
)

// FaultInjector arranges for b to reject writes of FaultEntityName and of
// relations typed FaultRelationType with an operation failure. Other writes
// must keep working.
type FaultInjector func(t *testing.T, b graph.Backend)

// RunPartialFailureSuite checks that batch creates report the items applied
// before a failure. newBackend must run batch items one at a time so the item
// ahead of the failing one is always applied.
func RunPartialFailureSuite(t *testing.T, newBackend Factory, inject FaultInjector) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s graph.Backend)
	}{
		{"CreateEntitiesReturnsAppliedItems", testCreateEntitiesReturnsAppliedItems},
		{"CreateRelationsReturnsAppliedItems", testCreateRelationsReturnsAppliedItems},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newBackend(t)
			inject(t, s)
			tc.fn(t, s)
		})
	}
}

func testCreateEntitiesReturnsAppliedItems(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	out, err := s.CreateEntities(ctx, []graph.Entity{
		person("good", "kept"),
		person(FaultEntityName, "lost"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeOperation))

	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].Name)
	assert.Equal(t, []string{"kept"}, out[0].Observations)

	kg := readGraph(t, s)
	assert.Equal(t, []string{"good"}, kg.EntityNames())
}

func testCreateRelationsReturnsAppliedItems(t *testing.T, s graph.Backend) {
	ctx := context.Background()

	_, err := s.CreateEntities(ctx, []graph.Entity{person("good")})
	require.NoError(t, err)

	ok := graph.Relation{Source: "good", Target: "good", RelationType: "OK"}
	out, err := s.CreateRelations(ctx, []graph.Relation{
		ok,
		{Source: "good", Target: "good", RelationType: FaultRelationType},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeOperation))
	assert.Equal(t, []graph.Relation{ok}, out)

	kg := readGraph(t, s)
	assert.Equal(t, []graph.Relation{ok}, kg.Relations)
}
