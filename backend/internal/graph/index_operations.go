package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ============================================================================
// Schema Operations
// ============================================================================

// CreateFulltextIndex ensures the full-text index used by SearchMemories
// exists. Calling it again once the index is present is a no-op.
func (r *Repository) CreateFulltextIndex(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE FULLTEXT INDEX %s IF NOT EXISTS
		FOR (m:Memory) ON EACH [m.name, m.type, m.observations]
	`, quoteIdentifier(fulltextIndexName))

	if _, err := r.write(ctx, OpCreateIndex, query, nil); err != nil {
		return err
	}

	r.logger.Info("Full-text index ready", zap.String("index", fulltextIndexName))
	return nil
}

// CreateNameConstraint ensures entity names are unique at the database level,
// so concurrent merges of one name cannot produce two nodes. It fails when
// duplicate names already exist.
func (r *Repository) CreateNameConstraint(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE CONSTRAINT %s IF NOT EXISTS
		FOR (m:Memory) REQUIRE m.name IS UNIQUE
	`, quoteIdentifier(nameConstraintName))

	if _, err := r.write(ctx, OpCreateConstraint, query, nil); err != nil {
		return err
	}

	r.logger.Info("Name constraint ready", zap.String("constraint", nameConstraintName))
	return nil
}
