package localgraph

import (
	"context"
	"database/sql"
	"strings"
	"unicode"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"memory-mcp/backend/internal/graph"
	apperrors "memory-mcp/backend/pkg/errors"
)

// searchTable is the FTS5 table that serves as the full-text index. It holds
// one row per entity with observations joined by newlines.
const searchTable = "entity_search"

const reindexQuery = `
	INSERT INTO ` + searchTable + ` (name, type, observations)
	SELECT e.name, e.type, coalesce((
		SELECT group_concat(content, char(10))
		FROM (SELECT content FROM observations WHERE entity_name = e.name ORDER BY id)
	), '')
	FROM entities e
`

// CreateFulltextIndex creates the FTS5 table if needed and rebuilds it from the
// current entities, so it is safe to call on every start.
func (s *Store) CreateFulltextIndex(ctx context.Context) error {
	err := s.withTx(ctx, graph.OpCreateIndex, func(tx *sql.Tx) error {
		statements := []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS ` + searchTable + ` USING fts5(name, type, observations)`,
			`DELETE FROM ` + searchTable,
			reindexQuery,
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.indexed.Store(true)
	s.logger.Info("Full-text index ready", zap.String("index", searchTable))
	return nil
}

// CreateNameConstraint is satisfied by the entities primary key
func (s *Store) CreateNameConstraint(ctx context.Context) error {
	return nil
}

// reindex refreshes the search row of one entity inside tx. It is a no-op
// until the index has been created.
func (s *Store) reindex(ctx context.Context, tx *sql.Tx, name string) error {
	if !s.indexed.Load() {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+searchTable+` WHERE name = ?`, name); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, reindexQuery+` WHERE e.name = ?`, name)
	return err
}

// matchExpression turns free text into an FTS5 query. Each whitespace
// separated term becomes a quoted phrase, terms without a letter or digit are
// dropped, and the phrases are OR-ed.
func matchExpression(query string) string {
	terms := lo.FilterMap(strings.Fields(query), func(term string, _ int) (string, bool) {
		term = strings.ReplaceAll(term, `"`, "")
		return `"` + term + `"`, strings.IndexFunc(term, isWordRune) >= 0
	})
	return strings.Join(terms, " OR ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// SearchMemories runs a full-text query and returns the ranked matches with
// their incident relations and far-end entities. A blank query returns an
// empty graph.
func (s *Store) SearchMemories(ctx context.Context, query string) (*graph.KnowledgeGraph, error) {
	expr := matchExpression(query)
	if expr == "" {
		return graph.NewKnowledgeGraph(), nil
	}

	var kg *graph.KnowledgeGraph
	err := s.withTx(ctx, graph.OpSearchMemories, func(tx *sql.Tx) error {
		matched, err := queryStrings(ctx, tx,
			`SELECT name FROM `+searchTable+` WHERE `+searchTable+` MATCH ? ORDER BY rank`, expr)
		if err != nil {
			return err
		}
		kg, err = loadNeighbourhood(ctx, tx, lo.Uniq(matched))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Memories searched",
		zap.String("operation", graph.OpSearchMemories),
		zap.String("query", query),
		zap.Strings("entities", kg.EntityNames()),
		zap.Int("relations", len(kg.Relations)),
	)
	return kg, nil
}

// FindMemoriesByName looks entities up by exact name with the same
// neighbourhood rule as SearchMemories
func (s *Store) FindMemoriesByName(ctx context.Context, names []string) (*graph.KnowledgeGraph, error) {
	names = lo.Uniq(names)
	if len(names) == 0 {
		return graph.NewKnowledgeGraph(), nil
	}

	var kg *graph.KnowledgeGraph
	err := s.withTx(ctx, graph.OpFindMemoriesByName, func(tx *sql.Tx) error {
		var err error
		kg, err = loadNeighbourhood(ctx, tx, names)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Memories found by name",
		zap.String("operation", graph.OpFindMemoriesByName),
		zap.Int("requested", len(names)),
		zap.Strings("entities", kg.EntityNames()),
	)
	return kg, nil
}

// loadNeighbourhood returns the named entities, every relation incident to one
// of them, and the entities at the far end of those relations
func loadNeighbourhood(ctx context.Context, q queryer, names []string) (*graph.KnowledgeGraph, error) {
	kg := graph.NewKnowledgeGraph()
	if len(names) == 0 {
		return kg, nil
	}

	list, err := jsonList(names)
	if err != nil {
		return nil, apperrors.NewOperationFailed("load_neighbourhood", err)
	}
	relations, err := loadRelations(ctx, q,
		`r.source IN (SELECT value FROM json_each(?1)) OR r.target IN (SELECT value FROM json_each(?1))`, list)
	if err != nil {
		return nil, err
	}

	expanded := graph.ExpandNames(names, relations)
	list, err = jsonList(expanded)
	if err != nil {
		return nil, apperrors.NewOperationFailed("load_neighbourhood", err)
	}
	entities, err := loadEntities(ctx, q, `e.name IN (SELECT value FROM json_each(?))`, list)
	if err != nil {
		return nil, err
	}

	kg.Entities = graph.SortByNames(entities, expanded)
	kg.Relations = relations
	return kg, nil
}
