// Package localgraph is an embedded knowledge store on SQLite. It keeps the
// same contract as the Neo4j repository and uses an FTS5 table as its
// full-text index.
package localgraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"memory-mcp/backend/internal/graph"
	apperrors "memory-mcp/backend/pkg/errors"
	"memory-mcp/backend/pkg/logger"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	name TEXT PRIMARY KEY,
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_name TEXT NOT NULL,
	content TEXT NOT NULL,
	UNIQUE(entity_name, content)
);
CREATE INDEX IF NOT EXISTS idx_observations_entity ON observations(entity_name, id);

CREATE TABLE IF NOT EXISTS relations (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source, target, relation_type)
);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target);
`

// Store implements graph.Backend on a SQLite database
type Store struct {
	db         *sql.DB
	path       string
	writeLimit int
	indexed    atomic.Bool
	logger     *zap.Logger
}

var _ graph.Backend = (*Store)(nil)

// Open opens (creating if needed) the database at path and prepares the schema.
// The full-text index is only created by CreateFulltextIndex.
func Open(ctx context.Context, path string, opts graph.Options) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, apperrors.NewBackendUnavailable("open", fmt.Errorf("failed to create directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.NewBackendUnavailable("open", err)
	}
	// An in-memory database exists only on its connection; one connection
	// also serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:         db,
		path:       path,
		writeLimit: opts.WriteLimit(),
		logger:     logger.Get().With(zap.String("backend", "sqlite")),
	}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify("initialize", fmt.Errorf("failed to create schema: %w", err))
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, searchTable,
	).Scan(&n)
	if err != nil {
		return classify("initialize", err)
	}
	s.indexed.Store(n > 0)

	s.logger.Info("SQLite store opened",
		zap.String("path", s.path),
		zap.Bool("indexed", n > 0),
	)
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in one transaction and commits it. Any error rolls back.
func (s *Store) withTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(operation, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(operation, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(operation, err)
	}
	return nil
}

// queryer is the read surface shared by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// jsonList encodes values for a json_each(?) parameter, so one bound
// argument can carry a whole name list.
func jsonList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SQLite result codes that mean the database file itself cannot be used
var unavailableCodes = map[int]bool{
	sqlite3.SQLITE_CANTOPEN: true,
	sqlite3.SQLITE_NOTADB:   true,
	sqlite3.SQLITE_IOERR:    true,
	sqlite3.SQLITE_CORRUPT:  true,
	sqlite3.SQLITE_FULL:     true,
	sqlite3.SQLITE_READONLY: true,
	sqlite3.SQLITE_BUSY:     true,
	sqlite3.SQLITE_LOCKED:   true,
}

// classify maps database/sql and SQLite errors onto the store error taxonomy
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.TypeOf(err); ok {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return apperrors.NewBackendUnavailable(operation, err)
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && unavailableCodes[sqliteErr.Code()&0xff] {
		return apperrors.NewBackendUnavailable(operation, err)
	}
	return apperrors.NewOperationFailed(operation, err)
}
