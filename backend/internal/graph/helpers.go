package graph

import (
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	apperrors "memory-mcp/backend/pkg/errors"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	switch slice := val.(type) {
	case []interface{}:
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	case []string:
		return append([]string{}, slice...)
	}
	return []string{}
}

func entityFromRecord(record *neo4j.Record) Entity {
	return Entity{
		Name:         getStringFromRecord(record, "name"),
		Type:         getStringFromRecord(record, "type"),
		Observations: getStringSliceFromRecord(record, "observations"),
	}
}

func relationFromRecord(record *neo4j.Record) Relation {
	return Relation{
		Source:       getStringFromRecord(record, "source"),
		Target:       getStringFromRecord(record, "target"),
		RelationType: getStringFromRecord(record, "relationType"),
	}
}

// quoteIdentifier renders s as a backtick-quoted Cypher identifier.
// Relationship types cannot be parameters, so this is the only way user text
// reaches query structure.
func quoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Neo4j status codes that mean the database itself could not serve the call
var unavailableCodes = map[string]bool{
	"Neo.TransientError.General.DatabaseUnavailable": true,
	"Neo.ClientError.Database.DatabaseNotFound":      true,
	"Neo.TransientError.Database.DatabaseUnavailable": true,
}

// classify maps a driver error onto the store error taxonomy. Errors that are
// already classified pass through unchanged.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.TypeOf(err); ok {
		return err
	}
	if neo4j.IsConnectivityError(err) {
		return apperrors.NewBackendUnavailable(operation, err)
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		if strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security.") || unavailableCodes[neoErr.Code] {
			return apperrors.NewBackendUnavailable(operation, err)
		}
	}
	return apperrors.NewOperationFailed(operation, err)
}
