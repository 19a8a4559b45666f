package provision

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect selects the DDL shape for the storage engine behind a connection.
type Dialect string

const (
	Postgres Dialect = "postgres"
	Sqlite   Dialect = "sqlite"
)

func DialectOf(db *gorm.DB) (Dialect, error) {
	switch name := db.Dialector.Name(); name {
	case "postgres":
		return Postgres, nil
	case "sqlite":
		return Sqlite, nil
	default:
		return "", fmt.Errorf("unsupported storage engine '%v'", name)
	}
}

// Identifiers reaching these helpers have been validated by the schema
// registry, so quoting never needs escaping.
func quote(identifier string) string {
	return `"` + identifier + `"`
}

func quoteAll(identifiers ...string) string {
	quoted := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		quoted = append(quoted, quote(id))
	}
	return strings.Join(quoted, ", ")
}

func fieldKeyName(dataset, field string) string {
	return dataset + "_" + field + "_key"
}

func fieldCurrentUniqueName(dataset, field string) string {
	return dataset + "_" + field + "_current_unique"
}

func uniqueTogetherName(dataset string) string {
	return dataset + "_unique_together"
}

func versionUniqueName(dataset string) string {
	return dataset + "_version_current_unique"
}

func versionTriggerName(dataset string) string {
	return dataset + "_version_id_default"
}
