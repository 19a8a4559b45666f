package schema

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxIdentifierLength = 48

	// Postgres truncates identifiers past 63 bytes, so the constraint, index
	// and sequence names derived from dataset and field names must fit too.
	maxDerivedLength     = 63
	longestDatasetSuffix = "_version_current_unique"
	longestFieldSuffix   = "_current_unique"
	maxDatasetNameLength = maxDerivedLength - len(longestDatasetSuffix)
)

var (
	datasetNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	fieldNameRegex   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// Columns every dataset table carries in addition to its declared fields.
const (
	IdColumn        = "id"
	VersionIdColumn = "version_id"
	VersionColumn   = "version"
	IsCurrentColumn = "is_current"
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
	CreatedByColumn = "created_by"
	UpdatedByColumn = "updated_by"
	TotalCountAlias = "_total_count"
)

var systemColumns = map[string]struct{}{
	IdColumn: {}, VersionIdColumn: {}, VersionColumn: {}, IsCurrentColumn: {},
	CreatedAtColumn: {}, UpdatedAtColumn: {}, CreatedByColumn: {}, UpdatedByColumn: {},
	TotalCountAlias: {},
}

func IsSystemColumn(name string) bool {
	_, ok := systemColumns[strings.ToLower(name)]
	return ok
}

var reservedWords = map[string]struct{}{}

func init() {
	words := []string{
		"all", "alter", "and", "any", "as", "asc", "between", "by", "case", "cast", "check",
		"collate", "column", "constraint", "create", "cross", "current_date", "current_time",
		"current_timestamp", "current_user", "default", "delete", "desc", "distinct", "drop",
		"else", "end", "except", "exists", "false", "fetch", "for", "foreign", "from", "full",
		"grant", "group", "having", "in", "index", "inner", "insert", "intersect", "into", "is",
		"join", "key", "left", "like", "limit", "not", "null", "offset", "on", "or", "order",
		"outer", "primary", "references", "returning", "right", "select", "session_user", "set",
		"some", "table", "then", "to", "trigger", "true", "union", "unique", "update", "user",
		"using", "values", "when", "where", "window", "with",
		// catalog and session tables share the namespace with datasets
		"datasets", "session", "migrations",
	}
	for _, w := range words {
		reservedWords[w] = struct{}{}
	}
}

func isReserved(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "sqlite_") || strings.HasPrefix(lower, "pg_") {
		return true
	}
	_, ok := reservedWords[lower]
	return ok
}

// ValidateDatasetName checks that name can be interpolated into DDL as a table
// identifier. All identifiers are checked here, never at query build time.
func ValidateDatasetName(name string) error {
	if len(name) == 0 || len(name) > maxDatasetNameLength {
		return fmt.Errorf("%w: dataset name must be between 1 and %d characters", ErrInvalidIdentifier, maxDatasetNameLength)
	}
	if !datasetNameRegex.MatchString(name) {
		return fmt.Errorf("%w: dataset name '%v' must be lowercase letters, digits and underscores, starting with a letter", ErrInvalidIdentifier, name)
	}
	if isReserved(name) {
		return fmt.Errorf("%w: dataset name '%v' is reserved", ErrInvalidIdentifier, name)
	}
	return nil
}

func ValidateFieldName(name string) error {
	if len(name) == 0 || len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: field name must be between 1 and %d characters", ErrInvalidIdentifier, maxIdentifierLength)
	}
	if !fieldNameRegex.MatchString(name) {
		return fmt.Errorf("%w: field name '%v' must be letters, digits and underscores, starting with a letter", ErrInvalidIdentifier, name)
	}
	if isReserved(name) || IsSystemColumn(name) {
		return fmt.Errorf("%w: field name '%v' is reserved", ErrInvalidIdentifier, name)
	}
	return nil
}

func ValidateField(field Field) error {
	if err := ValidateFieldName(field.Name); err != nil {
		return err
	}
	if _, err := ParseDatatype(string(field.Datatype)); err != nil {
		return fmt.Errorf("field '%v': %w", field.Name, err)
	}
	if field.GenerateUniqueId && field.Datatype != Varchar {
		return fmt.Errorf("%w: field '%v' can only generate unique ids if it is a VARCHAR", ErrInvalidField, field.Name)
	}
	return nil
}

// ValidateDatasetField checks field and that the names derived from it in
// dataset stay within the identifier limit.
func ValidateDatasetField(dataset string, field Field) error {
	if err := ValidateField(field); err != nil {
		return err
	}
	if length := len(dataset) + 1 + len(field.Name) + len(longestFieldSuffix); length > maxDerivedLength {
		return fmt.Errorf("%w: field name '%v' is too long for dataset '%v', the combined length must be at most %d characters",
			ErrInvalidIdentifier, field.Name, dataset, maxDerivedLength-1-len(longestFieldSuffix))
	}
	return nil
}

func ValidateDataset(dataset Dataset) error {
	if err := ValidateDatasetName(dataset.Name); err != nil {
		return err
	}
	if _, err := ParseIdType(string(dataset.IdType)); err != nil {
		return err
	}
	if dataset.Versioned && dataset.IdType != SerialId {
		return ErrVersioningRequiresSerial
	}

	seen := make(map[string]struct{}, len(dataset.Fields))
	for _, field := range dataset.Fields {
		if err := ValidateDatasetField(dataset.Name, field); err != nil {
			return err
		}
		key := strings.ToLower(field.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: field '%v' is declared more than once", ErrInvalidField, field.Name)
		}
		seen[key] = struct{}{}
	}

	together := make(map[string]struct{}, len(dataset.UniqueTogether))
	for _, name := range dataset.UniqueTogether {
		if _, ok := dataset.Field(name); !ok {
			return fmt.Errorf("%w: uniqueTogether references unknown field '%v'", ErrInvalidField, name)
		}
		if _, ok := together[name]; ok {
			return fmt.Errorf("%w: uniqueTogether lists field '%v' more than once", ErrInvalidField, name)
		}
		together[name] = struct{}{}
	}

	return nil
}
