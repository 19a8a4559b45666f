package provision

import (
	"dataset_manager/manager/schema"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnprocessable     = errors.New("unprocessable entity")
	ErrUnsupportedChange = errors.New("unsupported field change")
	ErrNotVersioned      = errors.New("table is not versioned")
	ErrUnknownIdType     = errors.New("unknown id type")
)

func idColumn(d Dialect, idType schema.IdType) (string, error) {
	switch idType {
	case schema.SerialId:
		if d == Sqlite {
			return quote(schema.IdColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
		}
		return quote(schema.IdColumn) + " SERIAL PRIMARY KEY", nil
	case schema.VarcharId, schema.IntegerId:
		return fmt.Sprintf("%v %v NOT NULL PRIMARY KEY", quote(schema.IdColumn), idType), nil
	default:
		return "", fmt.Errorf("%w: '%v'", ErrUnknownIdType, idType)
	}
}

func versionColumns(d Dialect, dataset *schema.Dataset) []string {
	versionId := quote(schema.VersionIdColumn) + " INTEGER"
	if d == Postgres {
		versionId += fmt.Sprintf(" NOT NULL DEFAULT nextval('%v')", dataset.SequenceName())
	}
	return []string{
		versionId,
		quote(schema.IsCurrentColumn) + " SMALLINT DEFAULT 1",
		quote(schema.VersionColumn) + " INTEGER NOT NULL DEFAULT 1",
	}
}

func fieldColumn(field schema.Field) string {
	column := fmt.Sprintf("%v %v", quote(field.Name), field.Datatype)
	if field.IsNotNull() {
		column += " NOT NULL"
	}
	return column
}

var auditColumnTypes = []struct {
	name, ddl string
}{
	{schema.CreatedAtColumn, "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"},
	{schema.UpdatedAtColumn, "TIMESTAMP"},
	{schema.CreatedByColumn, "VARCHAR"},
	{schema.UpdatedByColumn, "VARCHAR"},
}

func auditColumns() []string {
	columns := make([]string, 0, len(auditColumnTypes))
	for _, c := range auditColumnTypes {
		columns = append(columns, quote(c.name)+" "+c.ddl)
	}
	return columns
}

// BuildAddAuditColumns adds the audit columns of tables created before they
// existed. Columns listed in present are skipped. Sqlite cannot add a column
// with a non-constant default, so created_at is left unset there.
func BuildAddAuditColumns(d Dialect, table string, present func(column string) bool) []string {
	statements := []string{}
	for _, c := range auditColumnTypes {
		if present(c.name) {
			continue
		}
		ddl := c.ddl
		if d == Sqlite {
			ddl = strings.TrimSuffix(ddl, " DEFAULT CURRENT_TIMESTAMP")
		}
		statements = append(statements, fmt.Sprintf("ALTER TABLE %v ADD COLUMN %v %v", quote(table), quote(c.name), ddl))
	}
	return statements
}

// uniqueSpec is one named uniqueness rule. It becomes a table constraint on
// postgres and a unique index on sqlite.
type uniqueSpec struct {
	name    string
	columns []string
}

func (u uniqueSpec) constraint() string {
	return fmt.Sprintf("CONSTRAINT %v UNIQUE (%v)", quote(u.name), quoteAll(u.columns...))
}

func (u uniqueSpec) createIndex(table string) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %v ON %v (%v)", quote(u.name), quote(table), quoteAll(u.columns...))
}

func dropIndex(name string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %v", quote(name))
}

func fieldUnique(dataset *schema.Dataset, field string, versioned bool) uniqueSpec {
	if versioned {
		return uniqueSpec{name: fieldCurrentUniqueName(dataset.Name, field), columns: []string{field, schema.IsCurrentColumn}}
	}
	return uniqueSpec{name: fieldKeyName(dataset.Name, field), columns: []string{field}}
}

func uniqueTogether(dataset *schema.Dataset, versioned bool) uniqueSpec {
	columns := append([]string{}, dataset.UniqueTogether...)
	if versioned {
		columns = append(columns, schema.IsCurrentColumn)
	}
	return uniqueSpec{name: uniqueTogetherName(dataset.Name), columns: columns}
}

func versionUnique(dataset *schema.Dataset) uniqueSpec {
	return uniqueSpec{name: versionUniqueName(dataset.Name), columns: []string{schema.VersionIdColumn, schema.IsCurrentColumn}}
}

// versionIdTrigger gives sqlite rows the version_id that postgres draws from
// the dataset sequence: the id of the first revision.
func versionIdTrigger(dataset *schema.Dataset) string {
	table := quote(dataset.Name)
	return fmt.Sprintf(
		"CREATE TRIGGER IF NOT EXISTS %v AFTER INSERT ON %v FOR EACH ROW WHEN NEW.%v IS NULL BEGIN UPDATE %v SET %v = NEW.%v WHERE %v = NEW.%v; END",
		quote(versionTriggerName(dataset.Name)), table, quote(schema.VersionIdColumn),
		table, quote(schema.VersionIdColumn), quote(schema.IdColumn), quote(schema.IdColumn), quote(schema.IdColumn),
	)
}

// BuildCreateTable returns the statements that create the table backing
// dataset: the id primary key, version columns when versioned, one column per
// field in declaration order, then the audit columns.
func BuildCreateTable(d Dialect, dataset *schema.Dataset) ([]string, error) {
	id, err := idColumn(d, dataset.IdType)
	if err != nil {
		return nil, err
	}

	statements := []string{}
	if dataset.Versioned && d == Postgres {
		statements = append(statements, fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %v", quote(dataset.SequenceName())))
	}

	columns := []string{id}
	uniques := []uniqueSpec{}

	if dataset.Versioned {
		columns = append(columns, versionColumns(d, dataset)...)
		uniques = append(uniques, versionUnique(dataset))
	}
	if len(dataset.UniqueTogether) > 0 {
		uniques = append(uniques, uniqueTogether(dataset, dataset.Versioned))
	}
	for _, field := range dataset.Fields {
		columns = append(columns, fieldColumn(field))
		if field.IsUnique() {
			uniques = append(uniques, fieldUnique(dataset, field.Name, dataset.Versioned))
		}
	}
	columns = append(columns, auditColumns()...)

	if d == Postgres {
		for _, u := range uniques {
			columns = append(columns, u.constraint())
		}
	}

	statements = append(statements, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (\n  %v\n)", quote(dataset.Name), strings.Join(columns, ",\n  ")))

	if d == Sqlite {
		for _, u := range uniques {
			statements = append(statements, u.createIndex(dataset.Name))
		}
		if dataset.Versioned {
			statements = append(statements, versionIdTrigger(dataset))
		}
	}

	return statements, nil
}

// BuildAddColumn returns the statements adding exactly one new field to the
// dataset table, including its NOT NULL and uniqueness rules.
func BuildAddColumn(d Dialect, dataset *schema.Dataset, field schema.Field) []string {
	add := fmt.Sprintf("ADD COLUMN %v", fieldColumn(field))

	if d == Sqlite {
		statements := []string{fmt.Sprintf("ALTER TABLE %v %v", quote(dataset.Name), add)}
		if field.IsUnique() {
			statements = append(statements, fieldUnique(dataset, field.Name, dataset.Versioned).createIndex(dataset.Name))
		}
		return statements
	}

	parts := []string{add}
	if field.IsUnique() {
		parts = append(parts, "ADD "+fieldUnique(dataset, field.Name, dataset.Versioned).constraint())
	}
	return []string{fmt.Sprintf("ALTER TABLE IF EXISTS %v %v", quote(dataset.Name), strings.Join(parts, ", "))}
}

// BuildEditColumnConstraints returns DDL for the constraint attributes that
// differ between diff.Old and diff.New. Nothing to change yields no
// statements. Renames and datatype changes are rejected.
func BuildEditColumnConstraints(d Dialect, dataset *schema.Dataset, diff schema.FieldDiff) ([]string, error) {
	if diff.Renamed() {
		return nil, fmt.Errorf("%w: field '%v' cannot be renamed to '%v'", ErrUnsupportedChange, diff.Old.Name, diff.New.Name)
	}
	if diff.DatatypeChanged() {
		return nil, fmt.Errorf("%w: field '%v' cannot change datatype from %v to %v", ErrUnsupportedChange, diff.Old.Name, diff.Old.Datatype, diff.New.Datatype)
	}

	field := diff.New.Name
	unique := fieldUnique(dataset, field, dataset.Versioned)

	if d == Sqlite {
		if diff.NotNullChanged() {
			return nil, fmt.Errorf("%w: sqlite cannot change NOT NULL on existing field '%v'", ErrUnsupportedChange, field)
		}
		if !diff.UniqueChanged() {
			return nil, nil
		}
		if diff.New.IsUnique() {
			return []string{unique.createIndex(dataset.Name)}, nil
		}
		return []string{dropIndex(unique.name)}, nil
	}

	parts := []string{}
	if diff.NotNullChanged() {
		if diff.New.IsNotNull() {
			parts = append(parts, fmt.Sprintf("ALTER COLUMN %v SET NOT NULL", quote(field)))
		} else {
			parts = append(parts, fmt.Sprintf("ALTER COLUMN %v DROP NOT NULL", quote(field)))
		}
	}
	if diff.UniqueChanged() {
		if diff.New.IsUnique() {
			parts = append(parts, "ADD "+unique.constraint())
		} else {
			parts = append(parts, fmt.Sprintf("DROP CONSTRAINT IF EXISTS %v", quote(unique.name)))
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}

	return []string{fmt.Sprintf("ALTER TABLE IF EXISTS %v %v", quote(dataset.Name), strings.Join(parts, ", "))}, nil
}

func BuildDropTable(d Dialect, dataset *schema.Dataset) []string {
	statements := []string{fmt.Sprintf("DROP TABLE IF EXISTS %v", quote(dataset.Name))}
	if d == Postgres {
		statements = append(statements, fmt.Sprintf("DROP SEQUENCE IF EXISTS %v", quote(dataset.SequenceName())))
	}
	return statements
}
