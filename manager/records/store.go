package records

import (
	"database/sql"
	"dataset_manager/manager/query"
	"dataset_manager/manager/schema"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
)

// Column is one value bound by a write, in the order it should appear in the
// statement.
type Column struct {
	Name  string
	Value any
}

// Property is one column of a fetched row. ColumnType comes from the type the
// storage engine reports, not from the registry.
type Property struct {
	Field      string `json:"field"`
	Value      any    `json:"value"`
	ColumnType string `json:"columnType"`
}

type Item struct {
	DatasetName string     `json:"datasetName"`
	ItemId      string     `json:"itemId"`
	Properties  []Property `json:"properties"`
}

func (i Item) Value(field string) (any, bool) {
	for _, p := range i.Properties {
		if p.Field == field {
			return p.Value, true
		}
	}
	return nil, false
}

// Rows is the result of a list query: column names in select order and one
// map per row.
type Rows struct {
	Fields []string         `json:"fields"`
	Rows   []map[string]any `json:"rows"`
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

func bindValue(value any) any {
	if s, ok := value.(string); ok && s == "" {
		return nil
	}
	return value
}

func normalize(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

func hasVersionColumns(columns []Column) (any, bool) {
	var versionId any
	found := 0
	for _, c := range columns {
		switch c.Name {
		case schema.VersionIdColumn:
			versionId = c.Value
			found++
		case schema.VersionColumn, schema.IsCurrentColumn:
			found++
		}
	}
	return versionId, found == 3
}

func buildSupersede(dataset string, versionId any, actor string) (string, []any) {
	text := fmt.Sprintf(
		"UPDATE %v SET %v = NULL, %v = CURRENT_TIMESTAMP, %v = $1 WHERE %v = $2 AND %v = 1",
		quote(dataset), quote(schema.IsCurrentColumn), quote(schema.UpdatedAtColumn), quote(schema.UpdatedByColumn),
		quote(schema.VersionIdColumn), quote(schema.IsCurrentColumn),
	)
	return text, []any{actor, versionId}
}

func buildInsert(dataset string, columns []Column, actor string) (string, []any) {
	names := make([]string, 0, len(columns)+1)
	refs := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)

	for _, c := range columns {
		names = append(names, quote(c.Name))
		args = append(args, bindValue(c.Value))
		refs = append(refs, fmt.Sprintf("$%d", len(args)))
	}
	names = append(names, quote(schema.CreatedByColumn))
	args = append(args, actor)
	refs = append(refs, fmt.Sprintf("$%d", len(args)))

	text := fmt.Sprintf(
		"INSERT INTO %v (%v) VALUES (%v) RETURNING %v",
		quote(dataset), strings.Join(names, ", "), strings.Join(refs, ", "), quote(schema.IdColumn),
	)
	return text, args
}

// Insert writes one row and returns its id. When the columns carry
// version_id, version and is_current together the current row for that
// version_id is retired first, in the same transaction, so the new row can
// take its place.
func Insert(db *gorm.DB, dataset string, columns []Column, actor string) (string, error) {
	var id any

	err := db.Transaction(func(txn *gorm.DB) error {
		if versionId, ok := hasVersionColumns(columns); ok {
			text, args := buildSupersede(dataset, versionId, actor)
			if err := txn.Exec(text, args...).Error; err != nil {
				slog.Error("sql error retiring current revision", "dataset", dataset, "version_id", versionId, "error", err)
				return err
			}
		}

		text, args := buildInsert(dataset, columns, actor)
		rows, err := txn.Raw(text, args...).Rows()
		if err != nil {
			slog.Error("sql error inserting item", "dataset", dataset, "error", err)
			return err
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return fmt.Errorf("insert into %v returned no id", dataset)
		}
		if err := rows.Scan(&id); err != nil {
			return err
		}
		return rows.Err()
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprint(normalize(id)), nil
}

// columnType maps the engine's reported type name onto the registry datatypes.
// Unrecognized types map to the empty string.
func columnType(ct *sql.ColumnType) string {
	name := strings.ToUpper(ct.DatabaseTypeName())
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "VARCHAR", "TEXT", "CHARACTER VARYING", "BPCHAR":
		return string(schema.Varchar)
	case "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "INT":
		return string(schema.Integer)
	case "DATE":
		return string(schema.Date)
	case "NUMERIC", "DECIMAL":
		return string(schema.Numeric)
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME":
		return string(schema.Timestamp)
	default:
		return ""
	}
}

func scanRow(rows *sql.Rows, count int) ([]any, error) {
	values := make([]any, count)
	ptrs := make([]any, count)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i := range values {
		values[i] = normalize(values[i])
	}
	return values, nil
}

// FindOne fetches one row by primary key.
func FindOne(db *gorm.DB, dataset string, id any) (Item, error) {
	text := fmt.Sprintf("SELECT * FROM %v WHERE %v = $1", quote(dataset), quote(schema.IdColumn))

	rows, err := db.Raw(text, id).Rows()
	if err != nil {
		slog.Error("sql error finding item", "dataset", dataset, "item_id", id, "error", err)
		return Item{}, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return Item{}, err
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Item{}, err
		}
		return Item{}, ErrItemNotFound
	}

	values, err := scanRow(rows, len(types))
	if err != nil {
		return Item{}, err
	}

	item := Item{DatasetName: dataset, ItemId: fmt.Sprint(id), Properties: make([]Property, 0, len(types))}
	for i, ct := range types {
		item.Properties = append(item.Properties, Property{Field: ct.Name(), Value: values[i], ColumnType: columnType(ct)})
	}

	return item, rows.Err()
}

func Exists(db *gorm.DB, dataset string, id any) (bool, error) {
	text := fmt.Sprintf("SELECT count(*) FROM %v WHERE %v = $1", quote(dataset), quote(schema.IdColumn))
	var count int64
	if err := db.Raw(text, id).Scan(&count).Error; err != nil {
		slog.Error("sql error checking if item exists", "dataset", dataset, "item_id", id, "error", err)
		return false, err
	}
	return count > 0, nil
}

// LatestVersion is the highest version stored for versionId, or 0 when no
// revision has it.
func LatestVersion(db *gorm.DB, dataset string, versionId any) (int64, error) {
	text := fmt.Sprintf("SELECT COALESCE(MAX(%v), 0) FROM %v WHERE %v = $1",
		quote(schema.VersionColumn), quote(dataset), quote(schema.VersionIdColumn))
	var version int64
	if err := db.Raw(text, versionId).Scan(&version).Error; err != nil {
		slog.Error("sql error finding latest version", "dataset", dataset, "version_id", versionId, "error", err)
		return 0, err
	}
	return version, nil
}

func buildUpdate(dataset string, id any, columns []Column, actor string) (string, []any) {
	sets := make([]string, 0, len(columns)+2)
	args := make([]any, 0, len(columns)+2)

	for _, c := range columns {
		args = append(args, bindValue(c.Value))
		sets = append(sets, fmt.Sprintf("%v = $%d", quote(c.Name), len(args)))
	}
	sets = append(sets, fmt.Sprintf("%v = CURRENT_TIMESTAMP", quote(schema.UpdatedAtColumn)))
	args = append(args, actor)
	sets = append(sets, fmt.Sprintf("%v = $%d", quote(schema.UpdatedByColumn), len(args)))
	args = append(args, id)

	text := fmt.Sprintf("UPDATE %v SET %v WHERE %v = $%d", quote(dataset), strings.Join(sets, ", "), quote(schema.IdColumn), len(args))
	return text, args
}

// Update sets exactly the supplied columns on one row in place.
func Update(db *gorm.DB, dataset string, id any, columns []Column, actor string) error {
	text, args := buildUpdate(dataset, id, columns, actor)

	result := db.Exec(text, args...)
	if result.Error != nil {
		slog.Error("sql error updating item", "dataset", dataset, "item_id", id, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Delete removes one row and returns the id it had.
func Delete(db *gorm.DB, dataset string, id any) (string, error) {
	text := fmt.Sprintf("DELETE FROM %v WHERE %v = $1 RETURNING %v", quote(dataset), quote(schema.IdColumn), quote(schema.IdColumn))

	rows, err := db.Raw(text, id).Rows()
	if err != nil {
		slog.Error("sql error deleting item", "dataset", dataset, "item_id", id, "error", err)
		return "", err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", ErrItemNotFound
	}

	var deleted any
	if err := rows.Scan(&deleted); err != nil {
		return "", err
	}
	return fmt.Sprint(normalize(deleted)), rows.Err()
}

// List runs a select built by the query package.
func List(db *gorm.DB, q query.Query) (Rows, error) {
	rows, err := db.Raw(q.Text, q.Args...).Rows()
	if err != nil {
		slog.Error("sql error listing items", "query", q.Text, "error", err)
		return Rows{}, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return Rows{}, err
	}

	result := Rows{Fields: names, Rows: []map[string]any{}}
	for rows.Next() {
		values, err := scanRow(rows, len(names))
		if err != nil {
			return Rows{}, err
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}

	return result, rows.Err()
}

func Count(db *gorm.DB, q query.Query) (int64, error) {
	var count int64
	if err := db.Raw(q.Text, q.Args...).Scan(&count).Error; err != nil {
		slog.Error("sql error counting items", "query", q.Text, "error", err)
		return 0, err
	}
	return count, nil
}
