package provision

import (
	"dataset_manager/manager/schema"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// CheckVersionable guards every versioning change: the requested definition
// must ask for versioning and use a SERIAL id.
func CheckVersionable(dataset *schema.Dataset) error {
	if !dataset.Versioned {
		return ErrNotVersioned
	}
	if dataset.IdType != schema.SerialId {
		return schema.ErrVersioningRequiresSerial
	}
	return nil
}

// BuildVersioning returns the statements that retrofit version tracking onto
// an existing dataset table: the version_id source, the version columns, the
// (version_id, is_current) rule, and every uniqueness rule rebuilt so it only
// applies to current rows.
func BuildVersioning(d Dialect, dataset *schema.Dataset) []string {
	if d == Sqlite {
		return buildSqliteVersioning(dataset)
	}

	version := versionUnique(dataset)
	parts := []string{
		fmt.Sprintf("ADD COLUMN IF NOT EXISTS %v INTEGER NOT NULL DEFAULT nextval('%v')", quote(schema.VersionIdColumn), dataset.SequenceName()),
		fmt.Sprintf("ADD COLUMN IF NOT EXISTS %v SMALLINT DEFAULT 1", quote(schema.IsCurrentColumn)),
		fmt.Sprintf("ADD COLUMN IF NOT EXISTS %v INTEGER NOT NULL DEFAULT 1", quote(schema.VersionColumn)),
		fmt.Sprintf("DROP CONSTRAINT IF EXISTS %v", quote(version.name)),
		"ADD " + version.constraint(),
	}

	if len(dataset.UniqueTogether) > 0 {
		together := uniqueTogether(dataset, true)
		parts = append(parts,
			fmt.Sprintf("DROP CONSTRAINT IF EXISTS %v", quote(together.name)),
			"ADD "+together.constraint(),
		)
	}

	for _, field := range dataset.Fields {
		if !field.IsUnique() {
			continue
		}
		current := fieldUnique(dataset, field.Name, true)
		parts = append(parts,
			fmt.Sprintf("DROP CONSTRAINT IF EXISTS %v", quote(current.name)),
			"ADD "+current.constraint(),
			fmt.Sprintf("DROP CONSTRAINT IF EXISTS %v", quote(fieldKeyName(dataset.Name, field.Name))),
		)
	}

	return []string{
		fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %v", quote(dataset.SequenceName())),
		fmt.Sprintf("ALTER TABLE IF EXISTS %v %v", quote(dataset.Name), strings.Join(parts, ",\n  ")),
	}
}

func buildSqliteVersioning(dataset *schema.Dataset) []string {
	table := quote(dataset.Name)
	version := versionUnique(dataset)

	statements := []string{
		fmt.Sprintf("ALTER TABLE %v ADD COLUMN %v INTEGER", table, quote(schema.VersionIdColumn)),
		fmt.Sprintf("ALTER TABLE %v ADD COLUMN %v SMALLINT DEFAULT 1", table, quote(schema.IsCurrentColumn)),
		fmt.Sprintf("ALTER TABLE %v ADD COLUMN %v INTEGER NOT NULL DEFAULT 1", table, quote(schema.VersionColumn)),
		fmt.Sprintf("UPDATE %v SET %v = %v WHERE %v IS NULL", table, quote(schema.VersionIdColumn), quote(schema.IdColumn), quote(schema.VersionIdColumn)),
		versionIdTrigger(dataset),
		dropIndex(version.name),
		version.createIndex(dataset.Name),
	}

	if len(dataset.UniqueTogether) > 0 {
		together := uniqueTogether(dataset, true)
		statements = append(statements, dropIndex(together.name), together.createIndex(dataset.Name))
	}

	for _, field := range dataset.Fields {
		if !field.IsUnique() {
			continue
		}
		current := fieldUnique(dataset, field.Name, true)
		statements = append(statements,
			dropIndex(current.name),
			current.createIndex(dataset.Name),
			dropIndex(fieldKeyName(dataset.Name, field.Name)),
		)
	}

	return statements
}

// EnableVersioning applies the versioning DDL and flips the catalog flag. Run
// it inside a transaction so a failure leaves neither half applied.
func EnableVersioning(txn *gorm.DB, d Dialect, dataset *schema.Dataset) error {
	if err := CheckVersionable(dataset); err != nil {
		return err
	}

	if err := Apply(txn, BuildVersioning(d, dataset)); err != nil {
		return fmt.Errorf("error adding versioning to dataset %v: %w", dataset.Name, err)
	}

	return schema.MarkVersioned(txn, dataset.Name)
}
