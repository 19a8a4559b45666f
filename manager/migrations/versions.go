package migrations

import (
	"dataset_manager/manager/provision"
	"dataset_manager/manager/schema"
	"log/slog"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var catalogColumns = []string{"Org", "Versioned", "UniqueTogether"}

// Migration_1_catalog_columns adds the org, versioning and uniqueTogether
// columns to catalogs that only stored the name, id type and fields.
func Migration_1_catalog_columns(txn *gorm.DB) error {
	migrator := txn.Migrator()
	for _, column := range catalogColumns {
		if migrator.HasColumn(&schema.Dataset{}, column) {
			continue
		}
		if err := migrator.AddColumn(&schema.Dataset{}, column); err != nil {
			return err
		}
		slog.Info("added catalog column", "column", column)
	}

	result := txn.Model(&schema.Dataset{}).Where("unique_together IS NULL").Update("unique_together", datatypes.JSONSlice[string]{})
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func Rollback_1_catalog_columns(txn *gorm.DB) error {
	migrator := txn.Migrator()
	for _, column := range catalogColumns {
		if !migrator.HasColumn(&schema.Dataset{}, column) {
			continue
		}
		if err := migrator.DropColumn(&schema.Dataset{}, column); err != nil {
			return err
		}
	}
	return nil
}

// Migration_2_audit_columns adds created/updated audit columns to dataset
// tables provisioned before rows recorded who wrote them.
func Migration_2_audit_columns(txn *gorm.DB) error {
	dialect, err := provision.DialectOf(txn)
	if err != nil {
		return err
	}

	datasets, err := schema.ListDatasets(txn)
	if err != nil {
		return err
	}

	migrator := txn.Migrator()
	for _, dataset := range datasets {
		if !migrator.HasTable(dataset.Name) {
			slog.Warn("catalog entry has no backing table", "dataset", dataset.Name)
			continue
		}

		statements := provision.BuildAddAuditColumns(dialect, dataset.Name, func(column string) bool {
			return migrator.HasColumn(dataset.Name, column)
		})
		if err := provision.Apply(txn, statements); err != nil {
			return err
		}
		if len(statements) > 0 {
			slog.Info("added audit columns", "dataset", dataset.Name, "count", len(statements))
		}
	}
	return nil
}
