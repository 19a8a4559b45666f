package provision

import (
	"dataset_manager/manager/schema"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// Apply runs statements in order on txn. Any failure is reported as
// ErrUnprocessable and is never retried, since the schema may be partially
// changed when the caller is not inside a transaction.
func Apply(txn *gorm.DB, statements []string) error {
	for _, stmt := range statements {
		slog.Debug("applying ddl", "statement", stmt)
		if err := txn.Exec(stmt).Error; err != nil {
			slog.Error("ddl statement failed", "statement", stmt, "error", err)
			return fmt.Errorf("%w: %v", ErrUnprocessable, err)
		}
	}
	return nil
}

func CreateTable(txn *gorm.DB, d Dialect, dataset *schema.Dataset) error {
	statements, err := BuildCreateTable(d, dataset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnprocessable, err)
	}
	if err := Apply(txn, statements); err != nil {
		return err
	}
	slog.Info("created dataset table", "dataset", dataset.Name, "versioned", dataset.Versioned)
	return nil
}

func AddColumn(txn *gorm.DB, d Dialect, dataset *schema.Dataset, field schema.Field) error {
	if err := Apply(txn, BuildAddColumn(d, dataset, field)); err != nil {
		return err
	}
	slog.Info("added field to dataset table", "dataset", dataset.Name, "field", field.Name)
	return nil
}

// EditColumnConstraints applies the constraint delta of diff. Unsupported
// changes are returned as ErrUnsupportedChange before anything runs.
func EditColumnConstraints(txn *gorm.DB, d Dialect, dataset *schema.Dataset, diff schema.FieldDiff) error {
	statements, err := BuildEditColumnConstraints(d, dataset, diff)
	if err != nil {
		return err
	}
	if len(statements) == 0 {
		slog.Info("field edit has no constraint changes", "dataset", dataset.Name, "field", diff.New.Name)
		return nil
	}
	if err := Apply(txn, statements); err != nil {
		return err
	}
	slog.Info("updated field constraints", "dataset", dataset.Name, "field", diff.New.Name)
	return nil
}

func DropTable(txn *gorm.DB, d Dialect, dataset *schema.Dataset) error {
	if err := Apply(txn, BuildDropTable(d, dataset)); err != nil {
		return err
	}
	slog.Info("dropped dataset table", "dataset", dataset.Name)
	return nil
}
