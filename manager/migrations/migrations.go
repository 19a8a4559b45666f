package migrations

import (
	"dataset_manager/manager/schema"
	"fmt"
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			// Catalogs created before migrations were tracked.
			ID:      "0",
			Migrate: func(*gorm.DB) error { return nil },
		},
		{
			ID:       "1",
			Migrate:  Migration_1_catalog_columns,
			Rollback: Rollback_1_catalog_columns,
		},
		{
			ID:      "2",
			Migrate: Migration_2_audit_columns,
			// Audit data is not discarded on rollback.
		},
	}
}

// Migrate brings the dataset catalog and every dataset table up to date. A
// database without a catalog is initialized directly at the latest schema.
func Migrate(db *gorm.DB) error {
	migration := gormigrate.New(db, gormigrate.DefaultOptions, migrations())

	migration.InitSchema(func(txn *gorm.DB) error {
		if txn.Migrator().HasTable(&schema.Dataset{}) {
			// Untracked catalogs are upgraded in place, since InitSchema marks
			// every migration as applied.
			slog.Info("untracked dataset catalog detected, applying all migrations")
			for _, m := range migrations() {
				if err := m.Migrate(txn); err != nil {
					return fmt.Errorf("migration %v failed: %w", m.ID, err)
				}
			}
			return nil
		}

		slog.Info("clean database detected, running full schema initialization")
		return txn.AutoMigrate(&schema.Dataset{})
	})

	if err := migration.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("migration completed successfully")
	return nil
}
