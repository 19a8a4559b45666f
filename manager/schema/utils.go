package schema

import (
	"errors"
	"log/slog"
	"slices"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrDatasetNotFound          = errors.New("dataset not found")
	ErrDatasetExists            = errors.New("dataset already exists")
	ErrFieldNotFound            = errors.New("field not found")
	ErrFieldExists              = errors.New("field already exists")
	ErrInvalidIdentifier        = errors.New("invalid identifier")
	ErrInvalidDatatype          = errors.New("invalid datatype")
	ErrInvalidIdType            = errors.New("invalid id type, must be one of SERIAL, VARCHAR, INTEGER")
	ErrInvalidField             = errors.New("invalid field")
	ErrVersioningRequiresSerial = errors.New("versioned datasets must use a SERIAL id")
	ErrDbAccessFailed           = errors.New("db access failed")
)

// RegisterDataset adds the catalog row for dataset. It does not create the
// backing table; callers run both inside one transaction.
func RegisterDataset(txn *gorm.DB, dataset Dataset) error {
	var existing Dataset
	result := txn.Limit(1).Find(&existing, "name = ?", dataset.Name)
	if result.Error != nil {
		slog.Error("sql error checking for existing dataset", "dataset", dataset.Name, "error", result.Error)
		return ErrDbAccessFailed
	}
	if result.RowsAffected != 0 {
		return ErrDatasetExists
	}

	if dataset.Fields == nil {
		dataset.Fields = datatypes.JSONSlice[Field]{}
	}
	if dataset.UniqueTogether == nil {
		dataset.UniqueTogether = datatypes.JSONSlice[string]{}
	}

	result = txn.Create(&dataset)
	if result.Error != nil {
		slog.Error("sql error registering dataset", "dataset", dataset.Name, "error", result.Error)
		return ErrDbAccessFailed
	}

	return nil
}

func GetDataset(name string, db *gorm.DB) (Dataset, error) {
	var dataset Dataset

	result := db.First(&dataset, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return dataset, ErrDatasetNotFound
		}
		slog.Error("sql error in get dataset", "dataset", name, "error", result.Error)
		return dataset, ErrDbAccessFailed
	}

	return dataset, nil
}

func ListDatasets(db *gorm.DB) ([]Dataset, error) {
	var datasets []Dataset

	result := db.Order("name").Find(&datasets)
	if result.Error != nil {
		slog.Error("sql error listing datasets", "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	return datasets, nil
}

// FilterByOrg keeps the datasets tagged with org. An empty org keeps everything.
func FilterByOrg(datasets []Dataset, org string) []Dataset {
	if org == "" {
		return datasets
	}
	return slices.DeleteFunc(slices.Clone(datasets), func(d Dataset) bool {
		return d.Org != org
	})
}

// DatasetExists reports whether a catalog row or a physical table already
// claims the name.
func DatasetExists(name string, db *gorm.DB) (bool, error) {
	var count int64
	result := db.Model(&Dataset{}).Where("name = ?", name).Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking if dataset exists", "dataset", name, "error", result.Error)
		return false, ErrDbAccessFailed
	}
	if count > 0 {
		return true, nil
	}
	return db.Migrator().HasTable(name), nil
}

func GetIdType(name string, db *gorm.DB) (IdType, error) {
	var dataset Dataset
	result := db.Select("idtype").First(&dataset, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", ErrDatasetNotFound
		}
		slog.Error("sql error in get id type", "dataset", name, "error", result.Error)
		return "", ErrDbAccessFailed
	}
	return dataset.IdType, nil
}

func UnregisterDataset(txn *gorm.DB, name string) error {
	result := txn.Delete(&Dataset{}, "name = ?", name)
	if result.Error != nil {
		slog.Error("sql error unregistering dataset", "dataset", name, "error", result.Error)
		return ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return ErrDatasetNotFound
	}
	return nil
}

func UpdateFields(txn *gorm.DB, name string, fields []Field) error {
	result := txn.Model(&Dataset{}).Where("name = ?", name).Update("fields", datatypes.JSONSlice[Field](fields))
	if result.Error != nil {
		slog.Error("sql error updating dataset fields", "dataset", name, "error", result.Error)
		return ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return ErrDatasetNotFound
	}
	return nil
}

func MarkVersioned(txn *gorm.DB, name string) error {
	result := txn.Model(&Dataset{}).Where("name = ?", name).Update("versioned", true)
	if result.Error != nil {
		slog.Error("sql error marking dataset as versioned", "dataset", name, "error", result.Error)
		return ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return ErrDatasetNotFound
	}
	return nil
}
