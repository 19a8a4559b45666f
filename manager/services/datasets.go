package services

import (
	"dataset_manager/manager/provision"
	"dataset_manager/manager/schema"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
)

func datasetUri(name string) string {
	return fmt.Sprintf("/v1/datasets/%v", name)
}

// CreateDataset registers dataset and creates its table in one transaction.
// If the dataset already exists and the request asks for versioning, the
// existing dataset is upgraded to versioned instead.
func (e *Engine) CreateDataset(dataset schema.Dataset) (Result, error) {
	if dataset.IdType == "" {
		dataset.IdType = schema.SerialId
	}
	if err := schema.ValidateDataset(dataset); err != nil {
		slog.Info("rejected dataset definition", "dataset", dataset.Name, "error", err)
		return e.finish(err, Result{})
	}

	success := Result{StatusCode: StatusCreated, Message: "CREATED", Uri: datasetUri(dataset.Name)}

	err := e.db.Transaction(func(txn *gorm.DB) error {
		exists, err := schema.DatasetExists(dataset.Name, txn)
		if err != nil {
			return err
		}

		if exists {
			if !dataset.Versioned {
				return fmt.Errorf("%w: %v", schema.ErrDatasetExists, dataset.Name)
			}
			existing, err := schema.GetDataset(dataset.Name, txn)
			if errors.Is(err, schema.ErrDatasetNotFound) {
				// A table without a catalog row cannot be upgraded.
				return fmt.Errorf("%w: table %v is not registered", schema.ErrDatasetExists, dataset.Name)
			}
			if err != nil {
				return err
			}
			success = Result{StatusCode: StatusOK, Message: "Dataset versioning added", Uri: datasetUri(dataset.Name)}
			return e.enableVersioning(txn, existing)
		}

		if err := schema.RegisterDataset(txn, dataset); err != nil {
			return err
		}
		return provision.CreateTable(txn, e.dialect, &dataset)
	})
	if err != nil {
		slog.Error("error creating dataset", "dataset", dataset.Name, "error", err)
	}

	return e.finish(err, success)
}

// CheckIfExists resolves to 302 when a catalog row or a table already claims
// the name and to 404 otherwise.
func (e *Engine) CheckIfExists(name string) (Result, error) {
	exists, err := schema.DatasetExists(name, e.db)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{StatusCode: StatusFound, Message: "FOUND", Uri: datasetUri(name)}, nil
	}
	return Result{StatusCode: StatusNotFound, Message: "NOT FOUND"}, nil
}

func (e *Engine) GetDataset(name string) (Result, error) {
	dataset, err := e.dataset(name, e.db)
	return e.finish(err, okResult(dataset))
}

// ListDatasets returns the catalog ordered by name, limited to org when org
// is not empty.
func (e *Engine) ListDatasets(org string) (Result, error) {
	datasets, err := schema.ListDatasets(e.db)
	if err != nil {
		return Result{}, err
	}
	return okResult(schema.FilterByOrg(datasets, org)), nil
}

func (e *Engine) GetIdType(name string) (Result, error) {
	idType, err := schema.GetIdType(name, e.db)
	return e.finish(err, okResult(idType))
}

// DeleteDataset unregisters the dataset and drops its table. It cannot be
// undone.
func (e *Engine) DeleteDataset(name string) (Result, error) {
	err := e.db.Transaction(func(txn *gorm.DB) error {
		dataset, err := e.dataset(name, txn)
		if err != nil {
			return err
		}
		if err := schema.UnregisterDataset(txn, name); err != nil {
			return err
		}
		return provision.DropTable(txn, e.dialect, &dataset)
	})
	if err == nil {
		slog.Info("deleted dataset", "dataset", name)
	}

	return e.finish(err, Result{StatusCode: StatusOK, Message: "OK", Uri: "/v1/datasets"})
}

func hasField(dataset *schema.Dataset, name string) bool {
	for _, f := range dataset.Fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// AddField adds one column to the dataset table and appends the field to the
// catalog definition.
func (e *Engine) AddField(name string, field schema.Field) (Result, error) {
	if err := schema.ValidateDatasetField(name, field); err != nil {
		return e.finish(err, Result{})
	}

	err := e.db.Transaction(func(txn *gorm.DB) error {
		dataset, err := e.dataset(name, txn)
		if err != nil {
			return err
		}
		if hasField(&dataset, field.Name) {
			return fmt.Errorf("%w: %v.%v", schema.ErrFieldExists, name, field.Name)
		}

		if err := provision.AddColumn(txn, e.dialect, &dataset, field); err != nil {
			return err
		}
		return schema.UpdateFields(txn, name, append(dataset.Fields, field))
	})

	return e.finish(err, Result{StatusCode: StatusCreated, Message: "CREATED", Uri: datasetUri(name)})
}

// EditField changes the constraints and metadata of an existing field. The
// name and datatype of a field cannot change.
func (e *Engine) EditField(name, fieldName string, field schema.Field) (Result, error) {
	if field.Name == "" {
		field.Name = fieldName
	}
	if err := schema.ValidateField(field); err != nil {
		return e.finish(err, Result{})
	}

	err := e.db.Transaction(func(txn *gorm.DB) error {
		dataset, err := e.dataset(name, txn)
		if err != nil {
			return err
		}

		old, found := dataset.Field(fieldName)
		if !found {
			return fmt.Errorf("%w: %v.%v", schema.ErrFieldNotFound, name, fieldName)
		}

		diff := schema.FieldDiff{Old: old, New: field}
		if err := provision.EditColumnConstraints(txn, e.dialect, &dataset, diff); err != nil {
			return err
		}

		fields := make([]schema.Field, 0, len(dataset.Fields))
		for _, f := range dataset.Fields {
			if f.Name == fieldName {
				f = field
			}
			fields = append(fields, f)
		}
		return schema.UpdateFields(txn, name, fields)
	})

	return e.finish(err, Result{StatusCode: StatusOK, Message: "UPDATED", Uri: datasetUri(name)})
}

func (e *Engine) enableVersioning(txn *gorm.DB, dataset schema.Dataset) error {
	if dataset.Versioned {
		slog.Info("dataset is already versioned", "dataset", dataset.Name)
		return nil
	}
	if dataset.IdType != schema.SerialId {
		return fmt.Errorf("%w: dataset %v uses %v ids", schema.ErrVersioningRequiresSerial, dataset.Name, dataset.IdType)
	}

	dataset.Versioned = true
	if err := provision.EnableVersioning(txn, e.dialect, &dataset); err != nil {
		return err
	}

	slog.Info("enabled versioning", "dataset", dataset.Name)
	return nil
}

// EnableVersioning retrofits version tracking onto an existing dataset. The
// catalog flag only changes if every statement succeeds.
func (e *Engine) EnableVersioning(name string) (Result, error) {
	err := e.db.Transaction(func(txn *gorm.DB) error {
		dataset, err := e.dataset(name, txn)
		if err != nil {
			return err
		}
		return e.enableVersioning(txn, dataset)
	})

	return e.finish(err, Result{StatusCode: StatusOK, Message: "Dataset versioning added", Uri: datasetUri(name)})
}

// Seed creates the datasets that do not exist yet. Existing datasets are left
// untouched apart from enabling versioning when a seed asks for it.
func (e *Engine) Seed(datasets []schema.Dataset) error {
	for _, dataset := range datasets {
		res, err := e.CreateDataset(dataset)
		if err != nil {
			return fmt.Errorf("error seeding dataset %v: %w", dataset.Name, err)
		}
		switch res.StatusCode {
		case StatusCreated, StatusOK:
			slog.Info("seeded dataset", "dataset", dataset.Name, "message", res.Message)
		default:
			slog.Info("skipped dataset seed", "dataset", dataset.Name, "status", res.StatusCode, "message", res.Message)
		}
	}
	return nil
}
