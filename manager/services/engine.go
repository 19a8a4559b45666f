package services

import (
	"dataset_manager/manager/provision"
	"dataset_manager/manager/query"
	"dataset_manager/manager/records"
	"dataset_manager/manager/schema"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Engine runs dataset and item operations against one database. Every
// operation resolves to a Result for expected outcomes and returns an error
// only when storage fails unexpectedly.
type Engine struct {
	db      *gorm.DB
	dialect provision.Dialect
	pages   query.PageConfig
}

func NewEngine(db *gorm.DB, pages query.PageConfig) (*Engine, error) {
	dialect, err := provision.DialectOf(db)
	if err != nil {
		return nil, err
	}
	if pages.ItemsPerPage <= 0 {
		return nil, fmt.Errorf("items per page must be positive, got %d", pages.ItemsPerPage)
	}
	return &Engine{db: db, dialect: dialect, pages: pages}, nil
}

var notFoundErrors = []error{
	schema.ErrDatasetNotFound,
	schema.ErrFieldNotFound,
	records.ErrItemNotFound,
}

var unprocessableErrors = []error{
	schema.ErrDatasetExists,
	schema.ErrFieldExists,
	schema.ErrInvalidIdentifier,
	schema.ErrInvalidDatatype,
	schema.ErrInvalidIdType,
	schema.ErrInvalidField,
	schema.ErrVersioningRequiresSerial,
	provision.ErrUnprocessable,
	provision.ErrUnsupportedChange,
	provision.ErrNotVersioned,
	provision.ErrUnknownIdType,
	records.ErrItemExists,
	records.ErrNotCurrent,
	records.ErrStaleVersion,
	query.ErrInvalidFilter,
	ErrInvalidValue,
}

// classify codes the errors that are expected outcomes of an operation.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var cerr *codedError
	if errors.As(err, &cerr) {
		return err
	}

	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return notFound(err)
		}
	}
	for _, target := range unprocessableErrors {
		if errors.Is(err, target) {
			return unprocessable(err)
		}
	}
	if records.IsConstraintViolation(err) {
		return unprocessable(err)
	}

	return err
}

func (e *Engine) finish(err error, success Result) (Result, error) {
	return resolve(classify(err), success)
}

func (e *Engine) dataset(name string, db *gorm.DB) (schema.Dataset, error) {
	if err := schema.ValidateDatasetName(name); err != nil {
		// Names that could never be registered cannot exist.
		return schema.Dataset{}, fmt.Errorf("%w: %v", schema.ErrDatasetNotFound, name)
	}
	return schema.GetDataset(name, db)
}
