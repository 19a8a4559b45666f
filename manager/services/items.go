package services

import (
	"dataset_manager/manager/provision"
	"dataset_manager/manager/query"
	"dataset_manager/manager/records"
	"dataset_manager/manager/schema"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Columns of a stored row that list responses never show.
var hiddenColumns = []string{
	schema.TotalCountAlias,
	schema.CreatedAtColumn,
	schema.CreatedByColumn,
	schema.UpdatedAtColumn,
	schema.UpdatedByColumn,
}

var versionColumns = []string{schema.VersionIdColumn, schema.VersionColumn, schema.IsCurrentColumn}

type ItemList struct {
	IdType     schema.IdType     `json:"idType"`
	Fields     []string          `json:"fields"`
	Rows       []map[string]any  `json:"rows"`
	Pagination *query.Pagination `json:"pagination,omitempty"`
}

type itemCreated struct {
	ItemId string `json:"itemId"`
}

// writeColumns turns a payload into the columns of a write, in field
// declaration order. Fields missing from the payload are left out unless they
// generate unique ids on insert.
func writeColumns(dataset *schema.Dataset, payload map[string]any, inserting bool) ([]records.Column, error) {
	for key := range payload {
		if key == schema.IdColumn || slices.Contains(versionColumns, key) {
			continue
		}
		if _, ok := dataset.Field(key); !ok {
			return nil, fmt.Errorf("%w: dataset %v has no field '%v'", ErrInvalidValue, dataset.Name, key)
		}
	}

	columns := []records.Column{}
	for _, field := range dataset.Fields {
		raw, present := payload[field.Name]
		if inserting && field.GenerateUniqueId && (!present || raw == nil || raw == "") {
			columns = append(columns, records.Column{Name: field.Name, Value: uuid.NewString()})
			continue
		}
		if !present {
			continue
		}
		value, err := coerce(field, raw)
		if err != nil {
			return nil, fmt.Errorf("field '%v': %w", field.Name, err)
		}
		columns = append(columns, records.Column{Name: field.Name, Value: value})
	}
	return columns, nil
}

// versionWriteColumns passes through explicit version columns on a versioned
// dataset. Either all three are given or none.
func versionWriteColumns(dataset *schema.Dataset, payload map[string]any) ([]records.Column, error) {
	columns := []records.Column{}
	for _, name := range versionColumns {
		raw, present := payload[name]
		if !present {
			continue
		}
		if !dataset.Versioned {
			return nil, fmt.Errorf("%w: dataset %v is not versioned, '%v' cannot be set", ErrInvalidValue, dataset.Name, name)
		}
		value, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("field '%v': %w", name, err)
		}
		columns = append(columns, records.Column{Name: name, Value: value})
	}
	if len(columns) != 0 && len(columns) != len(versionColumns) {
		return nil, fmt.Errorf("%w: version_id, version and is_current must be given together", ErrInvalidValue)
	}
	return columns, nil
}

// checkRevision guards the supersede protocol: a written revision is always
// the current one and its version is above every version already stored for
// its version_id.
func checkRevision(txn *gorm.DB, dataset *schema.Dataset, versions []records.Column) error {
	var versionId, version, current int64
	for _, c := range versions {
		switch c.Name {
		case schema.VersionIdColumn:
			versionId = c.Value.(int64)
		case schema.VersionColumn:
			version = c.Value.(int64)
		case schema.IsCurrentColumn:
			current = c.Value.(int64)
		}
	}

	if current != 1 {
		return fmt.Errorf("%w: is_current must be 1, got %d", ErrInvalidValue, current)
	}
	if version < 1 {
		return fmt.Errorf("%w: version must be at least 1, got %d", ErrInvalidValue, version)
	}

	latest, err := records.LatestVersion(txn, dataset.Name, versionId)
	if err != nil {
		return err
	}
	if version <= latest {
		return fmt.Errorf("%w: version_id %d is at version %d, got %d", records.ErrStaleVersion, versionId, latest, version)
	}
	return nil
}

// InsertItem adds one item. Datasets with caller supplied ids reject an id
// that is already taken before writing. A versioned payload that carries
// version_id, version and is_current supersedes the current revision.
func (e *Engine) InsertItem(name string, payload map[string]any, actor string) (Result, error) {
	var itemId string
	var uri string

	err := e.db.Transaction(func(txn *gorm.DB) error {
		dataset, err := e.dataset(name, txn)
		if err != nil {
			return err
		}

		columns, err := writeColumns(&dataset, payload, true)
		if err != nil {
			return err
		}
		versions, err := versionWriteColumns(&dataset, payload)
		if err != nil {
			return err
		}
		if len(versions) != 0 {
			if err := checkRevision(txn, &dataset, versions); err != nil {
				return err
			}
		}

		if dataset.IdType != schema.SerialId {
			raw, present := payload[schema.IdColumn]
			if !present || raw == nil || raw == "" {
				return fmt.Errorf("%w: dataset %v requires an id", ErrInvalidValue, name)
			}
			id, err := coerceId(&dataset, raw)
			if err != nil {
				return err
			}
			exists, err := records.Exists(txn, name, id)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %v/%v", records.ErrItemExists, name, id)
			}
			columns = append([]records.Column{{Name: schema.IdColumn, Value: id}}, columns...)
		}

		itemId, err = records.Insert(txn, name, append(columns, versions...), actor)
		if err != nil {
			return err
		}
		uri = dataset.ItemUri(itemId)
		return nil
	})
	if err == nil {
		slog.Info("inserted item", "dataset", name, "item_id", itemId, "actor", actor)
	}

	return e.finish(err, Result{StatusCode: StatusCreated, Message: "CREATED", Data: itemCreated{ItemId: itemId}, Uri: uri})
}

func (e *Engine) lookupId(dataset *schema.Dataset, itemId string) (any, error) {
	id, err := coerceId(dataset, itemId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v/%v", records.ErrItemNotFound, dataset.Name, itemId)
	}
	return id, nil
}

func (e *Engine) GetItem(name, itemId string) (Result, error) {
	dataset, err := e.dataset(name, e.db)
	if err != nil {
		return e.finish(err, Result{})
	}

	id, err := e.lookupId(&dataset, itemId)
	if err != nil {
		return e.finish(err, Result{})
	}

	item, err := records.FindOne(e.db, name, id)
	return e.finish(err, Result{StatusCode: StatusOK, Message: "OK", Data: item, Uri: dataset.ItemUri(itemId)})
}

// UpdateItem changes an item in place, or on a versioned dataset writes a new
// revision of it.
func (e *Engine) UpdateItem(name, itemId string, payload map[string]any, actor string) (Result, error) {
	dataset, err := e.dataset(name, e.db)
	if err != nil {
		return e.finish(err, Result{})
	}
	if dataset.Versioned {
		return e.ReviseItem(name, itemId, payload, actor)
	}

	id, err := e.lookupId(&dataset, itemId)
	if err != nil {
		return e.finish(err, Result{})
	}

	columns, err := writeColumns(&dataset, payload, false)
	if err != nil {
		return e.finish(err, Result{})
	}
	if len(columns) == 0 {
		return e.finish(fmt.Errorf("%w: no fields to update", ErrInvalidValue), Result{})
	}

	err = e.db.Transaction(func(txn *gorm.DB) error {
		return records.Update(txn, name, id, columns, actor)
	})

	return e.finish(err, Result{StatusCode: StatusOK, Message: "UPDATED", Uri: dataset.ItemUri(itemId)})
}

func isCurrent(item records.Item) bool {
	value, ok := item.Value(schema.IsCurrentColumn)
	if !ok || value == nil {
		return false
	}
	current, err := toInt64(value)
	return err == nil && current == 1
}

// ReviseItem writes a new revision of a current item: unchanged fields are
// carried over, version is incremented and the previous revision stops being
// current.
func (e *Engine) ReviseItem(name, itemId string, payload map[string]any, actor string) (Result, error) {
	var newId string
	var uri string

	err := e.db.Transaction(func(txn *gorm.DB) error {
		dataset, err := e.dataset(name, txn)
		if err != nil {
			return err
		}
		if !dataset.Versioned {
			return fmt.Errorf("%w: %v", provision.ErrNotVersioned, name)
		}

		id, err := e.lookupId(&dataset, itemId)
		if err != nil {
			return err
		}

		old, err := records.FindOne(txn, name, id)
		if err != nil {
			return err
		}
		if !isCurrent(old) {
			return fmt.Errorf("%w: %v/%v", records.ErrNotCurrent, name, itemId)
		}

		changes, err := writeColumns(&dataset, payload, false)
		if err != nil {
			return err
		}

		columns := make([]records.Column, 0, len(dataset.Fields)+len(versionColumns))
		for _, field := range dataset.Fields {
			idx := slices.IndexFunc(changes, func(c records.Column) bool { return c.Name == field.Name })
			if idx >= 0 {
				columns = append(columns, changes[idx])
				continue
			}
			if value, ok := old.Value(field.Name); ok {
				// Stored values come back in driver form, e.g. time.Time for a DATE.
				value, err = coerce(field, value)
				if err != nil {
					return fmt.Errorf("field '%v': %w", field.Name, err)
				}
				columns = append(columns, records.Column{Name: field.Name, Value: value})
			}
		}

		versionIdValue, _ := old.Value(schema.VersionIdColumn)
		versionId, err := toInt64(versionIdValue)
		if err != nil {
			return fmt.Errorf("item %v/%v has no version_id: %w", name, itemId, err)
		}
		versionValue, _ := old.Value(schema.VersionColumn)
		version, err := toInt64(versionValue)
		if err != nil {
			return fmt.Errorf("item %v/%v has no version: %w", name, itemId, err)
		}

		columns = append(columns,
			records.Column{Name: schema.VersionIdColumn, Value: versionId},
			records.Column{Name: schema.VersionColumn, Value: version + 1},
			records.Column{Name: schema.IsCurrentColumn, Value: int64(1)},
		)

		newId, err = records.Insert(txn, name, columns, actor)
		if err != nil {
			return err
		}
		uri = dataset.ItemUri(newId)

		slog.Info("revised item", "dataset", name, "item_id", itemId, "new_item_id", newId, "version_id", versionId, "version", version+1)
		return nil
	})

	return e.finish(err, Result{StatusCode: StatusOK, Message: "UPDATED", Data: itemCreated{ItemId: newId}, Uri: uri})
}

func (e *Engine) DeleteItem(name, itemId string) (Result, error) {
	dataset, err := e.dataset(name, e.db)
	if err != nil {
		return e.finish(err, Result{})
	}

	id, err := e.lookupId(&dataset, itemId)
	if err != nil {
		return e.finish(err, Result{})
	}

	var deleted string
	err = e.db.Transaction(func(txn *gorm.DB) error {
		deleted, err = records.Delete(txn, name, id)
		return err
	})
	if err == nil {
		slog.Info("deleted item", "dataset", name, "item_id", deleted)
	}

	return e.finish(err, Result{StatusCode: StatusOK, Message: "OK", Uri: dataset.ItemsUri()})
}

// ItemHistory lists every revision of the logical record an item belongs to,
// oldest first.
func (e *Engine) ItemHistory(name, itemId string) (Result, error) {
	dataset, err := e.dataset(name, e.db)
	if err != nil {
		return e.finish(err, Result{})
	}
	if !dataset.Versioned {
		return e.finish(fmt.Errorf("%w: %v", provision.ErrNotVersioned, name), Result{})
	}

	id, err := e.lookupId(&dataset, itemId)
	if err != nil {
		return e.finish(err, Result{})
	}

	item, err := records.FindOne(e.db, name, id)
	if err != nil {
		return e.finish(err, Result{})
	}
	versionIdValue, _ := item.Value(schema.VersionIdColumn)
	versionId, err := toInt64(versionIdValue)
	if err != nil {
		return Result{}, fmt.Errorf("item %v/%v has no version_id: %w", name, itemId, err)
	}

	rows, err := records.List(e.db, query.BuildHistoryQuery(name, versionId))
	if err != nil {
		return Result{}, err
	}

	return okResult(ItemList{IdType: dataset.IdType, Fields: rows.Fields, Rows: rows.Rows}), nil
}

func stripHidden(rows records.Rows) records.Rows {
	fields := slices.DeleteFunc(slices.Clone(rows.Fields), func(f string) bool {
		return slices.Contains(hiddenColumns, f)
	})
	for _, row := range rows.Rows {
		for _, column := range hiddenColumns {
			delete(row, column)
		}
	}
	return records.Rows{Fields: fields, Rows: rows.Rows}
}

// ListItems returns one page of items, or every item when fetchAll is set.
// With filters it searches, otherwise it lists. Versioned datasets only show
// current revisions.
func (e *Engine) ListItems(name string, filters []query.Filter, page int, fetchAll bool) (Result, error) {
	dataset, err := e.dataset(name, e.db)
	if err != nil {
		return e.finish(err, Result{})
	}

	offset := e.pages.Offset(page)
	limit := e.pages.ItemsPerPage

	var q query.Query
	if len(filters) > 0 {
		q, err = query.BuildSearchQuery(name, filters, dataset.Fields, fetchAll, offset, limit, dataset.Versioned)
		if err != nil {
			return e.finish(err, Result{})
		}
	} else {
		q = query.BuildListQuery(name, offset, limit, fetchAll, dataset.Versioned)
	}

	rows, err := records.List(e.db, q)
	if err != nil {
		return Result{}, err
	}

	list := ItemList{IdType: dataset.IdType}

	if !fetchAll {
		var count int64
		if len(rows.Rows) > 0 {
			count, err = toInt64(rows.Rows[0][schema.TotalCountAlias])
			if err != nil {
				return Result{}, fmt.Errorf("error reading total count: %w", err)
			}
		} else {
			countQuery, err := query.BuildCountQuery(name, filters, dataset.Fields, dataset.Versioned)
			if err != nil {
				return e.finish(err, Result{})
			}
			if count, err = records.Count(e.db, countQuery); err != nil {
				return Result{}, err
			}
		}
		pagination := query.Paginate(count, page, e.pages)
		list.Pagination = &pagination
	}

	stripped := stripHidden(rows)
	list.Fields = stripped.Fields
	list.Rows = stripped.Rows

	return okResult(list), nil
}
