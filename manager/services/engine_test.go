package services

import (
	"dataset_manager/manager/query"
	"dataset_manager/manager/records"
	"dataset_manager/manager/schema"
	"dataset_manager/manager/storetest"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	db := storetest.NewDb(t)
	require.NoError(t, db.AutoMigrate(&schema.Dataset{}))

	engine, err := NewEngine(db, query.PageConfig{ItemsPerPage: 10, MidPoint: 5, FirstPage: 1})
	require.NoError(t, err)
	return engine
}

func fooDataset() schema.Dataset {
	return schema.Dataset{
		Name: "foo",
		Fields: []schema.Field{
			{Name: "bar", Datatype: schema.Varchar},
			{Name: "baz", Datatype: schema.Integer},
		},
	}
}

func requireStatus(t *testing.T, expected string, res Result, err error) Result {
	t.Helper()
	require.NoError(t, err)
	require.Equal(t, expected, res.StatusCode, res.Message)
	return res
}

func createFoo(t *testing.T, e *Engine, dataset schema.Dataset) {
	res, err := e.CreateDataset(dataset)
	requireStatus(t, StatusCreated, res, err)
}

func insertFoo(t *testing.T, e *Engine, payload map[string]any) string {
	res, err := e.InsertItem("foo", payload, "alice")
	requireStatus(t, StatusCreated, res, err)
	return res.Data.(itemCreated).ItemId
}

func getFoo(t *testing.T, e *Engine, itemId string) records.Item {
	res, err := e.GetItem("foo", itemId)
	requireStatus(t, StatusOK, res, err)
	return res.Data.(records.Item)
}

func value(item records.Item, field string) any {
	v, _ := item.Value(field)
	return v
}

func TestCreateDataset(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.CreateDataset(fooDataset())
	requireStatus(t, StatusCreated, res, err)
	assert.Equal(t, "CREATED", res.Message)
	assert.Equal(t, "/v1/datasets/foo", res.Uri)

	res, err = e.GetDataset("foo")
	requireStatus(t, StatusOK, res, err)
	dataset := res.Data.(schema.Dataset)
	assert.Equal(t, schema.SerialId, dataset.IdType)
	assert.Equal(t, []string{"bar", "baz"}, dataset.FieldNames())
	assert.False(t, dataset.Versioned)

	res, err = e.CheckIfExists("foo")
	requireStatus(t, StatusFound, res, err)

	res, err = e.CheckIfExists("missing")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.CreateDataset(fooDataset())
	requireStatus(t, StatusUnprocessable, res, err)
	assert.Contains(t, res.Message, "UNPROCESSABLE ENTITY: ")

	res, err = e.GetIdType("foo")
	requireStatus(t, StatusOK, res, err)
	assert.Equal(t, schema.SerialId, res.Data)

	res, err = e.GetIdType("missing")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.GetDataset("missing")
	requireStatus(t, StatusNotFound, res, err)
	assert.Contains(t, res.Message, "NOT FOUND: ")
}

func TestCreateInvalidDataset(t *testing.T) {
	e := newTestEngine(t)

	invalid := fooDataset()
	invalid.Name = "Foo Bar"
	res, err := e.CreateDataset(invalid)
	requireStatus(t, StatusUnprocessable, res, err)

	invalid = fooDataset()
	invalid.IdType = schema.VarcharId
	invalid.Versioned = true
	res, err = e.CreateDataset(invalid)
	requireStatus(t, StatusUnprocessable, res, err)

	invalid = fooDataset()
	invalid.Fields = append(invalid.Fields, schema.Field{Name: "created_by", Datatype: schema.Varchar})
	res, err = e.CreateDataset(invalid)
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.CheckIfExists("foo")
	requireStatus(t, StatusNotFound, res, err)
}

func TestListDatasets(t *testing.T) {
	e := newTestEngine(t)

	for i, org := range []string{"acme", "acme", "other"} {
		dataset := fooDataset()
		dataset.Name = fmt.Sprintf("ds%d", i)
		dataset.Org = org
		createFoo(t, e, dataset)
	}

	res, err := e.ListDatasets("")
	requireStatus(t, StatusOK, res, err)
	assert.Len(t, res.Data, 3)

	res, err = e.ListDatasets("acme")
	requireStatus(t, StatusOK, res, err)
	assert.Len(t, res.Data, 2)
}

func TestInsertAndGetItem(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())

	res, err := e.InsertItem("foo", map[string]any{"bar": "abc", "baz": float64(123)}, "alice")
	requireStatus(t, StatusCreated, res, err)
	assert.Equal(t, itemCreated{ItemId: "1"}, res.Data)
	assert.Equal(t, "/v1/datasets/foo/items/1", res.Uri)

	item := getFoo(t, e, "1")
	assert.Equal(t, "abc", value(item, "bar"))
	assert.Equal(t, int64(123), value(item, "baz"))
	assert.Equal(t, "alice", value(item, schema.CreatedByColumn))

	res, err = e.GetItem("foo", "999")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.GetItem("foo", "abc")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.GetItem("missing", "1")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.InsertItem("foo", map[string]any{"bar": "abc", "qux": 1}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.InsertItem("foo", map[string]any{"baz": "many"}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.InsertItem("missing", map[string]any{"bar": "abc"}, "alice")
	requireStatus(t, StatusNotFound, res, err)
}

func TestInsertWithCallerIds(t *testing.T) {
	e := newTestEngine(t)

	dataset := fooDataset()
	dataset.IdType = schema.VarcharId
	createFoo(t, e, dataset)

	res, err := e.InsertItem("foo", map[string]any{"bar": "abc"}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.InsertItem("foo", map[string]any{"id": "k1", "bar": "abc"}, "alice")
	requireStatus(t, StatusCreated, res, err)
	assert.Equal(t, itemCreated{ItemId: "k1"}, res.Data)

	res, err = e.InsertItem("foo", map[string]any{"id": "k1", "bar": "xyz"}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)

	item := getFoo(t, e, "k1")
	assert.Equal(t, "abc", value(item, "bar"))
}

func TestGeneratedUniqueIds(t *testing.T) {
	e := newTestEngine(t)

	dataset := fooDataset()
	dataset.Fields = append(dataset.Fields, schema.Field{Name: "code", Datatype: schema.Varchar, Unique: schema.Yes, GenerateUniqueId: true})
	createFoo(t, e, dataset)

	first := getFoo(t, e, insertFoo(t, e, map[string]any{"bar": "a"}))
	second := getFoo(t, e, insertFoo(t, e, map[string]any{"bar": "b"}))

	assert.NotEmpty(t, value(first, "code"))
	assert.NotEqual(t, value(first, "code"), value(second, "code"))

	third := getFoo(t, e, insertFoo(t, e, map[string]any{"bar": "c", "code": "given"}))
	assert.Equal(t, "given", value(third, "code"))
}

func TestUpdateItemInPlace(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())
	insertFoo(t, e, map[string]any{"bar": "abc", "baz": 1})

	res, err := e.UpdateItem("foo", "1", map[string]any{"baz": 2}, "bob")
	requireStatus(t, StatusOK, res, err)
	assert.Equal(t, "UPDATED", res.Message)

	item := getFoo(t, e, "1")
	assert.Equal(t, "abc", value(item, "bar"))
	assert.Equal(t, int64(2), value(item, "baz"))
	assert.Equal(t, "bob", value(item, schema.UpdatedByColumn))

	res, err = e.UpdateItem("foo", "999", map[string]any{"baz": 2}, "bob")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.UpdateItem("foo", "1", map[string]any{}, "bob")
	requireStatus(t, StatusUnprocessable, res, err)
}

func TestDeleteItem(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())
	insertFoo(t, e, map[string]any{"bar": "abc"})

	res, err := e.DeleteItem("foo", "999")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.DeleteItem("foo", "1")
	requireStatus(t, StatusOK, res, err)
	assert.Equal(t, "/v1/datasets/foo/items", res.Uri)

	res, err = e.GetItem("foo", "1")
	requireStatus(t, StatusNotFound, res, err)
}

func TestFieldChanges(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())
	insertFoo(t, e, map[string]any{"bar": "abc"})

	res, err := e.AddField("foo", schema.Field{Name: "qux", Datatype: schema.Date})
	requireStatus(t, StatusCreated, res, err)

	res, err = e.AddField("foo", schema.Field{Name: "Qux", Datatype: schema.Varchar})
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.AddField("foo", schema.Field{Name: "quux", Datatype: schema.Varchar, NotNull: schema.Yes})
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.AddField("missing", schema.Field{Name: "qux", Datatype: schema.Date})
	requireStatus(t, StatusNotFound, res, err)

	id := insertFoo(t, e, map[string]any{"bar": "xyz", "qux": "2024-02-29"})
	assert.NotNil(t, value(getFoo(t, e, id), "qux"))

	res, err = e.InsertItem("foo", map[string]any{"qux": "29/02/2024"}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.EditField("foo", "bar", schema.Field{Datatype: schema.Varchar, Unique: schema.Yes, Display: "Bar"})
	requireStatus(t, StatusOK, res, err)

	res, err = e.InsertItem("foo", map[string]any{"bar": "abc"}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.EditField("foo", "bar", schema.Field{Datatype: schema.Integer})
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.EditField("foo", "missing", schema.Field{Datatype: schema.Varchar})
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.GetDataset("foo")
	requireStatus(t, StatusOK, res, err)
	dataset := res.Data.(schema.Dataset)
	assert.Equal(t, []string{"bar", "baz", "qux"}, dataset.FieldNames())
	assert.True(t, dataset.Fields[0].IsUnique())
	assert.Equal(t, "Bar", dataset.Fields[0].Display)
}

func TestDeleteDataset(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())

	res, err := e.DeleteDataset("foo")
	requireStatus(t, StatusOK, res, err)
	assert.Equal(t, "/v1/datasets", res.Uri)

	res, err = e.CheckIfExists("foo")
	requireStatus(t, StatusNotFound, res, err)

	res, err = e.DeleteDataset("foo")
	requireStatus(t, StatusNotFound, res, err)

	createFoo(t, e, fooDataset())
}

func TestVersioningRequiresSerialIds(t *testing.T) {
	e := newTestEngine(t)

	dataset := fooDataset()
	dataset.IdType = schema.VarcharId
	createFoo(t, e, dataset)

	res, err := e.EnableVersioning("foo")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.GetDataset("foo")
	requireStatus(t, StatusOK, res, err)
	assert.False(t, res.Data.(schema.Dataset).Versioned)

	res, err = e.EnableVersioning("missing")
	requireStatus(t, StatusNotFound, res, err)
}

func TestReviseItem(t *testing.T) {
	e := newTestEngine(t)

	dataset := fooDataset()
	dataset.Fields[0].Unique = schema.Yes
	createFoo(t, e, dataset)
	insertFoo(t, e, map[string]any{"bar": "abc", "baz": 123})

	res, err := e.ItemHistory("foo", "1")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.EnableVersioning("foo")
	requireStatus(t, StatusOK, res, err)
	assert.Equal(t, "Dataset versioning added", res.Message)

	res, err = e.EnableVersioning("foo")
	requireStatus(t, StatusOK, res, err)

	res, err = e.UpdateItem("foo", "1", map[string]any{"bar": "xyz"}, "bob")
	requireStatus(t, StatusOK, res, err)
	assert.Equal(t, itemCreated{ItemId: "2"}, res.Data)
	assert.Equal(t, "/v1/datasets/foo/items/2", res.Uri)

	old := getFoo(t, e, "1")
	assert.Nil(t, value(old, schema.IsCurrentColumn))
	assert.Equal(t, "bob", value(old, schema.UpdatedByColumn))

	revised := getFoo(t, e, "2")
	assert.Equal(t, "xyz", value(revised, "bar"))
	assert.Equal(t, int64(123), value(revised, "baz"))
	assert.Equal(t, int64(1), value(revised, schema.VersionIdColumn))
	assert.Equal(t, int64(2), value(revised, schema.VersionColumn))
	assert.Equal(t, int64(1), value(revised, schema.IsCurrentColumn))
	assert.Equal(t, "bob", value(revised, schema.CreatedByColumn))

	res, err = e.UpdateItem("foo", "1", map[string]any{"bar": "again"}, "bob")
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.ItemHistory("foo", "2")
	requireStatus(t, StatusOK, res, err)
	history := res.Data.(ItemList)
	require.Len(t, history.Rows, 2)
	assert.Equal(t, "abc", history.Rows[0]["bar"])
	assert.Equal(t, "xyz", history.Rows[1]["bar"])

	// Uniqueness applies to current revisions only.
	res, err = e.InsertItem("foo", map[string]any{"bar": "xyz"}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)
	insertFoo(t, e, map[string]any{"bar": "abc"})

	res, err = e.ListItems("foo", nil, 1, false)
	requireStatus(t, StatusOK, res, err)
	list := res.Data.(ItemList)
	assert.Len(t, list.Rows, 2)
	assert.Equal(t, int64(2), list.Pagination.Count)
}

func TestCreateVersionedDataset(t *testing.T) {
	e := newTestEngine(t)

	dataset := fooDataset()
	dataset.Versioned = true
	createFoo(t, e, dataset)

	id := insertFoo(t, e, map[string]any{"bar": "abc"})
	item := getFoo(t, e, id)
	assert.Equal(t, int64(1), value(item, schema.VersionIdColumn))
	assert.Equal(t, int64(1), value(item, schema.VersionColumn))

	// Explicit version columns supersede the current revision.
	res, err := e.InsertItem("foo", map[string]any{"bar": "def", "version_id": 1, "version": 2, "is_current": 1}, "alice")
	requireStatus(t, StatusCreated, res, err)
	assert.Nil(t, value(getFoo(t, e, id), schema.IsCurrentColumn))

	res, err = e.InsertItem("foo", map[string]any{"bar": "ghi", "version_id": 1}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)
}

func currentRevisions(t *testing.T, e *Engine, versionId int64) int64 {
	var count int64
	require.NoError(t, e.db.Raw(`SELECT count(*) FROM "foo" WHERE "version_id" = $1 AND "is_current" = 1`, versionId).Scan(&count).Error)
	return count
}

func TestInsertRevisionGuards(t *testing.T) {
	e := newTestEngine(t)

	dataset := fooDataset()
	dataset.Versioned = true
	createFoo(t, e, dataset)
	insertFoo(t, e, map[string]any{"bar": "a"})

	// A revision must become the current one.
	res, err := e.InsertItem("foo", map[string]any{"bar": "b", "version_id": 1, "version": 2, "is_current": 0}, "alice")
	requireStatus(t, StatusUnprocessable, res, err)
	assert.Equal(t, int64(1), currentRevisions(t, e, 1))

	res, err = e.InsertItem("foo", map[string]any{"bar": "b", "version_id": 1, "version": 2, "is_current": 1}, "alice")
	requireStatus(t, StatusCreated, res, err)
	assert.Equal(t, int64(1), currentRevisions(t, e, 1))

	// Versions never go backwards within a version_id.
	for _, version := range []int{0, 1, 2} {
		res, err = e.InsertItem("foo", map[string]any{"bar": "c", "version_id": 1, "version": version, "is_current": 1}, "alice")
		requireStatus(t, StatusUnprocessable, res, err)
	}
	assert.Equal(t, "b", value(getFoo(t, e, "2"), "bar"))
	assert.Equal(t, int64(1), currentRevisions(t, e, 1))

	res, err = e.InsertItem("foo", map[string]any{"bar": "c", "version_id": 1, "version": 3, "is_current": 1}, "alice")
	requireStatus(t, StatusCreated, res, err)
	assert.Equal(t, int64(1), currentRevisions(t, e, 1))

	res, err = e.ItemHistory("foo", "3")
	requireStatus(t, StatusOK, res, err)
	assert.Len(t, res.Data.(ItemList).Rows, 3)
}

func TestReviseItemKeepsStoredFormat(t *testing.T) {
	e := newTestEngine(t)

	dataset := fooDataset()
	dataset.Versioned = true
	dataset.Fields = append(dataset.Fields, schema.Field{Name: "born", Datatype: schema.Date})
	createFoo(t, e, dataset)
	insertFoo(t, e, map[string]any{"bar": "a", "born": "2024-01-02"})

	res, err := e.UpdateItem("foo", "1", map[string]any{"bar": "b"}, "bob")
	requireStatus(t, StatusOK, res, err)

	for _, id := range []int{1, 2} {
		var born string
		require.NoError(t, e.db.Raw(`SELECT CAST("born" AS TEXT) FROM "foo" WHERE "id" = $1`, id).Scan(&born).Error)
		assert.Equal(t, "2024-01-02", born)
	}
}

func TestAddFieldWithLongName(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())

	res, err := e.AddField("foo", schema.Field{Name: strings.Repeat("f", 44), Datatype: schema.Varchar, Unique: schema.Yes})
	requireStatus(t, StatusCreated, res, err)

	res, err = e.AddField("foo", schema.Field{Name: strings.Repeat("f", 45), Datatype: schema.Varchar, Unique: schema.Yes})
	requireStatus(t, StatusUnprocessable, res, err)
}

func TestCreateDatasetUpgradesToVersioned(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())

	dataset := fooDataset()
	dataset.Versioned = true
	res, err := e.CreateDataset(dataset)
	requireStatus(t, StatusOK, res, err)
	assert.Equal(t, "Dataset versioning added", res.Message)

	res, err = e.GetDataset("foo")
	requireStatus(t, StatusOK, res, err)
	assert.True(t, res.Data.(schema.Dataset).Versioned)
}

func TestListItems(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())

	for i := 0; i < 25; i++ {
		insertFoo(t, e, map[string]any{"bar": fmt.Sprintf("item%02d", i), "baz": i % 5})
	}

	res, err := e.ListItems("foo", nil, 1, false)
	requireStatus(t, StatusOK, res, err)
	list := res.Data.(ItemList)
	assert.Equal(t, schema.SerialId, list.IdType)
	assert.Len(t, list.Rows, 10)
	assert.Equal(t, []string{"id", "bar", "baz"}, list.Fields)
	assert.NotContains(t, list.Rows[0], schema.TotalCountAlias)
	assert.NotContains(t, list.Rows[0], schema.CreatedByColumn)
	require.NotNil(t, list.Pagination)
	assert.Equal(t, int64(25), list.Pagination.Count)
	assert.Equal(t, 3, list.Pagination.LastPage)

	res, err = e.ListItems("foo", nil, 3, false)
	requireStatus(t, StatusOK, res, err)
	assert.Len(t, res.Data.(ItemList).Rows, 5)

	res, err = e.ListItems("foo", nil, 9, false)
	requireStatus(t, StatusOK, res, err)
	list = res.Data.(ItemList)
	assert.Empty(t, list.Rows)
	assert.Equal(t, int64(25), list.Pagination.Count)

	res, err = e.ListItems("foo", nil, 1, true)
	requireStatus(t, StatusOK, res, err)
	list = res.Data.(ItemList)
	assert.Len(t, list.Rows, 25)
	assert.Nil(t, list.Pagination)

	res, err = e.ListItems("foo", []query.Filter{{Field: "bar", Value: "ITEM1"}}, 1, false)
	requireStatus(t, StatusOK, res, err)
	list = res.Data.(ItemList)
	assert.Len(t, list.Rows, 10)
	assert.Equal(t, int64(10), list.Pagination.Count)

	res, err = e.ListItems("foo", []query.Filter{{Field: "baz", Value: "3"}, {Field: "bar", Value: "item1"}}, 1, false)
	requireStatus(t, StatusOK, res, err)
	list = res.Data.(ItemList)
	require.Len(t, list.Rows, 2)
	assert.Equal(t, "item13", list.Rows[0]["bar"])
	assert.Equal(t, "item18", list.Rows[1]["bar"])

	res, err = e.ListItems("foo", []query.Filter{{Field: "baz", Value: "three"}}, 1, false)
	requireStatus(t, StatusUnprocessable, res, err)

	res, err = e.ListItems("foo", []query.Filter{{Field: "bar", Value: "nothing"}}, 2, false)
	requireStatus(t, StatusOK, res, err)
	list = res.Data.(ItemList)
	assert.Empty(t, list.Rows)
	assert.Equal(t, int64(0), list.Pagination.Count)

	res, err = e.ListItems("missing", nil, 1, false)
	requireStatus(t, StatusNotFound, res, err)
}

func TestSeed(t *testing.T) {
	e := newTestEngine(t)
	createFoo(t, e, fooDataset())

	versioned := fooDataset()
	versioned.Versioned = true
	other := fooDataset()
	other.Name = "other"

	require.NoError(t, e.Seed([]schema.Dataset{versioned, other}))

	res, err := e.GetDataset("foo")
	requireStatus(t, StatusOK, res, err)
	assert.True(t, res.Data.(schema.Dataset).Versioned)

	res, err = e.CheckIfExists("other")
	requireStatus(t, StatusFound, res, err)

	require.NoError(t, e.Seed([]schema.Dataset{other}))
}
