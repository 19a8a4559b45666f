package services

import (
	"bytes"
	"dataset_manager/manager/auth"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	t      *testing.T
	router chi.Router
	token  string
}

func newTestClient(t *testing.T) *testClient {
	jwt := auth.NewJwtManager([]byte("test-secret"))
	manager := NewDatasetManager(newTestEngine(t), jwt, auth.NewAuditLogger(io.Discard))

	token, err := jwt.CreateUserJwt("alice", "acme", time.Hour)
	require.NoError(t, err)

	return &testClient{t: t, router: manager.Routes(), token: token}
}

func (c *testClient) do(method, endpoint string, body any) (int, Result) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, endpoint, reader)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var res Result
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w.Code, res
}

func TestRoutesRequireToken(t *testing.T) {
	c := newTestClient(t)
	c.token = ""

	code, _ := c.do("GET", "/v1/datasets", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = c.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestDatasetRoutes(t *testing.T) {
	c := newTestClient(t)

	dataset := map[string]any{
		"name":   "foo",
		"idType": "SERIAL",
		"fields": []map[string]any{
			{"name": "bar", "datatype": "VARCHAR"},
			{"name": "baz", "datatype": "INTEGER"},
		},
	}
	code, res := c.do("POST", "/v1/datasets", dataset)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, StatusCreated, res.StatusCode)
	assert.Equal(t, "/v1/datasets/foo", res.Uri)

	code, res = c.do("POST", "/v1/datasets", dataset)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, StatusUnprocessable, res.StatusCode)

	code, _ = c.do("GET", "/v1/datasets/foo/exists", nil)
	assert.Equal(t, http.StatusFound, code)

	code, _ = c.do("GET", "/v1/datasets/bar/exists", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, res = c.do("GET", "/v1/datasets/foo/id_type", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SERIAL", res.Data)

	code, res = c.do("GET", "/v1/datasets", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, res.Data, 0, "dataset has no org so the caller's org filters it out")

	code, res = c.do("GET", "/v1/datasets/foo", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "foo", res.Data.(map[string]any)["name"])

	code, _ = c.do("POST", "/v1/datasets/foo/fields", map[string]any{"name": "qux", "datatype": "DATE"})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = c.do("PUT", "/v1/datasets/foo/fields/bar", map[string]any{"datatype": "VARCHAR", "unique": "Yes"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = c.do("POST", "/v1/datasets/foo/fields", map[string]any{"name": "qux", "datatype": "BLOB"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do("POST", "/v1/datasets/foo/versioning", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = c.do("DELETE", "/v1/datasets/foo", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = c.do("GET", "/v1/datasets/foo", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListDatasetsByOrg(t *testing.T) {
	c := newTestClient(t)

	for _, org := range []string{"acme", "other"} {
		dataset := map[string]any{
			"name":   org + "_data",
			"org":    org,
			"fields": []map[string]any{{"name": "bar", "datatype": "VARCHAR"}},
		}
		code, _ := c.do("POST", "/v1/datasets", dataset)
		require.Equal(t, http.StatusCreated, code)
	}

	names := func(res Result) []string {
		out := []string{}
		for _, d := range res.Data.([]any) {
			out = append(out, d.(map[string]any)["name"].(string))
		}
		return out
	}

	// The org claim of the token wins over the query param.
	code, res := c.do("GET", "/v1/datasets?org=other", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"acme_data"}, names(res))

	jwt := auth.NewJwtManager([]byte("test-secret"))
	token, err := jwt.CreateUserJwt("bob", "", time.Hour)
	require.NoError(t, err)
	c.token = token

	code, res = c.do("GET", "/v1/datasets?org=other", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"other_data"}, names(res))
}

func TestItemRoutes(t *testing.T) {
	c := newTestClient(t)

	code, _ := c.do("POST", "/v1/datasets", map[string]any{
		"name":   "foo",
		"org":    "acme",
		"fields": []map[string]any{{"name": "bar", "datatype": "VARCHAR"}, {"name": "baz", "datatype": "INTEGER"}},
	})
	require.Equal(t, http.StatusCreated, code)

	code, res := c.do("GET", "/v1/datasets", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, res.Data, 1)

	code, res = c.do("POST", "/v1/datasets/foo/items", map[string]any{"bar": "abc", "baz": 123})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "1", res.Data.(map[string]any)["itemId"])
	assert.Equal(t, "/v1/datasets/foo/items/1", res.Uri)

	code, _ = c.do("POST", "/v1/datasets/foo/items", map[string]any{"bar": "xyz", "baz": 7})
	require.Equal(t, http.StatusCreated, code)

	code, res = c.do("GET", "/v1/datasets/foo/items/1", nil)
	assert.Equal(t, http.StatusOK, code)
	item := res.Data.(map[string]any)
	assert.Equal(t, "1", item["itemId"])
	for _, p := range item["properties"].([]any) {
		property := p.(map[string]any)
		if property["field"] == "created_by" {
			assert.Equal(t, "alice", property["value"])
		}
	}

	code, res = c.do("GET", "/v1/datasets/foo/items?bar=AB", nil)
	assert.Equal(t, http.StatusOK, code)
	list := res.Data.(map[string]any)
	assert.Len(t, list["rows"], 1)
	assert.Equal(t, float64(1), list["pagination"].(map[string]any)["count"])

	code, res = c.do("GET", "/v1/datasets/foo/items?all=true", nil)
	assert.Equal(t, http.StatusOK, code)
	list = res.Data.(map[string]any)
	assert.Len(t, list["rows"], 2)
	assert.Nil(t, list["pagination"])

	code, _ = c.do("GET", "/v1/datasets/foo/items?page=x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do("PUT", "/v1/datasets/foo/items/1", map[string]any{"baz": 124})
	assert.Equal(t, http.StatusOK, code)

	code, _ = c.do("GET", "/v1/datasets/foo/items/1/history", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, res = c.do("DELETE", "/v1/datasets/foo/items/999", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, StatusNotFound, res.StatusCode)

	code, _ = c.do("DELETE", "/v1/datasets/foo/items/1", nil)
	assert.Equal(t, http.StatusOK, code)
}
