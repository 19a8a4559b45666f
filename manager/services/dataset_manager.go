package services

import (
	"dataset_manager/manager/auth"
	"dataset_manager/manager/query"
	"dataset_manager/manager/schema"
	"dataset_manager/utils"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DatasetManager exposes the engine over http. Every response body is the
// engine Result and the http status mirrors its status code.
type DatasetManager struct {
	engine *Engine
	jwt    *auth.JwtManager
	audit  auth.AuditLogger
}

func NewDatasetManager(engine *Engine, jwt *auth.JwtManager, audit auth.AuditLogger) DatasetManager {
	return DatasetManager{engine: engine, jwt: jwt, audit: audit}
}

func (m *DatasetManager) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(m.jwt.Middleware()...)
		r.Use(m.audit.Middleware)

		r.Get("/datasets", m.ListDatasets)
		r.Post("/datasets", m.CreateDataset)

		r.Route("/datasets/{dataset}", func(r chi.Router) {
			r.Get("/", m.GetDataset)
			r.Delete("/", m.DeleteDataset)
			r.Get("/exists", m.CheckIfExists)
			r.Get("/id_type", m.GetIdType)

			r.Post("/fields", m.AddField)
			r.Put("/fields/{field}", m.EditField)

			r.Post("/versioning", m.EnableVersioning)

			r.Get("/items", m.ListItems)
			r.Post("/items", m.InsertItem)
			r.Get("/items/{item}", m.GetItem)
			r.Put("/items/{item}", m.UpdateItem)
			r.Delete("/items/{item}", m.DeleteItem)
			r.Get("/items/{item}/history", m.ItemHistory)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

func writeResult(w http.ResponseWriter, res Result, err error) {
	if err != nil {
		http.Error(w, fmt.Sprintf("storage error: %v", err), GetResponseCode(err))
		return
	}
	resultCounter.WithLabelValues(res.StatusCode).Inc()
	utils.WriteJsonResponseWithStatus(w, res.HttpStatus(), res)
}

func datasetParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := utils.URLParam(r, "dataset")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func itemParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	name, ok := datasetParam(w, r)
	if !ok {
		return "", "", false
	}
	item, err := utils.URLParam(r, "item")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return name, item, true
}

func requestActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, err := auth.ActorFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return "", false
	}
	return actor, true
}

// ListDatasets lists the catalog. Callers whose token carries an org claim
// only see that org; the org query param narrows the list for tokens without
// one.
func (m *DatasetManager) ListDatasets(w http.ResponseWriter, r *http.Request) {
	org := auth.OrgFromContext(r)
	if org == "" {
		org = r.URL.Query().Get("org")
	}

	res, err := m.engine.ListDatasets(org)
	writeResult(w, res, err)
}

func (m *DatasetManager) CreateDataset(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(schemaChangeMetric.WithLabelValues("create_dataset"))
	defer timer.ObserveDuration()

	var params schema.Dataset
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	slog.Info("creating dataset", "dataset", params.Name, "id_type", params.IdType, "versioned", params.Versioned)

	res, err := m.engine.CreateDataset(params)
	writeResult(w, res, err)
}

func (m *DatasetManager) GetDataset(w http.ResponseWriter, r *http.Request) {
	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	res, err := m.engine.GetDataset(name)
	writeResult(w, res, err)
}

func (m *DatasetManager) CheckIfExists(w http.ResponseWriter, r *http.Request) {
	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	res, err := m.engine.CheckIfExists(name)
	writeResult(w, res, err)
}

func (m *DatasetManager) GetIdType(w http.ResponseWriter, r *http.Request) {
	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	res, err := m.engine.GetIdType(name)
	writeResult(w, res, err)
}

func (m *DatasetManager) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(schemaChangeMetric.WithLabelValues("delete_dataset"))
	defer timer.ObserveDuration()

	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	res, err := m.engine.DeleteDataset(name)
	writeResult(w, res, err)
}

func (m *DatasetManager) AddField(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(schemaChangeMetric.WithLabelValues("add_field"))
	defer timer.ObserveDuration()

	name, ok := datasetParam(w, r)
	if !ok {
		return
	}

	var params schema.Field
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	res, err := m.engine.AddField(name, params)
	writeResult(w, res, err)
}

func (m *DatasetManager) EditField(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(schemaChangeMetric.WithLabelValues("edit_field"))
	defer timer.ObserveDuration()

	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	field, err := utils.URLParam(r, "field")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params schema.Field
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	res, err := m.engine.EditField(name, field, params)
	writeResult(w, res, err)
}

func (m *DatasetManager) EnableVersioning(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(schemaChangeMetric.WithLabelValues("enable_versioning"))
	defer timer.ObserveDuration()

	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	res, err := m.engine.EnableVersioning(name)
	writeResult(w, res, err)
}

// Query params other than page and all are search filters, applied in key
// order.
func searchFilters(r *http.Request) []query.Filter {
	params := r.URL.Query()
	keys := make([]string, 0, len(params))
	for key := range params {
		if key != "page" && key != "all" {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	filters := make([]query.Filter, 0, len(keys))
	for _, key := range keys {
		filters = append(filters, query.Filter{Field: key, Value: params.Get(key)})
	}
	return filters
}

func (m *DatasetManager) ListItems(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(itemReadMetric.WithLabelValues("list"))
	defer timer.ObserveDuration()

	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	page, err := utils.IntQueryParam(r, "page", 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fetchAll, err := utils.BoolQueryParam(r, "all")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := m.engine.ListItems(name, searchFilters(r), page, fetchAll)
	writeResult(w, res, err)
}

func (m *DatasetManager) InsertItem(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(itemWriteMetric.WithLabelValues("insert"))
	defer timer.ObserveDuration()

	name, ok := datasetParam(w, r)
	if !ok {
		return
	}
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	var params map[string]any
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	res, err := m.engine.InsertItem(name, params, actor)
	writeResult(w, res, err)
}

func (m *DatasetManager) GetItem(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(itemReadMetric.WithLabelValues("get"))
	defer timer.ObserveDuration()

	name, item, ok := itemParams(w, r)
	if !ok {
		return
	}
	res, err := m.engine.GetItem(name, item)
	writeResult(w, res, err)
}

func (m *DatasetManager) UpdateItem(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(itemWriteMetric.WithLabelValues("update"))
	defer timer.ObserveDuration()

	name, item, ok := itemParams(w, r)
	if !ok {
		return
	}
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	var params map[string]any
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	res, err := m.engine.UpdateItem(name, item, params, actor)
	writeResult(w, res, err)
}

func (m *DatasetManager) DeleteItem(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(itemWriteMetric.WithLabelValues("delete"))
	defer timer.ObserveDuration()

	name, item, ok := itemParams(w, r)
	if !ok {
		return
	}
	res, err := m.engine.DeleteItem(name, item)
	writeResult(w, res, err)
}

func (m *DatasetManager) ItemHistory(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(itemReadMetric.WithLabelValues("history"))
	defer timer.ObserveDuration()

	name, item, ok := itemParams(w, r)
	if !ok {
		return
	}
	res, err := m.engine.ItemHistory(name, item)
	writeResult(w, res, err)
}
