package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schemaChangeMetric = promauto.NewSummaryVec(
		prometheus.SummaryOpts{Name: "dataset_manager_schema_change_seconds", Help: "Dataset schema changes"},
		[]string{"operation"},
	)
	itemWriteMetric = promauto.NewSummaryVec(
		prometheus.SummaryOpts{Name: "dataset_manager_item_write_seconds", Help: "Item writes"},
		[]string{"operation"},
	)
	itemReadMetric = promauto.NewSummaryVec(
		prometheus.SummaryOpts{Name: "dataset_manager_item_read_seconds", Help: "Item reads"},
		[]string{"operation"},
	)

	resultCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "dataset_manager_results_total", Help: "Engine results by status code"},
		[]string{"status_code"},
	)
)
