package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LogRecordsIngested counts normalized log records by source and action.
	LogRecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafgate_log_records_ingested_total",
			Help: "Normalized log records stored, by source and action",
		},
		[]string{"source", "action"},
	)

	// ConfigSyncs counts configuration pipeline runs by resource and outcome.
	ConfigSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafgate_config_syncs_total",
			Help: "Configuration sync pipeline runs, by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	// LogRecordsPruned counts records removed by the retention pruner.
	LogRecordsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafgate_log_records_pruned_total",
			Help: "Log records deleted by retention pruning",
		},
	)
)
