package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., vigil_...).
const namespace = "vigil"

// lowLatencyBuckets covers CPU-bound work such as evaluating one event against
// the rule set. Range: 100µs to 500ms.
var lowLatencyBuckets = []float64{.0001, .00025, .0005, .001, .0025, .005, .010, .025, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// HTTP API
	// -------------------------------------------------------------------------

	// APIReqDuration measures the latency of HTTP requests.
	// Metric: vigil_api_http_handling_seconds
	APIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// APIReqTotal counts HTTP requests by route pattern and status code.
	// Metric: vigil_api_http_requests_total
	APIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// gRPC API
	// -------------------------------------------------------------------------

	// Metric: vigil_grpc_handling_seconds
	GRPCReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "handling_seconds",
		Help:      "Time taken to handle gRPC requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "code"})

	// Metric: vigil_grpc_requests_total
	GRPCReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC requests",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// INGESTION
	// -------------------------------------------------------------------------

	// IngestEventsTotal counts events accepted at the boundary by dispatch outcome.
	// Metric: vigil_ingest_events_total
	IngestEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Events received in accepted batches, by dispatch outcome",
	}, []string{"outcome"}) // dispatched, failed

	// IngestBatchesRejected counts batches refused before any dispatch.
	// Metric: vigil_ingest_batches_rejected_total
	IngestBatchesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "batches_rejected_total",
		Help:      "Batches rejected as structurally invalid",
	}, []string{"reason"}) // empty, too_large, invalid_event

	IngestBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "batch_size",
		Help:      "Number of events per accepted batch",
		Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000},
	})

	// -------------------------------------------------------------------------
	// EVENT BUS
	// -------------------------------------------------------------------------

	// Metric: vigil_eventbus_publish_total
	BusPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "publish_total",
		Help:      "Events published to the internal channel",
	}, []string{"transport", "status"}) // status: success, fail

	// Metric: vigil_eventbus_handler_errors_total
	BusHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "handler_errors_total",
		Help:      "Events whose consumer returned an error or could not be decoded",
	}, []string{"transport"})

	// BusQueueDepth is the number of events buffered in the in-process transport.
	BusQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "queue_depth",
		Help:      "Events buffered in the in-process transport",
	})

	// -------------------------------------------------------------------------
	// RULE CACHE
	// -------------------------------------------------------------------------

	// RulesRefreshTotal counts completed refresh attempts.
	// Metric: vigil_rules_refresh_total
	RulesRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "refresh_total",
		Help:      "Completed rule refresh attempts",
	}, []string{"trigger", "status"}) // trigger: startup, timer, on_demand, manual

	// RulesRefreshSkipped counts timer ticks dropped because a refresh was running.
	// Metric: vigil_rules_refresh_skipped_total
	RulesRefreshSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "refresh_skipped_total",
		Help:      "Timer-triggered refreshes skipped because another refresh was in progress",
	})

	RulesRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "refresh_duration_seconds",
		Help:      "Duration of fetch, compile and publish",
		Buckets:   prometheus.DefBuckets,
	})

	RulesCached = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "cached",
		Help:      "Rules in the current metadata snapshot",
	})

	RulesCompiled = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "compiled",
		Help:      "Compiled programs in the current cache generation",
	})

	// Metric: vigil_rules_compile_failures_total
	RulesCompileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "compile_failures_total",
		Help:      "Rule expressions rejected by the compiler",
	})

	RulesLastRefreshTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "last_refresh_timestamp_seconds",
		Help:      "Unix time of the last completed refresh attempt",
	})

	// --- Compile memo (Otter) ---

	RulesMemoHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "compile_memo_hits_total",
		Help:      "Expressions served from the compile memo",
	})

	RulesMemoMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "compile_memo_misses_total",
		Help:      "Expressions that had to be compiled",
	})

	// -------------------------------------------------------------------------
	// EVALUATOR
	// -------------------------------------------------------------------------

	// Metric: vigil_evaluator_duration_seconds
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "evaluator",
		Name:      "duration_seconds",
		Help:      "Time to evaluate one event against the rule set",
		Buckets:   lowLatencyBuckets,
	})

	// EventsEvaluated counts events processed by the consumer.
	EventsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evaluator",
		Name:      "events_total",
		Help:      "Events handled by the evaluator consumer",
	}, []string{"status"}) // evaluated, no_rules, invalid

	// RuleResultsTotal counts per-rule outcomes.
	// Metric: vigil_evaluator_rule_results_total
	RuleResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evaluator",
		Name:      "rule_results_total",
		Help:      "Per-rule evaluation outcomes",
	}, []string{"outcome"}) // matched, unmatched, error

	// -------------------------------------------------------------------------
	// ALERTS
	// -------------------------------------------------------------------------

	// Metric: vigil_alerts_published_total
	AlertsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "published_total",
		Help:      "Alerts handed to a sink",
	}, []string{"sink", "status"})
)

// -------------------------------------------------------------------------
// DATABASE POOL (sampled by database.RunPoolMonitor)
// -------------------------------------------------------------------------

var (
	// Metric: vigil_database_pool_connections{state="max|total|idle|in_use"}
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Connection pool size by state",
	}, []string{"state"})

	// Cumulative pgxpool counters, sampled as gauges.
	DBPoolAcquireCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Cumulative successful connection acquisitions",
	})

	DBPoolAcquireDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Cumulative acquisitions that had to wait for a connection",
	})
)

// RulesMemoItems is sampled by cache.ProgramMemo.RunMetricsCollector.
var RulesMemoItems = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "rules",
	Name:      "compile_memo_items",
	Help:      "Programs currently held in the compile memo",
})
