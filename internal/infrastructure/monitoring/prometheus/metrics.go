package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Fusion engine
	FusionRunsTotal        CounterVec
	FusionRunDuration      HistogramVec
	FusionRecordsMerged    CounterVec
	FusionRecordsUnmatched CounterVec
	FusionLayersSkipped    CounterVec
	FusionMatchConfidence  HistogramVec
	FusionGateDecisions    CounterVec

	// Layer loading and caching
	LayerLoadsTotal   CounterVec
	LayerLoadDuration HistogramVec
	CacheHitsTotal    CounterVec
	CacheMissesTotal  CounterVec

	// Async jobs
	JobsConsumedTotal  CounterVec
	JobProcessDuration HistogramVec
	JobRetriesTotal    CounterVec

	// Infrastructure
	DBQueryDuration HistogramVec
	ErrorsTotal     CounterVec
}

// Default buckets.
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultFusionDurationBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15, 30, 60}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	ConfidenceBuckets            = []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.9, 0.95, 1}
)

// NewAppMetrics registers all metrics on the collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	// Fusion
	m.FusionRunsTotal = collector.RegisterCounter("fusion_runs_total", "Fusion runs", "primary_layer", "status")
	m.FusionRunDuration = collector.RegisterHistogram("fusion_run_duration_seconds", "Fusion run duration", DefaultFusionDurationBuckets, "primary_layer")
	m.FusionRecordsMerged = collector.RegisterCounter("fusion_records_merged_total", "Records matched and merged", "layer")
	m.FusionRecordsUnmatched = collector.RegisterCounter("fusion_records_unmatched_total", "Records with no match in a layer", "layer")
	m.FusionLayersSkipped = collector.RegisterCounter("fusion_layers_skipped_total", "Secondary layers skipped for having no valid features", "layer")
	m.FusionMatchConfidence = collector.RegisterHistogram("fusion_match_confidence", "Confidence of successful identifier matches", ConfidenceBuckets, "layer")
	m.FusionGateDecisions = collector.RegisterCounter("fusion_gate_decisions_total", "Relevance gate decisions", "decision")

	// Layer loading
	m.LayerLoadsTotal = collector.RegisterCounter("layer_loads_total", "Layer feature-set loads", "layer", "source", "status")
	m.LayerLoadDuration = collector.RegisterHistogram("layer_load_duration_seconds", "Layer feature-set load duration", DefaultHTTPDurationBuckets, "source")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")

	// Jobs
	m.JobsConsumedTotal = collector.RegisterCounter("jobs_consumed_total", "Analysis jobs consumed", "topic", "status")
	m.JobProcessDuration = collector.RegisterHistogram("job_process_duration_seconds", "Analysis job processing duration", DefaultFusionDurationBuckets, "topic")
	m.JobRetriesTotal = collector.RegisterCounter("job_retries_total", "Analysis job retries", "topic", "reason")

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "code")

	return m
}

// Helpers.  All accept a nil *AppMetrics and become no-ops, so callers
// deployed without a collector need no guards.

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordFusionRun(m *AppMetrics, primaryLayer string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.FusionRunsTotal.WithLabelValues(primaryLayer, status).Inc()
	m.FusionRunDuration.WithLabelValues(primaryLayer).Observe(duration.Seconds())
}

func RecordLayerMerge(m *AppMetrics, layer string, matched, unmatched int, skipped bool) {
	if m == nil {
		return
	}
	if skipped {
		m.FusionLayersSkipped.WithLabelValues(layer).Inc()
		return
	}
	m.FusionRecordsMerged.WithLabelValues(layer).Add(float64(matched))
	m.FusionRecordsUnmatched.WithLabelValues(layer).Add(float64(unmatched))
}

func RecordGateDecision(m *AppMetrics, multiLayer bool) {
	if m == nil {
		return
	}
	decision := "single_layer"
	if multiLayer {
		decision = "multi_layer"
	}
	m.FusionGateDecisions.WithLabelValues(decision).Inc()
}

func RecordLayerLoad(m *AppMetrics, layer, source string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.LayerLoadsTotal.WithLabelValues(layer, source, status).Inc()
	m.LayerLoadDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordJob(m *AppMetrics, topic string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.JobsConsumedTotal.WithLabelValues(topic, status).Inc()
	m.JobProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func RecordError(m *AppMetrics, component, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
