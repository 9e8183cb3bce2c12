package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "marketreport_"

	resultSuccess = "success"
	resultError   = "error"

	outcomeCarried = "carried"
	outcomeUpdated = "updated"
	outcomeAdded   = "added"
)

var (
	registerOnce sync.Once

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	runTotal   *prometheus.CounterVec
	runLatency *prometheus.HistogramVec

	segmentsTotal *prometheus.CounterVec
	driftTotal    prometheus.Counter

	dateTotal   *prometheus.CounterVec
	dateLatency *prometheus.HistogramVec

	rowOutcomes *prometheus.CounterVec

	snapshotOps *prometheus.CounterVec

	exportTotal *prometheus.CounterVec

	lastRunRows prometheus.Gauge
)

// Init registers report metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_total",
				Help: "Report fetches by result",
			},
			[]string{"result"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "fetch_latency_seconds",
				Help:    "Report fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		runTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Report runs by result",
			},
			[]string{"result"},
		)
		runLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_duration_seconds",
				Help:    "Report run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		segmentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "segments_total",
				Help: "Day segments found by completeness",
			},
			[]string{"complete"},
		)
		driftTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "format_drift_total",
			Help: "Format drift issues found while segmenting",
		})
		dateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dates_processed_total",
				Help: "Report dates processed by result",
			},
			[]string{"result"},
		)
		dateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "date_duration_seconds",
				Help:    "Per-date reconcile and persist duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		rowOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconciled_rows_total",
				Help: "Reconciled rows by last-updated outcome",
			},
			[]string{"outcome"},
		)
		snapshotOps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_ops_total",
				Help: "Snapshot store operations by op and result",
			},
			[]string{"op", "result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Table exports by format and result",
			},
			[]string{"format", "result"},
		)
		lastRunRows = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_run_rows",
			Help: "Rows in the latest merged table",
		})

		prometheus.MustRegister(
			fetchTotal,
			fetchLatency,
			runTotal,
			runLatency,
			segmentsTotal,
			driftTotal,
			dateTotal,
			dateLatency,
			rowOutcomes,
			snapshotOps,
			exportTotal,
			lastRunRows,
		)

		if db != nil {
			prometheus.MustRegister(newSnapshotCollector(db, logger))
		}
	})
}

// ObserveFetch records a report fetch.
func ObserveFetch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(result).Inc()
	}
	if fetchLatency != nil {
		fetchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveRun records a whole run and the size of its table.
func ObserveRun(result string, duration time.Duration, rows int) {
	if result == "" {
		result = resultSuccess
	}
	if runTotal != nil {
		runTotal.WithLabelValues(result).Inc()
	}
	if runLatency != nil {
		runLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if lastRunRows != nil && result == resultSuccess {
		lastRunRows.Set(float64(rows))
	}
}

// ObserveSegment counts a segment and its drift issues.
func ObserveSegment(complete bool, issues int) {
	label := "true"
	if !complete {
		label = "false"
	}
	if segmentsTotal != nil {
		segmentsTotal.WithLabelValues(label).Inc()
	}
	if driftTotal != nil && issues > 0 {
		driftTotal.Add(float64(issues))
	}
}

// IncDrift counts a drift issue found outside any segment.
func IncDrift() {
	if driftTotal != nil {
		driftTotal.Inc()
	}
}

// ObserveDate records one date's reconcile-and-persist unit.
func ObserveDate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if dateTotal != nil {
		dateTotal.WithLabelValues(result).Inc()
	}
	if dateLatency != nil {
		dateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddRowOutcomes increments reconciled row counters.
func AddRowOutcomes(carried, updated, added int) {
	if rowOutcomes == nil {
		return
	}
	if carried > 0 {
		rowOutcomes.WithLabelValues(outcomeCarried).Add(float64(carried))
	}
	if updated > 0 {
		rowOutcomes.WithLabelValues(outcomeUpdated).Add(float64(updated))
	}
	if added > 0 {
		rowOutcomes.WithLabelValues(outcomeAdded).Add(float64(added))
	}
}

// IncSnapshotOp increments snapshot store operation counters.
func IncSnapshotOp(op, result string) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if snapshotOps != nil {
		snapshotOps.WithLabelValues(op, result).Inc()
	}
}

// IncExport increments export counters.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultNotFound = "not_found"
)
