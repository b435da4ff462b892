// Package metrics exposes Prometheus instrumentation for the monitoring loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rewired-gh/oeewatch/internal/models"
)

// Recorder holds the collectors updated by the monitoring loop.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	// A histogram to measure how long each monitoring cycle takes.
	cycleDuration prometheus.Histogram
	// A counter of cycles that failed as a whole.
	cycleFailures prometheus.Counter
	// A counter of per-scope errors collected during cycles.
	scopeErrors prometheus.Counter
	// A counter of reports built, by kind.
	reportsBuilt *prometheus.CounterVec
	// The cumulative percent of the top-ranked entry of the latest Pareto report, by scope.
	topShare *prometheus.GaugeVec
	// The Operation share of the latest downtime report totals, by scope.
	operationShare *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them with registerer.
func NewRecorder(registerer prometheus.Registerer) *Recorder {
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oeewatch_cycle_duration_seconds",
		Help:    "Duration of a monitoring cycle",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 0.01s to ~164s in 15 buckets
	})
	cycleFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oeewatch_cycle_failures_total",
		Help: "Number of monitoring cycles that failed",
	})
	scopeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oeewatch_scope_errors_total",
		Help: "Number of per-scope errors collected during monitoring cycles",
	})
	reportsBuilt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oeewatch_reports_built_total",
		Help: "Number of reports built",
	}, []string{"kind"})
	topShare := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oeewatch_pareto_top_share_percent",
		Help: "Cumulative percent of the top-ranked error of the latest Pareto report",
	}, []string{"scope"})
	operationShare := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oeewatch_downtime_operation_share_percent",
		Help: "Operation share of the latest downtime report totals",
	}, []string{"scope"})
	registerer.MustRegister(
		cycleDuration,
		cycleFailures,
		scopeErrors,
		reportsBuilt,
		topShare,
		operationShare,
	)
	return &Recorder{
		cycleDuration:  cycleDuration,
		cycleFailures:  cycleFailures,
		scopeErrors:    scopeErrors,
		reportsBuilt:   reportsBuilt,
		topShare:       topShare,
		operationShare: operationShare,
	}
}

// ObserveCycle records the duration of one cycle, whether it failed, and
// how many per-scope errors it collected.
func (r *Recorder) ObserveCycle(d time.Duration, failed bool, scopeErrors int) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(d.Seconds())
	if failed {
		r.cycleFailures.Inc()
	}
	r.scopeErrors.Add(float64(scopeErrors))
}

// ObserveParetoReport records a built Pareto report.
func (r *Recorder) ObserveParetoReport(report *models.ParetoReport) {
	if r == nil {
		return
	}
	r.reportsBuilt.WithLabelValues(string(models.ReportKindPareto)).Inc()
	r.topShare.WithLabelValues(report.Scope).Set(report.TopShare())
}

// ObserveDowntimeReport records a built downtime report.
func (r *Recorder) ObserveDowntimeReport(report *models.DowntimeReport) {
	if r == nil {
		return
	}
	r.reportsBuilt.WithLabelValues(string(models.ReportKindDowntime)).Inc()
	r.operationShare.WithLabelValues(report.Scope).Set(float64(report.Totals.Percent(models.CategoryOperation)))
}
