package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for invoice generation and scoring.
// All methods are safe on a nil receiver so components can run unobserved.
type Metrics struct {
	Registry *prometheus.Registry

	DocumentsGenerated prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	RecordsScored      *prometheus.CounterVec
	OverallConfidence  prometheus.Histogram
	RequestDuration    *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry, so several
// servers in one process do not collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		DocumentsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rechnungswerk_xrechnung_generated_total",
			Help: "Total number of XRechnung documents generated",
		}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rechnungswerk_validation_failures_total",
			Help: "Violated business rules by rule ID",
		}, []string{"rule"}),
		RecordsScored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rechnungswerk_records_scored_total",
			Help: "Scored invoice records by extraction method and review outcome",
		}, []string{"method", "needs_review"}),
		OverallConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rechnungswerk_overall_confidence",
			Help:    "Overall confidence of scored records",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rechnungswerk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		}, []string{"route", "status"}),
	}
}

// IncrementGenerated records a successfully generated document.
func (m *Metrics) IncrementGenerated() {
	if m == nil {
		return
	}
	m.DocumentsGenerated.Inc()
}

// IncrementValidationFailure records one violated rule.
func (m *Metrics) IncrementValidationFailure(rule string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(rule).Inc()
}

// ObserveScore records one confidence report.
func (m *Metrics) ObserveScore(method string, overall float64, needsReview bool) {
	if m == nil {
		return
	}
	m.RecordsScored.WithLabelValues(method, strconv.FormatBool(needsReview)).Inc()
	m.OverallConfidence.Observe(overall)
}

// ObserveRequest records the duration of an HTTP request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveRequest(route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
