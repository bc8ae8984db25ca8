// Package metrics exposes Prometheus metrics for calendar queries.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketclock/internal/calendar"
	"marketclock/internal/marketdb"
)

const (
	metricPrefix = "marketclock_"

	ResultOK              = "ok"
	ResultInvalidArgument = "invalid_argument"
	ResultNotFound        = "not_found"
	ResultError           = "error"
)

// Metrics bundles calendar query metrics on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	QueriesTotal *prometheus.CounterVec
	QueryLatency *prometheus.HistogramVec
}

// New constructs and registers metrics, including Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "calendar_queries_total",
				Help: "Total calendar queries by operation and result",
			},
			[]string{"op", "result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "calendar_query_seconds",
				Help:    "Calendar query latency in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"op"},
		),
	}
	m.Registry.MustRegister(
		m.QueriesTotal,
		m.QueryLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one query of op that started at start and finished with
// err. A nil receiver records nothing.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(op, Result(err)).Inc()
	m.QueryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Result classifies err into a result label value.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, calendar.ErrInvalidArgument):
		return ResultInvalidArgument
	case errors.Is(err, calendar.ErrNotFound), errors.Is(err, marketdb.ErrEntryNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}
