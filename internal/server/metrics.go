package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type serverMetrics struct {
	requests        *prometheus.CounterVec // by route and status code
	refreshes       *prometheus.CounterVec // by outcome: ok, error
	refreshDuration prometheus.Histogram
	cacheHits       prometheus.Counter
	entities        prometheus.Gauge
	yearErrors      prometheus.Gauge
}

func newServerMetrics(registry *prometheus.Registry) *serverMetrics {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "churchrank",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of http requests served",
		}, []string{"route", "code"}),

		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "churchrank",
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Total number of dataset refreshes",
		}, []string{"outcome"}),

		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "churchrank",
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Dataset refresh duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "churchrank",
			Subsystem: "refresh",
			Name:      "cache_hits_total",
			Help:      "Total number of requests answered from the result cache",
		}),

		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "churchrank",
			Subsystem: "dataset",
			Name:      "entities",
			Help:      "Number of entities in the latest refresh",
		}),

		yearErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "churchrank",
			Subsystem: "dataset",
			Name:      "year_errors",
			Help:      "Number of years that failed in the latest refresh",
		}),
	}

	registry.MustRegister(
		m.requests,
		m.refreshes,
		m.refreshDuration,
		m.cacheHits,
		m.entities,
		m.yearErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *serverMetrics) recordRefresh(duration time.Duration, entities, yearErrors int, err error) {
	m.refreshDuration.Observe(duration.Seconds())
	if err != nil {
		m.refreshes.WithLabelValues("error").Inc()
		return
	}
	m.refreshes.WithLabelValues("ok").Inc()
	m.entities.Set(float64(entities))
	m.yearErrors.Set(float64(yearErrors))
}
