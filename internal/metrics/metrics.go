// Package metrics exposes kiosk activity as Prometheus series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry, so several instances
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Launch metrics
	Launches *prometheus.CounterVec

	// Navigation metrics
	NavEvents *prometheus.CounterVec

	// Catalog metrics
	CatalogApps    *prometheus.GaugeVec
	StoreRefreshes prometheus.Counter
	SkippedAppDirs prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// New registers the kiosk collectors plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		Launches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranortv_launches_total",
				Help: "Launch attempts by route and outcome",
			},
			[]string{"route", "outcome"},
		),
		NavEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranortv_nav_events_total",
				Help: "Navigation events handled",
			},
			[]string{"event"},
		),
		CatalogApps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ranortv_catalog_apps",
				Help: "Apps per catalog view",
			},
			[]string{"view"},
		),
		StoreRefreshes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ranortv_store_refreshes_total",
				Help: "Store feed refreshes applied",
			},
		),
		SkippedAppDirs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ranortv_catalog_skipped_dirs",
				Help: "App directories skipped by the last scan",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranortv_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranortv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
	}
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ranortv_uptime_seconds",
			Help: "Seconds since the kiosk started",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	return m
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordLaunch counts one dispatch outcome.
func (m *Metrics) RecordLaunch(route, outcome string) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(route, outcome).Inc()
}

// RecordNav counts one navigation event.
func (m *Metrics) RecordNav(event string) {
	if m == nil {
		return
	}
	m.NavEvents.WithLabelValues(event).Inc()
}

// SetCatalog publishes the current view sizes.
func (m *Metrics) SetCatalog(sizes map[string]int, skipped int) {
	if m == nil {
		return
	}
	for view, n := range sizes {
		m.CatalogApps.WithLabelValues(view).Set(float64(n))
	}
	m.SkippedAppDirs.Set(float64(skipped))
}

// RecordRequest counts one HTTP request.
func (m *Metrics) RecordRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
