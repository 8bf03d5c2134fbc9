// Package metrics exposes Drover's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Migration metrics
	MigrationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drover_migrations_active",
			Help: "Number of volumes currently carrying a live clone overlay",
		},
	)

	MigrationFinalizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_migration_finalizations_total",
			Help: "Total number of migration finalizations by result",
		},
		[]string{"result"},
	)

	RemoteCreationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_remote_creations_total",
			Help: "Total number of destination volume creations by result",
		},
		[]string{"result"},
	)

	// Monitor metrics
	MonitorTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_monitor_ticks_total",
			Help: "Total number of migration monitor ticks",
		},
	)

	MonitorTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drover_monitor_tick_duration_seconds",
			Help:    "Duration of migration monitor ticks",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Volume metrics
	VolumesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_volumes_total",
			Help: "Number of volumes owned by this host by status",
		},
		[]string{"status"},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(
		MigrationsActive,
		MigrationFinalizationsTotal,
		RemoteCreationsTotal,
		MonitorTicksTotal,
		MonitorTickDuration,
		VolumesTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
