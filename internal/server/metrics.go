package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the dealer exposes on /metrics:
// bus backpressure, cache freshness per venue, and hedge-loop activity.
// None of this is wired through the request path itself: cmd/server
// updates the bus and cache gauges from a background poller, matching the
// teacher's pattern of scraping component state into gauges, and the
// hedge counters from a wrapper around the scheduled hedging job.
type Metrics struct {
	Registry *prometheus.Registry

	BusDroppedTotal       prometheus.Gauge
	CacheStalenessSeconds *prometheus.GaugeVec
	HedgeTicksTotal       prometheus.Counter
	HedgeErrorsTotal      prometheus.Counter
}

// NewMetrics constructs a fresh registry and registers every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		BusDroppedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stablesats",
			Subsystem: "bus",
			Name:      "dropped_lagged_total",
			Help:      "Envelopes a slow subscriber fell behind and lost from the PriceBus ring buffer.",
		}),
		CacheStalenessSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stablesats",
			Subsystem: "pricecache",
			Name:      "staleness_seconds",
			Help:      "Age of the latest cached price for a venue.",
		}, []string{"venue"}),
		HedgeTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stablesats",
			Subsystem: "hedging",
			Name:      "reconcile_ticks_total",
			Help:      "Scheduled hedging reconciliation iterations completed; event-triggered runs are not counted.",
		}),
		HedgeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stablesats",
			Subsystem: "hedging",
			Name:      "reconcile_errors_total",
			Help:      "Scheduled hedging reconciliation iterations that returned an error.",
		}),
	}

	reg.MustRegister(m.BusDroppedTotal, m.CacheStalenessSeconds, m.HedgeTicksTotal, m.HedgeErrorsTotal)
	return m
}
