// Package metrics exposes the pipeline's Prometheus collectors. Counters are
// append-only and safe for an external scraper to read while the pipeline
// runs; values are eventually consistent per symbol.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors for one process. Per-symbol series are
// labelled rather than duplicated.
type Metrics struct {
	BarsInTotal       *prometheus.CounterVec // labels: symbol
	BarsInvalidTotal  *prometheus.CounterVec // labels: symbol
	AggregatorEmitted *prometheus.CounterVec // labels: symbol, tf
	AggregatorDropped *prometheus.CounterVec // labels: symbol

	PoolsCreatedTotal *prometheus.CounterVec // labels: symbol, tf, kind
	ActivePools       *prometheus.GaugeVec   // labels: symbol, tf
	TouchedPools      *prometheus.GaugeVec   // labels: symbol, tf
	PoolsExpiredTotal *prometheus.CounterVec // labels: symbol, tf

	HLZActive         *prometheus.GaugeVec   // labels: symbol
	HLZCreatedTotal   *prometheus.CounterVec // labels: symbol
	HLZDissolvedTotal *prometheus.CounterVec // labels: symbol

	ZoneEntriesTotal *prometheus.CounterVec // labels: symbol, kind

	CandidatesSpawnedTotal *prometheus.CounterVec // labels: symbol
	CandidatesExpiredTotal *prometheus.CounterVec // labels: symbol
	CandidatesReadyTotal   *prometheus.CounterVec // labels: symbol

	SignalsEmittedTotal  *prometheus.CounterVec // labels: symbol
	SignalsRejectedTotal *prometheus.CounterVec // labels: symbol, reason

	CapacityExceededTotal *prometheus.CounterVec // labels: symbol, scope

	StageLatency *prometheus.HistogramVec // labels: symbol, stage
}

// New registers and returns all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BarsInTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_bars_in_total",
			Help: "Base bars accepted by the pipeline",
		}, []string{"symbol"}),
		BarsInvalidTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_bars_invalid_total",
			Help: "Bars dropped by ingress validation",
		}, []string{"symbol"}),
		AggregatorEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_emitted_total",
			Help: "Closed higher-timeframe bars emitted (by timeframe)",
		}, []string{"symbol", "tf"}),
		AggregatorDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_dropped_total",
			Help: "Bars dropped by ordering guardrails",
		}, []string{"symbol"}),

		PoolsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detectors_pools_created_total",
			Help: "Pools created from detector candidates",
		}, []string{"symbol", "tf", "kind"}),
		ActivePools: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "registry_active_pools",
			Help: "Currently active pools",
		}, []string{"symbol", "tf"}),
		TouchedPools: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "registry_touched_pools",
			Help: "Currently touched pools",
		}, []string{"symbol", "tf"}),
		PoolsExpiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_expired_total",
			Help: "Pools expired by TTL",
		}, []string{"symbol", "tf"}),

		HLZActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlz_active",
			Help: "Currently active high-liquidity zones",
		}, []string{"symbol"}),
		HLZCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlz_created_total",
			Help: "High-liquidity zones created",
		}, []string{"symbol"}),
		HLZDissolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlz_dissolved_total",
			Help: "High-liquidity zones dissolved",
		}, []string{"symbol"}),

		ZoneEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zone_watcher_entries_total",
			Help: "Zone entry events (by zone kind)",
		}, []string{"symbol", "kind"}),

		CandidatesSpawnedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candidates_spawned_total",
			Help: "Signal candidates spawned from zone entries",
		}, []string{"symbol"}),
		CandidatesExpiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candidates_expired_total",
			Help: "Signal candidates expired before READY",
		}, []string{"symbol"}),
		CandidatesReadyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candidates_ready_total",
			Help: "Signal candidates that reached READY",
		}, []string{"symbol"}),

		SignalsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_emitted_total",
			Help: "Order intents emitted",
		}, []string{"symbol"}),
		SignalsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_rejected_total",
			Help: "Signals rejected by sizing (by reason)",
		}, []string{"symbol", "reason"}),

		CapacityExceededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capacity_exceeded_total",
			Help: "Creates refused by bounded collections (by scope)",
		}, []string{"symbol", "scope"}),

		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "latency_ns",
			Help:    "Per-stage processing latency in nanoseconds",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1e6},
		}, []string{"symbol", "stage"}),
	}

	reg.MustRegister(
		m.BarsInTotal, m.BarsInvalidTotal, m.AggregatorEmitted, m.AggregatorDropped,
		m.PoolsCreatedTotal, m.ActivePools, m.TouchedPools, m.PoolsExpiredTotal,
		m.HLZActive, m.HLZCreatedTotal, m.HLZDissolvedTotal,
		m.ZoneEntriesTotal,
		m.CandidatesSpawnedTotal, m.CandidatesExpiredTotal, m.CandidatesReadyTotal,
		m.SignalsEmittedTotal, m.SignalsRejectedTotal,
		m.CapacityExceededTotal, m.StageLatency,
	)
	return m
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
