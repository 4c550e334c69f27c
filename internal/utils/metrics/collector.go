// internal/utils/metrics/collector.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bonding_curve"

// MetricType names one of the collector's metric families.
type MetricType string

const (
	TradeCounterType       MetricType = "trade_counter"
	TradeVolumeType        MetricType = "trade_volume"
	FeeCounterType         MetricType = "fees"
	RejectionCounterType   MetricType = "rejections"
	SettlementDurationType MetricType = "settlement_duration"
	LifecycleCounterType   MetricType = "lifecycle"
	CurveReserveType       MetricType = "curve_reserve"
	PriceImpactType        MetricType = "price_impact"
)

// Collector owns the market metrics on its own registry, so several
// collectors can live in one process (tests, embedded use).
type Collector struct {
	registry *prometheus.Registry
	metrics  map[MetricType]prometheus.Collector

	trades      *prometheus.CounterVec
	volume      *prometheus.CounterVec
	fees        *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lifecycle   *prometheus.CounterVec
	reserves    *prometheus.GaugeVec
	priceImpact *prometheus.HistogramVec
}

// NewCollector creates a collector with every metric registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Settled trades by direction",
			},
			[]string{"direction"},
		),
		volume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trade_volume_lamports_total",
				Help:      "Base currency paid or received by traders",
			},
			[]string{"direction"},
		),
		fees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fees_lamports_total",
				Help:      "Fees credited to the fee recipient",
			},
			[]string{"kind"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_operations_total",
				Help:      "Operations aborted by error kind",
			},
			[]string{"op", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settlement_duration_seconds",
				Help:      "Time spent settling one operation",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"op"},
		),
		lifecycle: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "curve_transitions_total",
				Help:      "Curves launched, completed and migrated",
			},
			[]string{"event"},
		),
		reserves: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "curve_virtual_reserve",
				Help:      "Current virtual reserves per curve",
			},
			[]string{"mint", "asset"},
		),
		priceImpact: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "price_impact_bps",
				Help:      "Price impact of settled trades in basis points",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"direction"},
		),
	}

	c.metrics = map[MetricType]prometheus.Collector{
		TradeCounterType:       c.trades,
		TradeVolumeType:        c.volume,
		FeeCounterType:         c.fees,
		RejectionCounterType:   c.rejections,
		SettlementDurationType: c.duration,
		LifecycleCounterType:   c.lifecycle,
		CurveReserveType:       c.reserves,
		PriceImpactType:        c.priceImpact,
	}
	for _, m := range c.metrics {
		c.registry.MustRegister(m)
	}
	c.initLabels()
	return c
}

// initLabels creates the fixed label sets so a fresh collector exports every
// family at zero.
func (c *Collector) initLabels() {
	for _, direction := range []string{"buy", "sell"} {
		c.trades.WithLabelValues(direction)
		c.volume.WithLabelValues(direction)
		c.fees.WithLabelValues(direction)
		c.priceImpact.WithLabelValues(direction)
	}
	c.fees.WithLabelValues("migration")
	for _, event := range []string{"launched", "completed", "migrated"} {
		c.lifecycle.WithLabelValues(event)
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Reset clears every metric.
func (c *Collector) Reset() {
	for _, value := range c.metrics {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
	}
	c.initLabels()
}
