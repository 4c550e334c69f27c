// internal/utils/metrics/metrics.go
package metrics

import (
	"time"
)

// RecordTrade counts a settled trade. solAmount is what the trader paid or
// received.
func (c *Collector) RecordTrade(direction string, solAmount, fee, impactBps uint64) {
	c.trades.WithLabelValues(direction).Inc()
	c.volume.WithLabelValues(direction).Add(float64(solAmount))
	c.fees.WithLabelValues(direction).Add(float64(fee))
	c.priceImpact.WithLabelValues(direction).Observe(float64(impactBps))
}

// RecordRejection counts an aborted operation.
func (c *Collector) RecordRejection(op, kind string) {
	c.rejections.WithLabelValues(op, kind).Inc()
}

// ObserveSettlement records how long op took.
func (c *Collector) ObserveSettlement(op string, d time.Duration) {
	c.duration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordLaunch counts a new curve and sets its starting reserves.
func (c *Collector) RecordLaunch(mint string, solReserve, tokenReserve uint64) {
	c.lifecycle.WithLabelValues("launched").Inc()
	c.UpdateReserves(mint, solReserve, tokenReserve)
}

// RecordCompletion counts a curve reaching its limit.
func (c *Collector) RecordCompletion() {
	c.lifecycle.WithLabelValues("completed").Inc()
}

// RecordMigration counts a migration and its fee.
func (c *Collector) RecordMigration(fee uint64) {
	c.lifecycle.WithLabelValues("migrated").Inc()
	c.fees.WithLabelValues("migration").Add(float64(fee))
}

// UpdateReserves sets the virtual reserve gauges of one curve.
func (c *Collector) UpdateReserves(mint string, solReserve, tokenReserve uint64) {
	c.reserves.WithLabelValues(mint, "sol").Set(float64(solReserve))
	c.reserves.WithLabelValues(mint, "token").Set(float64(tokenReserve))
}
