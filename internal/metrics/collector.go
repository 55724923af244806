// Package metrics exposes the daemon's worker pool and script-loading state
// as Prometheus gauges (SPEC_FULL.md domain stack: "active slots, queue
// depth, scripts in error"). Grounded on dagu-org-dagu's
// internal/common/telemetry collector: a single prometheus.Collector that
// pulls a live snapshot on every scrape rather than a set of package-level
// gauges nudged from call sites scattered across the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"glitchscript/internal/manager"
)

const namespace = "glitchscriptd"

// Collector implements prometheus.Collector over a live *manager.Manager.
// It holds no state of its own; every Collect call re-reads the manager.
type Collector struct {
	mgr *manager.Manager

	slotCount   *prometheus.Desc
	activeSlots *prometheus.Desc
	placed      *prometheus.Desc
	queueDepth  *prometheus.Desc
	scriptsErr  *prometheus.Desc
}

// NewCollector builds a Collector over mgr. mgr may have its worker pool
// started after the Collector is constructed; PoolStats returns the zero
// value until then and the gauges simply read zero.
func NewCollector(mgr *manager.Manager) *Collector {
	return &Collector{
		mgr: mgr,
		slotCount: prometheus.NewDesc(
			namespace+"_worker_slot_count", "Configured worker slot count.", nil, nil),
		activeSlots: prometheus.NewDesc(
			namespace+"_worker_active_slots", "Worker slots currently hosting at least one script.", nil, nil),
		placed: prometheus.NewDesc(
			namespace+"_scripts_placed", "Scripts currently placed on a worker slot.", nil, nil),
		queueDepth: prometheus.NewDesc(
			namespace+"_worker_queue_depth", "Pending messages in the worker pool's outbox channel.", nil, nil),
		scriptsErr: prometheus.NewDesc(
			namespace+"_scripts_in_error", "Loaded scripts currently in the error state.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.slotCount
	ch <- c.activeSlots
	ch <- c.placed
	ch <- c.queueDepth
	ch <- c.scriptsErr
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.mgr.PoolStats()
	ch <- prometheus.MustNewConstMetric(c.slotCount, prometheus.GaugeValue, float64(stats.SlotCount))
	ch <- prometheus.MustNewConstMetric(c.activeSlots, prometheus.GaugeValue, float64(stats.ActiveSlots))
	ch <- prometheus.MustNewConstMetric(c.placed, prometheus.GaugeValue, float64(stats.PlacedCount))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(stats.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.scriptsErr, prometheus.GaugeValue, float64(c.mgr.ScriptsInError()))
}
