// Package metrics exposes a pull-model Prometheus collector over a
// registry's tracked connections: per-remote-address smoothed RTT,
// packets in flight, and reassembly occupancy, gathered on each scrape
// rather than pushed as a side effect of the hot path.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionStats is one peer's readout at scrape time. Registries and
// engines never depend on this package; callers are expected to take a
// snapshot (e.g. once per manual_poll tick) and feed it in via Update.
type ConnectionStats struct {
	Addr              string
	RTTMs             float64
	Quality           string
	PacketsInFlight   float64
	ReassemblyEntries float64
}

// ConnectionCollector is a prometheus.Collector that reports the most
// recently supplied snapshot of connection stats. It holds no reference
// to the registry or engines themselves.
type ConnectionCollector struct {
	mu    sync.Mutex
	stats map[string]ConnectionStats

	rtt        *prometheus.Desc
	inFlight   *prometheus.Desc
	reassembly *prometheus.Desc
}

// NewConnectionCollector constructs a collector with the given metric
// name prefix (e.g. "reliant").
func NewConnectionCollector(prefix string) *ConnectionCollector {
	return &ConnectionCollector{
		stats: make(map[string]ConnectionStats),
		rtt: prometheus.NewDesc(
			prefix+"_connection_rtt_milliseconds",
			"Smoothed round-trip time estimate for this connection.",
			[]string{"addr", "quality"}, nil,
		),
		inFlight: prometheus.NewDesc(
			prefix+"_connection_packets_in_flight",
			"Unacknowledged reliable sends currently retained for this connection.",
			[]string{"addr"}, nil,
		),
		reassembly: prometheus.NewDesc(
			prefix+"_connection_reassembly_entries",
			"In-progress fragment reassembly entries for this connection.",
			[]string{"addr"}, nil,
		),
	}
}

// Update replaces the snapshot the collector reports on the next
// scrape. Callers typically call this once per poll tick with a fresh
// snapshot, such as the output of reliant.Socket.Stats.
func (c *ConnectionCollector) Update(snapshot []ConnectionStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]ConnectionStats, len(snapshot))
	for _, s := range snapshot {
		next[s.Addr] = s
	}
	c.stats = next
}

// Describe implements prometheus.Collector.
func (c *ConnectionCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.rtt
	descs <- c.inFlight
	descs <- c.reassembly
}

// Collect implements prometheus.Collector.
func (c *ConnectionCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.stats {
		metrics <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, s.RTTMs, s.Addr, s.Quality)
		metrics <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, s.PacketsInFlight, s.Addr)
		metrics <- prometheus.MustNewConstMetric(c.reassembly, prometheus.GaugeValue, s.ReassemblyEntries, s.Addr)
	}
}
