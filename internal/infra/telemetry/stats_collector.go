package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/abuse-guard/internal/core/domain"
)

// StatsCollector exports the guard occupancy snapshot at scrape time.
type StatsCollector struct {
	stats func() domain.Stats

	windowSize     *prometheus.Desc
	windowCapacity *prometheus.Desc
	failures       *prometheus.Desc
	tracked        *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

func NewStatsCollector(stats func() domain.Stats) *StatsCollector {
	return &StatsCollector{
		stats: stats,
		windowSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "limiter", "window_entries"),
			"Identifiers currently tracked by a policy window store.",
			[]string{"policy"}, nil,
		),
		windowCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "limiter", "window_capacity"),
			"Maximum identifiers a policy window store retains.",
			[]string{"policy"}, nil,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "backoff", "tracked_identifiers"),
			"Identifiers with recorded authentication failures.",
			nil, nil,
		),
		tracked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "activity", "tracked_identifiers"),
			"Identifiers with recorded anomaly patterns.",
			nil, nil,
		),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.windowSize
	ch <- c.windowCapacity
	ch <- c.failures
	ch <- c.tracked
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		return
	}
	snapshot := c.stats()

	for policy, s := range snapshot.PerPolicy {
		ch <- prometheus.MustNewConstMetric(c.windowSize, prometheus.GaugeValue, float64(s.Size), string(policy))
		ch <- prometheus.MustNewConstMetric(c.windowCapacity, prometheus.GaugeValue, float64(s.Capacity), string(policy))
	}
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(snapshot.FailureCount))
	ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.GaugeValue, float64(snapshot.SuspiciousCount))
}
