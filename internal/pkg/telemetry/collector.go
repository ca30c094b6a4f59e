package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tether_telemetry"

var (
	avgLatencyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "avg_latency_ms"),
		"Mean latency over the retained sample window",
		[]string{"endpoint"}, nil,
	)
	successRateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "success_rate"),
		"Fraction of recent operations that succeeded",
		[]string{"endpoint"}, nil,
	)
	activeConnectionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "active_connections"),
		"Number of live connections for the endpoint (0 or 1)",
		[]string{"endpoint"}, nil,
	)
	queueDepthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "queue_depth"),
		"Number of messages buffered for the endpoint",
		[]string{"endpoint"}, nil,
	)
)

// Collector exposes aggregator snapshots to Prometheus.
type Collector struct {
	agg *Aggregator
}

func NewCollector(agg *Aggregator) *Collector {
	return &Collector{agg: agg}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for endpoint, s := range c.agg.SnapshotAll() {
		ch <- prometheus.MustNewConstMetric(avgLatencyDesc, prometheus.GaugeValue, s.AvgLatency, endpoint)
		ch <- prometheus.MustNewConstMetric(successRateDesc, prometheus.GaugeValue, s.SuccessRate, endpoint)
		ch <- prometheus.MustNewConstMetric(activeConnectionsDesc, prometheus.GaugeValue, float64(s.ActiveConnections), endpoint)
		ch <- prometheus.MustNewConstMetric(queueDepthDesc, prometheus.GaugeValue, float64(s.QueueDepth), endpoint)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
