package admin

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/originserver/concurrenthttp/internal/stats"
)

// statsCollector adapts the shared statistics engine to the
// prometheus.Collector interface, so /metrics always reflects the current
// cross-process counters without a separate bookkeeping pass.
type statsCollector struct {
	eng *stats.Engine

	totalRequests    *prometheus.Desc
	bytesTransferred *prometheus.Desc
	activeConns      *prometheus.Desc
	statusCount      *prometheus.Desc
	avgResponseMs    *prometheus.Desc
}

func newStatsCollector(eng *stats.Engine) *statsCollector {
	return &statsCollector{
		eng: eng,
		totalRequests: prometheus.NewDesc(
			"concurrenthttp_requests_total", "Total requests served.", nil, nil),
		bytesTransferred: prometheus.NewDesc(
			"concurrenthttp_bytes_transferred_total", "Total response bytes transferred.", nil, nil),
		activeConns: prometheus.NewDesc(
			"concurrenthttp_active_connections", "Currently active connections.", nil, nil),
		statusCount: prometheus.NewDesc(
			"concurrenthttp_responses_total", "Responses by status code.", []string{"status"}, nil),
		avgResponseMs: prometheus.NewDesc(
			"concurrenthttp_avg_response_time_ms", "Mean response time in milliseconds.", nil, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRequests
	ch <- c.bytesTransferred
	ch <- c.activeConns
	ch <- c.statusCount
	ch <- c.avgResponseMs
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	v := c.eng.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.totalRequests, prometheus.CounterValue, float64(v.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.bytesTransferred, prometheus.CounterValue, float64(v.BytesTransferred))
	ch <- prometheus.MustNewConstMetric(c.activeConns, prometheus.GaugeValue, float64(v.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.avgResponseMs, prometheus.GaugeValue, v.AvgResponseTimeMs)

	for status, count := range map[string]uint32{
		"200": v.Status200, "201": v.Status201, "206": v.Status206,
		"403": v.Status403, "404": v.Status404, "500": v.Status500, "503": v.Status503,
	} {
		ch <- prometheus.MustNewConstMetric(c.statusCount, prometheus.CounterValue, float64(count), status)
	}
}
