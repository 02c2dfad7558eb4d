package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClusterSource reports membership state at scrape time.
type ClusterSource interface {
	MemberCount() int
	IsQuorate() bool
	RingSeq() uint64
}

// Collector exports the current cluster view.
type Collector struct {
	source ClusterSource

	members *prometheus.Desc
	quorate *prometheus.Desc
	ringSeq *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source ClusterSource) *Collector {
	return &Collector{
		source: source,
		members: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cluster", "members"),
			"Number of nodes in the current membership", nil, nil),
		quorate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cluster", "quorate"),
			"1 when the cluster is quorate", nil, nil),
		ringSeq: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cluster", "ring_seq"),
			"Current membership ring sequence", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.members
	ch <- c.quorate
	ch <- c.ringSeq
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	quorate := 0.0
	if c.source.IsQuorate() {
		quorate = 1
	}
	ch <- prometheus.MustNewConstMetric(c.members, prometheus.GaugeValue, float64(c.source.MemberCount()))
	ch <- prometheus.MustNewConstMetric(c.quorate, prometheus.GaugeValue, quorate)
	ch <- prometheus.MustNewConstMetric(c.ringSeq, prometheus.CounterValue, float64(c.source.RingSeq()))
}
