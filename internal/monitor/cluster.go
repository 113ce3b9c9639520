package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaunagostinho/mechanic-dash/internal/gauge"
)

var (
	channelCurrentDesc = prometheus.NewDesc(
		"mechanicdash_channel_current",
		"Displayed channel value.",
		[]string{"channel"}, nil,
	)
	channelTargetDesc = prometheus.NewDesc(
		"mechanicdash_channel_target",
		"Latest clamped channel target.",
		[]string{"channel"}, nil,
	)
)

// ClusterCollector exports channel values at scrape time.
type ClusterCollector struct {
	cluster *gauge.Cluster
}

func NewClusterCollector(cluster *gauge.Cluster) *ClusterCollector {
	return &ClusterCollector{cluster: cluster}
}

func (c *ClusterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- channelCurrentDesc
	ch <- channelTargetDesc
}

func (c *ClusterCollector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.cluster.Snapshot() {
		ch <- prometheus.MustNewConstMetric(channelCurrentDesc, prometheus.GaugeValue, r.Current, r.Name)
		ch <- prometheus.MustNewConstMetric(channelTargetDesc, prometheus.GaugeValue, r.Target, r.Name)
	}
}
