package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter bridges a Collector into a Prometheus registry. Counter values
// are read at scrape time; nothing is sampled in between.
type Exporter struct {
	c *Collector

	rxPackets *prometheus.Desc
	txPackets *prometheus.Desc
	dropped   *prometheus.Desc
	passed    *prometheus.Desc
	rxBytes   *prometheus.Desc
	txBytes   *prometheus.Desc
	errors    *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter wraps c for registration with a Prometheus registry.
func NewExporter(c *Collector) *Exporter {
	ns := "zafxdp"
	return &Exporter{
		c:         c,
		rxPackets: prometheus.NewDesc(ns+"_packets_received_total", "Packets drained from RX rings.", nil, nil),
		txPackets: prometheus.NewDesc(ns+"_packets_transmitted_total", "Packets submitted to TX rings.", nil, nil),
		dropped:   prometheus.NewDesc(ns+"_packets_dropped_total", "Packets dropped by the pipeline.", nil, nil),
		passed:    prometheus.NewDesc(ns+"_packets_passed_total", "Packets passed by the pipeline.", nil, nil),
		rxBytes:   prometheus.NewDesc(ns+"_bytes_received_total", "Bytes drained from RX rings.", nil, nil),
		txBytes:   prometheus.NewDesc(ns+"_bytes_transmitted_total", "Bytes submitted to TX rings.", nil, nil),
		errors:    prometheus.NewDesc(ns+"_errors_total", "Worker and pipeline errors.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.rxPackets
	ch <- e.txPackets
	ch <- e.dropped
	ch <- e.passed
	ch <- e.rxBytes
	ch <- e.txBytes
	ch <- e.errors
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.c.Snapshot()
	ch <- prometheus.MustNewConstMetric(e.rxPackets, prometheus.CounterValue, float64(s.PacketsReceived))
	ch <- prometheus.MustNewConstMetric(e.txPackets, prometheus.CounterValue, float64(s.PacketsTransmitted))
	ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(s.PacketsDropped))
	ch <- prometheus.MustNewConstMetric(e.passed, prometheus.CounterValue, float64(s.PacketsPassed))
	ch <- prometheus.MustNewConstMetric(e.rxBytes, prometheus.CounterValue, float64(s.BytesReceived))
	ch <- prometheus.MustNewConstMetric(e.txBytes, prometheus.CounterValue, float64(s.BytesTransmitted))
	ch <- prometheus.MustNewConstMetric(e.errors, prometheus.CounterValue, float64(s.Errors))
}
