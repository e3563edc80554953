// Package metrics implements the server's optional prometheus.Collector,
// tracking connected clients and frame/keepalive counters. Modeled on
// conniver's exporter.TCPInfoCollector Describe/Collect split: a fixed set
// of descriptors built once, values supplied from in-memory counters on
// every scrape rather than a syscall per connection.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a prometheus.Collector exposing the server's connection
// count, frame throughput, and keepalive round outcomes. The zero value is
// not usable; construct with New.
type Collector struct {
	connectedDesc      *prometheus.Desc
	framesSentDesc     *prometheus.Desc
	framesReceivedDesc *prometheus.Desc
	keepaliveRoundDesc *prometheus.Desc
	keepaliveDropDesc  *prometheus.Desc

	mu        sync.Mutex
	connected float64

	framesSent     uint64
	framesReceived uint64
	keepaliveRound uint64
	keepaliveDrop  uint64
}

// New builds a Collector with metric names under the given prefix
// (typically the program name, e.g. "wiresock").
func New(prefix string) *Collector {
	return &Collector{
		connectedDesc: prometheus.NewDesc(
			prefix+"_connected_clients", "Number of clients currently registered.", nil, nil),
		framesSentDesc: prometheus.NewDesc(
			prefix+"_frames_sent_total", "Total frames written to any connection.", nil, nil),
		framesReceivedDesc: prometheus.NewDesc(
			prefix+"_frames_received_total", "Total frames read from any connection.", nil, nil),
		keepaliveRoundDesc: prometheus.NewDesc(
			prefix+"_keepalive_rounds_total", "Total keepalive rounds run.", nil, nil),
		keepaliveDropDesc: prometheus.NewDesc(
			prefix+"_keepalive_disconnects_total", "Total clients force-disconnected for missing a keepalive ack.", nil, nil),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.connectedDesc
	descs <- c.framesSentDesc
	descs <- c.framesReceivedDesc
	descs <- c.keepaliveRoundDesc
	descs <- c.keepaliveDropDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, connected)
	ch <- prometheus.MustNewConstMetric(c.framesSentDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&c.framesSent)))
	ch <- prometheus.MustNewConstMetric(c.framesReceivedDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&c.framesReceived)))
	ch <- prometheus.MustNewConstMetric(c.keepaliveRoundDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&c.keepaliveRound)))
	ch <- prometheus.MustNewConstMetric(c.keepaliveDropDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&c.keepaliveDrop)))
}

// SetConnected records the current registry size.
func (c *Collector) SetConnected(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = float64(n)
}

func (c *Collector) IncFramesSent()     { atomic.AddUint64(&c.framesSent, 1) }
func (c *Collector) IncFramesReceived() { atomic.AddUint64(&c.framesReceived, 1) }
func (c *Collector) IncKeepaliveRound() { atomic.AddUint64(&c.keepaliveRound, 1) }
func (c *Collector) IncKeepaliveDrop()  { atomic.AddUint64(&c.keepaliveDrop, 1) }
