// Package stats collects process-wide packet counters shared by every
// worker. All updates are single atomic additions; a snapshot is a set of
// independent relaxed reads, so counters are individually exact but not
// mutually consistent.
package stats

import (
	"sync/atomic"
	"time"
)

// Collector holds the runtime counters for a service.
type Collector struct {
	packetsReceived    atomic.Uint64
	packetsTransmitted atomic.Uint64
	packetsDropped     atomic.Uint64
	packetsPassed      atomic.Uint64
	bytesReceived      atomic.Uint64
	bytesTransmitted   atomic.Uint64
	errors             atomic.Uint64

	start time.Time
}

// NewCollector returns a collector with the start timestamp set to now.
func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

// AddReceived records n received packets carrying bytes payload bytes total.
func (c *Collector) AddReceived(n, bytes uint64) {
	c.packetsReceived.Add(n)
	c.bytesReceived.Add(bytes)
}

// AddTransmitted records n transmitted packets carrying bytes total.
func (c *Collector) AddTransmitted(n, bytes uint64) {
	c.packetsTransmitted.Add(n)
	c.bytesTransmitted.Add(bytes)
}

// AddDropped records n dropped packets.
func (c *Collector) AddDropped(n uint64) { c.packetsDropped.Add(n) }

// AddPassed records n passed packets.
func (c *Collector) AddPassed(n uint64) { c.packetsPassed.Add(n) }

// AddErrors records n errors.
func (c *Collector) AddErrors(n uint64) { c.errors.Add(n) }

// Start returns the collector's start timestamp.
func (c *Collector) Start() time.Time { return c.start }

// Snapshot is a point-in-time copy of the counters plus rates derived over
// the elapsed time since the collector was created. Callers must not assume
// cross-counter consistency (received == transmitted+dropped+passed may not
// hold mid-run).
type Snapshot struct {
	PacketsReceived    uint64
	PacketsTransmitted uint64
	PacketsDropped     uint64
	PacketsPassed      uint64
	BytesReceived      uint64
	BytesTransmitted   uint64
	Errors             uint64

	Elapsed time.Duration

	RxPacketsPerSec float64
	TxPacketsPerSec float64
	RxBytesPerSec   float64
	TxBytesPerSec   float64
}

// Snapshot reads every counter once and derives the rates.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		PacketsReceived:    c.packetsReceived.Load(),
		PacketsTransmitted: c.packetsTransmitted.Load(),
		PacketsDropped:     c.packetsDropped.Load(),
		PacketsPassed:      c.packetsPassed.Load(),
		BytesReceived:      c.bytesReceived.Load(),
		BytesTransmitted:   c.bytesTransmitted.Load(),
		Errors:             c.errors.Load(),
		Elapsed:            time.Since(c.start),
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.RxPacketsPerSec = float64(s.PacketsReceived) / secs
		s.TxPacketsPerSec = float64(s.PacketsTransmitted) / secs
		s.RxBytesPerSec = float64(s.BytesReceived) / secs
		s.TxBytesPerSec = float64(s.BytesTransmitted) / secs
	}
	return s
}
