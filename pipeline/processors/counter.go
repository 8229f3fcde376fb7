// Package processors ships small ready-made pipeline stages: counting,
// predicate filtering, static forwarding and rate limiting.
package processors

import (
	"sync/atomic"

	"github.com/ncldmg/zafxdp/packet"
	"github.com/ncldmg/zafxdp/pipeline"
)

// Counter counts packets and bytes and passes everything through. Safe to
// share across workers.
type Counter struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
}

var _ pipeline.BatchProcessor = (*Counter)(nil)

// NewCounter returns a zeroed counter stage.
func NewCounter() *Counter { return &Counter{} }

// Process implements pipeline.Processor.
func (c *Counter) Process(pkt *packet.Packet) (pipeline.Result, error) {
	c.packets.Add(1)
	c.bytes.Add(uint64(pkt.Len()))
	return pipeline.Pass, nil
}

// ProcessBatch implements pipeline.BatchProcessor.
func (c *Counter) ProcessBatch(pkts []*packet.Packet, results []pipeline.Result) error {
	var bytes uint64
	n := 0
	for i, pkt := range pkts {
		if results[i].Action == pipeline.ActionTransmit {
			continue
		}
		bytes += uint64(pkt.Len())
		n++
	}
	c.packets.Add(uint64(n))
	c.bytes.Add(bytes)
	return nil
}

// Packets returns the packets seen so far.
func (c *Counter) Packets() uint64 { return c.packets.Load() }

// Bytes returns the bytes seen so far.
func (c *Counter) Bytes() uint64 { return c.bytes.Load() }
