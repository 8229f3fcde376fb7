package processors

import (
	"github.com/ncldmg/zafxdp/packet"
	"github.com/ncldmg/zafxdp/pipeline"
)

// Target names an (interface, queue) transmit destination.
type Target struct {
	Ifindex int
	Queue   uint32
}

// Forwarder transmits packets according to a static map from the arrival
// interface to a target. Packets from unmapped interfaces pass through.
type Forwarder struct {
	routes map[int]Target
}

var _ pipeline.Processor = (*Forwarder)(nil)

// NewForwarder builds a forwarder over a route table keyed by arrival
// interface index.
func NewForwarder(routes map[int]Target) *Forwarder {
	return &Forwarder{routes: routes}
}

// Process implements pipeline.Processor.
func (f *Forwarder) Process(pkt *packet.Packet) (pipeline.Result, error) {
	if t, ok := f.routes[pkt.Ifindex()]; ok {
		return pipeline.Transmit(t.Ifindex, t.Queue), nil
	}
	return pipeline.Pass, nil
}
