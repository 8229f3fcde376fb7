package processors

import (
	"github.com/ncldmg/zafxdp/packet"
	"github.com/ncldmg/zafxdp/pipeline"
)

// Filter drops every packet the predicate matches and passes the rest.
type Filter struct {
	drop func(*packet.Packet) bool
}

var _ pipeline.Processor = (*Filter)(nil)

// NewFilter builds a filter stage around a drop predicate.
func NewFilter(drop func(*packet.Packet) bool) *Filter {
	return &Filter{drop: drop}
}

// Process implements pipeline.Processor.
func (f *Filter) Process(pkt *packet.Packet) (pipeline.Result, error) {
	if f.drop(pkt) {
		return pipeline.Drop, nil
	}
	return pipeline.Pass, nil
}
