// Package pipeline composes typed packet processors into an ordered chain.
// Each received packet flows through the chain and comes out with an action
// the worker applies: drop, pass, transmit on a named interface queue, or
// recirculate through the chain again.
package pipeline

import (
	"github.com/ncldmg/zafxdp/packet"
)

// Action steers a packet after a processor has seen it.
type Action int

const (
	// ActionPass hands the packet to the next stage; from the final stage
	// it is the overall verdict.
	ActionPass Action = iota
	// ActionDrop discards the packet.
	ActionDrop
	// ActionTransmit queues the packet for transmission and ends the chain.
	ActionTransmit
	// ActionRecirculate restarts the chain from the first stage.
	ActionRecirculate
)

// String returns the action name for logs.
func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionDrop:
		return "drop"
	case ActionTransmit:
		return "transmit"
	case ActionRecirculate:
		return "recirculate"
	default:
		return "unknown"
	}
}

// Result is a processor's verdict on one packet.
type Result struct {
	Action Action
	// TxIfindex and TxQueue name the target of an ActionTransmit.
	TxIfindex int
	TxQueue   uint32
	// Modified reports that the processor rewrote packet bytes.
	Modified bool
}

// Pass is the neutral result.
var Pass = Result{Action: ActionPass}

// Drop discards the packet.
var Drop = Result{Action: ActionDrop}

// Transmit builds a transmit result for the given target.
func Transmit(ifindex int, queue uint32) Result {
	return Result{Action: ActionTransmit, TxIfindex: ifindex, TxQueue: queue}
}

// Processor is one stage of a pipeline. Implementations own their state
// exclusively; a processor shared by pipelines on several workers must be
// internally thread-safe.
type Processor interface {
	// Process inspects one packet and returns its verdict. An error makes
	// the worker return the whole batch to the fill ring and count an error.
	Process(pkt *packet.Packet) (Result, error)
}

// BatchProcessor short-circuits per-packet dispatch. ProcessBatch receives
// the active packets and their current results; it must write a result for
// every packet it decides on and leave the rest untouched.
type BatchProcessor interface {
	Processor
	ProcessBatch(pkts []*packet.Packet, results []Result) error
}

// Initializer is implemented by processors needing a setup hook. Init is
// called exactly once, when the processor is added to a pipeline.
type Initializer interface {
	Init() error
}

// Finalizer is implemented by processors needing a teardown hook. Teardown
// is called exactly once, when the pipeline is torn down.
type Finalizer interface {
	Teardown()
}
