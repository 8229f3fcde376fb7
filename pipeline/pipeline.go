package pipeline

import (
	"errors"
	"fmt"

	"github.com/ncldmg/zafxdp/packet"
)

// ErrTooManyStages is returned when AddStage would exceed MaxStages.
var ErrTooManyStages = errors.New("too many pipeline stages")

// Config sets the pipeline policies.
type Config struct {
	// StopOnDrop ends the chain at the first ActionDrop. When false the
	// next stage decides and the final stage's verdict stands.
	StopOnDrop bool
	// AllowModification records whether processors may rewrite packet
	// bytes. The pipeline stores it but does not check it, nor the Modified
	// flag of results.
	AllowModification bool
	// MaxStages caps the chain length and bounds recirculation.
	MaxStages int
}

// DefaultConfig stops on the first drop, allows modification and caps the
// chain at 16 stages.
func DefaultConfig() Config {
	return Config{StopOnDrop: true, AllowModification: true, MaxStages: 16}
}

// Pipeline is an ordered chain of processors. It is not internally
// synchronized: share one instance across workers only when every processor
// is thread-safe, otherwise give each worker its own.
type Pipeline struct {
	cfg    Config
	stages []Processor
}

// New returns an empty pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	if cfg.MaxStages <= 0 {
		cfg.MaxStages = DefaultConfig().MaxStages
	}
	return &Pipeline{cfg: cfg, stages: make([]Processor, 0, cfg.MaxStages)}
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// AddStage appends a processor and runs its Init hook.
func (p *Pipeline) AddStage(proc Processor) error {
	if len(p.stages) >= p.cfg.MaxStages {
		return fmt.Errorf("%w: limit %d", ErrTooManyStages, p.cfg.MaxStages)
	}
	if init, ok := proc.(Initializer); ok {
		if err := init.Init(); err != nil {
			return err
		}
	}
	p.stages = append(p.stages, proc)
	return nil
}

// Process runs one packet through the chain. Recirculation restarts from
// the first stage; after MaxStages restarts the action is coerced to Drop.
func (p *Pipeline) Process(pkt *packet.Packet) (Result, error) {
	recirc := 0
restart:
	last := Pass
	for _, st := range p.stages {
		r, err := st.Process(pkt)
		if err != nil {
			return Pass, err
		}
		switch r.Action {
		case ActionDrop:
			if p.cfg.StopOnDrop {
				return r, nil
			}
			last = r
		case ActionTransmit:
			return r, nil
		case ActionRecirculate:
			recirc++
			if recirc > p.cfg.MaxStages {
				return Drop, nil
			}
			goto restart
		default:
			last = r
		}
	}
	return last, nil
}

// ProcessBatch runs a batch through the chain. Every result starts as Pass;
// after each stage the arrays are compacted in place, overwriting dropped
// entries with survivors and preserving relative order. Returns the
// surviving count. pkts and results must have equal length.
func (p *Pipeline) ProcessBatch(pkts []*packet.Packet, results []Result) (int, error) {
	n := len(pkts)
	for i := 0; i < n; i++ {
		results[i] = Pass
	}
	for _, st := range p.stages {
		if n == 0 {
			break
		}
		if err := p.runStage(st, pkts[:n], results[:n]); err != nil {
			return 0, err
		}
		n = compact(pkts[:n], results[:n], p.cfg.StopOnDrop)
	}
	return n, nil
}

// runStage applies one stage to the active packets. Packets already holding
// a terminal Transmit verdict are skipped; a batch-capable processor is
// expected to do the same. Recirculation restarts from the first stage no
// matter which dispatch path produced it: the batch hook is a dispatch
// optimization, not different semantics.
func (p *Pipeline) runStage(st Processor, pkts []*packet.Packet, results []Result) error {
	if bp, ok := st.(BatchProcessor); ok {
		if err := bp.ProcessBatch(pkts, results); err != nil {
			return err
		}
		return p.recirculate(pkts, results)
	}
	for i, pkt := range pkts {
		if results[i].Action == ActionTransmit {
			continue
		}
		r, err := st.Process(pkt)
		if err != nil {
			return err
		}
		results[i] = r
	}
	return p.recirculate(pkts, results)
}

// recirculate restarts every packet whose result is ActionRecirculate
// through the whole chain and replaces its result with the final verdict.
func (p *Pipeline) recirculate(pkts []*packet.Packet, results []Result) error {
	for i := range results {
		if results[i].Action != ActionRecirculate {
			continue
		}
		r, err := p.Process(pkts[i])
		if err != nil {
			return err
		}
		results[i] = r
	}
	return nil
}

// compact removes dropped packets in place and returns the survivor count.
func compact(pkts []*packet.Packet, results []Result, stopOnDrop bool) int {
	w := 0
	for i := range pkts {
		if stopOnDrop && results[i].Action == ActionDrop {
			continue
		}
		if w != i {
			pkts[w] = pkts[i]
			results[w] = results[i]
		}
		w++
	}
	return w
}

// Teardown runs every processor's Teardown hook and empties the chain.
func (p *Pipeline) Teardown() {
	for _, st := range p.stages {
		if fin, ok := st.(Finalizer); ok {
			fin.Teardown()
		}
	}
	p.stages = p.stages[:0]
}
