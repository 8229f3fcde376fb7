// Package service binds AF_XDP sockets to interface queues under a shared
// redirect program and drives a packet-processing pipeline with one worker
// per socket.
package service

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ncldmg/zafxdp/bpf"
	"github.com/ncldmg/zafxdp/netdev"
	"github.com/ncldmg/zafxdp/pipeline"
	"github.com/ncldmg/zafxdp/stats"
	"github.com/ncldmg/zafxdp/xsk"
)

// target identifies a transmit destination inside the service.
type target struct {
	ifindex int
	queueID uint32
}

// socketRecord is one bound (socket, interface, queue) triple.
type socketRecord struct {
	sock    *xsk.Socket
	ifname  string
	ifindex int
	queueID uint32
}

// Service owns one redirect program, one socket per configured (interface,
// queue) pair, a pipeline reference and the stats collector. Workers are
// spawned by Start and joined by Stop.
type Service struct {
	cfg   Config
	prog  *bpf.Program
	socks []*socketRecord
	// byTarget routes cross-socket transmit actions.
	byTarget map[target]*socketRecord

	pl        *pipeline.Pipeline
	collector *stats.Collector

	running atomic.Bool
	wg      sync.WaitGroup

	log *logrus.Entry
}

// New builds the service: program sized to the configured queues, one bound
// and registered socket per (interface, queue) pair with its fill ring
// pre-populated, and the program attached once per distinct interface. On
// any failure everything built so far is released in reverse order.
func New(cfg Config, pl *pipeline.Pipeline) (*Service, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if pl == nil {
		pl = pipeline.New(pipeline.DefaultConfig())
	}

	maxQueue := uint32(0)
	for _, ic := range cfg.Interfaces {
		for _, q := range ic.Queues {
			if q >= maxQueue {
				maxQueue = q + 1
			}
		}
	}

	log := cfg.Logger.WithField("component", "service")
	prog, err := bpf.NewProgram(maxQueue, cfg.Logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		prog:      prog,
		byTarget:  make(map[target]*socketRecord),
		pl:        pl,
		collector: stats.NewCollector(),
		log:       log,
	}

	if err := s.buildSockets(); err != nil {
		s.release()
		return nil, err
	}
	if err := s.attachAll(); err != nil {
		s.release()
		return nil, err
	}

	log.WithField("sockets", len(s.socks)).Info("service constructed")
	return s, nil
}

func (s *Service) buildSockets() error {
	for _, ic := range s.cfg.Interfaces {
		ifindex, err := netdev.LookupIndex(ic.Name)
		if err != nil {
			return err
		}
		for _, q := range ic.Queues {
			sock, err := xsk.NewSocket(ifindex, q, s.cfg.SocketOpts, s.cfg.Logger)
			if err != nil {
				return fmt.Errorf("socket %s queue %d: %w", ic.Name, q, err)
			}
			if err := s.prog.Register(q, sock.FD()); err != nil {
				sock.Close()
				return err
			}
			prefilled := sock.FillAll()
			rec := &socketRecord{sock: sock, ifname: ic.Name, ifindex: ifindex, queueID: q}
			s.socks = append(s.socks, rec)
			s.byTarget[target{ifindex, q}] = rec
			s.log.WithFields(logrus.Fields{
				"interface": ic.Name,
				"queue":     q,
				"prefilled": prefilled,
			}).Debug("socket bound and registered")
		}
	}
	return nil
}

func (s *Service) attachAll() error {
	for _, ifindex := range s.distinctIfindexes() {
		if err := s.prog.Attach(ifindex, s.cfg.XDPFlags); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) distinctIfindexes() []int {
	seen := map[int]bool{}
	var out []int
	for _, rec := range s.socks {
		if !seen[rec.ifindex] {
			seen[rec.ifindex] = true
			out = append(out, rec.ifindex)
		}
	}
	return out
}

// Start spawns one worker per socket.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	for _, rec := range s.socks {
		w := newWorker(s, rec)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.run()
		}()
	}
	s.log.WithField("workers", len(s.socks)).Info("service started")
	return nil
}

// Stop flips the running flag and joins every worker. Workers observe the
// flag within one poll timeout. Idempotent; packets already inside the
// pipeline complete normally.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.wg.Wait()
	s.log.Info("service stopped")
}

// Close stops the workers, detaches the program once per distinct interface
// (best effort), unregisters every queue and releases sockets and program.
func (s *Service) Close() error {
	s.Stop()
	s.release()
	return nil
}

func (s *Service) release() {
	for _, ifindex := range s.distinctIfindexes() {
		if err := s.prog.Detach(ifindex); err != nil {
			// Deliberate policy: teardown keeps going, the failure is only
			// surfaced through the log.
			s.log.WithError(err).WithField("ifindex", ifindex).Warn("detach failed")
		}
	}
	for _, rec := range s.socks {
		if err := s.prog.Unregister(rec.queueID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"interface": rec.ifname,
				"queue":     rec.queueID,
			}).Warn("unregister failed")
		}
		if err := rec.sock.Close(); err != nil {
			s.log.WithError(err).WithField("interface", rec.ifname).Warn("socket close failed")
		}
	}
	s.socks = nil
	if s.prog != nil {
		if err := s.prog.Close(); err != nil {
			s.log.WithError(err).Warn("program close failed")
		}
		s.prog = nil
	}
}

// Running reports whether workers are live.
func (s *Service) Running() bool { return s.running.Load() }

// Stats returns the shared collector.
func (s *Service) Stats() *stats.Collector { return s.collector }

// Pipeline returns the pipeline the workers dispatch into.
func (s *Service) Pipeline() *pipeline.Pipeline { return s.pl }
