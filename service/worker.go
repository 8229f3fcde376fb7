package service

import (
	"github.com/sirupsen/logrus"

	"github.com/ncldmg/zafxdp/packet"
	"github.com/ncldmg/zafxdp/pipeline"
	"github.com/ncldmg/zafxdp/xsk"
)

// worker owns one socket: it is the only user-side producer on the fill and
// TX rings and the only consumer on the RX and completion rings. All
// per-iteration buffers are allocated once.
type worker struct {
	svc *Service
	rec *socketRecord
	log *logrus.Entry

	descs    []xsk.Desc
	pkts     []*packet.Packet
	results  []pipeline.Result
	fillBuf  []uint64
	compBuf  []uint64
	txDescs  []xsk.Desc
	txFrames map[uint64]bool
}

func newWorker(s *Service, rec *socketRecord) *worker {
	batch := s.cfg.BatchSize
	return &worker{
		svc: s,
		rec: rec,
		log: s.log.WithFields(logrus.Fields{
			"interface": rec.ifname,
			"queue":     rec.queueID,
		}),
		descs:    make([]xsk.Desc, batch),
		pkts:     make([]*packet.Packet, batch),
		results:  make([]pipeline.Result, batch),
		fillBuf:  make([]uint64, 0, batch),
		compBuf:  make([]uint64, batch),
		txDescs:  make([]xsk.Desc, 0, batch),
		txFrames: make(map[uint64]bool, batch),
	}
}

// run is the poll/process/transmit/refill loop. A runtime error never ends
// the loop: the batch is dropped, the error counted, and the next iteration
// starts. Only the service's running flag stops it.
func (w *worker) run() {
	s, sock := w.svc, w.rec.sock
	for s.running.Load() {
		ready, err := sock.WaitRx(s.cfg.PollTimeoutMs)
		if err != nil {
			w.countError()
			continue
		}
		if !ready {
			continue
		}

		n := sock.Rx(w.descs)
		if n == 0 {
			continue
		}
		w.iterate(n)
	}
}

// iterate handles one drained batch end to end.
func (w *worker) iterate(n int) {
	s, sock := w.svc, w.rec.sock

	var rxBytes uint64
	umem := sock.UMEM()
	for i := 0; i < n; i++ {
		d := w.descs[i]
		w.pkts[i] = packet.New(umem.Frame(d.Addr, d.Len), d.Addr, w.rec.ifindex, w.rec.queueID)
		rxBytes += uint64(d.Len)
	}
	if s.cfg.CollectStats {
		s.collector.AddReceived(uint64(n), rxBytes)
	}

	survivors, err := s.pl.ProcessBatch(w.pkts[:n], w.results[:n])
	if err != nil {
		// Pipeline failure drops the whole batch back onto the fill ring.
		w.log.WithError(err).Debug("pipeline error, returning batch")
		w.countError()
		w.txDescs = w.txDescs[:0]
		clear(w.txFrames)
		w.refill(n)
		return
	}

	w.apply(n, survivors)

	if len(w.txDescs) > 0 {
		queued := sock.Tx(w.txDescs)
		// Frames the TX ring refused are not in flight: recycle them. Only
		// accepted descriptors count as transmitted.
		for _, d := range w.txDescs[queued:] {
			delete(w.txFrames, sock.FrameStart(d.Addr))
		}
		if s.cfg.CollectStats {
			var txBytes uint64
			for _, d := range w.txDescs[:queued] {
				txBytes += uint64(d.Len)
			}
			s.collector.AddTransmitted(uint64(queued), txBytes)
		}
		if err := sock.Kick(); err != nil {
			w.countError()
		}
	}

	w.refill(n)
	w.reclaim()
}

// apply routes each surviving result: drop and pass are counted, own-socket
// transmits are queued zero-copy (and counted once the TX ring accepts
// them, in iterate), cross-socket transmits are copied into the target
// socket.
func (w *worker) apply(drained, survivors int) {
	s, sock := w.svc, w.rec.sock
	w.txDescs = w.txDescs[:0]
	clear(w.txFrames)

	var dropped, passed, transmitted uint64
	var txBytes uint64
	dropped = uint64(drained - survivors)

	for i := 0; i < survivors; i++ {
		r := w.results[i]
		pkt := w.pkts[i]
		switch r.Action {
		case pipeline.ActionDrop:
			dropped++
		case pipeline.ActionTransmit:
			if r.TxIfindex == w.rec.ifindex && r.TxQueue == w.rec.queueID {
				d := xsk.Desc{Addr: pkt.FrameAddr(), Len: uint32(pkt.Len())}
				w.txDescs = append(w.txDescs, d)
				w.txFrames[sock.FrameStart(d.Addr)] = true
				continue
			}
			if rec, ok := s.byTarget[target{r.TxIfindex, r.TxQueue}]; ok {
				if n, err := rec.sock.SendPackets([][]byte{pkt.Raw()}); err != nil {
					w.countError()
				} else if n == 1 {
					transmitted++
					txBytes += uint64(pkt.Len())
				}
				continue
			}
			w.log.WithFields(logrus.Fields{
				"tx_ifindex": r.TxIfindex,
				"tx_queue":   r.TxQueue,
			}).Debug("transmit target not bound, dropping")
			w.countError()
		default:
			// Pass; recirculation was already resolved inside the pipeline.
			passed++
		}
	}

	if s.cfg.CollectStats {
		s.collector.AddDropped(dropped)
		s.collector.AddPassed(passed)
		s.collector.AddTransmitted(transmitted, txBytes)
	}
}

// refill returns every drained frame not in flight on TX to the fill ring.
func (w *worker) refill(drained int) {
	sock := w.rec.sock
	w.fillBuf = w.fillBuf[:0]
	for i := 0; i < drained; i++ {
		addr := sock.FrameStart(w.descs[i].Addr)
		if !w.txFrames[addr] {
			w.fillBuf = append(w.fillBuf, addr)
		}
	}
	accepted := sock.Fill(w.fillBuf)
	if accepted < len(w.fillBuf) {
		// Ring full: keep the rest on the free stack for FillAll later.
		sock.UMEM().FreeFrames(w.fillBuf[accepted:])
	}
}

// reclaim drains the completion ring and tops the fill ring back up with
// any frames now free.
func (w *worker) reclaim() {
	sock := w.rec.sock
	for {
		n := sock.Complete(w.compBuf)
		if n == 0 {
			break
		}
		sock.UMEM().FreeFrames(w.compBuf[:n])
	}
	sock.FillAll()
}

func (w *worker) countError() {
	if w.svc.cfg.CollectStats {
		w.svc.collector.AddErrors(1)
	}
}
