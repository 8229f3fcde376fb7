// Package xsk implements the AF_XDP socket runtime: UMEM registration, the
// four kernel-shared SPSC rings, socket construction and bind, and the
// batch fill/rx/tx/completion operations the service workers drive.
package xsk

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Socket is an AF_XDP socket bound to one (interface, queue) pair. It owns
// the UMEM and the four rings for its lifetime. Ring sides are single
// producer / single consumer: one worker drives Rx/Complete and Fill/Tx;
// only SendPackets may be called from other goroutines (it serializes on an
// internal lock).
type Socket struct {
	fd      int
	ifindex int
	queueID uint32
	opts    SocketOpts

	umem *UMEM

	fill       *addrRing
	completion *addrRing
	rx         *descRing
	tx         *descRing

	// txMu serializes SendPackets callers against each other and against
	// the owning worker's Tx submissions and completion drains.
	txMu sync.Mutex

	log    *logrus.Entry
	closed bool
}

// NewSocket creates, configures and binds an AF_XDP socket on the interface
// index and queue. On any failure, resources acquired so far are released
// in reverse order.
func NewSocket(ifindex int, queueID uint32, opts *SocketOpts, log *logrus.Logger) (*Socket, error) {
	if opts == nil {
		opts = DefaultSocketOpts()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSocketCreation, err)
	}

	s := &Socket{
		fd:      fd,
		ifindex: ifindex,
		queueID: queueID,
		opts:    *opts,
		log: log.WithFields(logrus.Fields{
			"ifindex": ifindex,
			"queue":   queueID,
		}),
	}

	if s.umem, err = newUMEM(opts); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := s.registerUMEM(); err != nil {
		s.teardown()
		return nil, err
	}
	if err := s.configureRings(); err != nil {
		s.teardown()
		return nil, err
	}
	if err := s.mapRings(); err != nil {
		s.teardown()
		return nil, err
	}
	if err := s.bind(); err != nil {
		s.teardown()
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"frames":     opts.NumFrames,
		"frame_size": opts.FrameSize,
	}).Debug("AF_XDP socket bound")
	return s, nil
}

// registerUMEM registers the mapped region and sizes the two UMEM rings.
func (s *Socket) registerUMEM() error {
	reg := unix.XDPUmemReg{
		Addr:       uint64(uintptr(unsafe.Pointer(&s.umem.mem[0]))),
		Len:        uint64(len(s.umem.mem)),
		Size:       s.opts.FrameSize,
		Headroom:   0,
		Flags:      0,
	}
	if err := setsockopt(s.fd, unix.SOL_XDP, unix.XDP_UMEM_REG,
		unsafe.Pointer(&reg), unsafe.Sizeof(reg)); err != nil {
		return fmt.Errorf("%w: XDP_UMEM_REG: %v", ErrSyscall, err)
	}
	if err := unix.SetsockoptInt(s.fd, unix.SOL_XDP, unix.XDP_UMEM_FILL_RING,
		int(s.opts.FillRingNumDescs)); err != nil {
		return fmt.Errorf("%w: XDP_UMEM_FILL_RING: %v", ErrSyscall, err)
	}
	if err := unix.SetsockoptInt(s.fd, unix.SOL_XDP, unix.XDP_UMEM_COMPLETION_RING,
		int(s.opts.CompletionRingNumDescs)); err != nil {
		return fmt.Errorf("%w: XDP_UMEM_COMPLETION_RING: %v", ErrSyscall, err)
	}
	return nil
}

// configureRings sizes the RX and/or TX rings. Option validation has already
// guaranteed at least one is nonzero.
func (s *Socket) configureRings() error {
	if s.opts.RxRingNumDescs > 0 {
		if err := unix.SetsockoptInt(s.fd, unix.SOL_XDP, unix.XDP_RX_RING,
			int(s.opts.RxRingNumDescs)); err != nil {
			return fmt.Errorf("%w: XDP_RX_RING: %v", ErrSyscall, err)
		}
	}
	if s.opts.TxRingNumDescs > 0 {
		if err := unix.SetsockoptInt(s.fd, unix.SOL_XDP, unix.XDP_TX_RING,
			int(s.opts.TxRingNumDescs)); err != nil {
			return fmt.Errorf("%w: XDP_TX_RING: %v", ErrSyscall, err)
		}
	}
	return nil
}

// mapRings queries the kernel's mmap offsets and maps each configured ring.
func (s *Socket) mapRings() error {
	var off unix.XDPMmapOffsets
	if err := getsockopt(s.fd, unix.SOL_XDP, unix.XDP_MMAP_OFFSETS,
		unsafe.Pointer(&off), unsafe.Sizeof(off)); err != nil {
		return fmt.Errorf("%w: XDP_MMAP_OFFSETS: %v", ErrSyscall, err)
	}

	fillLen := int(off.Fr.Desc) + int(s.opts.FillRingNumDescs)*8
	mem, err := unix.Mmap(s.fd, unix.XDP_UMEM_PGOFF_FILL_RING, fillLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("%w: fill ring mmap: %v", ErrSyscall, err)
	}
	s.fill = mapAddrRing(mem, off.Fr, s.opts.FillRingNumDescs)

	compLen := int(off.Cr.Desc) + int(s.opts.CompletionRingNumDescs)*8
	mem, err = unix.Mmap(s.fd, unix.XDP_UMEM_PGOFF_COMPLETION_RING, compLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("%w: completion ring mmap: %v", ErrSyscall, err)
	}
	s.completion = mapAddrRing(mem, off.Cr, s.opts.CompletionRingNumDescs)

	if s.opts.RxRingNumDescs > 0 {
		rxLen := int(off.Rx.Desc) + int(s.opts.RxRingNumDescs)*descSize
		mem, err = unix.Mmap(s.fd, unix.XDP_PGOFF_RX_RING, rxLen,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			return fmt.Errorf("%w: rx ring mmap: %v", ErrSyscall, err)
		}
		s.rx = mapDescRing(mem, off.Rx, s.opts.RxRingNumDescs)
	}
	if s.opts.TxRingNumDescs > 0 {
		txLen := int(off.Tx.Desc) + int(s.opts.TxRingNumDescs)*descSize
		mem, err = unix.Mmap(s.fd, unix.XDP_PGOFF_TX_RING, txLen,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			return fmt.Errorf("%w: tx ring mmap: %v", ErrSyscall, err)
		}
		s.tx = mapDescRing(mem, off.Tx, s.opts.TxRingNumDescs)
	}
	return nil
}

// bind attaches the socket to its (interface, queue). The pair is owned
// exclusively for the socket's lifetime.
func (s *Socket) bind() error {
	sa := &unix.SockaddrXDP{
		Flags:   0,
		Ifindex: uint32(s.ifindex),
		QueueID: s.queueID,
	}
	if err := unix.Bind(s.fd, sa); err != nil {
		return fmt.Errorf("%w: bind: %v", ErrSyscall, err)
	}
	return nil
}

// Fill submits frame addresses to the fill ring. Returns the accepted count,
// bounded by ring free space.
func (s *Socket) Fill(addrs []uint64) int {
	return s.fill.Submit(addrs)
}

// FillAll donates as many user-owned free frames as the fill ring accepts
// and returns how many were donated.
func (s *Socket) FillAll() int {
	var batch [64]uint64
	total := 0
	for {
		n := s.umem.AllocFrames(batch[:], len(batch))
		if n == 0 {
			return total
		}
		accepted := s.fill.Submit(batch[:n])
		total += accepted
		if accepted < n {
			// Ring full: hand the rest back.
			s.umem.FreeFrames(batch[accepted:n])
			return total
		}
	}
}

// Complete drains transmitted frame addresses from the completion ring.
func (s *Socket) Complete(out []uint64) int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.completion.Drain(out)
}

// Rx drains received descriptors from the RX ring. Non-blocking; returns 0
// when the ring is empty.
func (s *Socket) Rx(out []Desc) int {
	if s.rx == nil {
		return 0
	}
	return s.rx.Drain(out)
}

// Tx submits descriptors to the TX ring. The caller must kick the socket
// afterwards so the kernel dequeues them. Serialized against SendPackets so
// the ring keeps a single user-side producer.
func (s *Socket) Tx(descs []Desc) int {
	if s.tx == nil {
		return 0
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.tx.Submit(descs)
}

// descScratch borrows an n-descriptor slice from the shared byte pool. The
// returned byte slice is the loan to hand back to mcache.Free.
func descScratch(n int) ([]Desc, []byte) {
	buf := mcache.Malloc(n * descSize)
	return unsafe.Slice((*Desc)(unsafe.Pointer(&buf[0])), n), buf
}

// SendPackets copies the packets into free UMEM frames, publishes them on
// the TX ring and wakes the kernel. Returns the number queued. Packets
// larger than a frame are skipped. Safe to call from any goroutine.
func (s *Socket) SendPackets(pkts [][]byte) (int, error) {
	if s.tx == nil || s.closed {
		return 0, ErrInvalidFileDescriptor
	}
	if len(pkts) == 0 {
		return 0, nil
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	// Reclaim finished TX frames first so a busy sender does not starve.
	s.reclaimCompleted()

	scratch, loan := descScratch(len(pkts))
	defer mcache.Free(loan)
	descs := scratch[:0]
	for _, pkt := range pkts {
		if uint32(len(pkt)) > s.opts.FrameSize {
			continue
		}
		addr, ok := s.umem.AllocFrame()
		if !ok {
			break
		}
		copy(s.umem.Frame(addr, s.opts.FrameSize), pkt)
		descs = append(descs, Desc{Addr: addr, Len: uint32(len(pkt))})
	}

	queued := s.tx.Submit(descs)
	// Frames the ring refused go straight back to the free stack.
	for _, d := range descs[queued:] {
		s.umem.FreeFrame(d.Addr)
	}
	if queued == 0 {
		return 0, nil
	}
	if err := s.Kick(); err != nil {
		return queued, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return queued, nil
}

// reclaimCompleted drains the completion ring back onto the free stack.
func (s *Socket) reclaimCompleted() int {
	var addrs [64]uint64
	total := 0
	for {
		n := s.completion.Drain(addrs[:])
		if n == 0 {
			return total
		}
		s.umem.FreeFrames(addrs[:n])
		total += n
	}
}

// ReceivePackets drains up to len(bufs) received frames, copies each into
// the caller's buffer and shrinks the buffer slice to the frame length. The
// consumed frames are returned to the fill ring. Fails with ErrBufferTooSmall
// if any caller buffer cannot hold its frame; frames drained before the
// failure are already copied out.
func (s *Socket) ReceivePackets(bufs [][]byte) (int, error) {
	if s.rx == nil || s.closed {
		return 0, ErrInvalidFileDescriptor
	}
	if len(bufs) == 0 {
		return 0, nil
	}
	descs, loan := descScratch(len(bufs))
	defer mcache.Free(loan)
	n := s.rx.Drain(descs)
	for i := 0; i < n; i++ {
		d := descs[i]
		if uint32(cap(bufs[i])) < d.Len {
			s.requeueRx(descs[:n])
			return i, ErrBufferTooSmall
		}
		bufs[i] = bufs[i][:d.Len]
		copy(bufs[i], s.umem.Frame(d.Addr, d.Len))
	}
	s.requeueRx(descs[:n])
	return n, nil
}

// requeueRx returns consumed RX frame addresses to the fill ring, spilling
// to the free stack when the ring is full.
func (s *Socket) requeueRx(descs []Desc) {
	for _, d := range descs {
		addr := s.FrameStart(d.Addr)
		if s.fill.Submit([]uint64{addr}) == 0 {
			s.umem.FreeFrame(addr)
		}
	}
}

// FrameStart masks a descriptor address down to the start of its frame. RX
// descriptors may point past the frame start when the kernel reserves
// headroom.
func (s *Socket) FrameStart(addr uint64) uint64 {
	return addr &^ uint64(s.opts.FrameSize-1)
}

// Kick nudges the kernel to dequeue TX and fill entries: a non-blocking
// sendto with an explicit empty payload and null destination. EAGAIN,
// EBUSY and ENOBUFS mean the kernel is already draining and are not errors.
func (s *Socket) Kick() error {
	if s.closed {
		return ErrInvalidFileDescriptor
	}
	_, _, errno := unix.Syscall6(unix.SYS_SENDTO,
		uintptr(s.fd), 0, 0, uintptr(unix.MSG_DONTWAIT), 0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EBUSY, unix.ENOBUFS:
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrKickFailed, errno)
	}
}

// WaitRx blocks until the socket is readable or timeoutMs elapses. Returns
// false on timeout.
func (s *Socket) WaitRx(timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		return false, fmt.Errorf("%w: poll: %v", ErrSyscall, err)
	}
	return n > 0, nil
}

// Stats reads the kernel's per-socket drop and ring counters.
func (s *Socket) Stats() (unix.XDPStatistics, error) {
	var st unix.XDPStatistics
	if err := getsockopt(s.fd, unix.SOL_XDP, unix.XDP_STATISTICS,
		unsafe.Pointer(&st), unsafe.Sizeof(st)); err != nil {
		return st, fmt.Errorf("%w: XDP_STATISTICS: %v", ErrSyscall, err)
	}
	return st, nil
}

// FD returns the socket file descriptor, e.g. for XSKMAP registration.
func (s *Socket) FD() int { return s.fd }

// Ifindex returns the bound interface index.
func (s *Socket) Ifindex() int { return s.ifindex }

// QueueID returns the bound queue id.
func (s *Socket) QueueID() uint32 { return s.queueID }

// UMEM exposes the socket's frame memory for zero-copy packet views.
func (s *Socket) UMEM() *UMEM { return s.umem }

// Opts returns the immutable option record the socket was built with.
func (s *Socket) Opts() SocketOpts { return s.opts }

// Close releases the rings, the UMEM and the file descriptor, in reverse
// order of acquisition.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.teardown()
}

func (s *Socket) teardown() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for _, r := range []*descRing{s.tx, s.rx} {
		if r != nil && r.mem != nil {
			keep(unix.Munmap(r.mem))
			r.mem = nil
		}
	}
	for _, r := range []*addrRing{s.completion, s.fill} {
		if r != nil && r.mem != nil {
			keep(unix.Munmap(r.mem))
			r.mem = nil
		}
	}
	if s.umem != nil {
		keep(s.umem.unmap())
	}
	if s.fd >= 0 {
		keep(unix.Close(s.fd))
		s.fd = -1
	}
	return first
}

func setsockopt(fd, level, name int, v unsafe.Pointer, l uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT,
		uintptr(fd), uintptr(level), uintptr(name), uintptr(v), l, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func getsockopt(fd, level, name int, v unsafe.Pointer, l uintptr) error {
	optlen := uint32(l)
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(fd), uintptr(level), uintptr(name), uintptr(v),
		uintptr(unsafe.Pointer(&optlen)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
