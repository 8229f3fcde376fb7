// Package bpf builds, loads and manages the in-kernel XDP redirect program
// and its two maps. The program's observable behavior: for a packet arriving
// on RX queue q, a missing queue_enable[q] entry aborts, a zero entry passes
// the packet to the host stack, and a nonzero entry redirects the frame to
// the AF_XDP socket registered in queue_to_socket[q].
package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// XDP attach flags, as understood by the kernel's netlink XDP attribute.
const (
	// FlagUpdateIfNoExist fails the attach rather than replacing an
	// existing program.
	FlagUpdateIfNoExist = unix.XDP_FLAGS_UPDATE_IF_NOEXIST
	// FlagSKBMode requests generic XDP: always available, highest overhead.
	FlagSKBMode = unix.XDP_FLAGS_SKB_MODE
	// FlagDRVMode requests native XDP in the driver.
	FlagDRVMode = unix.XDP_FLAGS_DRV_MODE
	// FlagHWMode offloads the program to the NIC.
	FlagHWMode = unix.XDP_FLAGS_HW_MODE
	// FlagReplace permits replacing an existing program.
	FlagReplace = unix.XDP_FLAGS_REPLACE
)

// DefaultFlags is the attachment policy used when the caller passes 0.
const DefaultFlags = FlagDRVMode | FlagUpdateIfNoExist

// Program owns a loaded redirect program and its queue_enable and
// queue_to_socket maps. Attachment state is tracked per interface so Attach
// is idempotent and teardown detaches each interface once.
type Program struct {
	prog          *ebpf.Program
	queueEnable   *ebpf.Map
	queueToSocket *ebpf.Map

	attached map[int]bool
	log      *logrus.Entry
}

// NewProgram creates the two maps sized to maxQueues, synthesizes the
// redirect bytecode and loads it. On load failure the maps are released.
func NewProgram(maxQueues uint32, log *logrus.Logger) (*Program, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxQueues == 0 {
		maxQueues = 1
	}

	queueEnable, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "queue_enable",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: maxQueues,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: queue_enable: %v", ErrMapCreate, err)
	}

	queueToSocket, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "queue_to_socket",
		Type:       ebpf.XSKMap,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: maxQueues,
	})
	if err != nil {
		queueEnable.Close()
		return nil, fmt.Errorf("%w: queue_to_socket: %v", ErrMapCreate, err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "xsk_redirect",
		Type:         ebpf.XDP,
		Instructions: redirectInstructions(queueEnable.FD(), queueToSocket.FD()),
		License:      "LGPL-2.1 or BSD-2-Clause",
	})
	if err != nil {
		queueToSocket.Close()
		queueEnable.Close()
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return &Program{
		prog:          prog,
		queueEnable:   queueEnable,
		queueToSocket: queueToSocket,
		attached:      make(map[int]bool),
		log:           log.WithField("prog", "xsk_redirect"),
	}, nil
}

// Attach installs the program on the interface's XDP hook. flags 0 selects
// DefaultFlags. Attaching an interface this program already holds is a no-op.
func (p *Program) Attach(ifindex int, flags uint32) error {
	if flags == 0 {
		flags = DefaultFlags
	}
	if p.attached[ifindex] {
		return nil
	}
	if err := netlinkSetXDP(ifindex, p.prog.FD(), flags); err != nil {
		return fmt.Errorf("%w: ifindex %d: %v", ErrAttach, ifindex, err)
	}
	p.attached[ifindex] = true
	p.log.WithFields(logrus.Fields{"ifindex": ifindex, "flags": flags}).Debug("XDP program attached")
	return nil
}

// AttachWithFallback tries a native driver-mode attach first and falls back
// to generic mode when the driver refuses.
func (p *Program) AttachWithFallback(ifindex int) error {
	if err := p.Attach(ifindex, FlagDRVMode|FlagUpdateIfNoExist); err == nil {
		return nil
	}
	return p.Attach(ifindex, FlagSKBMode|FlagUpdateIfNoExist)
}

// Detach removes the program from the interface by setting the XDP file
// descriptor to -1. Detaching an interface that is not attached is a no-op.
func (p *Program) Detach(ifindex int) error {
	if !p.attached[ifindex] {
		return nil
	}
	if err := netlinkSetXDP(ifindex, -1, 0); err != nil {
		return fmt.Errorf("%w: ifindex %d: %v", ErrDetach, ifindex, err)
	}
	delete(p.attached, ifindex)
	return nil
}

// Register binds queue to the socket file descriptor and enables the queue.
// Both map entries are present afterwards, or neither: if enabling fails the
// socket entry is rolled back. Re-registering a queue is permitted.
func (p *Program) Register(queueID uint32, socketFD int) error {
	if err := p.queueToSocket.Put(queueID, uint32(socketFD)); err != nil {
		return fmt.Errorf("%w: queue_to_socket[%d]: %v", ErrMapUpdate, queueID, err)
	}
	if err := p.queueEnable.Put(queueID, uint32(1)); err != nil {
		if derr := p.queueToSocket.Delete(queueID); derr != nil {
			p.log.WithError(derr).WithField("queue", queueID).Warn("rollback of queue_to_socket failed")
		}
		return fmt.Errorf("%w: queue_enable[%d]: %v", ErrMapUpdate, queueID, err)
	}
	return nil
}

// Unregister disables the queue and deletes its socket entry. Unregistering
// a queue that is not currently enabled is an error.
func (p *Program) Unregister(queueID uint32) error {
	// An XSKMAP delete of an empty slot succeeds, so registration is judged
	// by the queue_enable entry.
	var enabled uint32
	if err := p.queueEnable.Lookup(queueID, &enabled); err != nil {
		return fmt.Errorf("%w: queue_enable[%d]: %v", ErrMapUpdate, queueID, err)
	}
	if enabled == 0 {
		return fmt.Errorf("%w: queue %d was not registered", ErrMapUpdate, queueID)
	}
	// The array map cannot delete entries; disabling the queue is the
	// equivalent of removing it.
	if err := p.queueEnable.Put(queueID, uint32(0)); err != nil {
		return fmt.Errorf("%w: queue_enable[%d]: %v", ErrMapUpdate, queueID, err)
	}
	if err := p.queueToSocket.Delete(queueID); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return fmt.Errorf("%w: queue %d was not registered", ErrMapUpdate, queueID)
		}
		return fmt.Errorf("%w: queue_to_socket[%d]: %v", ErrMapUpdate, queueID, err)
	}
	return nil
}

// Close detaches every interface still attached and releases the program
// and maps. Detach failures are logged and do not stop the teardown.
func (p *Program) Close() error {
	for ifindex := range p.attached {
		if err := netlinkSetXDP(ifindex, -1, 0); err != nil {
			p.log.WithError(err).WithField("ifindex", ifindex).Warn("detach during close failed")
		}
	}
	p.attached = map[int]bool{}

	var first error
	for _, c := range []interface{ Close() error }{p.prog, p.queueToSocket, p.queueEnable} {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
