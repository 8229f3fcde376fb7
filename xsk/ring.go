package xsk

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Desc is the 16-byte descriptor exchanged on the RX and TX rings. It has
// the exact layout of struct xdp_desc.
type Desc struct {
	Addr    uint64
	Len     uint32
	Options uint32
}

const descSize = 16

// ringHeader holds the two shared 32-bit indices of a kernel ring. Exactly
// one side owns each index: the producer publishes entries by storing its
// index last (release), the consumer snapshots the peer index before reading
// entries (acquire). Go's atomic package gives sequentially consistent
// Load/Store, which subsumes the required acquire/release pairing.
type ringHeader struct {
	producer *atomic.Uint32
	consumer *atomic.Uint32
	size     uint32
	mask     uint32
	mem      []byte // backing mmap; nil for rings built over plain memory
}

// free returns the producer-side free slot count.
func (h *ringHeader) free() uint32 {
	return h.size - (h.producer.Load() - h.consumer.Load())
}

// readable returns the consumer-side pending entry count.
func (h *ringHeader) readable() uint32 {
	return h.producer.Load() - h.consumer.Load()
}

// addrRing is a fill or completion ring: entries are UMEM frame addresses.
type addrRing struct {
	ringHeader
	entries []uint64
}

// descRing is an RX or TX ring: entries are frame descriptors.
type descRing struct {
	ringHeader
	entries []Desc
}

// mapAddrRing interprets a ring mmap through the kernel-provided offsets.
func mapAddrRing(mem []byte, off unix.XDPRingOffset, size uint32) *addrRing {
	return &addrRing{
		ringHeader: ringHeader{
			producer: (*atomic.Uint32)(unsafe.Pointer(&mem[off.Producer])),
			consumer: (*atomic.Uint32)(unsafe.Pointer(&mem[off.Consumer])),
			size:     size,
			mask:     size - 1,
			mem:      mem,
		},
		entries: unsafe.Slice((*uint64)(unsafe.Pointer(&mem[off.Desc])), size),
	}
}

// mapDescRing interprets a ring mmap through the kernel-provided offsets.
func mapDescRing(mem []byte, off unix.XDPRingOffset, size uint32) *descRing {
	return &descRing{
		ringHeader: ringHeader{
			producer: (*atomic.Uint32)(unsafe.Pointer(&mem[off.Producer])),
			consumer: (*atomic.Uint32)(unsafe.Pointer(&mem[off.Consumer])),
			size:     size,
			mask:     size - 1,
			mem:      mem,
		},
		entries: unsafe.Slice((*Desc)(unsafe.Pointer(&mem[off.Desc])), size),
	}
}

// Submit writes up to free-space addresses and publishes them. Returns the
// accepted count. Producer side only.
func (r *addrRing) Submit(addrs []uint64) int {
	prod := r.producer.Load()
	n := min(uint32(len(addrs)), r.size-(prod-r.consumer.Load()))
	for i := uint32(0); i < n; i++ {
		r.entries[(prod+i)&r.mask] = addrs[i]
	}
	if n > 0 {
		r.producer.Store(prod + n)
	}
	return int(n)
}

// Drain copies out up to len(out) pending addresses and releases them.
// Returns the drained count. Consumer side only.
func (r *addrRing) Drain(out []uint64) int {
	cons := r.consumer.Load()
	n := min(uint32(len(out)), r.producer.Load()-cons)
	for i := uint32(0); i < n; i++ {
		out[i] = r.entries[(cons+i)&r.mask]
	}
	if n > 0 {
		r.consumer.Store(cons + n)
	}
	return int(n)
}

// Submit writes up to free-space descriptors and publishes them. Returns the
// accepted count. Producer side only.
func (r *descRing) Submit(descs []Desc) int {
	prod := r.producer.Load()
	n := min(uint32(len(descs)), r.size-(prod-r.consumer.Load()))
	for i := uint32(0); i < n; i++ {
		r.entries[(prod+i)&r.mask] = descs[i]
	}
	if n > 0 {
		r.producer.Store(prod + n)
	}
	return int(n)
}

// Drain copies out up to len(out) pending descriptors and releases them.
// Returns the drained count. Consumer side only.
func (r *descRing) Drain(out []Desc) int {
	cons := r.consumer.Load()
	n := min(uint32(len(out)), r.producer.Load()-cons)
	for i := uint32(0); i < n; i++ {
		out[i] = r.entries[(cons+i)&r.mask]
	}
	if n > 0 {
		r.consumer.Store(cons + n)
	}
	return int(n)
}
