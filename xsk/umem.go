package xsk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// UMEM is the user memory region registered with the kernel: NumFrames
// equal-sized, aligned frames addressed by byte offset. It also tracks which
// frames are currently owned by the user and free for TX staging or fill
// donation.
type UMEM struct {
	mem       []byte
	frameSize uint32
	numFrames uint32

	mu   sync.Mutex
	free []uint64
}

// newUMEM maps an anonymous, pre-populated region of NumFrames*FrameSize
// bytes. Every frame starts on the free stack.
func newUMEM(opts *SocketOpts) (*UMEM, error) {
	size := int(opts.NumFrames) * int(opts.FrameSize)
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("%w: umem mmap: %v", ErrSyscall, err)
	}

	u := &UMEM{
		mem:       mem,
		frameSize: opts.FrameSize,
		numFrames: opts.NumFrames,
		free:      make([]uint64, 0, opts.NumFrames),
	}
	// Stack ordered so the first Alloc hands out frame 0.
	for i := int(opts.NumFrames) - 1; i >= 0; i-- {
		u.free = append(u.free, uint64(i)*uint64(opts.FrameSize))
	}
	return u, nil
}

// Frame returns the frame bytes named by a descriptor.
func (u *UMEM) Frame(addr uint64, length uint32) []byte {
	return u.mem[addr : addr+uint64(length)]
}

// AllocFrame pops a free frame address. ok is false when none are left.
func (u *UMEM) AllocFrame() (addr uint64, ok bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.free) == 0 {
		return 0, false
	}
	addr = u.free[len(u.free)-1]
	u.free = u.free[:len(u.free)-1]
	return addr, true
}

// AllocFrames pops up to n free frame addresses into out.
func (u *UMEM) AllocFrames(out []uint64, n int) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if n > len(u.free) {
		n = len(u.free)
	}
	for i := 0; i < n; i++ {
		out[i] = u.free[len(u.free)-1-i]
	}
	u.free = u.free[:len(u.free)-n]
	return n
}

// FreeFrame pushes a frame address back on the free stack.
func (u *UMEM) FreeFrame(addr uint64) {
	u.mu.Lock()
	u.free = append(u.free, addr)
	u.mu.Unlock()
}

// FreeFrames pushes every address back on the free stack.
func (u *UMEM) FreeFrames(addrs []uint64) {
	u.mu.Lock()
	u.free = append(u.free, addrs...)
	u.mu.Unlock()
}

// FreeCount returns the number of user-owned free frames.
func (u *UMEM) FreeCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.free)
}

// Len returns the mapped region size in bytes.
func (u *UMEM) Len() int { return len(u.mem) }

// FrameSize returns the bytes per frame.
func (u *UMEM) FrameSize() uint32 { return u.frameSize }

// NumFrames returns the total frame count.
func (u *UMEM) NumFrames() uint32 { return u.numFrames }

func (u *UMEM) unmap() error {
	if u.mem == nil {
		return nil
	}
	err := unix.Munmap(u.mem)
	u.mem = nil
	return err
}
