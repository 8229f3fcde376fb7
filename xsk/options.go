package xsk

// SocketOpts sizes the UMEM and the four rings of a socket. A zero ring
// count disables that ring; at least one of RX and TX must be enabled.
type SocketOpts struct {
	// NumFrames is the total UMEM frame count; NumFrames*FrameSize bytes are
	// mapped and registered.
	NumFrames uint32
	// FrameSize is the bytes per frame. Must be a power of two and large
	// enough for the biggest packet handled.
	FrameSize uint32
	// FillRingNumDescs is the fill ring entry count. Power of two.
	FillRingNumDescs uint32
	// CompletionRingNumDescs is the completion ring entry count. Power of two.
	CompletionRingNumDescs uint32
	// RxRingNumDescs is the RX ring entry count. Power of two; 0 disables RX.
	RxRingNumDescs uint32
	// TxRingNumDescs is the TX ring entry count. Power of two; 0 disables TX.
	TxRingNumDescs uint32
}

// DefaultSocketOpts returns the sizing used by the service unless overridden:
// 4096 frames of 2048 bytes with 2048-entry rings.
func DefaultSocketOpts() *SocketOpts {
	return &SocketOpts{
		NumFrames:              4096,
		FrameSize:              2048,
		FillRingNumDescs:       2048,
		CompletionRingNumDescs: 2048,
		RxRingNumDescs:         2048,
		TxRingNumDescs:         2048,
	}
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

func (o *SocketOpts) validate() error {
	if o.NumFrames == 0 || !isPowerOfTwo(o.FrameSize) {
		return ErrInvalidOptions
	}
	if !isPowerOfTwo(o.FillRingNumDescs) || !isPowerOfTwo(o.CompletionRingNumDescs) {
		return ErrInvalidOptions
	}
	if o.RxRingNumDescs == 0 && o.TxRingNumDescs == 0 {
		return ErrMissingRing
	}
	if o.RxRingNumDescs != 0 && !isPowerOfTwo(o.RxRingNumDescs) {
		return ErrInvalidOptions
	}
	if o.TxRingNumDescs != 0 && !isPowerOfTwo(o.TxRingNumDescs) {
		return ErrInvalidOptions
	}
	return nil
}
