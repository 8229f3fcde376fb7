package xsk

import "errors"

var (
	// ErrSocketCreation is returned when the AF_XDP socket cannot be opened.
	ErrSocketCreation = errors.New("failed to create AF_XDP socket")
	// ErrSyscall wraps a failed register/getsockopt/bind syscall with its errno.
	ErrSyscall = errors.New("syscall failed")
	// ErrMissingRing is returned when neither an RX nor a TX ring is configured.
	ErrMissingRing = errors.New("socket needs at least one of RX and TX rings")
	// ErrInvalidFileDescriptor is returned for operations on a closed socket.
	ErrInvalidFileDescriptor = errors.New("invalid file descriptor")
	// ErrSendFailed is returned when the TX wake-up fails for a reason other
	// than the kernel being momentarily busy.
	ErrSendFailed = errors.New("send failed")
	// ErrKickFailed is returned when the wake-up syscall itself fails.
	ErrKickFailed = errors.New("kick failed")
	// ErrBufferTooSmall is returned when a caller buffer cannot hold a frame.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrInvalidOptions is returned for option records that violate the
	// power-of-two and sizing rules.
	ErrInvalidOptions = errors.New("invalid socket options")
)
