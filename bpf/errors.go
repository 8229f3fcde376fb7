package bpf

import "errors"

var (
	// ErrMapCreate is returned when one of the two program maps cannot be created.
	ErrMapCreate = errors.New("map create failed")
	// ErrMapUpdate is returned when a queue registration write or delete fails.
	ErrMapUpdate = errors.New("map update failed")
	// ErrLoad is returned when the kernel rejects the redirect program.
	ErrLoad = errors.New("bpf load failed")
	// ErrAttach is returned when the program cannot be installed on an interface.
	ErrAttach = errors.New("attach failed")
	// ErrDetach is returned when the program cannot be removed from an interface.
	ErrDetach = errors.New("detach failed")
	// ErrNetlink wraps failures of the netlink conversation itself.
	ErrNetlink = errors.New("netlink error")
)
