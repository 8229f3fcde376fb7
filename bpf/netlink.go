package bpf

import (
	"encoding/binary"
	"fmt"
	"syscall"

	"github.com/bytedance/gopkg/lang/mcache"
	"golang.org/x/sys/unix"
)

// netlink message layout constants; attribute payloads are 4-byte aligned.
const (
	nlmsgHdrLen    = unix.SizeofNlMsghdr  // 16
	ifInfomsgLen   = unix.SizeofIfInfomsg // 16
	rtAttrLen      = unix.SizeofRtAttr    // 4
	nlaNested      = 1 << 15
	setlinkMsgSize = nlmsgHdrLen + ifInfomsgLen + rtAttrLen + 2*(rtAttrLen+4)
)

// netlink headers are native-endian; this library targets little-endian
// linux hosts, like the AF_XDP descriptor layouts elsewhere.
var nle = binary.LittleEndian

// encodeSetXDPMsg fills msg with an RTM_SETLINK request carrying a nested
// IFLA_XDP attribute holding the program file descriptor and flag word.
// msg must be setlinkMsgSize bytes.
func encodeSetXDPMsg(msg []byte, ifindex, fd int, flags uint32, seq uint32) {
	for i := range msg {
		msg[i] = 0
	}

	// struct nlmsghdr
	nle.PutUint32(msg[0:4], uint32(setlinkMsgSize))
	nle.PutUint16(msg[4:6], unix.RTM_SETLINK)
	nle.PutUint16(msg[6:8], unix.NLM_F_REQUEST|unix.NLM_F_ACK)
	nle.PutUint32(msg[8:12], seq)
	// pid left 0: the kernel routes on the socket's address

	// struct ifinfomsg
	msg[nlmsgHdrLen] = unix.AF_UNSPEC
	nle.PutUint32(msg[nlmsgHdrLen+4:nlmsgHdrLen+8], uint32(ifindex))

	// nested IFLA_XDP { IFLA_XDP_FD, IFLA_XDP_FLAGS }
	xdpOff := nlmsgHdrLen + ifInfomsgLen
	nle.PutUint16(msg[xdpOff:xdpOff+2], rtAttrLen+2*(rtAttrLen+4))
	nle.PutUint16(msg[xdpOff+2:xdpOff+4], unix.IFLA_XDP|nlaNested)

	fdOff := xdpOff + rtAttrLen
	nle.PutUint16(msg[fdOff:fdOff+2], rtAttrLen+4)
	nle.PutUint16(msg[fdOff+2:fdOff+4], unix.IFLA_XDP_FD)
	nle.PutUint32(msg[fdOff+4:fdOff+8], uint32(int32(fd)))

	flagsOff := fdOff + rtAttrLen + 4
	nle.PutUint16(msg[flagsOff:flagsOff+2], rtAttrLen+4)
	nle.PutUint16(msg[flagsOff+2:flagsOff+4], unix.IFLA_XDP_FLAGS)
	nle.PutUint32(msg[flagsOff+4:flagsOff+8], flags)
}

// netlinkSetXDP installs (fd >= 0) or removes (fd == -1) the XDP program on
// an interface via an acknowledged RTM_SETLINK request. A nonzero errno in
// the acknowledgement is returned to the caller.
func netlinkSetXDP(ifindex, fd int, flags uint32) error {
	sock, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("%w: socket: %v", ErrNetlink, err)
	}
	defer unix.Close(sock)

	if err := unix.Bind(sock, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return fmt.Errorf("%w: bind: %v", ErrNetlink, err)
	}

	msg := mcache.Malloc(setlinkMsgSize)
	defer mcache.Free(msg)
	msg = msg[:setlinkMsgSize]
	encodeSetXDPMsg(msg, ifindex, fd, flags, 1)

	dst := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(sock, msg, 0, dst); err != nil {
		return fmt.Errorf("%w: send: %v", ErrNetlink, err)
	}

	return awaitAck(sock)
}

// awaitAck reads the kernel's acknowledgement and extracts the errno from
// the NLMSG_ERROR payload. errno 0 is success.
func awaitAck(sock int) error {
	buf := mcache.Malloc(4096)
	defer mcache.Free(buf)
	buf = buf[:4096]

	n, _, err := unix.Recvfrom(sock, buf, 0)
	if err != nil {
		return fmt.Errorf("%w: recv: %v", ErrNetlink, err)
	}

	msgs, err := syscall.ParseNetlinkMessage(buf[:n])
	if err != nil {
		return fmt.Errorf("%w: parse: %v", ErrNetlink, err)
	}
	return ackError(msgs)
}

// ackError scans parsed netlink messages for the NLMSG_ERROR acknowledgement.
func ackError(msgs []syscall.NetlinkMessage) error {
	for _, m := range msgs {
		if m.Header.Type != unix.NLMSG_ERROR {
			continue
		}
		if len(m.Data) < 4 {
			return fmt.Errorf("%w: truncated NLMSG_ERROR", ErrNetlink)
		}
		if code := int32(nle.Uint32(m.Data[:4])); code != 0 {
			return unix.Errno(-code)
		}
		return nil
	}
	return fmt.Errorf("%w: no acknowledgement in response", ErrNetlink)
}
