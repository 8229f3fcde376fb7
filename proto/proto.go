// Package proto implements wire codecs for the protocol headers handled by
// the packet path: Ethernet, IPv4, TCP, UDP, ICMP and ARP.
//
// All codecs are pure byte-slice transforms. Parse never retains the input
// slice and Write never allocates. Multi-byte integer fields are big-endian
// on the wire.
package proto

import "errors"

var (
	// ErrPacketTooShort is returned when a slice cannot hold the requested header.
	ErrPacketTooShort = errors.New("packet too short")
	// ErrBufferTooSmall is returned when a write target cannot hold the header.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// EtherType values the packet layer dispatches on.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
	EtherTypeVLAN uint16 = 0x8100
	EtherTypeIPv6 uint16 = 0x86DD
)

// IPv4 protocol numbers.
const (
	IPProtoICMP uint8 = 1
	IPProtoTCP  uint8 = 6
	IPProtoUDP  uint8 = 17
)
