package proto

import "encoding/binary"

// ICMPLen is the size of the fixed ICMP header.
const ICMPLen = 8

// ICMP message types this package names; others pass through untyped.
const (
	ICMPTypeEchoReply   uint8 = 0
	ICMPTypeDestUnreach uint8 = 3
	ICMPTypeEcho        uint8 = 8
	ICMPTypeTimeExceed  uint8 = 11
)

// ICMP is an ICMP header per RFC 792. The meaning of Rest depends on Type;
// for echo messages it carries identifier and sequence.
type ICMP struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Rest     [4]byte
}

// ParseICMP decodes an ICMP header from the start of b.
func ParseICMP(b []byte) (ICMP, error) {
	if len(b) < ICMPLen {
		return ICMP{}, ErrPacketTooShort
	}
	var h ICMP
	h.Type = b[0]
	h.Code = b[1]
	h.Checksum = binary.BigEndian.Uint16(b[2:4])
	copy(h.Rest[:], b[4:8])
	return h, nil
}

// Write encodes the header into the start of b.
func (h ICMP) Write(b []byte) error {
	if len(b) < ICMPLen {
		return ErrBufferTooSmall
	}
	b[0] = h.Type
	b[1] = h.Code
	binary.BigEndian.PutUint16(b[2:4], h.Checksum)
	copy(b[4:8], h.Rest[:])
	return nil
}
