package proto

import "encoding/binary"

// IPv4MinLen is the size of an IPv4 header with no options.
const IPv4MinLen = 20

// IPv4 is an IPv4 header per RFC 791. Options past the fixed 20 bytes are
// not decoded; HeaderLen accounts for them via IHL.
type IPv4 struct {
	Version    uint8
	IHL        uint8 // header length in 32-bit words
	DSCP       uint8
	ECN        uint8
	TotalLen   uint16
	ID         uint16
	Flags      uint8 // 3 bits: reserved, DF, MF
	FragOffset uint16
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	Src        [4]byte
	Dst        [4]byte
}

// ParseIPv4 decodes an IPv4 header from the start of b.
func ParseIPv4(b []byte) (IPv4, error) {
	if len(b) < IPv4MinLen {
		return IPv4{}, ErrPacketTooShort
	}
	var h IPv4
	h.Version = b[0] >> 4
	h.IHL = b[0] & 0x0F
	h.DSCP = b[1] >> 2
	h.ECN = b[1] & 0x03
	h.TotalLen = binary.BigEndian.Uint16(b[2:4])
	h.ID = binary.BigEndian.Uint16(b[4:6])
	flagsFrag := binary.BigEndian.Uint16(b[6:8])
	h.Flags = uint8(flagsFrag >> 13)
	h.FragOffset = flagsFrag & 0x1FFF
	h.TTL = b[8]
	h.Protocol = b[9]
	h.Checksum = binary.BigEndian.Uint16(b[10:12])
	copy(h.Src[:], b[12:16])
	copy(h.Dst[:], b[16:20])
	if h.IHL < 5 || int(h.IHL)*4 > len(b) {
		return IPv4{}, ErrPacketTooShort
	}
	return h, nil
}

// Write encodes the header into the start of b. The stored Checksum field is
// written as-is; use ComputeChecksum to refresh it first.
func (h IPv4) Write(b []byte) error {
	if len(b) < IPv4MinLen {
		return ErrBufferTooSmall
	}
	b[0] = h.Version<<4 | h.IHL&0x0F
	b[1] = h.DSCP<<2 | h.ECN&0x03
	binary.BigEndian.PutUint16(b[2:4], h.TotalLen)
	binary.BigEndian.PutUint16(b[4:6], h.ID)
	binary.BigEndian.PutUint16(b[6:8], uint16(h.Flags&0x07)<<13|h.FragOffset&0x1FFF)
	b[8] = h.TTL
	b[9] = h.Protocol
	binary.BigEndian.PutUint16(b[10:12], h.Checksum)
	copy(b[12:16], h.Src[:])
	copy(b[16:20], h.Dst[:])
	return nil
}

// HeaderLen returns the header length in bytes as declared by IHL.
func (h IPv4) HeaderLen() int {
	return int(h.IHL) * 4
}

// ComputeChecksum returns the header checksum over the encoded fixed header
// with the checksum field treated as zero. For headers carrying options use
// ChecksumIPv4 on the raw bytes instead.
func (h IPv4) ComputeChecksum() uint16 {
	var buf [IPv4MinLen]byte
	zeroed := h
	zeroed.Checksum = 0
	_ = zeroed.Write(buf[:])
	return Checksum(buf[:])
}
