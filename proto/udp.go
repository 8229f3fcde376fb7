package proto

import "encoding/binary"

// UDPLen is the size of a UDP header.
const UDPLen = 8

// UDP is a UDP header per RFC 768.
type UDP struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16 // header plus payload
	Checksum uint16
}

// ParseUDP decodes a UDP header from the start of b.
func ParseUDP(b []byte) (UDP, error) {
	if len(b) < UDPLen {
		return UDP{}, ErrPacketTooShort
	}
	return UDP{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// Write encodes the header into the start of b.
func (h UDP) Write(b []byte) error {
	if len(b) < UDPLen {
		return ErrBufferTooSmall
	}
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint16(b[4:6], h.Length)
	binary.BigEndian.PutUint16(b[6:8], h.Checksum)
	return nil
}
