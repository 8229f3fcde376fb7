package proto

import "encoding/binary"

// EthernetLen is the size of an Ethernet II header without 802.1Q tags.
const EthernetLen = 14

// Ethernet is an Ethernet II header.
type Ethernet struct {
	Dst       [6]byte
	Src       [6]byte
	EtherType uint16
}

// ParseEthernet decodes an Ethernet header from the start of b.
func ParseEthernet(b []byte) (Ethernet, error) {
	if len(b) < EthernetLen {
		return Ethernet{}, ErrPacketTooShort
	}
	var h Ethernet
	copy(h.Dst[:], b[0:6])
	copy(h.Src[:], b[6:12])
	h.EtherType = binary.BigEndian.Uint16(b[12:14])
	return h, nil
}

// Write encodes the header into the start of b.
func (h Ethernet) Write(b []byte) error {
	if len(b) < EthernetLen {
		return ErrBufferTooSmall
	}
	copy(b[0:6], h.Dst[:])
	copy(b[6:12], h.Src[:])
	binary.BigEndian.PutUint16(b[12:14], h.EtherType)
	return nil
}
