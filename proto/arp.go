package proto

import "encoding/binary"

// ARPLen is the size of an ARP message for IPv4 over Ethernet.
const ARPLen = 28

// ARP operations.
const (
	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

// ARP is an ARP message per RFC 826, fixed to the Ethernet/IPv4 layout
// (HLen=6, PLen=4).
type ARP struct {
	HType uint16
	PType uint16
	HLen  uint8
	PLen  uint8
	Oper  uint16
	SHA   [6]byte // sender hardware address
	SPA   [4]byte // sender protocol address
	THA   [6]byte // target hardware address
	TPA   [4]byte // target protocol address
}

// ParseARP decodes an ARP message from the start of b.
func ParseARP(b []byte) (ARP, error) {
	if len(b) < ARPLen {
		return ARP{}, ErrPacketTooShort
	}
	var h ARP
	h.HType = binary.BigEndian.Uint16(b[0:2])
	h.PType = binary.BigEndian.Uint16(b[2:4])
	h.HLen = b[4]
	h.PLen = b[5]
	h.Oper = binary.BigEndian.Uint16(b[6:8])
	copy(h.SHA[:], b[8:14])
	copy(h.SPA[:], b[14:18])
	copy(h.THA[:], b[18:24])
	copy(h.TPA[:], b[24:28])
	return h, nil
}

// Write encodes the message into the start of b.
func (h ARP) Write(b []byte) error {
	if len(b) < ARPLen {
		return ErrBufferTooSmall
	}
	binary.BigEndian.PutUint16(b[0:2], h.HType)
	binary.BigEndian.PutUint16(b[2:4], h.PType)
	b[4] = h.HLen
	b[5] = h.PLen
	binary.BigEndian.PutUint16(b[6:8], h.Oper)
	copy(b[8:14], h.SHA[:])
	copy(b[14:18], h.SPA[:])
	copy(b[18:24], h.THA[:])
	copy(b[24:28], h.TPA[:])
	return nil
}
