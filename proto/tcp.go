package proto

import "encoding/binary"

// TCPMinLen is the size of a TCP header with no options.
const TCPMinLen = 20

// TCP is a TCP header per RFC 793. Options are not decoded.
type TCP struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // header length in 32-bit words
	Reserved   uint8 // 3 bits
	// Flag bits, wire order high to low: CWR ECE URG ACK PSH RST SYN FIN.
	NS  bool
	CWR bool
	ECE bool
	URG bool
	ACK bool
	PSH bool
	RST bool
	SYN bool
	FIN bool
	Window   uint16
	Checksum uint16
	Urgent   uint16
}

// ParseTCP decodes a TCP header from the start of b.
func ParseTCP(b []byte) (TCP, error) {
	if len(b) < TCPMinLen {
		return TCP{}, ErrPacketTooShort
	}
	var h TCP
	h.SrcPort = binary.BigEndian.Uint16(b[0:2])
	h.DstPort = binary.BigEndian.Uint16(b[2:4])
	h.Seq = binary.BigEndian.Uint32(b[4:8])
	h.Ack = binary.BigEndian.Uint32(b[8:12])
	h.DataOffset = b[12] >> 4
	h.Reserved = b[12] >> 1 & 0x07
	h.NS = b[12]&0x01 != 0
	flags := b[13]
	h.CWR = flags&0x80 != 0
	h.ECE = flags&0x40 != 0
	h.URG = flags&0x20 != 0
	h.ACK = flags&0x10 != 0
	h.PSH = flags&0x08 != 0
	h.RST = flags&0x04 != 0
	h.SYN = flags&0x02 != 0
	h.FIN = flags&0x01 != 0
	h.Window = binary.BigEndian.Uint16(b[14:16])
	h.Checksum = binary.BigEndian.Uint16(b[16:18])
	h.Urgent = binary.BigEndian.Uint16(b[18:20])
	if h.DataOffset < 5 || int(h.DataOffset)*4 > len(b) {
		return TCP{}, ErrPacketTooShort
	}
	return h, nil
}

// Write encodes the header into the start of b.
func (h TCP) Write(b []byte) error {
	if len(b) < TCPMinLen {
		return ErrBufferTooSmall
	}
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint32(b[4:8], h.Seq)
	binary.BigEndian.PutUint32(b[8:12], h.Ack)
	b[12] = h.DataOffset<<4 | (h.Reserved&0x07)<<1
	if h.NS {
		b[12] |= 0x01
	}
	var flags uint8
	if h.CWR {
		flags |= 0x80
	}
	if h.ECE {
		flags |= 0x40
	}
	if h.URG {
		flags |= 0x20
	}
	if h.ACK {
		flags |= 0x10
	}
	if h.PSH {
		flags |= 0x08
	}
	if h.RST {
		flags |= 0x04
	}
	if h.SYN {
		flags |= 0x02
	}
	if h.FIN {
		flags |= 0x01
	}
	b[13] = flags
	binary.BigEndian.PutUint16(b[14:16], h.Window)
	binary.BigEndian.PutUint16(b[16:18], h.Checksum)
	binary.BigEndian.PutUint16(b[18:20], h.Urgent)
	return nil
}

// HeaderLen returns the header length in bytes as declared by DataOffset.
func (h TCP) HeaderLen() int {
	return int(h.DataOffset) * 4
}
