// Package packet provides a zero-copy view over a received UMEM frame with
// lazily parsed, memoized protocol headers.
//
// A Packet is valid for a single pipeline pass: once the worker has applied
// the resulting action the backing frame may be returned to the fill ring
// and the view must not be touched again.
package packet

import (
	"errors"
	"time"

	"github.com/ncldmg/zafxdp/proto"
)

var (
	// ErrModificationOutOfBounds is returned when a Modify would write past
	// the frame length.
	ErrModificationOutOfBounds = errors.New("modification out of bounds")
	// ErrUnexpectedProtocol is returned by a layer accessor when the packet
	// does not carry that protocol.
	ErrUnexpectedProtocol = errors.New("unexpected protocol")
)

// layer cache slots
const (
	layerEthernet = iota
	layerIPv4
	layerARP
	layerTCP
	layerUDP
	layerICMP
	layerCount
)

type span struct {
	off, end int
	valid    bool
}

// Packet is a mutable reference into UMEM holding the received bytes, the
// frame address the descriptor named, and the origin of the packet.
type Packet struct {
	data      []byte // frame bytes, length = descriptor length
	frameAddr uint64
	ifindex   int
	queueID   uint32
	timestamp time.Time

	eth  proto.Ethernet
	ip4  proto.IPv4
	arp  proto.ARP
	tcp  proto.TCP
	udp  proto.UDP
	icmp proto.ICMP

	spans [layerCount]span

	// payloadOff is the offset past the deepest parsed header, -1 until a
	// layer has been resolved.
	payloadOff int
}

// New wraps a received frame. data must be sliced to the descriptor length.
func New(data []byte, frameAddr uint64, ifindex int, queueID uint32) *Packet {
	return &Packet{
		data:       data,
		frameAddr:  frameAddr,
		ifindex:    ifindex,
		queueID:    queueID,
		timestamp:  time.Now(),
		payloadOff: -1,
	}
}

// Len returns the packet length from the descriptor.
func (p *Packet) Len() int { return len(p.data) }

// Raw returns the packet bytes. Callers must treat the slice as read-only;
// use Modify for writes so header caches stay coherent.
func (p *Packet) Raw() []byte { return p.data }

// Payload returns the mutable packet bytes.
func (p *Packet) Payload() []byte { return p.data }

// FrameAddr returns the UMEM byte offset of the backing frame.
func (p *Packet) FrameAddr() uint64 { return p.frameAddr }

// Ifindex returns the index of the interface the packet arrived on.
func (p *Packet) Ifindex() int { return p.ifindex }

// QueueID returns the RX queue the packet arrived on.
func (p *Packet) QueueID() uint32 { return p.queueID }

// Timestamp returns the time the view was constructed.
func (p *Packet) Timestamp() time.Time { return p.timestamp }

// Ethernet returns the layer-2 header, parsing it on first use.
func (p *Packet) Ethernet() (proto.Ethernet, error) {
	if p.spans[layerEthernet].valid {
		return p.eth, nil
	}
	h, err := proto.ParseEthernet(p.data)
	if err != nil {
		return proto.Ethernet{}, err
	}
	p.eth = h
	p.setSpan(layerEthernet, 0, proto.EthernetLen)
	return h, nil
}

// IPv4 returns the layer-3 header, resolving Ethernet first.
func (p *Packet) IPv4() (proto.IPv4, error) {
	if p.spans[layerIPv4].valid {
		return p.ip4, nil
	}
	eth, err := p.Ethernet()
	if err != nil {
		return proto.IPv4{}, err
	}
	if eth.EtherType != proto.EtherTypeIPv4 {
		return proto.IPv4{}, ErrUnexpectedProtocol
	}
	off := p.spans[layerEthernet].end
	h, err := proto.ParseIPv4(p.data[off:])
	if err != nil {
		return proto.IPv4{}, err
	}
	p.ip4 = h
	p.setSpan(layerIPv4, off, off+h.HeaderLen())
	return h, nil
}

// ARP returns the ARP message, resolving Ethernet first.
func (p *Packet) ARP() (proto.ARP, error) {
	if p.spans[layerARP].valid {
		return p.arp, nil
	}
	eth, err := p.Ethernet()
	if err != nil {
		return proto.ARP{}, err
	}
	if eth.EtherType != proto.EtherTypeARP {
		return proto.ARP{}, ErrUnexpectedProtocol
	}
	off := p.spans[layerEthernet].end
	h, err := proto.ParseARP(p.data[off:])
	if err != nil {
		return proto.ARP{}, err
	}
	p.arp = h
	p.setSpan(layerARP, off, off+proto.ARPLen)
	return h, nil
}

// TCP returns the layer-4 TCP header, resolving IPv4 first.
func (p *Packet) TCP() (proto.TCP, error) {
	if p.spans[layerTCP].valid {
		return p.tcp, nil
	}
	off, err := p.l4Offset(proto.IPProtoTCP)
	if err != nil {
		return proto.TCP{}, err
	}
	h, err := proto.ParseTCP(p.data[off:])
	if err != nil {
		return proto.TCP{}, err
	}
	p.tcp = h
	p.setSpan(layerTCP, off, off+h.HeaderLen())
	return h, nil
}

// UDP returns the layer-4 UDP header, resolving IPv4 first.
func (p *Packet) UDP() (proto.UDP, error) {
	if p.spans[layerUDP].valid {
		return p.udp, nil
	}
	off, err := p.l4Offset(proto.IPProtoUDP)
	if err != nil {
		return proto.UDP{}, err
	}
	h, err := proto.ParseUDP(p.data[off:])
	if err != nil {
		return proto.UDP{}, err
	}
	p.udp = h
	p.setSpan(layerUDP, off, off+proto.UDPLen)
	return h, nil
}

// ICMP returns the layer-4 ICMP header, resolving IPv4 first.
func (p *Packet) ICMP() (proto.ICMP, error) {
	if p.spans[layerICMP].valid {
		return p.icmp, nil
	}
	off, err := p.l4Offset(proto.IPProtoICMP)
	if err != nil {
		return proto.ICMP{}, err
	}
	h, err := proto.ParseICMP(p.data[off:])
	if err != nil {
		return proto.ICMP{}, err
	}
	p.icmp = h
	p.setSpan(layerICMP, off, off+proto.ICMPLen)
	return h, nil
}

func (p *Packet) l4Offset(protocol uint8) (int, error) {
	ip, err := p.IPv4()
	if err != nil {
		return 0, err
	}
	if ip.Protocol != protocol {
		return 0, ErrUnexpectedProtocol
	}
	return p.spans[layerIPv4].end, nil
}

// PayloadData returns the bytes after the deepest header parsed so far. If
// no layer has been resolved it returns the whole packet.
func (p *Packet) PayloadData() []byte {
	if p.payloadOff < 0 || p.payloadOff > len(p.data) {
		return p.data
	}
	return p.data[p.payloadOff:]
}

// Modify overwrites packet bytes at off and invalidates every cached header
// whose footprint intersects the written range.
func (p *Packet) Modify(off int, b []byte) error {
	if off < 0 || off+len(b) > len(p.data) {
		return ErrModificationOutOfBounds
	}
	copy(p.data[off:], b)
	end := off + len(b)
	for i := range p.spans {
		s := &p.spans[i]
		if s.valid && off < s.end && end > s.off {
			s.valid = false
		}
	}
	p.recomputePayloadOff()
	return nil
}

func (p *Packet) setSpan(layer, off, end int) {
	p.spans[layer] = span{off: off, end: end, valid: true}
	if end > p.payloadOff {
		p.payloadOff = end
	}
}

func (p *Packet) recomputePayloadOff() {
	p.payloadOff = -1
	for _, s := range p.spans {
		if s.valid && s.end > p.payloadOff {
			p.payloadOff = s.end
		}
	}
}
