package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncldmg/zafxdp/proto"
)

// buildUDPFrame assembles the 62-byte Ethernet/IPv4/UDP broadcast frame used
// throughout the end-to-end tests: 20 bytes of UDP payload.
func buildUDPFrame(t *testing.T) []byte {
	t.Helper()
	frame := make([]byte, 62)

	eth := proto.Ethernet{
		Dst:       [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		Src:       [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		EtherType: proto.EtherTypeIPv4,
	}
	require.NoError(t, eth.Write(frame))

	ip := proto.IPv4{
		Version:  4,
		IHL:      5,
		TotalLen: 48,
		TTL:      64,
		Protocol: proto.IPProtoUDP,
		Src:      [4]byte{10, 0, 0, 1},
		Dst:      [4]byte{255, 255, 255, 255},
	}
	ip.Checksum = ip.ComputeChecksum()
	require.NoError(t, ip.Write(frame[proto.EthernetLen:]))

	udp := proto.UDP{SrcPort: 9999, DstPort: 9999, Length: 28}
	require.NoError(t, udp.Write(frame[proto.EthernetLen+proto.IPv4MinLen:]))

	for i := 42; i < 62; i++ {
		frame[i] = byte(i - 42)
	}
	return frame
}

func TestLazyLayerParsing(t *testing.T) {
	pkt := New(buildUDPFrame(t), 0, 3, 0)

	// UDP resolves IPv4 and Ethernet implicitly.
	udp, err := pkt.UDP()
	require.NoError(t, err)
	assert.Equal(t, uint16(9999), udp.DstPort)

	eth, err := pkt.Ethernet()
	require.NoError(t, err)
	assert.Equal(t, proto.EtherTypeIPv4, eth.EtherType)

	ip, err := pkt.IPv4()
	require.NoError(t, err)
	assert.Equal(t, proto.IPProtoUDP, ip.Protocol)

	// Memoized: repeated access returns equal results.
	udp2, err := pkt.UDP()
	require.NoError(t, err)
	assert.Equal(t, udp, udp2)

	assert.Equal(t, 3, pkt.Ifindex())
	assert.Equal(t, uint32(0), pkt.QueueID())
	assert.Equal(t, 62, pkt.Len())
}

func TestPayloadData(t *testing.T) {
	frame := buildUDPFrame(t)
	pkt := New(frame, 0, 0, 0)

	// Nothing parsed yet: whole frame.
	assert.Len(t, pkt.PayloadData(), 62)

	_, err := pkt.Ethernet()
	require.NoError(t, err)
	assert.Len(t, pkt.PayloadData(), 48)

	_, err = pkt.UDP()
	require.NoError(t, err)
	assert.Len(t, pkt.PayloadData(), 20)
	assert.Equal(t, byte(0), pkt.PayloadData()[0])
	assert.Equal(t, byte(19), pkt.PayloadData()[19])
}

func TestModifyInvalidatesIntersectingCaches(t *testing.T) {
	pkt := New(buildUDPFrame(t), 0, 0, 0)

	udpBefore, err := pkt.UDP()
	require.NoError(t, err)
	assert.Equal(t, uint16(9999), udpBefore.SrcPort)

	// Rewrite the UDP source port in place (offset 34 = 14 eth + 20 ip).
	require.NoError(t, pkt.Modify(34, []byte{0x00, 0x35}))

	udpAfter, err := pkt.UDP()
	require.NoError(t, err)
	assert.Equal(t, uint16(53), udpAfter.SrcPort)

	// Ethernet cache does not intersect the write and stays untouched.
	eth, err := pkt.Ethernet()
	require.NoError(t, err)
	assert.Equal(t, proto.EtherTypeIPv4, eth.EtherType)
}

func TestModifyReadBack(t *testing.T) {
	pkt := New(buildUDPFrame(t), 0, 0, 0)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, pkt.Modify(42, payload))
	assert.Equal(t, payload, pkt.Raw()[42:46])
}

func TestModifyOutOfBounds(t *testing.T) {
	pkt := New(buildUDPFrame(t), 0, 0, 0)
	assert.ErrorIs(t, pkt.Modify(60, []byte{1, 2, 3}), ErrModificationOutOfBounds)
	assert.ErrorIs(t, pkt.Modify(-1, []byte{1}), ErrModificationOutOfBounds)
}

func TestWrongProtocolAccessors(t *testing.T) {
	pkt := New(buildUDPFrame(t), 0, 0, 0)

	_, err := pkt.TCP()
	assert.ErrorIs(t, err, ErrUnexpectedProtocol)
	_, err = pkt.ARP()
	assert.ErrorIs(t, err, ErrUnexpectedProtocol)
}

func TestTooShortFrame(t *testing.T) {
	pkt := New([]byte{0x01, 0x02}, 0, 0, 0)
	_, err := pkt.Ethernet()
	assert.ErrorIs(t, err, proto.ErrPacketTooShort)
}

func TestARPFrame(t *testing.T) {
	frame := make([]byte, proto.EthernetLen+proto.ARPLen)
	eth := proto.Ethernet{EtherType: proto.EtherTypeARP}
	require.NoError(t, eth.Write(frame))
	arp := proto.ARP{HType: 1, PType: proto.EtherTypeIPv4, HLen: 6, PLen: 4, Oper: proto.ARPOpReply}
	require.NoError(t, arp.Write(frame[proto.EthernetLen:]))

	pkt := New(frame, 0, 0, 0)
	got, err := pkt.ARP()
	require.NoError(t, err)
	assert.Equal(t, proto.ARPOpReply, got.Oper)
	assert.Empty(t, pkt.PayloadData())
}
