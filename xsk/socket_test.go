package xsk

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ncldmg/zafxdp/netdev"
)

// requireAFXDP skips tests that need a real AF_XDP socket: root plus kernel
// support.
func requireAFXDP(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		t.Skipf("AF_XDP unavailable: %v", err)
	}
	unix.Close(fd)
}

func TestNewSocketRejectsMissingRings(t *testing.T) {
	opts := testOpts()
	opts.RxRingNumDescs = 0
	opts.TxRingNumDescs = 0
	_, err := NewSocket(1, 0, opts, nil)
	assert.ErrorIs(t, err, ErrMissingRing)
}

func TestNewSocketRejectsBadFrameSize(t *testing.T) {
	opts := testOpts()
	opts.FrameSize = 1536
	_, err := NewSocket(1, 0, opts, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

// Loopback capture bound: construct on lo queue 0, pre-fill all 64 frames
// and observe the fill producer index advance to 64.
func TestSocketLoopbackBind(t *testing.T) {
	requireAFXDP(t)

	ifindex, err := netdev.LookupIndex("lo")
	require.NoError(t, err)

	sock, err := NewSocket(ifindex, 0, testOpts(), nil)
	require.NoError(t, err)
	defer sock.Close()

	assert.Equal(t, ifindex, sock.Ifindex())
	assert.Equal(t, uint32(0), sock.QueueID())
	assert.GreaterOrEqual(t, sock.FD(), 0)

	addrs := make([]uint64, 64)
	for i := range addrs {
		addrs[i] = uint64(i) * 2048
	}
	// Claim the frames from the free stack first so fill accounting stays
	// consistent, then donate them.
	claimed := sock.UMEM().AllocFrames(make([]uint64, 64), 64)
	require.Equal(t, 64, claimed)
	assert.Equal(t, 64, sock.Fill(addrs))
	assert.Equal(t, uint32(64), sock.fill.producer.Load())

	// Fill ring is now full.
	assert.Equal(t, 0, sock.Fill(addrs[:1]))

	// RX and completion rings are empty and non-blocking.
	assert.Zero(t, sock.Rx(make([]Desc, 8)))
	assert.Zero(t, sock.Complete(make([]uint64, 8)))

	// The wake-up path tolerates an idle socket.
	require.NoError(t, sock.Kick())

	st, err := sock.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Rx_dropped)
}

func TestSocketSendPacketsTooLarge(t *testing.T) {
	requireAFXDP(t)

	ifindex, err := netdev.LookupIndex("lo")
	require.NoError(t, err)

	sock, err := NewSocket(ifindex, 0, testOpts(), nil)
	require.NoError(t, err)
	defer sock.Close()

	// A frame-sized packet is accepted, an oversized one skipped.
	n, err := sock.SendPackets([][]byte{make([]byte, 2048), make([]byte, 2049)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSocketClosedOperations(t *testing.T) {
	requireAFXDP(t)

	ifindex, err := netdev.LookupIndex("lo")
	require.NoError(t, err)

	sock, err := NewSocket(ifindex, 0, testOpts(), nil)
	require.NoError(t, err)
	require.NoError(t, sock.Close())
	require.NoError(t, sock.Close()) // idempotent

	assert.ErrorIs(t, sock.Kick(), ErrInvalidFileDescriptor)
	_, err = sock.SendPackets([][]byte{{1}})
	assert.True(t, errors.Is(err, ErrInvalidFileDescriptor))
	_, err = sock.ReceivePackets([][]byte{make([]byte, 2048)})
	assert.ErrorIs(t, err, ErrInvalidFileDescriptor)
}
