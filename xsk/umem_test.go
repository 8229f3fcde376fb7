package xsk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpts() *SocketOpts {
	return &SocketOpts{
		NumFrames:              64,
		FrameSize:              2048,
		FillRingNumDescs:       64,
		CompletionRingNumDescs: 64,
		RxRingNumDescs:         64,
		TxRingNumDescs:         64,
	}
}

func TestUMEMLayout(t *testing.T) {
	u, err := newUMEM(testOpts())
	require.NoError(t, err)
	defer u.unmap()

	assert.Equal(t, 64*2048, u.Len())
	assert.Equal(t, uint32(2048), u.FrameSize())
	assert.Equal(t, uint32(64), u.NumFrames())
	assert.Equal(t, 64, u.FreeCount())
}

func TestUMEMAllocFree(t *testing.T) {
	u, err := newUMEM(testOpts())
	require.NoError(t, err)
	defer u.unmap()

	seen := map[uint64]bool{}
	for i := 0; i < 64; i++ {
		addr, ok := u.AllocFrame()
		require.True(t, ok)
		// Frame addresses are aligned and inside the region.
		assert.Zero(t, addr%2048)
		assert.Less(t, addr, uint64(u.Len()))
		assert.False(t, seen[addr], "address handed out twice")
		seen[addr] = true
	}
	_, ok := u.AllocFrame()
	assert.False(t, ok)

	u.FreeFrame(4096)
	addr, ok := u.AllocFrame()
	require.True(t, ok)
	assert.Equal(t, uint64(4096), addr)
}

func TestUMEMAllocFramesBatch(t *testing.T) {
	u, err := newUMEM(testOpts())
	require.NoError(t, err)
	defer u.unmap()

	out := make([]uint64, 80)
	n := u.AllocFrames(out, 80)
	assert.Equal(t, 64, n)
	assert.Equal(t, 0, u.FreeCount())

	u.FreeFrames(out[:n])
	assert.Equal(t, 64, u.FreeCount())
}

func TestUMEMFrameSlice(t *testing.T) {
	u, err := newUMEM(testOpts())
	require.NoError(t, err)
	defer u.unmap()

	f := u.Frame(2048, 128)
	require.Len(t, f, 128)
	f[0] = 0xAB
	assert.Equal(t, byte(0xAB), u.Frame(2048, 1)[0])
	// Neighboring frame is untouched.
	assert.Equal(t, byte(0), u.Frame(0, 2048)[2047])
}

func TestOptionsValidation(t *testing.T) {
	o := testOpts()
	o.RxRingNumDescs = 0
	o.TxRingNumDescs = 0
	assert.ErrorIs(t, o.validate(), ErrMissingRing)

	o = testOpts()
	o.FrameSize = 1000 // not a power of two
	assert.ErrorIs(t, o.validate(), ErrInvalidOptions)

	o = testOpts()
	o.FillRingNumDescs = 63
	assert.ErrorIs(t, o.validate(), ErrInvalidOptions)

	o = testOpts()
	o.TxRingNumDescs = 0 // RX-only socket is fine
	assert.NoError(t, o.validate())

	assert.NoError(t, DefaultSocketOpts().validate())
}
