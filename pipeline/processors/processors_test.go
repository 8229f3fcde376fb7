package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncldmg/zafxdp/packet"
	"github.com/ncldmg/zafxdp/pipeline"
)

func mkPacket(ifindex, size int) *packet.Packet {
	return packet.New(make([]byte, size), 0, ifindex, 0)
}

func TestCounter(t *testing.T) {
	c := NewCounter()

	r, err := c.Process(mkPacket(1, 60))
	require.NoError(t, err)
	assert.Equal(t, pipeline.ActionPass, r.Action)

	pkts := []*packet.Packet{mkPacket(1, 100), mkPacket(1, 40)}
	results := make([]pipeline.Result, 2)
	require.NoError(t, c.ProcessBatch(pkts, results))

	assert.Equal(t, uint64(3), c.Packets())
	assert.Equal(t, uint64(200), c.Bytes())
}

func TestCounterSkipsTerminatedInBatch(t *testing.T) {
	c := NewCounter()
	pkts := []*packet.Packet{mkPacket(1, 10), mkPacket(1, 10)}
	results := []pipeline.Result{pipeline.Transmit(2, 0), pipeline.Pass}
	require.NoError(t, c.ProcessBatch(pkts, results))
	assert.Equal(t, uint64(1), c.Packets())
}

func TestFilter(t *testing.T) {
	f := NewFilter(func(pkt *packet.Packet) bool { return pkt.Len() < 64 })

	r, err := f.Process(mkPacket(1, 32))
	require.NoError(t, err)
	assert.Equal(t, pipeline.ActionDrop, r.Action)

	r, err = f.Process(mkPacket(1, 128))
	require.NoError(t, err)
	assert.Equal(t, pipeline.ActionPass, r.Action)
}

func TestForwarder(t *testing.T) {
	f := NewForwarder(map[int]Target{
		3: {Ifindex: 4, Queue: 0},
		4: {Ifindex: 3, Queue: 0},
	})

	r, err := f.Process(mkPacket(3, 60))
	require.NoError(t, err)
	assert.Equal(t, pipeline.ActionTransmit, r.Action)
	assert.Equal(t, 4, r.TxIfindex)

	r, err = f.Process(mkPacket(4, 60))
	require.NoError(t, err)
	assert.Equal(t, 3, r.TxIfindex)

	// Unmapped arrival interface passes through.
	r, err = f.Process(mkPacket(9, 60))
	require.NoError(t, err)
	assert.Equal(t, pipeline.ActionPass, r.Action)
}

func TestRateLimiter(t *testing.T) {
	// 1 pps with burst 2: the first two packets pass, the third drops.
	rl := NewRateLimiter(1, 2)

	for i := 0; i < 2; i++ {
		r, err := rl.Process(mkPacket(1, 60))
		require.NoError(t, err)
		assert.Equal(t, pipeline.ActionPass, r.Action)
	}
	r, err := rl.Process(mkPacket(1, 60))
	require.NoError(t, err)
	assert.Equal(t, pipeline.ActionDrop, r.Action)

	// Tokens refill over time.
	time.Sleep(1100 * time.Millisecond)
	r, err = rl.Process(mkPacket(1, 60))
	require.NoError(t, err)
	assert.Equal(t, pipeline.ActionPass, r.Action)
}

func TestProcessorsInPipeline(t *testing.T) {
	p := pipeline.New(pipeline.DefaultConfig())
	counter := NewCounter()
	require.NoError(t, p.AddStage(counter))
	require.NoError(t, p.AddStage(NewFilter(func(pkt *packet.Packet) bool {
		return pkt.FrameAddr()/2048%2 == 0
	})))
	require.NoError(t, p.AddStage(NewForwarder(map[int]Target{1: {Ifindex: 2}})))

	pkts := make([]*packet.Packet, 8)
	for i := range pkts {
		pkts[i] = packet.New(make([]byte, 60), uint64(i)*2048, 1, 0)
	}
	results := make([]pipeline.Result, 8)
	n, err := p.ProcessBatch(pkts, results)
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(8), counter.Packets())
	for i := 0; i < n; i++ {
		assert.Equal(t, pipeline.ActionTransmit, results[i].Action)
		assert.Equal(t, 2, results[i].TxIfindex)
	}
}
