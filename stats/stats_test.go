package stats

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.AddReceived(10, 6200)
	c.AddTransmitted(4, 2480)
	c.AddDropped(4)
	c.AddPassed(2)
	c.AddErrors(1)

	s := c.Snapshot()
	assert.Equal(t, uint64(10), s.PacketsReceived)
	assert.Equal(t, uint64(4), s.PacketsTransmitted)
	assert.Equal(t, uint64(4), s.PacketsDropped)
	assert.Equal(t, uint64(2), s.PacketsPassed)
	assert.Equal(t, uint64(6200), s.BytesReceived)
	assert.Equal(t, uint64(2480), s.BytesTransmitted)
	assert.Equal(t, uint64(1), s.Errors)
	assert.GreaterOrEqual(t, s.PacketsReceived, s.PacketsDropped+s.PacketsPassed+s.PacketsTransmitted)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.AddReceived(1, 64)
				c.AddPassed(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, uint64(8000), s.PacketsReceived)
	assert.Equal(t, uint64(8000), s.PacketsPassed)
	assert.Equal(t, uint64(8*1000*64), s.BytesReceived)
}

func TestRates(t *testing.T) {
	c := NewCollector()
	c.AddReceived(100, 6400)
	s := c.Snapshot()
	assert.Positive(t, s.Elapsed)
	assert.Positive(t, s.RxPacketsPerSec)
	assert.Zero(t, s.TxPacketsPerSec)
}

func TestFormatBytes(t *testing.T) {
	buf := make([]byte, 0, 32)
	assert.Equal(t, "512 B", string(FormatBytes(buf, 512)))
	assert.Equal(t, "1.0 KiB", string(FormatBytes(buf, 1024)))
	assert.Equal(t, "1.5 MiB", string(FormatBytes(buf, 3*512*1024)))
	assert.Equal(t, "2.0 GiB", string(FormatBytes(buf, 2<<30)))
	assert.Equal(t, "0 B", string(FormatBytes(buf, 0)))
}

func TestExporter(t *testing.T) {
	c := NewCollector()
	c.AddReceived(7, 448)
	c.AddDropped(3)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewExporter(c)))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			got[mf.GetName()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(7), got["zafxdp_packets_received_total"])
	assert.Equal(t, float64(448), got["zafxdp_bytes_received_total"])
	assert.Equal(t, float64(3), got["zafxdp_packets_dropped_total"])
}
