package service

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncldmg/zafxdp/pipeline"
	"github.com/ncldmg/zafxdp/stats"
)

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}
	assert.ErrorIs(t, cfg.normalize(), ErrNoInterfaces)

	cfg = Config{Interfaces: []InterfaceConfig{{Name: "lo", Queues: []uint32{0}}}}
	require.NoError(t, cfg.normalize())
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 100, cfg.PollTimeoutMs)
	assert.NotNil(t, cfg.SocketOpts)
	assert.NotNil(t, cfg.Logger)

	def := DefaultConfig()
	assert.Equal(t, 64, def.BatchSize)
	assert.True(t, def.CollectStats)
}

func TestNewRejectsEmptyConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoInterfaces)
}

func TestStartStopLifecycle(t *testing.T) {
	// A service with no sockets still exercises the running-flag and join
	// discipline.
	s := &Service{
		cfg:       DefaultConfig(),
		pl:        pipeline.New(pipeline.DefaultConfig()),
		collector: stats.NewCollector(),
		log:       logrus.New().WithField("component", "service"),
	}

	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)

	s.Stop()
	assert.False(t, s.Running())
	// Stop is idempotent.
	s.Stop()

	// A stopped service can be started again.
	require.NoError(t, s.Start())
	s.Stop()
}

func TestDistinctIfindexes(t *testing.T) {
	s := &Service{socks: []*socketRecord{
		{ifindex: 3, queueID: 0},
		{ifindex: 3, queueID: 1},
		{ifindex: 4, queueID: 0},
	}}
	assert.Equal(t, []int{3, 4}, s.distinctIfindexes())
}
