package service

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ncldmg/zafxdp/xsk"
)

var (
	// ErrAlreadyRunning is returned by Start on a started service.
	ErrAlreadyRunning = errors.New("service already running")
	// ErrNoInterfaces is returned when the configuration binds nothing.
	ErrNoInterfaces = errors.New("no interfaces configured")
)

// InterfaceConfig names one interface and the RX queues to bind on it.
type InterfaceConfig struct {
	Name   string
	Queues []uint32
}

// Config drives service construction.
type Config struct {
	// Interfaces lists the (interface, queue) pairs to bind.
	Interfaces []InterfaceConfig
	// SocketOpts applies to every socket. Nil selects xsk.DefaultSocketOpts.
	SocketOpts *xsk.SocketOpts
	// XDPFlags is the attachment policy; 0 selects bpf.DefaultFlags.
	XDPFlags uint32
	// BatchSize bounds the packets processed per wake-up.
	BatchSize int
	// CollectStats enables the stats collector updates.
	CollectStats bool
	// PollTimeoutMs bounds each worker's readiness wait, and with it how
	// quickly workers observe Stop.
	PollTimeoutMs int
	// Logger receives service and worker logs. Nil selects the standard one.
	Logger *logrus.Logger
}

// DefaultConfig processes 64-packet batches with a 100ms poll timeout and
// stats collection on.
func DefaultConfig() Config {
	return Config{
		BatchSize:     64,
		CollectStats:  true,
		PollTimeoutMs: 100,
	}
}

func (c *Config) normalize() error {
	if len(c.Interfaces) == 0 {
		return ErrNoInterfaces
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.PollTimeoutMs <= 0 {
		c.PollTimeoutMs = 100
	}
	if c.SocketOpts == nil {
		c.SocketOpts = xsk.DefaultSocketOpts()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return nil
}
