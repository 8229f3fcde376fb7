package service

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cilium/ebpf/rlimit"

	"github.com/ncldmg/zafxdp/bpf"
	"github.com/ncldmg/zafxdp/netdev"
	"github.com/ncldmg/zafxdp/pipeline"
	"github.com/ncldmg/zafxdp/pipeline/processors"
	"github.com/ncldmg/zafxdp/xsk"
)

func requirePrivileged(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		t.Skipf("AF_XDP unavailable: %v", err)
	}
	unix.Close(fd)
	require.NoError(t, rlimit.RemoveMemlock())
}

// Full lifecycle on the loopback interface in generic XDP mode: construct,
// start, stop, restart, close. No traffic is asserted; the test pins the
// build/teardown ordering and the worker join discipline.
func TestServiceLifecycleLoopback(t *testing.T) {
	requirePrivileged(t)

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	counter := processors.NewCounter()
	pl := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, pl.AddStage(counter))

	cfg := DefaultConfig()
	cfg.Interfaces = []InterfaceConfig{{Name: "lo", Queues: []uint32{0}}}
	cfg.XDPFlags = bpf.FlagSKBMode | bpf.FlagUpdateIfNoExist
	cfg.PollTimeoutMs = 20
	cfg.SocketOpts = &xsk.SocketOpts{
		NumFrames:              64,
		FrameSize:              2048,
		FillRingNumDescs:       64,
		CompletionRingNumDescs: 64,
		RxRingNumDescs:         64,
		TxRingNumDescs:         64,
	}
	cfg.Logger = logger

	svc, err := New(cfg, pl)
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.Start())
	assert.ErrorIs(t, svc.Start(), ErrAlreadyRunning)

	time.Sleep(50 * time.Millisecond)
	svc.Stop()
	assert.False(t, svc.Running())

	// Workers rejoin on a subsequent start.
	require.NoError(t, svc.Start())
	time.Sleep(50 * time.Millisecond)
	svc.Stop()
}

// Attaching a second time with UPDATE_IF_NOEXIST against an interface that
// already carries a program must fail.
func TestAttachNoExistConflict(t *testing.T) {
	requirePrivileged(t)

	lo, err := netdev.LookupIndex("lo")
	require.NoError(t, err)

	first, err := bpf.NewProgram(1, nil)
	require.NoError(t, err)
	defer first.Close()
	require.NoError(t, first.Attach(lo, bpf.FlagSKBMode|bpf.FlagUpdateIfNoExist))

	second, err := bpf.NewProgram(1, nil)
	require.NoError(t, err)
	defer second.Close()
	assert.ErrorIs(t, second.Attach(lo, bpf.FlagSKBMode|bpf.FlagUpdateIfNoExist), bpf.ErrAttach)
}

// Registering a queue id past the map capacity fails with a map update error.
func TestRegisterBeyondCapacity(t *testing.T) {
	requirePrivileged(t)

	prog, err := bpf.NewProgram(2, nil)
	require.NoError(t, err)
	defer prog.Close()

	lo, err := netdev.LookupIndex("lo")
	require.NoError(t, err)
	sock, err := xsk.NewSocket(lo, 0, nil, nil)
	require.NoError(t, err)
	defer sock.Close()

	require.NoError(t, prog.Register(0, sock.FD()))
	assert.ErrorIs(t, prog.Register(7, sock.FD()), bpf.ErrMapUpdate)

	require.NoError(t, prog.Unregister(0))
	assert.ErrorIs(t, prog.Unregister(1), bpf.ErrMapUpdate)
}
