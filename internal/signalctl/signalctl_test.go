package signalctl

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstallSetsStopFlagOnFirstInterrupt(t *testing.T) {
	reset()
	stop := Install()
	defer stop()

	require.False(t, StopRequested())

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(syscall.SIGINT))

	require.Eventually(t, StopRequested, time.Second, time.Millisecond)
}
