package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunBenchCompletesAgainstInMemoryDevice(t *testing.T) {
	benchDevicePath = ""
	benchBlocks = 4
	benchRounds = 2

	require.NoError(t, runBench(nil, nil))
}
