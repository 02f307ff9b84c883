package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunGroupWritesThroughPatchgroup(t *testing.T) {
	groupDevicePath = ""
	groupLabel = "test-group"
	groupAtomic = false
	groupBlock = 0
	groupData = "hello featherstitch"

	require.NoError(t, runGroup(nil, nil))
}

func TestRunGroupAtomic(t *testing.T) {
	groupDevicePath = ""
	groupLabel = "atomic-group"
	groupAtomic = true
	groupBlock = 2
	groupData = "atomic payload"

	require.NoError(t, runGroup(nil, nil))
}
