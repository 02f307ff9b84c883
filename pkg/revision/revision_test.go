package revision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucla-readable/featherstitch/pkg/engine"
)

type fakeOwner struct {
	level, graphIndex int
}

func (o *fakeOwner) Level() int      { return o.level }
func (o *fakeOwner) GraphIndex() int { return o.graphIndex }

func TestPrepareRevertRoundTrip(t *testing.T) {
	eng := engine.New()
	block := engine.NewDescriptor(1, 16, nil, false)
	lower := &fakeOwner{level: 0, graphIndex: 0}
	upper := &fakeOwner{level: 1, graphIndex: 1}

	low, err := eng.CreateFull(block, lower, []byte("aaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
	_ = low

	high, err := eng.CreateByte(block, upper, 4, 4, []byte("bbbb"))
	require.NoError(t, err)

	assert.Equal(t, []byte("bbbb"), block.Data()[4:8])

	order, err := Prepare(eng, block, lower)
	require.NoError(t, err)
	require.Len(t, order, 1)
	assert.Equal(t, high, order[0])
	assert.Equal(t, []byte("aaaa"), block.Data()[4:8])

	require.NoError(t, Revert(eng, order))
	assert.Equal(t, []byte("bbbb"), block.Data()[4:8])
}

func TestPrepareOrdersOverlappingRollbacksBySameBlockAfter(t *testing.T) {
	eng := engine.New()
	block := engine.NewDescriptor(1, 8, nil, false)
	owner := &fakeOwner{level: 0}
	writer := &fakeOwner{level: 1, graphIndex: 1}

	base, err := eng.CreateFull(block, writer, []byte("AAAAAAAA"))
	require.NoError(t, err)
	layered, err := eng.CreateByte(block, writer, 2, 2, []byte("BB"))
	require.NoError(t, err)
	_ = base

	order, err := Prepare(eng, block, owner)
	require.NoError(t, err)
	require.Len(t, order, 2)
	// layered overlaps base and was created after it, so it must roll
	// back first.
	assert.Equal(t, layered, order[0])
}

func TestAcknowledgeSatisfiesOwnedPatches(t *testing.T) {
	eng := engine.New()
	block := engine.NewDescriptor(1, 8, nil, false)
	owner := &fakeOwner{level: 0, graphIndex: 0}

	p, err := eng.CreateFull(block, owner, []byte("deadbeef"))
	require.NoError(t, err)
	assert.True(t, p.Ready())

	require.NoError(t, Acknowledge(eng, block, owner))
	assert.True(t, block.Empty())
}

func TestInflightAckPinsOwnedPatchesUntilLanding(t *testing.T) {
	eng := engine.New()
	block := engine.NewDescriptor(1, 8, nil, false)
	lower := &fakeOwner{level: 0, graphIndex: 0}
	upper := &fakeOwner{level: 1, graphIndex: 1}

	_, err := eng.CreateFull(block, lower, []byte("aaaaaaaa"))
	require.NoError(t, err)
	ownedPatch, err := eng.CreateByte(block, upper, 0, 4, []byte("bbbb"))
	require.NoError(t, err)

	tail := NewTail(eng)
	flight, err := tail.InflightAck(block, upper)
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbb"), block.Data()[0:4])
	assert.True(t, ownedPatch.Flags&engine.FlagInFlight != 0)
	assert.True(t, tail.FlightsExist())

	require.NoError(t, tail.RequestLanding(flight.ID))
	n, err := tail.ProcessLandingRequests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, tail.FlightsExist())
	assert.Equal(t, 0, block.RefCount)
}

func TestWaitForLandingRequestsTimesOutWithoutProgress(t *testing.T) {
	eng := engine.New()
	block := engine.NewDescriptor(1, 8, nil, false)
	owner := &fakeOwner{level: 0, graphIndex: 0}
	_, err := eng.CreateFull(block, owner, []byte("aaaaaaaa"))
	require.NoError(t, err)

	tail := NewTail(eng)
	_, err = tail.InflightAck(block, owner)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = tail.WaitForLandingRequests(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
