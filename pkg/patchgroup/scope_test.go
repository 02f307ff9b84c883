package patchgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/errs"
)

type fakeOwner struct{ level, graphIndex int }

func (o *fakeOwner) Level() int      { return o.level }
func (o *fakeOwner) GraphIndex() int { return o.graphIndex }

func TestEngagedScopeCapturesNewPatches(t *testing.T) {
	eng := engine.New()
	scope := NewScope(eng, nil)
	SetCurrent(eng, scope)

	pg, err := scope.Create(0)
	require.NoError(t, err)
	require.NoError(t, scope.Engage(pg))

	owner := &fakeOwner{level: 0}
	block := engine.NewDescriptor(1, 8, nil, false)
	p, err := eng.CreateFull(block, owner, []byte("AAAAAAAA"))
	require.NoError(t, err)

	bottom := scope.Bottom()
	require.NotNil(t, bottom)

	found := false
	for el := p.Befores.Front(); el != nil; el = el.Next() {
		if el.Value.(*engine.Dep).Before == bottom {
			found = true
		}
	}
	assert.True(t, found, "newly created patch should depend on the engaged scope's bottom")

	require.NoError(t, scope.Disengage(pg))
	assert.Nil(t, scope.Bottom())
}

func TestAddDependRejectsEngagedNonAtomicBefore(t *testing.T) {
	eng := engine.New()
	scope := NewScope(eng, nil)

	before, err := scope.Create(0)
	require.NoError(t, err)
	after, err := scope.Create(0)
	require.NoError(t, err)

	require.NoError(t, scope.Engage(before))
	err = scope.AddDepend(after, before)
	assert.ErrorIs(t, err, errs.ErrBusy)

	require.NoError(t, scope.Disengage(before))
	require.NoError(t, scope.AddDepend(after, before))
}

func TestReleaseRejectsAtomicWhileEngaged(t *testing.T) {
	eng := engine.New()
	scope := NewScope(eng, nil)

	pg, err := scope.Create(FlagAtomic)
	require.NoError(t, err)
	require.NoError(t, scope.Engage(pg))

	err = scope.Release(pg)
	assert.Error(t, err)

	require.NoError(t, scope.Disengage(pg))
	require.NoError(t, scope.Release(pg))
	assert.True(t, pg.IsReleased())
}

func TestOnlyOneAtomicPatchgroupAtATime(t *testing.T) {
	eng := engine.New()
	scope := NewScope(eng, nil)

	first, err := scope.Create(FlagAtomic)
	require.NoError(t, err)

	_, err = scope.Create(FlagAtomic)
	assert.Error(t, err)

	require.NoError(t, scope.Release(first))

	second, err := scope.Create(FlagAtomic)
	require.NoError(t, err)
	require.NoError(t, scope.Release(second))
}

func TestAbandonRemovesPatchgroupFromScope(t *testing.T) {
	eng := engine.New()
	scope := NewScope(eng, nil)

	pg, err := scope.Create(0)
	require.NoError(t, err)
	assert.Equal(t, 1, scope.Size())

	require.NoError(t, scope.Abandon(pg))
	assert.Equal(t, 0, scope.Size())
}

func TestCopySharesPatchgroupsByReference(t *testing.T) {
	eng := engine.New()
	scope := NewScope(eng, nil)

	pg, err := scope.Create(0)
	require.NoError(t, err)
	require.NoError(t, scope.Engage(pg))

	forked := scope.Copy()
	assert.Equal(t, 1, forked.Size())
	assert.Equal(t, 2, pg.references)
	assert.Equal(t, 2, pg.engagedCount)
}
