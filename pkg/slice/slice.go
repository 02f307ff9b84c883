// Package slice implements the revision slice (§4.6): the subset of a
// block's patches that can legally be pushed down from one block
// device's level to the next one below it right now.
package slice

import (
	"github.com/ucla-readable/featherstitch/pkg/engine"
)

// Slice is the outcome of Create: either the (possibly empty) set of
// patches tentatively retagged from Owner to Target, or a forced-empty
// slice recording that the block cannot be split right now.
type Slice struct {
	Block  *engine.Descriptor
	Owner  engine.Owner
	Target engine.Owner

	Patches []*engine.Patch

	// AllReady is true if, after the retag, no patch on Block remains
	// owned by Owner — the whole block migrated down at once.
	AllReady bool

	// Empty is true if the block holds a non-ready, non-rollbackable
	// patch owned by Owner: such a patch can never be rolled out of the
	// way, so nothing can be split off until it is itself satisfied.
	Empty bool
}

// Create walks block.ReadyPatches[owner.Level()] — by invariant I5
// exactly the patches owned by owner with no pending before at their
// own level — and tentatively retags each to target, propagating the
// resulting level change to their afters as it goes. If the block
// contains a non-ready, non-rollbackable patch still owned by owner,
// no patch is safe to split off and Create returns a forced-empty
// slice instead.
func Create(eng *engine.Engine, block *engine.Descriptor, owner, target engine.Owner) *Slice {
	for el := block.AllPatches.Front(); el != nil; el = el.Next() {
		p := el.Value.(*engine.Patch)
		if p.Owner == owner && !p.Ready() && !p.Rollbackable() {
			return &Slice{Block: block, Owner: owner, Target: target, Empty: true}
		}
	}

	var candidates []*engine.Patch
	for el := block.ReadyPatches[owner.Level()].Front(); el != nil; el = el.Next() {
		candidates = append(candidates, el.Value.(*engine.Patch))
	}

	for _, p := range candidates {
		eng.RetagOwner(p, target)
	}

	allReady := true
	for el := block.AllPatches.Front(); el != nil; el = el.Next() {
		if el.Value.(*engine.Patch).Owner == owner {
			allReady = false
			break
		}
	}

	return &Slice{
		Block:    block,
		Owner:    owner,
		Target:   target,
		Patches:  candidates,
		AllReady: allReady,
	}
}

// PushDown finalizes a successful write: the patches were already
// retagged to Target at Create time, so there is nothing left to do
// beyond marking the slice spent.
func (s *Slice) PushDown() {
	s.Patches = nil
}

// PullUp reverses a failed write: every patch Create retagged to
// Target is retagged back to Owner, and the slice becomes forced-empty
// so a caller holding onto it cannot mistake it for still-pushable.
func (s *Slice) PullUp(eng *engine.Engine) {
	for _, p := range s.Patches {
		eng.RetagOwner(p, s.Owner)
	}
	s.Patches = nil
	s.AllReady = false
}

// Destroy releases the slice's references to its patches. Call once a
// slice has been pushed down or pulled up and is no longer needed.
func (s *Slice) Destroy() {
	s.Patches = nil
}
