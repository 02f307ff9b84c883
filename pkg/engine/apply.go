package engine

import (
	"fmt"

	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// Apply installs p's effect into its block's data buffer and clears
// ROLLBACK. For a BIT patch this XORs the mask back in (apply is its
// own inverse for BIT); for a BYTE patch this re-copies the post-image.
// EMPTY patches have no effect.
func (e *Engine) Apply(p *Patch) error {
	if p.Block == nil {
		p.Flags &^= FlagRollback
		return nil
	}
	region := p.Block.data[p.Offset : int(p.Offset)+int(p.Length)]
	switch p.Type {
	case TypeBit:
		applyBitXor(region, p.BitXor)
	case TypeByte:
		copy(region, p.BytePost)
	}
	p.Flags &^= FlagRollback
	return nil
}

// Rollback restores the pre-image (or XORs the BIT mask back out) and
// sets ROLLBACK. It is an error to roll back a non-rollbackable BYTE
// patch (I6); the engine must detect this rather than silently corrupt
// the block.
func (e *Engine) Rollback(p *Patch) error {
	if !p.Rollbackable() {
		return fmt.Errorf("rollback patch %d: %w", p.id, errs.ErrNotRollbackable)
	}
	if p.Block == nil {
		p.Flags |= FlagRollback
		return nil
	}
	region := p.Block.data[p.Offset : int(p.Offset)+int(p.Length)]
	switch p.Type {
	case TypeBit:
		applyBitXor(region, p.BitXor)
	case TypeByte:
		copy(region, p.BytePre)
	}
	p.Flags |= FlagRollback
	if e.metrics != nil {
		e.metrics.PatchRolledBack()
	}
	return nil
}

// SetInFlight toggles FlagInFlight on p and propagates the resulting
// level change (an in-flight patch schedules one level above its
// owner, per Level) to every after depending on p, exactly as a change
// of p's owner's level would. Used by the revision tail to pin a
// block's just-dispatched patches for the duration of an asynchronous
// write (§4.5).
func (e *Engine) SetInFlight(p *Patch, inFlight bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldLevel := p.Level()
	if inFlight {
		p.Flags |= FlagInFlight
	} else {
		p.Flags &^= FlagInFlight
	}
	newLevel := p.Level()
	if oldLevel != newLevel {
		e.propagateLevelChangeLocked(p, oldLevel, newLevel)
	}
}

// RetagOwner reassigns p to newOwner, fixing up its index-list and
// ready-list membership (which are keyed by owner) and propagating any
// resulting level change to its afters. Used by the revision slice
// machinery to push a block's ready patches down to a lower-level
// target device, and to pull them back up again on write failure.
func (e *Engine) RetagOwner(p *Patch, newOwner Owner) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldLevel := p.Level()
	if p.readyElem != nil && p.Owner != nil {
		p.Block.ReadyPatches[p.Owner.Level()].Remove(p.readyElem)
		p.readyElem = nil
	}
	p.unlinkIndexPatches()

	p.Owner = newOwner

	p.linkIndexPatches()
	p.updateReadyPatches()

	newLevel := p.Level()
	if oldLevel != newLevel {
		e.propagateLevelChangeLocked(p, oldLevel, newLevel)
	}
}

// Satisfy asserts p has no remaining befores, removes it from every
// after's before-list (decrementing their nbefores and possibly moving
// them onto a ready list), marks it WRITTEN, detaches it from its
// block, clears its weak references (invoking callbacks), and queues
// it for ReclaimWritten. Per the two-phase scheme, p's memory is not
// actually freed until ReclaimWritten runs.
func (e *Engine) Satisfy(p *Patch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.satisfyLocked(p)
}

func (e *Engine) satisfyLocked(p *Patch) error {
	if p.Befores.Len() != 0 {
		return fmt.Errorf("satisfy patch %d: %w (befores remain)", p.id, errs.ErrInvalidArgument)
	}

	// Detach from every after's before-list; this is the same O(1)
	// per-edge removal as RemoveDepend, walked from the after side.
	for el := p.Afters.Front(); el != nil; {
		next := el.Next()
		dep := el.Value.(*Dep)
		e.removeDepLocked(dep)
		el = next
	}

	p.Flags |= FlagWritten
	if p.readyElem != nil && p.Block != nil && p.Owner != nil {
		p.Block.ReadyPatches[p.Owner.Level()].Remove(p.readyElem)
		p.readyElem = nil
	}
	p.unlinkIndexPatches()
	p.unlinkAllPatches()

	p.clearWeakRefs()

	e.reclaim = append(e.reclaim, p)
	if e.metrics != nil {
		e.metrics.PatchSatisfied()
	}
	return nil
}

// destroy releases whatever p still references. Called only from
// ReclaimWritten, once no live code can still be holding p.
func (p *Patch) destroy() {
	p.BytePre = nil
	p.BytePost = nil
	p.Befores = nil
	p.Afters = nil
	p.Owner = nil
	p.Block = nil
}
