// Package revision implements the revision tail (§4.5): the
// prepare/revert/acknowledge dance a block device runs around every
// write so that only its own patches reach the medium, while any
// still-pending patches owned by higher layers are rolled back first
// and then reapplied once the write is dispatched.
package revision

import (
	"fmt"

	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// Prepare rolls back every patch on block not owned by owner, in an
// order that respects same-block overlaps: a patch is only rolled
// back once every same-block after that overlaps it has itself
// already been rolled back. It repeats to a fixpoint and reports
// ErrDeadlock if a full pass makes no progress while patches remain
// (which can only happen if the graph itself is malformed, since the
// dependency engine itself refuses to create cycles).
//
// The returned slice is the rollback order; pass it to Revert to put
// the block back the way it was.
func Prepare(eng *engine.Engine, block *engine.Descriptor, owner engine.Owner) ([]*engine.Patch, error) {
	var remaining []*engine.Patch
	for el := block.AllPatches.Front(); el != nil; el = el.Next() {
		p := el.Value.(*engine.Patch)
		if p.Owner != owner {
			remaining = append(remaining, p)
		}
	}

	var order []*engine.Patch
	for len(remaining) > 0 {
		var again []*engine.Patch
		progress := false

		for _, c := range remaining {
			if blockedBySameBlockAfter(block, c) {
				again = append(again, c)
				continue
			}
			if err := eng.Rollback(c); err != nil {
				return nil, fmt.Errorf("prepare block %d: %w", block.Number, err)
			}
			order = append(order, c)
			progress = true
		}

		if len(again) == 0 {
			break
		}
		if !progress {
			return nil, fmt.Errorf("prepare block %d: stuck with %d patches: %w", block.Number, len(again), errs.ErrDeadlock)
		}
		remaining = again
	}
	return order, nil
}

// blockedBySameBlockAfter reports whether c has an after on the same
// block, overlapping it, that has not yet been rolled back — meaning
// c's pre-image still lies underneath that after's effect and rolling
// c back now would corrupt it.
func blockedBySameBlockAfter(block *engine.Descriptor, c *engine.Patch) bool {
	for el := c.Afters.Front(); el != nil; el = el.Next() {
		a := el.Value.(*engine.Dep).After
		if a.Block != block {
			continue
		}
		if a.Flags&engine.FlagRollback != 0 {
			continue
		}
		if engine.Overlap(a, c) != 0 {
			return true
		}
	}
	return false
}

// Revert re-applies the patches in order (the slice Prepare returned),
// newest first, putting the block's in-memory image back to its
// pre-Prepare state. It must be called once the write Prepare made
// room for has been dispatched (or, for an in-flight write, dispatched
// to a private snapshot the medium is writing from).
func Revert(eng *engine.Engine, order []*engine.Patch) error {
	for i := len(order) - 1; i >= 0; i-- {
		if err := eng.Apply(order[i]); err != nil {
			return fmt.Errorf("revert: %w", err)
		}
	}
	return nil
}

// Acknowledge is called once a write owner dispatched has reached
// stable storage (synchronously) or landed (after InflightAck +
// RequestLanding). It clears FlagInFlight from any of owner's patches
// still carrying it, then repeatedly satisfies every owner-owned patch
// on block with no remaining befores, since satisfying one can free
// another to become satisfiable in the same pass.
func Acknowledge(eng *engine.Engine, block *engine.Descriptor, owner engine.Owner) error {
	for el := block.AllPatches.Front(); el != nil; el = el.Next() {
		p := el.Value.(*engine.Patch)
		if p.Owner == owner && p.Flags&engine.FlagInFlight != 0 {
			eng.SetInFlight(p, false)
		}
	}

	for {
		progressed := false
		for el := block.AllPatches.Front(); el != nil; {
			next := el.Next()
			p := el.Value.(*engine.Patch)
			if p.Owner == owner && p.Befores.Len() == 0 {
				if err := eng.Satisfy(p); err != nil {
					return fmt.Errorf("acknowledge block %d: %w", block.Number, err)
				}
				progressed = true
			}
			el = next
		}
		if !progressed {
			break
		}
	}
	return nil
}
