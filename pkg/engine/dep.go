package engine

import (
	"container/list"
	"fmt"

	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// Dep is a patchdep: one before→after edge. It carries its own list
// elements in both the after's Befores list and the before's Afters
// list, so removal is O(1) from either side without walking anything.
type Dep struct {
	Before, After *Patch

	elemInAfterBefores *list.Element // this Dep's node in After.Befores
	elemInBeforeAfters *list.Element // this Dep's node in Before.Afters
}

// AddDepend adds a dependency edge: after must not reach stable storage
// until before does. If the engine's CycleCheck is enabled, it first
// walks before's before-DAG looking for after and fails with
// ErrCycleDetected if found, leaving the graph unchanged (S6).
func (e *Engine) AddDepend(after, before *Patch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addDependLocked(after, before)
}

func (e *Engine) addDependLocked(after, before *Patch) error {
	if after == nil || before == nil {
		return fmt.Errorf("add_depend: %w", errs.ErrInvalidArgument)
	}
	if after == before {
		return fmt.Errorf("add_depend: self-dependency: %w", errs.ErrCycleDetected)
	}

	if e.CycleCheck {
		if hasBefore(before, after) {
			unmarkGraph(before)
			if e.metrics != nil {
				e.metrics.CycleRejected()
			}
			return fmt.Errorf("add_depend: %w", errs.ErrCycleDetected)
		}
		unmarkGraph(before)
	}

	// An EMPTY marked SET_EMPTY redirects: after gains edges to each of
	// before's befores instead of to before itself (transitive
	// flattening), per §4.2.
	if before.Type == TypeEmpty && before.Flags&FlagSetEmpty != 0 {
		for el := before.Befores.Front(); el != nil; el = el.Next() {
			grandBefore := el.Value.(*Dep).Before
			if err := e.addDependLocked(after, grandBefore); err != nil {
				return err
			}
		}
		return nil
	}

	dep := &Dep{Before: before, After: after}
	dep.elemInAfterBefores = after.Befores.PushBack(dep)
	dep.elemInBeforeAfters = before.Afters.PushBack(dep)

	lvl := before.Level()
	beforeLevelOld := after.beforeLevel()
	after.nbefores[lvl]++
	beforeLevelNew := after.beforeLevel()
	after.updateReadyPatches()

	if beforeLevelOld != beforeLevelNew {
		e.propagateLevelChangeLocked(after, beforeLevelOld, beforeLevelNew)
	}

	if e.metrics != nil {
		e.metrics.DependAdded()
	}
	return nil
}

// RemoveDepend removes the dependency between after and before, if one
// exists, in O(1) given the Dep node (callers holding a *Dep should
// prefer removeDepLocked directly; RemoveDepend is the by-endpoints form used
// by callers that only have the two patches).
func (e *Engine) RemoveDepend(after, before *Patch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for el := after.Befores.Front(); el != nil; el = el.Next() {
		dep := el.Value.(*Dep)
		if dep.Before == before {
			e.removeDepLocked(dep)
			return
		}
	}
}

func (e *Engine) removeDepLocked(dep *Dep) {
	after, before := dep.After, dep.Before

	after.Befores.Remove(dep.elemInAfterBefores)
	before.Afters.Remove(dep.elemInBeforeAfters)

	lvl := before.Level()
	beforeLevelOld := after.beforeLevel()
	if after.nbefores[lvl] > 0 {
		after.nbefores[lvl]--
	}
	beforeLevelNew := after.beforeLevel()
	after.updateReadyPatches()

	if beforeLevelOld != beforeLevelNew {
		e.propagateLevelChangeLocked(after, beforeLevelOld, beforeLevelNew)
	}

	if e.metrics != nil {
		e.metrics.DependRemoved()
	}
}

// propagateLevelChangeLocked implements patch_propagate_level_change: a
// BFS over p's afters, updating each after's nbefores bins and
// recursing only when an after's own before-level actually changes.
// Because the graph is a DAG, each edge is visited at most once.
func (e *Engine) propagateLevelChangeLocked(p *Patch, oldLevel, newLevel int) {
	if oldLevel == newLevel {
		return
	}
	type pending struct {
		patch    *Patch
		old, new int
	}
	queue := []pending{{p, oldLevel, newLevel}}

	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]

		for el := w.patch.Afters.Front(); el != nil; el = el.Next() {
			a := el.Value.(*Dep).After

			beforeOld := a.beforeLevel()
			if w.old >= 0 && a.nbefores[w.old] > 0 {
				a.nbefores[w.old]--
			}
			a.nbefores[w.new]++
			beforeNew := a.beforeLevel()
			a.updateReadyPatches()

			if beforeOld != beforeNew {
				queue = append(queue, pending{a, beforeOld, beforeNew})
			}
		}
	}
}

// hasBefore reports whether target is reachable from p via befores
// edges, marking every visited patch with FlagMarked as it goes
// (unmarkGraph must be called afterwards to clear it).
func hasBefore(p, target *Patch) bool {
	if p == target {
		return true
	}
	if p.Flags&FlagMarked != 0 {
		return false
	}
	p.Flags |= FlagMarked
	for el := p.Befores.Front(); el != nil; el = el.Next() {
		if hasBefore(el.Value.(*Dep).Before, target) {
			return true
		}
	}
	return false
}

func unmarkGraph(p *Patch) {
	if p.Flags&FlagMarked == 0 {
		return
	}
	p.Flags &^= FlagMarked
	for el := p.Befores.Front(); el != nil; el = el.Next() {
		unmarkGraph(el.Value.(*Dep).Before)
	}
}
