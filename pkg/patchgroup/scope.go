package patchgroup

import (
	"fmt"
	"sync"

	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// atomicExists enforces the single-atomic-patchgroup-at-a-time rule
// across every scope in the process, matching the original's static
// atomic_opgroup_exists — inter-atomic-patchgroup dependency detection
// is future work there too, not attempted here.
var (
	atomicMu     sync.Mutex
	atomicExists bool
)

type scopeState struct {
	pg      *Patchgroup
	engaged bool
}

// Scope is a per-process (or per-fork) map from patchgroup ID to
// state, plus the top/bottom EMPTY hubs that capture patches created
// while any of its patchgroups are engaged. A Scope implements
// engine.PatchGroupHook; call SetCurrent to make it the engine's
// active scope.
type Scope struct {
	eng     *engine.Engine
	journal JournalHold

	mu     sync.Mutex
	nextID ID
	byID   map[ID]*scopeState

	top    *engine.Patch
	bottom *engine.Patch
}

// NewScope creates an empty scope bound to eng. journal may be nil, in
// which case atomic patchgroups get NoJournal semantics.
func NewScope(eng *engine.Engine, journal JournalHold) *Scope {
	if journal == nil {
		journal = NoJournal{}
	}
	return &Scope{eng: eng, journal: journal, nextID: 1, byID: make(map[ID]*scopeState)}
}

// SetCurrent makes scope the engine's active patchgroup hook — every
// patch subsequently created through the engine gains scope.bottom as
// an extra before while any of scope's patchgroups are engaged. Pass
// nil to detach (no scope captures new patches).
func SetCurrent(eng *engine.Engine, scope *Scope) {
	if scope == nil {
		eng.SetPatchGroupHook(nil)
		return
	}
	eng.SetPatchGroupHook(scope)
}

// Bottom implements engine.PatchGroupHook.
func (s *Scope) Bottom() *engine.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bottom
}

// NotifyCreated implements engine.PatchGroupHook; the scope has
// nothing further to do per patch beyond the automatic Bottom() edge.
func (s *Scope) NotifyCreated(*engine.Patch) {}

// Size reports how many patchgroups are live in this scope.
func (s *Scope) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Create allocates a new patchgroup in the scope: four EMPTY hub
// patches (head_keep, head, tail_keep, tail) with tail depending on
// tail_keep and head depending on head_keep, so both hubs stay alive
// until AddDepend/Release say otherwise.
func (s *Scope) Create(flags Flags) (*Patchgroup, error) {
	if flags != 0 && flags != FlagAtomic {
		return nil, fmt.Errorf("patchgroup create: %w", errs.ErrInvalidArgument)
	}
	if flags&FlagAtomic != 0 {
		atomicMu.Lock()
		if atomicExists {
			atomicMu.Unlock()
			return nil, fmt.Errorf("patchgroup create: atomic patchgroup already exists: %w", errs.ErrBusy)
		}
		atomicExists = true
		atomicMu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	headKeep, err := s.eng.CreateEmpty(nil)
	if err != nil {
		return nil, fmt.Errorf("patchgroup create: %w", err)
	}
	tailKeep, err := s.eng.CreateEmpty(nil)
	if err != nil {
		return nil, fmt.Errorf("patchgroup create: %w", err)
	}
	tail, err := s.eng.CreateEmpty(nil, tailKeep)
	if err != nil {
		return nil, fmt.Errorf("patchgroup create: %w", err)
	}
	head, err := s.eng.CreateEmpty(nil, headKeep)
	if err != nil {
		return nil, fmt.Errorf("patchgroup create: %w", err)
	}

	pg := &Patchgroup{
		id:         s.nextID,
		flags:      flags,
		headKeep:   headKeep,
		head:       head,
		tailKeep:   tailKeep,
		tail:       tail,
		references: 1,
	}
	s.nextID++
	s.byID[pg.id] = &scopeState{pg: pg}
	return pg, nil
}

// AddDepend attaches before.head as a before of after.tail, so every
// patch this group later captures is ordered after whatever before
// has already captured. It rejects before being engaged anywhere
// (unless atomic) and after already being released or having afters.
func (s *Scope) AddDepend(after, before *Patchgroup) error {
	if after == nil || before == nil {
		return fmt.Errorf("patchgroup add_depend: %w", errs.ErrInvalidArgument)
	}
	if !before.Atomic() && before.engagedCount > 0 {
		return fmt.Errorf("patchgroup add_depend: before is engaged: %w", errs.ErrBusy)
	}
	if after.isReleased || after.hasAfters {
		return fmt.Errorf("patchgroup add_depend: after is released or already has afters: %w", errs.ErrInvalidArgument)
	}

	if before.head != nil {
		if err := s.eng.AddDepend(after.tail, before.head); err != nil {
			return fmt.Errorf("patchgroup add_depend: %w", err)
		}
	}

	after.hasBefores = true
	before.hasAfters = true
	if before.headKeep != nil {
		if err := s.eng.Satisfy(before.headKeep); err != nil {
			return fmt.Errorf("patchgroup add_depend: %w", err)
		}
		before.headKeep = nil
	}
	return nil
}

// Engage marks pg as capturing new patches.
func (s *Scope) Engage(pg *Patchgroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engageLocked(pg)
}

func (s *Scope) engageLocked(pg *Patchgroup) error {
	st, ok := s.byID[pg.id]
	if !ok {
		return fmt.Errorf("patchgroup engage: %w", errs.ErrNoSuchResource)
	}
	if !pg.Atomic() && pg.isReleased {
		return fmt.Errorf("patchgroup engage: released: %w", errs.ErrInvalidArgument)
	}
	if !pg.Atomic() && pg.hasAfters {
		return fmt.Errorf("patchgroup engage: already has afters: %w", errs.ErrInvalidArgument)
	}
	if pg.Atomic() && pg.isReleased {
		return fmt.Errorf("patchgroup engage: atomic and released: %w", errs.ErrInvalidArgument)
	}
	if st.engaged {
		return nil
	}

	st.engaged = true
	pg.engagedCount++

	if err := s.rebuildTopBottomLocked(pg, false); err != nil {
		st.engaged = false
		pg.engagedCount--
		return err
	}

	if pg.Atomic() && !pg.hasData {
		s.journal.AddHold()
	}
	pg.hasData = true
	return nil
}

// Disengage stops pg from capturing new patches.
func (s *Scope) Disengage(pg *Patchgroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disengageLocked(pg)
}

func (s *Scope) disengageLocked(pg *Patchgroup) error {
	st, ok := s.byID[pg.id]
	if !ok {
		return fmt.Errorf("patchgroup disengage: %w", errs.ErrNoSuchResource)
	}
	if !st.engaged {
		return nil
	}

	st.engaged = false
	pg.engagedCount--

	if err := s.rebuildTopBottomLocked(pg, true); err != nil {
		st.engaged = true
		pg.engagedCount++
		return err
	}
	return nil
}

// rebuildTopBottomLocked rebuilds the scope's top/bottom hubs after an
// engage or disengage transition on changed. wasEngaged is changed's
// engaged state just before this transition (false for an engage,
// true for a disengage): every currently-engaged patchgroup's head —
// using that pre-transition value for changed itself — gets attached
// to the old top, so work captured before the rebuild is strictly
// ordered before work captured after it. Must be called with s.mu held.
func (s *Scope) rebuildTopBottomLocked(changed *Patchgroup, wasEngaged bool) error {
	oldTop := s.top

	if oldTop != nil {
		for _, st := range s.byID {
			attach := st.engaged
			if st.pg == changed {
				attach = wasEngaged
			}
			if attach {
				if err := s.eng.AddDepend(st.pg.head, oldTop); err != nil {
					return fmt.Errorf("patchgroup rebuild: %w", err)
				}
			}
		}
	}

	var engagedNow []*Patchgroup
	for _, st := range s.byID {
		if st.engaged {
			engagedNow = append(engagedNow, st.pg)
		}
	}

	if len(engagedNow) == 0 {
		s.top = nil
		s.bottom = nil
		return nil
	}

	bottom, err := s.eng.CreateEmpty(nil)
	if err != nil {
		return fmt.Errorf("patchgroup rebuild: %w", err)
	}
	for _, pg := range engagedNow {
		if pg.tail != nil {
			if err := s.eng.AddDepend(bottom, pg.tail); err != nil {
				return fmt.Errorf("patchgroup rebuild: %w", err)
			}
		}
	}
	top, err := s.eng.CreateEmpty(nil, bottom)
	if err != nil {
		return fmt.Errorf("patchgroup rebuild: %w", err)
	}

	s.top = top
	s.bottom = bottom
	return nil
}

// Release lets pg finish: tail_keep is satisfied (no longer artifically
// holding tail alive), any atomic journal hold is dropped, and the
// group may no longer be engaged.
func (s *Scope) Release(pg *Patchgroup) error {
	if pg.Atomic() && pg.engagedCount > 0 {
		return fmt.Errorf("patchgroup release: still engaged: %w", errs.ErrInvalidArgument)
	}
	if pg.tailKeep == nil {
		return nil
	}
	if err := s.eng.Satisfy(pg.tailKeep); err != nil {
		return fmt.Errorf("patchgroup release: %w", err)
	}
	pg.tailKeep = nil

	if pg.Atomic() {
		s.journal.RemoveHold()
		atomicMu.Lock()
		atomicExists = false
		atomicMu.Unlock()
	}
	pg.isReleased = true
	return nil
}

// Abandon drops the caller's reference to pg, disengaging it first if
// necessary. Once the reference count reaches zero the patchgroup is
// removed from the scope; its hub patches remain wired into the patch
// graph exactly as any other patch would, to be satisfied and reclaimed
// in the ordinary way.
func (s *Scope) Abandon(pg *Patchgroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[pg.id]
	if !ok {
		return fmt.Errorf("patchgroup abandon: %w", errs.ErrNoSuchResource)
	}
	if st.engaged {
		if err := s.disengageLocked(pg); err != nil {
			return err
		}
	}
	pg.references--
	if pg.references <= 0 {
		delete(s.byID, pg.id)
	}
	return nil
}

// Copy forks the scope (for a process fork-like operation): every
// patchgroup is shared with the original (reference-counted) rather
// than duplicated, and the new scope starts out pointing at the same
// top/bottom hubs.
func (s *Scope) Copy() *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := &Scope{
		eng:     s.eng,
		journal: s.journal,
		nextID:  s.nextID,
		byID:    make(map[ID]*scopeState, len(s.byID)),
		top:     s.top,
		bottom:  s.bottom,
	}
	for id, st := range s.byID {
		st.pg.references++
		if st.engaged {
			st.pg.engagedCount++
		}
		cp.byID[id] = &scopeState{pg: st.pg, engaged: st.engaged}
	}
	return cp
}

// Destroy disengages and abandons every patchgroup still held by the
// scope.
func (s *Scope) Destroy() error {
	s.mu.Lock()
	ids := make([]ID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.mu.Lock()
		st, ok := s.byID[id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if err := s.Abandon(st.pg); err != nil {
			return err
		}
	}
	return nil
}
