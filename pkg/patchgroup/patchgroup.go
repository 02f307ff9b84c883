// Package patchgroup implements patchgroups (§4.8): process-scoped
// atomic-or-ordered groupings of patches, modeled after four EMPTY
// hub patches per group (head_keep, head, tail_keep, tail) plus a
// scope-wide top/bottom pair that captures whatever patches are
// created while any patchgroup is engaged.
package patchgroup

import "github.com/ucla-readable/featherstitch/pkg/engine"

// ID identifies a patchgroup within the scope that created it.
type ID uint64

// Flags is the patchgroup creation flag bitset.
type Flags int

const (
	// FlagAtomic requests journal-backed all-or-nothing semantics: the
	// journal is held while the group is engaged, and only one atomic
	// patchgroup may exist at a time (§4.8).
	FlagAtomic Flags = 1 << iota
)

// Patchgroup is one group of related patches: before() attaches other
// groups as predecessors, engage()/disengage() controls whether newly
// created patches are captured into it, and release() lets it finish
// once no more patches will depend on it.
type Patchgroup struct {
	id    ID
	flags Flags
	label string

	// headKeep holds head alive until the first after is attached via
	// AddDepend; nil once that has happened.
	headKeep *engine.Patch
	// head is the hub later patches depend on through AddDepend.
	head *engine.Patch
	// tailKeep holds tail alive until Release.
	tailKeep *engine.Patch
	// tail is the hub this group's own captured patches end up
	// depending on (indirectly, via the scope's bottom).
	tail *engine.Patch

	references   int
	hasData      bool
	isReleased   bool
	engagedCount int
	hasAfters    bool
	hasBefores   bool
}

// ID returns the patchgroup's scope-local identifier.
func (pg *Patchgroup) ID() ID { return pg.id }

// Label returns the group's debug label, empty if none was set.
func (pg *Patchgroup) Label() string { return pg.label }

// SetLabel attaches a debug label, returned by Label. This package does
// not write the label to the trace stream or to the logs itself.
func (pg *Patchgroup) SetLabel(label string) { pg.label = label }

// IsReleased reports whether Release has been called on this group.
func (pg *Patchgroup) IsReleased() bool { return pg.isReleased }

// Atomic reports whether the group was created with FlagAtomic.
func (pg *Patchgroup) Atomic() bool { return pg.flags&FlagAtomic != 0 }

// JournalHold is the hook an atomic patchgroup uses to keep the
// journal open for the duration it is engaged. A real journaling BD
// implements this; NoJournal is the default no-op for configurations
// without one.
type JournalHold interface {
	AddHold()
	RemoveHold()
}

// NoJournal is the default JournalHold: atomic patchgroups behave like
// ordinary ones, without any real journal backing the hold.
type NoJournal struct{}

func (NoJournal) AddHold()    {}
func (NoJournal) RemoveHold() {}
