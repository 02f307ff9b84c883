// Package engine implements the Featherstitch patch graph: block
// descriptors (bdesc), patches, the dependency/level engine, and the
// two-phase satisfy/reclaim lifecycle. bdesc and patch are mutually
// referential in the original C sources, so both live in this single
// package; Owner and PatchGroupHook are the minimal seams that let the
// blockdev and patchgroup packages depend on engine without engine
// depending back on them.
package engine

import (
	"sync"
)

// MaxLevel bounds the per-block level-indexed arrays (ready_patches,
// nbefores). It stands in for the original's NBDLEVEL; any BD stack
// deeper than this is not a realistic configuration for this engine.
const MaxLevel = 32

// NoLevel is the sentinel "BDLEVEL_NONE": no before exists, so the
// before-level of a patch with no befores is undefined.
const NoLevel = -1

// Owner is the minimal view of a block device that the patch graph
// needs: its level (distance from stable storage) and its graph index
// (used to size/select the per-block index_patches list). The full
// read/write/flush trait lives in package blockdev, which imports
// engine — never the reverse.
type Owner interface {
	Level() int
	GraphIndex() int
}

// PatchGroupHook lets an Engine consult the currently engaged
// patchgroup scope (if any) when a new patch is created, without engine
// importing package patchgroup. Bottom returns the patch every new
// patch should additionally depend on, or nil for none; NotifyCreated
// is called once for every newly created patch.
type PatchGroupHook interface {
	Bottom() *Patch
	NotifyCreated(p *Patch)
}

// TraceHook lets an Engine emit one debug-trace event per patch
// creation without this package importing package trace (trace is a
// consumer of engine via this seam, never the reverse). finishCreate
// calls OnPatchCreate exactly once per create_* call, which is what
// makes create_byte_atomic's "exactly one patch, exactly one trace
// event" guarantee (P5) hold: every creator funnels through a single
// finishCreate call.
type TraceHook interface {
	OnPatchCreate(p *Patch)
}

// Metrics is the optional observability seam for the dependency
// engine. A nil Metrics (the default) costs nothing; pkg/metrics
// provides a Prometheus-backed implementation.
type Metrics interface {
	PatchCreated()
	PatchSatisfied()
	PatchRolledBack()
	DependAdded()
	DependRemoved()
	CycleRejected()
	SetLiveGraphSize(n int)
}

// Engine is the explicit replacement for the original's global static
// state (modules table, reclaim list). Every patch graph operation in
// this package takes an *Engine; tests instantiate as many independent
// engines as they like.
type Engine struct {
	mu sync.Mutex

	// CycleCheck enables the optional O(V+E) acyclicity check in
	// AddDepend, matching PATCH_CYCLE_CHECK. Off by default, as in the
	// original, for performance; tests enable it explicitly (S6).
	CycleCheck bool

	nextPatchID uint64
	reclaim     []*Patch

	pgHook    PatchGroupHook
	traceHook TraceHook
	metrics   Metrics

	liveGraphSize int
}

// New creates an Engine with default configuration (cycle checking off).
func New() *Engine {
	return &Engine{}
}

// SetPatchGroupHook registers the patchgroup scope callback. Passing nil
// restores the default (no scope, no automatic extra dependency).
func (e *Engine) SetPatchGroupHook(hook PatchGroupHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pgHook = hook
}

// SetTraceHook registers the debug trace emitter. Passing nil disables
// tracing (the default).
func (e *Engine) SetTraceHook(hook TraceHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traceHook = hook
}

// SetMetrics registers the observability collector. Passing nil (the
// default) disables it.
func (e *Engine) SetMetrics(m Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

func (e *Engine) nextID() uint64 {
	e.nextPatchID++
	return e.nextPatchID
}

// ReclaimWritten frees the memory of every patch satisfied since the
// last call, per the two-phase satisfy/reclaim scheme of §4.4: a
// pointer observed during a write-completion sweep remains valid until
// this call runs.
func (e *Engine) ReclaimWritten() {
	e.mu.Lock()
	pending := e.reclaim
	e.reclaim = nil
	e.mu.Unlock()

	for _, p := range pending {
		p.destroy()
	}

	if len(pending) > 0 {
		e.mu.Lock()
		e.liveGraphSize -= len(pending)
		n := e.liveGraphSize
		m := e.metrics
		e.mu.Unlock()
		if m != nil {
			m.SetLiveGraphSize(n)
		}
	}
}

// pendingReclaim reports how many patches are awaiting ReclaimWritten,
// for tests asserting P3.
func (e *Engine) pendingReclaim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reclaim)
}
