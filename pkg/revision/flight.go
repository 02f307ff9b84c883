package revision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// Metrics is the optional observability seam for the revision tail.
// A nil Metrics costs nothing; pkg/metrics provides a Prometheus-backed
// implementation.
type Metrics interface {
	SetFlightsInflight(n int)
	ObserveLandingLatency(d time.Duration)
}

// Flight is one in-progress asynchronous write: the block it covers,
// the device that dispatched it, and the rollback order Prepare chose
// so Revert can put the in-memory image back once the I/O is handed
// off to the medium.
type Flight struct {
	ID      uint64
	Block   *engine.Descriptor
	Owner   engine.Owner
	order   []*engine.Patch
	started time.Time
}

// Tail tracks in-flight writes for one engine and the landing requests
// their completion handlers report, so that the actual patch-graph
// walk (Acknowledge) always runs on the control thread that called
// ProcessLandingRequests rather than on a completion callback, per
// §4.5's "never walk the graph from a completion handler" rule.
type Tail struct {
	eng *engine.Engine

	mu       sync.Mutex
	cond     *sync.Cond
	nextID   uint64
	inflight map[uint64]*Flight
	landing  []*Flight

	metrics Metrics
}

// NewTail creates a revision tail bound to eng.
func NewTail(eng *engine.Engine) *Tail {
	t := &Tail{eng: eng, inflight: make(map[uint64]*Flight)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// SetMetrics registers the observability collector. Passing nil (the
// default) disables it.
func (t *Tail) SetMetrics(m Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// InflightAck begins an asynchronous write pass on block for owner
// (the device about to dispatch the I/O): it rolls back every
// not-owned patch (Prepare), marks owner's own patches INFLIGHT so
// nothing mutates them underneath the pending write, retains block
// so it cannot be reclaimed while the write is outstanding, and then
// immediately reverts the rollback — the medium is assumed to have
// already been handed a private snapshot of the rolled-back image (a
// synchronous DMA copy, a synchronous pwrite to a staging area, or
// similar), so the live in-memory buffer can resume reflecting every
// patch right away. The owned patches stay pinned until the caller
// later calls RequestLanding with the returned Flight's ID.
func (t *Tail) InflightAck(block *engine.Descriptor, owner engine.Owner) (*Flight, error) {
	order, err := Prepare(t.eng, block, owner)
	if err != nil {
		return nil, err
	}

	for el := block.AllPatches.Front(); el != nil; el = el.Next() {
		p := el.Value.(*engine.Patch)
		if p.Owner == owner {
			t.eng.SetInFlight(p, true)
		}
	}
	block.Retain()
	block.InFlight = true

	if err := Revert(t.eng, order); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.nextID++
	f := &Flight{ID: t.nextID, Block: block, Owner: owner, order: order, started: time.Now()}
	t.inflight[f.ID] = f
	n := len(t.inflight)
	m := t.metrics
	t.mu.Unlock()
	if m != nil {
		m.SetFlightsInflight(n)
	}

	return f, nil
}

// RequestLanding enqueues a completed flight for acknowledgement. It
// is the only thing a disk completion callback (running on whatever
// goroutine the medium's I/O finished on) is allowed to touch; the
// actual graph walk happens later, in ProcessLandingRequests.
func (t *Tail) RequestLanding(flightID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.inflight[flightID]
	if !ok {
		return fmt.Errorf("request_landing: unknown flight %d: %w", flightID, errs.ErrNoSuchResource)
	}
	t.landing = append(t.landing, f)
	t.cond.Broadcast()
	return nil
}

// ProcessLandingRequests drains every currently queued landing
// request, acknowledging each flight's block and releasing it. It
// returns the number processed.
func (t *Tail) ProcessLandingRequests(_ context.Context) (int, error) {
	t.mu.Lock()
	queue := t.landing
	t.landing = nil
	t.mu.Unlock()

	for i, f := range queue {
		if err := Acknowledge(t.eng, f.Block, f.Owner); err != nil {
			t.requeue(queue[i:])
			return i, err
		}
		f.Block.Release()
		f.Block.InFlight = false

		t.mu.Lock()
		delete(t.inflight, f.ID)
		n := len(t.inflight)
		m := t.metrics
		t.cond.Broadcast()
		t.mu.Unlock()
		if m != nil {
			m.SetFlightsInflight(n)
			m.ObserveLandingLatency(time.Since(f.started))
		}
	}
	return len(queue), nil
}

func (t *Tail) requeue(remaining []*Flight) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.landing = append(remaining, t.landing...)
}

// FlightsExist reports whether any asynchronous write is still
// outstanding (has not yet landed).
func (t *Tail) FlightsExist() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) > 0
}

// WaitForLandingRequests blocks until no flights are outstanding, or
// ctx is cancelled. There is no cancellation of the underlying I/O
// itself (§7): a cancelled wait simply stops waiting.
func (t *Tail) WaitForLandingRequests(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.mu.Lock()
		for len(t.inflight) > 0 {
			t.cond.Wait()
		}
		t.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
