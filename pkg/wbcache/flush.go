package wbcache

import (
	"context"
	"fmt"
	"time"

	"github.com/ucla-readable/featherstitch/pkg/blockdev"
	"github.com/ucla-readable/featherstitch/pkg/revision"
	"github.com/ucla-readable/featherstitch/pkg/slice"
)

// Strategy parametrizes a dirty-list walk (§4.7).
type Strategy int

const (
	// StrategyClip stops as soon as dblocks is back down to the low
	// watermark (0.9 × softDBlocks).
	StrategyClip Strategy = iota
	// StrategyFlush tries to drain the dirty list entirely.
	StrategyFlush
	// StrategyPreen stops at the first write that looks like it
	// blocked (a delay heuristic); since this cache's own WriteBlock
	// calls are synchronous, "blocked" is approximated by a failed
	// write attempt rather than a real latency measurement.
	StrategyPreen
)

// Flush walks the dirty list from its LRU end per the given block
// number: FlushDevice walks the whole cache with StrategyFlush;
// any other number flushes just that block (and its sequential
// successors, per the coalescing rule) if dirty.
func (c *Cache) Flush(ctx context.Context, number uint64) (blockdev.FlushResult, error) {
	start := time.Now()
	defer func() {
		c.mu.Lock()
		m := c.metrics
		c.mu.Unlock()
		if m != nil {
			m.ObserveFlushDuration(time.Since(start))
		}
	}()

	if number == blockdev.FlushDevice {
		return c.flushWalk(ctx, StrategyFlush)
	}
	return c.flushOneNumber(ctx, number)
}

func (c *Cache) flushOneNumber(ctx context.Context, number uint64) (blockdev.FlushResult, error) {
	c.mu.Lock()
	nd, ok := c.hash[number]
	c.mu.Unlock()
	if !ok {
		return blockdev.FlushEmpty, nil
	}

	flushed, err := c.flushNode(ctx, nd)
	if err != nil {
		return blockdev.FlushNone, err
	}
	if !flushed {
		return blockdev.FlushEmpty, nil
	}
	return blockdev.FlushDone, nil
}

// flushWalk drives the dirty list per strategy, looping FLUSH to
// exhaustion (waiting on in-flight landings when it stalls, per §4.5)
// when called for the whole device.
func (c *Cache) flushWalk(ctx context.Context, strategy Strategy) (blockdev.FlushResult, error) {
	anyFlushed := false
	anyFailed := false

	for {
		progressed, err := c.flushPass(ctx, strategy)
		if err != nil {
			anyFailed = true
		}
		if progressed {
			anyFlushed = true
		}

		c.mu.Lock()
		dblocks := c.dblocks
		c.mu.Unlock()

		if strategy != StrategyFlush {
			break
		}
		if dblocks == 0 {
			break
		}
		if !progressed {
			if c.FlightsExist() {
				if err := c.WaitForLandingRequests(ctx); err != nil {
					break
				}
				continue
			}
			break
		}
	}

	switch {
	case !anyFlushed && anyFailed:
		return blockdev.FlushNone, fmt.Errorf("wbcache: flush made no progress")
	case !anyFlushed:
		c.mu.Lock()
		empty := c.dirty.Len() == 0
		c.mu.Unlock()
		if empty {
			return blockdev.FlushEmpty, nil
		}
		return blockdev.FlushNone, nil
	default:
		c.mu.Lock()
		done := c.dirty.Len() == 0
		c.mu.Unlock()
		if done {
			return blockdev.FlushDone, nil
		}
		return blockdev.FlushSome, nil
	}
}

// flushPass makes one pass over the dirty list from its LRU end,
// respecting strategy's stop condition, and reports whether it
// flushed anything.
func (c *Cache) flushPass(ctx context.Context, strategy Strategy) (bool, error) {
	progressed := false

	for {
		c.mu.Lock()
		if c.stopLocked(strategy) {
			c.mu.Unlock()
			break
		}
		el := c.dirty.Front()
		if el == nil {
			c.mu.Unlock()
			break
		}
		nd := el.Value.(*node)
		c.mu.Unlock()

		flushed, err := c.flushNode(ctx, nd)
		if err != nil {
			return progressed, err
		}
		if !flushed {
			// Can't make room for this one right now (not ready, or a
			// blocked non-rollbackable patch); move to the back so the
			// walk doesn't spin on it, and stop this pass.
			c.mu.Lock()
			if nd.dirtyElem != nil {
				c.dirty.MoveToBack(nd.dirtyElem)
			}
			c.mu.Unlock()
			break
		}
		progressed = true
	}
	return progressed, nil
}

func (c *Cache) stopLocked(strategy Strategy) bool {
	switch strategy {
	case StrategyClip:
		return c.dblocks <= int(float64(c.softDBlocks)*0.9)
	case StrategyFlush:
		return c.dirty.Len() == 0
	case StrategyPreen:
		return c.dirty.Len() == 0
	default:
		return true
	}
}

// flushNode builds a slice for nd, writes it through to the lower
// device on success, acknowledges it, and opportunistically coalesces
// forward-adjacent dirty blocks still resident in this cache.
func (c *Cache) flushNode(ctx context.Context, nd *node) (bool, error) {
	if nd.block.InFlight {
		return false, nil
	}

	s := slice.Create(c.eng, nd.block, c, c.lower)
	if s.Empty || len(s.Patches) == 0 {
		return false, nil
	}

	if err := c.lower.WriteBlock(ctx, nd.block, nd.number); err != nil {
		s.PullUp(c.eng)
		return false, fmt.Errorf("wbcache: write block %d: %w", nd.number, err)
	}
	if err := revision.Acknowledge(c.eng, nd.block, c.lower); err != nil {
		return false, fmt.Errorf("wbcache: acknowledge block %d: %w", nd.number, err)
	}

	if s.AllReady {
		c.mu.Lock()
		c.unlinkDirtyLocked(nd)
		c.mu.Unlock()
	}
	s.Destroy()

	c.coalesceForward(ctx, nd.number)
	return true, nil
}

// coalesceForward opportunistically flushes block numbers immediately
// following number that are still dirty in this cache, stopping at the
// first gap or empty slice (sequential write coalescing, §4.7).
func (c *Cache) coalesceForward(ctx context.Context, number uint64) {
	next := number + 1
	for {
		c.mu.Lock()
		nd, ok := c.hash[next]
		dirty := ok && nd.dirtyElem != nil
		c.mu.Unlock()
		if !dirty {
			return
		}

		s := slice.Create(c.eng, nd.block, c, c.lower)
		if s.Empty || len(s.Patches) == 0 {
			return
		}
		if err := c.lower.WriteBlock(ctx, nd.block, next); err != nil {
			s.PullUp(c.eng)
			return
		}
		if err := revision.Acknowledge(c.eng, nd.block, c.lower); err != nil {
			return
		}
		if s.AllReady {
			c.mu.Lock()
			c.unlinkDirtyLocked(nd)
			c.mu.Unlock()
		}
		s.Destroy()
		next++
	}
}

// MaintainDirtyLimit is called periodically by the owning daemon (not
// on every write) to apply the CLIP strategy's hysteresis: it does
// nothing below the high watermark, and otherwise clips down to the
// low watermark (§4.7).
func (c *Cache) MaintainDirtyLimit(ctx context.Context) (blockdev.FlushResult, error) {
	c.mu.Lock()
	high := int(float64(c.softDBlocks) * 1.1)
	dblocks := c.dblocks
	c.mu.Unlock()

	if dblocks <= high {
		return blockdev.FlushEmpty, nil
	}
	return c.flushWalk(ctx, StrategyClip)
}
