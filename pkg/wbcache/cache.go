// Package wbcache implements the write-back cache block device of
// §4.7: a chained-hash index over bdescs, two LRU lists (all blocks,
// and the dirty subset), and a flush walk that pushes ready patches
// down to the device beneath using package slice and package
// revision.
package wbcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ucla-readable/featherstitch/internal/walpersist"
	"github.com/ucla-readable/featherstitch/pkg/blockdev"
	"github.com/ucla-readable/featherstitch/pkg/engine"
)

type node struct {
	number uint64
	block  *engine.Descriptor

	allElem   *list.Element
	dirtyElem *list.Element
}

// Metrics is the optional observability seam for the write-back cache.
// A nil Metrics costs nothing; pkg/metrics provides a Prometheus-backed
// implementation.
type Metrics interface {
	SetDirtyBlocks(n int)
	SetResidentBlocks(n int)
	Eviction()
	ObserveFlushDuration(d time.Duration)
}

// Cache is a write-back caching block device stacked in front of a
// lower device. It never writes through on its own; dirty blocks are
// pushed down only by Flush, by the periodic MaintainDirtyLimit call,
// or by opportunistic sequential coalescing during either of those.
type Cache struct {
	mu sync.Mutex

	lower      blockdev.Device
	eng        *engine.Engine
	graphIndex int

	softBlocks  int
	softDBlocks int

	hash  map[uint64]*node
	all   *list.List // LRU, MRU at Back
	dirty *list.List // LRU, MRU at Back

	dblocks int

	metrics   Metrics
	persister walpersist.Persister
	persistErr error
}

// New creates a write-back cache in front of lower, bounded by
// softBlocks total cached blocks and softDBlocks dirty blocks.
func New(lower blockdev.Device, eng *engine.Engine, graphIndex, softBlocks, softDBlocks int) *Cache {
	return &Cache{
		lower:       lower,
		eng:         eng,
		graphIndex:  graphIndex,
		softBlocks:  softBlocks,
		softDBlocks: softDBlocks,
		hash:        make(map[uint64]*node),
		all:         list.New(),
		dirty:       list.New(),
	}
}

// SetMetrics registers the observability collector. Passing nil (the
// default) disables it.
func (c *Cache) SetMetrics(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// SetPersister registers a walpersist.Persister that records every
// dirty/clean transition so a restart can recover which blocks owed a
// flush to the lower device. Passing nil (the default) disables it.
// Content itself is never recovered this way — the patch graph is
// in-memory only — so this is a bookkeeping aid for operators, not a
// substitute for flushing before shutdown.
func (c *Cache) SetPersister(p walpersist.Persister) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persister = p
}

// PersistErr returns the first error encountered writing to the
// registered Persister, if any. wbcache does not fail writes on a
// persist error; callers that care should poll this periodically.
func (c *Cache) PersistErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistErr
}

func (c *Cache) markDirtyLocked(number uint64) {
	if c.persister == nil {
		return
	}
	if err := c.persister.MarkDirty(number); err != nil && c.persistErr == nil {
		c.persistErr = err
	}
}

func (c *Cache) markCleanLocked(number uint64) {
	if c.persister == nil {
		return
	}
	if err := c.persister.MarkClean(number); err != nil && c.persistErr == nil {
		c.persistErr = err
	}
}

// reportGaugesLocked pushes the current dirty/resident counts to the
// registered Metrics, if any. Must be called with c.mu held.
func (c *Cache) reportGaugesLocked() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetDirtyBlocks(c.dblocks)
	c.metrics.SetResidentBlocks(len(c.hash))
}

func (c *Cache) Level() int        { return c.lower.Level() + 1 }
func (c *Cache) GraphIndex() int   { return c.graphIndex }
func (c *Cache) BlockSize() int    { return c.lower.BlockSize() }
func (c *Cache) AtomicSize() int   { return c.lower.AtomicSize() }
func (c *Cache) NumBlocks() uint64 { return c.lower.NumBlocks() }
func (c *Cache) GetWriteHead() *engine.Patch { return nil }

// GetBlockSpace is the back-pressure signal of §4.7: callers creating
// patches through this cache should throttle once it goes negative.
func (c *Cache) GetBlockSpace() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.softDBlocks - c.dblocks
}

// ReadBlock returns the cached descriptor for number, reading through
// to the lower device and inserting (evicting if necessary) on a miss.
func (c *Cache) ReadBlock(ctx context.Context, number uint64) (*engine.Descriptor, error) {
	c.mu.Lock()
	if nd, ok := c.hash[number]; ok && !nd.block.Synthetic {
		c.all.MoveToBack(nd.allElem)
		block := nd.block
		c.mu.Unlock()
		return block, nil
	}
	c.mu.Unlock()

	block, err := c.lower.ReadBlock(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("wbcache: read block %d: %w", number, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(number, block)
	return block, nil
}

// SyntheticReadBlock returns a fresh, unread descriptor for number
// without touching the lower device, for callers about to fully
// overwrite it.
func (c *Cache) SyntheticReadBlock(ctx context.Context, number uint64) (*engine.Descriptor, error) {
	c.mu.Lock()
	if nd, ok := c.hash[number]; ok {
		c.all.MoveToBack(nd.allElem)
		block := nd.block
		c.mu.Unlock()
		return block, nil
	}
	c.mu.Unlock()

	block, err := c.lower.SyntheticReadBlock(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("wbcache: synthetic read block %d: %w", number, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(number, block)
	return block, nil
}

// WriteBlock records block as number's current representation and
// marks it dirty. The patches responsible for block's contents must
// already have been created against it (with this cache as Owner)
// before calling WriteBlock; this call only updates cache bookkeeping
// — actual propagation to the lower device happens during Flush.
func (c *Cache) WriteBlock(_ context.Context, block *engine.Descriptor, number uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nd, ok := c.hash[number]
	if !ok {
		c.evictForSpaceLocked()
		nd = &node{number: number, block: block}
		nd.allElem = c.all.PushBack(nd)
		c.hash[number] = nd
	} else {
		nd.block = block
		c.all.MoveToBack(nd.allElem)
	}

	if nd.dirtyElem == nil {
		nd.dirtyElem = c.dirty.PushBack(nd)
		c.dblocks++
		c.markDirtyLocked(number)
	} else {
		c.dirty.MoveToBack(nd.dirtyElem)
	}
	c.reportGaugesLocked()
	return nil
}

func (c *Cache) insertLocked(number uint64, block *engine.Descriptor) {
	if _, ok := c.hash[number]; ok {
		return
	}
	c.evictForSpaceLocked()
	nd := &node{number: number, block: block}
	nd.allElem = c.all.PushBack(nd)
	c.hash[number] = nd
	c.reportGaugesLocked()
}

// evictForSpaceLocked drops clean entries from the LRU end of all
// until the cache is back under softBlocks, skipping any still-dirty
// node. Must be called with c.mu held.
func (c *Cache) evictForSpaceLocked() {
	if len(c.hash) < c.softBlocks {
		return
	}
	el := c.all.Front()
	for el != nil && len(c.hash) >= c.softBlocks {
		next := el.Next()
		nd := el.Value.(*node)
		if nd.dirtyElem == nil && nd.block.Empty() && nd.block.RefCount == 0 {
			c.all.Remove(nd.allElem)
			delete(c.hash, nd.number)
			if c.metrics != nil {
				c.metrics.Eviction()
			}
		}
		el = next
	}
	c.reportGaugesLocked()
}

func (c *Cache) unlinkDirtyLocked(nd *node) {
	if nd.dirtyElem == nil {
		return
	}
	c.dirty.Remove(nd.dirtyElem)
	nd.dirtyElem = nil
	c.dblocks--
	c.markCleanLocked(nd.number)
	c.reportGaugesLocked()
}

// FlightsExist and WaitForLandingRequests are no-ops: both concrete
// leaf devices (memdisk, fsdisk) dispatch WriteBlock synchronously, so
// this cache never has an asynchronous write outstanding. They are
// kept so callers written against an async-capable stack (§4.5) do not
// need a type switch to gate on a synchronous one.
func (c *Cache) FlightsExist() bool { return false }

func (c *Cache) WaitForLandingRequests(_ context.Context) error { return nil }
