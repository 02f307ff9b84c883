// Package blockdev defines the block device trait patches and caches
// are stacked on (§6), plus two concrete stable-storage leaves
// (memdisk, fsdisk) that exercise it end to end.
package blockdev

import (
	"context"

	"github.com/ucla-readable/featherstitch/pkg/engine"
)

// FlushResult is the outcome of a Flush call, per §6.
type FlushResult int

const (
	FlushDone FlushResult = iota
	FlushSome
	FlushNone
	FlushEmpty
)

func (r FlushResult) String() string {
	switch r {
	case FlushDone:
		return "FLUSH_DONE"
	case FlushSome:
		return "FLUSH_SOME"
	case FlushNone:
		return "FLUSH_NONE"
	case FlushEmpty:
		return "FLUSH_EMPTY"
	default:
		return "FLUSH_UNKNOWN"
	}
}

// FlushDevice is the sentinel block number meaning "flush everything",
// passed to Flush instead of a specific block number.
const FlushDevice = ^uint64(0)

// Device is the block device trait (§6 table), embedding engine.Owner
// so every Device can own patches directly.
type Device interface {
	engine.Owner

	// BlockSize is the size in bytes of one block on this device.
	BlockSize() int
	// AtomicSize is the largest write guaranteed atomic by the
	// underlying medium (<= BlockSize).
	AtomicSize() int
	// NumBlocks is the device's capacity in blocks.
	NumBlocks() uint64

	// ReadBlock returns the bdesc for the given block, reading through
	// to the medium if not already cached by this device.
	ReadBlock(ctx context.Context, number uint64) (*engine.Descriptor, error)
	// SyntheticReadBlock allocates an unread buffer for a block this
	// device is about to fully overwrite, avoiding a real read.
	SyntheticReadBlock(ctx context.Context, number uint64) (*engine.Descriptor, error)
	// WriteBlock writes block to the given target block number.
	WriteBlock(ctx context.Context, block *engine.Descriptor, number uint64) error
	// Flush drains patches at or below this device's level for the
	// given block (or FlushDevice for every dirty block).
	Flush(ctx context.Context, number uint64) (FlushResult, error)
	// GetWriteHead returns an optional barrier patch that freshly
	// created patches through this device should depend on.
	GetWriteHead() *engine.Patch
	// GetBlockSpace returns the signed slack against this device's soft
	// limit; callers throttle writes once it goes negative.
	GetBlockSpace() int
}
