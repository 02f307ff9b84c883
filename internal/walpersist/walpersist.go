// Package walpersist gives the write-back cache (pkg/wbcache) a way to
// remember which blocks were dirty across a process restart.
//
// The dependency engine's patch graph (pkg/engine) is purely in-memory;
// on restart it is empty, and any block the cache had marked dirty but
// not yet flushed is, as far as the engine is concerned, clean. That is
// fine for the in-memory ordering guarantees this module provides, but
// it means a restart can silently drop the fact that a block still owed
// a flush to the backing device. walpersist closes that gap: the cache
// appends a record every time a block becomes dirty or is flushed clean,
// and on startup Recover replays the log to reconstruct the dirty set.
//
// The on-disk format is a single append-only log, grounded on the same
// log-of-entries shape as a conventional write-ahead log but without
// mmap: every append is an unbuffered WriteAt at the end of the log, and
// Sync fsyncs the file, which is
// simple enough to reason about and fast enough for the rate at which
// blocks transition dirty/clean.
package walpersist

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed
	// persister.
	ErrClosed = errors.New("walpersist: persister is closed")

	// ErrCorrupted is returned when the log file's header or an entry
	// fails validation during Recover.
	ErrCorrupted = errors.New("walpersist: log corrupted")

	// ErrVersionMismatch is returned when the log file's version does
	// not match what this build of walpersist writes.
	ErrVersionMismatch = errors.New("walpersist: log version mismatch")
)

// Persister is the seam pkg/wbcache uses to make dirty/clean block
// transitions durable. Implementations must be safe for concurrent use.
type Persister interface {
	// MarkDirty records that block is now dirty (has unflushed patches).
	MarkDirty(block uint64) error

	// MarkClean records that block has been flushed to the backing
	// device and is no longer dirty.
	MarkClean(block uint64) error

	// Sync forces buffered writes to durable storage.
	Sync() error

	// Recover replays the log and returns the set of blocks that were
	// dirty at the time the log was last synced. Called once at
	// startup, before any MarkDirty/MarkClean call.
	Recover() (map[uint64]bool, error)

	// Close syncs pending data and releases the underlying file.
	Close() error

	// Enabled reports whether this persister actually persists, so
	// callers can skip Recover's cost when it doesn't.
	Enabled() bool
}

// NullPersister is a no-op Persister for when WAL persistence is
// disabled (the default: fstitchd opens a file persister only when a WAL
// path is given with the start command's --wal flag).
type NullPersister struct{}

// NewNullPersister returns a Persister that discards everything.
func NewNullPersister() *NullPersister { return &NullPersister{} }

func (NullPersister) MarkDirty(block uint64) error { return nil }
func (NullPersister) MarkClean(block uint64) error { return nil }
func (NullPersister) Sync() error                  { return nil }
func (NullPersister) Recover() (map[uint64]bool, error) {
	return nil, nil
}
func (NullPersister) Close() error   { return nil }
func (NullPersister) Enabled() bool  { return false }

var _ Persister = NullPersister{}
