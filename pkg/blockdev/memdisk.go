package blockdev

import (
	"context"
	"fmt"
	"sync"

	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// MemDisk is an in-memory stable-storage block device (level 0),
// used by every unit test and by scenario tests S1-S6. It never
// returns a write failure and never blocks.
type MemDisk struct {
	mu sync.Mutex

	blockSize  int
	numBlocks  uint64
	graphIndex int

	storage [][]byte
	cached  map[uint64]*engine.Descriptor
}

// NewMemDisk allocates a zero-filled in-memory disk of numBlocks
// blocks of blockSize bytes each.
func NewMemDisk(blockSize int, numBlocks uint64, graphIndex int) *MemDisk {
	storage := make([][]byte, numBlocks)
	for i := range storage {
		storage[i] = make([]byte, blockSize)
	}
	return &MemDisk{
		blockSize:  blockSize,
		numBlocks:  numBlocks,
		graphIndex: graphIndex,
		storage:    storage,
		cached:     make(map[uint64]*engine.Descriptor),
	}
}

func (m *MemDisk) Level() int      { return 0 }
func (m *MemDisk) GraphIndex() int { return m.graphIndex }
func (m *MemDisk) BlockSize() int  { return m.blockSize }
func (m *MemDisk) AtomicSize() int { return m.blockSize }
func (m *MemDisk) NumBlocks() uint64 { return m.numBlocks }

func (m *MemDisk) checkBounds(number uint64) error {
	if number >= m.numBlocks {
		return fmt.Errorf("memdisk: block %d out of range [0,%d): %w", number, m.numBlocks, errs.ErrInvalidArgument)
	}
	return nil
}

// ReadBlock returns the cached descriptor for number, populating it
// from the backing store on first access.
func (m *MemDisk) ReadBlock(_ context.Context, number uint64) (*engine.Descriptor, error) {
	if err := m.checkBounds(number); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.cached[number]; ok {
		return d, nil
	}
	data := append([]byte(nil), m.storage[number]...)
	d := engine.NewDescriptor(number, m.blockSize, data, false)
	m.cached[number] = d
	return d, nil
}

// SyntheticReadBlock allocates a zero-filled, synthetic descriptor for
// a block this caller is about to fully overwrite.
func (m *MemDisk) SyntheticReadBlock(_ context.Context, number uint64) (*engine.Descriptor, error) {
	if err := m.checkBounds(number); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.cached[number]; ok {
		return d, nil
	}
	d := engine.NewDescriptor(number, m.blockSize, nil, true)
	m.cached[number] = d
	return d, nil
}

// WriteBlock persists block's current data to the backing store at
// number and clears the synthetic flag.
func (m *MemDisk) WriteBlock(_ context.Context, block *engine.Descriptor, number uint64) error {
	if err := m.checkBounds(number); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.storage[number], block.Data())
	block.Synthetic = false
	m.cached[number] = block
	return nil
}

// Flush is a no-op: MemDisk is the bottom of the stack, nothing to
// drain further down.
func (m *MemDisk) Flush(context.Context, uint64) (FlushResult, error) {
	return FlushDone, nil
}

func (m *MemDisk) GetWriteHead() *engine.Patch { return nil }

// GetBlockSpace reports effectively unlimited slack; MemDisk has no
// soft limit of its own.
func (m *MemDisk) GetBlockSpace() int { return int(m.numBlocks) }
