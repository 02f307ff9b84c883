package blockdev

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// FsDisk is a raw-file-backed stable-storage block device (level 0)
// using ReadAt/WriteAt (pread/pwrite semantics), for the CLI demo and
// integration tests where blocks must survive process restart.
type FsDisk struct {
	mu sync.Mutex

	f          *os.File
	blockSize  int
	numBlocks  uint64
	graphIndex int

	cached map[uint64]*engine.Descriptor
}

// OpenFsDisk opens (creating if necessary) a file-backed disk of
// numBlocks blocks of blockSize bytes, setting the file to exactly that
// size up front (growing a shorter file, truncating a longer one) so
// every block offset is valid.
func OpenFsDisk(path string, blockSize int, numBlocks uint64, graphIndex int) (*FsDisk, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("fsdisk: open %s: %w", path, err)
	}
	size := int64(blockSize) * int64(numBlocks)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("fsdisk: truncate %s to %d: %w", path, size, err)
	}
	return &FsDisk{
		f:          f,
		blockSize:  blockSize,
		numBlocks:  numBlocks,
		graphIndex: graphIndex,
		cached:     make(map[uint64]*engine.Descriptor),
	}, nil
}

func (d *FsDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

func (d *FsDisk) Level() int        { return 0 }
func (d *FsDisk) GraphIndex() int   { return d.graphIndex }
func (d *FsDisk) BlockSize() int    { return d.blockSize }
func (d *FsDisk) AtomicSize() int   { return d.blockSize }
func (d *FsDisk) NumBlocks() uint64 { return d.numBlocks }

func (d *FsDisk) checkBounds(number uint64) error {
	if number >= d.numBlocks {
		return fmt.Errorf("fsdisk: block %d out of range [0,%d): %w", number, d.numBlocks, errs.ErrInvalidArgument)
	}
	return nil
}

func (d *FsDisk) offset(number uint64) int64 {
	return int64(number) * int64(d.blockSize)
}

// ReadBlock returns the cached descriptor for number, reading through
// to the file on first access.
func (d *FsDisk) ReadBlock(_ context.Context, number uint64) (*engine.Descriptor, error) {
	if err := d.checkBounds(number); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if desc, ok := d.cached[number]; ok {
		return desc, nil
	}
	buf := make([]byte, d.blockSize)
	if _, err := d.f.ReadAt(buf, d.offset(number)); err != nil {
		return nil, fmt.Errorf("fsdisk: read block %d: %w", number, err)
	}
	desc := engine.NewDescriptor(number, d.blockSize, buf, false)
	d.cached[number] = desc
	return desc, nil
}

// SyntheticReadBlock allocates a zero-filled, synthetic descriptor
// without touching the file.
func (d *FsDisk) SyntheticReadBlock(_ context.Context, number uint64) (*engine.Descriptor, error) {
	if err := d.checkBounds(number); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if desc, ok := d.cached[number]; ok {
		return desc, nil
	}
	desc := engine.NewDescriptor(number, d.blockSize, nil, true)
	d.cached[number] = desc
	return desc, nil
}

// WriteBlock persists block's data to the file at number.
func (d *FsDisk) WriteBlock(_ context.Context, block *engine.Descriptor, number uint64) error {
	if err := d.checkBounds(number); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.f.WriteAt(block.Data(), d.offset(number)); err != nil {
		return fmt.Errorf("fsdisk: write block %d: %w", number, err)
	}
	block.Synthetic = false
	d.cached[number] = block
	return nil
}

// Flush fsyncs the underlying file; FsDisk is the bottom of the stack.
func (d *FsDisk) Flush(_ context.Context, _ uint64) (FlushResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.f.Sync(); err != nil {
		return FlushNone, fmt.Errorf("fsdisk: sync: %w", err)
	}
	return FlushDone, nil
}

func (d *FsDisk) GetWriteHead() *engine.Patch { return nil }

func (d *FsDisk) GetBlockSpace() int { return int(d.numBlocks) }
