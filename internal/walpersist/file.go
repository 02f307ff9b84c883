package walpersist

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	logMagic      = "FSWL" // Featherstitch WAL
	logVersion    = uint16(1)
	logHeaderSize = 16 // magic(4) + version(2) + reserved(10)
)

const (
	entryDirty uint8 = 0
	entryClean uint8 = 1
)

// entrySize is the fixed on-disk size of one log entry: a one-byte type
// tag plus an 8-byte block number. No length-prefixed fields means no
// partial-entry ambiguity on recovery: a short read at EOF is always a
// torn last entry, and Recover stops there rather than erroring.
const entrySize = 1 + 8

// FilePersister is a simple append-only, file-backed Persister. Every
// MarkDirty/MarkClean call is one fixed-size write at the current end of
// file; Sync flushes and fsyncs. Unlike the mmap-backed logs this format
// is descended from, there is no growable memory mapping to manage —
// just a file offset that only ever grows.
type FilePersister struct {
	mu       sync.Mutex
	file     *os.File
	offset   int64 // next write position
	closed   bool
}

// NewFilePersister opens (or creates) the log at path. If the file is
// new, a header is written. If it exists, the header is validated but
// the log itself is NOT replayed — call Recover for that.
func NewFilePersister(path string) (*FilePersister, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("walpersist: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("walpersist: stat: %w", err)
	}

	p := &FilePersister{file: f}

	if info.Size() == 0 {
		if err := p.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		p.offset = logHeaderSize
		return p, nil
	}

	if info.Size() < logHeaderSize {
		f.Close()
		return nil, ErrCorrupted
	}
	if err := p.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	p.offset = info.Size()
	return p, nil
}

func (p *FilePersister) writeHeader() error {
	var hdr [logHeaderSize]byte
	copy(hdr[0:4], logMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], logVersion)
	if _, err := p.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("walpersist: write header: %w", err)
	}
	return nil
}

func (p *FilePersister) readHeader() error {
	var hdr [logHeaderSize]byte
	if _, err := p.file.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("walpersist: read header: %w", err)
	}
	if string(hdr[0:4]) != logMagic {
		return ErrCorrupted
	}
	if binary.LittleEndian.Uint16(hdr[4:6]) != logVersion {
		return ErrVersionMismatch
	}
	return nil
}

func (p *FilePersister) append(entryType uint8, block uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	var buf [entrySize]byte
	buf[0] = entryType
	binary.LittleEndian.PutUint64(buf[1:9], block)

	n, err := p.file.WriteAt(buf[:], p.offset)
	if err != nil {
		return fmt.Errorf("walpersist: append: %w", err)
	}
	p.offset += int64(n)
	return nil
}

// MarkDirty implements Persister.
func (p *FilePersister) MarkDirty(block uint64) error { return p.append(entryDirty, block) }

// MarkClean implements Persister.
func (p *FilePersister) MarkClean(block uint64) error { return p.append(entryClean, block) }

// Sync implements Persister. The file is written with WriteAt rather
// than a buffered writer, so there is nothing to flush in userspace;
// Sync only needs to push the kernel's page cache to disk.
func (p *FilePersister) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("walpersist: sync: %w", err)
	}
	return nil
}

// Recover replays every entry from logHeaderSize to the current end of
// file and returns the set of blocks left dirty. It must be called
// before the first MarkDirty/MarkClean of a session; calling it again
// later would simply replay the same committed history.
func (p *FilePersister) Recover() (map[uint64]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	dirty := make(map[uint64]bool)
	r := io.NewSectionReader(p.file, logHeaderSize, p.offset-logHeaderSize)
	var buf [entrySize]byte
	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// Torn write from a crash mid-append; stop here rather
			// than reject the whole log.
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walpersist: recover: %w", err)
		}

		block := binary.LittleEndian.Uint64(buf[1:9])
		switch buf[0] {
		case entryDirty:
			dirty[block] = true
		case entryClean:
			delete(dirty, block)
		default:
			return nil, ErrCorrupted
		}
	}
	return dirty, nil
}

// Close implements Persister.
func (p *FilePersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return fmt.Errorf("walpersist: sync on close: %w", err)
	}
	return p.file.Close()
}

// Enabled implements Persister.
func (p *FilePersister) Enabled() bool { return true }

var _ Persister = (*FilePersister)(nil)
