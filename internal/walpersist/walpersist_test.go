package walpersist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilePersisterRecoversDirtySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	p, err := NewFilePersister(path)
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	if !p.Enabled() {
		t.Fatal("Enabled() = false, want true")
	}

	for _, block := range []uint64{1, 2, 3} {
		if err := p.MarkDirty(block); err != nil {
			t.Fatalf("MarkDirty(%d): %v", block, err)
		}
	}
	if err := p.MarkClean(2); err != nil {
		t.Fatalf("MarkClean(2): %v", err)
	}
	if err := p.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewFilePersister(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	dirty, err := reopened.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	want := map[uint64]bool{1: true, 3: true}
	if len(dirty) != len(want) {
		t.Fatalf("Recover() = %v, want %v", dirty, want)
	}
	for block := range want {
		if !dirty[block] {
			t.Errorf("block %d missing from recovered dirty set", block)
		}
	}
	if dirty[2] {
		t.Errorf("block 2 should have been cleaned, still marked dirty")
	}
}

func TestFilePersisterRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	p, err := NewFilePersister(path)
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	p.Close()

	// Corrupt the header.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := f.WriteAt([]byte("XXXX"), 0); err != nil {
		t.Fatalf("corrupt header: %v", err)
	}
	f.Close()

	if _, err := NewFilePersister(path); err != ErrCorrupted {
		t.Fatalf("NewFilePersister after corruption = %v, want ErrCorrupted", err)
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	p, err := NewFilePersister(path)
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.MarkDirty(1); err != ErrClosed {
		t.Errorf("MarkDirty after Close = %v, want ErrClosed", err)
	}
	if _, err := p.Recover(); err != ErrClosed {
		t.Errorf("Recover after Close = %v, want ErrClosed", err)
	}
}

func TestNullPersisterIsNoOp(t *testing.T) {
	p := NewNullPersister()
	if p.Enabled() {
		t.Fatal("NullPersister.Enabled() = true, want false")
	}
	if err := p.MarkDirty(5); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	dirty, err := p.Recover()
	if err != nil || dirty != nil {
		t.Fatalf("Recover() = (%v, %v), want (nil, nil)", dirty, err)
	}
}
