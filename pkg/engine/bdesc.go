package engine

import "container/list"

// Descriptor is a bdesc: an in-memory handle to a disk block, shared by
// reference count, carrying every patch currently attached to it plus
// the per-level and per-graph-index indices the scheduler needs.
type Descriptor struct {
	Number uint64
	Length int

	data []byte

	RefCount         int
	AutoreleaseCount int
	Synthetic        bool
	InFlight         bool

	// AllPatches holds every patch attached to this block, newest-first
	// (new patches are pushed to the front so overlap attach walks
	// existing patches in newest-first order per §4.3).
	AllPatches *list.List

	// ReadyPatches[level] holds patches owned by a BD at that level with
	// no pending before at or above their own level (invariant I5).
	ReadyPatches [MaxLevel]*list.List

	// IndexPatches[graph_index] holds every patch currently owned by the
	// BD with that graph index, regardless of readiness.
	IndexPatches []*list.List
}

// NewDescriptor allocates a bdesc for the given block number and length
// (bytes, expected to be a multiple of the owning BD's block size).
// data is nil for a synthetic (not-yet-populated) block.
func NewDescriptor(number uint64, length int, data []byte, synthetic bool) *Descriptor {
	d := &Descriptor{
		Number:    number,
		Length:    length,
		Synthetic: synthetic,
	}
	if data != nil {
		d.data = data
	} else {
		d.data = make([]byte, length)
	}
	d.AllPatches = list.New()
	for i := range d.ReadyPatches {
		d.ReadyPatches[i] = list.New()
	}
	return d
}

// Data returns the block's data buffer. Callers must not retain slices
// across apply/rollback calls without copying: the buffer is mutated in
// place by the owning engine only.
func (d *Descriptor) Data() []byte { return d.data }

func (d *Descriptor) indexList(graphIndex int) *list.List {
	for len(d.IndexPatches) <= graphIndex {
		d.IndexPatches = append(d.IndexPatches, nil)
	}
	if d.IndexPatches[graphIndex] == nil {
		d.IndexPatches[graphIndex] = list.New()
	}
	return d.IndexPatches[graphIndex]
}

// Retain increments the block's reference count.
func (d *Descriptor) Retain() { d.RefCount++ }

// Release decrements the block's reference count. Callers are
// responsible for discarding the descriptor once RefCount reaches zero
// and AllPatches is empty; the engine itself never frees a Descriptor
// out from under a caller still holding patches on it.
func (d *Descriptor) Release() {
	if d.RefCount > 0 {
		d.RefCount--
	}
}

// Empty reports whether the block has no attached patches, i.e. it is
// safe to evict or free.
func (d *Descriptor) Empty() bool { return d.AllPatches.Len() == 0 }
