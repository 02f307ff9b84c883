package engine

import (
	"container/list"
	"fmt"

	"github.com/ucla-readable/featherstitch/pkg/errs"
)

// Flags is the patch flag bitset of §3.
type Flags uint32

const (
	FlagMarked Flags = 1 << iota
	FlagRollback
	FlagWritten
	FlagFreeing
	FlagData
	FlagBitEmpty
	FlagOverlap
	FlagSafeAfter
	FlagSetEmpty
	FlagInFlight
	FlagNoPatchgroup
	FlagFullOverlap
)

func (f Flags) String() string {
	names := []struct {
		bit  Flags
		name string
	}{
		{FlagMarked, "MARKED"}, {FlagRollback, "ROLLBACK"}, {FlagWritten, "WRITTEN"},
		{FlagFreeing, "FREEING"}, {FlagData, "DATA"}, {FlagBitEmpty, "BIT_EMPTY"},
		{FlagOverlap, "OVERLAP"}, {FlagSafeAfter, "SAFE_AFTER"}, {FlagSetEmpty, "SET_EMPTY"},
		{FlagInFlight, "INFLIGHT"}, {FlagNoPatchgroup, "NO_PATCHGROUP"}, {FlagFullOverlap, "FULLOVERLAP"},
	}
	s := ""
	for _, n := range names {
		if f&n.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "0"
	}
	return s
}

// Type identifies a patch's variant.
type Type int

const (
	TypeBit Type = iota
	TypeByte
	TypeEmpty
)

func (t Type) String() string {
	switch t {
	case TypeBit:
		return "BIT"
	case TypeByte:
		return "BYTE"
	case TypeEmpty:
		return "EMPTY"
	default:
		return "UNKNOWN"
	}
}

// Patch is one BIT/BYTE/EMPTY modification to a Descriptor, owned by a
// specific block device, with before/after edge lists and weak
// reference chains.
type Patch struct {
	id uint64

	Owner Owner
	Block *Descriptor
	Type  Type
	Flags Flags

	Offset uint16
	Length uint16

	// BIT variant.
	BitXor [4]byte
	BitOr  [4]byte

	// BYTE variant. BytePre is the captured pre-image for rollback; a
	// nil BytePre means the patch is not rollbackable (data == NULL at
	// creation, regardless of which constructor was used — see
	// DESIGN.md's resolution of Open Question (a)). BytePost is the
	// image apply() (re)installs.
	BytePre  []byte
	BytePost []byte

	Befores *list.List // of *Dep, After == this patch
	Afters  *list.List // of *Dep, Before == this patch

	weakHead *WeakRef

	nbefores [MaxLevel]uint32

	allElem   *list.Element
	readyElem *list.Element
	indexElem *list.Element
}

// ID returns a process-local, monotonically increasing identifier
// assigned at creation, used for logging and the debug trace.
func (p *Patch) ID() uint64 { return p.id }

func newPatch(e *Engine, owner Owner, block *Descriptor, typ Type) *Patch {
	p := &Patch{
		id:      e.nextID(),
		Owner:   owner,
		Block:   block,
		Type:    typ,
		Befores: list.New(),
		Afters:  list.New(),
	}
	return p
}

// beforeLevel returns the maximum level among direct befores, or
// NoLevel if there are none (patch_before_level).
func (p *Patch) beforeLevel() int {
	for i := MaxLevel; i > 0; i-- {
		if p.nbefores[i-1] != 0 {
			return i - 1
		}
	}
	return NoLevel
}

// Level returns the patch's scheduling level (patch_level): the
// owner's level, +1 if the patch is in flight, or the max before-level
// for an ownerless EMPTY hub.
func (p *Patch) Level() int {
	if p.Owner != nil {
		if p.Flags&FlagInFlight != 0 {
			return p.Owner.Level() + 1
		}
		return p.Owner.Level()
	}
	return p.beforeLevel()
}

// Ready reports whether the patch has no owner-blocking before,
// i.e. whether it belongs in ready_patches[owner.level] (invariant I5).
func (p *Patch) Ready() bool {
	if p.Owner == nil {
		return false
	}
	bl := p.beforeLevel()
	return bl == NoLevel || bl < p.Owner.Level()
}

// Rollbackable reports whether the patch may be rolled back (I6): BIT
// and EMPTY patches always are; a BYTE patch is only if its pre-image
// was captured.
func (p *Patch) Rollbackable() bool {
	return p.Type != TypeByte || p.BytePre != nil
}

func (p *Patch) linkAllPatches() {
	if p.Block == nil {
		return
	}
	p.allElem = p.Block.AllPatches.PushFront(p)
}

func (p *Patch) unlinkAllPatches() {
	if p.Block == nil || p.allElem == nil {
		return
	}
	p.Block.AllPatches.Remove(p.allElem)
	p.allElem = nil
}

func (p *Patch) linkIndexPatches() {
	if p.Block == nil || p.Owner == nil {
		return
	}
	p.indexElem = p.Block.indexList(p.Owner.GraphIndex()).PushFront(p)
}

func (p *Patch) unlinkIndexPatches() {
	if p.Block == nil || p.Owner == nil || p.indexElem == nil {
		return
	}
	p.Block.indexList(p.Owner.GraphIndex()).Remove(p.indexElem)
	p.indexElem = nil
}

// updateReadyPatches links or unlinks p from its block's
// ready_patches[owner.level] list to match Ready(), mirroring
// patch_update_ready_patches.
func (p *Patch) updateReadyPatches() {
	if p.Block == nil || p.Owner == nil {
		return
	}
	ready := p.Ready()
	inList := p.readyElem != nil
	switch {
	case inList && !ready:
		p.Block.ReadyPatches[p.Owner.Level()].Remove(p.readyElem)
		p.readyElem = nil
	case !inList && ready:
		p.readyElem = p.Block.ReadyPatches[p.Owner.Level()].PushFront(p)
	}
}

// CreateEmpty creates a non-data EMPTY hub, used for graph bookkeeping
// (patchgroup head/tail nodes, set-EMPTY flattening hubs).
func (e *Engine) CreateEmpty(owner Owner, befores ...*Patch) (*Patch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := newPatch(e, owner, nil, TypeEmpty)
	return e.finishCreate(p, befores)
}

// CreateBit creates a BIT patch flipping the bits set in xor at the
// given 4-byte-aligned offset.
func (e *Engine) CreateBit(block *Descriptor, owner Owner, offset uint16, xor [4]byte, befores ...*Patch) (*Patch, error) {
	if block == nil || owner == nil {
		return nil, fmt.Errorf("create_bit: %w", errs.ErrInvalidArgument)
	}
	if int(offset)+4 > block.Length {
		return nil, fmt.Errorf("create_bit: offset %d+4 exceeds block length %d: %w", offset, block.Length, errs.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p := newPatch(e, owner, block, TypeBit)
	p.Offset = offset
	p.Length = 4
	p.BitXor = xor
	p.BitOr = xor

	applyBitXor(block.data[offset:offset+4], xor)

	return e.finishCreate(p, befores)
}

// CreateByte creates a BYTE patch replacing length bytes at offset. If
// data is nil the region is zero-filled and the patch is not
// rollbackable (see DESIGN.md, Open Question (a)); otherwise the
// pre-image is captured and the patch may later be rolled back.
func (e *Engine) CreateByte(block *Descriptor, owner Owner, offset, length uint16, data []byte, befores ...*Patch) (*Patch, error) {
	return e.createByte(block, owner, offset, length, data, befores)
}

// CreateByteAtomic is identical to CreateByte but documents (and, via
// the debug trace emitter in package trace, enforces) that exactly one
// patch — and one trace event — is produced, satisfying P5.
func (e *Engine) CreateByteAtomic(block *Descriptor, owner Owner, offset, length uint16, data []byte, befores ...*Patch) (*Patch, error) {
	return e.createByte(block, owner, offset, length, data, befores)
}

func (e *Engine) createByte(block *Descriptor, owner Owner, offset, length uint16, data []byte, befores []*Patch) (*Patch, error) {
	if block == nil || owner == nil {
		return nil, fmt.Errorf("create_byte: %w", errs.ErrInvalidArgument)
	}
	if int(offset)+int(length) > block.Length {
		return nil, fmt.Errorf("create_byte: offset %d+length %d exceeds block length %d: %w", offset, length, block.Length, errs.ErrInvalidArgument)
	}
	if data != nil && len(data) != int(length) {
		return nil, fmt.Errorf("create_byte: data length %d != length %d: %w", len(data), length, errs.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := newPatch(e, owner, block, TypeByte)
	p.Offset = offset
	p.Length = length

	region := block.data[offset : int(offset)+int(length)]
	if data != nil {
		p.BytePre = append([]byte(nil), region...)
		p.BytePost = append([]byte(nil), data...)
	} else {
		// NULL data: not rollbackable, matching the original's
		// "NULL data implies patch need not (and cannot) be rolled
		// back" regardless of call site.
		p.BytePost = make([]byte, length)
	}
	copy(region, p.BytePost)

	return e.finishCreate(p, befores)
}

// CreateInit creates a BYTE patch zero-filling the entire block, not
// rollbackable, for use on newly allocated blocks.
func (e *Engine) CreateInit(block *Descriptor, owner Owner, befores ...*Patch) (*Patch, error) {
	return e.createByte(block, owner, 0, uint16(block.Length), nil, befores)
}

// CreateFull creates a BYTE patch writing data over the entire block,
// rollbackable like any other fully-specified BYTE patch.
func (e *Engine) CreateFull(block *Descriptor, owner Owner, data []byte, befores ...*Patch) (*Patch, error) {
	return e.createByte(block, owner, 0, uint16(block.Length), data, befores)
}

func applyBitXor(region []byte, mask [4]byte) {
	for i := range region {
		region[i] ^= mask[i]
	}
}

// finishCreate links the new patch into the block, attaches the pass
// set plus the engaged patchgroup scope's bottom (if any), performs
// overlap attach, and updates the ready list. Must be called with
// e.mu held.
func (e *Engine) finishCreate(p *Patch, befores []*Patch) (*Patch, error) {
	p.linkAllPatches()
	p.linkIndexPatches()

	for _, b := range befores {
		if b == nil {
			continue
		}
		if err := e.addDependLocked(p, b); err != nil {
			p.unlinkAllPatches()
			p.unlinkIndexPatches()
			return nil, err
		}
	}

	if e.pgHook != nil {
		if bottom := e.pgHook.Bottom(); bottom != nil && bottom != p {
			if err := e.addDependLocked(p, bottom); err != nil {
				p.unlinkAllPatches()
				p.unlinkIndexPatches()
				return nil, err
			}
		}
		e.pgHook.NotifyCreated(p)
	}

	if err := e.overlapAttachLocked(p); err != nil {
		return nil, err
	}

	p.updateReadyPatches()

	if e.traceHook != nil {
		e.traceHook.OnPatchCreate(p)
	}
	e.liveGraphSize++
	if e.metrics != nil {
		e.metrics.PatchCreated()
		e.metrics.SetLiveGraphSize(e.liveGraphSize)
	}
	return p, nil
}

// overlapAttachLocked compares p against the other patches already on
// its block (newest-first, i.e. everything currently in AllPatches,
// since p itself was just linked to the front) and adds a dependency
// for every overlap found, per §4.3.
func (e *Engine) overlapAttachLocked(p *Patch) error {
	if p.Block == nil {
		return nil
	}
	for el := p.allElem.Next(); el != nil; {
		next := el.Next()
		old := el.Value.(*Patch)
		degree := overlapCheck(p, old)
		if degree != 0 {
			if err := e.addDependLocked(p, old); err != nil {
				return err
			}
			if degree == 2 {
				old.Flags |= FlagOverlap | FlagFullOverlap
			}
		}
		el = next
	}
	return nil
}

// Overlap exposes overlapCheck to other packages (the revision tail
// needs it to order same-block rollbacks): 0 = disjoint, 1 = partial
// overlap, 2 = a completely overlaps b.
func Overlap(a, b *Patch) int { return overlapCheck(a, b) }

// overlapCheck implements patch_overlap_check: 0 = disjoint, 1 =
// partial overlap, 2 = a completely overlaps b.
func overlapCheck(a, b *Patch) int {
	if int(a.Offset) >= int(b.Offset)+int(b.Length) || int(b.Offset) >= int(a.Offset)+int(a.Length) {
		return 0
	}
	if a.Type == TypeBit && b.Type == TypeBit {
		shared := andMask(a.BitOr, b.BitOr)
		if isZero(shared) {
			return 0
		}
		if shared == b.BitOr {
			return 2
		}
		return 1
	}
	if int(a.Offset) <= int(b.Offset) && int(a.Offset)+int(a.Length) >= int(b.Offset)+int(b.Length) {
		return 2
	}
	return 1
}

func andMask(a, b [4]byte) [4]byte {
	var r [4]byte
	for i := range r {
		r[i] = a[i] & b[i]
	}
	return r
}

func isZero(m [4]byte) bool {
	return m == [4]byte{}
}

// DeclareSetEmpty marks an EMPTY patch as a "set EMPTY" hub: any future
// AddDepend naming it as a before is transparently redirected to its
// own befores instead (patch_set_empty_declare).
func (p *Patch) DeclareSetEmpty() {
	if p.Type == TypeEmpty {
		p.Flags |= FlagSetEmpty
	}
}
