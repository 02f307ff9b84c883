package trace

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ucla-readable/featherstitch/pkg/engine"
)

// ModulePatch is the single module this emitter reports under: patch
// creation. A richer emitter could add modules for revision/cache
// events; the schema format supports it, but nothing in this engine
// currently needs more than "a patch was created" to satisfy P5.
const ModulePatch uint16 = 1

// Opcodes within ModulePatch, one per engine.Type.
const (
	OpcodeCreateBit   uint16 = iota + 1 // engine.TypeBit
	OpcodeCreateByte                    // engine.TypeByte
	OpcodeCreateEmpty                   // engine.TypeEmpty
)

// Schema returns the ModulePatch descriptors for use in WriteHeader.
func Schema() []OpcodeDesc {
	patchID := ParamDesc{Size: 8, Name: "patch_id"}
	return []OpcodeDesc{
		{
			Module: ModulePatch, Opcode: OpcodeCreateBit, Name: "create_bit",
			Params: []ParamDesc{patchID, {Size: 2, Name: "offset"}},
		},
		{
			Module: ModulePatch, Opcode: OpcodeCreateByte, Name: "create_byte",
			Params: []ParamDesc{patchID, {Size: 2, Name: "offset"}, {Size: 2, Name: "length"}},
		},
		{
			Module: ModulePatch, Opcode: OpcodeCreateEmpty, Name: "create_empty",
			Params: []ParamDesc{patchID},
		},
	}
}

// Emitter implements engine.TraceHook: every patch creation becomes
// exactly one event written through w. Register it on an *engine.Engine
// via SetTraceHook so create_byte_atomic's single-patch guarantee (P5)
// also becomes a single-event guarantee on the wire.
type Emitter struct {
	w   *Writer
	now func() uint32

	mu      sync.Mutex
	lastErr error
}

// NewEmitter wraps w. now supplies each event's timestamp; callers pass
// a real clock in production and a fixed or incrementing stub in tests
// (Date.now()-style wall-clock reads don't belong in this package).
func NewEmitter(w *Writer, now func() uint32) *Emitter {
	return &Emitter{w: w, now: now}
}

// OnPatchCreate implements engine.TraceHook.
func (em *Emitter) OnPatchCreate(p *engine.Patch) {
	opcode, params := describePatch(p)
	err := em.w.WriteEvent(Event{
		Timestamp: em.now(),
		Module:    ModulePatch,
		Opcode:    opcode,
		Params:    params,
	})
	if err != nil {
		em.mu.Lock()
		if em.lastErr == nil {
			em.lastErr = fmt.Errorf("trace emitter: %w", err)
		}
		em.mu.Unlock()
	}
}

// Err returns the first write error encountered, if any. OnPatchCreate
// has no error return (it implements a hook interface the engine calls
// under its own lock), so callers that care about a dropped trace
// check this afterward.
func (em *Emitter) Err() error {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.lastErr
}

func describePatch(p *engine.Patch) (uint16, []Param) {
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, p.ID())
	idParam := Param{Size: 8, Value: id}

	switch p.Type {
	case engine.TypeBit:
		offset := make([]byte, 2)
		binary.BigEndian.PutUint16(offset, p.Offset)
		return OpcodeCreateBit, []Param{idParam, {Size: 2, Value: offset}}
	case engine.TypeByte:
		offset := make([]byte, 2)
		binary.BigEndian.PutUint16(offset, p.Offset)
		length := make([]byte, 2)
		binary.BigEndian.PutUint16(length, p.Length)
		return OpcodeCreateByte, []Param{idParam, {Size: 2, Value: offset}, {Size: 2, Value: length}}
	default:
		return OpcodeCreateEmpty, []Param{idParam}
	}
}
