// Package trace implements the debug trace wire format of §6: a
// fixed-magic header, a build date and timestamp, a schema section
// describing every (module, opcode) pair the emitter may produce, and
// then a stream of big-endian binary events. The format must be kept
// bit-exact for existing analysis tooling, so every field width and
// terminator here is copied from the spec literally rather than
// reshaped into something more "idiomatic".
package trace

// Magic is the 4-byte file signature ("@FDB" read as a big-endian
// uint32).
const Magic uint32 = 0x40464442

// ParamDesc describes one parameter of an opcode in the schema
// section: its encoded size in bytes and its name.
type ParamDesc struct {
	Size byte
	Name string
}

// OpcodeDesc describes one (module, opcode) pair's event shape.
type OpcodeDesc struct {
	Module uint16
	Opcode uint16
	Name   string
	Params []ParamDesc
}

// Param is one (size, value) pair attached to an emitted Event. Size
// must equal len(Value); it exists as a separate field because the
// wire format carries it explicitly rather than inferring it.
type Param struct {
	Size  byte
	Value []byte
}

// Event is one trace record.
type Event struct {
	Timestamp uint32
	File      string
	Line      uint32
	Function  string
	Module    uint16
	Opcode    uint16
	Params    []Param
	Backtrace []uint32
}
