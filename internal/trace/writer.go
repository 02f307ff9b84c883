package trace

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer emits the wire format to an underlying io.Writer. Callers
// must call WriteHeader exactly once before any WriteEvent call.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w for trace emission.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader writes the magic, build date, timestamp, and the full
// opcode schema, then flushes. descriptors order is preserved on the
// wire and determines nothing semantically; it just needs to list
// every (module, opcode) pair events will reference.
func (tw *Writer) WriteHeader(buildDate string, timestamp uint32, descriptors []OpcodeDesc) error {
	if err := binary.Write(tw.w, binary.BigEndian, Magic); err != nil {
		return fmt.Errorf("trace: write magic: %w", err)
	}
	if err := writeCString(tw.w, buildDate); err != nil {
		return fmt.Errorf("trace: write build date: %w", err)
	}
	if err := binary.Write(tw.w, binary.BigEndian, timestamp); err != nil {
		return fmt.Errorf("trace: write header timestamp: %w", err)
	}
	for _, d := range descriptors {
		if err := tw.writeDescriptor(d); err != nil {
			return err
		}
	}
	// 0u16 terminates the schema section.
	if err := binary.Write(tw.w, binary.BigEndian, uint16(0)); err != nil {
		return fmt.Errorf("trace: write schema terminator: %w", err)
	}
	return tw.w.Flush()
}

func (tw *Writer) writeDescriptor(d OpcodeDesc) error {
	if err := binary.Write(tw.w, binary.BigEndian, d.Module); err != nil {
		return fmt.Errorf("trace: write descriptor module: %w", err)
	}
	if err := binary.Write(tw.w, binary.BigEndian, d.Opcode); err != nil {
		return fmt.Errorf("trace: write descriptor opcode: %w", err)
	}
	if err := writeCString(tw.w, d.Name); err != nil {
		return fmt.Errorf("trace: write descriptor name: %w", err)
	}
	for _, p := range d.Params {
		if err := tw.w.WriteByte(p.Size); err != nil {
			return fmt.Errorf("trace: write param size: %w", err)
		}
		if err := writeCString(tw.w, p.Name); err != nil {
			return fmt.Errorf("trace: write param name: %w", err)
		}
	}
	// 0u8 terminates this descriptor's parameter list.
	return tw.w.WriteByte(0)
}

// WriteEvent appends one event and flushes.
func (tw *Writer) WriteEvent(e Event) error {
	if err := binary.Write(tw.w, binary.BigEndian, e.Timestamp); err != nil {
		return fmt.Errorf("trace: write event timestamp: %w", err)
	}
	if err := writeCString(tw.w, e.File); err != nil {
		return fmt.Errorf("trace: write event file: %w", err)
	}
	if err := binary.Write(tw.w, binary.BigEndian, e.Line); err != nil {
		return fmt.Errorf("trace: write event line: %w", err)
	}
	if err := writeCString(tw.w, e.Function); err != nil {
		return fmt.Errorf("trace: write event function: %w", err)
	}
	if err := binary.Write(tw.w, binary.BigEndian, e.Module); err != nil {
		return fmt.Errorf("trace: write event module: %w", err)
	}
	if err := binary.Write(tw.w, binary.BigEndian, e.Opcode); err != nil {
		return fmt.Errorf("trace: write event opcode: %w", err)
	}
	for _, p := range e.Params {
		if int(p.Size) != len(p.Value) {
			return fmt.Errorf("trace: param size %d does not match value length %d", p.Size, len(p.Value))
		}
		if err := tw.w.WriteByte(p.Size); err != nil {
			return fmt.Errorf("trace: write param size: %w", err)
		}
		if _, err := tw.w.Write(p.Value); err != nil {
			return fmt.Errorf("trace: write param value: %w", err)
		}
	}
	// 0u16 terminates the parameter list (two zero bytes, not one —
	// the per-param size field is only a u8).
	if err := binary.Write(tw.w, binary.BigEndian, uint16(0)); err != nil {
		return fmt.Errorf("trace: write event param terminator: %w", err)
	}
	for _, addr := range e.Backtrace {
		if addr == 0 {
			return fmt.Errorf("trace: backtrace address 0 would be mistaken for the terminator")
		}
		if err := binary.Write(tw.w, binary.BigEndian, addr); err != nil {
			return fmt.Errorf("trace: write backtrace address: %w", err)
		}
	}
	// 0u32 terminates the backtrace.
	if err := binary.Write(tw.w, binary.BigEndian, uint32(0)); err != nil {
		return fmt.Errorf("trace: write backtrace terminator: %w", err)
	}
	return tw.w.Flush()
}

func writeCString(w *bufio.Writer, s string) error {
	if _, err := w.WriteString(s); err != nil {
		return err
	}
	return w.WriteByte(0)
}
