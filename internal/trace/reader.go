package trace

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader decodes the wire format written by Writer.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for trace decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadHeader reads the magic, build date, timestamp, and opcode
// schema. It returns an error if the magic does not match.
func (tr *Reader) ReadHeader() (buildDate string, timestamp uint32, descriptors []OpcodeDesc, err error) {
	var magic uint32
	if err = binary.Read(tr.r, binary.BigEndian, &magic); err != nil {
		return "", 0, nil, fmt.Errorf("trace: read magic: %w", err)
	}
	if magic != Magic {
		return "", 0, nil, fmt.Errorf("trace: bad magic %#x, want %#x", magic, Magic)
	}
	if buildDate, err = readCString(tr.r); err != nil {
		return "", 0, nil, fmt.Errorf("trace: read build date: %w", err)
	}
	if err = binary.Read(tr.r, binary.BigEndian, &timestamp); err != nil {
		return "", 0, nil, fmt.Errorf("trace: read header timestamp: %w", err)
	}
	for {
		var module uint16
		if err = binary.Read(tr.r, binary.BigEndian, &module); err != nil {
			return "", 0, nil, fmt.Errorf("trace: read descriptor module: %w", err)
		}
		if module == 0 {
			break
		}
		d := OpcodeDesc{Module: module}
		if err = binary.Read(tr.r, binary.BigEndian, &d.Opcode); err != nil {
			return "", 0, nil, fmt.Errorf("trace: read descriptor opcode: %w", err)
		}
		if d.Name, err = readCString(tr.r); err != nil {
			return "", 0, nil, fmt.Errorf("trace: read descriptor name: %w", err)
		}
		for {
			size, e := tr.r.ReadByte()
			if e != nil {
				return "", 0, nil, fmt.Errorf("trace: read param size: %w", e)
			}
			if size == 0 {
				break
			}
			name, e := readCString(tr.r)
			if e != nil {
				return "", 0, nil, fmt.Errorf("trace: read param name: %w", e)
			}
			d.Params = append(d.Params, ParamDesc{Size: size, Name: name})
		}
		descriptors = append(descriptors, d)
	}
	return buildDate, timestamp, descriptors, nil
}

// ReadEvent reads one event. It returns io.EOF (unwrapped, via
// errors.Is) once the stream is exhausted at an event boundary.
func (tr *Reader) ReadEvent() (*Event, error) {
	var e Event
	if err := binary.Read(tr.r, binary.BigEndian, &e.Timestamp); err != nil {
		return nil, err
	}
	var err error
	if e.File, err = readCString(tr.r); err != nil {
		return nil, fmt.Errorf("trace: read event file: %w", err)
	}
	if err = binary.Read(tr.r, binary.BigEndian, &e.Line); err != nil {
		return nil, fmt.Errorf("trace: read event line: %w", err)
	}
	if e.Function, err = readCString(tr.r); err != nil {
		return nil, fmt.Errorf("trace: read event function: %w", err)
	}
	if err = binary.Read(tr.r, binary.BigEndian, &e.Module); err != nil {
		return nil, fmt.Errorf("trace: read event module: %w", err)
	}
	if err = binary.Read(tr.r, binary.BigEndian, &e.Opcode); err != nil {
		return nil, fmt.Errorf("trace: read event opcode: %w", err)
	}
	for {
		size, berr := tr.r.ReadByte()
		if berr != nil {
			return nil, fmt.Errorf("trace: read param size: %w", berr)
		}
		if size == 0 {
			// Complete the 0u16 terminator (size field is only a u8).
			second, berr := tr.r.ReadByte()
			if berr != nil {
				return nil, fmt.Errorf("trace: read param terminator: %w", berr)
			}
			if second != 0 {
				return nil, fmt.Errorf("trace: malformed event param terminator")
			}
			break
		}
		value := make([]byte, size)
		if _, err := io.ReadFull(tr.r, value); err != nil {
			return nil, fmt.Errorf("trace: read param value: %w", err)
		}
		e.Params = append(e.Params, Param{Size: size, Value: value})
	}
	for {
		var addr uint32
		if err := binary.Read(tr.r, binary.BigEndian, &addr); err != nil {
			return nil, fmt.Errorf("trace: read backtrace address: %w", err)
		}
		if addr == 0 {
			break
		}
		e.Backtrace = append(e.Backtrace, addr)
	}
	return &e, nil
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}
