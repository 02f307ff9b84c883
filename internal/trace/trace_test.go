package trace

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucla-readable/featherstitch/pkg/engine"
)

func TestHeaderAndEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	descriptors := []OpcodeDesc{
		{
			Module: 1, Opcode: 1, Name: "create_byte",
			Params: []ParamDesc{{Size: 8, Name: "patch_id"}, {Size: 2, Name: "offset"}},
		},
		{Module: 1, Opcode: 2, Name: "create_empty"},
	}
	require.NoError(t, w.WriteHeader("2026-07-29T00:00:00Z", 1000, descriptors))

	event := Event{
		Timestamp: 1001,
		File:      "patch.go",
		Line:      42,
		Function:  "CreateByte",
		Module:    1,
		Opcode:    1,
		Params: []Param{
			{Size: 8, Value: []byte{0, 0, 0, 0, 0, 0, 0, 7}},
			{Size: 2, Value: []byte{0, 16}},
		},
		Backtrace: []uint32{0x1000, 0x2000},
	}
	require.NoError(t, w.WriteEvent(event))

	r := NewReader(&buf)
	buildDate, timestamp, gotDescriptors, err := r.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, "2026-07-29T00:00:00Z", buildDate)
	assert.Equal(t, uint32(1000), timestamp)
	assert.Equal(t, descriptors, gotDescriptors)

	gotEvent, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, &event, gotEvent)

	_, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBadMagicRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	_, _, _, err := NewReader(&buf).ReadHeader()
	assert.Error(t, err)
}

func TestEmitterWritesExactlyOneEventPerPatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader("test-build", 0, Schema()))

	tick := uint32(0)
	em := NewEmitter(w, func() uint32 {
		tick++
		return tick
	})

	eng := engine.New()
	eng.SetTraceHook(em)

	block := engine.NewDescriptor(1, 16, nil, false)
	owner := &fakeOwner{level: 0}
	_, err := eng.CreateByteAtomic(block, owner, 0, 16, []byte("0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, em.Err())

	r := NewReader(&buf)
	_, _, _, err = r.ReadHeader()
	require.NoError(t, err)

	gotEvent, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, OpcodeCreateByte, gotEvent.Opcode)

	_, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF, "create_byte_atomic must produce exactly one trace event")
}

type fakeOwner struct{ level int }

func (o *fakeOwner) Level() int      { return o.level }
func (o *fakeOwner) GraphIndex() int { return 0 }
