// ABOUTME: Tests for the SSE frame parser and decoder
// ABOUTME: Covers chunk boundaries, malformed frames, CRLF input, and hard read errors

package frame

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "event: content\ndata: Hello\n\n" +
	"event: tool_call\ndata: calculator(25*36)\n\n" +
	"event: tool_result\ndata: 900\n\n" +
	"event: content\ndata:  world\n\n" +
	"event: end\ndata: srv-1\n\n"

func sampleFrames() []Frame {
	return []Frame{
		{Type: TypeContent, Data: "Hello"},
		{Type: TypeToolCall, Data: "calculator(25*36)"},
		{Type: TypeToolResult, Data: "900"},
		{Type: TypeContent, Data: " world"},
		{Type: TypeEnd, Data: "srv-1"},
	}
}

func TestParser_WholeStream(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte(sampleStream))
	assert.Equal(t, sampleFrames(), frames)
	assert.Empty(t, p.Flush())
}

func TestParser_ByteAtATime(t *testing.T) {
	var p Parser
	var frames []Frame
	for i := 0; i < len(sampleStream); i++ {
		frames = append(frames, p.Feed([]byte{sampleStream[i]})...)
	}
	assert.Equal(t, sampleFrames(), frames)
}

func TestParser_PartialFrameIsBuffered(t *testing.T) {
	var p Parser

	assert.Empty(t, p.Feed([]byte("event: content\nda")))
	assert.Empty(t, p.Feed([]byte("ta: par")))
	frames := p.Feed([]byte("tial\n\n"))

	require.Len(t, frames, 1)
	assert.Equal(t, Content("partial"), frames[0])
}

func TestParser_CRLF(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte("event: content\r\ndata: hi\r\n\r\n"))
	assert.Equal(t, []Frame{Content("hi")}, frames)
}

func TestParser_MultiLineData(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte("event: content\ndata: line one\ndata: line two\n\n"))
	assert.Equal(t, []Frame{Content("line one\nline two")}, frames)
}

func TestParser_CommentsAndIgnoredFields(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte(": keepalive\nid: 7\nretry: 1000\nevent: content\ndata: x\n\n"))
	assert.Equal(t, []Frame{Content("x")}, frames)
}

func TestParser_DropsMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing event type", "data: orphan\n\n"},
		{"missing data", "event: content\n\n"},
		{"unknown type", "event: usage\ndata: 42\n\n"},
		{"result is not a wire type", "event: result\ndata: {}\n\n"},
		{"only blank lines", "\n\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Parser
			assert.Empty(t, p.Feed([]byte(tt.input)))
			assert.Empty(t, p.Flush())
		})
	}
}

func TestParser_MalformedFrameDoesNotPoisonNext(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte("data: orphan\n\nevent: content\ndata: ok\n\n"))
	assert.Equal(t, []Frame{Content("ok")}, frames)
}

func TestParser_EmptyDataLineIsKept(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte("event: content\ndata:\n\n"))
	assert.Equal(t, []Frame{Content("")}, frames)
}

func TestParser_FlushEmitsUnterminatedFrame(t *testing.T) {
	var p Parser
	assert.Empty(t, p.Feed([]byte("event: end\ndata: srv-9")))

	frames := p.Flush()
	assert.Equal(t, []Frame{End("srv-9")}, frames)
}

func TestDecoder_ReadsAllFrames(t *testing.T) {
	dec := NewDecoder(iotest.OneByteReader(strings.NewReader(sampleStream)))

	var frames []Frame
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
	assert.Equal(t, sampleFrames(), frames)

	// EOF is sticky
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_HardReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("event: content\ndata: a\n\n"), iotest.ErrReader(boom))
	dec := NewDecoder(r)

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Content("a"), f)

	_, err = dec.Next()
	assert.ErrorIs(t, err, boom)
}

func TestFormat_RoundTripsThroughParser(t *testing.T) {
	var b strings.Builder
	for _, f := range sampleFrames() {
		require.NoError(t, Write(&b, f))
	}
	require.NoError(t, Write(&b, Content("two\nlines")))

	var p Parser
	frames := p.Feed([]byte(b.String()))
	assert.Equal(t, append(sampleFrames(), Content("two\nlines")), frames)
}
