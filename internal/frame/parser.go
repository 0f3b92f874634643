// ABOUTME: Incremental SSE frame parser and io.Reader decoder.
// ABOUTME: Buffers partial reads until a blank-line boundary and drops malformed frames.

package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// readChunkSize is how much the Decoder pulls from its reader per call.
const readChunkSize = 4096

// Parser turns raw stream bytes into frames. The zero value is ready to use.
// A Parser is not safe for concurrent use.
type Parser struct {
	buf     []byte // unterminated line
	event   string
	data    []string
	hasData bool
}

// Feed consumes the next chunk of the stream and returns every frame it
// completed. Chunks may split lines or frames at any byte.
func (p *Parser) Feed(chunk []byte) []Frame {
	p.buf = append(p.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(p.buf[:i]), "\r")
		p.buf = p.buf[i+1:]

		if f, ok := p.line(line); ok {
			frames = append(frames, f)
		}
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return frames
}

// Flush is called at end of stream. A trailing line without newline is
// processed and a pending complete frame is emitted.
func (p *Parser) Flush() []Frame {
	var frames []Frame
	if len(p.buf) > 0 {
		line := strings.TrimSuffix(string(p.buf), "\r")
		p.buf = nil
		if f, ok := p.line(line); ok {
			frames = append(frames, f)
		}
	}
	if f, ok := p.dispatch(); ok {
		frames = append(frames, f)
	}
	return frames
}

// line processes a single line and returns a frame when the line closes one.
func (p *Parser) line(line string) (Frame, bool) {
	if line == "" {
		return p.dispatch()
	}

	// Comment lines (keepalives)
	if strings.HasPrefix(line, ":") {
		return Frame{}, false
	}

	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		p.event = strings.TrimSpace(value)
	case "data":
		p.data = append(p.data, value)
		p.hasData = true
	default:
		// id, retry and unknown fields carry nothing we use
	}
	return Frame{}, false
}

// dispatch ends the current frame and resets the accumulator.
func (p *Parser) dispatch() (Frame, bool) {
	eventType := Type(p.event)
	data := strings.Join(p.data, "\n")
	complete := p.hasData

	p.event = ""
	p.data = nil
	p.hasData = false

	if eventType == "" || !complete || !IsWireType(eventType) {
		return Frame{}, false
	}
	return Frame{Type: eventType, Data: data}, true
}

// Decoder reads frames from a stream body.
type Decoder struct {
	r      io.Reader
	parser Parser
	queue  []Frame
	chunk  []byte
	eof    bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:     r,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next frame. It returns io.EOF once the stream has ended and
// every buffered frame was returned. Any other error is a hard read failure.
func (d *Decoder) Next() (Frame, error) {
	for len(d.queue) == 0 {
		if d.eof {
			return Frame{}, io.EOF
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.queue = append(d.queue, d.parser.Feed(d.chunk[:n])...)
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
			d.queue = append(d.queue, d.parser.Flush()...)
			continue
		}
		if err != nil {
			return Frame{}, err
		}
	}

	f := d.queue[0]
	d.queue = d.queue[1:]
	return f, nil
}
