// ABOUTME: SSE frame encoding for the server side of the protocol.
// ABOUTME: Multi-line payloads are split across data lines so the parser rejoins them.

package frame

import (
	"fmt"
	"io"
	"strings"
)

// Format renders a frame in SSE form:
// event: <type>\ndata: <line>\n...\n\n
func Format(f Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", f.Type)
	for _, line := range strings.Split(f.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}

// Write writes a single frame to w.
func Write(w io.Writer, f Frame) error {
	_, err := io.WriteString(w, Format(f))
	return err
}
