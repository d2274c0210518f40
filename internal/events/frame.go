package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Frame is one unit of the push-stream wire format:
//
//	event: <name>\n
//	data: <json>\n
//	\n
//
// The JSON payload keeps multi-byte content byte-for-byte (no HTML escaping),
// and the rendered frame always ends with exactly two newlines.
type Frame struct {
	Event string
	Data  any
}

// Encode renders the frame in wire format.
func (f Frame) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(f.Event)
	buf.WriteString("\ndata: ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f.Data); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Event, err)
	}
	// json.Encoder terminates with a single \n; one more closes the record.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteTo writes the encoded frame to w.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}
