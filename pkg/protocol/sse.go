// Package protocol holds the wire-level helpers shared by the front-ends:
// Server-Sent Events framing, the POST intake body and the correlation
// field carried by stdio requests.
package protocol

import (
	"bytes"
	"io"
)

// Reserved SSE event payloads. Relayed payloads that happen to equal one of
// these are indistinguishable from them on the wire.
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
)

// WriteEvent writes payload as one SSE event. Each line of a multi-line
// payload becomes its own data: line so that the client reassembles the
// payload with newlines intact. CRLF, a bare CR and LF all end a line, as
// they do for an EventSource parser.
func WriteEvent(w io.Writer, payload []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)

	for {
		line, rest, more := cutLine(payload)
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
		if !more {
			break
		}
		payload = rest
	}
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

// cutLine splits b at the first CRLF, CR or LF.
func cutLine(b []byte) (line, rest []byte, found bool) {
	i := bytes.IndexAny(b, "\r\n")
	if i < 0 {
		return b, nil, false
	}
	end := i + 1
	if b[i] == '\r' && end < len(b) && b[end] == '\n' {
		end++
	}
	return b[:i], b[end:], true
}

// WriteReserved writes one of the reserved events.
func WriteReserved(w io.Writer, event string) error {
	return WriteEvent(w, []byte(event))
}
