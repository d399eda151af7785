package relay

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

const eventDelimiter = "\n\n"

// doneSentinel terminates some upstream streams. It is not JSON and must be
// forwarded byte-identical.
const doneSentinel = "[DONE]"

// StreamRelay forwards an SSE byte stream while rewriting tool_use
// content_block_start events in flight. Bytes are accumulated until a
// complete event (blank-line delimited) is available, the event is rewritten
// line by line, and the result is written and flushed downstream at once.
// Because rewriting only ever happens on complete events, the output is
// independent of how the upstream fragments its chunks.
//
// A StreamRelay is used by a single goroutine for a single response; it holds
// no shared state.
type StreamRelay struct {
	dst     io.Writer
	flusher http.Flusher
	buf     bytes.Buffer
}

// NewStreamRelay wraps dst. When dst implements http.Flusher each forwarded
// event is flushed immediately so clients see events as they arrive.
func NewStreamRelay(dst io.Writer) *StreamRelay {
	r := &StreamRelay{dst: dst}
	if f, ok := dst.(http.Flusher); ok {
		r.flusher = f
	}
	return r
}

// Write accumulates upstream bytes and forwards every complete event.
func (r *StreamRelay) Write(p []byte) (int, error) {
	r.buf.Write(p)

	for {
		data := r.buf.Bytes()
		idx := bytes.Index(data, []byte(eventDelimiter))
		if idx < 0 {
			break
		}
		event := string(data[:idx])
		r.buf.Next(idx + len(eventDelimiter))

		if err := r.emit(rewriteEvent(event) + eventDelimiter); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial event, applying the same rewrite. Streams
// that end without a final delimiter still deliver their last event.
func (r *StreamRelay) Close() error {
	if r.buf.Len() == 0 {
		return nil
	}
	event := r.buf.String()
	r.buf.Reset()
	return r.emit(rewriteEvent(event))
}

func (r *StreamRelay) emit(s string) error {
	if _, err := io.WriteString(r.dst, s); err != nil {
		return err
	}
	if r.flusher != nil {
		r.flusher.Flush()
	}
	return nil
}

// rewriteEvent processes one complete SSE event. Only data lines are
// candidates; every other line, the done sentinel, and unparseable payloads
// are preserved byte-identical.
func rewriteEvent(event string) string {
	if !strings.Contains(event, "data:") {
		return event
	}
	lines := strings.Split(event, "\n")
	changed := false
	for i, line := range lines {
		rest, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload := strings.TrimLeft(rest, " ")
		if payload == "" || payload == doneSentinel {
			continue
		}
		if repaired, ok := repairEventPayload([]byte(payload)); ok {
			prefix := line[:len(line)-len(payload)]
			lines[i] = prefix + string(repaired)
			changed = true
		}
	}
	if !changed {
		return event
	}
	return strings.Join(lines, "\n")
}
