package provider

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is one server-sent event: an optional event name and the
// concatenated data payload.
type SSEEvent struct {
	Event string
	Data  string
}

// SSEScanner reads server-sent events from a response body. Both OpenAI
// and Anthropic stream completions as SSE; the local backend uses NDJSON
// and bypasses this.
type SSEScanner struct {
	scanner *bufio.Scanner
}

// NewSSEScanner wraps r. Lines up to 1MB are accepted; vendor chunks stay
// well under that.
func NewSSEScanner(r io.Reader) *SSEScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &SSEScanner{scanner: sc}
}

// Next returns the next event. io.EOF signals a cleanly exhausted body.
func (s *SSEScanner) Next() (*SSEEvent, error) {
	var ev SSEEvent
	var gotData bool

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line terminates an event.
		if line == "" {
			if gotData {
				return &ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") { // comment / keep-alive
			continue
		}
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			ev.Event = strings.TrimSpace(name)
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimPrefix(data, " ")
			if gotData {
				ev.Data += "\n" + data
			} else {
				ev.Data = data
			}
			gotData = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if gotData {
		return &ev, nil
	}
	return nil, io.EOF
}
