package stream

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded server-sent event. Name is empty for vendors that
// carry the event type inside the JSON payload.
type Event struct {
	Name string
	Data string
}

// EventSource yields raw vendor events until io.EOF.
type EventSource interface {
	Next() (Event, error)
}

// DoneSentinel terminates OpenAI-style streams.
const DoneSentinel = "[DONE]"

const maxLineSize = 1024 * 1024

type sseReader struct {
	scanner *bufio.Scanner
	name    string
}

// NewSSEReader parses a text/event-stream body. Every data line is dispatched
// as its own event as soon as it is read; an event name applies until the
// next blank line.
func NewSSEReader(r io.Reader) EventSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &sseReader{scanner: scanner}
}

func (r *sseReader) Next() (Event, error) {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")

		switch {
		case line == "":
			r.name = ""
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			r.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			data = strings.TrimPrefix(data, " ")
			return Event{Name: r.name, Data: data}, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
