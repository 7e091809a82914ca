// Package sse defines the Server-Sent Events wire type and a writer for
// streaming events to HTTP clients.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoFlusher is returned when the response writer cannot stream.
var ErrNoFlusher = errors.New("sse: streaming not supported")

// Event is a structured SSE event pushed to clients.
type Event struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// NewEvent encodes v as the event's JSON data.
func NewEvent(name string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("sse: encode %s: %w", name, err)
	}
	return Event{Event: name, Data: string(data)}, nil
}

// WriteTo writes the event in wire format. Multi-line data is split over
// several data fields.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if e.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Event)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Writer streams events over an HTTP response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the streaming headers on w. It fails when w cannot flush,
// in which case no headers have been written.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes e and flushes it to the client.
func (sw *Writer) Send(e Event) error {
	if _, err := e.WriteTo(sw.w); err != nil {
		return fmt.Errorf("sse: write %s: %w", e.Event, err)
	}
	sw.flusher.Flush()
	return nil
}

// SendJSON encodes v and sends it as event name.
func (sw *Writer) SendJSON(name string, v any) error {
	e, err := NewEvent(name, v)
	if err != nil {
		return err
	}
	return sw.Send(e)
}
