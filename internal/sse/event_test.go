package sse

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEventWriteTo(t *testing.T) {
	var b strings.Builder
	e := Event{Event: "summary", Data: "line one\nline two"}
	if _, err := e.WriteTo(&b); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	want := "event: summary\ndata: line one\ndata: line two\n\n"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}
}

func TestNewEventEncodesJSON(t *testing.T) {
	e, err := NewEvent("tool_call", map[string]any{"tool": "get_expenses"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if e.Data != `{"tool":"get_expenses"}` {
		t.Errorf("Data = %q", e.Data)
	}
}

func TestWriterSetsHeadersAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := sw.SendJSON("done", map[string]int{"n": 1}); err != nil {
		t.Fatalf("SendJSON: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !rec.Flushed {
		t.Error("expected response to be flushed")
	}
	if body := rec.Body.String(); body != "event: done\ndata: {\"n\":1}\n\n" {
		t.Errorf("body = %q", body)
	}
}
