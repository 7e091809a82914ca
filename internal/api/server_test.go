package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/core/agent"
	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/core/tools"
	"github.com/argus-beta/fincall/internal/memory"
	"github.com/argus-beta/fincall/internal/providers"
	"github.com/argus-beta/fincall/internal/sse"
)

const secret = "test-secret"

// fakeEngine answers every query with a fixed result and records the caller.
type fakeEngine struct {
	mu     sync.Mutex
	err    error
	caller any
	query  string
}

func (f *fakeEngine) Run(_ context.Context, query string, caller any, observe agent.Observer) (*agent.Result, error) {
	f.mu.Lock()
	f.caller, f.query = caller, query
	f.mu.Unlock()

	now := time.Now()
	if f.err != nil {
		if observe != nil {
			observe(agent.Event{Type: agent.EventError, Text: f.err.Error(), Timestamp: now})
		}
		return nil, f.err
	}
	out := dispatch.Outcome{ToolName: "function.get_max_expense", Payload: map[string]any{"amount": 900000}}
	if observe != nil {
		observe(agent.Event{Type: agent.EventModelCall, Text: "fake-model", Timestamp: now})
		observe(agent.Event{Type: agent.EventToolCall, Index: 0, ToolName: "get_max_expense", Arguments: map[string]any{}, Timestamp: now})
		observe(agent.Event{Type: agent.EventToolResult, Index: 0, ToolName: "get_max_expense", Outcome: &out, Timestamp: now})
		observe(agent.Event{Type: agent.EventSummary, Text: "Lớn nhất là 900.000 VND.", Timestamp: now})
		observe(agent.Event{Type: agent.EventDone, Usage: &providers.Usage{InputTokens: 10}, Timestamp: now})
	}
	return &agent.Result{
		Query:   query,
		Results: []dispatch.Outcome{out},
		Summary: "Lớn nhất là 900.000 VND.",
		Usage:   providers.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (f *fakeEngine) Catalog() []tools.CatalogEntry {
	return []tools.CatalogEntry{{Type: "function", Function: tools.FunctionSpec{Name: "function.get_max_expense"}}}
}

func (f *fakeEngine) ModelID() string { return "fake-model" }

func newTestServer(t *testing.T, engine *fakeEngine, withHistory bool) (*Server, memory.Store) {
	t.Helper()
	opts := Options{Engine: engine, Verifier: auth.NewVerifier(secret)}
	var store memory.Store
	if withHistory {
		var err error
		store, err = memory.NewStore(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		opts.History = store
	}
	return NewServer(opts), store
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.Sign(secret, userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(s http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthNeedsNoToken(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, false)
	rec := do(s, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthFailures(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, false)

	rec := do(s, http.MethodPost, "/ask", "", `{"query":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Token is required", env["message"])
	assert.Nil(t, env["metadata"])

	rec = do(s, http.MethodPost, "/ask", "Bearer not-a-jwt", `{"query":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid token", decodeEnvelope(t, rec)["message"])

	forged, err := auth.Sign("other-secret", "u1", time.Hour)
	require.NoError(t, err)
	rec = do(s, http.MethodPost, "/ask", "Bearer "+forged, `{"query":"hi"}`)
	assert.Equal(t, "Invalid token", decodeEnvelope(t, rec)["message"])
}

func TestAskReturnsEnvelopeAndInjectsIdentity(t *testing.T) {
	engine := &fakeEngine{}
	s, store := newTestServer(t, engine, true)

	rec := do(s, http.MethodPost, "/ask", bearer(t, "u1"), `{"query":"  Khoản chi lớn nhất?  "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.EqualValues(t, 200, env["code"])
	assert.Equal(t, "Recieved response", env["message"])
	meta := env["metadata"].(map[string]any)
	assert.Equal(t, "Khoản chi lớn nhất?", meta["query"])
	assert.Equal(t, "Lớn nhất là 900.000 VND.", meta["summary"])
	assert.Len(t, meta["results"], 1)

	who, ok := engine.caller.(auth.Identity)
	require.True(t, ok)
	assert.Equal(t, "u1", who.UserID)
	assert.NotEmpty(t, who.Token)

	records, err := store.ListQueries(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].ToolCalls)
	assert.Equal(t, "fake-model", records[0].Model)
	assert.NotEmpty(t, records[0].RequestID)
}

func TestAskRequiresQuery(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, false)

	for _, body := range []string{`{"query":""}`, `{"query":"   "}`, `{}`} {
		rec := do(s, http.MethodPost, "/ask", bearer(t, "u1"), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Query is required", decodeEnvelope(t, rec)["message"], body)
	}

	rec := do(s, http.MethodPost, "/ask", bearer(t, "u1"), `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskUpstreamFailure(t *testing.T) {
	engine := &fakeEngine{err: &agent.UpstreamModelError{Model: "fake-model", Err: errors.New("connection refused")}}
	s, store := newTestServer(t, engine, true)

	rec := do(s, http.MethodPost, "/ask", bearer(t, "u1"), `{"query":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Model is unavailable", decodeEnvelope(t, rec)["message"])

	records, err := store.ListQueries(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Error, "connection refused")
}

func TestAskDeadline(t *testing.T) {
	engine := &fakeEngine{err: &agent.UpstreamModelError{Model: "fake-model", Err: context.DeadlineExceeded}}
	s, _ := newTestServer(t, engine, false)

	rec := do(s, http.MethodPost, "/ask", bearer(t, "u1"), `{"query":"hi"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestAskStream(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, false)
	srv := httptest.NewServer(s)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/ask/stream", strings.NewReader(`{"query":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", bearer(t, "u1"))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	var last string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			last = data
		}
	}
	assert.Equal(t, []string{"model_call", "tool_call", "tool_result", "summary", "done", "result"}, events)
	assert.Contains(t, last, `"message":"Recieved response"`)
	assert.Equal(t, 0, s.broker.Len())
}

func TestAskStreamError(t *testing.T) {
	engine := &fakeEngine{err: &agent.UpstreamModelError{Model: "fake-model", Err: errors.New("boom")}}
	s, _ := newTestServer(t, engine, false)
	srv := httptest.NewServer(s)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/ask/stream", strings.NewReader(`{"query":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", bearer(t, "u1"))
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body strings.Builder
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		body.WriteString(sc.Text() + "\n")
	}
	assert.Contains(t, body.String(), "event: error")
	assert.NotContains(t, body.String(), "event: result")
}

func TestToolsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, false)
	rec := do(s, http.MethodGet, "/api/tools", bearer(t, "u1"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "function.get_max_expense")
}

func TestHistoryIsPerUser(t *testing.T) {
	s, store := newTestServer(t, &fakeEngine{}, true)
	ctx := context.Background()

	mine := &memory.QueryRecord{UserID: "u1", Model: "m", Query: "mine"}
	theirs := &memory.QueryRecord{UserID: "u2", Model: "m", Query: "theirs"}
	require.NoError(t, store.RecordQuery(ctx, mine))
	require.NoError(t, store.RecordQuery(ctx, theirs))

	rec := do(s, http.MethodGet, "/api/history?limit=5", bearer(t, "u1"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mine"`)
	assert.NotContains(t, rec.Body.String(), `"theirs"`)

	rec = do(s, http.MethodGet, "/api/history/"+mine.ID, bearer(t, "u1"), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/api/history/"+theirs.ID, bearer(t, "u1"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodGet, "/api/history?limit=0", bearer(t, "u1"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, false)
	rec := do(s, http.MethodGet, "/api/history", bearer(t, "u1"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBrokerDropsOldestWhenFull(t *testing.T) {
	b := NewSSEBroker(nil)
	ch := b.Open("s")
	for i := 0; i < 300; i++ {
		b.Publish("s", sseEvent(i))
	}
	first := <-ch
	assert.NotEqual(t, "0", first.Data)
	b.Close("s")
	b.Publish("s", sseEvent(1))
	assert.Equal(t, 0, b.Len())
}

func sseEvent(i int) sse.Event {
	return sse.Event{Event: "tick", Data: strconv.Itoa(i)}
}
