package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/core/agent"
	"github.com/argus-beta/fincall/internal/core/classify"
	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/memory"
	"github.com/argus-beta/fincall/internal/providers"
	"github.com/argus-beta/fincall/internal/sse"
)

const receivedMessage = "Recieved response"

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "fincall",
		"version": Version,
		"model":   s.engine.ModelID(),
	})
}

// --- Ask ---

type askRequest struct {
	Query string `json:"query"`
}

// readQuery decodes the body and writes the 400 response itself when the
// query is missing.
func readQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "invalid JSON body", nil)
		return "", false
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		writeEnvelope(w, http.StatusBadRequest, "Query is required", nil)
		return "", false
	}
	return q, true
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	query, ok := readQuery(w, r)
	if !ok {
		return
	}
	who, _ := auth.FromContext(r.Context())

	start := time.Now()
	res, err := s.engine.Run(r.Context(), query, who, nil)
	s.record(r.Context(), who, query, res, err, time.Since(start))
	if err != nil {
		status, msg := errorStatus(err)
		writeEnvelope(w, status, msg, nil)
		return
	}
	writeEnvelope(w, http.StatusOK, receivedMessage, res)
}

// --- Chat ---

type chatRequest struct {
	Query       string `json:"query"`
	Personality string `json:"personality"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.classify == nil {
		writeEnvelope(w, http.StatusNotFound, "Chat is disabled", nil)
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}
	query, personality := strings.TrimSpace(req.Query), strings.TrimSpace(req.Personality)
	if query == "" || personality == "" {
		writeEnvelope(w, http.StatusBadRequest, "Query and personality is required", nil)
		return
	}

	entry, _, err := s.classify.Classify(r.Context(), query, personality)
	if err != nil {
		s.log.Warn("chat failed", "request_id", logger.RequestID(r.Context()), "error", err)
		status, msg := errorStatus(err)
		writeEnvelope(w, status, msg, nil)
		return
	}
	writeEnvelope(w, http.StatusOK, receivedMessage, entry)
}

// errorStatus maps an engine failure to an HTTP status and client message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Model did not respond in time"
	case errors.Is(err, context.Canceled):
		return 499, "Request cancelled"
	}
	var upstream *agent.UpstreamModelError
	var classifyErr *classify.ModelError
	if errors.As(err, &upstream) || errors.As(err, &classifyErr) {
		return http.StatusBadGateway, "Model is unavailable"
	}
	if errors.Is(err, classify.ErrUnusableReply) {
		return http.StatusBadGateway, "Model returned an unusable reply"
	}
	return http.StatusInternalServerError, "Internal error"
}

// --- Ask (streaming) ---

// streamEvent is the JSON data of one SSE event.
type streamEvent struct {
	Index     *int              `json:"index,omitempty"`
	Tool      string            `json:"tool,omitempty"`
	Arguments map[string]any    `json:"arguments,omitempty"`
	Outcome   *dispatch.Outcome `json:"result,omitempty"`
	Text      string            `json:"text,omitempty"`
	Usage     *providers.Usage  `json:"usage,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func toSSE(e agent.Event) sse.Event {
	data := streamEvent{
		Tool:      e.ToolName,
		Arguments: e.Arguments,
		Outcome:   e.Outcome,
		Text:      e.Text,
		Usage:     e.Usage,
		Timestamp: e.Timestamp,
	}
	if e.Type == agent.EventToolCall || e.Type == agent.EventToolResult {
		i := e.Index
		data.Index = &i
	}
	ev, err := sse.NewEvent(e.Type, data)
	if err != nil {
		msg, _ := json.Marshal(err.Error())
		return sse.Event{Event: agent.EventError, Data: `{"text":` + string(msg) + `}`}
	}
	return ev
}

func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	query, ok := readQuery(w, r)
	if !ok {
		return
	}
	who, _ := auth.FromContext(r.Context())

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	ctx := r.Context()
	streamID := uuid.NewString()
	ch := s.broker.Open(streamID)

	go func() {
		defer s.broker.Close(streamID)

		start := time.Now()
		res, err := s.engine.Run(ctx, query, who, func(e agent.Event) {
			s.broker.Publish(streamID, toSSE(e))
		})
		s.record(ctx, who, query, res, err, time.Since(start))
		if err != nil {
			// Run has already emitted the error event.
			return
		}
		if ev, err := sse.NewEvent("result", envelope{Code: http.StatusOK, Message: receivedMessage, Metadata: res}); err == nil {
			s.broker.Publish(streamID, ev)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := sw.Send(ev); err != nil {
				s.log.Info("stream client went away", "request_id", logger.RequestID(ctx), "error", err)
				return
			}
		}
	}
}

// --- Tools ---

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, "ok", s.engine.Catalog())
}

// --- History ---

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeEnvelope(w, http.StatusNotFound, "History is disabled", nil)
		return
	}
	who, _ := auth.FromContext(r.Context())

	limit := memory.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeEnvelope(w, http.StatusBadRequest, "limit must be between 1 and 100", nil)
			return
		}
		limit = n
	}

	records, err := s.history.ListQueries(r.Context(), who.UserID, limit)
	if err != nil {
		s.log.Error("list history failed", "request_id", logger.RequestID(r.Context()), "error", err)
		writeEnvelope(w, http.StatusInternalServerError, "Internal error", nil)
		return
	}
	if records == nil {
		records = []*memory.QueryRecord{}
	}
	writeEnvelope(w, http.StatusOK, "ok", records)
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeEnvelope(w, http.StatusNotFound, "History is disabled", nil)
		return
	}
	who, _ := auth.FromContext(r.Context())

	rec, err := s.history.GetQuery(r.Context(), r.PathValue("id"))
	if errors.Is(err, memory.ErrNotFound) || (err == nil && rec.UserID != who.UserID) {
		writeEnvelope(w, http.StatusNotFound, "Query not found", nil)
		return
	}
	if err != nil {
		s.log.Error("get history failed", "request_id", logger.RequestID(r.Context()), "error", err)
		writeEnvelope(w, http.StatusInternalServerError, "Internal error", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", rec)
}

// record stores a served query. Failures are logged and never reach the
// client.
func (s *Server) record(ctx context.Context, who auth.Identity, query string, res *agent.Result, runErr error, took time.Duration) {
	if s.history == nil {
		return
	}
	rec := &memory.QueryRecord{
		RequestID:  logger.RequestID(ctx),
		UserID:     who.UserID,
		Model:      s.engine.ModelID(),
		Query:      query,
		DurationMs: took.Milliseconds(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if res != nil {
		rec.Summary = res.Summary
		rec.ToolCalls = len(res.Results)
		for _, o := range res.Results {
			if o.Failed() {
				rec.FailedCalls++
			}
		}
		rec.InputTokens = res.Usage.InputTokens
		rec.OutputTokens = res.Usage.OutputTokens
		rec.CostUSD = res.Usage.CostUSD
		if data, err := json.Marshal(res.Results); err == nil {
			rec.Results = string(data)
		}
	}

	// The request context may already be cancelled.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.RecordQuery(storeCtx, rec); err != nil {
		s.log.Warn("record query failed", "request_id", rec.RequestID, "error", err)
	}
}
