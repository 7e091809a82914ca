// Package api implements the HTTP gateway: JWT-authenticated query and
// chat endpoints, SSE streaming of query progress, and tool/history
// listings.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/core/agent"
	"github.com/argus-beta/fincall/internal/core/classify"
	"github.com/argus-beta/fincall/internal/core/tools"
	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/memory"
	"github.com/argus-beta/fincall/internal/providers"
	"github.com/argus-beta/fincall/internal/sse"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// Engine answers queries. *agent.Orchestrator implements it.
type Engine interface {
	Run(ctx context.Context, query string, caller any, observe agent.Observer) (*agent.Result, error)
	Catalog() []tools.CatalogEntry
	ModelID() string
}

// Classifier labels a spending message. *classify.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, message, personality string) (*classify.Entry, *providers.Usage, error)
}

// Options wires a Server. Engine and Verifier are required; History may
// be nil to disable recording and Classifier nil to disable /chat.
type Options struct {
	Engine     Engine
	Verifier   *auth.Verifier
	History    memory.Store
	Classifier Classifier
	Logger     *slog.Logger
}

// Server is the main HTTP API server. Apart from the optional history
// store it keeps no state between requests.
type Server struct {
	mux      *http.ServeMux
	engine   Engine
	verifier *auth.Verifier
	history  memory.Store
	classify Classifier
	broker   *SSEBroker
	log      *slog.Logger
}

// NewServer creates a new API server with all routes registered.
func NewServer(opts Options) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		engine:   opts.Engine,
		verifier: opts.Verifier,
		history:  opts.History,
		classify: opts.Classifier,
		broker:   NewSSEBroker(opts.Logger),
		log:      logger.OrDiscard(opts.Logger),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS for browser clients.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)
	r = r.WithContext(logger.WithRequestID(r.Context(), id))

	if r.URL.Path == "/api/health" {
		s.mux.ServeHTTP(w, r)
		return
	}
	s.authenticate(s.mux).ServeHTTP(w, r)
}

// registerRoutes sets up all API endpoints.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /ask", s.handleAsk)
	s.mux.HandleFunc("POST /ask/stream", s.handleAskStream)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /api/tools", s.handleTools)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/history/{id}", s.handleHistoryItem)
}

// authenticate rejects requests without a valid bearer token and stores
// the caller identity in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeEnvelope(w, http.StatusBadRequest, "Token is required", nil)
			return
		}
		who, err := s.verifier.Verify(auth.TokenFromHeader(header))
		if err != nil {
			s.log.Info("rejected token", "request_id", logger.RequestID(r.Context()), "error", err)
			writeEnvelope(w, http.StatusBadRequest, "Invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), who)))
	})
}

// --- SSE Broker ---

// SSEBroker hands events from a running query to the goroutine streaming
// them, without ever blocking the query on a slow client.
type SSEBroker struct {
	mu       sync.RWMutex
	channels map[string]chan sse.Event
	log      *slog.Logger
}

// NewSSEBroker creates a new SSE broker.
func NewSSEBroker(log *slog.Logger) *SSEBroker {
	return &SSEBroker{
		channels: make(map[string]chan sse.Event),
		log:      logger.OrDiscard(log),
	}
}

// Open returns the event channel for a stream, creating it if needed.
func (b *SSEBroker) Open(streamID string) <-chan sse.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[streamID]; ok {
		return ch
	}

	ch := make(chan sse.Event, 256)
	b.channels[streamID] = ch
	return ch
}

// Publish sends an event to the stream's channel without blocking.
func (b *SSEBroker) Publish(streamID string, event sse.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ch, ok := b.channels[streamID]
	if !ok {
		return
	}

	// Drop the oldest event when full.
	select {
	case ch <- event:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
			b.log.Warn("dropping stream event: channel full", "stream", streamID, "event", event.Event)
		}
	}
}

// Close removes and closes the channel for a stream.
func (b *SSEBroker) Close(streamID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[streamID]; ok {
		close(ch)
		delete(b.channels, streamID)
	}
}

// Len returns the number of open streams.
func (b *SSEBroker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

// --- JSON helpers ---

// envelope is the response shape every endpoint shares.
type envelope struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Metadata any    `json:"metadata"`
}

func writeEnvelope(w http.ResponseWriter, status int, msg string, metadata any) {
	writeJSON(w, status, envelope{Code: status, Message: msg, Metadata: metadata})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("error encoding JSON response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
