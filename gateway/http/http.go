// Package http exposes the query pipeline and grounding lookups over a
// JSON HTTP API.
//
// Routes:
//
//	POST /v1/query             run a query through the safety pipeline
//	POST /v1/search/entities   resolve names to entity IDs
//	POST /v1/search/properties resolve names to property IDs
//	POST /v1/schema            fetch label/description context for IDs
//	GET  /v1/ping              endpoint connectivity probe
//	GET  /healthz              aggregated subsystem health
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/c360/sparqlgate/errors"
	"github.com/c360/sparqlgate/grounding"
	"github.com/c360/sparqlgate/health"
	"github.com/c360/sparqlgate/pipeline"
	"github.com/c360/sparqlgate/transport"
)

// maxRequestSize bounds request bodies. SPARQL queries are text; a
// megabyte is far beyond any legitimate submission.
const maxRequestSize = 1 << 20

// getOrGenerateRequestID extracts the request ID from headers or
// generates a new one for tracing across the gateway and audit stream.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Searcher resolves names to IDs and renders schema context.
// *grounding.Client satisfies it.
type Searcher interface {
	SearchEntities(ctx context.Context, query string, k int) ([]grounding.Match, error)
	SearchProperties(ctx context.Context, query string, k int) ([]grounding.Match, error)
	SchemaContext(ctx context.Context, ids []string, tokenBudget int) (string, error)
}

// Pinger runs the connectivity probe query against an endpoint.
// *transport.Client satisfies it.
type Pinger interface {
	Execute(ctx context.Context, query string, timeout time.Duration) (*transport.Response, error)
}

// Server hosts the gateway API.
type Server struct {
	runners   map[string]*pipeline.Runner
	searcher  Searcher
	pinger    Pinger
	monitor   *health.Monitor
	log       *slog.Logger
	startTime time.Time

	requestsTotal   atomic.Uint64
	requestsSuccess atomic.Uint64
	requestsFailed  atomic.Uint64
}

// NewServer creates the API server. runners maps endpoint class names
// to their pipelines; searcher may be nil when grounding is disabled,
// and pinger may be nil when no probe endpoint is configured.
func NewServer(runners map[string]*pipeline.Runner, searcher Searcher, pinger Pinger, monitor *health.Monitor, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if monitor == nil {
		monitor = health.NewMonitor()
	}
	return &Server{
		runners:   runners,
		searcher:  searcher,
		pinger:    pinger,
		monitor:   monitor,
		log:       log,
		startTime: time.Now(),
	}
}

// Routes registers all handlers onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/query", s.wrap(s.handleQuery))
	mux.HandleFunc("POST /v1/search/entities", s.wrap(s.handleSearchEntities))
	mux.HandleFunc("POST /v1/search/properties", s.wrap(s.handleSearchProperties))
	mux.HandleFunc("POST /v1/schema", s.wrap(s.handleSchema))
	mux.HandleFunc("GET /v1/ping", s.wrap(s.handlePing))
	mux.HandleFunc("GET /healthz", s.wrap(s.handleHealthz))
}

// wrap applies request accounting and tracing to a handler.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)
		s.requestsTotal.Add(1)
		h(w, r)
	}
}

// QueryRequest is the /v1/query body.
type QueryRequest struct {
	Endpoint       string   `json:"endpoint"`
	Query          string   `json:"query"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	SkipCache      bool     `json:"skipCache,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	Properties     []string `json:"properties,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	class := req.Endpoint
	if class == "" {
		class = "wikidata"
	}
	runner, ok := s.runners[class]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown endpoint %q", class))
		return
	}

	result := runner.Run(r.Context(), pipeline.Request{
		Query:      req.Query,
		Timeout:    time.Duration(req.TimeoutSeconds) * time.Second,
		LimitCap:   req.Limit,
		SkipCache:  req.SkipCache,
		Entities:   req.Entities,
		Properties: req.Properties,
	})

	// Pipeline outcomes are application-level; transport status stays
	// 200 so agents always get the structured result body.
	s.writeJSON(w, http.StatusOK, result)
	if result.OK {
		s.requestsSuccess.Add(1)
	} else {
		s.requestsFailed.Add(1)
	}
}

// SearchRequest is the body of both search routes.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// SearchResponse lists grounded matches.
type SearchResponse struct {
	Matches []grounding.Match `json:"matches"`
}

func (s *Server) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, func(ctx context.Context, q string, k int) ([]grounding.Match, error) {
		return s.searcher.SearchEntities(ctx, q, k)
	})
}

func (s *Server) handleSearchProperties(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, func(ctx context.Context, q string, k int) ([]grounding.Match, error) {
		return s.searcher.SearchProperties(ctx, q, k)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request,
	search func(context.Context, string, int) ([]grounding.Match, error)) {
	if s.searcher == nil {
		s.writeError(w, http.StatusNotFound, "grounding is not enabled")
		return
	}
	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	matches, err := search(r.Context(), req.Query, req.K)
	if err != nil {
		s.failWith(w, err)
		return
	}
	if matches == nil {
		matches = []grounding.Match{}
	}
	s.writeJSON(w, http.StatusOK, SearchResponse{Matches: matches})
	s.requestsSuccess.Add(1)
}

// SchemaRequest is the /v1/schema body.
type SchemaRequest struct {
	IDs         []string `json:"ids"`
	TokenBudget int      `json:"tokenBudget,omitempty"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		s.writeError(w, http.StatusNotFound, "grounding is not enabled")
		return
	}
	var req SchemaRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.TokenBudget <= 0 {
		req.TokenBudget = 1000
	}

	text, err := s.searcher.SchemaContext(r.Context(), req.IDs, req.TokenBudget)
	if err != nil {
		s.failWith(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"text": text})
	s.requestsSuccess.Add(1)
}

// pingQuery is the cheapest valid SELECT the probe endpoint accepts.
const pingQuery = "SELECT (1 AS ?x) WHERE {} LIMIT 1"

const pingTimeout = 10 * time.Second

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"uptime": time.Since(s.startTime).String(),
	}
	if s.pinger == nil {
		out["ok"] = true
		out["detail"] = "no probe endpoint configured"
		s.writeJSON(w, http.StatusOK, out)
		s.requestsSuccess.Add(1)
		return
	}

	start := time.Now()
	resp, err := s.pinger.Execute(r.Context(), pingQuery, pingTimeout)
	if err != nil {
		out["ok"] = false
		out["detail"] = err.Error()
		s.writeJSON(w, http.StatusOK, out)
		s.requestsFailed.Add(1)
		return
	}
	out["ok"] = true
	out["detail"] = "connected successfully"
	out["shape"] = resp.Shape.Name()
	out["elapsedMs"] = time.Since(start).Milliseconds()
	s.writeJSON(w, http.StatusOK, out)
	s.requestsSuccess.Add(1)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := s.monitor.AggregateHealth("sparqlgate")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

// decode reads and unmarshals the request body. On failure it writes
// the error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestSize {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", maxRequestSize))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON request body")
		return false
	}
	return true
}

// failWith maps a classified error onto an HTTP status with a
// sanitized message. Full details are logged, never exposed.
func (s *Server) failWith(w http.ResponseWriter, err error) {
	s.log.Warn("request failed", "error", err)
	switch {
	case errors.IsInvalid(err):
		s.writeError(w, http.StatusBadRequest, "invalid request")
	case errors.IsTransient(err):
		s.writeError(w, http.StatusServiceUnavailable, "upstream temporarily unavailable")
	default:
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.requestsFailed.Add(1)
	s.writeJSON(w, statusCode, map[string]any{
		"error":  message,
		"status": statusCode,
	})
}

// RequestCounts returns total, succeeded and failed request counts.
func (s *Server) RequestCounts() (total, success, failed uint64) {
	return s.requestsTotal.Load(), s.requestsSuccess.Load(), s.requestsFailed.Load()
}
