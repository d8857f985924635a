// Package proxy implements the optional streaming reverse proxy (C9)
// that sits between the host agent and the Anthropic API, deduplicating
// policy-injection blocks accumulated across a long conversation before
// they reach the model.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/cversek/macf/internal/breadcrumb"
	"github.com/cversek/macf/internal/events"
)

// DefaultAddr is where the proxy listens, per §4.10.
const DefaultAddr = "127.0.0.1:8019"

// Server is the macf reverse proxy.
type Server struct {
	Upstream *url.URL
	Capture  *CaptureWriter
	Metrics  *Metrics
	APILog   *APILog
	Tracker  *InjectionTracker
	Events   *events.Store // optional: nil disables the cleanup_all trigger
	Minter   *breadcrumb.Minter

	mu              sync.Mutex
	lastForwardedAt float64

	httpServer *http.Server
}

// NewServer builds a Server proxying to upstream, with the given
// capture directory ("" disables capture), api log path, event store
// (nil disables the cleanup_all trigger), and an otel meter (pass
// otel.Meter("macf-proxy") for a real one, or noop.Meter{} for none).
func NewServer(upstream *url.URL, captureDir, apiLogPath string, store *events.Store, meter metric.Meter) (*Server, error) {
	m, err := NewMetrics(meter)
	if err != nil {
		return nil, err
	}
	return &Server{
		Upstream: upstream,
		Capture:  NewCaptureWriter(captureDir),
		Metrics:  m,
		APILog:   NewAPILog(apiLogPath),
		Tracker:  NewInjectionTracker(),
		Events:   store,
		Minter:   breadcrumb.NewMinter(),
	}, nil
}

func (s *Server) handler() http.Handler {
	rp := &httputil.ReverseProxy{
		Director:       s.director,
		ModifyResponse: s.modifyResponse,
		ErrorHandler:   s.errorHandler,
	}
	return rp
}

type startTimeKey struct{}

func withStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey{}, t)
}

func startTimeFrom(ctx context.Context) time.Time {
	t, _ := ctx.Value(startTimeKey{}).(time.Time)
	return t
}

func latencyMS(start time.Time) int64 {
	if start.IsZero() {
		return 0
	}
	return time.Since(start).Milliseconds()
}

// requestMeta is the §4.10 step-1 metadata extracted from one request.
type requestMeta struct {
	Model             string
	MessageCount      int
	SystemPromptChars int
	ToolCount         int
	Streaming         bool
}

func extractRequestMeta(body []byte) requestMeta {
	var parsed struct {
		Model    string            `json:"model"`
		Stream   bool              `json:"stream"`
		System   any               `json:"system"`
		Messages []json.RawMessage `json:"messages"`
		Tools    []json.RawMessage `json:"tools"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return requestMeta{}
	}
	meta := requestMeta{
		Model:        parsed.Model,
		MessageCount: len(parsed.Messages),
		ToolCount:    len(parsed.Tools),
		Streaming:    parsed.Stream,
	}
	switch sys := parsed.System.(type) {
	case string:
		meta.SystemPromptChars = len(sys)
	case []any:
		for _, block := range sys {
			m, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				meta.SystemPromptChars += len(text)
			}
		}
	}
	return meta
}

// currentMode resolves §4.10 bullet 3's mode switch: cleanup_all when
// the event log shows a task_completed event since the last forwarded
// request, deduplicate otherwise.
func (s *Server) currentMode() RewriteMode {
	s.mu.Lock()
	since := s.lastForwardedAt
	s.mu.Unlock()

	if s.Events == nil {
		return ModeDeduplicate
	}
	for _, r := range s.Events.Read(0, true) {
		if r.Timestamp <= since {
			break
		}
		if r.Event == "task_completed" {
			return ModeCleanupAll
		}
	}
	return ModeDeduplicate
}

func (s *Server) markForwarded() {
	s.mu.Lock()
	s.lastForwardedAt = float64(time.Now().UnixNano()) / 1e9
	s.mu.Unlock()
}

func (s *Server) mintBreadcrumb() string {
	if s.Minter == nil {
		return ""
	}
	return s.Minter.Mint("", "", func() int { return 0 }).String()
}

// director rewrites the outgoing request: points it at the upstream
// host, logs api_request metadata, tracks the injection state, and
// replaces deduplicated policy-injection blocks with self-closing
// markers before forwarding.
func (s *Server) director(req *http.Request) {
	s.Metrics.RecordRequest(req.Context())
	*req = *req.WithContext(withStartTime(req.Context(), time.Now()))

	req.URL.Scheme = s.Upstream.Scheme
	req.URL.Host = s.Upstream.Host
	req.Host = s.Upstream.Host

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return
	}
	_ = req.Body.Close()

	meta := extractRequestMeta(body)
	s.APILog.LogRequest(meta)

	isMain := IsMainConversationRequest(body)
	var change InjectionStateChange
	if isMain && s.Tracker != nil {
		change = s.Tracker.Observe(PolicyNamesInRequestBody(body))
	}

	mode := s.currentMode()
	rewritten, report := RewriteRequestBody(body, s.mintBreadcrumb(), mode)
	s.Metrics.RecordBytesSaved(req.Context(), report.BytesSaved)
	s.markForwarded()

	if isMain {
		slog.Info("macf proxy: injection state",
			"mode", mode, "added", change.Added, "removed", change.Removed, "first", change.First,
			"replacements_made", report.ReplacementsMade, "bytes_saved", report.BytesSaved,
			"policies_replaced", report.PoliciesReplaced)
	}

	if s.Capture.Enabled() {
		s.Capture.Write(rewritten, nil)
	}

	req.Body = io.NopCloser(bytes.NewReader(rewritten))
	req.ContentLength = int64(len(rewritten))
	req.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
}

// modifyResponse logs an api_response record (merged usage/stop_reason
// metadata plus latency) and otherwise passes the response through
// unmodified — streaming bodies byte-for-byte, non-streaming bodies
// with only the content array stripped before logging (the response
// itself is never altered).
func (s *Server) modifyResponse(resp *http.Response) error {
	start := startTimeFrom(resp.Request.Context())

	if resp.Header.Get("Content-Type") == "text/event-stream" {
		resp.Body = &streamTeeBody{inner: resp.Body, server: s, start: start}
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	_ = resp.Body.Close()

	s.APILog.LogResponse(nonStreamingResponseFields(body), latencyMS(start))
	if s.Capture.Enabled() {
		s.Capture.Write(nil, body)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}

// nonStreamingResponseFields parses a full, non-streaming response body
// for api_response logging, dropping the content array per §4.10's
// response-path bullet.
func nonStreamingResponseFields(body []byte) map[string]any {
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) != nil {
		return nil
	}
	delete(parsed, "content")
	return parsed
}

// streamTeeBody streams the response body unmodified while buffering a
// copy, since ReverseProxy reads the body lazily as it copies it to the
// client; at EOF the buffered copy is parsed for usage totals (logging)
// and written out whole (capture).
type streamTeeBody struct {
	inner  io.ReadCloser
	server *Server
	start  time.Time
	buf    bytes.Buffer
}

func (c *streamTeeBody) Read(p []byte) (int, error) {
	n, err := c.inner.Read(p)
	if n > 0 {
		c.buf.Write(p[:n])
	}
	if err == io.EOF {
		totals := sseTotalsFromBuffer(c.buf.Bytes())
		c.server.APILog.LogResponse(map[string]any{
			"input_tokens":  totals.InputTokens,
			"output_tokens": totals.OutputTokens,
			"stop_reason":   totals.StopReason,
		}, latencyMS(c.start))
		if c.server.Capture.Enabled() {
			c.server.Capture.Write(nil, c.buf.Bytes())
		}
	}
	return n, err
}

func (c *streamTeeBody) Close() error { return c.inner.Close() }

func (s *Server) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("macf proxy: upstream request failed", "error", err)
	w.WriteHeader(http.StatusBadGateway)
}

// Start starts the HTTP server on addr (non-blocking; call Shutdown to
// stop it).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses can run arbitrarily long
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
