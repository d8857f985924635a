package proxy

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// APILog appends api_request/api_response records to agent_api_log.jsonl
// (§4.10 step 1, §6 external interface) — the proxy's own trace,
// independent of C1's event log, mirroring events.Store's flock-guarded
// append-only write so concurrent connections never interleave lines.
type APILog struct {
	path string
	mu   sync.Mutex
}

// NewAPILog builds an APILog writing to path. A nil *APILog (zero
// value's methods are guarded) is never needed — callers always pass a
// real path; the guard exists for tests that skip the log entirely.
func NewAPILog(path string) *APILog {
	return &APILog{path: path}
}

func (l *APILog) append(rec map[string]any) {
	if l == nil || l.path == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("api log: marshal failed", "error", err)
		return
	}
	line = append(line, '\n')

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			slog.Warn("api log: mkdir failed", "path", dir, "error", err)
			return
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("api log: open failed", "path", l.path, "error", err)
		return
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		slog.Warn("api log: lock failed", "path", l.path, "error", err)
		return
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	if _, err := f.Write(line); err != nil {
		slog.Warn("api log: write failed", "path", l.path, "error", err)
		return
	}
	_ = f.Sync()
}

func nowUnix() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// LogRequest records the §4.10 step-1 metadata extracted from one
// forwarded request.
func (l *APILog) LogRequest(meta requestMeta) {
	l.append(map[string]any{
		"type":                "api_request",
		"ts":                  nowUnix(),
		"model":               meta.Model,
		"message_count":       meta.MessageCount,
		"system_prompt_chars": meta.SystemPromptChars,
		"tool_count":          meta.ToolCount,
		"streaming":           meta.Streaming,
	})
}

// LogResponse records a merged api_response: usage/stop_reason/message
// metadata (from SSE totals, or the parsed body for a non-streaming
// reply) plus the request's round-trip latency.
func (l *APILog) LogResponse(fields map[string]any, latencyMS int64) {
	rec := map[string]any{"type": "api_response", "ts": nowUnix(), "latency_ms": latencyMS}
	for k, v := range fields {
		rec[k] = v
	}
	l.append(rec)
}
