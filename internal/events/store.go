package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cversek/macf/internal/breadcrumb"
	"github.com/cversek/macf/internal/env"
)

// Store is the event log's public handle. It never panics and never lets
// an append failure propagate — callers get a bool, matching the source
// contract that the telemetry layer must not crash the host agent's turn.
type Store struct {
	Env    *env.Environment
	Minter *breadcrumb.Minter

	// SessionID / PromptID / Cycle feed the breadcrumb minted on every
	// append. Set by the hook runner for the duration of one invocation.
	SessionID string
	PromptID  string
	Cycle     func() int

	mu sync.Mutex // serializes this process's own appends before flock
}

// NewStore builds a Store from an Environment, with a fresh 1s-TTL
// breadcrumb minter.
func NewStore(e *env.Environment) *Store {
	return &Store{Env: e, Minter: breadcrumb.NewMinter(), Cycle: func() int { return 0 }}
}

func (s *Store) path() string { return s.Env.EventsLogPath() }

// Append writes one record to the log. Never raises; returns false on
// I/O failure, per §4.1. The breadcrumb is cached 1s by the Minter to
// absorb bursty callers within the same turn.
func (s *Store) Append(eventName string, data any, hookInput any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dataRaw, err := marshalOrNull(data)
	if err != nil {
		slog.Warn("event append: marshal data failed", "event", eventName, "error", err)
		return false
	}
	hookRaw, err := marshalOrNull(hookInput)
	if err != nil {
		hookRaw = nil
	}

	bc := s.Minter.Mint(s.SessionID, s.PromptID, s.Cycle)
	rec := Record{
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
		Event:      eventName,
		Breadcrumb: bc.String(),
		Data:       dataRaw,
		HookInput:  hookRaw,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("event append: marshal record failed", "event", eventName, "error", err)
		return false
	}
	line = append(line, '\n')

	path := s.path()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			slog.Warn("event append: mkdir failed", "path", dir, "error", err)
			return false
		}
	}

	_, existedBefore := os.Stat(path)
	firstCreate := os.IsNotExist(existedBefore)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("event append: open failed", "path", path, "error", err)
		return false
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		slog.Warn("event append: lock failed", "path", path, "error", err)
		return false
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	if _, err := f.Write(line); err != nil {
		slog.Warn("event append: write failed", "path", path, "error", err)
		return false
	}
	if err := f.Sync(); err != nil {
		slog.Warn("event append: flush failed", "path", path, "error", err)
		return false
	}

	if firstCreate {
		_ = os.Chmod(path, 0o600)
	}
	return true
}

func marshalOrNull(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Read returns up to limit records (0 = unlimited) in forward or reverse
// order. Malformed lines are skipped, never abort the scan. Reverse mode
// buffers a bounded tail rather than the whole file.
func (s *Store) Read(limit int, reverse bool) []Record {
	if reverse {
		return s.readReverse(limit)
	}
	return s.readForward(limit)
}

func (s *Store) readForward(limit int) []Record {
	f, err := os.Open(s.path())
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue // malformed line: skip, never abort
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// readReverse streams end-to-start by reading the file in growing tail
// chunks until enough complete lines are collected or the file start is
// reached. This avoids loading arbitrarily large logs into memory when
// the caller only wants the last few records.
func (s *Store) readReverse(limit int) []Record {
	f, err := os.Open(s.path())
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	const chunk = 64 * 1024
	readSize := int64(chunk)
	var lines [][]byte

	for {
		if readSize > size {
			readSize = size
		}
		buf := make([]byte, readSize)
		if _, err := f.ReadAt(buf, size-readSize); err != nil && err != io.EOF {
			return parseReverse(lines, limit)
		}
		parts := bytes.Split(buf, []byte("\n"))
		// Drop a possibly-partial first fragment unless we've read the
		// whole file already (offset 0).
		if size-readSize > 0 && len(parts) > 0 {
			parts = parts[1:]
		}
		lines = parts
		if (limit > 0 && len(nonEmpty(lines)) >= limit) || readSize >= size {
			break
		}
		readSize *= 2
	}
	return parseReverse(lines, limit)
}

func nonEmpty(lines [][]byte) [][]byte {
	var out [][]byte
	for _, l := range lines {
		if len(bytes.TrimSpace(l)) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func parseReverse(lines [][]byte, limit int) []Record {
	clean := nonEmpty(lines)
	var out []Record
	for i := len(clean) - 1; i >= 0; i-- {
		var r Record
		if err := json.Unmarshal(clean[i], &r); err != nil {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Exists reports whether the log file is present yet.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path())
	return err == nil
}
