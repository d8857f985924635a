// Package breadcrumb mints and parses the composite address token carried
// on every event record: c_{cycle}/s_{session8}/p_{prompt8}/t_{unix}/g_{git7}.
package breadcrumb

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
)

// Breadcrumb is the parsed form of the composite address token.
type Breadcrumb struct {
	Cycle     int
	SessionID string // 8-char prefix
	PromptID  string // 8-char prefix, "none" if absent
	Timestamp int64  // unix seconds, 0 if absent
	GitHash   string // 7-char short hash, "" if absent
}

// String renders the breadcrumb in its canonical prefixed form. Optional
// components (timestamp, git hash) are omitted when zero/empty, matching
// the source format's "minimal format" fallback.
func (b Breadcrumb) String() string {
	parts := []string{
		fmt.Sprintf("c_%d", b.Cycle),
		fmt.Sprintf("s_%s", orDefault(b.SessionID, "unknown")),
		fmt.Sprintf("p_%s", orDefault(b.PromptID, "none")),
	}
	if b.Timestamp != 0 {
		parts = append(parts, fmt.Sprintf("t_%d", b.Timestamp))
	}
	if b.GitHash != "" {
		parts = append(parts, fmt.Sprintf("g_%s", b.GitHash))
	}
	return strings.Join(parts, "/")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Parse accepts either the prefixed form (c_61/s_.../p_.../t_.../g_...)
// or the legacy positional form (C61/session/prompt). Returns false when
// the breadcrumb cannot be parsed at all — callers should still treat the
// owning event as valid, just unfilterable on these axes.
func Parse(s string) (Breadcrumb, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Breadcrumb{}, false
	}
	segs := strings.Split(s, "/")
	if len(segs) == 0 {
		return Breadcrumb{}, false
	}

	var b Breadcrumb
	haveCycle, haveSession := false, false

	for i, seg := range segs {
		switch {
		case strings.HasPrefix(seg, "c_"):
			n, err := strconv.Atoi(strings.TrimPrefix(seg, "c_"))
			if err != nil {
				return Breadcrumb{}, false
			}
			b.Cycle, haveCycle = n, true
		case strings.HasPrefix(seg, "s_"):
			b.SessionID, haveSession = strings.TrimPrefix(seg, "s_"), true
		case strings.HasPrefix(seg, "p_"):
			b.PromptID = strings.TrimPrefix(seg, "p_")
		case strings.HasPrefix(seg, "t_"):
			n, err := strconv.ParseInt(strings.TrimPrefix(seg, "t_"), 10, 64)
			if err == nil {
				b.Timestamp = n
			}
		case strings.HasPrefix(seg, "g_"):
			b.GitHash = strings.TrimPrefix(seg, "g_")
		case i == 0 && strings.HasPrefix(seg, "C"):
			// legacy: C{n}
			n, err := strconv.Atoi(strings.TrimPrefix(seg, "C"))
			if err != nil {
				return Breadcrumb{}, false
			}
			b.Cycle, haveCycle = n, true
		case i == 1:
			// legacy positional session id
			b.SessionID, haveSession = seg, true
		case i == 2:
			// legacy positional prompt id
			b.PromptID = seg
		}
	}

	if !haveCycle || !haveSession {
		return Breadcrumb{}, false
	}
	if b.PromptID == "" {
		b.PromptID = "none"
	}
	return b, true
}

// Minter assembles breadcrumbs, caching the assembled value for a short
// TTL to absorb bursty callers within a single turn. It is an explicit,
// bounded-lifetime object rather than a package-level cache, per the
// design note against module-global caches.
type Minter struct {
	TTL time.Duration

	mu       sync.Mutex
	cached   Breadcrumb
	cachedAt time.Time
	valid    bool
}

// NewMinter returns a Minter with the spec's default 1s cache TTL.
func NewMinter() *Minter {
	return &Minter{TTL: time.Second}
}

// CycleSource resolves the current cycle number (from C3 projections).
type CycleSource func() int

// Mint assembles the 5-tuple from current cycle, session id, prompt id,
// current time, and a short git hash (in-process HEAD read, falling back
// to a 1s-timeout subprocess; absence OK).
func (m *Minter) Mint(sessionID, promptID string, cycle CycleSource) Breadcrumb {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.valid && now.Sub(m.cachedAt) < m.TTL &&
		m.cached.SessionID == shortOrDefault(sessionID) &&
		m.cached.PromptID == shortOrDefault(promptID) {
		return m.cached
	}

	b := Breadcrumb{
		Cycle:     cycle(),
		SessionID: shortOrDefault(sessionID),
		PromptID:  shortOrDefault(promptID),
		Timestamp: now.Unix(),
		GitHash:   shortGitHash(),
	}
	m.cached, m.cachedAt, m.valid = b, now, true
	return b
}

func shortOrDefault(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// shortGitHash resolves HEAD's short hash, preferring an in-process
// read over a subprocess; any failure on either path returns "" —
// absence is fine per spec.
func shortGitHash() string {
	if h := inProcessGitHash(); h != "" {
		return h
	}
	return execGitHash()
}

// inProcessGitHash opens the repository containing the current
// working directory with go-git and reads HEAD directly, avoiding a
// subprocess on the common path.
func inProcessGitHash() string {
	repo, err := git.PlainOpenWithOptions(".", &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	hash := head.Hash().String()
	if len(hash) > 7 {
		hash = hash[:7]
	}
	return hash
}

// execGitHash runs `git rev-parse --short=7 HEAD` under a 1s timeout;
// the fallback when go-git can't open or read the repository (bare
// repo, unusual ref storage, worktree edge cases) but the git binary
// still can.
func execGitHash() string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "rev-parse", "--short=7", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
