package hooks

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/cversek/macf/internal/projections"
)

// transcriptMessage is a loose view of one line of the host's own JSONL
// transcript. Readers must tolerate arbitrary message shapes (§6), so
// every field is optional and unknown shapes are simply skipped.
type transcriptMessage struct {
	Type    string          `json:"type"`
	UUID    string          `json:"uuid"`
	Message json.RawMessage `json:"message"`
}

type innerMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ResolveSessionID implements §4.4: primary is the newest session_started
// in the event log; fallback (first run only) is the mtime-newest JSONL
// file under the host's transcripts directory.
func ResolveSessionID(c *Context) string {
	if sid := projections.GetCurrentSessionIDFromEvents(c.Events); sid != "" {
		return sid
	}
	path := newestTranscriptFile(c.Env.HostTranscriptsDir(), "")
	if path == "" {
		return ""
	}
	return sessionIDFromFilename(path)
}

func sessionIDFromFilename(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// newestTranscriptFile returns the mtime-newest *.jsonl file in dir,
// excluding excludeSessionID (the current session, when scanning for a
// prior one).
func newestTranscriptFile(dir, excludeSessionID string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestMTime int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		if excludeSessionID != "" && sessionIDFromFilename(e.Name()) == excludeSessionID {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().Unix() > bestMTime {
			best, bestMTime = filepath.Join(dir, e.Name()), info.ModTime().Unix()
		}
	}
	return best
}

// readTailLines reads the last n lines of path via ReadAt at a computed
// offset rather than loading the whole file, per §4.1/§9's bounded
// reverse-read guidance.
func readTailLines(path string, n int) []string {
	f, err := os.Open(path)
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
	for {
		if readSize > size {
			readSize = size
		}
		buf := make([]byte, readSize)
		if _, err := f.ReadAt(buf, size-readSize); err != nil {
			return nil
		}
		lines := splitNonEmptyLines(buf)
		if len(lines) > n || readSize >= size {
			if len(lines) > n {
				lines = lines[len(lines)-n:]
			}
			return lines
		}
		readSize *= 2
	}
}

func splitNonEmptyLines(buf []byte) []string {
	parts := bytes.Split(buf, []byte("\n"))
	var out []string
	for _, p := range parts {
		if len(bytes.TrimSpace(p)) > 0 {
			out = append(out, string(p))
		}
	}
	return out
}

// LastUserPromptUUID scans the session's JSONL tail in reverse for the
// most recent user-role message whose content is a plain text prompt
// (skipping hook/tool-result envelopes), returning its uuid.
func LastUserPromptUUID(c *Context, sessionID string) string {
	path := filepath.Join(c.Env.HostTranscriptsDir(), sessionID+".jsonl")
	lines := readTailLines(path, 200)
	for i := len(lines) - 1; i >= 0; i-- {
		var tm transcriptMessage
		if err := json.Unmarshal([]byte(lines[i]), &tm); err != nil {
			continue
		}
		if tm.Type != "user" {
			continue
		}
		var im innerMessage
		if err := json.Unmarshal(tm.Message, &im); err != nil {
			continue
		}
		if im.Role != "user" {
			continue
		}
		if _, ok := im.Content.(string); ok {
			return tm.UUID
		}
	}
	return ""
}

// DetectCompactBoundary scans the session transcript's tail for a
// compact_boundary marker, used by the session-start decision tree when
// source is neither "compact" nor "resume".
func DetectCompactBoundary(c *Context, sessionID string) bool {
	path := filepath.Join(c.Env.HostTranscriptsDir(), sessionID+".jsonl")
	for _, line := range readTailLines(path, 500) {
		if bytes.Contains([]byte(line), []byte("compact_boundary")) {
			return true
		}
	}
	return false
}

// LatestArtifactByMtime returns the mtime-newest ".md" file in dir, so
// callers outside this package (e.g. `macf context`'s preview path) can
// reuse the same consciousness-artifact discovery the session-start
// runner uses.
func LatestArtifactByMtime(dir string) string {
	return latestArtifactByMtime(dir, ".md")
}

// latestArtifactByMtime returns the mtime-newest file in dir whose
// extension equals suffix (e.g. ".md"), used to gather
// consciousness artifacts (checkpoint/reflection/roadmap).
func latestArtifactByMtime(dir, suffix string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	type cand struct {
		path  string
		mtime int64
	}
	var all []cand
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if suffix != "" && filepath.Ext(e.Name()) != suffix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		all = append(all, cand{filepath.Join(dir, e.Name()), info.ModTime().Unix()})
	}
	if len(all) == 0 {
		return ""
	}
	sort.Slice(all, func(i, j int) bool { return all[i].mtime > all[j].mtime })
	return all[0].path
}
