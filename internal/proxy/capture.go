package proxy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CaptureWriter writes one file per proxied request/response pair under
// dir, named by a monotonically increasing sequence plus a timestamp,
// when capture mode is enabled (MACF_PROXY_CAPTURE_DIR).
type CaptureWriter struct {
	Dir string
	seq int
}

// NewCaptureWriter builds a CaptureWriter rooted at dir; an empty dir
// disables capture entirely (Write becomes a no-op).
func NewCaptureWriter(dir string) *CaptureWriter {
	return &CaptureWriter{Dir: dir}
}

// Enabled reports whether capture mode is active.
func (c *CaptureWriter) Enabled() bool { return c.Dir != "" }

// Write persists one request/response capture, tolerating any I/O
// failure (capture is diagnostic, never load-bearing).
func (c *CaptureWriter) Write(requestBody, responseBody []byte) {
	if !c.Enabled() {
		return
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return
	}
	c.seq++
	stamp := time.Now().UTC().Format("20060102T150405.000000Z")
	base := fmt.Sprintf("%06d_%s", c.seq, stamp)

	_ = os.WriteFile(filepath.Join(c.Dir, base+"_request.json"), requestBody, 0o600)
	_ = os.WriteFile(filepath.Join(c.Dir, base+"_response.sse"), responseBody, 0o600)
}
