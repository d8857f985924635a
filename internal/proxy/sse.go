package proxy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// StreamTotals accumulates token usage observed while passing an SSE
// response body through unmodified.
type StreamTotals struct {
	InputTokens  int64
	OutputTokens int64
	StopReason   string
}

// PassthroughSSE copies src to dst byte-for-byte (the proxy never
// rewrites a response), while decoding each "data: " line purely to
// accumulate usage totals for logging/metrics. Decode failures on a
// given line are tolerated — a line this parser doesn't recognize is
// still forwarded verbatim.
func PassthroughSSE(dst io.Writer, src io.Reader) (StreamTotals, error) {
	var totals StreamTotals
	reader := bufio.NewReader(src)
	w := bufio.NewWriter(dst)
	defer w.Flush()

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if _, werr := w.WriteString(line); werr != nil {
				return totals, werr
			}
			observeSSELine(line, &totals)
		}
		if err != nil {
			if err == io.EOF {
				return totals, nil
			}
			return totals, err
		}
	}
}

// sseTotalsFromBuffer parses an already-fully-buffered SSE body (the
// response-capture tee keeps its own copy in memory) into StreamTotals,
// for logging after the stream has finished rather than while it's
// still being copied to the client.
func sseTotalsFromBuffer(buf []byte) StreamTotals {
	var totals StreamTotals
	for _, line := range bytes.Split(buf, []byte("\n")) {
		observeSSELine(string(line), &totals)
	}
	return totals
}

func observeSSELine(line string, totals *StreamTotals) {
	payload := strings.TrimPrefix(strings.TrimSpace(line), "data:")
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[DONE]" {
		return
	}

	var disc struct {
		Type string `json:"type"`
	}
	if json.Unmarshal([]byte(payload), &disc) != nil {
		return
	}

	switch disc.Type {
	case "message_start":
		var ev sdk.MessageStartEvent
		if json.Unmarshal([]byte(payload), &ev) == nil {
			totals.InputTokens += int64(ev.Message.Usage.InputTokens)
			totals.OutputTokens += int64(ev.Message.Usage.OutputTokens)
		}
	case "message_delta":
		var ev sdk.MessageDeltaEvent
		if json.Unmarshal([]byte(payload), &ev) == nil {
			totals.OutputTokens += int64(ev.Usage.OutputTokens)
			if ev.Delta.StopReason != "" {
				totals.StopReason = string(ev.Delta.StopReason)
			}
		}
	}
}
