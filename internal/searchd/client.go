package searchd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is the stdlib-only client hooks use to query the warm daemon.
// Every failure mode (timeout, connection refused, decode error)
// degrades to an empty-string response; it never raises, per §4.9.
type Client struct {
	Addr    string
	Timeout time.Duration
}

// NewClient builds a Client for addr ("" defaults to 127.0.0.1:9001)
// with the spec's default 500ms timeout.
func NewClient(addr string) *Client {
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", DefaultPort)
	}
	return &Client{Addr: addr, Timeout: 500 * time.Millisecond}
}

// Query sends one request and returns the daemon's response, degrading
// to an empty Response on any failure.
func (c *Client) Query(namespace, query string, limit int) Response {
	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return Response{Formatted: ""}
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.Timeout))

	reqBytes, err := json.Marshal(Request{Namespace: namespace, Query: query, Limit: limit})
	if err != nil {
		return Response{Formatted: ""}
	}
	reqBytes = append(reqBytes, '\n')
	if _, err := conn.Write(reqBytes); err != nil {
		return Response{Formatted: ""}
	}

	line, err := bufio.NewReaderSize(conn, 4096).ReadString('\n')
	if err != nil {
		return Response{Formatted: ""}
	}

	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return Response{Formatted: ""}
	}
	return resp
}

// GetPolicyInjection is the hook-layer convenience wrapper: returns the
// empty string when prompt is under 10 characters (guard matches §4.8's
// query-length floor) or when the daemon is unreachable.
func (c *Client) GetPolicyInjection(prompt string) string {
	if len(prompt) < 10 {
		return ""
	}
	return c.Query("policy", prompt, 5).Formatted
}
