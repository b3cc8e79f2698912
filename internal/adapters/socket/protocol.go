// Package socket implements a JSON-over-Unix-socket protocol for the temme daemon.
// The protocol uses newline-delimited JSON: each message is one JSON object + \n.
package socket

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
)

// SocketPath returns the Unix socket path for a given project root.
// Format: /tmp/temme-{first12hex}.sock
func SocketPath(projectRoot string) string {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	h := sha256.Sum256([]byte(abs))
	return fmt.Sprintf("/tmp/temme-%x.sock", h[:6])
}

// Method names for the protocol.
const (
	MethodRun      = "run"
	MethodWatch    = "watch"
	MethodStop     = "stop"
	MethodStatus   = "status"
	MethodHistory  = "history"
	MethodHealth   = "health"
	MethodShutdown = "shutdown"
)

// Request is the wire format for client-to-server messages.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response is the wire format for server-to-client messages.
type Response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TargetParams names a document and, optionally, the URL to fetch. An empty
// URL makes the daemon pick the document's only link.
type TargetParams struct {
	Document string `json:"document"`
	URL      string `json:"url,omitempty"`
}

// RunResult is the result of a run request.
type RunResult struct {
	Output  string `json:"output"`
	Bytes   int    `json:"bytes"`
	Elapsed string `json:"elapsed"`
}

// StatusResult describes the daemon's watch session.
type StatusResult struct {
	Status   string `json:"status"`
	Document string `json:"document,omitempty"`
	URL      string `json:"url,omitempty"`
	Session  string `json:"session,omitempty"`
	Output   string `json:"output,omitempty"`
	Since    int64  `json:"since"` // unix seconds
}

// HistoryParams is the params for a history request.
type HistoryParams struct {
	Document string `json:"document,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// HistoryResult is the result of a history request.
type HistoryResult struct {
	Runs  []RunInfo `json:"runs"`
	Count int       `json:"count"`
}

// RunInfo is one history record (wire format).
type RunInfo struct {
	Kind      string `json:"kind"`
	Document  string `json:"document"`
	URL       string `json:"url"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Bytes     int    `json:"bytes"`
	ElapsedMs int64  `json:"elapsed_ms"`
	At        int64  `json:"at"` // unix seconds
}

// HealthResult is the result of a health request.
type HealthResult struct {
	Status        string `json:"status"`
	SessionStatus string `json:"session_status"`
	ProjectRoot   string `json:"project_root,omitempty"`
	Uptime        string `json:"uptime"`
}
