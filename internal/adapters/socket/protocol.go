// Package socket implements a JSON-over-Unix-socket protocol for the hilite daemon.
// The protocol uses newline-delimited JSON: each message is one JSON object + \n.
package socket

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
)

// SocketPath returns the Unix socket path for a given project root.
// Format: /tmp/hilite-{first12hex}.sock
func SocketPath(projectRoot string) string {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	h := sha256.Sum256([]byte(abs))
	return fmt.Sprintf("/tmp/hilite-%x.sock", h[:6])
}

// Method names for the protocol.
const (
	MethodTokenize  = "tokenize"
	MethodHighlight = "highlight"
	MethodGrammars  = "grammars"
	MethodHealth    = "health"
	MethodShutdown  = "shutdown"
)

// Request is the wire format for client-to-server messages.
type Request struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Response is the wire format for server-to-client messages.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Tokenize params and result are the worker protocol itself:
// {"language","text"} in, {"tree","aborted"} out.

// HighlightParams is the params for a highlight request.
type HighlightParams struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Async    bool   `json:"async,omitempty"`
	// Raw skips HTML escaping of Code.
	Raw bool `json:"raw,omitempty"`
}

// HighlightResult is the result of a highlight request.
type HighlightResult struct {
	ID          string   `json:"id"`
	Language    string   `json:"language"`
	Highlighted string   `json:"highlighted"`
	Trace       []string `json:"trace"`
	Aborted     bool     `json:"aborted,omitempty"`
	Fallback    bool     `json:"fallback,omitempty"`
	Cached      bool     `json:"cached,omitempty"`
	Elapsed     string   `json:"elapsed"`
}

// GrammarInfo describes a single registered grammar.
type GrammarInfo struct {
	Name       string   `json:"name"`
	Title      string   `json:"title,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
	Rules      []string `json:"rules"`
}

// GrammarsResult is the result of a grammars request.
type GrammarsResult struct {
	Grammars   []GrammarInfo `json:"grammars"`
	Count      int           `json:"count"`
	Generation uint64        `json:"generation"`
}

// HealthResult is the result of a health request.
type HealthResult struct {
	Status       string `json:"status"`
	GrammarCount int    `json:"grammar_count"`
	Generation   uint64 `json:"generation"`
	CacheEntries int    `json:"cache_entries"`
	Uptime       string `json:"uptime"`
}
