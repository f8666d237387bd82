package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/hilite/internal/adapters/socket"
	"github.com/corey/hilite/internal/domain/dispatch"
	"github.com/corey/hilite/internal/domain/grammar"
	"github.com/corey/hilite/internal/domain/lexer"
	"github.com/corey/hilite/internal/domain/render"
)

// fakeBackend implements socket.Backend over a one-grammar registry.
type fakeBackend struct {
	tk   *lexer.Tokenizer
	disp *dispatch.Dispatcher
}

func newFakeBackend() *fakeBackend {
	reg := grammar.NewRegistry()
	reg.DefineLanguage(
		grammar.Language{Name: "digits", Title: "Digits"},
		grammar.New(grammar.Pattern("number", grammar.MustCompile(`\d+`, ""))),
	)
	tk := lexer.NewTokenizer(reg, nil)
	return &fakeBackend{tk: tk, disp: dispatch.New(tk, render.New(nil))}
}

func (b *fakeBackend) TokenizeWire(req []byte) ([]byte, error) {
	return dispatch.HandleWorkerRequest(b.tk, req)
}

func (b *fakeBackend) Highlight(ctx context.Context, p socket.HighlightParams) (socket.HighlightResult, error) {
	if p.Language == "explode" {
		return socket.HighlightResult{}, errors.New("boom")
	}
	res, err := b.disp.Highlight(ctx, dispatch.Request{Language: p.Language, Code: p.Code})
	if err != nil {
		return socket.HighlightResult{}, err
	}
	return socket.HighlightResult{ID: res.ID, Language: res.Language, Highlighted: res.Highlighted}, nil
}

func (b *fakeBackend) Grammars() socket.GrammarsResult {
	return socket.GrammarsResult{
		Grammars: []socket.GrammarInfo{{Name: "digits", Title: "Digits", Rules: []string{"number"}}},
		Count:    1,
	}
}

func (b *fakeBackend) Health() socket.HealthResult {
	return socket.HealthResult{GrammarCount: 1, CacheEntries: 3}
}

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := NewServer(newFakeBackend(), "")
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts
}

// =============================================================================
// HTTP API: health, grammars, highlight, tokenize, playground page
// =============================================================================

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result socket.HealthResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, 1, result.GrammarCount)
	assert.Equal(t, 3, result.CacheEntries)
}

func TestGrammarsEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/grammars")
	require.NoError(t, err)
	defer resp.Body.Close()

	var result socket.GrammarsResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Grammars, 1)
	assert.Equal(t, "digits", result.Grammars[0].Name)
}

func TestHighlightEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/highlight", "application/json",
		strings.NewReader(`{"language":"digits","code":"a 42"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var result socket.HighlightResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, `a <span class="token number">42</span>`, result.Highlighted)
}

func TestHighlightEndpoint_Errors(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/highlight", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/highlight", "application/json",
		strings.NewReader(`{"language":"explode","code":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "boom", body["error"])
}

func TestHighlightEndpoint_MethodNotAllowed(t *testing.T) {
	ts := setupTestServer(t)
	for _, p := range []string{"/api/highlight", "/api/tokenize"} {
		resp, err := http.Get(ts.URL + p)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, p)
	}

	resp, err := http.Post(ts.URL+"/api/health", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUnknownPath(t *testing.T) {
	ts := setupTestServer(t)
	resp, err := http.Get(ts.URL + "/api/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTokenizeEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/tokenize", "application/json",
		strings.NewReader(`{"language":"digits","text":"7"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var reply dispatch.WorkerReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, "stream", string(reply.Tree.Kind))
	require.Len(t, reply.Tree.Children, 1)
	assert.Equal(t, "number", reply.Tree.Children[0].Type)

	bad, err := http.Post(ts.URL+"/api/tokenize", "application/json", strings.NewReader("nope"))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestPlaygroundHTML(t *testing.T) {
	ts := setupTestServer(t)

	for _, p := range []string{"/", "/static/index.html"} {
		resp, err := http.Get(ts.URL + p)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, 200, resp.StatusCode, p)
		ct := resp.Header.Get("Content-Type")
		assert.True(t, strings.HasPrefix(ct, "text/html"), "%s: content-type should be text/html, got %s", p, ct)
	}
}

func TestStartStop_PortFile(t *testing.T) {
	portFile := filepath.Join(t.TempDir(), "http.port")
	srv := NewServer(newFakeBackend(), portFile)
	require.NoError(t, srv.Start(0))

	data, err := os.ReadFile(portFile)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", srv.Port()), string(data))
	assert.Contains(t, srv.URL(), fmt.Sprintf(":%d", srv.Port()))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", srv.Port()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	srv.Stop()
	srv.Stop()
	_, err = os.Stat(portFile)
	assert.True(t, os.IsNotExist(err))
}

func TestDefaultPort(t *testing.T) {
	port := DefaultPort("/home/user/project")
	assert.GreaterOrEqual(t, port, 19000)
	assert.Less(t, port, 20000)

	// Same path should give same port
	assert.Equal(t, port, DefaultPort("/home/user/project"))

	port3 := DefaultPort("/home/user/other")
	assert.GreaterOrEqual(t, port3, 19000)
	assert.Less(t, port3, 20000)
}
