package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/hilite/grammars"
	"github.com/corey/hilite/internal/domain/grammar"
	"github.com/corey/hilite/internal/domain/hooks"
	"github.com/corey/hilite/internal/domain/lexer"
	"github.com/corey/hilite/internal/domain/render"
	"github.com/corey/hilite/internal/domain/token"
)

func newTokenizer(t *testing.T) *lexer.Tokenizer {
	t.Helper()
	reg := grammar.NewRegistry()
	require.NoError(t, grammar.LoadFS(reg, grammars.FS, ".", grammar.LoadOptions{}))
	return lexer.NewTokenizer(reg, nil)
}

func newDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	return New(newTokenizer(t), render.New(nil), opts...)
}

type failingWorker struct{}

func (failingWorker) Tokenize(context.Context, []byte) ([]byte, error) {
	return nil, errors.New("worker crashed")
}

type garbageWorker struct{}

func (garbageWorker) Tokenize(context.Context, []byte) ([]byte, error) {
	return []byte(`{"tree":{"kind":"bogus"}}`), nil
}

// blockingWorker never replies until released.
type blockingWorker struct {
	release chan struct{}
}

func (w blockingWorker) Tokenize(ctx context.Context, _ []byte) ([]byte, error) {
	select {
	case <-w.release:
		return nil, errors.New("released")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Put(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	c.puts++
	return nil
}

func (c *memCache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = map[string][]byte{}
	return nil
}

func (c *memCache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data), nil
}

// =============================================================================
// Sync and async paths produce the same markup
// =============================================================================

func TestHighlight_Sync(t *testing.T) {
	d := newDispatcher(t)
	res, err := d.Highlight(context.Background(), Request{Language: "javascript", Code: "var x = 1;"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Contains(t, res.Highlighted, `<span class="token keyword">var</span>`)
	assert.Equal(t, []State{Idle, Dispatched, Tokenized, Stringified, Delivered}, res.Trace)
	assert.False(t, res.Aborted)
	assert.False(t, res.Fallback)
}

func TestHighlight_AsyncMatchesSync(t *testing.T) {
	d := newDispatcher(t)
	code := `function f(a) { return a + "x"; } // done`

	syncRes, err := d.Highlight(context.Background(), Request{Language: "javascript", Code: code, Mode: Sync})
	require.NoError(t, err)
	asyncRes, err := d.Highlight(context.Background(), Request{Language: "javascript", Code: code, Mode: Async})
	require.NoError(t, err)

	assert.Equal(t, syncRes.Highlighted, asyncRes.Highlighted)
	assert.Equal(t,
		[]State{Idle, Dispatched, AwaitingWorkerReply, Tokenized, Stringified, Delivered},
		asyncRes.Trace)
	assert.False(t, asyncRes.Fallback)
}

func TestHighlight_KeepsCallerID(t *testing.T) {
	d := newDispatcher(t)
	res, err := d.Highlight(context.Background(), Request{ID: "req-1", Language: "css", Code: "a{}"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", res.ID)
}

func TestHighlight_UnknownLanguageIsPlain(t *testing.T) {
	d := newDispatcher(t)
	for _, mode := range []Mode{Sync, Async} {
		res, err := d.Highlight(context.Background(), Request{Language: "cobol", Code: "MOVE A TO B", Mode: mode})
		require.NoError(t, err, mode)
		assert.Equal(t, "MOVE A TO B", res.Highlighted, mode)
	}
}

func TestHighlight_AbortedStillDelivered(t *testing.T) {
	reg := grammar.NewRegistry()
	reg.Define("runaway", grammar.New(grammar.Pattern("empty", grammar.MustCompile("x*", ""))))
	d := New(lexer.NewTokenizer(reg, nil), render.New(nil))

	for _, mode := range []Mode{Sync, Async} {
		res, err := d.Highlight(context.Background(), Request{Language: "runaway", Code: "ab", Mode: mode})
		require.NoError(t, err)
		assert.True(t, res.Aborted, mode)
		assert.Contains(t, res.Trace, Aborted)
		assert.Equal(t, Delivered, res.Trace[len(res.Trace)-1])
	}
}

// =============================================================================
// Worker failures fall back to the sync path
// =============================================================================

func TestHighlight_WorkerErrorFallsBack(t *testing.T) {
	for name, w := range map[string]Option{
		"error":   WithWorker(failingWorker{}),
		"garbage": WithWorker(garbageWorker{}),
	} {
		t.Run(name, func(t *testing.T) {
			d := newDispatcher(t, w)
			res, err := d.Highlight(context.Background(), Request{Language: "css", Code: "a{}", Mode: Async})
			require.NoError(t, err)
			assert.True(t, res.Fallback)
			assert.Contains(t, res.Highlighted, `class="token selector"`)
		})
	}
}

func TestHighlight_WorkerTimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := newDispatcher(t, WithWorker(blockingWorker{release: release}), WithWorkerTimeout(20*time.Millisecond))

	res, err := d.Highlight(context.Background(), Request{Language: "css", Code: "a{}", Mode: Async})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestHighlight_CallerCancelStopsWaiting(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := newDispatcher(t, WithWorker(blockingWorker{release: release}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Highlight(ctx, Request{Language: "css", Code: "a{}", Mode: Async})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// =============================================================================
// Tree cache
// =============================================================================

func TestHighlight_CacheHit(t *testing.T) {
	cache := newMemCache()
	d := newDispatcher(t, WithCache(cache))
	req := Request{Language: "css", Code: "a{color:red}"}

	first, err := d.Highlight(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.puts)

	second, err := d.Highlight(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Highlighted, second.Highlighted)
	assert.Equal(t, 1, cache.puts)
}

func TestHighlight_CacheKeyFollowsRegistryChanges(t *testing.T) {
	cache := newMemCache()
	tk := newTokenizer(t)
	d := New(tk, render.New(nil), WithCache(cache))
	req := Request{Language: "css", Code: "a{}"}

	_, err := d.Highlight(context.Background(), req)
	require.NoError(t, err)
	tk.Registry().Define("extra", grammar.New())

	res, err := d.Highlight(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	n, _ := cache.Len()
	assert.Equal(t, 2, n)
}

func TestHighlight_AbortedNotCached(t *testing.T) {
	cache := newMemCache()
	reg := grammar.NewRegistry()
	reg.Define("runaway", grammar.New(grammar.Pattern("empty", grammar.MustCompile("x*", ""))))
	d := New(lexer.NewTokenizer(reg, nil), render.New(nil), WithCache(cache))

	_, err := d.Highlight(context.Background(), Request{Language: "runaway", Code: "ab"})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.puts)
}

func TestHighlight_NestedAbortNotCached(t *testing.T) {
	cache := newMemCache()
	reg := grammar.NewRegistry()
	reg.Define("nested", grammar.New(grammar.Rule{
		Name:    "block",
		Pattern: grammar.MustCompile(`\[[^\]]*\]`, ""),
		Inside:  grammar.New(grammar.Pattern("empty", grammar.MustCompile("x*", ""))),
	}))
	d := New(lexer.NewTokenizer(reg, nil), render.New(nil), WithCache(cache))

	for _, mode := range []Mode{Sync, Async} {
		res, err := d.Highlight(context.Background(), Request{Language: "nested", Code: "a [bc]", Mode: mode})
		require.NoError(t, err)
		assert.True(t, res.Aborted, mode)
	}
	assert.Equal(t, 0, cache.puts)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("css", "f1", "x")
	assert.Len(t, a, 64)
	assert.Equal(t, a, CacheKey("css", "f1", "x"))
	assert.NotEqual(t, a, CacheKey("css", "f2", "x"))
	assert.NotEqual(t, a, CacheKey("cs", "f1", "sx"))
	assert.NotEqual(t, a, CacheKey("css", "f", "1x"))
}

// =============================================================================
// Worker protocol
// =============================================================================

func TestHandleWorkerRequest(t *testing.T) {
	tk := newTokenizer(t)
	out, err := HandleWorkerRequest(tk, []byte(`{"language":"java","text":"int x;"}`))
	require.NoError(t, err)

	var reply WorkerReply
	require.NoError(t, json.Unmarshal(out, &reply))
	tree, err := token.DecodeStream(reply.Tree)
	require.NoError(t, err)
	assert.Equal(t, "int x;", token.Raw(tree))
	assert.Contains(t, token.Types(tree), "keyword")

	_, err = HandleWorkerRequest(tk, []byte("nope"))
	assert.Error(t, err)
}

func TestSpawnWorker_OneGoroutinePerRequest(t *testing.T) {
	w := NewSpawnWorker(newTokenizer(t))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := w.Tokenize(context.Background(), []byte(`{"language":"css","text":"b{}"}`))
			assert.NoError(t, err)
			assert.Contains(t, string(out), `"selector"`)
		}()
	}
	wg.Wait()
}

func TestTokenizeHooksRunOnWorker(t *testing.T) {
	reg := grammar.NewRegistry()
	reg.Define("lang", grammar.New(grammar.Pattern("n", grammar.MustCompile(`\d`, ""))))
	bus := hooks.NewBus()
	calls := 0
	bus.AddTokenize(hooks.BeforeTokenize, func(*hooks.TokenizeEnv) { calls++ })

	d := New(lexer.NewTokenizer(reg, bus), render.New(bus))
	_, err := d.Highlight(context.Background(), Request{Language: "lang", Code: "1", Mode: Async})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestModeAndStateNames(t *testing.T) {
	m, err := ParseMode("async")
	require.NoError(t, err)
	assert.Equal(t, Async, m)
	_, err = ParseMode("later")
	assert.Error(t, err)

	assert.Equal(t, "awaiting-worker-reply", AwaitingWorkerReply.String())
	b, _ := json.Marshal([]State{Idle, Delivered})
	assert.JSONEq(t, `["idle","delivered"]`, string(b))
}
