package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/hilite/internal/domain/dispatch"
	"github.com/corey/hilite/internal/domain/grammar"
	"github.com/corey/hilite/internal/domain/hooks"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.GrammarDir = t.TempDir()
	return cfg
}

func newEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(testConfig(t), opts...)
	require.NoError(t, err)
	return e
}

type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	purges int
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
	return nil
}

func (c *memCache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = map[string][]byte{}
	c.purges++
	return nil
}

func (c *memCache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data), nil
}

// =============================================================================
// Engine construction and the bare pipeline
// =============================================================================

func TestNewEngine_BundledGrammars(t *testing.T) {
	e := newEngine(t)
	assert.ElementsMatch(t, []string{"css", "java", "javascript", "markup"}, e.Registry().Names())
	assert.Greater(t, e.Detector().PatternCount(), 0)
	assert.Equal(t, 2, e.Bus().Len(hooks.Wrap), "stock wrap plugins installed")
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MissingRule = "sometimes"
	_, err := NewEngine(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Jobs = -1
	_, err = NewEngine(cfg)
	assert.Error(t, err)
}

func TestEngine_Highlight(t *testing.T) {
	e := newEngine(t)
	got := e.Highlight("var x", "javascript")
	assert.Equal(t, `<span class="token keyword">var</span> x`, got)
	assert.Equal(t, "plain", e.Highlight("plain", "cobol"))
}

func TestEngine_Tokenize(t *testing.T) {
	e := newEngine(t)
	res := e.Tokenize("int x;", "java")
	assert.False(t, res.Aborted)
	assert.NotEmpty(t, res.Stream)
}

// =============================================================================
// HighlightCode: escaping and highlight hooks
// =============================================================================

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp;&amp; c d", Escape("a <b> && c d"))
	assert.Equal(t, "", Escape(""))
}

func TestHighlightCode_EscapesByDefault(t *testing.T) {
	e := newEngine(t)
	res, err := e.HighlightCode(context.Background(), HighlightRequest{Language: "cobol", Code: "a < b && c"})
	require.NoError(t, err)
	assert.Equal(t, "a &lt; b &amp;&amp; c", res.Highlighted)
}

func TestHighlightCode_Raw(t *testing.T) {
	e := newEngine(t)
	res, err := e.HighlightCode(context.Background(), HighlightRequest{Language: "cobol", Code: "a &lt; b", Raw: true})
	require.NoError(t, err)
	assert.Equal(t, "a &lt; b", res.Highlighted)
}

func TestHighlightCode_MarkupTags(t *testing.T) {
	e := newEngine(t)
	res, err := e.HighlightCode(context.Background(), HighlightRequest{Language: "markup", Code: "<b>hi</b>"})
	require.NoError(t, err)
	assert.Contains(t, res.Highlighted, `class="token tag"`)
	assert.NotContains(t, res.Highlighted, "<b>")
}

func TestHighlightCode_Hooks(t *testing.T) {
	bus := hooks.NewBus()
	var seen []string
	bus.AddHighlight(hooks.BeforeHighlight, func(env *hooks.HighlightEnv) {
		seen = append(seen, "before:"+env.Language)
		require.NotNil(t, env.Grammar)
		env.Code = "let " + env.Code
	})
	bus.AddHighlight(hooks.AfterHighlight, func(env *hooks.HighlightEnv) {
		seen = append(seen, "after")
		assert.NotEmpty(t, env.Tree)
		env.Highlighted = "<pre>" + env.Highlighted + "</pre>"
	})

	e := newEngine(t, WithBus(bus))
	res, err := e.HighlightCode(context.Background(), HighlightRequest{Language: "javascript", Code: "x"})
	require.NoError(t, err)
	assert.Equal(t, `<pre><span class="token keyword">let</span> x</pre>`, res.Highlighted)
	assert.Equal(t, []string{"before:javascript", "after"}, seen)
}

func TestHighlightCode_AsyncMatchesSync(t *testing.T) {
	e := newEngine(t)
	code := "public class A { int x = 1; }"
	s, err := e.HighlightCode(context.Background(), HighlightRequest{Language: "java", Code: code})
	require.NoError(t, err)
	a, err := e.HighlightCode(context.Background(), HighlightRequest{Language: "java", Code: code, Mode: dispatch.Async})
	require.NoError(t, err)
	assert.Equal(t, s.Highlighted, a.Highlighted)
	assert.Contains(t, a.Trace, dispatch.AwaitingWorkerReply)
}

func TestHighlightCode_KeepsID(t *testing.T) {
	e := newEngine(t)
	res, err := e.HighlightCode(context.Background(), HighlightRequest{ID: "abc", Language: "css", Code: "a{}"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.ID)
}

// =============================================================================
// Language resolution: flag, extension, signatures
// =============================================================================

func TestResolveLanguage(t *testing.T) {
	e := newEngine(t)
	cases := []struct {
		name, lang, file, content, want string
	}{
		{"explicit", "css", "x.java", "", "css"},
		{"explicit extension alias", "js", "", "", "javascript"},
		{"unknown explicit kept", "cobol", "a.css", "", "cobol"},
		{"extension", "", "src/Main.java", "", "java"},
		{"extension case", "", "INDEX.HTML", "", "markup"},
		{"detected", "", "notes.txt", "function f() { console.log(1) }", "javascript"},
		{"detected markup", "", "", "<!DOCTYPE html><html></html>", "markup"},
		{"nothing", "", "", "plain words", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.ResolveLanguage(tc.lang, tc.file, tc.content))
		})
	}
}

// =============================================================================
// Reload: user grammar directory layered over bundled grammars
// =============================================================================

const iniGrammar = `
name: ini
title: INI
extensions: [ini]
signatures: ["[section]"]
rules:
  - name: section
    pattern: '^\[[^\]]+\]'
    flags: m
  - name: key
    pattern: '^\w+'
    flags: m
`

func TestLoadRegistry_UserDir(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.GrammarDir, "ini.yaml"), []byte(iniGrammar), 0644))

	reg, err := LoadRegistry(cfg)
	require.NoError(t, err)
	_, ok := reg.Lookup("ini")
	assert.True(t, ok)
	_, ok = reg.Lookup("markup")
	assert.True(t, ok)
}

func TestLoadRegistry_MissingUserDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.GrammarDir = filepath.Join(cfg.GrammarDir, "absent")
	reg, err := LoadRegistry(cfg)
	require.NoError(t, err)
	assert.Len(t, reg.Names(), 4)
}

func TestLoadRegistry_MissingRulePolicy(t *testing.T) {
	insert := `
name: extra
rules: []
insert_before:
  - grammar: markup
    before: nowhere
    rules:
      - name: marker
        pattern: '@@'
`
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.GrammarDir, "extra.yaml"), []byte(insert), 0644))

	_, err := LoadRegistry(cfg)
	require.NoError(t, err, "silent by default")

	cfg.MissingRule = "report"
	_, err = LoadRegistry(cfg)
	assert.ErrorIs(t, err, grammar.ErrRuleNotFound)
}

func TestEngine_Reload(t *testing.T) {
	cfg := testConfig(t)
	cache := newMemCache()
	e, err := NewEngine(cfg, WithTreeCache(cache))
	require.NoError(t, err)
	gen := e.Registry().Generation()

	require.NoError(t, os.WriteFile(filepath.Join(cfg.GrammarDir, "ini.yaml"), []byte(iniGrammar), 0644))
	require.NoError(t, e.Reload())

	_, ok := e.Registry().Lookup("ini")
	assert.True(t, ok)
	assert.Greater(t, e.Registry().Generation(), gen)
	assert.Equal(t, 1, cache.purges)
	assert.Equal(t, "ini", e.ResolveLanguage("", "", "[section]\nkey=1"))
	assert.Equal(t, `<span class="token key">key</span>=1`, e.Highlight("key=1", "ini"))
}

func TestEngine_ReloadKeepsGrammarsOnError(t *testing.T) {
	cfg := testConfig(t)
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	bad := "name: broken\nrules:\n  - name: x\n    pattern: '('\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.GrammarDir, "broken.yaml"), []byte(bad), 0644))

	assert.ErrorIs(t, e.Reload(), grammar.ErrInvalidPattern)
	_, ok := e.Registry().Lookup("css")
	assert.True(t, ok)
	_, ok = e.Registry().Lookup("broken")
	assert.False(t, ok)
}
