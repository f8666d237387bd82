package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/corey/hilite/grammars"
	"github.com/corey/hilite/internal/adapters/ahocorasick"
	"github.com/corey/hilite/internal/domain/dispatch"
	"github.com/corey/hilite/internal/domain/grammar"
	"github.com/corey/hilite/internal/domain/hooks"
	"github.com/corey/hilite/internal/domain/lexer"
	"github.com/corey/hilite/internal/domain/render"
	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
	"github.com/corey/hilite/internal/ports"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "app")

// Engine is the in-process highlighter: registry, hook bus, tokenizer,
// renderer, dispatcher and language detector wired together. The CLI uses it
// directly; the daemon wraps it in an App.
type Engine struct {
	cfg        Config
	registry   *grammar.Registry
	bus        *hooks.Bus
	tokenizer  *lexer.Tokenizer
	renderer   *render.Renderer
	dispatcher *dispatch.Dispatcher
	detector   *ahocorasick.Detector
	cache      ports.TreeCache

	reloadMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	cache  ports.TreeCache
	worker ports.Worker
	bus    *hooks.Bus
}

// WithTreeCache lets the dispatcher reuse tokenized trees.
func WithTreeCache(c ports.TreeCache) EngineOption {
	return func(o *engineOptions) { o.cache = c }
}

// WithWorker replaces the in-process worker used by async requests.
func WithWorker(w ports.Worker) EngineOption {
	return func(o *engineOptions) { o.worker = w }
}

// WithBus supplies the hook bus. The stock plugins are installed on it.
func WithBus(b *hooks.Bus) EngineOption {
	return func(o *engineOptions) { o.bus = b }
}

// NewEngine loads the bundled grammars plus cfg.GrammarDir and wires the
// pipeline. Grammar errors are returned as is.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = hooks.NewBus()
	}
	render.InstallDefaults(o.bus)

	reg, err := LoadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	detector, err := ahocorasick.NewDetector(signatures(reg))
	if err != nil {
		return nil, fmt.Errorf("build detector: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		registry:  reg,
		bus:       o.bus,
		tokenizer: lexer.NewTokenizer(reg, o.bus),
		renderer:  render.New(o.bus),
		detector:  detector,
		cache:     o.cache,
	}

	dopts := []dispatch.Option{dispatch.WithWorkerTimeout(cfg.WorkerTimeout)}
	if o.worker != nil {
		dopts = append(dopts, dispatch.WithWorker(o.worker))
	}
	if o.cache != nil {
		dopts = append(dopts, dispatch.WithCache(o.cache))
	}
	e.dispatcher = dispatch.New(e.tokenizer, e.renderer, dopts...)

	log.WithFields(logrus.Fields{
		logfields.Count: len(reg.Names()),
		"signatures":    detector.PatternCount(),
	}).Debug("Engine ready")
	return e, nil
}

// LoadRegistry builds a registry from the bundled grammars and, when it
// exists, the user grammar directory. User files load after the bundled ones
// so their insert_before directives can extend bundled grammars.
func LoadRegistry(cfg Config) (*grammar.Registry, error) {
	policy, err := grammar.ParseMissingRulePolicy(cfg.MissingRule)
	if err != nil {
		return nil, err
	}
	reg := grammar.NewRegistry(grammar.WithMissingRule(policy))

	sources := []grammar.Source{{FS: grammars.FS, Dir: "."}}
	if cfg.GrammarDir != "" {
		if info, err := os.Stat(cfg.GrammarDir); err == nil && info.IsDir() {
			sources = append(sources, grammar.Source{FS: os.DirFS(cfg.GrammarDir), Dir: "."})
		}
	}

	if err := grammar.Load(reg, grammar.LoadOptions{MatchTimeout: cfg.MatchTimeout}, sources...); err != nil {
		return nil, fmt.Errorf("load grammars: %w", err)
	}
	return reg, nil
}

func signatures(reg *grammar.Registry) map[string][]string {
	sigs := make(map[string][]string)
	for _, lang := range reg.Languages() {
		if len(lang.Signatures) > 0 {
			sigs[lang.Name] = lang.Signatures
		}
	}
	return sigs
}

// Registry returns the live grammar registry.
func (e *Engine) Registry() *grammar.Registry { return e.registry }

// Bus returns the hook bus.
func (e *Engine) Bus() *hooks.Bus { return e.bus }

// Tokenizer returns the registry-bound tokenizer.
func (e *Engine) Tokenizer() *lexer.Tokenizer { return e.tokenizer }

// Detector returns the signature detector.
func (e *Engine) Detector() *ahocorasick.Detector { return e.detector }

// Highlight tokenizes text with the named grammar and renders it. No escaping
// and no highlight hooks: this is the bare tokenize-then-stringify pipeline.
func (e *Engine) Highlight(text, grammarName string) string {
	res := e.tokenizer.TokenizeByName(text, grammarName)
	return e.renderer.Stringify(res.Stream, grammarName)
}

// Tokenize returns the token tree for text without rendering it.
func (e *Engine) Tokenize(text, grammarName string) lexer.Result {
	return e.tokenizer.TokenizeByName(text, grammarName)
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\u00a0", " ",
)

// Escape makes source text safe to embed as markup. Bundled grammars match
// the escaped form (&lt; rather than <).
func Escape(code string) string {
	return escaper.Replace(code)
}

// HighlightRequest is one highlight call through the full pipeline.
type HighlightRequest struct {
	ID       string
	Language string
	Code     string
	Mode     dispatch.Mode
	// Raw skips escaping; Code is already markup-safe.
	Raw bool
}

// HighlightCode escapes the code, runs before-highlight hooks, dispatches,
// then runs after-highlight hooks on the delivered markup.
func (e *Engine) HighlightCode(ctx context.Context, req HighlightRequest) (*dispatch.Result, error) {
	code := req.Code
	if !req.Raw {
		code = Escape(code)
	}

	g, _ := e.registry.Lookup(req.Language)
	env := &hooks.HighlightEnv{Language: req.Language, Grammar: g, Code: code}
	e.bus.Run(hooks.BeforeHighlight, env)

	res, err := e.dispatcher.Highlight(ctx, dispatch.Request{
		ID:       req.ID,
		Language: env.Language,
		Code:     env.Code,
		Mode:     req.Mode,
	})
	if err != nil {
		return nil, err
	}

	env.Highlighted = res.Highlighted
	env.Tree = res.Tree
	e.bus.Run(hooks.AfterHighlight, env)
	res.Highlighted = env.Highlighted
	return res, nil
}

// TokenizeWire answers one worker-protocol request with this engine's
// tokenizer. The daemon serves it to remote workers.
func (e *Engine) TokenizeWire(req []byte) ([]byte, error) {
	return dispatch.HandleWorkerRequest(e.tokenizer, req)
}

// ResolveLanguage picks a grammar for a snippet: an explicit name wins, then
// the file extension, then signature detection. Returns "" when nothing fits.
func (e *Engine) ResolveLanguage(lang, filename, content string) string {
	if lang != "" {
		if _, ok := e.registry.Lookup(lang); ok {
			return lang
		}
		if name := e.byExtension("." + lang); name != "" {
			return name
		}
		return lang
	}
	if filename != "" {
		if name := e.byExtension(filepath.Ext(filename)); name != "" {
			return name
		}
	}
	return e.detector.Detect(content)
}

func (e *Engine) byExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || ext == "." {
		return ""
	}
	for _, lang := range e.registry.Languages() {
		for _, x := range lang.Extensions {
			if x == ext {
				return lang.Name
			}
		}
	}
	return ""
}

// Reload rebuilds the registry from disk and swaps it in. On error the
// current grammars stay active.
func (e *Engine) Reload() error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	fresh, err := LoadRegistry(e.cfg)
	if err != nil {
		return err
	}
	sigs := signatures(fresh)
	e.registry.Replace(fresh)
	if err := e.detector.Rebuild(sigs); err != nil {
		return fmt.Errorf("rebuild detector: %w", err)
	}
	if e.cache != nil {
		if err := e.cache.Purge(); err != nil {
			log.WithError(err).Warn("Failed to purge tree cache after reload")
		}
	}

	log.WithFields(logrus.Fields{
		logfields.Count: len(e.registry.Names()),
		"generation":    e.registry.Generation(),
	}).Info("Grammars reloaded")
	return nil
}
