// Package app wires together all adapters and domain logic.
// It provides the in-process Engine and lifecycle management for the hilite
// daemon: create, start, stop.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/corey/hilite/internal/adapters/bbolt"
	fsw "github.com/corey/hilite/internal/adapters/fsnotify"
	"github.com/corey/hilite/internal/adapters/socket"
	"github.com/corey/hilite/internal/adapters/web"
	"github.com/corey/hilite/internal/domain/dispatch"
	"github.com/corey/hilite/internal/logging/logfields"
	"github.com/corey/hilite/internal/ports"
)

// App is the daemon: an Engine served over the unix socket and HTTP, with a
// persistent tree cache and grammar hot reload.
type App struct {
	ProjectRoot string
	Paths       *Paths

	Engine    *Engine
	Store     *bbolt.Store // nil when the cache is disabled
	Watcher   ports.Watcher
	Server    *socket.Server
	WebServer *web.Server

	cfg     Config
	started time.Time
}

// New creates an App with all dependencies wired. Does not start services.
func New(cfg Config) (*App, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("project root required")
	}
	paths := NewPaths(cfg.ProjectRoot)
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create %s: %w", paths.Root, err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = paths.DB
	}
	if cfg.GrammarDir == "" {
		cfg.GrammarDir = paths.GrammarsDir
	}

	var opts []EngineOption
	var store *bbolt.Store
	if cfg.Cache {
		s, err := OpenCache(cfg.DBPath, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		store = s
		opts = append(opts, WithTreeCache(store))
	}

	engine, err := NewEngine(cfg, opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	watcher, err := fsw.NewWatcher()
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	a := &App{
		ProjectRoot: cfg.ProjectRoot,
		Paths:       paths,
		Engine:      engine,
		Store:       store,
		Watcher:     watcher,
		cfg:         cfg,
	}
	a.Server = socket.NewServer(a, paths.Socket)
	a.WebServer = web.NewServer(a, paths.PortFile)
	return a, nil
}

// OpenCache opens the bbolt tree cache and prunes entries older than ttl.
func OpenCache(path string, ttl time.Duration) (*bbolt.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	store, err := bbolt.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if ttl > 0 {
		n, err := store.Prune(ttl)
		if err != nil {
			log.WithError(err).Warn("Failed to prune tree cache")
		} else if n > 0 {
			log.WithField(logfields.Count, n).Info("Pruned stale cached trees")
		}
	}
	return store, nil
}

// Start begins the daemon (socket server + HTTP server + grammar watcher).
func (a *App) Start() error {
	a.started = time.Now()
	if err := a.Server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	// HTTP playground is non-fatal if the port is unavailable
	httpPort := a.cfg.HTTPPort
	if httpPort == 0 {
		httpPort = web.DefaultPort(a.ProjectRoot)
	}
	if err := a.WebServer.Start(httpPort); err != nil {
		log.WithError(err).Warn("HTTP playground unavailable")
	}
	if err := a.Watcher.Watch(a.cfg.GrammarDir, a.onGrammarChanged); err != nil {
		log.WithError(err).WithField(logfields.Path, a.cfg.GrammarDir).Warn("Grammar watcher unavailable")
	}
	if err := os.WriteFile(a.Paths.PIDFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		log.WithError(err).Warn("Failed to write PID file")
	}
	log.WithField(logfields.Socket, a.Paths.Socket).Info("Daemon started")
	return nil
}

// Stop gracefully shuts down all services and closes the cache.
func (a *App) Stop() error {
	a.Watcher.Stop()
	a.WebServer.Stop()
	a.Server.Stop()
	a.Paths.CleanEphemeral()
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// TokenizeWire implements socket.Backend.
func (a *App) TokenizeWire(req []byte) ([]byte, error) {
	return a.Engine.TokenizeWire(req)
}

// Highlight implements socket.Backend.
func (a *App) Highlight(ctx context.Context, p socket.HighlightParams) (socket.HighlightResult, error) {
	return HighlightResult(ctx, a.Engine, p)
}

// HighlightResult runs p through e and shapes the protocol result. Shared by
// the daemon and tests.
func HighlightResult(ctx context.Context, e *Engine, p socket.HighlightParams) (socket.HighlightResult, error) {
	start := time.Now()
	mode := dispatch.Sync
	if p.Async {
		mode = dispatch.Async
	}
	res, err := e.HighlightCode(ctx, HighlightRequest{
		Language: p.Language,
		Code:     p.Code,
		Mode:     mode,
		Raw:      p.Raw,
	})
	if err != nil {
		return socket.HighlightResult{}, err
	}

	trace := make([]string, len(res.Trace))
	for i, s := range res.Trace {
		trace[i] = s.String()
	}
	return socket.HighlightResult{
		ID:          res.ID,
		Language:    res.Language,
		Highlighted: res.Highlighted,
		Trace:       trace,
		Aborted:     res.Aborted,
		Fallback:    res.Fallback,
		Cached:      res.Cached,
		Elapsed:     time.Since(start).Round(time.Microsecond).String(),
	}, nil
}

// Grammars implements socket.Backend.
func (a *App) Grammars() socket.GrammarsResult {
	return GrammarList(a.Engine)
}

// GrammarList describes every grammar registered in e.
func GrammarList(e *Engine) socket.GrammarsResult {
	reg := e.Registry()
	var infos []socket.GrammarInfo
	for _, lang := range reg.Languages() {
		info := socket.GrammarInfo{
			Name:       lang.Name,
			Title:      lang.Title,
			Extensions: lang.Extensions,
		}
		if g, ok := reg.Lookup(lang.Name); ok {
			info.Rules = g.Names()
		}
		infos = append(infos, info)
	}
	return socket.GrammarsResult{
		Grammars:   infos,
		Count:      len(infos),
		Generation: reg.Generation(),
	}
}

// Health implements socket.Backend.
func (a *App) Health() socket.HealthResult {
	h := socket.HealthResult{
		GrammarCount: len(a.Engine.Registry().Names()),
		Generation:   a.Engine.Registry().Generation(),
	}
	if a.Store != nil {
		if n, err := a.Store.Len(); err == nil {
			h.CacheEntries = n
		}
	}
	return h
}
