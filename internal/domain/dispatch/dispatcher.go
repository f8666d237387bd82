// Package dispatch runs highlight requests either in the caller's goroutine or
// on a worker that exchanges JSON bytes with the caller, and records the
// lifecycle states each request passes through.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/corey/hilite/internal/domain/lexer"
	"github.com/corey/hilite/internal/domain/render"
	"github.com/corey/hilite/internal/domain/token"
	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
	"github.com/corey/hilite/internal/ports"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "dispatch")

// Request is one unit of highlighting work. ID is generated when empty.
type Request struct {
	ID       string
	Language string
	Code     string
	Mode     Mode
}

// Result is the delivered output plus how it was produced.
type Result struct {
	ID          string
	Language    string
	Highlighted string
	Tree        token.Stream
	Trace       []State
	Aborted     bool
	// Fallback is set when the worker failed or timed out and the request
	// was tokenized synchronously instead.
	Fallback bool
	Cached   bool
}

func (r *Result) enter(s State) {
	r.Trace = append(r.Trace, s)
}

// Dispatcher owns the tokenizer, renderer and worker used for requests.
type Dispatcher struct {
	tokenizer     *lexer.Tokenizer
	renderer      *render.Renderer
	worker        ports.Worker
	cache         ports.TreeCache
	workerTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorker replaces the default SpawnWorker.
func WithWorker(w ports.Worker) Option {
	return func(d *Dispatcher) { d.worker = w }
}

// WithCache enables the tree cache.
func WithCache(c ports.TreeCache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithWorkerTimeout bounds how long an async request waits for its worker
// before falling back to sync. Zero waits for as long as ctx allows.
func WithWorkerTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.workerTimeout = t }
}

// New creates a Dispatcher.
func New(tk *lexer.Tokenizer, r *render.Renderer, opts ...Option) *Dispatcher {
	d := &Dispatcher{tokenizer: tk, renderer: r}
	for _, o := range opts {
		o(d)
	}
	if d.worker == nil {
		d.worker = NewSpawnWorker(tk)
	}
	return d
}

// Highlight tokenizes and renders req.Code. An unknown language is not an
// error: the code is delivered unclaimed. The only error is ctx ending while
// waiting on a worker.
func (d *Dispatcher) Highlight(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	res := &Result{ID: req.ID, Language: req.Language}
	res.enter(Idle)

	scopedLog := log.WithFields(logrus.Fields{
		logfields.RequestID: req.ID,
		logfields.Grammar:   req.Language,
		logfields.Mode:      req.Mode,
	})
	start := time.Now()

	res.enter(Dispatched)

	key := ""
	if d.cache != nil {
		key = CacheKey(req.Language, d.tokenizer.Registry().Fingerprint(), req.Code)
		if tree, ok := d.cachedTree(key); ok {
			res.Tree = tree
			res.Cached = true
		}
	}

	if !res.Cached {
		switch req.Mode {
		case Async:
			res.enter(AwaitingWorkerReply)
			tree, aborted, err := d.viaWorker(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				scopedLog.WithError(err).Warn("Worker failed, falling back to sync")
				res.Fallback = true
				tree, aborted = d.sync(req)
			}
			res.Tree, res.Aborted = tree, aborted
		default:
			res.Tree, res.Aborted = d.sync(req)
		}
	}
	res.enter(Tokenized)
	if res.Aborted {
		res.enter(Aborted)
	}

	if d.cache != nil && !res.Cached && !res.Aborted {
		d.storeTree(key, res.Tree)
	}

	res.Highlighted = d.renderer.Stringify(res.Tree, req.Language)
	res.enter(Stringified)
	res.enter(Delivered)

	scopedLog.WithFields(logrus.Fields{
		logfields.Duration: time.Since(start),
		logfields.Count:    token.Count(res.Tree),
	}).Debug("Request delivered")
	return res, nil
}

func (d *Dispatcher) sync(req Request) (token.Stream, bool) {
	r := d.tokenizer.TokenizeByName(req.Code, req.Language)
	return r.Stream, r.Aborted
}

func (d *Dispatcher) viaWorker(ctx context.Context, req Request) (token.Stream, bool, error) {
	payload, err := json.Marshal(WorkerRequest{Language: req.Language, Text: req.Code})
	if err != nil {
		return nil, false, fmt.Errorf("encode worker request: %w", err)
	}

	wctx := ctx
	if d.workerTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, d.workerTimeout)
		defer cancel()
	}

	data, err := d.worker.Tokenize(wctx, payload)
	if err != nil {
		return nil, false, err
	}

	var reply WorkerReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, false, fmt.Errorf("decode worker reply: %w", err)
	}
	tree, err := token.DecodeStream(reply.Tree)
	if err != nil {
		return nil, false, fmt.Errorf("decode worker tree: %w", err)
	}
	return tree, reply.Aborted, nil
}

func (d *Dispatcher) cachedTree(key string) (token.Stream, bool) {
	data, ok, err := d.cache.Get(key)
	if err != nil {
		log.WithError(err).Warn("Tree cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var w token.Wire
	if err := json.Unmarshal(data, &w); err != nil {
		log.WithError(err).Warn("Discarding unreadable cached tree")
		return nil, false
	}
	tree, err := token.DecodeStream(w)
	if err != nil {
		log.WithError(err).Warn("Discarding malformed cached tree")
		return nil, false
	}
	return tree, true
}

func (d *Dispatcher) storeTree(key string, tree token.Stream) {
	data, err := token.Marshal(tree)
	if err == nil {
		err = d.cache.Put(key, data)
	}
	if err != nil {
		log.WithError(err).Warn("Tree cache write failed")
	}
}

// CacheKey derives the tree cache key for text tokenized with language
// against a registry with the given Fingerprint.
func CacheKey(language, fingerprint, text string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
