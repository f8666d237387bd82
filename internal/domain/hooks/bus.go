// Package hooks is the lifecycle callback registry. Callbacks registered
// under a name run in registration order and share one mutable env, so later
// callbacks see earlier callbacks' changes.
package hooks

import "sync"

// Lifecycle points.
const (
	BeforeHighlight = "before-highlight"
	AfterHighlight  = "after-highlight"
	BeforeTokenize  = "before-tokenize"
	AfterTokenize   = "after-tokenize"
	Wrap            = "wrap"
)

// Callback receives the env passed to Run. Use the typed helpers (AddWrap,
// AddHighlight, AddTokenize) unless the callback handles several env types.
type Callback func(env any)

// Bus holds the callbacks of every lifecycle point.
type Bus struct {
	mu  sync.RWMutex
	all map[string][]Callback
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{all: make(map[string][]Callback)}
}

// Add appends cb to the callbacks of name.
func (b *Bus) Add(name string, cb Callback) {
	if cb == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all[name] = append(b.all[name], cb)
}

// Run calls every callback registered for name in order.
func (b *Bus) Run(name string, env any) {
	b.mu.RLock()
	callbacks := b.all[name]
	b.mu.RUnlock()

	for _, cb := range callbacks {
		cb(env)
	}
}

// Len returns the number of callbacks registered for name.
func (b *Bus) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.all[name])
}

// Reset drops every callback registered for name.
func (b *Bus) Reset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.all, name)
}

// AddWrap registers a callback for the wrap point.
func (b *Bus) AddWrap(fn func(*WrapEnv)) {
	b.Add(Wrap, func(env any) {
		if e, ok := env.(*WrapEnv); ok {
			fn(e)
		}
	})
}

// AddHighlight registers a callback for before-highlight or after-highlight.
func (b *Bus) AddHighlight(name string, fn func(*HighlightEnv)) {
	b.Add(name, func(env any) {
		if e, ok := env.(*HighlightEnv); ok {
			fn(e)
		}
	})
}

// AddTokenize registers a callback for before-tokenize or after-tokenize.
func (b *Bus) AddTokenize(name string, fn func(*TokenizeEnv)) {
	b.Add(name, func(env any) {
		if e, ok := env.(*TokenizeEnv); ok {
			fn(e)
		}
	})
}
