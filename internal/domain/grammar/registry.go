package grammar

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownGrammar is returned when a grammar name is not registered.
	ErrUnknownGrammar = errors.New("unknown grammar")

	// ErrRuleNotFound is returned by InsertBefore in MissingReport mode when
	// the target rule does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule is returned when an inserted rule name already exists.
	ErrDuplicateRule = errors.New("duplicate rule")

	// ErrInvalidPattern is returned for patterns that do not compile.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// MissingRulePolicy decides what InsertBefore does when the target rule is
// absent.
type MissingRulePolicy int

const (
	// MissingSilent rebuilds the grammar without the new rules and reports
	// no error.
	MissingSilent MissingRulePolicy = iota
	// MissingReport leaves the registry untouched and returns ErrRuleNotFound.
	MissingReport
)

// ParseMissingRulePolicy maps "silent" / "report" to a policy.
func ParseMissingRulePolicy(s string) (MissingRulePolicy, error) {
	switch s {
	case "", "silent":
		return MissingSilent, nil
	case "report", "error":
		return MissingReport, nil
	default:
		return MissingSilent, fmt.Errorf("unknown missing-rule policy %q", s)
	}
}

func (p MissingRulePolicy) String() string {
	if p == MissingReport {
		return "report"
	}
	return "silent"
}

// Language is descriptive metadata attached to a registered grammar.
type Language struct {
	Name       string
	Title      string
	Extensions []string // ".css", ".js"
	Signatures []string // literal snippets typical of the language
}

// Root is anything InsertBefore can splice into: a Registry (names address
// grammars) or a Grammar (names address the Inside grammars of its rules).
type Root interface {
	lookupGrammar(name string) (*Grammar, bool)
	storeGrammar(name string, g *Grammar)
}

// Registry maps language names to grammars. Safe for concurrent use; reads
// return the stored pointer and callers must not mutate it.
type Registry struct {
	mu         sync.RWMutex
	grammars   map[string]*Grammar
	languages  map[string]Language
	order      []string
	generation uint64
	missing    MissingRulePolicy
	// sources folds in every grammar file loaded into the registry.
	sources [sha256.Size]byte
}

// Option configures a Registry.
type Option func(*Registry)

// WithMissingRule sets the InsertBefore policy for absent target rules.
func WithMissingRule(p MissingRulePolicy) Option {
	return func(r *Registry) { r.missing = p }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		grammars:  make(map[string]*Grammar),
		languages: make(map[string]Language),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// MissingRule returns the configured policy.
func (r *Registry) MissingRule() MissingRulePolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.missing
}

// Define registers (or replaces) a grammar under name.
func (r *Registry) Define(name string, g *Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeGrammar(name, g)
}

// DefineLanguage registers a grammar together with its metadata.
func (r *Registry) DefineLanguage(lang Language, g *Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeGrammar(lang.Name, g)
	r.languages[lang.Name] = lang
}

// Lookup returns the grammar registered under name.
func (r *Registry) Lookup(name string) (*Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupGrammar(name)
}

// Language returns metadata for name. Grammars defined without metadata
// report a Language with only Name set.
func (r *Registry) Language(name string) (Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.grammars[name]; !ok {
		return Language{}, false
	}
	if lang, ok := r.languages[name]; ok {
		return lang, true
	}
	return Language{Name: name}, true
}

// Languages returns metadata for every grammar in definition order.
func (r *Registry) Languages() []Language {
	names := r.Names()
	out := make([]Language, 0, len(names))
	for _, n := range names {
		if lang, ok := r.Language(n); ok {
			out = append(out, lang)
		}
	}
	return out
}

// Names returns registered grammar names in definition order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedNames returns registered grammar names alphabetically.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// Remove deletes a grammar. It reports whether the name was registered.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grammars[name]; !ok {
		return false
	}
	delete(r.grammars, name)
	delete(r.languages, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.generation++
	return true
}

// Generation increases on every mutation.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Fingerprint identifies the registry content: the bytes of every grammar
// file loaded into it plus the generation. Two processes that load the same
// files get the same fingerprint; editing any file changes it. Persistent
// caches key on it.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := sha256.New()
	h.Write(r.sources[:])
	var gen [8]byte
	binary.BigEndian.PutUint64(gen[:], r.generation)
	h.Write(gen[:])
	return hex.EncodeToString(h.Sum(nil))
}

// recordSource folds a loaded file (or load option) into the fingerprint.
func (r *Registry) recordSource(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := sha256.New()
	h.Write(r.sources[:])
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(data)
	copy(r.sources[:], h.Sum(nil))
}

// Replace swaps the whole content of r with other's. Used when grammars are
// reloaded from disk; other should not be used afterwards.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	grammars := other.grammars
	languages := other.languages
	order := append([]string(nil), other.order...)
	sources := other.sources
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammars = grammars
	r.languages = languages
	r.order = order
	r.sources = sources
	r.generation++
}

// InsertBefore builds a new grammar equal to root's entry inside with the
// rules of insert spliced in immediately before rule before, stores it back
// into root and returns it. A nil root means the registry itself.
//
// When before is absent the registry's MissingRulePolicy applies: silently
// store an unchanged copy, or return ErrRuleNotFound without touching root.
func (r *Registry) InsertBefore(inside, before string, insert *Grammar, root Root) (*Grammar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if root == nil {
		root = r
	}
	target, ok := root.lookupGrammar(inside)
	if !ok {
		return nil, fmt.Errorf("insert into %q: %w", inside, ErrUnknownGrammar)
	}

	for _, nr := range insert.Rules() {
		if target.Index(nr.Name) >= 0 {
			return nil, fmt.Errorf("insert %q into %q: %w", nr.Name, inside, ErrDuplicateRule)
		}
	}

	pos := target.Index(before)
	if pos < 0 && r.missing == MissingReport {
		return nil, fmt.Errorf("insert before %q in %q: %w", before, inside, ErrRuleNotFound)
	}

	ret := &Grammar{rules: make([]Rule, 0, target.Len()+insert.Len()), Rest: target.Rest}
	for i, rule := range target.rules {
		if i == pos {
			ret.rules = append(ret.rules, insert.Rules()...)
		}
		ret.rules = append(ret.rules, rule)
	}

	root.storeGrammar(inside, ret)
	r.generation++
	return ret, nil
}

// lookupGrammar and storeGrammar assume r.mu is held.
func (r *Registry) lookupGrammar(name string) (*Grammar, bool) {
	g, ok := r.grammars[name]
	return g, ok
}

func (r *Registry) storeGrammar(name string, g *Grammar) {
	if _, ok := r.grammars[name]; !ok {
		r.order = append(r.order, name)
	}
	r.grammars[name] = g
	r.generation++
}
