// Package grammar defines grammars (ordered rule lists) and the registry that
// owns them. Rule order is claim priority: the tokenizer tries rules in
// declaration order, so every operation here preserves it.
package grammar

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/samber/lo"
)

// Rule is a named pattern. When Lookbehind is set, the first capture group of
// Pattern is a prefix that anchors the match but is not part of the token.
// Inside, when non-nil, tokenizes the matched text again.
type Rule struct {
	Name       string
	Pattern    *regexp2.Regexp
	Lookbehind bool
	Inside     *Grammar
}

// Disabled reports whether the rule has no pattern and is skipped.
func (r Rule) Disabled() bool {
	return r.Pattern == nil
}

// Pattern is the bare-regex form of a rule: no lookbehind, no inside grammar.
func Pattern(name string, re *regexp2.Regexp) Rule {
	return Rule{Name: name, Pattern: re}
}

// Grammar is an ordered list of rules plus an optional Rest grammar whose
// rules are appended at the start of each tokenize pass.
type Grammar struct {
	rules []Rule
	Rest  *Grammar
}

// New builds a grammar from rules in the given order. Later rules with a
// name already present replace the earlier rule in place.
func New(rules ...Rule) *Grammar {
	g := &Grammar{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		g.Set(r)
	}
	return g
}

// Len returns the number of rules.
func (g *Grammar) Len() int {
	if g == nil {
		return 0
	}
	return len(g.rules)
}

// Rules returns a copy of the rules in order.
func (g *Grammar) Rules() []Rule {
	if g == nil {
		return nil
	}
	out := make([]Rule, len(g.rules))
	copy(out, g.rules)
	return out
}

// Names returns the rule names in order.
func (g *Grammar) Names() []string {
	if g == nil {
		return nil
	}
	return lo.Map(g.rules, func(r Rule, _ int) string { return r.Name })
}

// Index returns the position of the named rule, or -1.
func (g *Grammar) Index(name string) int {
	if g == nil {
		return -1
	}
	for i := range g.rules {
		if g.rules[i].Name == name {
			return i
		}
	}
	return -1
}

// Rule returns the named rule.
func (g *Grammar) Rule(name string) (Rule, bool) {
	i := g.Index(name)
	if i < 0 {
		return Rule{}, false
	}
	return g.rules[i], true
}

// Set replaces the rule with the same name in place, or appends it.
func (g *Grammar) Set(r Rule) {
	if i := g.Index(r.Name); i >= 0 {
		g.rules[i] = r
		return
	}
	g.rules = append(g.rules, r)
}

// Clone returns a copy with its own rule slice. Nested grammars are shared.
func (g *Grammar) Clone() *Grammar {
	if g == nil {
		return nil
	}
	return &Grammar{rules: g.Rules(), Rest: g.Rest}
}

// Expanded returns a copy with the Rest rules merged in (appended in their own
// order, replacing same-named rules in place) and Rest cleared. The receiver
// is not modified.
func (g *Grammar) Expanded() *Grammar {
	c := g.Clone()
	if c == nil || c.Rest == nil {
		return c
	}
	for _, r := range c.Rest.rules {
		c.Set(r)
	}
	c.Rest = nil
	return c
}

// lookupGrammar and storeGrammar let a grammar act as an InsertBefore root:
// the names address the Inside grammars of its rules.
func (g *Grammar) lookupGrammar(name string) (*Grammar, bool) {
	r, ok := g.Rule(name)
	if !ok || r.Inside == nil {
		return nil, false
	}
	return r.Inside, true
}

func (g *Grammar) storeGrammar(name string, inside *Grammar) {
	if i := g.Index(name); i >= 0 {
		g.rules[i].Inside = inside
	}
}

// String renders the rule order, e.g. "[comment tag entity]".
func (g *Grammar) String() string {
	return "[" + strings.Join(g.Names(), " ") + "]"
}

// Compile compiles a pattern with JavaScript-style flags. Supported flags are
// "i" (ignore case), "m" (multiline) and "s" (dot matches newline); "g" is
// accepted and ignored since every search starts at the beginning of a segment.
func Compile(expr, flags string) (*regexp2.Regexp, error) {
	var opts regexp2.RegexOptions = regexp2.ECMAScript
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'g':
		default:
			return nil, fmt.Errorf("%w: unsupported flag %q in /%s/%s", ErrInvalidPattern, f, expr, flags)
		}
	}
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: /%s/%s: %v", ErrInvalidPattern, expr, flags, err)
	}
	return re, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// grammars built in code at init time.
func MustCompile(expr, flags string) *regexp2.Regexp {
	re, err := Compile(expr, flags)
	if err != nil {
		panic(err)
	}
	return re
}

// SetMatchTimeout applies a per-match timeout to every pattern reachable from g.
func SetMatchTimeout(g *Grammar, d time.Duration) {
	DFS(g, func(_ string, value any) {
		if r, ok := value.(*Rule); ok && r.Pattern != nil {
			r.Pattern.MatchTimeout = d
		}
	})
}
