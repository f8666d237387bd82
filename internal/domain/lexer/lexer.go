// Package lexer turns text into a token stream by applying the rules of a
// grammar in order. Each rule claims every non-overlapping span it can find
// in the text still unclaimed by earlier rules; claimed spans are opaque to
// later rules at the same level.
package lexer

import (
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/corey/hilite/internal/domain/grammar"
	"github.com/corey/hilite/internal/domain/hooks"
	"github.com/corey/hilite/internal/domain/token"
	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "lexer")

// Result is the outcome of one tokenize call.
type Result struct {
	Stream token.Stream
	// Aborted is set when the buffer outgrew the input and matching stopped
	// early, at this level or inside a nested grammar. Stream then holds a
	// partial tree.
	Aborted bool
}

// Tokenize applies g to text. Unmatched text stays as token.Text; a nil
// grammar returns the text as a single unclaimed element.
func Tokenize(text string, g *grammar.Grammar) Result {
	if text == "" {
		return Result{Stream: token.Stream{}}
	}
	if g == nil {
		return Result{Stream: token.Stream{token.Text(text)}}
	}
	return tokenize(text, g)
}

func tokenize(text string, g *grammar.Grammar) Result {
	g = g.Expanded()
	limit := utf8.RuneCountInString(text)
	buf := token.Stream{token.Text(text)}
	nestedAborted := false

	for _, rule := range g.Rules() {
		if rule.Disabled() {
			continue
		}

		for i := 0; i < len(buf); i++ {
			if len(buf) > limit {
				log.WithFields(logrus.Fields{
					logfields.Rule:       rule.Name,
					logfields.BufferSize: len(buf),
					logfields.TextLength: limit,
				}).Warn("Working buffer outgrew input, aborting tokenize")
				return Result{Stream: buf, Aborted: true}
			}

			str, ok := buf[i].(token.Text)
			if !ok {
				continue
			}

			repl, rescanPrefix, aborted := matchOnce(rule, string(str))
			if repl == nil {
				continue
			}
			nestedAborted = nestedAborted || aborted
			buf = splice(buf, i, repl)
			if rescanPrefix {
				// the prefix now sits at i; scan it again
				i--
			}
		}
	}
	return Result{Stream: buf, Aborted: nestedAborted}
}

// matchOnce searches str for the first match of rule and returns the
// replacement elements: non-empty prefix, the token, non-empty suffix. It also
// reports whether the prefix needs a rescan and whether tokenizing the
// token's Inside grammar aborted.
func matchOnce(rule grammar.Rule, str string) (token.Stream, bool, bool) {
	runes := []rune(str)
	m, err := rule.Pattern.FindRunesMatch(runes)
	if err != nil {
		log.WithError(err).WithField(logfields.Rule, rule.Name).Warn("Pattern search failed, treating as no match")
		return nil, false, false
	}
	if m == nil {
		return nil, false, false
	}

	lookbehind := 0
	if rule.Lookbehind {
		if grp := m.GroupByNumber(1); grp != nil {
			lookbehind = grp.Length
		}
	}

	from := m.Index + lookbehind
	to := m.Index + m.Length
	if from > to {
		from = to
	}

	before := string(runes[:from])
	match := string(runes[from:to])
	after := string(runes[to:])

	var content token.Node = token.Text(match)
	aborted := false
	if rule.Inside != nil {
		inner := Tokenize(match, rule.Inside)
		content, aborted = inner.Stream, inner.Aborted
	}

	repl := make(token.Stream, 0, 3)
	if before != "" {
		repl = append(repl, token.Text(before))
	}
	repl = append(repl, &token.Token{Type: rule.Name, Content: content})
	if after != "" {
		repl = append(repl, token.Text(after))
	}
	return repl, before != "", aborted
}

// splice replaces buf[i] with repl.
func splice(buf token.Stream, i int, repl token.Stream) token.Stream {
	out := make(token.Stream, 0, len(buf)+len(repl)-1)
	out = append(out, buf[:i]...)
	out = append(out, repl...)
	out = append(out, buf[i+1:]...)
	return out
}

// Tokenizer tokenizes by grammar name against a registry and runs the
// before-tokenize / after-tokenize hooks.
type Tokenizer struct {
	registry *grammar.Registry
	bus      *hooks.Bus
}

// NewTokenizer binds a registry. bus may be nil.
func NewTokenizer(registry *grammar.Registry, bus *hooks.Bus) *Tokenizer {
	return &Tokenizer{registry: registry, bus: bus}
}

// Registry returns the bound registry.
func (t *Tokenizer) Registry() *grammar.Registry {
	return t.registry
}

// TokenizeByName tokenizes text with the named grammar. An unknown name is
// not an error: the text comes back as one unclaimed element.
func (t *Tokenizer) TokenizeByName(text, name string) Result {
	g, ok := t.registry.Lookup(name)
	if !ok {
		log.WithField(logfields.Grammar, name).Debug("No grammar registered, leaving text unclaimed")
		if text == "" {
			return Result{Stream: token.Stream{}}
		}
		return Result{Stream: token.Stream{token.Text(text)}}
	}

	env := &hooks.TokenizeEnv{Language: name, Grammar: g, Text: text}
	if t.bus != nil {
		t.bus.Run(hooks.BeforeTokenize, env)
	}

	res := Tokenize(env.Text, env.Grammar)
	env.Stream = res.Stream
	env.Aborted = res.Aborted

	if t.bus != nil {
		t.bus.Run(hooks.AfterTokenize, env)
	}
	return Result{Stream: env.Stream, Aborted: env.Aborted}
}
