// Package token defines the token tree produced by the lexer: unclaimed text,
// claimed tokens, and ordered streams of both.
package token

import "strings"

// Node is one of Text, *Token or Stream.
type Node interface {
	node()
}

// Text is an unclaimed span of input.
type Text string

// Stream is an ordered sequence of Text and *Token nodes.
type Stream []Node

// Token is a classified span. Content is Text for a leaf token and Stream for
// a token whose rule had an inside grammar.
type Token struct {
	Type    string
	Content Node
}

func (Text) node()   {}
func (Stream) node() {}
func (*Token) node() {}

// New returns a leaf token.
func New(typ, content string) *Token {
	return &Token{Type: typ, Content: Text(content)}
}

// NewComposite returns a token whose content is itself tokenized.
func NewComposite(typ string, content Stream) *Token {
	return &Token{Type: typ, Content: content}
}

// IsLeaf reports whether the content is plain text.
func (t *Token) IsLeaf() bool {
	_, ok := t.Content.(Text)
	return ok
}

// Raw returns the source text covered by the token.
func (t *Token) Raw() string {
	return Raw(t.Content)
}

// Raw concatenates the source text under n, dropping all classification.
func Raw(n Node) string {
	var sb strings.Builder
	writeRaw(&sb, n)
	return sb.String()
}

func writeRaw(sb *strings.Builder, n Node) {
	switch v := n.(type) {
	case Text:
		sb.WriteString(string(v))
	case Stream:
		for _, c := range v {
			writeRaw(sb, c)
		}
	case *Token:
		if v != nil {
			writeRaw(sb, v.Content)
		}
	}
}

// Walk visits every token under n pre-order with its nesting depth.
func Walk(n Node, fn func(t *Token, depth int)) {
	walk(n, fn, 0)
}

func walk(n Node, fn func(*Token, int), depth int) {
	switch v := n.(type) {
	case Stream:
		for _, c := range v {
			walk(c, fn, depth)
		}
	case *Token:
		if v == nil {
			return
		}
		fn(v, depth)
		walk(v.Content, fn, depth+1)
	}
}

// Types returns the type of every token under n, pre-order.
func Types(n Node) []string {
	var out []string
	Walk(n, func(t *Token, _ int) { out = append(out, t.Type) })
	return out
}

// Count returns the number of tokens under n.
func Count(n Node) int {
	c := 0
	Walk(n, func(*Token, int) { c++ })
	return c
}
