package hooks

import (
	"github.com/corey/hilite/internal/domain/grammar"
	"github.com/corey/hilite/internal/domain/token"
)

// WrapEnv describes how one token is about to be rendered. Callbacks may
// change Tag, Classes and Attributes; Content is already rendered markup.
type WrapEnv struct {
	Type       string
	Content    string
	Tag        string
	Classes    []string
	Attributes map[string]string
	Language   string
}

// HighlightEnv travels with one highlight request. before-highlight callbacks
// may rewrite Code; after-highlight callbacks see Highlighted.
type HighlightEnv struct {
	Language    string
	Grammar     *grammar.Grammar
	Code        string
	Highlighted string
	Tree        token.Stream
}

// TokenizeEnv is passed around a single tokenize call.
type TokenizeEnv struct {
	Language string
	Grammar  *grammar.Grammar
	Text     string
	Stream   token.Stream
	Aborted  bool
}
