// Package render turns a token tree into HTML markup.
//
// Every token becomes an element (default <span>) carrying the classes
// "token" and the token type; wrap hooks may rewrite the tag, classes and
// attributes before the element is written. Unclaimed text is written as-is:
// escaping happens before tokenizing, so the text is already HTML-safe.
package render

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/corey/hilite/internal/domain/hooks"
	"github.com/corey/hilite/internal/domain/token"
)

// DefaultTag is the element every token starts out as.
const DefaultTag = "span"

// Renderer stringifies trees, running wrap hooks from bus for every token.
type Renderer struct {
	bus *hooks.Bus
}

// New returns a Renderer. bus may be nil.
func New(bus *hooks.Bus) *Renderer {
	return &Renderer{bus: bus}
}

// Stringify renders n. language is passed to wrap hooks.
func (r *Renderer) Stringify(n token.Node, language string) string {
	var sb strings.Builder
	r.write(&sb, n, language)
	return sb.String()
}

// Stringify renders n without hooks.
func Stringify(n token.Node) string {
	return New(nil).Stringify(n, "")
}

func (r *Renderer) write(sb *strings.Builder, n token.Node, language string) {
	switch v := n.(type) {
	case token.Text:
		sb.WriteString(string(v))
	case token.Stream:
		for _, c := range v {
			r.write(sb, c, language)
		}
	case *token.Token:
		if v == nil {
			return
		}
		var inner strings.Builder
		r.write(&inner, v.Content, language)

		env := &hooks.WrapEnv{
			Type:       v.Type,
			Content:    inner.String(),
			Tag:        DefaultTag,
			Classes:    []string{"token", v.Type},
			Attributes: map[string]string{},
			Language:   language,
		}
		if r.bus != nil {
			r.bus.Run(hooks.Wrap, env)
		}
		writeElement(sb, env)
	}
}

func writeElement(sb *strings.Builder, env *hooks.WrapEnv) {
	tag := env.Tag
	if tag == "" {
		tag = DefaultTag
	}

	sb.WriteByte('<')
	sb.WriteString(tag)
	sb.WriteString(` class="`)
	sb.WriteString(strings.Join(env.Classes, " "))
	sb.WriteByte('"')

	keys := lo.Keys(env.Attributes)
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(strings.ReplaceAll(env.Attributes[k], `"`, "&quot;"))
		sb.WriteByte('"')
	}

	sb.WriteByte('>')
	sb.WriteString(env.Content)
	sb.WriteString("</")
	sb.WriteString(tag)
	sb.WriteByte('>')
}
