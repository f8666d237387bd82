package render

import (
	"strings"

	"github.com/corey/hilite/internal/domain/hooks"
)

// SpellcheckComments marks comment tokens spellcheck="true".
func SpellcheckComments(env *hooks.WrapEnv) {
	if env.Type == "comment" {
		env.Attributes["spellcheck"] = "true"
	}
}

// EntityTitle gives entity tokens a title showing the entity as written,
// e.g. "&amp;copy;" gets title "&copy;".
func EntityTitle(env *hooks.WrapEnv) {
	if env.Type == "entity" {
		env.Attributes["title"] = strings.Replace(env.Content, "&amp;", "&", 1)
	}
}

// InstallDefaults registers the stock wrap callbacks on bus.
func InstallDefaults(bus *hooks.Bus) {
	bus.AddWrap(SpellcheckComments)
	bus.AddWrap(EntityTitle)
}
