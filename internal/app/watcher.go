package app

import "github.com/corey/hilite/internal/logging/logfields"

// onGrammarChanged reloads every grammar when a user grammar file changes.
// A broken file keeps the previous grammars active.
func (a *App) onGrammarChanged(path string) {
	scoped := log.WithField(logfields.Path, path)
	if err := a.Engine.Reload(); err != nil {
		scoped.WithError(err).Error("Grammar reload failed, keeping previous grammars")
		return
	}
	scoped.Debug("Grammar change applied")
}
