// Package grammars embeds the bundled language definitions.
// This is a standalone package with no imports to avoid circular dependencies.
//
// Usage:
//
//	grammar.LoadFS(reg, grammars.FS, ".", grammar.LoadOptions{})
package grammars

import "embed"

//go:embed *.yaml
var FS embed.FS
