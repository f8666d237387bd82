// hilite is a grammar-driven syntax highlighter.
// Grammars are data: bundled YAML plus an optional per-project directory.
package main

import (
	"os"

	"github.com/corey/hilite/cmd/hilite/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
