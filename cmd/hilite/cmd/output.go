package cmd

import (
	"fmt"
	"strings"

	"github.com/corey/hilite/internal/adapters/socket"
	"github.com/corey/hilite/internal/domain/grammar"
)

// ANSI color codes for terminal output.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorCyan    = "\033[36m"
	colorMagenta = "\033[35m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorGray    = "\033[90m"
)

// palette returns the color codes, or empty strings when color is off.
type palette struct {
	reset, bold, cyan, magenta, green, yellow, gray string
}

func newPalette(color bool) palette {
	if !color {
		return palette{}
	}
	return palette{colorReset, colorBold, colorCyan, colorMagenta, colorGreen, colorYellow, colorGray}
}

// formatFileHeader introduces one file's markup in multi-file output.
//
//	⚡ src/app.js │ javascript │ 312µs
func formatFileHeader(p palette, file, lang, elapsed string, flags []string) string {
	if lang == "" {
		lang = "plain"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ %s%s%s%s │ %s%s%s │ %s",
		p.bold, p.cyan, file, p.reset, p.bold, p.magenta, lang, p.reset, elapsed))
	for _, f := range flags {
		sb.WriteString(fmt.Sprintf(" %s#%s%s", p.yellow, f, p.reset))
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatHealth formats a HealthResult for terminal display.
func formatHealth(h *socket.HealthResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ hilite daemon%s\n", colorBold, colorReset))
	sb.WriteString(fmt.Sprintf("  Status:      %s%s%s\n", colorGreen, h.Status, colorReset))
	sb.WriteString(fmt.Sprintf("  Grammars:    %d\n", h.GrammarCount))
	sb.WriteString(fmt.Sprintf("  Generation:  %d\n", h.Generation))
	sb.WriteString(fmt.Sprintf("  Cached:      %d trees\n", h.CacheEntries))
	sb.WriteString(fmt.Sprintf("  Uptime:      %s\n", h.Uptime))
	return sb.String()
}

// formatGrammars formats a GrammarsResult as one line per grammar.
//
//	⚡ 4 grammars │ generation 1
//	  css         CSS         .css         comment atrule url selector …
func formatGrammars(result *socket.GrammarsResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ %d grammars%s │ generation %d\n",
		colorBold, result.Count, colorReset, result.Generation))
	for _, g := range result.Grammars {
		title := g.Title
		if title == "" {
			title = "-"
		}
		sb.WriteString(fmt.Sprintf("  %s%-12s%s %-12s %s%-24s%s %s%s%s\n",
			colorCyan, g.Name, colorReset,
			title,
			colorGreen, strings.Join(g.Extensions, " "), colorReset,
			colorGray, strings.Join(g.Rules, " "), colorReset))
	}
	return sb.String()
}

// formatGrammar prints one grammar's rules in claim order, nested grammars
// indented under the rule that owns them.
func formatGrammar(lang grammar.Language, g *grammar.Grammar) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ %s%s", colorBold, lang.Name, colorReset))
	if lang.Title != "" {
		sb.WriteString(fmt.Sprintf(" │ %s", lang.Title))
	}
	if len(lang.Extensions) > 0 {
		sb.WriteString(fmt.Sprintf(" │ %s%s%s", colorGreen, strings.Join(lang.Extensions, " "), colorReset))
	}
	sb.WriteString("\n")
	writeRules(&sb, g, 1, map[*grammar.Grammar]bool{})
	return sb.String()
}

func writeRules(sb *strings.Builder, g *grammar.Grammar, depth int, onPath map[*grammar.Grammar]bool) {
	if g == nil || onPath[g] {
		return
	}
	onPath[g] = true
	defer delete(onPath, g)

	indent := strings.Repeat("  ", depth)
	for _, r := range g.Rules() {
		if r.Disabled() {
			sb.WriteString(fmt.Sprintf("%s%s%s%s %s(disabled)%s\n", indent, colorCyan, r.Name, colorReset, colorGray, colorReset))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s%s%s%s  %s%s%s", indent, colorCyan, r.Name, colorReset, colorGray, r.Pattern.String(), colorReset))
		if r.Lookbehind {
			sb.WriteString(fmt.Sprintf("  %s#lookbehind%s", colorYellow, colorReset))
		}
		sb.WriteString("\n")
		writeRules(sb, r.Inside, depth+1, onPath)
	}
	if g.Rest != nil {
		sb.WriteString(fmt.Sprintf("%s%s… rest (%d rules)%s\n", indent, colorMagenta, g.Rest.Len(), colorReset))
	}
}
