package grammar

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlFile is the YAML-serialized form of one language definition.
type yamlFile struct {
	Name         string       `yaml:"name"`
	Title        string       `yaml:"title,omitempty"`
	Extensions   []string     `yaml:"extensions,omitempty"`
	Signatures   []string     `yaml:"signatures,omitempty"`
	Rules        []yamlRule   `yaml:"rules"`
	Rest         string       `yaml:"rest,omitempty"`
	InsertBefore []yamlInsert `yaml:"insert_before,omitempty"`
}

// yamlRule is the YAML-serialized form of a Rule. Inside and InsideRef are
// mutually exclusive; InsideRef names a grammar ("css") or the inside grammar
// of a rule ("markup.tag").
type yamlRule struct {
	Name       string       `yaml:"name"`
	Pattern    string       `yaml:"pattern"`
	Flags      string       `yaml:"flags,omitempty"`
	Lookbehind bool         `yaml:"lookbehind,omitempty"`
	Disabled   bool         `yaml:"disabled,omitempty"`
	Inside     *yamlGrammar `yaml:"inside,omitempty"`
	InsideRef  string       `yaml:"inside_ref,omitempty"`
}

type yamlGrammar struct {
	Rules []yamlRule `yaml:"rules"`
	Rest  string     `yaml:"rest,omitempty"`
}

// yamlInsert layers rules into another grammar, see Registry.InsertBefore.
type yamlInsert struct {
	Grammar string     `yaml:"grammar"`
	Inside  string     `yaml:"inside,omitempty"` // optional rule path within Grammar
	Before  string     `yaml:"before"`
	Rules   []yamlRule `yaml:"rules"`
}

// Source is a directory of *.yaml grammar files inside a filesystem.
type Source struct {
	FS  fs.FS
	Dir string
}

// LoadOptions tune how patterns are compiled.
type LoadOptions struct {
	// MatchTimeout bounds a single regex search. Zero leaves the engine
	// default (no timeout).
	MatchTimeout time.Duration
}

type loadedFile struct {
	file   string
	data   []byte
	def    yamlFile
	lang   Language
	g      *Grammar
	fixups []fixup
}

// fixup is a reference that can only be resolved once every base grammar of
// every source is registered.
type fixup struct {
	ref   string
	apply func(*Grammar)
}

// Load reads every *.yaml file of every source into reg. Base grammars from
// all files are registered first, cross-grammar references are resolved next,
// and insert_before directives run last in file order so layering sees the
// final base grammars.
func Load(reg *Registry, opts LoadOptions, sources ...Source) error {
	var files []*loadedFile
	for _, src := range sources {
		lf, err := readSource(src)
		if err != nil {
			return err
		}
		files = append(files, lf...)
	}
	for _, lf := range files {
		reg.recordSource(lf.file, lf.data)
	}
	if opts.MatchTimeout > 0 {
		reg.recordSource("match-timeout", []byte(opts.MatchTimeout.String()))
	}

	for _, lf := range files {
		g, fixups, err := buildGrammar(lf.def.Rules, lf.def.Rest)
		if err != nil {
			return fmt.Errorf("%s: %w", lf.file, err)
		}
		lf.g = g
		lf.fixups = fixups
		reg.DefineLanguage(lf.lang, g)
	}

	for _, lf := range files {
		for _, fx := range lf.fixups {
			target, err := resolveRef(reg, fx.ref)
			if err != nil {
				return fmt.Errorf("%s: %w", lf.file, err)
			}
			fx.apply(target)
		}
	}

	for _, lf := range files {
		for _, ins := range lf.def.InsertBefore {
			insert, fixups, err := buildGrammar(ins.Rules, "")
			if err != nil {
				return fmt.Errorf("%s: insert before %s.%s: %w", lf.file, ins.Grammar, ins.Before, err)
			}
			for _, fx := range fixups {
				target, err := resolveRef(reg, fx.ref)
				if err != nil {
					return fmt.Errorf("%s: %w", lf.file, err)
				}
				fx.apply(target)
			}
			var root Root
			name := ins.Grammar
			if ins.Inside != "" {
				parent, err := resolveGrammar(reg, ins.Grammar+"."+parentPath(ins.Inside))
				if err != nil {
					return fmt.Errorf("%s: %w", lf.file, err)
				}
				root = parent
				name = lastSegment(ins.Inside)
			}
			if _, err := reg.InsertBefore(name, ins.Before, insert, root); err != nil {
				return fmt.Errorf("%s: %w", lf.file, err)
			}
		}
	}

	if opts.MatchTimeout > 0 {
		DFS(reg, func(_ string, value any) {
			if r, ok := value.(*Rule); ok && r.Pattern != nil {
				r.Pattern.MatchTimeout = opts.MatchTimeout
			}
		})
	}
	return nil
}

// LoadFS is Load for a single source.
func LoadFS(reg *Registry, fsys fs.FS, dir string, opts LoadOptions) error {
	return Load(reg, opts, Source{FS: fsys, Dir: dir})
}

func readSource(src Source) ([]*loadedFile, error) {
	entries, err := fs.ReadDir(src.FS, src.Dir)
	if err != nil {
		return nil, fmt.Errorf("read grammar dir %q: %w", src.Dir, err)
	}

	// Sort for deterministic load order
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []*loadedFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		p := path.Join(src.Dir, name)
		data, err := fs.ReadFile(src.FS, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		var def yamlFile
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}
		out = append(out, &loadedFile{
			file: p,
			data: data,
			def:  def,
			lang: Language{
				Name:       def.Name,
				Title:      def.Title,
				Extensions: normalizeExtensions(def.Extensions),
				Signatures: def.Signatures,
			},
		})
	}
	return out, nil
}

// buildGrammar converts YAML rules into a Grammar. References to other
// grammars are returned as fixups.
func buildGrammar(rules []yamlRule, rest string) (*Grammar, []fixup, error) {
	g := &Grammar{}
	var fixups []fixup
	seen := make(map[string]bool, len(rules))

	for i, yr := range rules {
		if yr.Name == "" {
			return nil, nil, fmt.Errorf("rule %d: missing name", i)
		}
		if seen[yr.Name] {
			return nil, nil, fmt.Errorf("rule %q: %w", yr.Name, ErrDuplicateRule)
		}
		seen[yr.Name] = true

		rule := Rule{Name: yr.Name, Lookbehind: yr.Lookbehind}
		if !yr.Disabled {
			if yr.Pattern == "" {
				return nil, nil, fmt.Errorf("rule %q: missing pattern", yr.Name)
			}
			re, err := Compile(yr.Pattern, yr.Flags)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %q: %w", yr.Name, err)
			}
			rule.Pattern = re
		}

		if yr.Inside != nil && yr.InsideRef != "" {
			return nil, nil, fmt.Errorf("rule %q: inside and inside_ref are exclusive", yr.Name)
		}
		idx := len(g.rules)
		g.rules = append(g.rules, rule)

		switch {
		case yr.Inside != nil:
			inner, innerFixups, err := buildGrammar(yr.Inside.Rules, yr.Inside.Rest)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %q: %w", yr.Name, err)
			}
			g.rules[idx].Inside = inner
			fixups = append(fixups, innerFixups...)
		case yr.InsideRef != "":
			fixups = append(fixups, fixup{
				ref:   yr.InsideRef,
				apply: func(t *Grammar) { g.rules[idx].Inside = t },
			})
		}
	}

	if rest != "" {
		fixups = append(fixups, fixup{
			ref:   rest,
			apply: func(t *Grammar) { g.Rest = t },
		})
	}
	return g, fixups, nil
}

func resolveRef(reg *Registry, ref string) (*Grammar, error) {
	return resolveGrammar(reg, ref)
}

// resolveGrammar follows "lang" or "lang.rule.rule…" to a grammar: each rule
// segment descends into that rule's inside grammar.
func resolveGrammar(reg *Registry, ref string) (*Grammar, error) {
	parts := strings.Split(strings.TrimSuffix(ref, "."), ".")
	g, ok := reg.Lookup(parts[0])
	if !ok {
		return nil, fmt.Errorf("reference %q: %w", ref, ErrUnknownGrammar)
	}
	for _, p := range parts[1:] {
		r, ok := g.Rule(p)
		if !ok {
			return nil, fmt.Errorf("reference %q: %w", ref, ErrRuleNotFound)
		}
		if r.Inside == nil {
			return nil, fmt.Errorf("reference %q: rule %q has no inside grammar", ref, p)
		}
		g = r.Inside
	}
	return g, nil
}

func parentPath(p string) string {
	if i := strings.LastIndex(p, "."); i >= 0 {
		return p[:i]
	}
	return ""
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "."); i >= 0 {
		return p[i+1:]
	}
	return p
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
