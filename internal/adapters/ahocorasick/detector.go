// Package ahocorasick implements ports.Detector: language guessing by keyword
// signatures using an Aho-Corasick automaton (petar-dambovaliev/aho-corasick),
// so every signature of every language is found in one pass over the input.
package ahocorasick

import (
	"fmt"
	"sort"
	"sync"

	aho "github.com/petar-dambovaliev/aho-corasick"
	"github.com/samber/lo"
)

// Detector scores languages by the signatures found in a snippet.
type Detector struct {
	mu        sync.RWMutex
	automaton aho.AhoCorasick
	patterns  []string
	owners    [][]string // pattern index -> languages listing it
	built     bool
}

// NewDetector builds a detector from language -> signatures.
func NewDetector(signatures map[string][]string) (*Detector, error) {
	d := &Detector{}
	if err := d.Rebuild(signatures); err != nil {
		return nil, err
	}
	return d, nil
}

// Rebuild replaces the automaton with a new signature set.
func (d *Detector) Rebuild(signatures map[string][]string) error {
	index := make(map[string]int)
	var patterns []string
	var owners [][]string

	langs := lo.Keys(signatures)
	sort.Strings(langs)
	for _, lang := range langs {
		for _, sig := range lo.Uniq(signatures[lang]) {
			if sig == "" {
				return fmt.Errorf("language %q: empty signature", lang)
			}
			i, ok := index[sig]
			if !ok {
				i = len(patterns)
				index[sig] = i
				patterns = append(patterns, sig)
				owners = append(owners, nil)
			}
			owners[i] = append(owners[i], lang)
		}
	}

	var automaton aho.AhoCorasick
	if len(patterns) > 0 {
		builder := aho.NewAhoCorasickBuilder(aho.Opts{
			DFA: true,
		})
		automaton = builder.Build(patterns)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.automaton = automaton
	d.patterns = patterns
	d.owners = owners
	d.built = len(patterns) > 0
	return nil
}

// Score is how strongly one language matched.
type Score struct {
	Language string
	Distinct int // signatures found at least once
	Hits     int // total occurrences
}

// Scores returns every language with at least one hit, best first: more
// distinct signatures wins, then more hits, then name. Nil when nothing hits.
func (d *Detector) Scores(content string) []Score {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.built || content == "" {
		return nil
	}

	byLang := make(map[string]*Score)
	seen := make(map[int]bool)
	iter := d.automaton.IterOverlappingByte([]byte(content))
	for next := iter.Next(); next != nil; next = iter.Next() {
		p := next.Pattern()
		first := !seen[p]
		seen[p] = true
		for _, lang := range d.owners[p] {
			s, ok := byLang[lang]
			if !ok {
				s = &Score{Language: lang}
				byLang[lang] = s
			}
			s.Hits++
			if first {
				s.Distinct++
			}
		}
	}

	if len(byLang) == 0 {
		return nil
	}
	scores := lo.MapToSlice(byLang, func(_ string, s *Score) Score { return *s })
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Distinct != b.Distinct {
			return a.Distinct > b.Distinct
		}
		if a.Hits != b.Hits {
			return a.Hits > b.Hits
		}
		return a.Language < b.Language
	})
	return scores
}

// Detect returns the best scoring language, or "".
func (d *Detector) Detect(content string) string {
	scores := d.Scores(content)
	if len(scores) == 0 {
		return ""
	}
	return scores[0].Language
}

// PatternCount returns the number of distinct signatures in the automaton.
func (d *Detector) PatternCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.patterns)
}
