package ports

// Detector guesses the language of a snippet from keyword signatures using
// multi-pattern matching (Aho-Corasick). A single pass over the content finds
// every signature of every language simultaneously.
//
// The detector must be rebuilt when the grammar set changes (reload).
type Detector interface {
	// Detect returns the best matching language name, or "" when no
	// signature occurs in content.
	Detect(content string) string

	// Rebuild replaces every signature set and reconstructs the automaton.
	// Keys are language names. Returns an error if a signature is empty.
	Rebuild(signatures map[string][]string) error
}
