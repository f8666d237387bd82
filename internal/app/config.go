package app

import (
	"fmt"
	"time"

	"github.com/corey/hilite/internal/domain/grammar"
)

// Config holds initialization parameters for the Engine and the App.
// The CLI fills it from viper (flags, HILITE_* env, .hilite.yaml).
type Config struct {
	ProjectRoot string
	Debug       bool
	LogFormat   string // text or json

	// GrammarDir holds user grammars layered over the bundled ones
	// (default: .hilite/grammars). A missing directory is not an error.
	GrammarDir   string
	MissingRule  string        // silent or report
	MatchTimeout time.Duration // per-regex search bound, 0 = none

	DBPath   string // tree cache (default: .hilite/hilite.db)
	Cache    bool
	CacheTTL time.Duration // entries older than this are pruned on open, 0 = keep

	WorkerTimeout time.Duration // async wait before falling back to sync
	Jobs          int           // batch pool size, 0 = one per CPU
	HTTPPort      int           // preferred HTTP port (0 = computed from project root)
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig(projectRoot string) Config {
	return Config{
		ProjectRoot:   projectRoot,
		LogFormat:     "text",
		MissingRule:   grammar.MissingSilent.String(),
		Cache:         true,
		CacheTTL:      7 * 24 * time.Hour,
		WorkerTimeout: 5 * time.Second,
	}
}

// Validate checks values that cannot be caught by flag parsing.
func (c Config) Validate() error {
	if _, err := grammar.ParseMissingRulePolicy(c.MissingRule); err != nil {
		return err
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	if c.WorkerTimeout < 0 || c.MatchTimeout < 0 || c.CacheTTL < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
