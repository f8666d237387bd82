// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. Domain logic depends
// only on these interfaces, never on concrete implementations.
package ports

// TreeCache persists tokenized trees so repeated requests for the same text
// skip matching. Keys are opaque (the dispatcher derives them from language,
// registry generation and text); values are wire-encoded trees.
//
// Crash safety: Put must be transactional. A crash mid-write must not corrupt
// previously committed entries.
type TreeCache interface {
	// Get returns the stored tree for key. Returns nil, false, nil on a miss.
	Get(key string) ([]byte, bool, error)

	// Put stores data under key, overwriting any prior entry.
	Put(key string, data []byte) error

	// Purge removes every entry. Idempotent.
	Purge() error

	// Len returns the number of stored entries.
	Len() (int, error)
}
