// Package bbolt implements the ports.TreeCache interface using bbolt (embedded
// B+ tree). Cached trees live in a single "trees" bucket keyed by the
// dispatcher's cache key. Writes are transactional: a crash mid-write cannot
// corrupt previously committed entries.
package bbolt

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "bbolt")

var bucketTrees = []byte("trees")

// Store implements ports.TreeCache backed by bbolt.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// NewStore opens (or creates) a bbolt database at the given path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTrees)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt init: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Get returns the cached tree for key. Returns nil, false, nil on a miss.
// Entries written by an incompatible version count as a miss.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTrees).Get([]byte(key))
		if v == nil {
			return nil
		}
		// decodeEntry copies out of the transaction (bbolt slices are only valid within tx)
		p, _, err := decodeEntry(v)
		if err != nil {
			log.WithError(err).WithField("key", key).Debug("Ignoring unreadable cache entry")
			return nil
		}
		payload = p
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payload, payload != nil, nil
}

// Put stores data under key, overwriting any prior entry.
func (s *Store) Put(key string, data []byte) error {
	entry := encodeEntry(data, s.now())
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrees).Put([]byte(key), entry)
	})
}

// Purge removes every entry. Idempotent.
func (s *Store) Purge() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketTrees); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketTrees)
		return err
	})
}

// Len returns the number of stored entries.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrees).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Prune deletes entries stored more than maxAge ago, and entries that cannot
// be decoded. Returns the number removed.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrees)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			_, storedAt, err := decodeEntry(v)
			if err != nil || storedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
