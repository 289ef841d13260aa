package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/modelingevolution/autoupdater/pkg/types"
)

var bucketEntries = []byte("registry_entries")

// Store is the embedded key-value cache described in §3: a RegistryEntry
// per configured package, distinct from the host-side deployment.state.json,
// so the Control API never blocks on a live mirror fetch to answer GET /packages.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if absent) the registry database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "registry.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes entry keyed by its PackageName, replacing any prior value.
func (s *Store) Upsert(entry types.RegistryEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.PackageName), data)
	})
}

// Get returns the cached entry for name, or (nil, nil) if none has been recorded yet.
func (s *Store) Get(name string) (*types.RegistryEntry, error) {
	var entry *types.RegistryEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		var e types.RegistryEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	return entry, err
}

// List returns every cached entry, in no particular order.
func (s *Store) List() ([]types.RegistryEntry, error) {
	var entries []types.RegistryEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		return b.ForEach(func(k, v []byte) error {
			var e types.RegistryEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// Delete removes the cached entry for name, if any.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		return b.Delete([]byte(name))
	})
}
