package kvstore

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// Bolt persists the escrow state in a single-bucket bbolt file. Every Get
// and Put is its own transaction; the escrow serializes calls itself, so
// there is nothing to batch.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file and ensures the state
// bucket exists.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Get returns nil for a missing key.
func (b *Bolt) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(stateBucket).Get([]byte(key))
		if value != nil {
			out = make([]byte, len(value))
			copy(out, value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return out, nil
}

func (b *Bolt) Put(key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
