// Package store keeps named resources in a bolt database, one bucket per resource. It
// produces and applies resource state for the transport, and executes the replicated
// commands of the node.
package store

import (
	"github.com/boltdb/bolt"
)

type Options struct {
	// Path is the file path to the BoltDB to use
	Path string

	// BoltOptions contains any specific BoltDB options you might
	// want to specify [e.g. open timeout]
	BoltOptions *bolt.Options

	// NoSync causes the database to skip fsync calls after each
	// write to the log. This is unsafe, so it should be used
	// with caution.
	NoSync bool
}

type BoltStore struct {
	conn    *bolt.DB
	options Options
}

// Close is used to gracefully close the DB connection.
func (b *BoltStore) Close() error {
	return b.conn.Close()
}

func New(options Options) (*BoltStore, error) {
	handle, err := bolt.Open(options.Path, dbFileMode, options.BoltOptions)
	if err != nil {
		return nil, err
	}
	handle.NoSync = options.NoSync

	return &BoltStore{
		conn:    handle,
		options: options,
	}, nil
}

// Put stores value under key in resource, creating the resource if needed.
func (b *BoltStore) Put(resource, key string, value []byte) error {
	return b.conn.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(resource))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
}

func (b *BoltStore) Delete(resource, key string) error {
	return b.conn.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(resource))
		if bucket == nil {
			return ErrResourceNotFound
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *BoltStore) Get(resource, key string) ([]byte, error) {
	var out []byte
	err := b.conn.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(resource))
		if bucket == nil {
			return ErrResourceNotFound
		}
		value := bucket.Get([]byte(key))
		if value == nil {
			return ErrKeyNotFound
		}
		out = make([]byte, len(value))
		copy(out, value)
		return nil
	})
	return out, err
}

// Resources returns the names of the stored resources.
func (b *BoltStore) Resources() ([]string, error) {
	out := []string{}
	err := b.conn.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			out = append(out, string(name))
			return nil
		})
	})
	return out, err
}

// Len returns the number of keys in resource.
func (b *BoltStore) Len(resource string) (int, error) {
	count := 0
	err := b.conn.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(resource))
		if bucket == nil {
			return ErrResourceNotFound
		}
		count = bucket.Stats().KeyN
		return nil
	})
	return count, err
}
