package cache

import (
	"context"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore is a persistent Store backed by a single bbolt file.
// It is safe for concurrent use by multiple goroutines.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
	ttl    time.Duration
	clock  Clock
}

var _ Store = (*BoltStore)(nil)

type BoltOptions struct {
	// Bucket is the name of the Bolt bucket to use. Defaults to "cache".
	Bucket string
	// TTL applies to every entry. A non-positive TTL never expires.
	TTL time.Duration
	// Clock defaults to SystemClock.
	Clock Clock
}

// OpenBolt initializes or opens a BoltStore at the given path.
func OpenBolt(path string, opts BoltOptions) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	bucket := []byte("cache")
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &BoltStore{db: db, bucket: bucket, ttl: opts.TTL, clock: clock}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Set stores value behind an 8 byte big endian header holding the write
// time in unix milliseconds.
func (s *BoltStore) Set(_ context.Context, key, value []byte) error {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(s.clock.Now().UnixMilli()))
	copy(buf[8:], value)

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(key, buf)
	})
}

// Get returns a copy of the cached value if present and not expired.
// Expired values stay on disk until overwritten or deleted.
func (s *BoltStore) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(key)
		if len(v) < 8 {
			return nil
		}
		createdAt := time.UnixMilli(int64(binary.BigEndian.Uint64(v[:8])))
		if expired(createdAt, s.clock.Now(), s.ttl) {
			return nil
		}
		// v is only valid inside the transaction.
		out = append([]byte{}, v[8:]...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

// Delete removes a key.
func (s *BoltStore) Delete(_ context.Context, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(key)
	})
}
