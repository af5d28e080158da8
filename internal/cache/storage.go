package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Storage stores structured values on top of a byte-oriented Store.
// Values are encoded as JSON. Decoding is strict: a cached object with
// fields the target type does not declare is a deserialization error, so a
// value written for one shape is never silently read back as another.
type Storage struct {
	store Store
}

func NewStorage(s Store) *Storage {
	return &Storage{store: s}
}

// Store returns the underlying byte store.
func (s *Storage) Store() Store { return s.store }

// Save encodes v and writes it under key. Encoding happens before the store
// is touched, so a failed encode writes nothing.
func (s *Storage) Save(ctx context.Context, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialize, err)
	}
	return s.store.Set(ctx, key, b)
}

// Load reads key into v. It returns false with a nil error on a miss and
// leaves v untouched.
func (s *Storage) Load(ctx context.Context, key []byte, v any) (bool, error) {
	b, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return false, fmt.Errorf("%w: %w", ErrDeserialize, err)
	}
	if dec.More() {
		return false, fmt.Errorf("%w: trailing data after value", ErrDeserialize)
	}
	return true, nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key []byte) error {
	return s.store.Delete(ctx, key)
}

// Key is anything usable as a cache key.
type Key interface {
	~string | ~[]byte
}

// Get reads key as a T. The boolean reports whether a value was cached.
func Get[T any, K Key](ctx context.Context, s *Storage, key K) (T, bool, error) {
	var v T
	ok, err := s.Load(ctx, []byte(key), &v)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// Set writes v under key.
func Set[T any, K Key](ctx context.Context, s *Storage, key K, v T) error {
	return s.Save(ctx, []byte(key), v)
}

// Delete removes key.
func Delete[K Key](ctx context.Context, s *Storage, key K) error {
	return s.Delete(ctx, []byte(key))
}
