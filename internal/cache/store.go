package cache

import (
	"context"
	"time"
)

// Store defines the minimal expiring key-value contract shared by every
// backend. Keys and values are opaque bytes; a backend never retains or
// mutates the caller's slices past the call.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Get returns the value for key and true when it is present and
	// unexpired. A missing or expired key is reported as (nil, false, nil).
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	// Set overwrites any existing value for key and restarts its expiry.
	Set(ctx context.Context, key, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error
}

// Clock reports the current time. MemoryStore and BoltStore accept one so
// expiry can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// expired reports whether an entry written at createdAt has outlived ttl.
// A non-positive ttl never expires.
func expired(createdAt, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(createdAt.Add(ttl))
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
