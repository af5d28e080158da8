package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type memoryEntry struct {
	payload   []byte
	createdAt time.Time
}

// MemoryStore keeps entries in one concurrent map shared by a small worker
// pool. Expired entries are treated as absent on read but are not removed;
// a key written once and never read again stays in memory until the process
// exits or it is deleted.
type MemoryStore struct {
	Dispatcher

	entries *xsync.MapOf[string, memoryEntry]
	pool    *Pool
	ttl     time.Duration
	clock   Clock
}

var _ Store = (*MemoryStore)(nil)

type MemoryOptions struct {
	// Workers is the worker pool size. Defaults to DefaultWorkers.
	Workers int
	// QueueSize bounds each worker's queue. Defaults to DefaultQueueSize.
	QueueSize int
	// TTL applies to every entry. A non-positive TTL never expires.
	TTL time.Duration
	// Clock defaults to SystemClock.
	Clock Clock
}

// NewMemoryStore starts the worker pool. Call Close to stop it.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	s := &MemoryStore{
		entries: xsync.NewMapOf[string, memoryEntry](),
		ttl:     opts.TTL,
		clock:   opts.Clock,
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	s.pool = NewPool(opts.Workers, opts.QueueSize, HandlerFunc(s.handle))
	s.Dispatcher = NewDispatcher(s.pool)
	return s
}

// handle runs on a pool worker. The map's per-key locking, not the pool,
// keeps concurrent operations on one key consistent.
func (s *MemoryStore) handle(_ context.Context, req Request) Response {
	resp := Response{Op: req.Op}
	switch req.Op {
	case OpSet:
		payload := req.Value
		now := s.clock.Now()
		s.entries.Compute(string(req.Key), func(old memoryEntry, loaded bool) (memoryEntry, bool) {
			if loaded {
				old.payload = payload
				old.createdAt = now
				return old, false
			}
			return memoryEntry{payload: payload, createdAt: now}, false
		})
	case OpGet:
		e, ok := s.entries.Load(string(req.Key))
		if ok && !expired(e.createdAt, s.clock.Now(), s.ttl) {
			resp.Value = clone(e.payload)
			resp.Found = true
		}
	case OpDelete:
		s.entries.Delete(string(req.Key))
	default:
		resp.Err = fmt.Errorf("%w: %q", ErrUnsupported, req.Op)
	}
	return resp
}

// Len reports the number of entries held, including expired ones.
func (s *MemoryStore) Len() int { return s.entries.Size() }

// TTL returns the expiry applied to every entry.
func (s *MemoryStore) TTL() time.Duration { return s.ttl }

// Workers returns the worker pool size.
func (s *MemoryStore) Workers() int { return s.pool.Workers() }

// Close stops the worker pool. The map is left as is.
func (s *MemoryStore) Close() error { return s.pool.Close() }
