package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leonardcser/magnetite/internal/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type senderFunc func(ctx context.Context, req cache.Request) (cache.Response, error)

func (f senderFunc) Send(ctx context.Context, req cache.Request) (cache.Response, error) {
	return f(ctx, req)
}

// storeContract runs the properties every backend must satisfy.
func storeContract(t *testing.T, s cache.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss before set", func(t *testing.T) {
		v, ok, err := s.Get(ctx, []byte("never-set"))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if ok || v != nil {
			t.Errorf("Get() = (%q, %v), want (nil, false)", v, ok)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		if err := s.Set(ctx, []byte("k"), []byte("v1")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		v, ok, err := s.Get(ctx, []byte("k"))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !ok || string(v) != "v1" {
			t.Errorf("Get() = (%q, %v), want (v1, true)", v, ok)
		}
	})

	t.Run("last write wins", func(t *testing.T) {
		for _, v := range []string{"first", "second"} {
			if err := s.Set(ctx, []byte("lww"), []byte(v)); err != nil {
				t.Fatalf("Set(%q) error = %v", v, err)
			}
		}
		v, ok, err := s.Get(ctx, []byte("lww"))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !ok || string(v) != "second" {
			t.Errorf("Get() = (%q, %v), want (second, true)", v, ok)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, []byte("absent")); err != nil {
			t.Errorf("Delete(absent) error = %v", err)
		}
		if err := s.Set(ctx, []byte("gone"), []byte("x")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := s.Delete(ctx, []byte("gone")); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, ok, err := s.Get(ctx, []byte("gone")); err != nil || ok {
			t.Errorf("Get() after Delete = (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("concurrent sets never mix", func(t *testing.T) {
		a := make([]byte, 4096)
		b := make([]byte, 4096)
		for i := range a {
			a[i], b[i] = 'a', 'b'
		}
		var wg sync.WaitGroup
		errs := make(chan error, 64)
		for i := 0; i < 32; i++ {
			wg.Add(2)
			go func() { defer wg.Done(); errs <- s.Set(ctx, []byte("race"), a) }()
			go func() { defer wg.Done(); errs <- s.Set(ctx, []byte("race"), b) }()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		}
		v, ok, err := s.Get(ctx, []byte("race"))
		if err != nil || !ok {
			t.Fatalf("Get() = (%v, %v)", ok, err)
		}
		if string(v) != string(a) && string(v) != string(b) {
			t.Errorf("Get() returned a mixed value of length %d", len(v))
		}
	})
}
