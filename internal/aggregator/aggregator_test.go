package aggregator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leonardcser/magnetite/internal/aggregator"
	"github.com/leonardcser/magnetite/internal/cache"
	"github.com/leonardcser/magnetite/internal/feed"
	"github.com/leonardcser/magnetite/internal/sites"
)

type countingSite struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (s *countingSite) Name() string { return "test" }

func (s *countingSite) Channel(_ context.Context, category string) (feed.Channel, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return feed.Channel{}, s.err
	}
	items := []feed.Item{
		feed.NewItem("a", "https://example.com/a", "A"),
		feed.NewItem("b", "https://example.com/b", "B"),
		feed.NewItem("c", "https://example.com/c", "C"),
	}
	return feed.NewChannel(category, "https://example.com/"+category, items, time.Minute), nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newAggregator(t *testing.T, site sites.Site, store cache.Store) *aggregator.Aggregator {
	t.Helper()
	return aggregator.New(cache.NewStorage(store), sites.NewRegistry(site))
}

func newMemory(t *testing.T, clk cache.Clock) *cache.MemoryStore {
	t.Helper()
	s := cache.NewMemoryStore(cache.MemoryOptions{TTL: time.Minute, Clock: clk})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChannel_MissThenHit(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	site := &countingSite{}
	a := newAggregator(t, site, newMemory(t, clk))

	c, src, err := a.Channel(ctx, "test", "news")
	if err != nil {
		t.Fatalf("Channel() error = %v", err)
	}
	if src != aggregator.SourceMiss || len(c.Items) != 3 {
		t.Fatalf("first Channel() = %v with %d items, want MISS with 3", src, len(c.Items))
	}

	c2, src, err := a.Channel(ctx, "test", "news")
	if err != nil {
		t.Fatalf("Channel() error = %v", err)
	}
	if src != aggregator.SourceHit {
		t.Errorf("second Channel() source = %v, want HIT", src)
	}
	if c2.Title != c.Title || len(c2.Items) != 3 || c2.Items[2] != c.Items[2] {
		t.Errorf("cached channel = %+v, want %+v", c2, c)
	}
	if !c2.LastBuildDate.Equal(c.LastBuildDate) {
		t.Errorf("LastBuildDate = %v, want %v", c2.LastBuildDate, c.LastBuildDate)
	}

	clk.Advance(time.Minute)
	if _, src, _ := a.Channel(ctx, "test", "news"); src != aggregator.SourceMiss {
		t.Errorf("Channel() after expiry source = %v, want MISS", src)
	}
	if got := site.calls.Load(); got != 2 {
		t.Errorf("site calls = %d, want 2", got)
	}
}

func TestChannel_UndecodableEntryIsReplaced(t *testing.T) {
	ctx := context.Background()
	store := newMemory(t, nil)
	if err := store.Set(ctx, []byte(aggregator.Key("test", "news")), []byte(`{"other":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	site := &countingSite{}
	a := newAggregator(t, site, store)

	_, src, err := a.Channel(ctx, "test", "news")
	if err != nil {
		t.Fatalf("Channel() error = %v", err)
	}
	if src != aggregator.SourceMiss {
		t.Errorf("source = %v, want MISS", src)
	}
	if _, src, _ := a.Channel(ctx, "test", "news"); src != aggregator.SourceHit {
		t.Errorf("source after refetch = %v, want HIT", src)
	}
}

type brokenStore struct{}

var errDown = errors.New("down")

func (brokenStore) Get(context.Context, []byte) ([]byte, bool, error) {
	return nil, false, &cache.TransportError{Backend: "redis", Op: cache.OpGet, Err: errDown}
}

func (brokenStore) Set(context.Context, []byte, []byte) error {
	return &cache.TransportError{Backend: "redis", Op: cache.OpSet, Err: errDown}
}

func (brokenStore) Delete(context.Context, []byte) error { return nil }

func TestChannel_CacheDownFallsBackToLiveFetch(t *testing.T) {
	site := &countingSite{}
	a := newAggregator(t, site, brokenStore{})
	for range 2 {
		_, src, err := a.Channel(context.Background(), "test", "news")
		if err != nil {
			t.Fatalf("Channel() error = %v", err)
		}
		if src != aggregator.SourceMiss {
			t.Errorf("source = %v, want MISS", src)
		}
	}
	if got := site.calls.Load(); got != 2 {
		t.Errorf("site calls = %d, want 2", got)
	}
}

func TestChannel_SiteErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	errScrape := errors.New("scrape failed")
	site := &countingSite{err: errScrape}
	store := newMemory(t, nil)
	a := newAggregator(t, site, store)

	if _, _, err := a.Channel(ctx, "test", "news"); !errors.Is(err, errScrape) {
		t.Fatalf("Channel() error = %v, want %v", err, errScrape)
	}
	if _, ok, _ := store.Get(ctx, []byte(aggregator.Key("test", "news"))); ok {
		t.Error("failed fetch was cached")
	}
}

func TestChannel_ConcurrentMissesFetchOnce(t *testing.T) {
	site := &countingSite{gate: make(chan struct{})}
	a := newAggregator(t, site, newMemory(t, nil))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := a.Channel(context.Background(), "test", "news")
			errs <- err
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for site.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(site.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Channel() error = %v", err)
		}
	}
	if got := site.calls.Load(); got != 1 {
		t.Errorf("site calls = %d, want 1", got)
	}
}

func TestChannel_CallerCancelDoesNotAbortFetch(t *testing.T) {
	site := &countingSite{gate: make(chan struct{})}
	store := newMemory(t, nil)
	a := newAggregator(t, site, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := a.Channel(ctx, "test", "news")
		done <- err
	}()
	for site.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Channel() error = %v, want context.Canceled", err)
	}
	close(site.gate)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := store.Get(context.Background(), []byte(aggregator.Key("test", "news"))); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("abandoned fetch was not written back")
}

func TestChannel_Validation(t *testing.T) {
	a := newAggregator(t, &countingSite{}, newMemory(t, nil))
	if _, _, err := a.Channel(context.Background(), "nope", "news"); !errors.Is(err, sites.ErrUnknownSite) {
		t.Errorf("Channel(unknown site) error = %v", err)
	}
	if _, _, err := a.Channel(context.Background(), "test", ".."); !errors.Is(err, sites.ErrBadCategory) {
		t.Errorf("Channel(bad category) error = %v", err)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	site := &countingSite{}
	a := newAggregator(t, site, newMemory(t, nil))

	if _, _, err := a.Channel(ctx, "test", "news"); err != nil {
		t.Fatalf("Channel() error = %v", err)
	}
	if err := a.Purge(ctx, "test", "news"); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if _, src, _ := a.Channel(ctx, "test", "news"); src != aggregator.SourceMiss {
		t.Errorf("source after purge = %v, want MISS", src)
	}
	if err := a.Purge(ctx, "nope", "news"); !errors.Is(err, sites.ErrUnknownSite) {
		t.Errorf("Purge(unknown site) error = %v", err)
	}
}
