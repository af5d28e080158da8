package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/leonardcser/magnetite/internal/aggregator"
	"github.com/leonardcser/magnetite/internal/cache"
	"github.com/leonardcser/magnetite/internal/feed"
	"github.com/leonardcser/magnetite/internal/server"
	"github.com/leonardcser/magnetite/internal/sites"
)

type fakeSite struct {
	calls atomic.Int32
}

func (s *fakeSite) Name() string { return "test" }

func (s *fakeSite) Channel(_ context.Context, category string) (feed.Channel, error) {
	s.calls.Add(1)
	if category == "fail" {
		return feed.Channel{}, errors.New("upstream 500")
	}
	items := []feed.Item{
		feed.NewItem("one", "https://example.com/1", "<p>1</p>"),
		feed.NewItem("two", "https://example.com/2", "<p>2</p>"),
	}
	return feed.NewChannel("Test "+category, "https://example.com/"+category, items, 5*time.Minute), nil
}

func newServer(t *testing.T) (*server.Server, *fakeSite, *cache.Instrumented) {
	t.Helper()
	mem := cache.NewMemoryStore(cache.MemoryOptions{TTL: time.Minute})
	t.Cleanup(func() { _ = mem.Close() })
	store := cache.NewInstrumented(mem)
	site := &fakeSite{}
	agg := aggregator.New(cache.NewStorage(store), sites.NewRegistry(site))
	return server.New(agg, store.Metrics), site, store
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) server.ResponseError {
	t.Helper()
	var e server.ResponseError
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestFeed_MissThenHit(t *testing.T) {
	s, site, _ := newServer(t)

	rec := do(t, s, http.MethodGet, "/test/news", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
	f, err := gofeed.NewParser().ParseString(rec.Body.String())
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if f.Title != "Test news" || len(f.Items) != 2 || f.Items[1].Link != "https://example.com/2" {
		t.Errorf("feed = %q with %d items", f.Title, len(f.Items))
	}

	rec = do(t, s, http.MethodGet, "/test/news", nil)
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second X-Cache = %q, want HIT", got)
	}
	if got := site.calls.Load(); got != 1 {
		t.Errorf("site calls = %d, want 1", got)
	}
}

func TestFeed_Purge(t *testing.T) {
	s, site, _ := newServer(t)
	do(t, s, http.MethodGet, "/test/news", nil)

	rec := do(t, s, http.MethodDelete, "/test/news", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/test/news", nil)
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache after purge = %q, want MISS", got)
	}
	if got := site.calls.Load(); got != 2 {
		t.Errorf("site calls = %d, want 2", got)
	}
}

func TestFeed_Errors(t *testing.T) {
	s, _, _ := newServer(t)
	cases := []struct {
		method, target string
		code           int
	}{
		{http.MethodGet, "/nope/news", http.StatusNotFound},
		{http.MethodDelete, "/nope/news", http.StatusNotFound},
		{http.MethodGet, "/test/a%3Fb", http.StatusBadRequest},
		{http.MethodGet, "/test/fail", http.StatusBadGateway},
	}
	for _, tc := range cases {
		rec := do(t, s, tc.method, tc.target, nil)
		if rec.Code != tc.code {
			t.Errorf("%s %s status = %d, want %d", tc.method, tc.target, rec.Code, tc.code)
			continue
		}
		e := decodeError(t, rec)
		if e.Code != tc.code || e.Message == "" || e.Err == "" {
			t.Errorf("%s %s error body = %+v", tc.method, tc.target, e)
		}
	}
}

func TestMetrics(t *testing.T) {
	s, _, _ := newServer(t)
	do(t, s, http.MethodGet, "/test/news", nil)
	do(t, s, http.MethodGet, "/test/news", nil)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var m cache.MetricsSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if m.Get.Count != 2 || m.Hits != 1 || m.Misses != 1 || m.Set.Count != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestMetricsDisabled(t *testing.T) {
	mem := cache.NewMemoryStore(cache.MemoryOptions{})
	t.Cleanup(func() { _ = mem.Close() })
	agg := aggregator.New(cache.NewStorage(mem), sites.NewRegistry(&fakeSite{}))
	rec := do(t, server.New(agg, nil), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s, _, _ := newServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body)
	}
}

func TestRequestID(t *testing.T) {
	s, _, _ := newServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	if id := rec.Header().Get("X-Request-ID"); len(id) != 36 {
		t.Errorf("generated X-Request-ID = %q", id)
	}
	rec = do(t, s, http.MethodGet, "/healthz", http.Header{"X-Request-Id": {"abc"}})
	if id := rec.Header().Get("X-Request-ID"); id != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", id)
	}
}

type panicFeeds struct{}

func (panicFeeds) Channel(context.Context, string, string) (feed.Channel, aggregator.Source, error) {
	panic("boom")
}

func (panicFeeds) Purge(context.Context, string, string) error { return nil }

func TestRecovery(t *testing.T) {
	rec := do(t, server.New(panicFeeds{}, nil), http.MethodGet, "/test/news", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != http.StatusInternalServerError {
		t.Errorf("error body = %+v", e)
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s, _, _ := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}
