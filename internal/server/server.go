// Package server exposes the aggregator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/leonardcser/magnetite/internal/aggregator"
	"github.com/leonardcser/magnetite/internal/cache"
	"github.com/leonardcser/magnetite/internal/feed"
	"github.com/leonardcser/magnetite/internal/logger"
	"github.com/leonardcser/magnetite/internal/sites"
)

const headerCache = "X-Cache"

var errPanic = errors.New("handler panicked")

// Feeds is what the HTTP routes need from the aggregator.
type Feeds interface {
	Channel(ctx context.Context, site, category string) (feed.Channel, aggregator.Source, error)
	Purge(ctx context.Context, site, category string) error
}

type Server struct {
	feeds   Feeds
	metrics func() cache.MetricsSnapshot
	router  *mux.Router
}

// New builds the router. metrics may be nil when the store is not
// instrumented; /metrics then answers 404.
func New(feeds Feeds, metrics func() cache.MetricsSnapshot) *Server {
	s := &Server{feeds: feeds, metrics: metrics, router: mux.NewRouter()}
	s.router.Use(requestIDMiddleware, loggingMiddleware, recoveryMiddleware)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/{site}/{category}", s.handleFeed).Methods(http.MethodGet)
	s.router.HandleFunc("/{site}/{category}", s.handlePurge).Methods(http.MethodDelete)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("http server listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Infof("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, src, err := s.feeds.Channel(r.Context(), vars["site"], vars["category"])
	if err != nil {
		writeFeedError(w, r, err)
		return
	}
	body, err := c.RSS()
	if err != nil {
		ComposeError(http.StatusInternalServerError, "render failed", err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set(headerCache, string(src))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.feeds.Purge(r.Context(), vars["site"], vars["category"]); err != nil {
		writeFeedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		ComposeError(http.StatusNotFound, "Not Found", errors.New("metrics disabled")).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.metrics())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func writeFeedError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sites.ErrUnknownSite):
		ComposeError(http.StatusNotFound, "Not Found", err).Write(w)
	case errors.Is(err, sites.ErrBadCategory):
		ComposeError(http.StatusBadRequest, "bad category", err).Write(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ComposeError(http.StatusGatewayTimeout, "request cancelled", err).Write(w)
	default:
		logger.Errorf("%s %s id=%s: %v", r.Method, r.URL.Path, RequestID(r.Context()), err)
		ComposeError(http.StatusBadGateway, "upstream failed", err).Write(w)
	}
}
