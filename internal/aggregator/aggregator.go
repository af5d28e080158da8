// Package aggregator serves feed channels cache-aside: a cached channel is
// returned as is, otherwise the site is scraped and the result stored.
package aggregator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/leonardcser/magnetite/internal/cache"
	"github.com/leonardcser/magnetite/internal/feed"
	"github.com/leonardcser/magnetite/internal/logger"
	"github.com/leonardcser/magnetite/internal/sites"
)

// Source tells where a channel came from.
type Source string

const (
	SourceHit  Source = "HIT"
	SourceMiss Source = "MISS"
)

type Aggregator struct {
	storage  *cache.Storage
	registry *sites.Registry
	flights  singleflight.Group
}

func New(storage *cache.Storage, registry *sites.Registry) *Aggregator {
	return &Aggregator{storage: storage, registry: registry}
}

// Key is the cache key of a site category.
func Key(site, category string) string {
	return "/" + site + "/" + category
}

// Channel returns the channel for site/category. Cache failures never fail
// the request: an undecodable entry is dropped and refetched, any other
// cache error falls back to a live fetch.
func (a *Aggregator) Channel(ctx context.Context, site, category string) (feed.Channel, Source, error) {
	s, err := a.registry.Lookup(site)
	if err != nil {
		return feed.Channel{}, "", fmt.Errorf("%w: %q", err, site)
	}
	if !sites.ValidCategory(category) {
		return feed.Channel{}, "", fmt.Errorf("%w: %q", sites.ErrBadCategory, category)
	}
	key := Key(site, category)

	c, ok, err := cache.Get[feed.Channel](ctx, a.storage, key)
	switch {
	case err == nil && ok:
		logger.Debugf("aggregator: hit %s", key)
		return c, SourceHit, nil
	case errors.Is(err, cache.ErrDeserialize):
		logger.Warnf("aggregator: dropping undecodable entry %s: %v", key, err)
		if err := cache.Delete(ctx, a.storage, key); err != nil {
			logger.Warnf("aggregator: delete %s: %v", key, err)
		}
	case err != nil:
		logger.Warnf("aggregator: cache read %s: %v", key, err)
	}

	ch := a.flights.DoChan(key, func() (any, error) {
		// Shared by every waiter, so it must outlive the first caller.
		fctx := context.WithoutCancel(ctx)
		c, err := s.Channel(fctx, category)
		if err != nil {
			return feed.Channel{}, err
		}
		if err := cache.Set(fctx, a.storage, key, c); err != nil {
			logger.Warnf("aggregator: cache write %s: %v", key, err)
		}
		return c, nil
	})
	select {
	case <-ctx.Done():
		return feed.Channel{}, "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return feed.Channel{}, "", r.Err
		}
		return r.Val.(feed.Channel), SourceMiss, nil
	}
}

// Purge drops the cached channel for site/category.
func (a *Aggregator) Purge(ctx context.Context, site, category string) error {
	if _, err := a.registry.Lookup(site); err != nil {
		return fmt.Errorf("%w: %q", err, site)
	}
	if !sites.ValidCategory(category) {
		return fmt.Errorf("%w: %q", sites.ErrBadCategory, category)
	}
	return cache.Delete(ctx, a.storage, Key(site, category))
}
