// Package sites defines the scrapers that turn a content site's category
// page into a feed channel.
package sites

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/leonardcser/magnetite/internal/feed"
)

// ErrUnknownSite is returned by the registry for an unregistered name.
var ErrUnknownSite = errors.New("unknown site")

// ErrBadCategory is returned for a category that is not a single path
// segment.
var ErrBadCategory = errors.New("invalid category")

type Site interface {
	Name() string
	Channel(ctx context.Context, category string) (feed.Channel, error)
}

type Registry struct {
	sites map[string]Site
}

func NewRegistry(sites ...Site) *Registry {
	r := &Registry{sites: make(map[string]Site, len(sites))}
	for _, s := range sites {
		r.sites[s.Name()] = s
	}
	return r
}

func (r *Registry) Lookup(name string) (Site, error) {
	s, ok := r.sites[name]
	if !ok {
		return nil, ErrUnknownSite
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sites))
	for n := range r.sites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidCategory reports whether category is one non-empty path segment.
func ValidCategory(category string) bool {
	return category != "" && category != "." && category != ".." &&
		!strings.ContainsAny(category, "/?#\\")
}
