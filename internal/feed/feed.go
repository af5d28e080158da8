// Package feed holds the syndication document served for a category and
// its RSS 2.0 rendering. Channel is the value stored in the cache.
package feed

import (
	"time"

	"github.com/gorilla/feeds"
)

const (
	Generator = "magnetite"
	Language  = "zh-cn"
)

type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	GUID        string `json:"guid"`
}

type Channel struct {
	Title         string    `json:"title"`
	Link          string    `json:"link"`
	Description   string    `json:"description"`
	Language      string    `json:"language"`
	Generator     string    `json:"generator"`
	TTL           int       `json:"ttl"` // minutes
	LastBuildDate time.Time `json:"last_build_date"`
	Items         []Item    `json:"items"`
}

// NewItem builds an item whose GUID is its link.
func NewItem(title, link, description string) Item {
	return Item{Title: title, Link: link, Description: description, GUID: link}
}

// NewChannel builds a channel advertising expire as its TTL so readers do
// not poll faster than the cache refreshes.
func NewChannel(title, link string, items []Item, expire time.Duration) Channel {
	return Channel{
		Title:         title,
		Link:          link,
		Description:   Generator,
		Language:      Language,
		Generator:     Generator,
		TTL:           int(expire / time.Minute),
		LastBuildDate: time.Now().UTC().Truncate(time.Second),
		Items:         items,
	}
}

// RSS renders the channel as an RSS 2.0 document.
func (c Channel) RSS() (string, error) {
	f := &feeds.Feed{
		Title:       c.Title,
		Link:        &feeds.Link{Href: c.Link},
		Description: c.Description,
		Updated:     c.LastBuildDate,
	}
	for _, it := range c.Items {
		f.Items = append(f.Items, &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.Link},
			Description: it.Description,
			Id:          it.GUID,
		})
	}
	rss := (&feeds.Rss{Feed: f}).RssFeed()
	rss.Language = c.Language
	rss.Generator = c.Generator
	rss.Ttl = c.TTL
	return feeds.ToXML(rss)
}
