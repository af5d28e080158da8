package feed_test

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/leonardcser/magnetite/internal/feed"
)

func TestNewChannel(t *testing.T) {
	items := []feed.Item{feed.NewItem("a", "https://example.com/a", "<p>a</p>")}
	c := feed.NewChannel("Articles", "https://example.com/articles", items, 10*time.Minute)

	if c.TTL != 10 {
		t.Errorf("TTL = %d, want 10", c.TTL)
	}
	if c.Language != feed.Language || c.Generator != feed.Generator {
		t.Errorf("Language, Generator = %q, %q", c.Language, c.Generator)
	}
	if c.LastBuildDate.IsZero() {
		t.Error("LastBuildDate is zero")
	}
	if c.Items[0].GUID != "https://example.com/a" {
		t.Errorf("GUID = %q, want item link", c.Items[0].GUID)
	}
}

func TestChannel_RSS(t *testing.T) {
	c := feed.NewChannel("Articles", "https://example.com/articles", []feed.Item{
		feed.NewItem("first", "https://example.com/1", "<p>one</p>"),
		feed.NewItem("second", "https://example.com/2", "<p>two &amp; more</p>"),
		feed.NewItem("third", "https://example.com/3", "three"),
	}, 5*time.Minute)

	out, err := c.RSS()
	if err != nil {
		t.Fatalf("RSS() error = %v", err)
	}

	parsed, err := gofeed.NewParser().ParseString(out)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if parsed.FeedType != "rss" {
		t.Errorf("FeedType = %q, want rss", parsed.FeedType)
	}
	if parsed.Title != "Articles" {
		t.Errorf("Title = %q, want Articles", parsed.Title)
	}
	if parsed.Language != feed.Language {
		t.Errorf("Language = %q, want %q", parsed.Language, feed.Language)
	}
	if len(parsed.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(parsed.Items))
	}
	for i, want := range c.Items {
		got := parsed.Items[i]
		if got.Title != want.Title || got.Link != want.Link || got.GUID != want.GUID {
			t.Errorf("Items[%d] = {%q %q %q}, want {%q %q %q}", i, got.Title, got.Link, got.GUID, want.Title, want.Link, want.GUID)
		}
	}
	if parsed.Items[0].Description != "<p>one</p>" {
		t.Errorf("Items[0].Description = %q, want <p>one</p>", parsed.Items[0].Description)
	}
}
