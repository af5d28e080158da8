// Package gcores scrapes gcores.com category pages into feed channels.
package gcores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/leonardcser/magnetite/internal/feed"
	"github.com/leonardcser/magnetite/internal/logger"
	"github.com/leonardcser/magnetite/internal/sites"
)

const Name = "gcores"

// Fetcher returns the raw body behind a URL.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	BaseURL  string
	ImageURL string
	// Markdown converts item descriptions from HTML to markdown.
	Markdown bool
	// Concurrency caps item pages fetched at once.
	Concurrency int
	// Expire is advertised as the channel TTL.
	Expire time.Duration
}

type Site struct {
	fetch Fetcher
	opts  Options
}

var _ sites.Site = (*Site)(nil)

func New(f Fetcher, opts Options) *Site {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.ImageURL = strings.TrimRight(opts.ImageURL, "/")
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Site{fetch: f, opts: opts}
}

func (s *Site) Name() string { return Name }

type entry struct {
	path  string
	title string
}

// Channel scrapes BASE/category and every article it links to. Any article
// failure fails the whole channel so a partial feed is never cached.
func (s *Site) Channel(ctx context.Context, category string) (feed.Channel, error) {
	if !sites.ValidCategory(category) {
		return feed.Channel{}, fmt.Errorf("%w: %q", sites.ErrBadCategory, category)
	}
	pageURL := s.opts.BaseURL + "/" + category
	logger.Debugf("gcores: channel %s", pageURL)

	body, err := s.fetch.Get(ctx, pageURL)
	if err != nil {
		return feed.Channel{}, err
	}
	title, entries, err := parseChannel(body)
	if err != nil {
		return feed.Channel{}, fmt.Errorf("gcores: %s: %w", pageURL, err)
	}

	items := make([]feed.Item, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, e := range entries {
		g.Go(func() error {
			it, err := s.item(gctx, e)
			if err != nil {
				return err
			}
			items[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return feed.Channel{}, err
	}
	return feed.NewChannel(title, pageURL, items, s.opts.Expire), nil
}

func (s *Site) item(ctx context.Context, e entry) (feed.Item, error) {
	itemURL := s.opts.BaseURL + e.path
	apiURL := s.opts.BaseURL + "/gapi/v1" + e.path + "?include=media"
	logger.Debugf("gcores: item %s", itemURL)

	api, err := s.fetch.Get(ctx, apiURL)
	if err != nil {
		return feed.Item{}, err
	}
	page, err := s.fetch.Get(ctx, itemURL)
	if err != nil {
		return feed.Item{}, err
	}
	desc, err := rewriteArticle(page, api, s.opts.ImageURL)
	if err != nil {
		return feed.Item{}, fmt.Errorf("gcores: %s: %w", itemURL, err)
	}
	if s.opts.Markdown {
		md, err := htmltomarkdown.ConvertString(desc)
		if err != nil {
			return feed.Item{}, fmt.Errorf("gcores: %s: markdown: %w", itemURL, err)
		}
		desc = md
	}
	return feed.NewItem(e.title, itemURL, desc), nil
}

func parseChannel(body []byte) (string, []entry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "", nil, errors.New("channel title not found")
	}

	var entries []entry
	var parseErr error
	doc.Find("div.original-normal.am_card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		href := strings.TrimSpace(card.Find("a.original_imgArea_cover").AttrOr("href", ""))
		if href == "" {
			parseErr = errors.New("item url not found")
			return false
		}
		name := strings.TrimSpace(card.Find("a.am_card_content.original_content > h3").First().Text())
		if name == "" {
			parseErr = fmt.Errorf("item title not found for %s", href)
			return false
		}
		entries = append(entries, entry{path: href, title: name})
		return true
	})
	if parseErr != nil {
		return "", nil, parseErr
	}
	return title, entries, nil
}

type image struct {
	caption string
	src     string
}

// imagesFromAPI lists the IMAGE entities of an article in document order.
// The article body is itself a JSON document stored as a string.
func imagesFromAPI(api []byte, imageBase string) []image {
	content := gjson.GetBytes(api, "data.attributes.content").String()
	if content == "" {
		return nil
	}
	var images []image
	gjson.Get(content, "entityMap").ForEach(func(_, v gjson.Result) bool {
		if v.Get("type").String() != "IMAGE" {
			return true
		}
		src := v.Get("data.path").String()
		if src == "" {
			src = v.Get("data.src").String()
		}
		images = append(images, image{
			caption: v.Get("data.caption").String(),
			src:     imageBase + "/" + strings.TrimLeft(src, "/"),
		})
		return true
	})
	return images
}

func imgTag(src string) string {
	return `<img src="` + html.EscapeString(src) + `"/>`
}

// rewriteArticle turns an article page into the HTML used as the item
// description: figures become plain images with captions, editor chrome is
// dropped and the cover image is put first.
func rewriteArticle(page, api []byte, imageBase string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}

	images := imagesFromAPI(api, imageBase)
	doc.Find("figure").Each(func(i int, fig *goquery.Selection) {
		if i >= len(images) {
			return
		}
		fig.ReplaceWithHtml(imgTag(images[i].src) + html.EscapeString(images[i].caption))
	})

	doc.Find("div.md-editor-toolbar").Remove()
	doc.Find(".story_hidden").Remove()
	doc.Find("svg").Remove()

	content := doc.Find("div.story.story-show").First()
	if content.Length() == 0 {
		return "", errors.New("article content not found")
	}
	if cover := gjson.GetBytes(api, "data.attributes.cover").String(); cover != "" {
		content.PrependHtml(imgTag(imageBase + "/" + strings.TrimLeft(cover, "/")))
	}
	return goquery.OuterHtml(content)
}
