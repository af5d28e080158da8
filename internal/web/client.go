package web

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 4 * 1024 * 1024 // 4MB
)

type Options struct {
	// Proxy is an http(s) or socks5 proxy URL.
	Proxy string
	// Delay between requests to the same domain.
	Delay time.Duration
	// Parallelism caps concurrent requests per domain. Zero is unlimited.
	Parallelism int
	Timeout     time.Duration
	UserAgents  *UserAgents
}

// Client fetches raw pages. Every call clones one collector, so transport,
// proxy and per-domain limits are shared while callbacks stay per request.
type Client struct {
	c      *colly.Collector
	agents *UserAgents
}

func NewClient(opts Options) (*Client, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		colly.MaxBodySize(MaxResponseSize),
	)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.Parallelism,
		Delay:       opts.Delay,
	}); err != nil {
		return nil, fmt.Errorf("web: limit rule: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = RequestTimeout
	}
	c.SetRequestTimeout(timeout)
	if opts.Proxy != "" {
		if err := c.SetProxy(opts.Proxy); err != nil {
			return nil, fmt.Errorf("web: proxy: %w", err)
		}
	}
	agents := opts.UserAgents
	if agents == nil {
		agents = NewUserAgents()
	}
	return &Client{c: c, agents: agents}, nil
}

// Get fetches rawURL and returns its body. Non-2xx statuses are errors.
func (cl *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, errors.New("url must start with http:// or https://")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var body []byte
	c := cl.c.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", cl.agents.Next())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	})
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty response body", rawURL)
	}
	return body, nil
}
