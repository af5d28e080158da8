package web

import (
	"math/rand/v2"
	"sync/atomic"
)

// Desktop browsers only: the scraped pages serve a different, card-less
// layout to mobile agents.
var desktopAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Edg/129.0.0.0",
}

// UserAgents hands out user-agent strings, mostly round-robin with an
// occasional random pick.
type UserAgents struct {
	list    []string
	counter atomic.Uint64
}

func NewUserAgents(list ...string) *UserAgents {
	if len(list) == 0 {
		list = desktopAgents
	}
	return &UserAgents{list: list}
}

func (u *UserAgents) Next() string {
	if len(u.list) == 1 {
		return u.list[0]
	}
	// 80% round-robin, 20% random
	if rand.Float64() < 0.2 {
		return u.list[rand.IntN(len(u.list))]
	}
	idx := u.counter.Add(1)
	return u.list[idx%uint64(len(u.list))]
}
