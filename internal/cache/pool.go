package cache

import (
	"context"
	"hash/maphash"
	"sync"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

type call struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Pool is a fixed set of workers, each draining its own bounded queue of
// requests through a shared Handler. Requests are routed by key, so all
// operations on one key run on one worker in submission order; different
// workers run in parallel.
type Pool struct {
	handler Handler
	queues  []chan call
	seed    maphash.Seed

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var _ Sender = (*Pool)(nil)

// NewPool starts workers goroutines. A full queue blocks Send until space
// frees up, the caller's context ends, or the pool is closed.
func NewPool(workers, queueSize int, h Handler) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &Pool{
		handler: h,
		queues:  make([]chan call, workers),
		seed:    maphash.MakeSeed(),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan call, queueSize)
		p.wg.Add(1)
		go p.work(p.queues[i])
	}
	return p
}

func (p *Pool) work(queue <-chan call) {
	defer p.wg.Done()
	for c := range queue {
		// reply is buffered: a caller that stopped waiting never stalls us.
		c.reply <- p.handler.Handle(c.ctx, c.req)
	}
}

// Send routes req to its worker and waits for the response.
func (p *Pool) Send(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	// The caller owns its slices again once Send returns, even if the
	// request is still queued.
	req.Key = clone(req.Key)
	req.Value = clone(req.Value)
	c := call{ctx: ctx, req: req, reply: make(chan Response, 1)}
	if err := p.enqueue(ctx, c); err != nil {
		return Response{}, err
	}
	select {
	case resp := <-c.reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (p *Pool) enqueue(ctx context.Context, c call) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queues[p.route(c.req.Key)] <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

func (p *Pool) route(key []byte) int {
	if len(p.queues) == 1 {
		return 0
	}
	return int(maphash.Bytes(p.seed, key) % uint64(len(p.queues)))
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return len(p.queues) }

// Pending returns the number of queued, not yet started, requests.
func (p *Pool) Pending() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

// Close rejects new requests, lets queued ones finish and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		for _, q := range p.queues {
			close(q)
		}
		p.mu.Unlock()
	})
	p.wg.Wait()
	return nil
}
