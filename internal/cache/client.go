package cache

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"
)

const remoteBackend = "remote"

// Client implements Store against a cache daemon (see Serve) over a unix
// or tcp socket. Connections are kept in a small idle pool; each in-flight
// request holds its own connection, so callers never queue behind a
// single socket.
type Client struct {
	Dispatcher

	network string
	address string
	opts    ClientOptions

	mu     sync.Mutex
	idle   []*clientConn
	closed bool
}

var _ Store = (*Client)(nil)

type ClientOptions struct {
	// DialTimeout defaults to 500ms.
	DialTimeout time.Duration
	// IOTimeout bounds one request/response exchange when the context has
	// no deadline. Defaults to 5s.
	IOTimeout time.Duration
	// MaxIdle caps pooled idle connections. Defaults to 8.
	MaxIdle int
}

type clientConn struct {
	net.Conn
	enc *json.Encoder
	dec *json.Decoder
}

// ParseAddress splits "unix:///path", "tcp://host:port", a bare socket
// path or a bare host:port into a network and an address.
func ParseAddress(addr string) (network, address string) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://")
	case strings.ContainsRune(addr, '/'):
		return "unix", addr
	default:
		return "tcp", addr
	}
}

func NewClient(addr string, opts ClientOptions) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 500 * time.Millisecond
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = 5 * time.Second
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 8
	}
	network, address := ParseAddress(addr)
	c := &Client{network: network, address: address, opts: opts}
	c.Dispatcher = NewDispatcher(c)
	return c
}

// Ping dials the daemon and hangs up.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return &TransportError{Backend: remoteBackend, Op: "ping", Err: err}
	}
	return conn.Close()
}

// Send performs one request/response exchange.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	conn, err := c.acquire(ctx)
	if err != nil {
		return Response{}, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.IOTimeout)
	}
	_ = conn.SetDeadline(deadline)
	// Cancellation unblocks the exchange; the daemon still finishes the
	// request on its side.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })

	var resp Response
	err = conn.enc.Encode(&req)
	if err == nil {
		err = conn.dec.Decode(&resp)
	}
	if !stop() {
		// The deadline may already be cut short, so the conn is not reused.
		_ = conn.Close()
		if err != nil {
			return Response{}, ctx.Err()
		}
		return resp.fromWire(remoteBackend), nil
	}
	if err != nil {
		_ = conn.Close()
		return Response{}, &TransportError{Backend: remoteBackend, Op: req.Op, Err: err}
	}
	c.release(conn)
	return resp.fromWire(remoteBackend), nil
}

func (c *Client) acquire(ctx context.Context) (*clientConn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(c.idle); n > 0 {
		conn := c.idle[n-1]
		c.idle = c.idle[:n-1]
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, &TransportError{Backend: remoteBackend, Op: "dial", Err: err}
	}
	return &clientConn{Conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *Client) release(conn *clientConn) {
	_ = conn.SetDeadline(time.Time{})
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.idle) >= c.opts.MaxIdle {
		_ = conn.Close()
		return
	}
	c.idle = append(c.idle, conn)
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.opts.DialTimeout}
	return d.DialContext(ctx, c.network, c.address)
}

// Close drops idle connections. In-flight requests finish on their own
// connections, which are then closed instead of pooled.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, conn := range c.idle {
		_ = conn.Close()
	}
	c.idle = nil
	return nil
}
