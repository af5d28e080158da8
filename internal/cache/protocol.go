package cache

import (
	"context"
	"errors"
	"fmt"
)

// The request/response envelope is shared by the in-process worker pool and
// the cache daemon. Over a socket it travels as one JSON object per line:
// one request -> exactly one response, in order, per connection.

// Op names the operation carried by a Request.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

type Request struct {
	Op    Op     `json:"op"`
	Key   []byte `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// Response carries the result of the Request with the same Op. Found is
// the explicit presence flag for OpGet, so an empty stored value and a miss
// stay distinguishable on the wire.
type Response struct {
	Op    Op     `json:"op"`
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found,omitempty"`
	Err   error  `json:"-"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler executes a single request against a backend and reports the
// outcome inside the response.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response { return f(ctx, req) }

// Sender delivers a request and waits for its response. A non-nil error
// means the round trip itself failed; failures inside a delivered response
// are carried in Response.Err.
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Apply executes req against s and packs the result into a Response.
func Apply(ctx context.Context, s Store, req Request) Response {
	resp := Response{Op: req.Op}
	switch req.Op {
	case OpGet:
		resp.Value, resp.Found, resp.Err = s.Get(ctx, req.Key)
	case OpSet:
		resp.Err = s.Set(ctx, req.Key, req.Value)
	case OpDelete:
		resp.Err = s.Delete(ctx, req.Key)
	default:
		resp.Err = fmt.Errorf("%w: %q", ErrUnsupported, req.Op)
	}
	return resp
}

// Dispatcher implements Store on top of a Sender.
type Dispatcher struct {
	sender Sender
}

var _ Store = Dispatcher{}

func NewDispatcher(s Sender) Dispatcher { return Dispatcher{sender: s} }

func (d Dispatcher) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	resp, err := d.roundTrip(ctx, Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, false, err
	}
	if resp.Err != nil || !resp.Found {
		return nil, false, resp.Err
	}
	return resp.Value, true, nil
}

func (d Dispatcher) Set(ctx context.Context, key, value []byte) error {
	resp, err := d.roundTrip(ctx, Request{Op: OpSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	return resp.Err
}

func (d Dispatcher) Delete(ctx context.Context, key []byte) error {
	resp, err := d.roundTrip(ctx, Request{Op: OpDelete, Key: key})
	if err != nil {
		return err
	}
	return resp.Err
}

func (d Dispatcher) roundTrip(ctx context.Context, req Request) (Response, error) {
	resp, err := d.sender.Send(ctx, req)
	if err != nil {
		if errors.Is(err, ErrDispatch) {
			return Response{}, err
		}
		return Response{}, dispatchError(req.Op, err)
	}
	if resp.Op != req.Op {
		return Response{}, dispatchError(req.Op, fmt.Errorf("response op %q does not match request", resp.Op))
	}
	return resp, nil
}

const (
	codeUnsupported = "unsupported"
	codeSerialize   = "serialize"
	codeDeserialize = "deserialize"
	codeDispatch    = "dispatch"
	codeClosed      = "closed"
	codeTransport   = "transport"
	codeInternal    = "internal"
)

var wireSentinels = map[string]error{
	codeUnsupported: ErrUnsupported,
	codeSerialize:   ErrSerialize,
	codeDeserialize: ErrDeserialize,
	codeDispatch:    ErrDispatch,
	codeClosed:      ErrClosed,
}

// toWire flattens Err into Code and Error before encoding.
func (r Response) toWire() Response {
	if r.Err == nil {
		return r
	}
	r.Error = r.Err.Error()
	var te *TransportError
	switch {
	case errors.As(r.Err, &te):
		r.Code = codeTransport
	case errors.Is(r.Err, ErrUnsupported):
		r.Code = codeUnsupported
	case errors.Is(r.Err, ErrSerialize):
		r.Code = codeSerialize
	case errors.Is(r.Err, ErrDeserialize):
		r.Code = codeDeserialize
	case errors.Is(r.Err, ErrClosed):
		r.Code = codeClosed
	case errors.Is(r.Err, ErrDispatch):
		r.Code = codeDispatch
	default:
		r.Code = codeInternal
	}
	return r
}

// fromWire rebuilds Err from Code and Error after decoding.
func (r Response) fromWire(backend string) Response {
	if r.Code == "" && r.Error == "" {
		return r
	}
	re := &remoteError{msg: r.Error, sentinel: wireSentinels[r.Code]}
	if r.Code == codeTransport {
		r.Err = &TransportError{Backend: backend, Op: r.Op, Err: re}
	} else {
		r.Err = re
	}
	return r
}

// remoteError is an error reported by the daemon. It unwraps to the
// matching sentinel so errors.Is works across the socket.
type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.sentinel }
