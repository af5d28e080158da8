package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by a backend that cannot implement one of
	// the three operations.
	ErrUnsupported = errors.New("cache: operation not supported")
	// ErrSerialize is returned by Storage when a value cannot be encoded.
	// Nothing is written to the store in that case.
	ErrSerialize = errors.New("cache: serialization failed")
	// ErrDeserialize is returned by Storage when a cached value cannot be
	// decoded into the requested shape. It is distinct from a miss.
	ErrDeserialize = errors.New("cache: deserialization failed")
	// ErrDispatch means the request never produced a matching response,
	// for example because the worker pool or daemon was unreachable.
	ErrDispatch = errors.New("cache: dispatch failed")
	// ErrClosed is returned once a store has been closed.
	ErrClosed = errors.New("cache: store closed")
)

// TransportError wraps a connection or protocol failure reported by a
// network backend. It is never retried by this package.
type TransportError struct {
	Backend string
	Op      Op
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cache: %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// dispatchError marks err as a failed round trip while keeping the cause
// reachable through errors.Is.
func dispatchError(op Op, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDispatch, op, err)
}
