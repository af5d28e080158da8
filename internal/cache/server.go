package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
)

// Serve accepts connections on l and answers protocol requests against s
// until ctx is done. Each connection is served by its own goroutine and may
// carry any number of sequential requests. Serve closes l and waits for
// open connections before returning.
func Serve(ctx context.Context, l net.Listener, s Store) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, s)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, s Store) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(Apply(ctx, s, req).toWire()); err != nil {
			return
		}
	}
}
