// Package resolve performs the server-side asynchronous name resolution.
// Start launches the lookup on its own goroutine and delivers a Result
// on the returned channel, and DialInOrder tries the resolved
// candidates one after another. The
// caller's own goroutine is the only place that ever reads the result,
// so a connection's derived state is never touched concurrently from
// the resolution context.
package resolve

import (
	"context"
	"net"
)

// Result is the outcome of an asynchronous lookup: either a non-empty,
// ordered list of candidate addresses to dial in turn, or an error.
type Result struct {
	Addrs []net.IPAddr
	Err   error
}

// Start issues host lookup in the background and returns a channel that
// receives exactly one Result. It never blocks the caller.
func Start(ctx context.Context, resolver *net.Resolver, host string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		if resolver == nil {
			resolver = net.DefaultResolver
		}
		addrs, err := resolver.LookupIPAddr(ctx, host)
		out <- Result{Addrs: addrs, Err: err}
	}()
	return out
}

// DialInOrder tries to connect to each candidate address in turn,
// stopping at the first success. dial is injected so callers can use a
// *net.Dialer with their own timeout/Control hooks.
func DialInOrder(ctx context.Context, dial func(ctx context.Context, network, address string) (net.Conn, error), addrs []net.IPAddr, port string) (net.Conn, error) {
	var lastErr error
	for _, addr := range addrs {
		conn, err := dial(ctx, "tcp", net.JoinHostPort(addr.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &net.AddrError{Err: "no candidate addresses", Addr: ""}
	}
	return nil, lastErr
}
