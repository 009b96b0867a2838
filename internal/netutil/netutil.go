package netutil

import (
	"context"
	"net"
	"time"
)

// HandshakeTimeout bounds every blocking operation up through the inner
// handshake reply, applied as an explicit deadline on the net.Conn
// rather than SO_SNDTIMEO/SO_RCVTIMEO socket options.
const HandshakeTimeout = 10 * time.Second

// Dialer returns a *net.Dialer tuned with control() for outbound connects.
func Dialer(timeout time.Duration) *net.Dialer {
	return &net.Dialer{
		Timeout: timeout,
		Control: control,
	}
}

// ListenConfig returns a net.ListenConfig tuned the same way, for
// listeners accepting either the SOCKS5 ingress or the inner protocol.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: control}
}

// DialContext is a convenience wrapper used where callers only have a
// context and an address, not a persistent *net.Dialer.
func DialContext(ctx context.Context, network, address string, timeout time.Duration) (net.Conn, error) {
	d := Dialer(timeout)
	return d.DialContext(ctx, network, address)
}
