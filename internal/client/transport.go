package client

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/paulGUZU/isotun/internal/netutil"
	"github.com/paulGUZU/isotun/internal/proto"
	"github.com/paulGUZU/isotun/internal/relay"
	"github.com/paulGUZU/isotun/pkg/crypto"
)

// ErrHandshakeFailed is returned by Establish when the upstream's reply
// decrypts to anything other than the magic — whether the upstream's
// own dial failed (an honest failure reply) or the reply was garbled in
// transit. Either cause maps to the same SOCKS5 rep=0x05.
var ErrHandshakeFailed = errors.New("client: inner handshake rejected")

// Transport drives the client half of the inner protocol: picking an
// upstream, performing the handshake, and then relaying the established
// connection.
type Transport struct {
	Pool        *ServerPool
	SharedPSK   string
	IdleTimeout time.Duration
}

// NewTransport builds a Transport backed by pool, falling back to
// sharedPSK for any ServerEntry that doesn't carry its own.
func NewTransport(pool *ServerPool, sharedPSK string, idleTimeout time.Duration) *Transport {
	return &Transport{Pool: pool, SharedPSK: sharedPSK, IdleTimeout: idleTimeout}
}

// Establish picks an upstream server uniformly at random, dials it, and
// performs the inner handshake for (host, port). On success it returns
// the live upstream connection and the two direction keystreams derived
// for it; the caller owns closing the connection.
func (t *Transport) Establish(ctx context.Context, host, port string) (upstream net.Conn, clientToServer, serverToClient cipher.Stream, err error) {
	server, err := t.Pool.Pick()
	if err != nil {
		return nil, nil, nil, err
	}

	upstream, err = netutil.DialContext(ctx, "tcp", server.Addr, netutil.HandshakeTimeout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("client: dial %s: %w", server.Addr, err)
	}

	clientToServer, serverToClient, err = t.handshake(upstream, server.EffectivePSK(t.SharedPSK), host, port)
	if err != nil {
		_ = upstream.Close()
		return nil, nil, nil, err
	}
	return upstream, clientToServer, serverToClient, nil
}

// handshake builds and sends the 512-byte request frame, then reads and
// validates the 4-byte reply, returning the two per-direction keystreams
// derived from the connection's IV and PSK.
func (t *Transport) handshake(upstream net.Conn, psk, host, port string) (clientToServer, serverToClient cipher.Stream, err error) {
	var iv [crypto.IVSize]byte
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return nil, nil, fmt.Errorf("client: generate iv: %w", err)
	}

	reqBuf, err := proto.EncodeRequest(host, port)
	if err != nil {
		return nil, nil, err
	}

	key := crypto.DeriveKey(iv, []byte(psk))
	c2s, s2c, err := crypto.DirectionCiphers(key)
	if err != nil {
		return nil, nil, err
	}

	c2s.XORKeyStream(reqBuf[:proto.PlainSize], reqBuf[:proto.PlainSize])
	copy(reqBuf[proto.IVOffset():], iv[:])

	_ = upstream.SetDeadline(time.Now().Add(netutil.HandshakeTimeout))
	if _, err := upstream.Write(reqBuf); err != nil {
		return nil, nil, fmt.Errorf("client: send request: %w", err)
	}

	// Accumulate the full 4-byte reply across however many reads TCP
	// fragments it into, rather than assuming a single read delivers it
	// whole.
	replyBuf := make([]byte, proto.ReplySize)
	if _, err := io.ReadFull(upstream, replyBuf); err != nil {
		return nil, nil, fmt.Errorf("client: read reply: %w", err)
	}
	s2c.XORKeyStream(replyBuf, replyBuf)

	ok, err := proto.DecodeReply(replyBuf)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrHandshakeFailed
	}

	_ = upstream.SetDeadline(time.Time{})
	return c2s, s2c, nil
}

// Relay runs the ESTAB-phase copy engine between the application
// connection and the upstream connection until either side closes,
// using the keystreams Establish derived for each direction.
func (t *Transport) Relay(upstream, appConn net.Conn, clientToServer, serverToClient cipher.Stream) error {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = upstream.Close()
			_ = appConn.Close()
		})
	}
	return relay.Run(
		relay.Direction{Dst: upstream, Src: appConn, Stream: clientToServer},
		relay.Direction{Dst: appConn, Src: upstream, Stream: serverToClient},
		t.IdleTimeout,
		closeBoth,
	)
}
