// Package server implements osocks: it accepts inner-protocol
// connections, derives the per-connection key from the IV each client
// sends, asynchronously resolves the requested destination, dials it,
// and relays encrypted bytes once the handshake succeeds.
package server

import (
	"context"
	"crypto/cipher"
	"io"
	"net"
	"sync"
	"time"

	"github.com/paulGUZU/isotun/internal/netutil"
	"github.com/paulGUZU/isotun/internal/proto"
	"github.com/paulGUZU/isotun/internal/relay"
	"github.com/paulGUZU/isotun/internal/resolve"
	"github.com/paulGUZU/isotun/pkg/crypto"
)

// closeWaitLinger: after writing the 4-byte error reply, hold the
// connection open briefly so the client has a chance to read it before
// the socket closes.
const closeWaitLinger = 1 * time.Second

// defaultDialTimeout bounds both the asynchronous DNS lookup and the
// candidate dial attempts that follow it.
const defaultDialTimeout = 10 * time.Second

// Handler owns the listener's PSK and plays out the server state
// machine for each accepted connection.
type Handler struct {
	PSK         string
	IdleTimeout time.Duration
	DialTimeout time.Duration
	Resolver    *net.Resolver
}

// NewHandler builds a Handler for one listener's PSK.
func NewHandler(psk string, idleTimeout time.Duration) *Handler {
	return &Handler{
		PSK:         psk,
		IdleTimeout: idleTimeout,
		DialTimeout: defaultDialTimeout,
	}
}

// Serve plays out CLOSED through ESTAB (or CLOSE_WAIT) for one accepted
// connection. It blocks until the connection's relay phase ends.
func (h *Handler) Serve(conn net.Conn) {
	defer conn.Close()

	// Accumulate the full 512-byte request across as many reads as TCP
	// fragments it into, rather than requiring one syscall to deliver
	// the whole frame.
	_ = conn.SetReadDeadline(time.Now().Add(netutil.HandshakeTimeout))
	reqBuf := make([]byte, proto.RequestSize)
	if _, err := io.ReadFull(conn, reqBuf); err != nil {
		return
	}

	var iv [crypto.IVSize]byte
	copy(iv[:], reqBuf[proto.IVOffset():])
	key := crypto.DeriveKey(iv, []byte(h.PSK))
	clientToServer, serverToClient, err := crypto.DirectionCiphers(key)
	if err != nil {
		return
	}

	clientToServer.XORKeyStream(reqBuf[:proto.PlainSize], reqBuf[:proto.PlainSize])

	req, err := proto.DecodeRequest(reqBuf)
	if err != nil {
		h.reject(conn, serverToClient)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.DialTimeout)
	defer cancel()

	// Async DNS, then dial each candidate in order.
	resultCh := resolve.Start(ctx, h.Resolver, req.Host)
	result := <-resultCh
	if result.Err != nil {
		h.reject(conn, serverToClient)
		return
	}

	dialer := netutil.Dialer(h.DialTimeout)
	target, err := resolve.DialInOrder(ctx, dialer.DialContext, result.Addrs, req.Port)
	if err != nil {
		h.reject(conn, serverToClient)
		return
	}
	defer target.Close()

	// Encrypted success reply.
	replyBuf := proto.EncodeReply(true)
	serverToClient.XORKeyStream(replyBuf, replyBuf)
	_ = conn.SetWriteDeadline(time.Now().Add(netutil.HandshakeTimeout))
	if _, err := conn.Write(replyBuf); err != nil {
		return
	}
	_ = conn.SetDeadline(time.Time{})

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = conn.Close()
			_ = target.Close()
		})
	}
	_ = relay.Run(
		relay.Direction{Dst: target, Src: conn, Stream: clientToServer},
		relay.Direction{Dst: conn, Src: target, Stream: serverToClient},
		h.IdleTimeout,
		closeBoth,
	)
}

// reject sends the encrypted all-zero failure reply and lingers briefly
// before the caller's deferred Close runs.
func (h *Handler) reject(conn net.Conn, serverToClient cipher.Stream) {
	replyBuf := proto.EncodeReply(false)
	serverToClient.XORKeyStream(replyBuf, replyBuf)
	_ = conn.SetWriteDeadline(time.Now().Add(netutil.HandshakeTimeout))
	_, _ = conn.Write(replyBuf)
	time.Sleep(closeWaitLinger)
}
