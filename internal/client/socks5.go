// Package client implements isocks: a SOCKS5 ingress that, per incoming
// application connection, picks an upstream osocks server at random,
// drives the inner handshake against it, and relays encrypted bytes
// once both the application and the upstream have agreed the tunnel is
// up.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/paulGUZU/isotun/internal/netutil"
	"github.com/paulGUZU/isotun/internal/socks5proto"
)

// closeWaitLinger: after writing a SOCKS5 error reply, hold the
// connection open briefly so the application has a chance to read it
// before the socket closes.
const closeWaitLinger = 1 * time.Second

// Listener accepts SOCKS5 ingress connections and dispatches each to
// its own goroutine, which drives the handshake before handing off to
// the relay engine.
type Listener struct {
	addr      string
	transport *Transport

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	done     chan struct{}
	serveErr chan error
	wg       sync.WaitGroup
}

// NewListener builds a Listener bound to addr, relaying through t.
func NewListener(addr string, t *Transport) *Listener {
	return &Listener{
		addr:      addr,
		transport: t,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and begins accepting in the background.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener != nil {
		return fmt.Errorf("client: listener already running")
	}

	lc := netutil.ListenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("client: listen %s: %w", l.addr, err)
	}
	l.listener = ln
	l.done = make(chan struct{})
	l.serveErr = make(chan error, 1)

	go l.acceptLoop(ln, l.done, l.serveErr)
	return nil
}

// Addr returns the bound listening address, or nil if not started.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// ListenAndServe starts the listener and blocks until it stops.
func (l *Listener) ListenAndServe() error {
	if err := l.Start(); err != nil {
		return err
	}
	l.mu.Lock()
	done := l.done
	errCh := l.serveErr
	l.mu.Unlock()

	<-done
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Stop closes the listener and every tracked connection, then waits
// (bounded by ctx) for in-flight handlers to return.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	ln := l.listener
	done := l.done
	l.listener = nil
	active := make([]net.Conn, 0, len(l.conns))
	for conn := range l.conns {
		active = append(active, conn)
	}
	l.mu.Unlock()

	if ln == nil && len(active) == 0 {
		return nil
	}
	if ln != nil {
		if err := ln.Close(); err != nil {
			return err
		}
	}
	for _, conn := range active {
		_ = conn.Close()
	}

	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	waitCh := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) acceptLoop(ln net.Listener, done chan struct{}, errCh chan error) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			stillRunning := l.listener != nil
			l.mu.Unlock()
			if !stillRunning {
				return
			}
			select {
			case errCh <- err:
			default:
			}
			return
		}
		if !l.trackConn(conn) {
			_ = conn.Close()
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(conn)
		}()
	}
}

func (l *Listener) trackConn(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrackConn(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

// handleConnection drives one accepted connection from the SOCKS5
// greeting through either a live relay or an early close.
func (l *Listener) handleConnection(conn net.Conn) {
	defer l.untrackConn(conn)
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(netutil.HandshakeTimeout))

	if err := socks5proto.ReadGreeting(conn); err != nil {
		_ = socks5proto.WriteGreetingReply(conn, false)
		time.Sleep(closeWaitLinger)
		return
	}
	if err := socks5proto.WriteGreetingReply(conn, true); err != nil {
		return
	}

	req, err := socks5proto.ReadRequest(conn)
	if err != nil {
		_ = socks5proto.WriteReply(conn, socks5proto.ReplyForError(err))
		time.Sleep(closeWaitLinger)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), netutil.HandshakeTimeout)
	defer cancel()

	upstream, clientToServer, serverToClient, err := l.transport.Establish(ctx, req.Host, req.PortString())
	if err != nil {
		_ = socks5proto.WriteReply(conn, socks5proto.RepConnectionRefused)
		time.Sleep(closeWaitLinger)
		return
	}
	defer upstream.Close()

	if err := socks5proto.WriteReply(conn, socks5proto.RepSuccess); err != nil {
		return
	}
	_ = conn.SetDeadline(time.Time{})

	_ = l.transport.Relay(upstream, conn, clientToServer, serverToClient)
}
