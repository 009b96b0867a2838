package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/paulGUZU/isotun/internal/netutil"
)

// Listener accepts inner-protocol connections and dispatches each to
// Handler.Serve on its own goroutine.
type Listener struct {
	addr    string
	handler *Handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	done     chan struct{}
	serveErr chan error
	wg       sync.WaitGroup
}

// NewListener builds a Listener bound to addr, serving through h.
func NewListener(addr string, h *Handler) *Listener {
	return &Listener{
		addr:    addr,
		handler: h,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and begins accepting in the background.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener != nil {
		return fmt.Errorf("server: listener already running")
	}

	lc := netutil.ListenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", l.addr, err)
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
			defer l.untrackConn(conn)
			l.handler.Serve(conn)
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
