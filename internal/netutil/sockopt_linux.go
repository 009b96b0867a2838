//go:build linux

package netutil

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control sets TCP_NODELAY and keepalive on every dialed/accepted socket.
// Both isocks and osocks relay small, latency-sensitive chunks, so
// Nagle's algorithm only adds delay; keepalive lets a half-dead peer
// (one that never sends a FIN) be noticed by the kernel instead of
// pinning a CCB forever.
func control(_, _ string, c syscall.RawConn) error {
	var sysErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); e != nil {
			sysErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); e != nil {
			sysErr = e
			return
		}
	})
	if err != nil {
		return err
	}
	return sysErr
}
