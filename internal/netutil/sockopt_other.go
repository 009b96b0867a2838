//go:build !linux

package netutil

import "syscall"

// control is a no-op outside Linux. The TCP_NODELAY/keepalive tuning in
// sockopt_linux.go is an optimization, not a correctness requirement.
func control(_, _ string, c syscall.RawConn) error {
	return nil
}
