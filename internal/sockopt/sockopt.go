// Package sockopt sets the handful of socket options the endpoint needs on
// its TCP connection (spec.md §4.5 "TCP connect": TCP_NODELAY when
// available) and on its UDP discovery socket (SO_REUSEADDR, so repeated
// restarts don't fail to rebind). The platform-specific syscalls live in
// unix.go and windows.go behind the same two functions.
package sockopt

import (
	"net"

	"github.com/o2ensemble/o2lite-go/internal/o2err"
)

// SetNoDelay disables Nagle's algorithm on conn. Failing to set it is not
// fatal to the connection (spec.md says "when available"), so callers
// should log and continue rather than abort the connect sequence.
func SetNoDelay(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return &o2err.NetworkError{Operation: "set TCP_NODELAY", Err: err, Details: "SyscallConn"}
	}
	return setNoDelay(raw)
}

// SetReuseAddr allows a fresh discovery socket to rebind a port that a
// just-closed one still holds in TIME_WAIT, which matters on Restart.
func SetReuseAddr(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return &o2err.NetworkError{Operation: "set SO_REUSEADDR", Err: err, Details: "SyscallConn"}
	}
	return setReuseAddr(raw)
}
