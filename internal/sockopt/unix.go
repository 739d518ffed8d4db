//go:build !windows

package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/o2ensemble/o2lite-go/internal/o2err"
)

func setNoDelay(raw syscall.RawConn) error {
	var sockErr error
	err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return &o2err.NetworkError{Operation: "set TCP_NODELAY", Err: err}
	}
	if sockErr != nil {
		return &o2err.NetworkError{Operation: "set TCP_NODELAY", Err: sockErr}
	}
	return nil
}

func setReuseAddr(raw syscall.RawConn) error {
	var sockErr error
	err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return &o2err.NetworkError{Operation: "set SO_REUSEADDR", Err: err}
	}
	if sockErr != nil {
		return &o2err.NetworkError{Operation: "set SO_REUSEADDR", Err: sockErr}
	}
	return nil
}
