//go:build windows

package sockopt

import (
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/o2ensemble/o2lite-go/internal/o2err"
)

func setNoDelay(raw syscall.RawConn) error {
	var sockErr error
	err := raw.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_TCP, windows.TCP_NODELAY, 1)
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
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return &o2err.NetworkError{Operation: "set SO_REUSEADDR", Err: err}
	}
	if sockErr != nil {
		return &o2err.NetworkError{Operation: "set SO_REUSEADDR", Err: sockErr}
	}
	return nil
}
