package o2lite

import (
	"net"
	"time"
)

// tcpConn and udpConn are the narrow slices of *net.TCPConn / *net.UDPConn
// that Endpoint actually uses. Both standard-library types satisfy these
// interfaces without any wrapping; tests substitute fakes so the poll loop
// can be exercised without opening real sockets.
type tcpConn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
}

type udpConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, addr net.Addr) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
}

type udpAddr = net.Addr

// dialTCP opens a TCP connection to host:port. Extracted as a variable so
// tests can substitute a fake dialer without touching the real network.
var dialTCP = func(host string, port int) (tcpConn, error) {
	conn, err := net.DialTCP("tcp", nil, &net.TCPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// listenUDP opens a UDP socket bound to an OS-chosen free port, used as the
// endpoint's UDP receive socket (spec.md §4.5 startup step 2).
var listenUDP = func() (udpConn, int, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, 0, err
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

// listenUDPSend opens the endpoint's UDP send socket (spec.md §4.5 startup
// step 1), a separate ephemeral-port socket from the receive socket so the
// two can be torn down and replaced independently of each other.
var listenUDPSend = func() (udpConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
