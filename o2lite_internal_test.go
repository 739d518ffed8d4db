package o2lite

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/o2ensemble/o2lite-go/internal/discovery"
)

// fakeDiscovery is a discovery.Backend a test drives by hand: appending to
// queue pushes a candidate, restartCount/closed record calls so a test can
// assert on idle-restart behavior without a real mDNS socket.
type fakeDiscovery struct {
	queue        []discovery.Host
	started      bool
	restartCount int
	closed       bool
}

func (f *fakeDiscovery) Start() error          { f.started = true; return nil }
func (f *fakeDiscovery) Poll(localNow float64) {}
func (f *fakeDiscovery) GetHost() (discovery.Host, bool) {
	if len(f.queue) == 0 {
		return discovery.Host{}, false
	}
	h := f.queue[0]
	f.queue = f.queue[1:]
	return h, true
}
func (f *fakeDiscovery) Restart() error { f.restartCount++; return nil }
func (f *fakeDiscovery) Close() error   { f.closed = true; return nil }

// fakeTCPConn is an in-memory tcpConn: reads drain from a growable buffer
// a test can feed() into between Poll calls, writes accumulate in a
// separate buffer, so a test can hand-feed exact byte sequences to
// exercise pollTCP's frame-reassembly state machine across several short
// reads and inspect what the endpoint sent.
type fakeTCPConn struct {
	readBuf  bytes.Buffer
	readErr  error
	writeBuf bytes.Buffer
	writeErr error
	closed   bool

	// chunkLimit, when nonzero, caps how many bytes a single Read returns,
	// simulating a short read even when more data is buffered.
	chunkLimit int
}

func newFakeTCPConn(data []byte) *fakeTCPConn {
	c := &fakeTCPConn{}
	c.readBuf.Write(data)
	return c
}

// feed appends more bytes for future Read calls to return, simulating data
// arriving on the wire between two Poll calls.
func (c *fakeTCPConn) feed(b []byte) { c.readBuf.Write(b) }

func (c *fakeTCPConn) Read(b []byte) (int, error) {
	if c.readErr != nil {
		return 0, c.readErr
	}
	if c.readBuf.Len() == 0 {
		return 0, timeoutError{}
	}
	if c.chunkLimit > 0 && len(b) > c.chunkLimit {
		b = b[:c.chunkLimit]
	}
	return c.readBuf.Read(b)
}

func (c *fakeTCPConn) Write(b []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.writeBuf.Write(b)
}

func (c *fakeTCPConn) Close() error                     { c.closed = true; return nil }
func (c *fakeTCPConn) SetReadDeadline(t time.Time) error { return nil }

// timeoutError mimics the net.Error the real sockets return when a
// zero-second read deadline finds nothing ready, which pollTCP/pollUDP
// treat as "no data this Poll call" rather than a connection failure.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeUDPConn is an in-memory udpConn: ReadFrom pops from a preloaded queue
// of packets, WriteTo records what was sent.
type fakeUDPConn struct {
	inbound [][]byte
	sent    [][]byte
	sentTo  []net.Addr
	closed  bool
}

func (c *fakeUDPConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if len(c.inbound) == 0 {
		return 0, nil, timeoutError{}
	}
	pkt := c.inbound[0]
	c.inbound = c.inbound[1:]
	n := copy(b, pkt)
	return n, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}, nil
}

func (c *fakeUDPConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	cp := append([]byte(nil), b...)
	c.sent = append(c.sent, cp)
	c.sentTo = append(c.sentTo, addr)
	return len(b), nil
}

func (c *fakeUDPConn) Close() error                     { c.closed = true; return nil }
func (c *fakeUDPConn) SetReadDeadline(t time.Time) error { return nil }

// newTestEndpoint builds an Endpoint wired entirely to fakes: no real
// sockets, no real discovery, and a clock fixed at 0 unless the test passes
// its own WithClock option over a variable it advances. Package var overrides are
// restored via t.Cleanup, not a defer, since dialTCP is invoked later by
// Poll, not just during New's startup.
func newTestEndpoint(t *testing.T, tcpConnFactory func(host string, port int) (tcpConn, error), opts ...Option) (*Endpoint, *fakeDiscovery) {
	t.Helper()
	fd := &fakeDiscovery{}

	origDialTCP, origListenUDP, origListenUDPSend := dialTCP, listenUDP, listenUDPSend
	if tcpConnFactory == nil {
		tcpConnFactory = func(host string, port int) (tcpConn, error) {
			return newFakeTCPConn(nil), nil
		}
	}
	dialTCP = tcpConnFactory
	listenUDP = func() (udpConn, int, error) {
		return &fakeUDPConn{}, 41100, nil
	}
	listenUDPSend = func() (udpConn, error) {
		return &fakeUDPConn{}, nil
	}
	t.Cleanup(func() {
		dialTCP, listenUDP, listenUDPSend = origDialTCP, origListenUDP, origListenUDPSend
	})

	allOpts := append([]Option{
		WithDiscoveryBackend(fd),
		WithClock(func() float64 { return 0 }),
		WithLocalIPFunc(func() (string, error) { return "192.168.1.50", nil }),
	}, opts...)

	ep, err := New("testensemble", allOpts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ep, fd
}
