package discovery

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/o2ensemble/o2lite-go/internal/o2err"
	"github.com/o2ensemble/o2lite-go/internal/sockopt"
)

// BroadcastPort is the well-known UDP port o2lite listens on for the
// broadcast fallback when mDNS isn't usable on the local network.
const BroadcastPort = 56423

// broadcastMagic tags a discovery broadcast packet so unrelated UDP
// broadcast traffic on the same port is ignored.
var broadcastMagic = [4]byte{'O', '2', 'L', 'B'}

// BroadcastBackend is the built-in fallback discovery transport (spec.md
// §1 "or a built-in broadcast fallback"). A host that wants to be found
// this way periodically broadcasts a fixed-format advert on
// BroadcastPort; this backend listens for it and validates the embedded
// TCP/UDP ports before enqueuing a candidate. It implements the same
// Backend interface as MDNSBackend, so the endpoint switches between them
// with no other code change (REDESIGN FLAGS: discovery backends as a
// small interface with static dispatch).
type BroadcastBackend struct {
	logger *zap.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	queue  []Host
	closed bool
}

func NewBroadcastBackend(logger *zap.Logger) *BroadcastBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BroadcastBackend{logger: logger}
}

func (b *BroadcastBackend) Start() error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: BroadcastPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return &o2err.NetworkError{Operation: "listen broadcast", Err: err, Details: addr.String()}
	}
	if err := sockopt.SetReuseAddr(conn); err != nil {
		b.logger.Debug("set SO_REUSEADDR failed", zap.Error(err))
	}
	_ = conn.SetReadBuffer(4096)

	b.mu.Lock()
	b.conn = conn
	b.closed = false
	b.mu.Unlock()
	return nil
}

func (b *BroadcastBackend) Restart() error {
	_ = b.Close()
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
	return b.Start()
}

func (b *BroadcastBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}

// Poll drains any pending broadcast adverts without blocking. Packet
// layout: 4-byte magic, 4-byte TCP port, 4-byte UDP port, all big-endian
// (the sender's internal IP is taken from the UDP source address, not the
// payload, since that's what's actually reachable).
func (b *BroadcastBackend) Poll(localNow float64) {
	b.mu.Lock()
	conn := b.conn
	closed := b.closed
	b.mu.Unlock()
	if conn == nil || closed {
		return
	}

	buf := make([]byte, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		b.handlePacket(buf[:n], src)
	}
}

func (b *BroadcastBackend) handlePacket(packet []byte, src *net.UDPAddr) {
	if len(packet) != 12 {
		return
	}
	if packet[0] != broadcastMagic[0] || packet[1] != broadcastMagic[1] ||
		packet[2] != broadcastMagic[2] || packet[3] != broadcastMagic[3] {
		return
	}
	tcpPort := binary.BigEndian.Uint32(packet[4:8])
	udpPort := binary.BigEndian.Uint32(packet[8:12])
	if tcpPort == 0 || tcpPort > 65535 || udpPort == 0 || udpPort > 65535 {
		return
	}

	b.mu.Lock()
	b.queue = append(b.queue, Host{IP: src.IP.String(), TCPPort: int(tcpPort), UDPPort: int(udpPort)})
	b.mu.Unlock()
}

func (b *BroadcastBackend) GetHost() (Host, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Host{}, false
	}
	h := b.queue[0]
	b.queue = b.queue[1:]
	return h, true
}

// EncodeBroadcastAdvert builds the advert payload a host would send; kept
// alongside the listener for symmetry and used by tests to simulate a peer.
func EncodeBroadcastAdvert(tcpPort, udpPort uint32) []byte {
	buf := make([]byte, 12)
	copy(buf[0:4], broadcastMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], tcpPort)
	binary.BigEndian.PutUint32(buf[8:12], udpPort)
	return buf
}
