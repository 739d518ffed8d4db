// Package transport owns the raw multicast UDP socket the discovery
// backend browses mDNS on. It is deliberately narrow: one interface,
// one production implementation, since o2lite only ever needs IPv4
// multicast on the standard mDNS group.
package transport

import (
	"context"
	"net"
)

// MulticastAddr and Port are the mDNS rendezvous point (RFC 6762 §5).
const (
	MulticastAddr = "224.0.0.251"
	Port          = 5353
)

// Transport abstracts the multicast socket so the discovery backend can be
// tested against a fake without opening real sockets.
type Transport interface {
	// Send transmits packet to dest (normally the mDNS multicast group).
	Send(ctx context.Context, packet []byte, dest net.Addr) error

	// Receive waits for one incoming packet, respecting ctx's deadline.
	Receive(ctx context.Context) (packet []byte, srcAddr net.Addr, err error)

	// Close releases the underlying socket.
	Close() error
}
