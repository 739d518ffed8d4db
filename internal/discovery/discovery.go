// Package discovery feeds the endpoint one O2 host candidate at a time
// (spec.md §4.3). It defines a small Backend interface with two concrete
// implementations: an mDNS/DNS-SD browser and a built-in UDP broadcast
// fallback, mirroring the same Transport abstraction
// (internal/transport.Transport) and its static, interface-based dispatch
// over alternative network backends.
package discovery

import (
	"encoding/hex"
	"fmt"
)

// ServiceType and Domain are the mDNS coordinates o2lite hosts advertise
// themselves under (spec.md §6 "Discovery").
const (
	ServiceType = "_o2proc._tcp"
	Domain      = "local."

	// IdleRestart is how long the endpoint waits with no TCP connection and
	// no candidate before it calls Restart (spec.md §4.3, §8 invariant 7).
	IdleRestart = 20.0
)

// Host is one discovered O2 host candidate, produced by a Backend and
// consumed at most once by the endpoint (spec.md's data model).
type Host struct {
	IP      string
	TCPPort int
	UDPPort int
}

// Backend is the capability an endpoint drives discovery through: start
// browsing, poll for network activity, pop the oldest candidate, and
// restart after an idle period. Both MDNSBackend and BroadcastBackend
// implement it; the endpoint is written against the interface only.
type Backend interface {
	// Start begins browsing or broadcasting. Called once, after the
	// endpoint has its local IP and UDP receive port.
	Start() error

	// Poll drives any network I/O this backend needs to do on the calling
	// goroutine. A backend that polls a background goroutine internally
	// (see WithBackgroundPoll) may make this a no-op.
	Poll(localNow float64)

	// GetHost pops the oldest queued candidate, if any.
	GetHost() (Host, bool)

	// Restart tears down and re-establishes browsing/broadcasting. Called
	// by the endpoint after IdleRestart seconds with no candidate and no
	// TCP connection.
	Restart() error

	// Close releases any sockets the backend holds.
	Close() error
}

// nameRecordLen is the required length of a valid TXT "name" value
// (spec.md §4.3): exactly 28 characters, "@PPPPPPPP:IIIIIIII:TTTT:UUUU",
// a leading '@' followed by hex fields separated by ':'.
const nameRecordLen = 28

// ParseNameRecord validates and extracts the UDP port from an mDNS TXT
// "name" record (spec.md §4.3). Only the UDP port is extracted; the TCP
// port and reachable IP come from the mDNS A/SRV record the browse
// already resolved, not from this field.
func ParseNameRecord(name string) (udpPort int, ok bool) {
	if len(name) != nameRecordLen || name[0] != '@' {
		return 0, false
	}
	if name[9] != ':' || name[18] != ':' {
		return 0, false
	}
	udpHex := name[len(name)-4:]
	port, err := hex.DecodeString(padHex(udpHex))
	if err != nil || len(port) != 2 {
		return 0, false
	}
	return int(port[0])<<8 | int(port[1]), true
}

// padHex left-pads an odd-length hex string with '0' so hex.DecodeString
// accepts it; the 4-character UDP port field is already even-length, but
// this keeps the helper honest about the invariant instead of assuming it.
func padHex(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

// EncodeNameRecord builds the TXT "name" value a host would advertise,
// given its public IP, internal IP, TCP port and UDP port:
// "@PPPPPPPP:IIIIIIII:TTTT:UUUU", 28 characters total. o2lite itself never
// advertises; this exists for discovery tests that simulate a peer, and
// for symmetry with ParseNameRecord.
func EncodeNameRecord(publicIP, internalIP [4]byte, tcpPort, udpPort uint16) string {
	return fmt.Sprintf("@%02x%02x%02x%02x:%02x%02x%02x%02x:%04x:%04x",
		publicIP[0], publicIP[1], publicIP[2], publicIP[3],
		internalIP[0], internalIP[1], internalIP[2], internalIP[3],
		tcpPort, udpPort)
}
