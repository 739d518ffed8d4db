package o2lite

import (
	"net"
	"time"
)

// Clock returns the current monotonic time in seconds as a double. spec.md
// §1 carves the actual OS time source out as an external collaborator;
// Endpoint takes it as an injected function so tests can drive time
// deterministically.
type Clock func() float64

// LocalIPFunc returns this host's internal dotted-quad IP address, the
// other external collaborator named in spec.md §1.
type LocalIPFunc func() (string, error)

var processStart = time.Now()

// defaultClock reports seconds elapsed since the package was loaded, as a
// monotonic double; Go's time.Since already uses the runtime's monotonic
// clock reading under the hood.
func defaultClock() float64 {
	return time.Since(processStart).Seconds()
}

// defaultLocalIP discovers the outbound-facing local address by dialing a
// UDP socket toward a public address and reading back the address the
// kernel would have used, without sending any packet (UDP dial doesn't
// transmit). This is the common Go idiom for "what's my local IP" also
// used for local-address discovery elsewhere in the pack.
func defaultLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
