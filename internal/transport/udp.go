package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"

	"github.com/o2ensemble/o2lite-go/internal/o2err"
)

// UDPv4Transport is a multicast UDP socket joined to the mDNS group,
// wrapped with golang.org/x/net/ipv4 for interface-aware control messages.
type UDPv4Transport struct {
	conn     net.PacketConn
	ipv4Conn *ipv4.PacketConn
}

// NewUDPv4Transport opens and joins the mDNS multicast group.
func NewUDPv4Transport() (*UDPv4Transport, error) {
	multicastAddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(MulticastAddr, strconv.Itoa(Port)))
	if err != nil {
		return nil, &o2err.NetworkError{
			Operation: "resolve multicast address",
			Err:       err,
			Details:   fmt.Sprintf("%s:%d", MulticastAddr, Port),
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, multicastAddr)
	if err != nil {
		return nil, &o2err.NetworkError{
			Operation: "join multicast group",
			Err:       err,
			Details:   fmt.Sprintf("%s:%d", MulticastAddr, Port),
		}
	}

	if err := conn.SetReadBuffer(65536); err != nil {
		_ = conn.Close()
		return nil, &o2err.NetworkError{Operation: "configure socket", Err: err, Details: "set read buffer"}
	}

	ipv4Conn := ipv4.NewPacketConn(conn)
	// Best-effort; interface index is not needed for a single-homed client
	// browsing one mDNS group, so a failure here is not fatal.
	_ = ipv4Conn.SetControlMessage(ipv4.FlagInterface, true)

	return &UDPv4Transport{conn: conn, ipv4Conn: ipv4Conn}, nil
}

func (t *UDPv4Transport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return &o2err.NetworkError{Operation: "send", Err: ctx.Err(), Details: "context canceled"}
	default:
	}

	n, err := t.conn.WriteTo(packet, dest)
	if err != nil {
		return &o2err.NetworkError{Operation: "send", Err: err, Details: fmt.Sprintf("%d bytes to %s", len(packet), dest)}
	}
	if n != len(packet) {
		return &o2err.NetworkError{Operation: "send", Err: fmt.Errorf("partial write: %d/%d bytes", n, len(packet)), Details: "incomplete transmission"}
	}
	return nil
}

func (t *UDPv4Transport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, nil, &o2err.NetworkError{Operation: "receive", Err: ctx.Err(), Details: "context canceled"}
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, &o2err.NetworkError{Operation: "set read deadline", Err: err}
		}
	}

	buf := make([]byte, 9000)
	n, _, srcAddr, err := t.ipv4Conn.ReadFrom(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil, &o2err.NetworkError{Operation: "receive", Err: err, Details: "timeout"}
		}
		return nil, nil, &o2err.NetworkError{Operation: "receive", Err: err}
	}
	return buf[:n], srcAddr, nil
}

func (t *UDPv4Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil {
		return &o2err.NetworkError{Operation: "close socket", Err: err}
	}
	return nil
}
