package o2lite

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/o2ensemble/o2lite-go/internal/discovery"
	"github.com/o2ensemble/o2lite-go/internal/handler"
	"github.com/o2ensemble/o2lite-go/internal/o2err"
	"github.com/o2ensemble/o2lite-go/internal/sockopt"
	"github.com/o2ensemble/o2lite-go/internal/wire"
)

// Poll is the endpoint's single non-blocking entry point (spec.md §4.5).
// Call it frequently; it updates local time, drives clock-sync pings,
// manages TCP connection lifecycle against discovery, and dispatches at
// most one inbound message per socket.
func (e *Endpoint) Poll() {
	e.localNow = e.clockFn()

	if e.bridgeID != NoBridge && e.pingScheduled && e.localNow >= e.nextPingAt {
		syncID, nextAt := e.sync.SendPing(e.localNow)
		e.sendClockPing(syncID)
		e.nextPingAt = nextAt
	}

	e.discoveryBackend.Poll(e.localNow)

	if e.net.tcp == nil {
		e.pollDiscoveryAndConnect()
	}

	e.pollUDP()
	if e.net.tcp != nil {
		e.pollTCP()
	}
}

// pollDiscoveryAndConnect implements spec.md §4.5 poll() step 3.
func (e *Endpoint) pollDiscoveryAndConnect() {
	host, ok := e.discoveryBackend.GetHost()
	if !ok {
		if !e.idleStartSet {
			e.idleStart = e.localNow
			e.idleStartSet = true
		} else if e.localNow-e.idleStart >= idleRestartSeconds {
			e.logDiscovery("idle timeout, restarting discovery")
			if err := e.discoveryBackend.Restart(); err != nil {
				e.logger.Debug("discovery restart failed", zap.Error(err))
			}
			e.idleStartSet = false
		}
		return
	}

	e.idleStartSet = false
	if err := e.openTCP(host); err != nil {
		e.logger.Debug("TCP connect failed", zap.Error(err), zap.String("host", host.IP))
		return
	}
	e.logDiscovery("connected to host", zap.String("host", host.IP), zap.Int("tcp_port", host.TCPPort))
}

// openTCP implements spec.md §4.5 "TCP connect": dial, set TCP_NODELAY
// when available, cache the UDP send address, send the connect message.
func (e *Endpoint) openTCP(host discovery.Host) error {
	conn, err := dialTCP(host.IP, host.TCPPort)
	if err != nil {
		return &o2err.NetworkError{Operation: "tcp connect", Err: err, Details: host.IP}
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := sockopt.SetNoDelay(tcpConn); err != nil {
			e.logger.Debug("TCP_NODELAY unavailable, continuing", zap.Error(err))
		}
	}

	e.net.tcp = conn
	e.net.tcpLenFilled = 0
	e.net.tcpBodyFilled = 0
	e.net.tcpDraining = false
	e.net.hostUDP = &net.UDPAddr{IP: net.ParseIP(host.IP), Port: host.UDPPort}

	e.sendConnect()
	return nil
}

// pollUDP drains at most one UDP datagram without blocking (spec.md §4.5
// step 4). UDP has no framing to reassemble, so one ReadFrom call is
// exactly one message.
func (e *Endpoint) pollUDP() {
	if e.net.udpRecv == nil {
		return
	}
	_ = e.net.udpRecv.SetReadDeadline(time.Now())
	n, _, err := e.net.udpRecv.ReadFrom(e.net.recvBuf)
	if err != nil {
		return // timeout or transient error: logged+ignored per spec.md §7
	}
	if n == 0 {
		return
	}
	e.dispatch(e.net.recvBuf[:n])
}

// pollTCP advances TCP frame reassembly by at most two non-blocking reads
// (the rest of the length prefix, then the body) and dispatches a message
// once a full frame has accumulated (spec.md §4.5 "TCP framing"). Frames
// whose declared length plus the 4-byte prefix exceeds wire.MaxMsgLen are
// drained and discarded without being stored or dispatched.
func (e *Endpoint) pollTCP() {
	_ = e.net.tcp.SetReadDeadline(time.Now())

	if e.net.tcpDraining {
		e.drainOversized()
		return
	}

	if e.net.tcpLenFilled < 4 {
		n, err := e.net.tcp.Read(e.net.tcpLenBuf[e.net.tcpLenFilled:4])
		if err != nil {
			e.handleTCPReadError(err)
			return
		}
		if n == 0 {
			e.closeTCPOnLoss()
			return
		}
		e.net.tcpLenFilled += n
		if e.net.tcpLenFilled < 4 {
			return
		}
		declared := int(be32(e.net.tcpLenBuf[:]))
		e.net.tcpDeclaredLen = declared
		if declared+4 > wire.MaxMsgLen {
			e.logger.Warn("oversized TCP message, draining", zap.Int("declared_len", declared))
			e.net.tcpDraining = true
			e.net.tcpDrainLeft = declared
			return
		}
		e.net.tcpBody = make([]byte, declared)
		e.net.tcpBodyFilled = 0
	}

	if e.net.tcpBodyFilled < e.net.tcpDeclaredLen {
		n, err := e.net.tcp.Read(e.net.tcpBody[e.net.tcpBodyFilled:])
		if err != nil {
			e.handleTCPReadError(err)
			return
		}
		if n == 0 {
			e.closeTCPOnLoss()
			return
		}
		e.net.tcpBodyFilled += n
		if e.net.tcpBodyFilled < e.net.tcpDeclaredLen {
			return
		}
	}

	body := e.net.tcpBody
	e.net.tcpLenFilled = 0
	e.net.tcpBody = nil
	e.net.tcpBodyFilled = 0
	e.dispatch(body)
}

func (e *Endpoint) drainOversized() {
	buf := make([]byte, min(4096, e.net.tcpDrainLeft))
	n, err := e.net.tcp.Read(buf)
	if err != nil {
		e.handleTCPReadError(err)
		return
	}
	if n == 0 {
		e.closeTCPOnLoss()
		return
	}
	e.net.tcpDrainLeft -= n
	if e.net.tcpDrainLeft <= 0 {
		e.net.tcpDraining = false
		e.net.tcpLenFilled = 0
	}
}

func (e *Endpoint) handleTCPReadError(err error) {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return // nothing ready, not a failure
	}
	e.closeTCPOnLoss()
}

// closeTCPOnLoss implements spec.md §7 "Connection loss": close TCP, set
// bridge id to -1, resume discovery. Resuming discovery is automatic:
// the next Poll sees net.tcp == nil and goes back through
// pollDiscoveryAndConnect.
func (e *Endpoint) closeTCPOnLoss() {
	e.logger.Debug("TCP connection lost")
	e.closeTCP()
}

// dispatch decodes one message body and routes it through the handler
// table (spec.md §4.2, §4.5 step 4). Parse errors and unmatched addresses
// drop the message; neither aborts the poll loop (spec.md §7 "Message
// parse error").
func (e *Endpoint) dispatch(body []byte) {
	if e.debug.Has(DebugBytes) {
		e.logger.Debug("received bytes", zap.Binary("body", body))
	}
	if !e.dec.StartParse(body) {
		e.lastParseError = true
		e.logReceive("parse error: malformed header")
		return
	}

	addr := handler.Strip(e.dec.Address())
	typespec := string(e.dec.Typespec())
	e.logReceive("received", zap.String("address", addr), zap.String("typespec", typespec))

	entry, ok := e.handlers.Match(addr, typespec)
	if !ok {
		e.lastParseError = false
		e.logger.Debug("no handler matched, dropping", zap.String("address", addr))
		return
	}
	entry.Fn(e.dec, addr, typespec, entry.Info)
	e.lastParseError = e.dec.Err()
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
