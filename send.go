package o2lite

import (
	"go.uber.org/zap"

	"github.com/o2ensemble/o2lite-go/internal/o2err"
	"github.com/o2ensemble/o2lite-go/internal/wire"
)

// maxServiceNameLen is spec.md §4.5's 31-byte service name limit.
const maxServiceNameLen = 31

// Send builds and transmits one message. typespec selects the payload
// fields from args positionally: 'i' wants int32, 'h' int64, 'f' float32,
// 'd'/'t' float64, 's' string, 'B' bool, 'b' []byte, matching spec.md
// §4.1's type codes. tcp selects which socket carries it. A typespec/arg
// mismatch or an unconnected required socket returns a *o2err.ConfigError
// or *o2err.NetworkError respectively and sends nothing (spec.md §7
// "Configuration error").
func (e *Endpoint) Send(address, typespec string, tcp bool, args ...any) error {
	transport := wire.UDP
	if tcp {
		transport = wire.TCP
	}
	if len(args) != len(typespec) {
		return &o2err.ConfigError{Operation: "send", Details: "argument count does not match typespec " + typespec}
	}

	e.enc.Start(address, e.TimeGet(), typespec, transport)
	for i, c := range typespec {
		if err := addArg(e.enc, byte(c), args[i]); err != nil {
			return err
		}
	}

	framed := e.enc.Finish()
	if framed == nil {
		return &o2err.ConfigError{Operation: "send", Details: "message exceeded buffer capacity"}
	}
	if e.debug.Has(DebugSends) {
		e.logger.Debug("sending", zap.String("address", address), zap.String("typespec", typespec), zap.Bool("tcp", tcp))
	}
	return e.transmit(framed, transport)
}

// SendCmd sends over TCP unconditionally, matching original_source's
// send_cmd wrapper around send(..., tcp=True).
func (e *Endpoint) SendCmd(address, typespec string, args ...any) error {
	return e.Send(address, typespec, true, args...)
}

func addArg(enc *wire.Encoder, code byte, arg any) error {
	switch code {
	case 'i':
		v, ok := arg.(int32)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected int32 for 'i'"}
		}
		enc.AddInt32(v)
	case 'h':
		v, ok := arg.(int64)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected int64 for 'h'"}
		}
		enc.AddInt64(v)
	case 'f':
		v, ok := arg.(float32)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected float32 for 'f'"}
		}
		enc.AddFloat32(v)
	case 'd':
		v, ok := arg.(float64)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected float64 for 'd'"}
		}
		enc.AddDouble(v)
	case 't':
		v, ok := arg.(float64)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected float64 for 't'"}
		}
		enc.AddTime(v)
	case 's':
		v, ok := arg.(string)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected string for 's'"}
		}
		enc.AddString(v)
	case 'B':
		v, ok := arg.(bool)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected bool for 'B'"}
		}
		enc.AddBool(v)
	case 'b':
		v, ok := arg.([]byte)
		if !ok {
			return &o2err.ConfigError{Operation: "send", Details: "expected []byte for 'b'"}
		}
		enc.AddBlob(v)
	default:
		return &o2err.ConfigError{Operation: "send", Details: "unsupported type code"}
	}
	return nil
}

// transmit writes framed (the full encoder output, length prefix
// included) to the socket transport selects. For TCP the length prefix is
// sent as-is; for UDP it's stripped, since UDP packet boundaries already
// delimit the message (spec.md §6 "Wire").
func (e *Endpoint) transmit(framed []byte, transport wire.Transport) error {
	if transport == wire.TCP {
		if e.net.tcp == nil {
			return &o2err.NetworkError{Operation: "send", Details: "no TCP connection"}
		}
		if _, err := e.net.tcp.Write(framed); err != nil {
			e.closeTCP()
			return &o2err.NetworkError{Operation: "send", Err: err, Details: "TCP write failed"}
		}
		return nil
	}

	if e.net.udpSend == nil || e.net.hostUDP == nil {
		return &o2err.NetworkError{Operation: "send", Details: "no UDP host address"}
	}
	if _, err := e.net.udpSend.WriteTo(framed[4:], e.net.hostUDP); err != nil {
		e.logger.Debug("udp send failed, ignoring", zap.Error(err))
	}
	return nil
}

// sendServiceAnnouncements sends one `!_o2/o2lite/sv` per registered
// service, in order, over TCP (spec.md §4.5 "Service announcement").
// Called once a bridge id is assigned and again whenever SetServices is
// called while already connected.
func (e *Endpoint) sendServiceAnnouncements() {
	if e.bridgeID == NoBridge {
		return
	}
	for _, name := range e.services {
		if len(name) > maxServiceNameLen {
			e.logger.Warn("service name too long, dropped", zap.String("name", name))
			continue
		}
		if err := e.SendCmd("!_o2/o2lite/sv", "siisi", name, int32(1), int32(1), "", int32(0)); err != nil {
			e.logger.Debug("service announcement failed", zap.Error(err))
		}
	}
}

// sendClockPing sends `!_o2/o2lite/cs/get` over UDP (spec.md §4.4 step 1).
func (e *Endpoint) sendClockPing(syncID int32) {
	if err := e.Send("!_o2/o2lite/cs/get", "iis", false, e.bridgeID, syncID, "!_o2/cs/put"); err != nil {
		e.logger.Debug("clock ping failed", zap.Error(err))
	}
}

// sendClockSynced informs the host the clock is synchronized (spec.md
// §4.4 step 4).
func (e *Endpoint) sendClockSynced() {
	if err := e.SendCmd("!_o2/o2lite/cs/cs", ""); err != nil {
		e.logger.Debug("clock-synced notification failed", zap.Error(err))
	}
}

// sendConnect sends `!_o2/o2lite/con` right after the TCP socket opens
// (spec.md §4.5 "TCP connect").
func (e *Endpoint) sendConnect() {
	if err := e.SendCmd("!_o2/o2lite/con", "si", e.internalIP, int32(e.net.recvPort)); err != nil {
		e.logger.Debug("connect message failed", zap.Error(err))
	}
}
