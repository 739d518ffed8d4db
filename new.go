package o2lite

import (
	"go.uber.org/zap"

	"github.com/o2ensemble/o2lite-go/internal/clocksync"
	"github.com/o2ensemble/o2lite-go/internal/handler"
	"github.com/o2ensemble/o2lite-go/internal/o2err"
	"github.com/o2ensemble/o2lite-go/internal/wire"
)

// New constructs an Endpoint for ensembleName and runs its startup
// sequence (spec.md §4.5 "Startup sequence"): opens the UDP send and
// receive sockets, queries the internal IP, and starts discovery. The
// returned Endpoint is ready for MethodNew/SetServices registration and
// repeated Poll calls.
func New(ensembleName string, opts ...Option) (*Endpoint, error) {
	e := &Endpoint{
		ensembleName: ensembleName,
		logger:       zap.NewNop(),
		clockFn:      defaultClock,
		localIPFn:    defaultLocalIP,
		bridgeID:     NoBridge,
		handlers:     handler.New(),
		enc:          wire.NewEncoder(),
		dec:          wire.NewDecoder(),
		sync:         clocksync.New(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.installBuiltinHandlers()

	if e.discoveryBackend == nil {
		e.discoveryBackend = NewMDNSBackend(e.logger)
	}

	if err := e.startup(); err != nil {
		return nil, err
	}
	return e, nil
}

// startup implements spec.md §4.5's four-step sequence.
func (e *Endpoint) startup() error {
	udpSend, err := listenUDPSend()
	if err != nil {
		return &o2err.NetworkError{Operation: "open udp send socket", Err: err}
	}
	e.net.udpSend = udpSend

	udpRecv, port, err := listenUDP()
	if err != nil {
		return &o2err.NetworkError{Operation: "open udp receive socket", Err: err}
	}
	e.net.udpRecv = udpRecv
	e.net.recvPort = port
	e.net.recvBuf = make([]byte, wire.MaxMsgLen)

	ip, err := e.localIPFn()
	if err != nil {
		return &o2err.NetworkError{Operation: "query internal ip", Err: err}
	}
	e.internalIP = ip

	e.localNow = e.clockFn()
	return e.discoveryBackend.Start()
}

// installBuiltinHandlers registers the two handlers every o2lite endpoint
// needs before it can do anything else (spec.md §4.5 "Built-in handlers").
func (e *Endpoint) installBuiltinHandlers() {
	e.handlers.Add("_o2/id", "i", true, e.handleID, nil)
	e.handlers.Add("_o2/cs/put", "it", true, e.handleClockPut, nil)
}

// handleID processes `!_o2/id (i)`: sets the bridge id, re-announces
// services, and schedules the first clock ping.
func (e *Endpoint) handleID(msg *wire.Decoder, address string, typespec string, info any) {
	id := msg.GetInt32()
	if msg.Err() {
		return
	}
	e.bridgeID = id
	e.sync.Reset()
	e.logGeneral("bridge id assigned", zap.Int32("bridge_id", id))
	e.sendServiceAnnouncements()

	e.nextPingAt = e.localNow + clocksync.FirstPingDelay
	e.pingScheduled = true
}

// handleClockPut processes `!_o2/cs/put (it)`: feeds the reply to the
// clock synchronizer and, the first time it synchronizes, informs the host.
func (e *Endpoint) handleClockPut(msg *wire.Decoder, address string, typespec string, info any) {
	id := msg.GetInt32()
	refTime := msg.GetTime()
	if msg.Err() {
		return
	}
	justSynced := e.sync.Reply(id, refTime, e.localNow)
	if justSynced {
		e.logGeneral("clock synchronized", zap.Float64("offset", e.sync.GlobalMinusLocal()))
		e.sendClockSynced()
	}
}
