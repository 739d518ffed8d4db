// Package o2lite implements the o2lite client endpoint: a lightweight
// bridge from one process into an O2 ensemble over TCP+UDP. A single
// Endpoint value owns the sockets, the wire codec, the handler table,
// discovery, and clock synchronization, all driven from one cooperative
// Poll call (spec.md §1, §4.5).
//
// Typical use:
//
//	ep, err := o2lite.New("myensemble", o2lite.WithLogger(logger))
//	ep.MethodNew("/accel/x", "f", true, onAccelX, nil)
//	ep.SetServices("accel")
//	for {
//		ep.Poll()
//	}
package o2lite

import (
	"go.uber.org/zap"

	"github.com/o2ensemble/o2lite-go/internal/clocksync"
	"github.com/o2ensemble/o2lite-go/internal/discovery"
	"github.com/o2ensemble/o2lite-go/internal/handler"
	"github.com/o2ensemble/o2lite-go/internal/wire"
)

// NoBridge is the sentinel bridge id meaning "not connected to a host"
// (spec.md §9 REDESIGN FLAGS: the -1 sentinel is canonical).
const NoBridge int32 = -1

// Unsynchronized is the sentinel TimeGet returns before the clock has
// synchronized (spec.md §4.5 "Time").
const Unsynchronized = -1.0

// idleRestartSeconds is how long Poll waits with no TCP connection and no
// discovered candidate before restarting discovery (spec.md §4.5 step 3,
// invariant 7).
const idleRestartSeconds = discovery.IdleRestart

// Handler is the callback shape registered via MethodNew, re-exported so
// callers never need to import internal/handler directly.
type Handler = handler.Func

// Endpoint is the single owner of an o2lite client's sockets, codec state,
// handler table, discovery backend and clock synchronizer (spec.md §3
// "Endpoint" entity). Construct with New; call Poll repeatedly.
type Endpoint struct {
	ensembleName string
	logger       *zap.Logger
	debug        DebugFlags
	clockFn      Clock
	localIPFn    LocalIPFunc

	internalIP string
	bridgeID   int32
	services   []string

	handlers *handler.Table
	enc      *wire.Encoder
	dec      *wire.Decoder
	sync     *clocksync.Sync

	discoveryBackend discovery.Backend
	idleStart        float64
	idleStartSet     bool

	net netState

	localNow      float64
	nextPingAt    float64
	pingScheduled bool

	lastParseError bool
}

// netState isolates the raw socket handles from Endpoint's protocol state,
// matching the teacher's habit of keeping transport concerns in their own
// struct rather than flattened into the top-level type.
type netState struct {
	tcp      tcpConn
	udpRecv  udpConn
	udpSend  udpConn
	hostUDP  udpAddr
	recvPort int
	recvBuf  []byte

	// TCP frame reassembly state, carried across Poll calls since a
	// non-blocking read may return a partial length prefix or body
	// (spec.md §4.5 "TCP framing": "loop until the full payload is
	// received, handling short reads").
	tcpLenBuf      [4]byte
	tcpLenFilled   int
	tcpDeclaredLen int
	tcpBody        []byte
	tcpBodyFilled  int
	tcpDraining    bool
	tcpDrainLeft   int
}
