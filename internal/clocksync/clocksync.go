// Package clocksync implements the o2lite clock synchronizer: periodic
// ping/pong over UDP, best-of-N round-trip-time selection, and bounded
// drift correction toward the host's reference clock (spec.md §4.4).
package clocksync

const (
	// HistoryLen is N, the circular buffer size for RTT samples.
	HistoryLen = 5

	maxSlew = 0.002 // 2ms, the bounded correction step (spec.md §4.4 step 5)
)

// Ping scheduling delays, spec.md §4.4 "Ping scheduling".
const (
	FirstPingDelay = 0.050
	SteadyInterval = 0.100
	SlowInterval   = 0.500
	IdleInterval   = 10.0

	slowAfter = 1.0 // seconds since sync started
	idleAfter = 5.0
)

// Sync tracks clock-synchronization state for one endpoint. It holds no
// socket references; the caller (the endpoint) is responsible for actually
// sending the ping and for calling Reply when a pong arrives. Sync is reset
// whenever the bridge id becomes invalid (spec.md's data model, invariant 6).
type Sync struct {
	syncID           int32
	pingSendTime     float64
	startSyncTime    float64
	syncStarted      bool
	replyCount       int
	rtts             [HistoryLen]float64
	refMinusLocal    [HistoryLen]float64
	synchronized     bool
	globalMinusLocal float64
}

// New returns a freshly reset Sync.
func New() *Sync {
	s := &Sync{}
	s.Reset()
	return s
}

// Reset clears all clock-sync state. Called by New and whenever the
// bridge id drops back to "no bridge" (invariant 6: no ping while
// disconnected, and syncing must restart cleanly on reconnect).
func (s *Sync) Reset() {
	*s = Sync{}
}

// Synchronized reports whether at least HistoryLen replies have been
// received (invariant 2).
func (s *Sync) Synchronized() bool { return s.synchronized }

// GlobalMinusLocal is the current offset estimate: add it to the local
// monotonic clock to get O2 reference time.
func (s *Sync) GlobalMinusLocal() float64 { return s.globalMinusLocal }

// SendPing allocates a new, monotonically increasing sync id and records
// localNow as the ping's send time, for the caller to embed in the outbound
// !_o2/o2lite/cs/get message. It returns that id plus the absolute time the
// following ping should fire, per spec.md §4.4's ramping schedule: 100ms
// steady state, growing to 500ms after 1s of syncing and to 10s after 5s.
func (s *Sync) SendPing(localNow float64) (syncID int32, nextPingAt float64) {
	s.syncID++
	s.pingSendTime = localNow
	if !s.syncStarted {
		s.syncStarted = true
		s.startSyncTime = localNow
	}

	delay := SteadyInterval
	elapsed := localNow - s.startSyncTime
	if elapsed > idleAfter {
		delay += IdleInterval - SteadyInterval
	} else if elapsed > slowAfter {
		delay += SlowInterval - SteadyInterval
	}
	return s.syncID, localNow + delay
}

// Reply processes one !_o2/cs/put reply. id must match the most recently
// issued sync id or the reply is stale and is dropped. refTime is the
// host's reported reference time at the moment it sent the reply; localNow
// is the local receive time. Reply returns true the first time the clock
// becomes synchronized (replyCount reaches HistoryLen), so the caller can
// notify the host over TCP exactly once.
func (s *Sync) Reply(id int32, refTime, localNow float64) (justSynchronized bool) {
	if id != s.syncID {
		return false
	}

	rtt := localNow - s.pingSendTime
	refMinusLocalNow := refTime + rtt/2 - localNow

	slot := s.replyCount % HistoryLen
	s.rtts[slot] = rtt
	s.refMinusLocal[slot] = refMinusLocalNow

	if s.replyCount >= HistoryLen-1 {
		bestIdx := 0
		bestRTT := s.rtts[0]
		for i := 1; i < HistoryLen; i++ {
			if s.rtts[i] < bestRTT {
				bestRTT = s.rtts[i]
				bestIdx = i
			}
		}
		newGML := s.refMinusLocal[bestIdx]

		if !s.synchronized {
			s.synchronized = true
			s.globalMinusLocal = newGML
			s.replyCount++
			return true
		}

		lower := newGML - bestRTT
		upper := newGML + bestRTT
		switch {
		case s.globalMinusLocal < lower:
			s.globalMinusLocal = lower
		case s.globalMinusLocal > upper:
			s.globalMinusLocal = upper
		case s.globalMinusLocal < newGML-maxSlew:
			s.globalMinusLocal += maxSlew
		case s.globalMinusLocal > newGML+maxSlew:
			s.globalMinusLocal -= maxSlew
		default:
			s.globalMinusLocal = newGML
		}
	}

	s.replyCount++
	return false
}
