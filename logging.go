package o2lite

import "go.uber.org/zap"

// logGeneral logs at Debug level when DebugGeneral is set, else does
// nothing, per spec.md §6's 'g' debug category.
func (e *Endpoint) logGeneral(msg string, fields ...zap.Field) {
	if e.debug.Has(DebugGeneral) {
		e.logger.Debug(msg, fields...)
	}
}

// logDiscovery logs at Debug level when DebugDiscovery is set, per spec.md
// §6's 'd' debug category.
func (e *Endpoint) logDiscovery(msg string, fields ...zap.Field) {
	if e.debug.Has(DebugDiscovery) {
		e.logger.Debug(msg, fields...)
	}
}

// logReceive logs at Debug level when DebugReceives is set, per spec.md §6's
// 'r' debug category.
func (e *Endpoint) logReceive(msg string, fields ...zap.Field) {
	if e.debug.Has(DebugReceives) {
		e.logger.Debug(msg, fields...)
	}
}

// closeTCP tears down the TCP connection and resets bridge-dependent state
// (spec.md §7 "Connection loss": close TCP, set bridge id to -1, resume
// discovery; resuming discovery happens naturally in Poll once net.tcp is
// nil again).
func (e *Endpoint) closeTCP() {
	if e.net.tcp != nil {
		_ = e.net.tcp.Close()
	}
	e.net.tcp = nil
	e.net.tcpLenFilled = 0
	e.net.tcpBody = nil
	e.net.tcpBodyFilled = 0
	e.net.tcpDraining = false
	e.net.tcpDrainLeft = 0
	e.bridgeID = NoBridge
	e.sync.Reset()
	e.pingScheduled = false
}
