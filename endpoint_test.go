package o2lite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2lite-go/internal/clocksync"
	"github.com/o2ensemble/o2lite-go/internal/discovery"
	"github.com/o2ensemble/o2lite-go/internal/wire"
)

// buildMessage frames one message body the way a host would send it over
// TCP: length prefix included, ready to feed straight into a fakeTCPConn.
func buildMessage(t *testing.T, address string, transport wire.Transport, typespec string, args ...any) []byte {
	t.Helper()
	enc := wire.NewEncoder()
	enc.Start(address, 0, typespec, transport)
	for i, c := range typespec {
		switch c {
		case 'i':
			enc.AddInt32(args[i].(int32))
		case 'h':
			enc.AddInt64(args[i].(int64))
		case 'f':
			enc.AddFloat32(args[i].(float32))
		case 'd':
			enc.AddDouble(args[i].(float64))
		case 't':
			enc.AddTime(args[i].(float64))
		case 's':
			enc.AddString(args[i].(string))
		case 'B':
			enc.AddBool(args[i].(bool))
		case 'b':
			enc.AddBlob(args[i].([]byte))
		}
	}
	framed := enc.Finish()
	require.NotNil(t, framed)
	return framed
}

func TestNewStartsDiscoveryAndInstallsBuiltinHandlers(t *testing.T) {
	ep, fd := newTestEndpoint(t, nil)
	assert.True(t, fd.started)
	assert.Equal(t, 2, ep.handlers.Len())
	assert.Equal(t, NoBridge, ep.BridgeID())
}

func TestPollConnectsToDiscoveredHostAndSendsConnect(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})

	ep.Poll()

	require.NotNil(t, captured)
	assert.NotNil(t, ep.net.tcp)
	assert.Greater(t, captured.writeBuf.Len(), 0, "expected a connect message written to TCP")
}

func TestIdleTimeoutRestartsDiscoveryAfterNoCandidates(t *testing.T) {
	now := 0.0
	ep, fd := newTestEndpoint(t, nil, WithClock(func() float64 { return now }))

	ep.Poll() // establishes idleStart at now=0
	assert.True(t, ep.idleStartSet)

	now = discovery.IdleRestart + 1
	ep.Poll()

	assert.Equal(t, 1, fd.restartCount)
}

func TestHandleIDAssignsBridgeAndSchedulesClockPing(t *testing.T) {
	now := 0.0
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	}, WithClock(func() float64 { return now }))
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll() // opens TCP

	idMsg := buildMessage(t, "!_o2/id", wire.TCP, "i", int32(42))
	captured.feed(idMsg)
	ep.Poll()

	assert.Equal(t, int32(42), ep.BridgeID())
	assert.True(t, ep.pingScheduled)
	assert.Equal(t, now+clocksync.FirstPingDelay, ep.nextPingAt, "first ping must be scheduled 50ms out, not sent inline")

	udpSend := ep.net.udpSend.(*fakeUDPConn)
	assert.Empty(t, udpSend.sent, "no ping should be sent before the scheduled time arrives")

	now += clocksync.FirstPingDelay
	ep.Poll()

	assert.NotEmpty(t, udpSend.sent, "expected the clock ping sent over UDP once the scheduled time arrives")
}

func TestHandleClockPutSynchronizesAfterHistoryLenReplies(t *testing.T) {
	now := 0.0
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	}, WithClock(func() float64 { return now }))
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()
	captured.feed(buildMessage(t, "!_o2/id", wire.TCP, "i", int32(7)))
	ep.Poll()
	captured.writeBuf.Reset()

	assert.False(t, ep.Synchronized())

	// The first ping is scheduled 50ms out (clocksync.FirstPingDelay); advance
	// past it so Poll fires it and allocates sync id 1 before any reply arrives.
	now += clocksync.FirstPingDelay
	ep.Poll()

	// That ping allocated sync id 1; every reply below targets it.
	for i := 0; i < 5; i++ {
		reply := buildMessage(t, "!_o2/cs/put", wire.TCP, "it", int32(1), float64(100)+float64(i))
		captured.feed(reply)
		ep.Poll()
	}

	assert.True(t, ep.Synchronized())
	assert.Greater(t, captured.writeBuf.Len(), 0, "expected a clock-synced notification over TCP")
}

func TestDispatchSetsStickyParseErrorOnMalformedHeader(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()

	garbage := []byte{0, 0, 0, 2, 0xff, 0xff}
	captured.feed(garbage)
	ep.Poll()

	assert.True(t, ep.GetError())
}

func TestDispatchClearsErrorWhenNoHandlerMatches(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()

	msg := buildMessage(t, "/no/such/handler", wire.TCP, "i", int32(1))
	captured.feed(msg)
	ep.Poll()

	assert.False(t, ep.GetError())
}

func TestMethodNewDispatchesRegisteredHandler(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()

	var gotAddr string
	var gotVal float32
	ep.MethodNew("/accel/x", "f", true, func(msg *wire.Decoder, address string, typespec string, info any) {
		gotAddr = address
		gotVal = msg.GetFloat32()
	}, nil)

	msg := buildMessage(t, "/accel/x", wire.TCP, "f", float32(3.5))
	captured.feed(msg)
	ep.Poll()

	assert.Equal(t, "accel/x", gotAddr)
	assert.Equal(t, float32(3.5), gotVal)
	assert.False(t, ep.GetError())
}

func TestTCPFrameReassemblyAcrossShortReads(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		captured.chunkLimit = 3
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()

	var gotVal int32
	ep.MethodNew("/counter", "i", true, func(msg *wire.Decoder, address string, typespec string, info any) {
		gotVal = msg.GetInt32()
	}, nil)

	msg := buildMessage(t, "/counter", wire.TCP, "i", int32(99))
	captured.feed(msg)

	// chunkLimit forces several short reads; one Poll per 3 bytes is
	// sufficient to eventually consume the whole framed message.
	for i := 0; i < len(msg); i++ {
		ep.Poll()
	}

	assert.Equal(t, int32(99), gotVal)
}

func TestOversizedTCPFrameIsDrainedNotDispatched(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()

	declared := wire.MaxMsgLen // declared+4 exceeds MaxMsgLen
	lenPrefix := []byte{
		byte(declared >> 24), byte(declared >> 16), byte(declared >> 8), byte(declared),
	}
	captured.feed(lenPrefix)
	captured.feed(make([]byte, declared))

	for i := 0; i < 10; i++ {
		ep.Poll()
	}

	assert.False(t, ep.net.tcpDraining, "draining should finish and clear once all bytes consumed")
}

func TestSendCmdWithoutTCPConnectionReturnsNetworkError(t *testing.T) {
	ep, _ := newTestEndpoint(t, nil)
	err := ep.SendCmd("_o2/o2lite/con", "si", "1.2.3.4", int32(9000))
	assert.Error(t, err)
}

func TestSendTypeMismatchReturnsConfigError(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()

	err := ep.SendCmd("/foo", "i", "not an int32")
	assert.Error(t, err)
}

func TestSetServicesAnnouncesOverTCPOnceConnected(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()
	captured.feed(buildMessage(t, "!_o2/id", wire.TCP, "i", int32(1)))
	ep.Poll()
	captured.writeBuf.Reset()

	ep.SetServices("accel,gyro")

	assert.Equal(t, []string{"accel", "gyro"}, ep.services)
	assert.Greater(t, captured.writeBuf.Len(), 0)
}

func TestSetServicesSkipsOverlongNameWithoutError(t *testing.T) {
	var captured *fakeTCPConn
	ep, fd := newTestEndpoint(t, func(host string, port int) (tcpConn, error) {
		captured = newFakeTCPConn(nil)
		return captured, nil
	})
	fd.queue = append(fd.queue, discovery.Host{IP: "10.0.0.5", TCPPort: 8000, UDPPort: 8001})
	ep.Poll()
	captured.feed(buildMessage(t, "!_o2/id", wire.TCP, "i", int32(1)))
	ep.Poll()

	overlong := make([]byte, maxServiceNameLen+1)
	for i := range overlong {
		overlong[i] = 'a'
	}
	ep.SetServices(string(overlong))
	assert.Len(t, ep.services, 1)
}

func TestTimeGetReturnsUnsynchronizedSentinelBeforeSync(t *testing.T) {
	ep, _ := newTestEndpoint(t, nil)
	assert.Equal(t, Unsynchronized, ep.TimeGet())
}

func TestCloseReleasesSocketsAndDiscovery(t *testing.T) {
	ep, fd := newTestEndpoint(t, nil)
	err := ep.Close()
	require.NoError(t, err)
	assert.True(t, fd.closed)
	assert.True(t, ep.net.udpRecv.(*fakeUDPConn).closed)
	assert.True(t, ep.net.udpSend.(*fakeUDPConn).closed)
}

func TestUDPInboundMessageIsDispatched(t *testing.T) {
	ep, _ := newTestEndpoint(t, nil)

	var gotVal int32
	ep.MethodNew("/udp/test", "i", true, func(msg *wire.Decoder, address string, typespec string, info any) {
		gotVal = msg.GetInt32()
	}, nil)

	enc := wire.NewEncoder()
	enc.Start("/udp/test", 0, "i", wire.UDP)
	enc.AddInt32(int32(55))
	framed := enc.Finish()
	require.NotNil(t, framed)

	udpRecv := ep.net.udpRecv.(*fakeUDPConn)
	udpRecv.inbound = append(udpRecv.inbound, framed[4:]) // UDP strips the length prefix on the wire

	ep.Poll()

	assert.Equal(t, int32(55), gotVal)
}
