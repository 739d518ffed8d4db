package o2lite

import "time"

// MethodNew registers a handler for address, matching spec.md §6's
// `method_new(path, typespec_or_null, full_bool, handler, opaque_info)`.
// An empty typespec matches any inbound typespec. Registration order sets
// dispatch priority: the first entry whose address and typespec match wins
// (spec.md §4.2).
func (e *Endpoint) MethodNew(address string, typespec string, full bool, fn Handler, info any) {
	e.handlers.Add(address, typespec, full, fn, info)
}

// SetServices replaces the service list from a comma-separated string
// (spec.md §6 `set_services`). If a bridge is already established, it
// immediately re-announces every service over TCP.
func (e *Endpoint) SetServices(commaSeparatedList string) {
	e.services = splitServices(commaSeparatedList)
	e.sendServiceAnnouncements()
}

func splitServices(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

// TimeGet returns local_now + global_minus_local once the clock has
// synchronized, else the Unsynchronized sentinel (spec.md §4.5 "Time").
func (e *Endpoint) TimeGet() float64 {
	if !e.sync.Synchronized() {
		return Unsynchronized
	}
	return e.localNow + e.sync.GlobalMinusLocal()
}

// BridgeID returns the id the host assigned this endpoint, or NoBridge if
// not currently connected.
func (e *Endpoint) BridgeID() int32 { return e.bridgeID }

// GetError reports whether the most recently dispatched message failed to
// parse: a type mismatch, truncation, or malformed header (spec.md §7
// "Message parse error"). It is sticky: it reflects the last message
// processed, not just the most recent Poll call if no message arrived.
func (e *Endpoint) GetError() bool { return e.lastParseError }

// Synchronized reports whether the clock has completed its first
// best-of-N selection.
func (e *Endpoint) Synchronized() bool { return e.sync.Synchronized() }

// Sleep calls Poll at least once and otherwise yields the CPU in small
// increments for approximately d (spec.md §5 "sleep(d) is a convenience").
func (e *Endpoint) Sleep(d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		e.Poll()
		if !time.Now().Before(deadline) {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Close releases the endpoint's sockets and discovery backend.
func (e *Endpoint) Close() error {
	e.closeTCP()
	if e.net.udpRecv != nil {
		_ = e.net.udpRecv.Close()
	}
	if e.net.udpSend != nil {
		_ = e.net.udpSend.Close()
	}
	if e.discoveryBackend != nil {
		return e.discoveryBackend.Close()
	}
	return nil
}
