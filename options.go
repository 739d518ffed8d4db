package o2lite

import (
	"go.uber.org/zap"

	"github.com/o2ensemble/o2lite-go/internal/discovery"
)

// DiscoveryBackend is the capability a discovery backend provides; it is
// the exported alias of the internal interface so host applications can
// name the type of WithDiscoveryBackend's argument without importing an
// internal package. Construct one with NewMDNSBackend or
// NewBroadcastBackend.
type DiscoveryBackend = discovery.Backend

// NewMDNSBackend returns the default mDNS/DNS-SD discovery backend
// (spec.md §4.3), browsing `_o2proc._tcp.local.`.
func NewMDNSBackend(logger *zap.Logger) DiscoveryBackend {
	return discovery.NewMDNSBackend(logger)
}

// NewBroadcastBackend returns the built-in UDP broadcast fallback backend
// (spec.md §4.3's "built-in broadcast variant").
func NewBroadcastBackend(logger *zap.Logger) DiscoveryBackend {
	return discovery.NewBroadcastBackend(logger)
}

// Option configures an Endpoint at construction time, following the
// teacher's functional-options pattern (responder.Option).
type Option func(*Endpoint) error

// WithLogger installs a structured logger. Default is zap.NewNop(), so the
// library stays silent unless a host application opts in.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Endpoint) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

// WithDebug sets the debug-flag set from a string over `{b,s,r,d,g,a}`
// (spec.md §6 "initialize").
func WithDebug(flags string) Option {
	return func(e *Endpoint) error {
		e.debug = ParseDebugFlags(flags)
		return nil
	}
}

// WithDiscoveryBackend overrides the default mDNS backend, e.g. with
// NewBroadcastBackend for networks where multicast is blocked.
func WithDiscoveryBackend(backend DiscoveryBackend) Option {
	return func(e *Endpoint) error {
		e.discoveryBackend = backend
		return nil
	}
}

// WithClock overrides the monotonic time source; production code never
// needs this, tests do.
func WithClock(clock Clock) Option {
	return func(e *Endpoint) error {
		if clock != nil {
			e.clockFn = clock
		}
		return nil
	}
}

// WithLocalIPFunc overrides local-IP discovery; production code never needs
// this, tests do.
func WithLocalIPFunc(fn LocalIPFunc) Option {
	return func(e *Endpoint) error {
		if fn != nil {
			e.localIPFn = fn
		}
		return nil
	}
}
