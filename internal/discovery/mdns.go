package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/o2ensemble/o2lite-go/internal/o2err"
	"github.com/o2ensemble/o2lite-go/internal/transport"
)

// queryInterval is how often MDNSBackend re-sends its PTR query while
// browsing; mDNS is advertise-on-demand rather than advertise-once, so a
// cooperative browser has to keep asking (spec.md treats the browse stream
// itself as an external collaborator; this is the concrete shape behind it).
const queryInterval = 4 * time.Second

// browseTimeout is this backend's own liveness check, distinct from the
// endpoint's 20s idle-to-candidate restart (spec.md §4.3): if the socket has
// seen neither a sent query succeed nor a packet arrive for this long, the
// underlying multicast socket is torn down and reopened without touching
// the candidate queue. Grounded on original_source/o2litepy's
// browse_timeout/restart_browsing distinction.
const browseTimeout = 2 * time.Second

// MDNSBackend browses `_o2proc._tcp.local.` over multicast DNS and turns
// validated TXT "name" records into discovery.Host candidates (spec.md
// §4.3, §6 "Discovery"). It is the production Backend; BroadcastBackend is
// the fallback when multicast is unavailable.
type MDNSBackend struct {
	logger *zap.Logger
	bgPoll bool

	mu           sync.Mutex
	tr           transport.Transport
	queue        []Host
	seen         map[string]time.Time
	lastSent     time.Time
	lastActivity time.Time
	closed       bool
	stopBG       chan struct{}
}

// Option configures an MDNSBackend at construction time.
type Option func(*MDNSBackend)

// WithBackgroundPoll moves mDNS browsing onto a dedicated goroutine instead
// of the cooperative Poll() call, per spec.md §5's explicit allowance for a
// background worker as long as the candidate queue stays mutex-protected and
// GetHost keeps returning by value. With this option, Poll becomes a no-op.
func WithBackgroundPoll() Option {
	return func(b *MDNSBackend) { b.bgPoll = true }
}

// NewMDNSBackend constructs a backend that has not yet opened a socket;
// call Start to begin browsing.
func NewMDNSBackend(logger *zap.Logger, opts ...Option) *MDNSBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &MDNSBackend{logger: logger, seen: make(map[string]time.Time)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MDNSBackend) Start() error {
	tr, err := transport.NewUDPv4Transport()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.tr = tr
	b.closed = false
	b.mu.Unlock()
	if err := b.sendQuery(); err != nil {
		return err
	}

	if b.bgPoll {
		stop := make(chan struct{})
		b.mu.Lock()
		b.stopBG = stop
		b.mu.Unlock()
		go b.pollLoop(stop)
	}
	return nil
}

// pollLoop runs the same drain-and-requery work as Poll, but on its own
// goroutine, for callers constructed with WithBackgroundPoll. All shared
// state it touches (queue, seen, tr) is guarded by b.mu, same as the
// cooperative path.
func (b *MDNSBackend) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.cooperativePoll()
		}
	}
}

func (b *MDNSBackend) Restart() error {
	_ = b.Close()
	b.mu.Lock()
	b.queue = nil
	b.seen = make(map[string]time.Time)
	b.mu.Unlock()
	return b.Start()
}

func (b *MDNSBackend) Close() error {
	b.mu.Lock()
	stop := b.stopBG
	b.stopBG = nil
	tr := b.tr
	closed := b.closed
	b.closed = true
	b.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if tr == nil || closed {
		return nil
	}
	return tr.Close()
}

// Poll drains any pending mDNS responses without blocking and re-issues the
// browse query on queryInterval. The endpoint calls this once per poll
// cycle (spec.md §4.5 poll() step 3). With WithBackgroundPoll, this is a
// no-op; the goroutine started by Start does the same work instead.
func (b *MDNSBackend) Poll(localNow float64) {
	if b.bgPoll {
		return
	}
	b.cooperativePoll()
}

func (b *MDNSBackend) cooperativePoll() {
	b.mu.Lock()
	tr := b.tr
	closed := b.closed
	due := time.Since(b.lastSent) >= queryInterval
	stale := !b.lastActivity.IsZero() && time.Since(b.lastActivity) >= browseTimeout
	b.mu.Unlock()
	if tr == nil || closed {
		return
	}

	if stale {
		if err := b.reopenSocket(); err != nil {
			b.logger.Debug("mdns socket reopen failed", zap.Error(err))
		}
		return
	}

	if due {
		if err := b.sendQuery(); err != nil {
			b.logger.Debug("mdns query send failed", zap.Error(err))
		}
	}

	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		packet, _, err := tr.Receive(ctx)
		cancel()
		if err != nil {
			return
		}
		b.touchActivity()
		b.handlePacket(packet)
	}
}

// reopenSocket tears down and re-creates just the underlying multicast
// socket, leaving the candidate queue and dedup state untouched, unlike
// Restart, which is the endpoint-driven, candidate-queue-clearing reset.
func (b *MDNSBackend) reopenSocket() error {
	b.mu.Lock()
	old := b.tr
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	tr, err := transport.NewUDPv4Transport()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.tr = tr
	b.lastActivity = time.Now()
	b.mu.Unlock()
	return b.sendQuery()
}

func (b *MDNSBackend) touchActivity() {
	b.mu.Lock()
	b.lastActivity = time.Now()
	b.mu.Unlock()
}

func (b *MDNSBackend) sendQuery() error {
	b.mu.Lock()
	tr := b.tr
	b.mu.Unlock()
	if tr == nil {
		return &o2err.NetworkError{Operation: "mdns query", Details: "backend not started"}
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(ServiceType+"."+Domain), dns.TypePTR)
	msg.RecursionDesired = false
	packed, err := msg.Pack()
	if err != nil {
		return &o2err.NetworkError{Operation: "pack mdns query", Err: err}
	}

	dest := &net.UDPAddr{IP: net.ParseIP(transport.MulticastAddr), Port: transport.Port}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := tr.Send(ctx, packed, dest); err != nil {
		return err
	}

	b.mu.Lock()
	b.lastSent = time.Now()
	b.lastActivity = b.lastSent
	b.mu.Unlock()
	return nil
}

// handlePacket parses one inbound mDNS message and enqueues a Host for
// every PTR answer whose companion TXT "name" record passes
// ParseNameRecord and whose companion A record gives a reachable address.
// It tolerates answers arriving as one combined response (the common case
// for a single responder) by resolving PTR targets against the other
// records in the same message.
func (b *MDNSBackend) handlePacket(packet []byte) {
	msg := new(dns.Msg)
	if err := msg.Unpack(packet); err != nil {
		b.logger.Debug("mdns unpack failed", zap.Error(err))
		return
	}

	all := append(append([]dns.RR{}, msg.Answer...), msg.Extra...)

	for _, rr := range all {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}

		var txtName string
		var ip net.IP
		for _, other := range all {
			switch rec := other.(type) {
			case *dns.TXT:
				if rec.Header().Name == ptr.Ptr {
					for _, kv := range rec.Txt {
						if v, ok := strippedPrefix(kv, "name="); ok {
							txtName = v
						}
					}
				}
			case *dns.A:
				if rec.Header().Name == srvTargetOrSelf(all, ptr.Ptr) {
					ip = rec.A
				}
			}
		}

		udpPort, ok := ParseNameRecord(txtName)
		if !ok || ip == nil {
			continue
		}
		tcpPort := srvPort(all, ptr.Ptr)
		if tcpPort == 0 {
			continue
		}

		host := Host{IP: ip.String(), TCPPort: tcpPort, UDPPort: udpPort}
		b.enqueue(host)
	}
}

func (b *MDNSBackend) enqueue(h Host) {
	key := h.IP
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.seen[key]; ok && time.Since(t) < queryInterval {
		return
	}
	b.seen[key] = time.Now()
	b.queue = append(b.queue, h)
}

func (b *MDNSBackend) GetHost() (Host, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Host{}, false
	}
	h := b.queue[0]
	b.queue = b.queue[1:]
	return h, true
}

func srvTargetOrSelf(all []dns.RR, instance string) string {
	for _, rr := range all {
		if srv, ok := rr.(*dns.SRV); ok && srv.Header().Name == instance {
			return srv.Target
		}
	}
	return instance
}

func srvPort(all []dns.RR, instance string) int {
	for _, rr := range all {
		if srv, ok := rr.(*dns.SRV); ok && srv.Header().Name == instance {
			return int(srv.Port)
		}
	}
	return 0
}

func strippedPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}
