// Package session implements the per-peer BGP FSM (RFC 4271 §8):
// capability negotiation, OPEN construction, the hold/keepalive/
// connect-retry timers, collision resolution, and UPDATE consumption
// into the Adj-RIB-In and a shared Loc-RIB.
package session

import (
	"sync"
	"time"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/rib"
	"github.com/fritz0705/bgpkit/timer"
	"github.com/fritz0705/bgpkit/wire"
)

// State is one of the six FSM states of RFC 4271 §8.2.1.
type State int

const (
	StateIdle State = iota
	StateConnect
	StateActive
	StateOpenSent
	StateOpenConfirm
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnect:
		return "CONNECT"
	case StateActive:
		return "ACTIVE"
	case StateOpenSent:
		return "OPEN_SENT"
	case StateOpenConfirm:
		return "OPEN_CONFIRM"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}

// Hooks are the application callbacks a Session invokes as it runs,
// spec.md §6 ("Session hooks: on_update, on_route_refresh,
// on_established, on_shutdown, on_notification").
type Hooks struct {
	OnUpdate       func(s *Session, events []rib.RouteEvent)
	OnRouteRefresh func(s *Session, msg *wire.RouteRefreshMessage)
	OnEstablished  func(s *Session)
	OnShutdown     func(s *Session)
	OnNotification func(s *Session, msg *wire.NotificationMessage)
}

// Config configures a new Session. Send encodes and transmits one wire
// message; the Session never owns the underlying stream.
type Config struct {
	LocalRouterID  bgp.Identifier
	LocalASN       bgp.ASN4
	AdvertiseASN4  bool
	HoldTime       time.Duration
	LocalProtocols []bgp.Proto
	AddPath        []wire.AddPathTuple
	Initiator      bool

	// BaseDecoder is the registry used before capability negotiation
	// rebinds it (typically wire.Default() or wire.DefaultASN4()).
	BaseDecoder *wire.Decoder

	// FilterIn decides whether an announced route is admitted into the
	// shared Loc-RIB. A nil filter admits everything.
	FilterIn rib.Filter

	// LocRIB is the server-wide, set-valued RIB this session contributes
	// to and withdraws from. Its own internal mutex satisfies the
	// loc_rib_lock of spec.md §5.
	LocRIB *rib.RIB[rib.RouteSet]

	Send  func(wire.Message) error
	Hooks Hooks
}

// Session is one peer connection's FSM, timers and RIB state.
type Session struct {
	cfg Config

	mu          sync.Mutex
	state       State
	shutdownRun bool

	LocalRouterID bgp.Identifier
	LocalASN      bgp.ASN4

	PeerRouterID bgp.Identifier
	PeerASN      bgp.ASN4

	LocalCapabilities []wire.Capability
	PeerCapabilities  []wire.Capability
	CommonProtocols   []bgp.Proto

	HoldTime      time.Duration
	KeepaliveTime time.Duration
	LastError     error

	Decoder *wire.Decoder

	// AdjRIBIn holds every route this peer has announced, one entry per
	// (proto, prefix); its internal mutex is this session's
	// adj_rib_in_lock (spec.md §5).
	AdjRIBIn *rib.RIB[*rib.Route]
	// AdjRIBOut holds every route announced to this peer. Single-writer
	// (the session's own task); spec.md §5 requires no lock for it.
	AdjRIBOut *rib.RIB[*rib.Route]

	holdTimer          *timer.Timer
	keepaliveTimer     *timer.Timer
	connectRetryTimer  *timer.Timer
}

// New constructs an IDLE Session from cfg. The caller still must call
// Connected (active, optionally after Start) or Accepted (passive) to
// begin the handshake.
func New(cfg Config) *Session {
	base := cfg.BaseDecoder
	if base == nil {
		base = wire.Default()
	}
	cfg.BaseDecoder = base
	s := &Session{
		cfg:               cfg,
		state:             StateIdle,
		LocalRouterID:     cfg.LocalRouterID,
		LocalASN:          cfg.LocalASN,
		HoldTime:          cfg.HoldTime,
		Decoder:           base,
		AdjRIBIn:          rib.New[*rib.Route](),
		AdjRIBOut:         rib.New[*rib.Route](),
		LocalCapabilities: localCapabilities(cfg),
	}
	s.AdjRIBIn.RegisterProtos(cfg.LocalProtocols)
	s.AdjRIBOut.RegisterProtos(cfg.LocalProtocols)
	s.connectRetryTimer = timer.New(DefaultConnectRetryTime, s.onConnectRetryExpiry)
	s.connectRetryTimer.Stop()
	s.holdTimer = timer.New(DefaultHoldTime, s.onHoldExpiry)
	s.holdTimer.Stop()
	s.keepaliveTimer = timer.New(DefaultKeepaliveTime, s.onKeepaliveExpiry)
	s.keepaliveTimer.Stop()
	return s
}

func localCapabilities(cfg Config) []wire.Capability {
	var caps []wire.Capability
	if cfg.AdvertiseASN4 {
		caps = append(caps, &wire.FourOctetASNCapability{ASN: cfg.LocalASN})
	}
	for _, p := range cfg.LocalProtocols {
		caps = append(caps, &wire.MultiprotocolCapability{AFI: p.AFI, SAFI: p.SAFI})
	}
	if len(cfg.AddPath) > 0 {
		caps = append(caps, &wire.AddPathCapability{Tuples: cfg.AddPath})
	}
	return caps
}

// State returns the session's current FSM state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.state = next
}

// CreateOpenMessage builds the OPEN this session sends, spec.md §4.4
// ("OPEN construction"): ASN is AS_TRANS with a FourOctetASNCapability
// carrying LocalASN when four-octet ASNs are advertised, else the plain
// 2-octet ASN.
func (s *Session) CreateOpenMessage() *wire.OpenMessage {
	asn := bgp.ASN(s.LocalASN)
	if s.cfg.AdvertiseASN4 {
		asn = bgp.ASTrans
	}
	msg := &wire.OpenMessage{
		Version:       bgp.SupportedVersion,
		ASN:           asn,
		HoldTime:      uint16(s.HoldTime / time.Second),
		BGPIdentifier: s.LocalRouterID,
	}
	if len(s.LocalCapabilities) > 0 {
		caps := make([]wire.Capability, 0, len(s.LocalCapabilities))
		for _, c := range s.LocalCapabilities {
			if _, ok := c.(*wire.FourOctetASNCapability); ok {
				c = &wire.FourOctetASNCapability{ASN: s.LocalASN}
			}
			caps = append(caps, c)
		}
		msg.Parameters = append(msg.Parameters, &wire.CapabilityParameter{Capabilities: caps})
	}
	return msg
}

func (s *Session) send(msg wire.Message) error {
	if s.cfg.Send == nil {
		return nil
	}
	return s.cfg.Send(msg)
}

// SendNotification pushes a NOTIFICATION out on this session's
// transport directly, bypassing the FSM. Used by a caller that has
// decided to tear the session down for a reason the FSM itself doesn't
// detect, such as losing collision resolution (spec.md §4.4 §6.8).
func (s *Session) SendNotification(n *wire.NotificationMessage) error {
	return s.send(n)
}

// Start transitions an active (initiating) session from IDLE to
// CONNECT and arms the connect-retry timer, spec.md §4.4.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(StateConnect)
	s.connectRetryTimer.ResetTo(jitter(DefaultConnectRetryTime))
}

// Connected signals that the outbound TCP connection this session
// initiated has completed; it sends OPEN and moves to OPEN_SENT.
func (s *Session) Connected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectRetryTimer.Stop()
	s.setState(StateOpenSent)
	s.holdTimer.ResetTo(DefaultLargeHoldTime)
	return s.send(s.CreateOpenMessage())
}

// Accepted signals an inbound connection was accepted for this
// (passive) session; IDLE/ACTIVE -> OPEN_SENT, spec.md §4.4.
func (s *Session) Accepted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectRetryTimer.Stop()
	s.setState(StateOpenSent)
	s.holdTimer.ResetTo(DefaultLargeHoldTime)
	return s.send(s.CreateOpenMessage())
}

// Shutdown withdraws every Adj-RIB-In entry from the shared Loc-RIB,
// resets the session to IDLE, and cancels every timer (spec.md §4.5
// on_shutdown). Idempotent: calling it again after it has already run
// once is a no-op, so a session torn down from more than one place
// (the FSM itself and its owning server goroutine, say) only withdraws
// its routes and fires OnShutdown once.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdownRun {
		return
	}
	s.shutdownRun = true
	if s.cfg.LocRIB != nil {
		for _, e := range s.AdjRIBIn.All() {
			rib.RemoveSetRoute(s.cfg.LocRIB, e.Value)
		}
	}
	s.holdTimer.Stop()
	s.keepaliveTimer.Stop()
	s.connectRetryTimer.Stop()
	s.setState(StateIdle)
	if s.cfg.Hooks.OnShutdown != nil {
		s.cfg.Hooks.OnShutdown(s)
	}
}
