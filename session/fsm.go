package session

import (
	"time"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/rib"
	"github.com/fritz0705/bgpkit/wire"
)

// HandleMessage dispatches one decoded message through the FSM,
// spec.md §4.4. It resets the hold timer on any message (RFC 4271 §8,
// "any message" refreshes liveness) and returns a *ProtocolError when an
// UPDATE must tear the session down, or the error of a failed send; the
// caller is responsible for emitting the NOTIFICATION for a
// *ProtocolError and calling Shutdown.
func (s *Session) HandleMessage(msg wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holdTimer.Running() {
		s.holdTimer.Reset()
	}

	switch m := msg.(type) {
	case *wire.OpenMessage:
		return s.handleOpenMessage(m)
	case *wire.KeepaliveMessage:
		if s.state == StateOpenConfirm {
			s.setState(StateEstablished)
			s.armEstablishedTimers()
			if s.cfg.Hooks.OnEstablished != nil {
				s.cfg.Hooks.OnEstablished(s)
			}
		}
		return nil
	case *wire.NotificationMessage:
		s.LastError = &receivedNotification{msg: m}
		s.holdTimer.Stop()
		s.keepaliveTimer.Stop()
		s.setState(StateIdle)
		if s.cfg.Hooks.OnNotification != nil {
			s.cfg.Hooks.OnNotification(s, m)
		}
		return nil
	case *wire.UpdateMessage:
		if s.state != StateEstablished {
			return nil
		}
		return s.handleUpdateMessage(m)
	case *wire.RouteRefreshMessage:
		if s.state != StateEstablished {
			return nil
		}
		if s.cfg.Hooks.OnRouteRefresh != nil {
			s.cfg.Hooks.OnRouteRefresh(s, m)
		}
		return nil
	default:
		// IDLE property (spec.md §8): any non-OPEN/KEEPALIVE message
		// leaves the state unchanged; the same holds for any other
		// unrecognized message regardless of state.
		return nil
	}
}

type receivedNotification struct{ msg *wire.NotificationMessage }

func (e *receivedNotification) Error() string {
	return "session: peer sent NOTIFICATION"
}

// armEstablishedTimers starts the real hold/keepalive timers once the
// session reaches ESTABLISHED, replacing the OPEN_SENT/OPEN_CONFIRM
// large hold timer. A hold time of zero disables both timers (spec.md
// §4.4).
func (s *Session) armEstablishedTimers() {
	if s.HoldTime == 0 {
		s.holdTimer.Stop()
		s.keepaliveTimer.Stop()
		return
	}
	s.KeepaliveTime = keepaliveInterval(s.HoldTime)
	s.holdTimer.ResetTo(s.HoldTime)
	s.keepaliveTimer.ResetTo(s.KeepaliveTime)
}

func (s *Session) onHoldExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEstablished && s.state != StateOpenSent && s.state != StateOpenConfirm {
		return
	}
	s.LastError = &TimerError{}
	s.send(wire.NewNotification(wire.NotifyHoldTimerExpired, 0, nil))
	s.keepaliveTimer.Stop()
	s.connectRetryTimer.Stop()
	s.setState(StateIdle)
}

func (s *Session) onKeepaliveExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEstablished {
		return
	}
	s.send(&wire.KeepaliveMessage{})
	s.keepaliveTimer.Reset()
}

// onConnectRetryExpiry only rearms the timer; Session owns no net.Conn
// to dial out on, so the actual reconnect attempt and backoff live in
// server.dialLoop instead. See DESIGN.md for why that split is kept.
func (s *Session) onConnectRetryExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateActive {
		return
	}
	s.connectRetryTimer.Reset()
}

// handleOpenMessage implements spec.md §4.4's capability negotiation.
// It is illegal once OPEN_CONFIRM/ESTABLISHED has been reached, in
// which case it is silently ignored as the original source does.
func (s *Session) handleOpenMessage(msg *wire.OpenMessage) error {
	if s.state == StateEstablished || s.state == StateOpenConfirm {
		return nil
	}

	s.PeerASN = msg.EffectiveASN()
	s.PeerRouterID = msg.BGPIdentifier
	s.PeerCapabilities = msg.Capabilities()

	common := wire.IntersectCapabilities(s.LocalCapabilities, s.PeerCapabilities)
	if asn4, ok := negotiatedASN4(s.LocalCapabilities, s.PeerCapabilities); ok {
		common = append(common, &wire.FourOctetASNCapability{ASN: asn4})
	}
	if addPath, ok := negotiatedAddPath(s.LocalCapabilities, s.PeerCapabilities); ok {
		common = append(common, addPath)
	}

	s.Decoder = wire.DecoderFor(common, s.cfg.BaseDecoder)
	s.CommonProtocols = commonProtocols(s.cfg.LocalProtocols, s.PeerCapabilities)
	peerHoldTime := time.Duration(msg.HoldTime) * time.Second
	if s.cfg.HoldTime < peerHoldTime {
		s.HoldTime = s.cfg.HoldTime
	} else {
		s.HoldTime = peerHoldTime
	}

	switch s.state {
	case StateConnect:
		s.setState(StateOpenConfirm)
		s.holdTimer.ResetTo(DefaultLargeHoldTime)
		if err := s.send(s.CreateOpenMessage()); err != nil {
			return err
		}
		return s.send(&wire.KeepaliveMessage{})
	case StateOpenSent:
		s.setState(StateOpenConfirm)
		s.holdTimer.ResetTo(DefaultLargeHoldTime)
		return s.send(&wire.KeepaliveMessage{})
	default:
		return nil
	}
}

// negotiatedASN4 reports whether both sides advertised
// FourOctetASNCapability, yielding the peer's own ASN as the value to
// store in common_capabilities (spec.md §4.4 step 3).
func negotiatedASN4(local, peer []wire.Capability) (bgp.ASN4, bool) {
	var localHas, peerASN bool
	var asn bgp.ASN4
	for _, c := range local {
		if _, ok := c.(*wire.FourOctetASNCapability); ok {
			localHas = true
		}
	}
	for _, c := range peer {
		if a, ok := c.(*wire.FourOctetASNCapability); ok {
			peerASN = true
			asn = a.ASN
		}
	}
	if localHas && peerASN {
		return asn, true
	}
	return 0, false
}

// negotiatedAddPath intersects AddPath tuples present in both
// directions, keeping only the (AFI,SAFI) pairs common to both sides
// and the bitwise-AND of their send/receive flags (spec.md §4.4 step
// 3).
func negotiatedAddPath(local, peer []wire.Capability) (*wire.AddPathCapability, bool) {
	localTuples := addPathTuples(local)
	peerTuples := addPathTuples(peer)
	if len(localTuples) == 0 || len(peerTuples) == 0 {
		return nil, false
	}
	var out []wire.AddPathTuple
	for proto, l := range localTuples {
		p, ok := peerTuples[proto]
		if !ok {
			continue
		}
		sr := l & p
		if sr == 0 {
			continue
		}
		out = append(out, wire.AddPathTuple{AFI: proto.AFI, SAFI: proto.SAFI, SendReceive: sr})
	}
	if len(out) == 0 {
		return nil, false
	}
	return &wire.AddPathCapability{Tuples: out}, true
}

func addPathTuples(caps []wire.Capability) map[bgp.Proto]uint8 {
	out := map[bgp.Proto]uint8{}
	for _, c := range caps {
		ap, ok := c.(*wire.AddPathCapability)
		if !ok {
			continue
		}
		for _, t := range ap.Tuples {
			out[bgp.Proto{AFI: t.AFI, SAFI: t.SAFI}] = t.SendReceive
		}
	}
	return out
}

// commonProtocols intersects the local (AFI,SAFI) multiprotocol set
// with the peer's advertised MultiprotocolCapability tuples, spec.md
// §4.4 step 5. Plain IPv4 unicast is implicitly common whenever the
// peer did not negotiate multiprotocol at all, matching OPEN's implicit
// advertisement of that family.
func commonProtocols(local []bgp.Proto, peerCaps []wire.Capability) []bgp.Proto {
	peer := map[bgp.Proto]bool{}
	peerAdvertisedAny := false
	for _, c := range peerCaps {
		if mp, ok := c.(*wire.MultiprotocolCapability); ok {
			peer[bgp.Proto{AFI: mp.AFI, SAFI: mp.SAFI}] = true
			peerAdvertisedAny = true
		}
	}
	var out []bgp.Proto
	for _, p := range local {
		if !peerAdvertisedAny && p.AFI == bgp.AFIIPv4 && p.SAFI == bgp.SAFIUnicast {
			out = append(out, p)
			continue
		}
		if peer[p] {
			out = append(out, p)
		}
	}
	return out
}

// handleUpdateMessage implements spec.md §4.4's UPDATE consumption.
func (s *Session) handleUpdateMessage(msg *wire.UpdateMessage) error {
	if err := msg.Resolve(s.Decoder); err != nil {
		return newProtocolError(wire.NotifyUpdateMessageError, 0, "%v", err)
	}

	events := rib.RoutesFromUpdate(msg)
	filter := s.cfg.FilterIn
	if filter == nil {
		filter = rib.AcceptAll
	}

	var admitted []rib.RouteEvent
	for _, ev := range events {
		if !s.isCommonProtocol(ev.Route.Proto()) {
			return errUnsupportedAFISAFI(ev.Route.Proto())
		}
		ev.Route.SourceRouter = s.PeerRouterID
		ev.Route.HasSource = true
		switch ev.Action {
		case rib.RouteActionAnnounce:
			rib.AddRoute(s.AdjRIBIn, ev.Route)
			if filter(ev.Route) && s.cfg.LocRIB != nil {
				rib.AddSetRoute(s.cfg.LocRIB, ev.Route)
			}
		case rib.RouteActionWithdraw:
			rib.RemoveRoute(s.AdjRIBIn, ev.Route)
			if s.cfg.LocRIB != nil {
				rib.RemoveSetRoute(s.cfg.LocRIB, ev.Route)
			}
		}
		admitted = append(admitted, ev)
	}
	if s.cfg.Hooks.OnUpdate != nil {
		s.cfg.Hooks.OnUpdate(s, admitted)
	}
	return nil
}

func (s *Session) isCommonProtocol(p bgp.Proto) bool {
	for _, cp := range s.CommonProtocols {
		if cp == p {
			return true
		}
	}
	return false
}
