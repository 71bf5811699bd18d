package session

import (
	"net"
	"testing"
	"time"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/wire"
)

func newTestSession(t *testing.T, holdTime time.Duration, advertiseASN4 bool) *Session {
	t.Helper()
	return New(Config{
		LocalRouterID: bgp.NewIdentifier(net.ParseIP("192.0.2.1")),
		LocalASN:      65001,
		AdvertiseASN4: advertiseASN4,
		HoldTime:      holdTime,
		LocalProtocols: []bgp.Proto{
			{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast},
		},
		Initiator: true,
	})
}

func TestCreateOpenMessagePlainASN(t *testing.T) {
	s := newTestSession(t, DefaultHoldTime, false)
	open := s.CreateOpenMessage()
	if open.ASN != 65001 {
		t.Fatalf("ASN = %d, want 65001", open.ASN)
	}
	if open.EffectiveASN() != 65001 {
		t.Fatalf("EffectiveASN() = %d, want 65001", open.EffectiveASN())
	}
}

// Scenario 6: both peers advertise FourOctetASNCapability(65537). The
// OPEN uses AS_TRANS in the header with the real ASN in the capability.
func TestCreateOpenMessageASTrans(t *testing.T) {
	s := newTestSession(t, DefaultHoldTime, true)
	s.LocalASN = 65537
	open := s.CreateOpenMessage()
	if open.ASN != bgp.ASTrans {
		t.Fatalf("ASN = %d, want AS_TRANS(%d)", open.ASN, bgp.ASTrans)
	}
	if open.EffectiveASN() != 65537 {
		t.Fatalf("EffectiveASN() = %d, want 65537", open.EffectiveASN())
	}
}

func openWithASN4(asn bgp.ASN4, routerID bgp.Identifier) *wire.OpenMessage {
	return &wire.OpenMessage{
		Version:       bgp.SupportedVersion,
		ASN:           bgp.ASTrans,
		HoldTime:      90,
		BGPIdentifier: routerID,
		Parameters: []wire.Parameter{
			&wire.CapabilityParameter{Capabilities: []wire.Capability{
				&wire.FourOctetASNCapability{ASN: asn},
			}},
		},
	}
}

func TestASN4NegotiationRebindsDecoder(t *testing.T) {
	s := newTestSession(t, DefaultHoldTime, true)
	s.LocalASN = 65537
	s.Start()
	if err := s.Connected(); err != nil {
		t.Fatalf("Connected: %v", err)
	}

	peerID := bgp.NewIdentifier(net.ParseIP("192.0.2.2"))
	if err := s.HandleMessage(openWithASN4(65537, peerID)); err != nil {
		t.Fatalf("HandleMessage(OPEN): %v", err)
	}
	if s.State() != StateOpenConfirm {
		t.Fatalf("state = %v, want OPEN_CONFIRM", s.State())
	}
	if s.PeerASN != 65537 {
		t.Fatalf("PeerASN = %d, want 65537", s.PeerASN)
	}

	// The rebuilt decoder must decode AS_PATH as AS4Path: a 4-octet
	// segment [65537, 65538] should decode to the same ASNs rather than
	// splitting into 16-bit pairs.
	asPath := &wire.ASPathAttribute{
		AttrCode:  wire.AttrASPath,
		FourOctet: true,
		Segments: []wire.ASPathSegment{
			{Type: wire.ASPathSequence, ASNs: []bgp.ASN4{65537, 65538}},
		},
	}
	raw := wire.Encode(&wire.UpdateMessage{PathAttributes: []wire.PathAttribute{asPath}})
	decoded, err := s.Decoder.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	update, ok := decoded.(*wire.UpdateMessage)
	if !ok || len(update.PathAttributes) != 1 {
		t.Fatalf("decoded = %+v, want one-attribute UpdateMessage", decoded)
	}
	gotASPath, ok := update.PathAttributes[0].(*wire.ASPathAttribute)
	if !ok {
		t.Fatalf("decoded attribute = %T, want *wire.ASPathAttribute", update.PathAttributes[0])
	}
	var asns []bgp.ASN4
	gotASPath.Walk(func(asn bgp.ASN4) { asns = append(asns, asn) })
	if len(asns) != 2 || asns[0] != 65537 || asns[1] != 65538 {
		t.Fatalf("decoded ASNs = %v, want [65537 65538]", asns)
	}
}

func TestIdleIgnoresNonOpenKeepalive(t *testing.T) {
	s := newTestSession(t, DefaultHoldTime, false)
	if err := s.HandleMessage(&wire.RouteRefreshMessage{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast}); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v, want IDLE", s.State())
	}
}

func TestNotificationTerminatesToIdle(t *testing.T) {
	s := newTestSession(t, DefaultHoldTime, false)
	s.Start()
	s.Connected()
	s.HandleMessage(openWithASN4(0, bgp.NewIdentifier(net.ParseIP("192.0.2.2"))))
	if s.State() != StateOpenConfirm {
		t.Fatalf("precondition: state = %v, want OPEN_CONFIRM", s.State())
	}

	if err := s.HandleMessage(&wire.KeepaliveMessage{}); err != nil {
		t.Fatalf("HandleMessage(KEEPALIVE): %v", err)
	}
	if s.State() != StateEstablished {
		t.Fatalf("state = %v, want ESTABLISHED", s.State())
	}

	notif := wire.NewNotification(wire.NotifyCease, 0, nil)
	if err := s.HandleMessage(notif); err != nil {
		t.Fatalf("HandleMessage(NOTIFICATION): %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v, want IDLE after NOTIFICATION", s.State())
	}
	if s.LastError == nil {
		t.Fatalf("LastError not set after NOTIFICATION")
	}
}

func TestKeepaliveIntervalApproximatesHoldOverThree(t *testing.T) {
	hold := 90 * time.Second
	for i := 0; i < 50; i++ {
		got := keepaliveInterval(hold)
		want := hold / 3
		lo, hi := want*3/4, want
		if got < lo || got > hi {
			t.Fatalf("keepaliveInterval(%v) = %v, want in [%v,%v]", hold, got, lo, hi)
		}
	}
}

func TestHoldTimerExpiryNotifiesAndIdles(t *testing.T) {
	var sent []wire.Message
	s := New(Config{
		LocalRouterID: bgp.NewIdentifier(net.ParseIP("192.0.2.1")),
		LocalASN:      65001,
		HoldTime:      DefaultHoldTime,
		Initiator:     true,
		Send: func(m wire.Message) error {
			sent = append(sent, m)
			return nil
		},
	})
	s.mu.Lock()
	s.setState(StateEstablished)
	s.mu.Unlock()

	s.onHoldExpiry()

	if s.State() != StateIdle {
		t.Fatalf("state = %v, want IDLE", s.State())
	}
	if len(sent) != 1 {
		t.Fatalf("got %d sent messages, want 1", len(sent))
	}
	notif, ok := sent[0].(*wire.NotificationMessage)
	if !ok || notif.ErrorCode != wire.NotifyHoldTimerExpired {
		t.Fatalf("sent message = %+v, want NOTIFICATION(code=4)", sent[0])
	}
}

func TestCollisionLoserLowerInitiatorIdentifier(t *testing.T) {
	a := newTestSession(t, DefaultHoldTime, false)
	a.cfg.Initiator = true
	a.LocalRouterID = bgp.NewIdentifier(net.ParseIP("192.0.2.1"))
	a.mu.Lock()
	a.setState(StateEstablished)
	a.mu.Unlock()

	b := newTestSession(t, DefaultHoldTime, false)
	b.cfg.Initiator = true
	b.LocalRouterID = bgp.NewIdentifier(net.ParseIP("192.0.2.9"))
	b.mu.Lock()
	b.setState(StateOpenConfirm)
	b.mu.Unlock()

	loser := CollisionLoser(a, b)
	if loser != a {
		t.Fatalf("expected session with lower initiator id (a) to lose")
	}
}
