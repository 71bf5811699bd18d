package rib

import (
	"net"
	"testing"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/wire"
)

func ipv4Unicast() bgp.Proto {
	return bgp.Proto{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast}
}

func cidr(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", s, err)
	}
	return n
}

func ipNLRI(t *testing.T, s string) wire.NLRI {
	return &wire.IPNLRI{Net: cidr(t, s)}
}

func TestAddRouteGet(t *testing.T) {
	r := New[*Route]()
	r.RegisterProto(ipv4Unicast())

	route := &Route{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast, NLRI: ipNLRI(t, "10.0.0.0/8")}
	if err := AddRoute(r, route); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	got, err := r.Get(route.Proto(), route.Network())
	if err != nil || got != route {
		t.Fatalf("Get = (%v, %v), want (route, nil)", got, err)
	}
}

func TestRegisterProtoIdempotent(t *testing.T) {
	r := New[*Route]()
	p := ipv4Unicast()
	r.RegisterProto(p)
	route := &Route{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast, NLRI: ipNLRI(t, "10.0.0.0/8")}
	if err := AddRoute(r, route); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	r.RegisterProto(p) // should not wipe existing data
	if !r.Contains(p, route.Network()) {
		t.Fatalf("re-registering an existing protocol wiped its trie")
	}
}

func TestAddRouteUnsupportedProtocol(t *testing.T) {
	r := New[*Route]()
	route := &Route{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast, NLRI: ipNLRI(t, "10.0.0.0/8")}
	if err := AddRoute(r, route); err != ErrUnsupportedProtocol {
		t.Fatalf("AddRoute on unregistered proto = %v, want ErrUnsupportedProtocol", err)
	}
}

func TestAddSetRouteMultiplePeers(t *testing.T) {
	r := New[RouteSet]()
	r.RegisterProto(ipv4Unicast())

	n := ipNLRI(t, "10.0.0.0/8")
	routeA := &Route{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast, NLRI: n, SourceRouter: bgp.NewIdentifier(net.ParseIP("192.0.2.1")), HasSource: true}
	routeB := &Route{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast, NLRI: n, SourceRouter: bgp.NewIdentifier(net.ParseIP("192.0.2.2")), HasSource: true}

	if err := AddSetRoute(r, routeA); err != nil {
		t.Fatalf("AddSetRoute A: %v", err)
	}
	if err := AddSetRoute(r, routeB); err != nil {
		t.Fatalf("AddSetRoute B: %v", err)
	}

	set, err := r.Get(ipv4Unicast(), routeA.Network())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("got %d paths, want 2", len(set))
	}

	if err := RemoveSetRoute(r, routeA); err != nil {
		t.Fatalf("RemoveSetRoute: %v", err)
	}
	set, err = r.Get(ipv4Unicast(), routeA.Network())
	if err != nil {
		t.Fatalf("Get after remove: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("got %d paths after removing one peer's, want 1", len(set))
	}
	if _, ok := set[routeB.SourceRouter]; !ok {
		t.Fatalf("remaining path should be routeB's")
	}
}

func TestRouteAccessors(t *testing.T) {
	route := &Route{
		AFI:  bgp.AFIIPv4,
		SAFI: bgp.SAFIUnicast,
		NLRI: ipNLRI(t, "10.0.0.0/8"),
		Attributes: []wire.PathAttribute{
			&wire.OriginAttribute{Origin: 1},
			&wire.LocalPrefAttribute{LocalPref: 200},
			&wire.MultiExitDiscAttribute{MED: 10},
			&wire.AtomicAggregateAttribute{},
			&wire.AggregatorAttribute{ASN: 65000, IP: net.ParseIP("192.0.2.1").To4()},
			&wire.NextHopAttribute{NextHop: net.ParseIP("192.0.2.254").To4()},
		},
	}

	if origin, ok := route.Origin(); !ok || origin != 1 {
		t.Fatalf("Origin() = (%d, %v), want (1, true)", origin, ok)
	}
	if lp, ok := route.LocalPref(); !ok || lp != 200 {
		t.Fatalf("LocalPref() = (%d, %v), want (200, true)", lp, ok)
	}
	if med, ok := route.MED(); !ok || med != 10 {
		t.Fatalf("MED() = (%d, %v), want (10, true)", med, ok)
	}
	if !route.AtomicAggregate() {
		t.Fatalf("AtomicAggregate() = false, want true")
	}
	if asn, ip, ok := route.Aggregator(); !ok || asn != 65000 || !ip.Equal(net.ParseIP("192.0.2.1")) {
		t.Fatalf("Aggregator() = (%d, %v, %v), unexpected", asn, ip, ok)
	}
	if nh, ok := route.NextHop(); !ok || !nh.Equal(net.ParseIP("192.0.2.254")) {
		t.Fatalf("NextHop() = (%v, %v), unexpected", nh, ok)
	}
	if prefix, ok := route.IPPrefix(); !ok || prefix.String() != "10.0.0.0/8" {
		t.Fatalf("IPPrefix() = (%v, %v), want (10.0.0.0/8, true)", prefix, ok)
	}
}

// Scenario 3 continuation: decomposing an UPDATE with top-level NLRI
// 10.0.0.0/8 into a single ANNOUNCE Route over IPv4 unicast.
func TestRoutesFromUpdateTopLevel(t *testing.T) {
	update := &wire.UpdateMessage{
		NLRI: []wire.NLRI{&wire.IPNLRI{Net: cidr(t, "10.0.0.0/8")}},
	}
	events := RoutesFromUpdate(update)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Action != RouteActionAnnounce {
		t.Fatalf("got action %v, want RouteActionAnnounce", events[0].Action)
	}
	if events[0].Route.AFI != bgp.AFIIPv4 || events[0].Route.SAFI != bgp.SAFIUnicast {
		t.Fatalf("unexpected route proto: %+v", events[0].Route.Proto())
	}
}

func TestRoutesFromUpdateMPReachUnreach(t *testing.T) {
	update := &wire.UpdateMessage{
		PathAttributes: []wire.PathAttribute{
			&wire.MPReachAttribute{
				AFI: bgp.AFIIPv6, SAFI: bgp.SAFIUnicast,
				NextHop: net.ParseIP("2001:db8::1"),
				NLRI:    []wire.NLRI{&wire.IPNLRI{Net: cidr(t, "2001:db8::/32")}},
			},
			&wire.MPUnreachAttribute{
				AFI: bgp.AFIIPv6, SAFI: bgp.SAFIUnicast,
				NLRI: []wire.NLRI{&wire.IPNLRI{Net: cidr(t, "2001:db9::/32")}},
			},
		},
	}
	events := RoutesFromUpdate(update)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	var announced, withdrawn bool
	for _, e := range events {
		if e.Route.AFI != bgp.AFIIPv6 || e.Route.SAFI != bgp.SAFIUnicast {
			t.Fatalf("unexpected proto on event: %+v", e.Route.Proto())
		}
		switch e.Action {
		case RouteActionAnnounce:
			announced = true
		case RouteActionWithdraw:
			withdrawn = true
		}
	}
	if !announced || !withdrawn {
		t.Fatalf("expected one announce and one withdraw event, got %+v", events)
	}
}
