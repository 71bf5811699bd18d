package server

import (
	"net"
	"testing"

	"github.com/fritz0705/bgpkit/bgp"
)

func TestParseProtoKnownNames(t *testing.T) {
	cases := map[string]bgp.Proto{
		"ipv4-unicast":   {AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast},
		"ipv4-multicast": {AFI: bgp.AFIIPv4, SAFI: bgp.SAFIMulticast},
		"ipv6-unicast":   {AFI: bgp.AFIIPv6, SAFI: bgp.SAFIUnicast},
	}
	for name, want := range cases {
		got, err := ParseProto(name)
		if err != nil {
			t.Fatalf("ParseProto(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseProto(%q) = %+v, want %+v", name, got, want)
		}
	}
}

func TestParseProtoUnknownName(t *testing.T) {
	if _, err := ParseProto("ipv4-flowspec"); err == nil {
		t.Fatalf("expected error for unknown protocol name")
	}
}

func TestServerLookupPeerLongestPrefixMatch(t *testing.T) {
	srv := New(nil)
	_, wide, _ := net.ParseCIDR("198.51.100.0/24")
	_, narrow, _ := net.ParseCIDR("198.51.100.5/32")
	srv.AddPeer(&PeerTemplate{Network: wide, RemoteASN: 65010})
	srv.AddPeer(&PeerTemplate{Network: narrow, RemoteASN: 65020})

	tmpl, ok := srv.lookupPeer(net.ParseIP("198.51.100.5"))
	if !ok || tmpl.RemoteASN != 65020 {
		t.Fatalf("expected the /32 template to win, got %+v", tmpl)
	}

	tmpl, ok = srv.lookupPeer(net.ParseIP("198.51.100.9"))
	if !ok || tmpl.RemoteASN != 65010 {
		t.Fatalf("expected the /24 template for a non-matching host, got %+v", tmpl)
	}

	if _, ok := srv.lookupPeer(net.ParseIP("203.0.113.1")); ok {
		t.Fatalf("expected no match outside any configured network")
	}
}
