package server

import (
	"fmt"
	"net"
	"time"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/wire"
)

// PeerTemplate is the per-neighbor configuration a Server matches
// against an inbound or outbound connection's remote address, spec.md
// §4.5 ("peers: a trie mapping peer address -> BaseSession template").
type PeerTemplate struct {
	Network *net.IPNet

	RemoteASN     bgp.ASN4
	LocalASN      bgp.ASN4
	LocalRouterID bgp.Identifier
	HoldTime      time.Duration

	// Passive peers are never dialed by Server.DialAll; they only ever
	// arrive via the accept handler.
	Passive bool

	AdvertiseASN4 bool
	Protocols     []bgp.Proto
	AddPath       []wire.AddPathTuple
}

// ParseProto maps the handful of address-family names the server's
// configuration uses to their (AFI, SAFI) pair.
func ParseProto(name string) (bgp.Proto, error) {
	switch name {
	case "ipv4-unicast":
		return bgp.Proto{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast}, nil
	case "ipv4-multicast":
		return bgp.Proto{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIMulticast}, nil
	case "ipv6-unicast":
		return bgp.Proto{AFI: bgp.AFIIPv6, SAFI: bgp.SAFIUnicast}, nil
	case "ipv6-multicast":
		return bgp.Proto{AFI: bgp.AFIIPv6, SAFI: bgp.SAFIMulticast}, nil
	default:
		return bgp.Proto{}, fmt.Errorf("server: unknown protocol name %q", name)
	}
}
