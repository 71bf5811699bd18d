package wire

import (
	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// Capability codes, spec.md §3.
const (
	CapMultiprotocol  uint8 = 1
	CapRouteRefresh   uint8 = 2
	CapGracefulRestart uint8 = 64
	CapFourOctetASN   uint8 = 65
	CapAddPath        uint8 = 69
)

// MultiprotocolCapability (RFC 4760) advertises support for an
// additional (AFI, SAFI) pair beyond plain IPv4 unicast.
type MultiprotocolCapability struct {
	AFI  bgp.AFI
	SAFI bgp.SAFI
}

func (c *MultiprotocolCapability) CapCode() uint8 { return CapMultiprotocol }

func (c *MultiprotocolCapability) EncodeValue() []byte {
	w := stream.NewWriter()
	w.WriteUint16(uint16(c.AFI))
	w.WriteByte(0) // reserved
	w.WriteByte(byte(c.SAFI))
	return w.Bytes()
}

func decodeMultiprotocolCapability(code uint8, value []byte) (Capability, error) {
	r := stream.NewReader(value)
	afi, err := r.Uint16()
	if err != nil {
		return nil, truncated("MultiprotocolCapability afi")
	}
	if _, err := r.Byte(); err != nil { // reserved
		return nil, truncated("MultiprotocolCapability reserved")
	}
	safi, err := r.Byte()
	if err != nil {
		return nil, truncated("MultiprotocolCapability safi")
	}
	return &MultiprotocolCapability{AFI: bgp.AFI(afi), SAFI: bgp.SAFI(safi)}, nil
}

// RouteRefreshCapability (RFC 2918) advertises support for
// ROUTE_REFRESH; it carries no payload.
type RouteRefreshCapability struct{}

func (c *RouteRefreshCapability) CapCode() uint8      { return CapRouteRefresh }
func (c *RouteRefreshCapability) EncodeValue() []byte { return nil }

func decodeRouteRefreshCapability(code uint8, value []byte) (Capability, error) {
	return &RouteRefreshCapability{}, nil
}

// GracefulRestartTuple is one (AFI, SAFI, flags) entry inside a
// GracefulRestartCapability.
type GracefulRestartTuple struct {
	AFI   bgp.AFI
	SAFI  bgp.SAFI
	Flags uint8
}

// GracefulRestartCapability (RFC 4724).
type GracefulRestartCapability struct {
	RestartFlags uint8 // high 4 bits of the first octet pair
	RestartTime  uint16
	Tuples       []GracefulRestartTuple
}

func (c *GracefulRestartCapability) CapCode() uint8 { return CapGracefulRestart }

func (c *GracefulRestartCapability) EncodeValue() []byte {
	w := stream.NewWriter()
	w.WriteUint16(uint16(c.RestartFlags)<<12 | (c.RestartTime & 0x0FFF))
	for _, t := range c.Tuples {
		w.WriteUint16(uint16(t.AFI))
		w.WriteByte(byte(t.SAFI))
		w.WriteByte(t.Flags)
	}
	return w.Bytes()
}

func decodeGracefulRestartCapability(code uint8, value []byte) (Capability, error) {
	r := stream.NewReader(value)
	header, err := r.Uint16()
	if err != nil {
		return nil, truncated("GracefulRestartCapability header")
	}
	c := &GracefulRestartCapability{
		RestartFlags: uint8(header >> 12),
		RestartTime:  header & 0x0FFF,
	}
	for r.Len() > 0 {
		afi, err := r.Uint16()
		if err != nil {
			return nil, truncated("GracefulRestartCapability tuple afi")
		}
		safi, err := r.Byte()
		if err != nil {
			return nil, truncated("GracefulRestartCapability tuple safi")
		}
		flags, err := r.Byte()
		if err != nil {
			return nil, truncated("GracefulRestartCapability tuple flags")
		}
		c.Tuples = append(c.Tuples, GracefulRestartTuple{AFI: bgp.AFI(afi), SAFI: bgp.SAFI(safi), Flags: flags})
	}
	return c, nil
}

// FourOctetASNCapability (RFC 6793) carries the speaker's real
// autonomous system number when it exceeds 16 bits (or, by convention,
// unconditionally once both sides support it).
type FourOctetASNCapability struct {
	ASN bgp.ASN4
}

func (c *FourOctetASNCapability) CapCode() uint8 { return CapFourOctetASN }

func (c *FourOctetASNCapability) EncodeValue() []byte {
	w := stream.NewWriter()
	w.WriteUint32(uint32(c.ASN))
	return w.Bytes()
}

func decodeFourOctetASNCapability(code uint8, value []byte) (Capability, error) {
	r := stream.NewReader(value)
	asn, err := r.Uint32()
	if err != nil {
		return nil, truncated("FourOctetASNCapability")
	}
	return &FourOctetASNCapability{ASN: bgp.ASN4(asn)}, nil
}

// AddPathTuple is one (AFI, SAFI, send/receive) entry inside an
// AddPathCapability. SendReceive is 1 (receive), 2 (send) or 3 (both),
// from the advertiser's point of view.
type AddPathTuple struct {
	AFI         bgp.AFI
	SAFI        bgp.SAFI
	SendReceive uint8
}

// AddPathCapability (RFC 7911).
type AddPathCapability struct {
	Tuples []AddPathTuple
}

func (c *AddPathCapability) CapCode() uint8 { return CapAddPath }

func (c *AddPathCapability) EncodeValue() []byte {
	w := stream.NewWriter()
	for _, t := range c.Tuples {
		w.WriteUint16(uint16(t.AFI))
		w.WriteByte(byte(t.SAFI))
		w.WriteByte(t.SendReceive)
	}
	return w.Bytes()
}

func decodeAddPathCapability(code uint8, value []byte) (Capability, error) {
	r := stream.NewReader(value)
	c := &AddPathCapability{}
	for r.Len() > 0 {
		afi, err := r.Uint16()
		if err != nil {
			return nil, truncated("AddPathCapability tuple afi")
		}
		safi, err := r.Byte()
		if err != nil {
			return nil, truncated("AddPathCapability tuple safi")
		}
		sr, err := r.Byte()
		if err != nil {
			return nil, truncated("AddPathCapability tuple send-receive")
		}
		c.Tuples = append(c.Tuples, AddPathTuple{AFI: bgp.AFI(afi), SAFI: bgp.SAFI(safi), SendReceive: sr})
	}
	return c, nil
}

// IntersectCapabilities computes local∩peer over encoded-bytes equality
// (spec.md §3, "Capability equality is structural").
func IntersectCapabilities(local, peer []Capability) []Capability {
	peerSet := map[string]bool{}
	for _, c := range peer {
		peerSet[capabilityKey(c)] = true
	}
	var common []Capability
	seen := map[string]bool{}
	for _, c := range local {
		k := capabilityKey(c)
		if peerSet[k] && !seen[k] {
			common = append(common, c)
			seen[k] = true
		}
	}
	return common
}
