package wire

import (
	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// MessageCtor decodes a message body (the bytes after the 19-octet
// header) into a typed Message.
type MessageCtor func(body []byte) (Message, error)

// PathAttributeCtor decodes an attribute's value field into a typed
// PathAttribute, given the flags and type octets already read from the
// wire.
type PathAttributeCtor func(flags, typ uint8, value []byte) (PathAttribute, error)

// CapabilityCtor decodes a capability's value field into a typed
// Capability.
type CapabilityCtor func(code uint8, value []byte) (Capability, error)

// ParameterCtor decodes an OPEN optional parameter's value field into a
// typed Parameter.
type ParameterCtor func(typ uint8, value []byte) (Parameter, error)

// NLRICtor decodes one NLRI entry from r, advancing the cursor past
// exactly the bytes that entry occupies.
type NLRICtor func(r *stream.Reader) (NLRI, error)

// Decoder is the registry-driven BGP message decoder described in
// spec.md §4.1. It holds four tag->constructor maps plus an
// (AFI,SAFI)->NLRICtor map; registration replaces any existing entry
// for the same tag.
type Decoder struct {
	messageCtors map[bgp.MessageType]MessageCtor
	attrCtors    map[uint8]PathAttributeCtor
	capCtors     map[uint8]CapabilityCtor
	paramCtors   map[uint8]ParameterCtor
	nlriCtors    map[bgp.Proto]NLRICtor
}

// NewDecoder creates an empty registry with no constructors bound.
func NewDecoder() *Decoder {
	return &Decoder{
		messageCtors: map[bgp.MessageType]MessageCtor{},
		attrCtors:    map[uint8]PathAttributeCtor{},
		capCtors:     map[uint8]CapabilityCtor{},
		paramCtors:   map[uint8]ParameterCtor{},
		nlriCtors:    map[bgp.Proto]NLRICtor{},
	}
}

// RegisterMessage binds t to ctor, replacing any previous binding.
func (d *Decoder) RegisterMessage(t bgp.MessageType, ctor MessageCtor) {
	d.messageCtors[t] = ctor
}

// RegisterAttribute binds the path-attribute type code to ctor.
func (d *Decoder) RegisterAttribute(typ uint8, ctor PathAttributeCtor) {
	d.attrCtors[typ] = ctor
}

// RegisterCapability binds the capability code to ctor.
func (d *Decoder) RegisterCapability(code uint8, ctor CapabilityCtor) {
	d.capCtors[code] = ctor
}

// RegisterParameter binds the OPEN parameter type to ctor.
func (d *Decoder) RegisterParameter(typ uint8, ctor ParameterCtor) {
	d.paramCtors[typ] = ctor
}

// RegisterNLRI binds the (AFI,SAFI) pair to ctor.
func (d *Decoder) RegisterNLRI(p bgp.Proto, ctor NLRICtor) {
	d.nlriCtors[p] = ctor
}

// NLRIDecoderFor returns the registered NLRI constructor for p, and
// whether one is registered.
func (d *Decoder) NLRIDecoderFor(p bgp.Proto) (NLRICtor, bool) {
	ctor, ok := d.nlriCtors[p]
	return ctor, ok
}

// clone makes a shallow copy of d's maps so a derived decoder
// (decoder_for) can override entries without mutating the base.
func (d *Decoder) clone() *Decoder {
	c := NewDecoder()
	for k, v := range d.messageCtors {
		c.messageCtors[k] = v
	}
	for k, v := range d.attrCtors {
		c.attrCtors[k] = v
	}
	for k, v := range d.capCtors {
		c.capCtors[k] = v
	}
	for k, v := range d.paramCtors {
		c.paramCtors[k] = v
	}
	for k, v := range d.nlriCtors {
		c.nlriCtors[k] = v
	}
	return c
}

// Default builds the decoder used before capability negotiation:
// two-octet ASPath/Aggregator, and the generic IPNLRI decoder for
// (IPv4|IPv6, unicast|multicast).
func Default() *Decoder {
	d := NewDecoder()
	d.RegisterMessage(bgp.MessageTypeOpen, decodeOpenMessage(d))
	d.RegisterMessage(bgp.MessageTypeUpdate, decodeUpdateMessage(d))
	d.RegisterMessage(bgp.MessageTypeNotification, decodeNotificationMessage)
	d.RegisterMessage(bgp.MessageTypeKeepalive, decodeKeepaliveMessage)
	d.RegisterMessage(bgp.MessageTypeRouteRefresh, decodeRouteRefreshMessage)

	d.RegisterParameter(ParamTypeCapability, decodeCapabilityParameter(d))

	d.RegisterCapability(CapMultiprotocol, decodeMultiprotocolCapability)
	d.RegisterCapability(CapRouteRefresh, decodeRouteRefreshCapability)
	d.RegisterCapability(CapGracefulRestart, decodeGracefulRestartCapability)
	d.RegisterCapability(CapFourOctetASN, decodeFourOctetASNCapability)
	d.RegisterCapability(CapAddPath, decodeAddPathCapability)

	d.RegisterAttribute(AttrOrigin, decodeOriginAttribute)
	d.RegisterAttribute(AttrASPath, decodeASPathAttribute(false))
	d.RegisterAttribute(AttrNextHop, decodeNextHopAttribute)
	d.RegisterAttribute(AttrMultiExitDisc, decodeMultiExitDiscAttribute)
	d.RegisterAttribute(AttrLocalPref, decodeLocalPrefAttribute)
	d.RegisterAttribute(AttrAtomicAggregate, decodeAtomicAggregateAttribute)
	d.RegisterAttribute(AttrAggregator, decodeAggregatorAttribute(false))
	d.RegisterAttribute(AttrCommunities, decodeCommunitiesAttribute)
	d.RegisterAttribute(AttrMPReachNLRI, decodeMPReachAttribute(d))
	d.RegisterAttribute(AttrMPUnreachNLRI, decodeMPUnreachAttribute(d))
	d.RegisterAttribute(AttrAS4Path, decodeASPathAttribute(true))
	d.RegisterAttribute(AttrAggregator4, decodeAggregatorAttribute(true))
	d.RegisterAttribute(AttrLargeCommunities, decodeLargeCommunitiesAttribute)
	d.RegisterAttribute(AttrExtendedCommunities, decodeOpaqueAttribute)

	for _, afi := range []bgp.AFI{bgp.AFIIPv4, bgp.AFIIPv6} {
		for _, safi := range []bgp.SAFI{bgp.SAFIUnicast, bgp.SAFIMulticast} {
			d.RegisterNLRI(bgp.Proto{AFI: afi, SAFI: safi}, decodeIPNLRI(afi))
		}
	}
	return d
}

// DefaultASN4 is Default with ASPath/Aggregator overridden to their
// four-octet variants, used as the base registry once FourOctetASN is
// known to be in effect for both sides without waiting for full
// negotiation (e.g. constructing a from-scratch outbound decoder).
func DefaultASN4() *Decoder {
	d := Default()
	d.RegisterAttribute(AttrASPath, decodeASPathAttribute(true))
	d.RegisterAttribute(AttrAggregator, decodeAggregatorAttribute(true))
	return d
}

// DecoderFor produces a session-bound decoder from the base registry and
// the negotiated common capabilities, per spec.md §4.1:
//
//   - if FourOctetASNCapability is present, install AS4Path/Aggregator4
//     in place of the two-octet ASPath/Aggregator;
//   - for each AddPathCapability tuple (AFI,SAFI,sendReceive) where the
//     peer will send us path-ids (sendReceive&1 != 0) and (AFI,SAFI) is
//     an IP family, install AddPathIPNLRI for that family.
func DecoderFor(capabilities []Capability, base *Decoder) *Decoder {
	d := base.clone()
	for _, c := range capabilities {
		switch cap := c.(type) {
		case *FourOctetASNCapability:
			d.RegisterAttribute(AttrASPath, decodeASPathAttribute(true))
			d.RegisterAttribute(AttrAggregator, decodeAggregatorAttribute(true))
		case *AddPathCapability:
			for _, t := range cap.Tuples {
				if t.SendReceive&1 == 0 {
					continue
				}
				proto := bgp.Proto{AFI: t.AFI, SAFI: t.SAFI}
				if !proto.IsIPUnicastOrMulticast() {
					continue
				}
				d.RegisterNLRI(proto, decodeAddPathIPNLRI(t.AFI))
			}
		}
	}
	return d
}
