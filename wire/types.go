// Package wire implements the BGP-4 wire codec: bit-exact encoding and
// decoding of messages, path attributes, capabilities and NLRIs, driven
// by a registry that rebinds decoding based on negotiated capabilities
// (spec.md §4.1).
package wire

import (
	"github.com/fritz0705/bgpkit/bgp"
)

// Message is any decoded BGP PDU body (OPEN/UPDATE/NOTIFICATION/
// KEEPALIVE/ROUTE_REFRESH, or a generic fallback for unrecognized
// types). EncodeBody returns the message body only; Encode (below)
// wraps it with the 19-octet header.
type Message interface {
	Type() bgp.MessageType
	EncodeBody() []byte
}

// GenericMessage is the fallback for a message type with no registered
// constructor: the raw body is retained and re-emitted verbatim.
type GenericMessage struct {
	MsgType bgp.MessageType
	Raw     []byte
}

func (m *GenericMessage) Type() bgp.MessageType { return m.MsgType }
func (m *GenericMessage) EncodeBody() []byte     { return m.Raw }

// Parameter is an OPEN optional parameter (type, length, payload).
type Parameter interface {
	ParamType() uint8
	EncodeValue() []byte
}

// GenericParameter is the fallback for an unrecognized parameter type.
type GenericParameter struct {
	PType uint8
	Raw   []byte
}

func (p *GenericParameter) ParamType() uint8    { return p.PType }
func (p *GenericParameter) EncodeValue() []byte { return p.Raw }

// Capability is a BGP capability (RFC 5492) carried inside a
// CapabilityParameter.
type Capability interface {
	CapCode() uint8
	EncodeValue() []byte
}

// GenericCapability is the fallback for an unrecognized capability code;
// it survives encode/decode with its raw payload intact (spec.md §8,
// "An UnknownType capability survives encode/decode with its raw
// payload").
type GenericCapability struct {
	Code uint8
	Raw  []byte
}

func (c *GenericCapability) CapCode() uint8      { return c.Code }
func (c *GenericCapability) EncodeValue() []byte { return c.Raw }

// capabilitiesEqual implements the structural (encoded-bytes) equality
// spec.md §3 requires of Capability so that capability sets deduplicate
// correctly.
func capabilitiesEqual(a, b Capability) bool {
	if a.CapCode() != b.CapCode() {
		return false
	}
	av, bv := a.EncodeValue(), b.EncodeValue()
	if len(av) != len(bv) {
		return false
	}
	for i := range av {
		if av[i] != bv[i] {
			return false
		}
	}
	return true
}

// capabilityKey returns a comparable map key with the same equality as
// capabilitiesEqual, used to deduplicate and intersect capability sets.
func capabilityKey(c Capability) string {
	return string(append([]byte{c.CapCode()}, c.EncodeValue()...))
}

// PathAttribute flag bits, spec.md §3/§6.
const (
	AttrFlagOptional       uint8 = 0x80
	AttrFlagTransitive     uint8 = 0x40
	AttrFlagPartial        uint8 = 0x20
	AttrFlagExtendedLength uint8 = 0x10
)

// PathAttribute is a decoded BGP path attribute.
type PathAttribute interface {
	Flags() uint8
	AttrType() uint8
	EncodeValue() []byte
}

// GenericPathAttribute is the fallback for an unrecognized attribute
// type code; its raw value round-trips unchanged.
type GenericPathAttribute struct {
	AttrFlags uint8
	AttrCode  uint8
	Raw       []byte
}

func (a *GenericPathAttribute) Flags() uint8      { return a.AttrFlags }
func (a *GenericPathAttribute) AttrType() uint8    { return a.AttrCode }
func (a *GenericPathAttribute) EncodeValue() []byte { return a.Raw }

// NLRI is a length-prefixed IP prefix announced or withdrawn in an
// UPDATE message.
type NLRI interface {
	// PrefixLen is the number of significant bits, L.
	PrefixLen() int
	// PrefixBytes are the ⌈L/8⌉ packed address octets (after any
	// path-id, for AddPath variants).
	PrefixBytes() []byte
	// EncodeNLRI serializes the full NLRI, including any path-id and the
	// length octet.
	EncodeNLRI() []byte
}
