package wire

import (
	"net"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// Path attribute type codes, spec.md §3.
const (
	AttrOrigin              uint8 = 1
	AttrASPath              uint8 = 2
	AttrNextHop             uint8 = 3
	AttrMultiExitDisc       uint8 = 4
	AttrLocalPref           uint8 = 5
	AttrAtomicAggregate     uint8 = 6
	AttrAggregator          uint8 = 7
	AttrCommunities         uint8 = 8
	AttrMPReachNLRI         uint8 = 14
	AttrMPUnreachNLRI       uint8 = 15
	AttrExtendedCommunities uint8 = 16
	AttrAS4Path             uint8 = 17
	AttrAggregator4         uint8 = 18
	AttrLargeCommunities    uint8 = 32
)

// decodeAttributes decodes the path-attributes field of an UPDATE
// message: a sequence of <flags, type, length, value> entries, coerced
// against d's attribute registry.
func decodeAttributes(d *Decoder, raw []byte) ([]PathAttribute, error) {
	attrs := []PathAttribute{}
	r := stream.NewReader(raw)
	for r.Len() > 0 {
		flags, err := r.Byte()
		if err != nil {
			return nil, truncated("attribute flags")
		}
		typ, err := r.Byte()
		if err != nil {
			return nil, truncated("attribute type")
		}
		var length int
		if flags&AttrFlagExtendedLength != 0 {
			l, err := r.Uint16()
			if err != nil {
				return nil, truncated("attribute extended length")
			}
			length = int(l)
		} else {
			l, err := r.Byte()
			if err != nil {
				return nil, truncated("attribute length")
			}
			length = int(l)
		}
		value, err := r.Bytes(length)
		if err != nil {
			return nil, lengthMismatch("attribute value", length, r.Len())
		}
		if ctor, ok := d.attrCtors[typ]; ok {
			a, err := ctor(flags, typ, value)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, a)
		} else {
			attrs = append(attrs, &GenericPathAttribute{AttrFlags: flags, AttrCode: typ, Raw: append([]byte(nil), value...)})
		}
	}
	return attrs, nil
}

// encodeAttribute serializes a single path attribute, setting
// EXTENDED_LENGTH and using a 2-octet length whenever the value exceeds
// 255 octets (spec.md §4.1/§8).
func encodeAttribute(a PathAttribute) []byte {
	value := a.EncodeValue()
	flags := a.Flags()
	w := stream.NewWriter()
	if len(value) > 255 {
		flags |= AttrFlagExtendedLength
	} else {
		flags &^= AttrFlagExtendedLength
	}
	w.WriteByte(flags)
	w.WriteByte(a.AttrType())
	if flags&AttrFlagExtendedLength != 0 {
		w.WriteUint16(uint16(len(value)))
	} else {
		w.WriteByte(byte(len(value)))
	}
	w.Write(value)
	return w.Bytes()
}

func encodeAttributes(attrs []PathAttribute) []byte {
	w := stream.NewWriter()
	for _, a := range attrs {
		w.Write(encodeAttribute(a))
	}
	return w.Bytes()
}

// OriginAttribute (type 1): IGP(0), EGP(1) or INCOMPLETE(2).
type OriginAttribute struct {
	Origin uint8
}

func (a *OriginAttribute) Flags() uint8       { return AttrFlagTransitive }
func (a *OriginAttribute) AttrType() uint8    { return AttrOrigin }
func (a *OriginAttribute) EncodeValue() []byte { return []byte{a.Origin} }

func decodeOriginAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	if len(value) != 1 {
		return nil, lengthMismatch("OriginAttribute", 1, len(value))
	}
	return &OriginAttribute{Origin: value[0]}, nil
}

// ASPathSegmentType distinguishes an unordered AS_SET from an ordered
// AS_SEQUENCE (spec.md §3).
type ASPathSegmentType uint8

const (
	ASPathSet      ASPathSegmentType = 1
	ASPathSequence ASPathSegmentType = 2
)

// ASPathSegment is one segment of an AS_PATH or AS4_PATH attribute. The
// ASNs are stored widened to ASN4 regardless of wire width so that
// two-octet and four-octet decoders produce comparable values.
type ASPathSegment struct {
	Type ASPathSegmentType
	ASNs []bgp.ASN4
}

// ASPathAttribute is AS_PATH (type 2, two-octet ASNs) or AS4_PATH (type
// 17, four-octet ASNs); FourOctet records which wire width produced it
// so Encode reproduces the same width.
type ASPathAttribute struct {
	AttrCode  uint8
	Segments  []ASPathSegment
	FourOctet bool
}

func (a *ASPathAttribute) Flags() uint8    { return AttrFlagTransitive }
func (a *ASPathAttribute) AttrType() uint8 { return a.AttrCode }

func (a *ASPathAttribute) EncodeValue() []byte {
	w := stream.NewWriter()
	for _, seg := range a.Segments {
		w.WriteByte(byte(seg.Type))
		w.WriteByte(byte(len(seg.ASNs)))
		for _, asn := range seg.ASNs {
			if a.FourOctet {
				w.WriteUint32(uint32(asn))
			} else {
				w.WriteUint16(uint16(asn))
			}
		}
	}
	return w.Bytes()
}

// Walk iterates every ASN across every segment in order, regardless of
// segment type — a convenience adapted from original_source's
// ASPathView (SPEC_FULL.md §10).
func (a *ASPathAttribute) Walk(f func(bgp.ASN4)) {
	for _, seg := range a.Segments {
		for _, asn := range seg.ASNs {
			f(asn)
		}
	}
}

func decodeASPathAttribute(fourOctet bool) PathAttributeCtor {
	code := AttrASPath
	if fourOctet {
		code = AttrAS4Path
	}
	return func(flags, typ uint8, value []byte) (PathAttribute, error) {
		r := stream.NewReader(value)
		a := &ASPathAttribute{AttrCode: code, FourOctet: fourOctet}
		for r.Len() > 0 {
			segType, err := r.Byte()
			if err != nil {
				return nil, truncated("ASPath segment type")
			}
			count, err := r.Byte()
			if err != nil {
				return nil, truncated("ASPath segment count")
			}
			seg := ASPathSegment{Type: ASPathSegmentType(segType)}
			for i := 0; i < int(count); i++ {
				if fourOctet {
					asn, err := r.Uint32()
					if err != nil {
						return nil, truncated("ASPath four-octet asn")
					}
					seg.ASNs = append(seg.ASNs, bgp.ASN4(asn))
				} else {
					asn, err := r.Uint16()
					if err != nil {
						return nil, truncated("ASPath two-octet asn")
					}
					seg.ASNs = append(seg.ASNs, bgp.ASN4(asn))
				}
			}
			a.Segments = append(a.Segments, seg)
		}
		return a, nil
	}
}

// NextHopAttribute (type 3).
type NextHopAttribute struct {
	NextHop net.IP
}

func (a *NextHopAttribute) Flags() uint8    { return AttrFlagTransitive }
func (a *NextHopAttribute) AttrType() uint8 { return AttrNextHop }

func (a *NextHopAttribute) EncodeValue() []byte {
	v4 := a.NextHop.To4()
	if v4 != nil {
		return []byte(v4)
	}
	return []byte(a.NextHop.To16())
}

func decodeNextHopAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	if len(value) != 4 && len(value) != 16 {
		return nil, lengthMismatch("NextHopAttribute", 4, len(value))
	}
	ip := make(net.IP, len(value))
	copy(ip, value)
	return &NextHopAttribute{NextHop: ip}, nil
}

// MultiExitDiscAttribute (type 4).
type MultiExitDiscAttribute struct {
	MED uint32
}

func (a *MultiExitDiscAttribute) Flags() uint8    { return AttrFlagOptional }
func (a *MultiExitDiscAttribute) AttrType() uint8 { return AttrMultiExitDisc }

func (a *MultiExitDiscAttribute) EncodeValue() []byte {
	w := stream.NewWriter()
	w.WriteUint32(a.MED)
	return w.Bytes()
}

func decodeMultiExitDiscAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	if len(value) != 4 {
		return nil, lengthMismatch("MultiExitDiscAttribute", 4, len(value))
	}
	r := stream.NewReader(value)
	med, _ := r.Uint32()
	return &MultiExitDiscAttribute{MED: med}, nil
}

// LocalPrefAttribute (type 5).
type LocalPrefAttribute struct {
	LocalPref uint32
}

func (a *LocalPrefAttribute) Flags() uint8    { return AttrFlagTransitive }
func (a *LocalPrefAttribute) AttrType() uint8 { return AttrLocalPref }

func (a *LocalPrefAttribute) EncodeValue() []byte {
	w := stream.NewWriter()
	w.WriteUint32(a.LocalPref)
	return w.Bytes()
}

func decodeLocalPrefAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	if len(value) != 4 {
		return nil, lengthMismatch("LocalPrefAttribute", 4, len(value))
	}
	r := stream.NewReader(value)
	lp, _ := r.Uint32()
	return &LocalPrefAttribute{LocalPref: lp}, nil
}

// AtomicAggregateAttribute (type 6) carries no value.
type AtomicAggregateAttribute struct{}

func (a *AtomicAggregateAttribute) Flags() uint8       { return AttrFlagTransitive }
func (a *AtomicAggregateAttribute) AttrType() uint8    { return AttrAtomicAggregate }
func (a *AtomicAggregateAttribute) EncodeValue() []byte { return nil }

func decodeAtomicAggregateAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	return &AtomicAggregateAttribute{}, nil
}

// AggregatorAttribute is AGGREGATOR (type 7, two-octet ASN) or
// AGGREGATOR4 (type 18, four-octet ASN).
type AggregatorAttribute struct {
	AttrCode  uint8
	ASN       bgp.ASN4
	IP        net.IP
	FourOctet bool
}

func (a *AggregatorAttribute) Flags() uint8    { return AttrFlagOptional | AttrFlagTransitive }
func (a *AggregatorAttribute) AttrType() uint8 { return a.AttrCode }

func (a *AggregatorAttribute) EncodeValue() []byte {
	w := stream.NewWriter()
	if a.FourOctet {
		w.WriteUint32(uint32(a.ASN))
	} else {
		w.WriteUint16(uint16(a.ASN))
	}
	v4 := a.IP.To4()
	if v4 == nil {
		v4 = make(net.IP, 4)
	}
	w.Write(v4)
	return w.Bytes()
}

func decodeAggregatorAttribute(fourOctet bool) PathAttributeCtor {
	code := AttrAggregator
	if fourOctet {
		code = AttrAggregator4
	}
	return func(flags, typ uint8, value []byte) (PathAttribute, error) {
		r := stream.NewReader(value)
		var asn uint32
		if fourOctet {
			v, err := r.Uint32()
			if err != nil {
				return nil, truncated("Aggregator4 asn")
			}
			asn = v
		} else {
			v, err := r.Uint16()
			if err != nil {
				return nil, truncated("Aggregator asn")
			}
			asn = uint32(v)
		}
		ipBytes, err := r.Bytes(4)
		if err != nil {
			return nil, truncated("Aggregator ip")
		}
		ip := make(net.IP, 4)
		copy(ip, ipBytes)
		return &AggregatorAttribute{AttrCode: code, ASN: bgp.ASN4(asn), IP: ip, FourOctet: fourOctet}, nil
	}
}

// CommunitiesAttribute (type 8) is a list of packed 32-bit community
// tags (RFC 1997).
type CommunitiesAttribute struct {
	Communities []uint32
}

func (a *CommunitiesAttribute) Flags() uint8    { return AttrFlagOptional | AttrFlagTransitive }
func (a *CommunitiesAttribute) AttrType() uint8 { return AttrCommunities }

func (a *CommunitiesAttribute) EncodeValue() []byte {
	w := stream.NewWriter()
	for _, c := range a.Communities {
		w.WriteUint32(c)
	}
	return w.Bytes()
}

func decodeCommunitiesAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	if len(value)%4 != 0 {
		return nil, lengthMismatch("CommunitiesAttribute", len(value)-(len(value)%4), len(value))
	}
	r := stream.NewReader(value)
	a := &CommunitiesAttribute{}
	for r.Len() > 0 {
		c, _ := r.Uint32()
		a.Communities = append(a.Communities, c)
	}
	return a, nil
}

// LargeCommunity is one (global, local1, local2) triple (RFC 8092).
type LargeCommunity struct {
	Global uint32
	Local1 uint32
	Local2 uint32
}

// LargeCommunitiesAttribute (type 32).
type LargeCommunitiesAttribute struct {
	Communities []LargeCommunity
}

func (a *LargeCommunitiesAttribute) Flags() uint8    { return AttrFlagOptional | AttrFlagTransitive }
func (a *LargeCommunitiesAttribute) AttrType() uint8 { return AttrLargeCommunities }

func (a *LargeCommunitiesAttribute) EncodeValue() []byte {
	w := stream.NewWriter()
	for _, c := range a.Communities {
		w.WriteUint32(c.Global)
		w.WriteUint32(c.Local1)
		w.WriteUint32(c.Local2)
	}
	return w.Bytes()
}

func decodeLargeCommunitiesAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	if len(value)%12 != 0 {
		return nil, lengthMismatch("LargeCommunitiesAttribute", len(value)-(len(value)%12), len(value))
	}
	r := stream.NewReader(value)
	a := &LargeCommunitiesAttribute{}
	for r.Len() > 0 {
		g, _ := r.Uint32()
		l1, _ := r.Uint32()
		l2, _ := r.Uint32()
		a.Communities = append(a.Communities, LargeCommunity{Global: g, Local1: l1, Local2: l2})
	}
	return a, nil
}

// decodeOpaqueAttribute retains an attribute's raw payload without
// interpreting it. Used for EXTENDED_COMMUNITIES (type 16), whose
// decoder the original Python source leaves stubbed
// (SPEC_FULL.md/spec.md §9: "implementers should retain it as opaque and
// round-trip the raw payload rather than drop it").
func decodeOpaqueAttribute(flags, typ uint8, value []byte) (PathAttribute, error) {
	return &GenericPathAttribute{AttrFlags: flags, AttrCode: typ, Raw: append([]byte(nil), value...)}, nil
}
