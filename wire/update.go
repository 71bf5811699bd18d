package wire

import (
	"net"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// topLevelProto is the (AFI,SAFI) implied by an UPDATE's top-level
// withdrawn/NLRI fields, per spec.md §4.4: "top-level NLRI (treated as
// IPv4 unicast)".
var topLevelProto = bgp.Proto{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast}

// UpdateMessage carries route announcements and withdrawals. Per
// spec.md §3/§4.1, NLRI decoding is deferred: if the decoder has no
// constructor bound for a given (AFI,SAFI) at decode time, the raw bytes
// are retained in the *Raw fields and re-emitted verbatim on encode;
// Resolve promotes raw bytes to typed NLRI once a decoder becomes
// available (idempotent).
type UpdateMessage struct {
	Withdrawn    []NLRI
	WithdrawnRaw []byte

	PathAttributes []PathAttribute

	NLRI    []NLRI
	NLRIRaw []byte
}

func (m *UpdateMessage) Type() bgp.MessageType { return bgp.MessageTypeUpdate }

func (m *UpdateMessage) EncodeBody() []byte {
	withdrawn := m.WithdrawnRaw
	if m.Withdrawn != nil {
		w := stream.NewWriter()
		for _, n := range m.Withdrawn {
			w.Write(n.EncodeNLRI())
		}
		withdrawn = w.Bytes()
	}
	attrs := encodeAttributes(m.PathAttributes)
	nlri := m.NLRIRaw
	if m.NLRI != nil {
		w := stream.NewWriter()
		for _, n := range m.NLRI {
			w.Write(n.EncodeNLRI())
		}
		nlri = w.Bytes()
	}

	w := stream.NewWriter()
	w.WriteUint16(uint16(len(withdrawn)))
	w.Write(withdrawn)
	w.WriteUint16(uint16(len(attrs)))
	w.Write(attrs)
	w.Write(nlri)
	return w.Bytes()
}

func decodeUpdateMessage(d *Decoder) MessageCtor {
	return func(body []byte) (Message, error) {
		r := stream.NewReader(body)

		withdrawnLen, err := r.Uint16()
		if err != nil {
			return nil, truncated("UPDATE withdrawn-routes-length")
		}
		withdrawnBytes, err := r.Bytes(int(withdrawnLen))
		if err != nil {
			return nil, lengthMismatch("UPDATE withdrawn routes", int(withdrawnLen), r.Len())
		}

		attrsLen, err := r.Uint16()
		if err != nil {
			return nil, truncated("UPDATE total-path-attribute-length")
		}
		attrsBytes, err := r.Bytes(int(attrsLen))
		if err != nil {
			return nil, lengthMismatch("UPDATE path attributes", int(attrsLen), r.Len())
		}
		attrs, err := decodeAttributes(d, attrsBytes)
		if err != nil {
			return nil, err
		}

		nlriBytes := r.Rest()

		m := &UpdateMessage{PathAttributes: attrs}

		if ctor, ok := d.NLRIDecoderFor(topLevelProto); ok {
			wr := stream.NewReader(withdrawnBytes)
			list, err := decodeNLRIList(ctor, wr)
			if err != nil {
				return nil, err
			}
			m.Withdrawn = list
			if m.Withdrawn == nil {
				m.Withdrawn = []NLRI{}
			}

			nr := stream.NewReader(nlriBytes)
			list, err = decodeNLRIList(ctor, nr)
			if err != nil {
				return nil, err
			}
			m.NLRI = list
			if m.NLRI == nil {
				m.NLRI = []NLRI{}
			}
		} else {
			m.WithdrawnRaw = append([]byte(nil), withdrawnBytes...)
			m.NLRIRaw = append([]byte(nil), nlriBytes...)
		}

		return m, nil
	}
}

// Resolve promotes any still-raw NLRI byte slices to typed NLRI using
// d's registry. It is a no-op (idempotent) once Withdrawn/NLRI are
// already typed, and likewise for every MPReachAttribute/
// MPUnreachAttribute carried in PathAttributes.
func (m *UpdateMessage) Resolve(d *Decoder) error {
	if m.Withdrawn == nil && m.WithdrawnRaw != nil {
		if ctor, ok := d.NLRIDecoderFor(topLevelProto); ok {
			list, err := decodeNLRIList(ctor, stream.NewReader(m.WithdrawnRaw))
			if err != nil {
				return err
			}
			m.Withdrawn = list
			m.WithdrawnRaw = nil
		}
	}
	if m.NLRI == nil && m.NLRIRaw != nil {
		if ctor, ok := d.NLRIDecoderFor(topLevelProto); ok {
			list, err := decodeNLRIList(ctor, stream.NewReader(m.NLRIRaw))
			if err != nil {
				return err
			}
			m.NLRI = list
			m.NLRIRaw = nil
		}
	}
	for _, a := range m.PathAttributes {
		switch attr := a.(type) {
		case *MPReachAttribute:
			if err := attr.resolve(d); err != nil {
				return err
			}
		case *MPUnreachAttribute:
			if err := attr.resolve(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// MPReachAttribute is MP_REACH_NLRI (type 14): announces NLRI for a
// protocol beyond plain IPv4 unicast, carrying its own next hop.
type MPReachAttribute struct {
	AFI     bgp.AFI
	SAFI    bgp.SAFI
	NextHop net.IP
	NLRI    []NLRI
	NLRIRaw []byte
}

func (a *MPReachAttribute) Flags() uint8    { return AttrFlagOptional }
func (a *MPReachAttribute) AttrType() uint8 { return AttrMPReachNLRI }

func (a *MPReachAttribute) EncodeValue() []byte {
	nhLen := 4
	nh := a.NextHop.To4()
	if nh == nil {
		nh = a.NextHop.To16()
		nhLen = 16
	}
	w := stream.NewWriter()
	w.WriteUint16(uint16(a.AFI))
	w.WriteByte(byte(a.SAFI))
	w.WriteByte(byte(nhLen))
	w.Write(nh)
	w.WriteByte(0) // reserved
	if a.NLRI != nil {
		for _, n := range a.NLRI {
			w.Write(n.EncodeNLRI())
		}
	} else {
		w.Write(a.NLRIRaw)
	}
	return w.Bytes()
}

func (a *MPReachAttribute) resolve(d *Decoder) error {
	if a.NLRI != nil || a.NLRIRaw == nil {
		return nil
	}
	ctor, ok := d.NLRIDecoderFor(bgp.Proto{AFI: a.AFI, SAFI: a.SAFI})
	if !ok {
		return nil
	}
	list, err := decodeNLRIList(ctor, stream.NewReader(a.NLRIRaw))
	if err != nil {
		return err
	}
	a.NLRI = list
	a.NLRIRaw = nil
	return nil
}

func decodeMPReachAttribute(d *Decoder) PathAttributeCtor {
	return func(flags, typ uint8, value []byte) (PathAttribute, error) {
		r := stream.NewReader(value)
		afi, err := r.Uint16()
		if err != nil {
			return nil, truncated("MP_REACH_NLRI afi")
		}
		safi, err := r.Byte()
		if err != nil {
			return nil, truncated("MP_REACH_NLRI safi")
		}
		nhLen, err := r.Byte()
		if err != nil {
			return nil, truncated("MP_REACH_NLRI next-hop-len")
		}
		nhBytes, err := r.Bytes(int(nhLen))
		if err != nil {
			return nil, lengthMismatch("MP_REACH_NLRI next-hop", int(nhLen), r.Len())
		}
		if _, err := r.Byte(); err != nil { // reserved
			return nil, truncated("MP_REACH_NLRI reserved")
		}

		a := &MPReachAttribute{
			AFI:     bgp.AFI(afi),
			SAFI:    bgp.SAFI(safi),
			NextHop: append(net.IP(nil), nhBytes...),
		}
		proto := bgp.Proto{AFI: a.AFI, SAFI: a.SAFI}
		if ctor, ok := d.NLRIDecoderFor(proto); ok {
			list, err := decodeNLRIList(ctor, r)
			if err != nil {
				return nil, err
			}
			a.NLRI = list
			if a.NLRI == nil {
				a.NLRI = []NLRI{}
			}
		} else {
			a.NLRIRaw = append([]byte(nil), r.Rest()...)
		}
		return a, nil
	}
}

// MPUnreachAttribute is MP_UNREACH_NLRI (type 15): withdraws NLRI for a
// protocol beyond plain IPv4 unicast.
type MPUnreachAttribute struct {
	AFI     bgp.AFI
	SAFI    bgp.SAFI
	NLRI    []NLRI
	NLRIRaw []byte
}

func (a *MPUnreachAttribute) Flags() uint8    { return AttrFlagOptional }
func (a *MPUnreachAttribute) AttrType() uint8 { return AttrMPUnreachNLRI }

func (a *MPUnreachAttribute) EncodeValue() []byte {
	w := stream.NewWriter()
	w.WriteUint16(uint16(a.AFI))
	w.WriteByte(byte(a.SAFI))
	if a.NLRI != nil {
		for _, n := range a.NLRI {
			w.Write(n.EncodeNLRI())
		}
	} else {
		w.Write(a.NLRIRaw)
	}
	return w.Bytes()
}

func (a *MPUnreachAttribute) resolve(d *Decoder) error {
	if a.NLRI != nil || a.NLRIRaw == nil {
		return nil
	}
	ctor, ok := d.NLRIDecoderFor(bgp.Proto{AFI: a.AFI, SAFI: a.SAFI})
	if !ok {
		return nil
	}
	list, err := decodeNLRIList(ctor, stream.NewReader(a.NLRIRaw))
	if err != nil {
		return err
	}
	a.NLRI = list
	a.NLRIRaw = nil
	return nil
}

func decodeMPUnreachAttribute(d *Decoder) PathAttributeCtor {
	return func(flags, typ uint8, value []byte) (PathAttribute, error) {
		r := stream.NewReader(value)
		afi, err := r.Uint16()
		if err != nil {
			return nil, truncated("MP_UNREACH_NLRI afi")
		}
		safi, err := r.Byte()
		if err != nil {
			return nil, truncated("MP_UNREACH_NLRI safi")
		}
		a := &MPUnreachAttribute{AFI: bgp.AFI(afi), SAFI: bgp.SAFI(safi)}
		proto := bgp.Proto{AFI: a.AFI, SAFI: a.SAFI}
		if ctor, ok := d.NLRIDecoderFor(proto); ok {
			list, err := decodeNLRIList(ctor, r)
			if err != nil {
				return nil, err
			}
			a.NLRI = list
			if a.NLRI == nil {
				a.NLRI = []NLRI{}
			}
		} else {
			a.NLRIRaw = append([]byte(nil), r.Rest()...)
		}
		return a, nil
	}
}
