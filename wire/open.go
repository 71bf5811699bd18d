package wire

import (
	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// ParamTypeCapability is the OPEN optional parameter type that carries a
// CapabilityParameter.
const ParamTypeCapability uint8 = 2

// OpenMessage is the first message exchanged on a new session, spec.md
// §3/§6.
type OpenMessage struct {
	Version       bgp.Version
	ASN           bgp.ASN
	HoldTime      uint16
	BGPIdentifier bgp.Identifier
	Parameters    []Parameter
}

// EffectiveASN returns the FourOctetASNCapability value when present,
// otherwise the header ASN (spec.md §3, "The effective ASN is the
// FourOctetASNCapability value when present").
func (m *OpenMessage) EffectiveASN() bgp.ASN4 {
	for _, cap := range m.Capabilities() {
		if asn4, ok := cap.(*FourOctetASNCapability); ok {
			return asn4.ASN
		}
	}
	return bgp.ASN4(m.ASN)
}

// Capabilities flattens every CapabilityParameter's capability list.
func (m *OpenMessage) Capabilities() []Capability {
	var caps []Capability
	for _, p := range m.Parameters {
		if cp, ok := p.(*CapabilityParameter); ok {
			caps = append(caps, cp.Capabilities...)
		}
	}
	return caps
}

func (m *OpenMessage) Type() bgp.MessageType { return bgp.MessageTypeOpen }

func (m *OpenMessage) EncodeBody() []byte {
	params := stream.NewWriter()
	for _, p := range m.Parameters {
		value := p.EncodeValue()
		params.WriteByte(p.ParamType())
		params.WriteByte(byte(len(value)))
		params.Write(value)
	}

	w := stream.NewWriter()
	w.WriteByte(byte(m.Version))
	w.WriteUint16(uint16(m.ASN))
	w.WriteUint16(m.HoldTime)
	w.WriteUint32(uint32(m.BGPIdentifier))
	w.WriteByte(byte(params.Len()))
	w.Write(params.Bytes())
	return w.Bytes()
}

func decodeOpenMessage(d *Decoder) MessageCtor {
	return func(body []byte) (Message, error) {
		r := stream.NewReader(body)
		version, err := r.Byte()
		if err != nil {
			return nil, truncated("OPEN version")
		}
		asn, err := r.Uint16()
		if err != nil {
			return nil, truncated("OPEN asn")
		}
		holdTime, err := r.Uint16()
		if err != nil {
			return nil, truncated("OPEN hold-time")
		}
		id, err := r.Uint32()
		if err != nil {
			return nil, truncated("OPEN bgp-identifier")
		}
		optLen, err := r.Byte()
		if err != nil {
			return nil, truncated("OPEN opt-param-len")
		}
		optParams, err := r.Bytes(int(optLen))
		if err != nil {
			return nil, lengthMismatch("OPEN opt-params", int(optLen), r.Len())
		}

		params, err := decodeParameters(d, optParams)
		if err != nil {
			return nil, err
		}

		return &OpenMessage{
			Version:       bgp.Version(version),
			ASN:           bgp.ASN(asn),
			HoldTime:      holdTime,
			BGPIdentifier: bgp.Identifier(id),
			Parameters:    params,
		}, nil
	}
}

// decodeParameters decodes a sequence of <type, length, value> optional
// parameters. An empty input yields an empty (not nil) list, matching
// "Decoding an OPEN with opt_param_len == 0 yields an empty parameter
// list" (spec.md §8).
func decodeParameters(d *Decoder, raw []byte) ([]Parameter, error) {
	params := []Parameter{}
	r := stream.NewReader(raw)
	for r.Len() > 0 {
		typ, err := r.Byte()
		if err != nil {
			return nil, truncated("parameter type")
		}
		length, err := r.Byte()
		if err != nil {
			return nil, truncated("parameter length")
		}
		value, err := r.Bytes(int(length))
		if err != nil {
			return nil, lengthMismatch("parameter value", int(length), r.Len())
		}
		if ctor, ok := d.paramCtors[typ]; ok {
			p, err := ctor(typ, value)
			if err != nil {
				return nil, err
			}
			params = append(params, p)
		} else {
			params = append(params, &GenericParameter{PType: typ, Raw: append([]byte(nil), value...)})
		}
	}
	return params, nil
}

// CapabilityParameter is the OPEN optional parameter (type 2) that
// carries a list of negotiable capabilities (RFC 5492).
type CapabilityParameter struct {
	Capabilities []Capability
}

func (p *CapabilityParameter) ParamType() uint8 { return ParamTypeCapability }

func (p *CapabilityParameter) EncodeValue() []byte {
	w := stream.NewWriter()
	for _, c := range p.Capabilities {
		value := c.EncodeValue()
		w.WriteByte(c.CapCode())
		w.WriteByte(byte(len(value)))
		w.Write(value)
	}
	return w.Bytes()
}

func decodeCapabilityParameter(d *Decoder) ParameterCtor {
	return func(typ uint8, value []byte) (Parameter, error) {
		r := stream.NewReader(value)
		var caps []Capability
		for r.Len() > 0 {
			code, err := r.Byte()
			if err != nil {
				return nil, truncated("capability code")
			}
			length, err := r.Byte()
			if err != nil {
				return nil, truncated("capability length")
			}
			capValue, err := r.Bytes(int(length))
			if err != nil {
				return nil, lengthMismatch("capability value", int(length), r.Len())
			}
			if ctor, ok := d.capCtors[code]; ok {
				c, err := ctor(code, capValue)
				if err != nil {
					return nil, err
				}
				caps = append(caps, c)
			} else {
				caps = append(caps, &GenericCapability{Code: code, Raw: append([]byte(nil), capValue...)})
			}
		}
		return &CapabilityParameter{Capabilities: caps}, nil
	}
}
