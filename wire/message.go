package wire

import (
	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// Encode produces RFC-compliant octets for m: the 16-octet marker, the
// recomputed 2-octet length, the 1-octet type, and m's body.
func Encode(m Message) []byte {
	body := m.EncodeBody()
	w := stream.NewWriter()
	w.Write(bgp.Marker())
	w.WriteUint16(uint16(bgp.HeaderLength + len(body)))
	w.WriteByte(byte(m.Type()))
	w.Write(body)
	return w.Bytes()
}

// Decode performs the three-pass decode of spec.md §4.1 against d's
// registries: base framing, type specialization, and (for OPEN/UPDATE)
// subfield coercion. raw must hold exactly one complete PDU, as
// determined by HasFullMessage.
func (d *Decoder) Decode(raw []byte) (Message, error) {
	if len(raw) < bgp.HeaderLength {
		return nil, truncated("message header")
	}
	declared := int(raw[16])<<8 | int(raw[17])
	if declared < bgp.HeaderLength {
		return nil, newDecodeError(ErrLengthMismatch, "wire: message length %d below minimum %d", declared, bgp.HeaderLength)
	}
	if len(raw) != declared {
		return nil, lengthMismatch("message", declared, len(raw))
	}
	typ := bgp.MessageType(raw[18])
	body := raw[bgp.HeaderLength:declared]

	ctor, ok := d.messageCtors[typ]
	if !ok {
		return &GenericMessage{MsgType: typ, Raw: append([]byte(nil), body...)}, nil
	}
	return ctor(body)
}
