package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

func mustDecode(t *testing.T, d *Decoder, raw []byte) Message {
	t.Helper()
	m, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return m
}

// Scenario 1: KEEPALIVE round-trip.
func TestKeepaliveRoundTrip(t *testing.T) {
	raw := append(bgp.Marker(), 0x00, 0x13, 0x04)
	d := Default()
	m := mustDecode(t, d, raw)
	if _, ok := m.(*KeepaliveMessage); !ok {
		t.Fatalf("got %T, want *KeepaliveMessage", m)
	}
	got := Encode(m)
	if !bytes.Equal(got, raw) {
		t.Fatalf("Encode = % X, want % X", got, raw)
	}
}

// Scenario 2: OPEN, ASN 65000, hold=180, router-id 192.0.2.1, one
// CapabilityParameter (MultiprotocolCapability IPv4/unicast).
func TestOpenRoundTripConcreteScenario(t *testing.T) {
	body := []byte{
		0x04,       // version
		0xFD, 0xE8, // asn = 65000
		0x00, 0xB4, // hold-time = 180
		0xC0, 0x00, 0x02, 0x01, // bgp-identifier = 192.0.2.1
		0x08,                   // opt-param-len
		0x02, 0x06, // param type=2 (capability), len=6
		0x01, 0x04, 0x00, 0x01, 0x00, 0x01, // MultiprotocolCapability(IPv4, unicast)
	}

	total := bgp.HeaderLength + len(body)
	raw := append(bgp.Marker(), byte(total>>8), byte(total), 0x01)
	raw = append(raw, body...)

	d := Default()
	m := mustDecode(t, d, raw)
	open, ok := m.(*OpenMessage)
	if !ok {
		t.Fatalf("got %T, want *OpenMessage", m)
	}
	if open.ASN != 65000 || open.HoldTime != 180 || open.BGPIdentifier != bgp.NewIdentifier(net.ParseIP("192.0.2.1")) {
		t.Fatalf("unexpected OpenMessage: %+v", open)
	}
	caps := open.Capabilities()
	if len(caps) != 1 {
		t.Fatalf("got %d capabilities, want 1", len(caps))
	}
	mp, ok := caps[0].(*MultiprotocolCapability)
	if !ok || mp.AFI != bgp.AFIIPv4 || mp.SAFI != bgp.SAFIUnicast {
		t.Fatalf("unexpected capability: %+v", caps[0])
	}

	got := Encode(m)
	if !bytes.Equal(got, raw) {
		t.Fatalf("Encode = % X, want % X", got, raw)
	}
}

// Scenario 3: UPDATE with top-level NLRI 10.0.0.0/8.
func TestUpdateTopLevelNLRI(t *testing.T) {
	body := []byte{
		0x00, 0x00, // withdrawn-routes-length
		0x00, 0x00, // total-path-attribute-length
		0x08, 0x0A, // NLRI: /8, 0x0A
	}
	raw := append(bgp.Marker(), 0x00, byte(bgp.HeaderLength+len(body)), 0x02)
	raw = append(raw, body...)

	d := Default()
	m := mustDecode(t, d, raw)
	upd, ok := m.(*UpdateMessage)
	if !ok {
		t.Fatalf("got %T, want *UpdateMessage", m)
	}
	if len(upd.Withdrawn) != 0 {
		t.Fatalf("got %d withdrawn, want 0", len(upd.Withdrawn))
	}
	if len(upd.NLRI) != 1 {
		t.Fatalf("got %d nlri, want 1", len(upd.NLRI))
	}
	n, ok := upd.NLRI[0].(*IPNLRI)
	if !ok {
		t.Fatalf("got %T, want *IPNLRI", upd.NLRI[0])
	}
	if n.PrefixLen() != 8 || !bytes.Equal(n.PrefixBytes(), []byte{0x0A}) {
		t.Fatalf("unexpected nlri: prefixlen=%d bytes=% X", n.PrefixLen(), n.PrefixBytes())
	}

	got := Encode(m)
	if !bytes.Equal(got, raw) {
		t.Fatalf("Encode = % X, want % X", got, raw)
	}
}

// Scenario 4: AddPathIPNLRI of path-id 7, prefix 192.168.0.0/16.
func TestAddPathIPNLRIRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, 0x07, 0x10, 0xC0, 0xA8}
	ctor := decodeAddPathIPNLRI(bgp.AFIIPv4)

	d := Default()
	d.RegisterNLRI(bgp.Proto{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast}, ctor)

	n, err := ctor(stream.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ap, ok := n.(*AddPathIPNLRI)
	if !ok {
		t.Fatalf("got %T, want *AddPathIPNLRI", n)
	}
	if ap.PathID != 7 || ap.PrefixLen() != 16 || !bytes.Equal(ap.PrefixBytes(), []byte{0xC0, 0xA8}) {
		t.Fatalf("unexpected AddPathIPNLRI: %+v", ap)
	}
	if got := ap.EncodeNLRI(); !bytes.Equal(got, raw) {
		t.Fatalf("EncodeNLRI = % X, want % X", got, raw)
	}
}

// Scenario 6: four-octet ASN negotiation: AS_PATH rebinds to AS4_PATH
// once FourOctetASNCapability is negotiated.
func TestFourOctetASNNegotiationRebindsASPath(t *testing.T) {
	cap := &FourOctetASNCapability{ASN: 65537}
	d := DecoderFor([]Capability{cap}, Default())

	seg := ASPathSegment{Type: ASPathSequence, ASNs: []bgp.ASN4{65537, 65538}}
	attrValue := (&ASPathAttribute{AttrCode: AttrAS4Path, Segments: []ASPathSegment{seg}, FourOctet: true}).EncodeValue()

	ctor, ok := d.attrCtors[AttrASPath]
	if !ok {
		t.Fatalf("AS_PATH constructor not registered")
	}
	a, err := ctor(AttrFlagTransitive, AttrASPath, attrValue)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	asPath, ok := a.(*ASPathAttribute)
	if !ok {
		t.Fatalf("got %T, want *ASPathAttribute", a)
	}
	var got []bgp.ASN4
	asPath.Walk(func(asn bgp.ASN4) { got = append(got, asn) })
	if len(got) != 2 || got[0] != 65537 || got[1] != 65538 {
		t.Fatalf("Walk produced %v, want [65537 65538]", got)
	}
}

// Codec boundary: EXTENDED_LENGTH is set when a value exceeds 255 octets
// and honored on decode.
func TestExtendedLengthAttribute(t *testing.T) {
	communities := make([]uint32, 100) // 400 octets > 255
	for i := range communities {
		communities[i] = uint32(i)
	}
	attr := &CommunitiesAttribute{Communities: communities}
	encoded := encodeAttribute(attr)
	if encoded[0]&AttrFlagExtendedLength == 0 {
		t.Fatalf("expected EXTENDED_LENGTH flag set")
	}

	d := Default()
	decoded, err := decodeAttributes(d, encoded)
	if err != nil {
		t.Fatalf("decodeAttributes: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("got %d attributes, want 1", len(decoded))
	}
	got, ok := decoded[0].(*CommunitiesAttribute)
	if !ok || len(got.Communities) != 100 {
		t.Fatalf("unexpected decode result: %+v", decoded[0])
	}
}

// Codec boundary: opt_param_len == 0 yields an empty, non-nil parameter
// list.
func TestEmptyOptParams(t *testing.T) {
	d := Default()
	params, err := decodeParameters(d, nil)
	if err != nil {
		t.Fatalf("decodeParameters: %v", err)
	}
	if params == nil || len(params) != 0 {
		t.Fatalf("got %v, want empty non-nil slice", params)
	}
}

// Codec boundary: an unknown capability round-trips with its raw
// payload.
func TestUnknownCapabilityRoundTrip(t *testing.T) {
	d := Default()
	param := &CapabilityParameter{Capabilities: []Capability{
		&GenericCapability{Code: 200, Raw: []byte{0xAB, 0xCD}},
	}}
	encoded := param.EncodeValue()

	ctor := decodeCapabilityParameter(d)
	decoded, err := ctor(ParamTypeCapability, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cp, ok := decoded.(*CapabilityParameter)
	if !ok || len(cp.Capabilities) != 1 {
		t.Fatalf("unexpected decode result: %+v", decoded)
	}
	gc, ok := cp.Capabilities[0].(*GenericCapability)
	if !ok || gc.Code != 200 || !bytes.Equal(gc.Raw, []byte{0xAB, 0xCD}) {
		t.Fatalf("unexpected capability: %+v", cp.Capabilities[0])
	}
}

// MP_REACH_NLRI / MP_UNREACH_NLRI round-trip including deferred decode
// when no NLRI constructor is registered for the (AFI,SAFI).
func TestMPReachUnreachRoundTrip(t *testing.T) {
	d := Default()
	nh := net.ParseIP("2001:db8::1")
	_, ipnet, _ := net.ParseCIDR("2001:db8::/32")
	reach := &MPReachAttribute{
		AFI:     bgp.AFIIPv6,
		SAFI:    bgp.SAFIUnicast,
		NextHop: nh,
		NLRI:    []NLRI{&IPNLRI{Net: ipnet}},
	}
	encoded := reach.EncodeValue()

	ctor := decodeMPReachAttribute(d)
	decoded, err := ctor(AttrFlagOptional, AttrMPReachNLRI, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(*MPReachAttribute)
	if !ok {
		t.Fatalf("got %T, want *MPReachAttribute", decoded)
	}
	if got.AFI != bgp.AFIIPv6 || got.SAFI != bgp.SAFIUnicast {
		t.Fatalf("unexpected afi/safi: %+v", got)
	}
	if len(got.NLRI) != 1 {
		t.Fatalf("got %d nlri, want 1 (should have decoded via the default IPv6 unicast ctor)", len(got.NLRI))
	}

	// An (AFI,SAFI) with no registered ctor defers to raw bytes and
	// round-trips them verbatim.
	unreach := &MPUnreachAttribute{AFI: bgp.AFIBGPLS, SAFI: bgp.SAFIBGPLS, NLRIRaw: []byte{0x01, 0x02, 0x03}}
	uEncoded := unreach.EncodeValue()
	uCtor := decodeMPUnreachAttribute(d)
	uDecoded, err := uCtor(AttrFlagOptional, AttrMPUnreachNLRI, uEncoded)
	if err != nil {
		t.Fatalf("decode unreach: %v", err)
	}
	uGot, ok := uDecoded.(*MPUnreachAttribute)
	if !ok {
		t.Fatalf("got %T, want *MPUnreachAttribute", uDecoded)
	}
	if uGot.NLRI != nil {
		t.Fatalf("expected NLRI to remain nil (deferred), got %v", uGot.NLRI)
	}
	if !bytes.Equal(uGot.NLRIRaw, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("NLRIRaw = % X, want 01 02 03", uGot.NLRIRaw)
	}
	if !bytes.Equal(uGot.EncodeValue(), uEncoded) {
		t.Fatalf("re-encode of deferred attribute did not round-trip")
	}
}

func TestHasFullMessageAndMessageLength(t *testing.T) {
	raw := append(bgp.Marker(), 0x00, 0x13, 0x04)
	if !HasFullMessage(raw) {
		t.Fatalf("expected HasFullMessage to be true for a complete KEEPALIVE")
	}
	if MessageLength(raw) != 19 {
		t.Fatalf("MessageLength = %d, want 19", MessageLength(raw))
	}
	if HasFullMessage(raw[:10]) {
		t.Fatalf("expected HasFullMessage to be false for a partial header")
	}
	if HasFullMessage(raw[:18]) {
		t.Fatalf("expected HasFullMessage to be false for a header missing its type octet")
	}
}
