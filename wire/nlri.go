package wire

import (
	"net"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// addrLen returns the full address length in octets for afi (4 or 16),
// defaulting to 4 for anything that isn't IPv6.
func addrLen(afi bgp.AFI) int {
	if afi == bgp.AFIIPv6 {
		return 16
	}
	return 4
}

// packPrefix packs the first prefixLen bits of ip into ⌈prefixLen/8⌉
// octets, spec.md §4.1/§6.
func packPrefix(prefixLen int, ip net.IP) []byte {
	n := (prefixLen + 7) / 8
	full := ip.To4()
	if full == nil {
		full = ip.To16()
	}
	if n > len(full) {
		n = len(full)
	}
	return append([]byte(nil), full[:n]...)
}

// unpackPrefix materializes an IPNetwork from a declared prefix length
// and the ⌈prefixLen/8⌉ octets that were read off the wire. Per
// spec.md §4.1, "An IPv4 prefix packed into fewer than 4 octets is
// right-padded with zeros when materialized as an IPNetwork"; the same
// applies to IPv6 at 16 octets. A prefix length of 0 consumes 0 address
// bytes.
func unpackPrefix(afi bgp.AFI, prefixLen int, packed []byte) *net.IPNet {
	full := make([]byte, addrLen(afi))
	copy(full, packed)
	return &net.IPNet{
		IP:   net.IP(full),
		Mask: net.CIDRMask(prefixLen, len(full)*8),
	}
}

// IPNLRI is a plain IP-prefix NLRI: the default decoder for (IPv4|IPv6,
// unicast|multicast).
type IPNLRI struct {
	AFI int // not wire-encoded; the decoders leave it zero and no method reads it
	Net *net.IPNet
}

func (n *IPNLRI) PrefixLen() int {
	ones, _ := n.Net.Mask.Size()
	return ones
}

func (n *IPNLRI) PrefixBytes() []byte {
	return packPrefix(n.PrefixLen(), n.Net.IP)
}

func (n *IPNLRI) EncodeNLRI() []byte {
	w := stream.NewWriter()
	w.WriteByte(byte(n.PrefixLen()))
	w.Write(n.PrefixBytes())
	return w.Bytes()
}

func decodeIPNLRI(afi bgp.AFI) NLRICtor {
	return func(r *stream.Reader) (NLRI, error) {
		length, err := r.Byte()
		if err != nil {
			return nil, truncated("NLRI prefix length")
		}
		n := (int(length) + 7) / 8
		packed, err := r.Bytes(n)
		if err != nil {
			return nil, lengthMismatch("NLRI prefix bytes", n, r.Len())
		}
		return &IPNLRI{Net: unpackPrefix(afi, int(length), packed)}, nil
	}
}

// AddPathIPNLRI prepends a 4-octet path identifier to an IP prefix NLRI
// (RFC 7911).
type AddPathIPNLRI struct {
	PathID uint32
	Net    *net.IPNet
}

func (n *AddPathIPNLRI) PrefixLen() int {
	ones, _ := n.Net.Mask.Size()
	return ones
}

func (n *AddPathIPNLRI) PrefixBytes() []byte {
	return packPrefix(n.PrefixLen(), n.Net.IP)
}

func (n *AddPathIPNLRI) EncodeNLRI() []byte {
	w := stream.NewWriter()
	w.WriteUint32(n.PathID)
	w.WriteByte(byte(n.PrefixLen()))
	w.Write(n.PrefixBytes())
	return w.Bytes()
}

func decodeAddPathIPNLRI(afi bgp.AFI) NLRICtor {
	return func(r *stream.Reader) (NLRI, error) {
		pathID, err := r.Uint32()
		if err != nil {
			return nil, truncated("AddPathIPNLRI path-id")
		}
		length, err := r.Byte()
		if err != nil {
			return nil, truncated("AddPathIPNLRI prefix length")
		}
		n := (int(length) + 7) / 8
		packed, err := r.Bytes(n)
		if err != nil {
			return nil, lengthMismatch("AddPathIPNLRI prefix bytes", n, r.Len())
		}
		return &AddPathIPNLRI{PathID: pathID, Net: unpackPrefix(afi, int(length), packed)}, nil
	}
}

// NLRINetwork reconstructs the full net.IPNet for n under afi from its
// PrefixLen/PrefixBytes, regardless of whether n is a plain IPNLRI or
// carries a path-id (AddPathIPNLRI). Used by the RIB to key its tries.
func NLRINetwork(afi bgp.AFI, n NLRI) *net.IPNet {
	return unpackPrefix(afi, n.PrefixLen(), n.PrefixBytes())
}

// decodeNLRIList decodes a sequence of NLRI entries until r is
// exhausted, using ctor, which must be non-nil; when no decoder is
// registered for the relevant (AFI,SAFI) the caller does not call this
// and keeps the raw bytes instead (spec.md §4.1's two-phase decode).
func decodeNLRIList(ctor NLRICtor, r *stream.Reader) ([]NLRI, error) {
	var list []NLRI
	for r.Len() > 0 {
		n, err := ctor(r)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, nil
}
