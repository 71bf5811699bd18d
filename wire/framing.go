package wire

import "github.com/fritz0705/bgpkit/bgp"

// HasFullMessage reports whether buf contains at least one complete BGP
// PDU: its length must be at least the header size, the declared length
// must be at least bgp.HeaderLength, and buf must hold at least that
// many bytes.
func HasFullMessage(buf []byte) bool {
	if len(buf) < bgp.HeaderLength {
		return false
	}
	length := int(buf[16])<<8 | int(buf[17])
	if length < bgp.HeaderLength {
		return false
	}
	return len(buf) >= length
}

// MessageLength returns the declared total length of the PDU at the
// front of buf, or -1 if buf does not yet hold a full header.
func MessageLength(buf []byte) int {
	if len(buf) < bgp.HeaderLength {
		return -1
	}
	return int(buf[16])<<8 | int(buf[17])
}
