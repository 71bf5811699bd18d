package netutil

import (
	"net"

	"github.com/armon/go-radix"
)

// PeerTable maps peer address prefixes to an arbitrary value (a peer
// session template), resolved by longest-prefix-match over an inbound
// connection's remote address, spec.md §4.5 ("peers: a trie mapping
// peer address -> BaseSession template"). Built on go-radix: network
// prefixes are encoded as their bits spelled out as a '0'/'1' string, so
// go-radix's own string-prefix LongestPrefix is exactly an IP
// longest-prefix-match.
type PeerTable struct {
	tree *radix.Tree
}

// NewPeerTable creates an empty table.
func NewPeerTable() *PeerTable {
	return &PeerTable{tree: radix.New()}
}

func bitstring(ip net.IP, ones int) string {
	bits := make([]byte, ones)
	for i := 0; i < ones; i++ {
		byteIdx, bitIdx := i/8, 7-uint(i%8)
		if ip[byteIdx]&(1<<bitIdx) != 0 {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}
	return string(bits)
}

func networkBits(n *net.IPNet) string {
	ones, _ := n.Mask.Size()
	ip := n.IP.To4()
	if ip == nil {
		ip = n.IP.To16()
	}
	return bitstring(ip, ones)
}

func addrBits(addr net.IP) string {
	if v4 := addr.To4(); v4 != nil {
		return bitstring(v4, 32)
	}
	return bitstring(addr.To16(), 128)
}

// Insert binds n to value, replacing any existing binding for the same
// network.
func (t *PeerTable) Insert(n *net.IPNet, value interface{}) {
	t.tree.Insert(networkBits(n), value)
}

// Delete removes n's binding, if any.
func (t *PeerTable) Delete(n *net.IPNet) {
	t.tree.Delete(networkBits(n))
}

// Lookup returns the value bound to the most specific network
// containing addr.
func (t *PeerTable) Lookup(addr net.IP) (interface{}, bool) {
	_, v, ok := t.tree.LongestPrefix(addrBits(addr))
	return v, ok
}

// Len returns the number of networks registered.
func (t *PeerTable) Len() int {
	return t.tree.Len()
}
