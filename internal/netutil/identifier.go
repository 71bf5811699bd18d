// Package netutil provides the networking helpers the server package
// needs beyond the wire codec: deriving a default BGP identifier from
// the host's interfaces, and a longest-prefix-match table for resolving
// an inbound peer address to its configured session template.
package netutil

import (
	"encoding/binary"
	"fmt"
	"net"
)

// FindBGPIdentifier picks a default BGP Identifier from the host's
// configured interfaces: the first global-unicast IPv4 address found.
// The selection is arbitrary beyond that, matching the teacher's own
// disclaimer for this exact helper.
func FindBGPIdentifier() (uint32, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return 0, err
	}
	for _, iface := range ifs {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}
			v4 := ip.To4()
			if v4 == nil {
				continue
			}
			if ip.IsGlobalUnicast() {
				return binary.BigEndian.Uint32(v4), nil
			}
		}
	}
	return 0, fmt.Errorf("netutil: no valid BGP identifier found")
}

// Uint32ToIP converts a packed BGP Identifier back to a 4-octet net.IP.
func Uint32ToIP(i uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, i)
	return ip
}
