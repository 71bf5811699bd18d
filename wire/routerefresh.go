package wire

import (
	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// RouteRefreshMessage asks the peer to re-send its Adj-RIB-Out for a
// given (AFI,SAFI), RFC 2918.
type RouteRefreshMessage struct {
	AFI     bgp.AFI
	Subtype uint8
	SAFI    bgp.SAFI
}

func (m *RouteRefreshMessage) Type() bgp.MessageType { return bgp.MessageTypeRouteRefresh }

func (m *RouteRefreshMessage) EncodeBody() []byte {
	w := stream.NewWriter()
	w.WriteUint16(uint16(m.AFI))
	w.WriteByte(m.Subtype)
	w.WriteByte(byte(m.SAFI))
	return w.Bytes()
}

func decodeRouteRefreshMessage(body []byte) (Message, error) {
	r := stream.NewReader(body)
	afi, err := r.Uint16()
	if err != nil {
		return nil, truncated("ROUTE_REFRESH afi")
	}
	subtype, err := r.Byte()
	if err != nil {
		return nil, truncated("ROUTE_REFRESH subtype")
	}
	safi, err := r.Byte()
	if err != nil {
		return nil, truncated("ROUTE_REFRESH safi")
	}
	return &RouteRefreshMessage{AFI: bgp.AFI(afi), Subtype: subtype, SAFI: bgp.SAFI(safi)}, nil
}
