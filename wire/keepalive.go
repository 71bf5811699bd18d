package wire

import "github.com/fritz0705/bgpkit/bgp"

// KeepaliveMessage carries no body; its presence on the wire is the
// entire message.
type KeepaliveMessage struct{}

func (m *KeepaliveMessage) Type() bgp.MessageType { return bgp.MessageTypeKeepalive }
func (m *KeepaliveMessage) EncodeBody() []byte     { return nil }

func decodeKeepaliveMessage(body []byte) (Message, error) {
	if len(body) != 0 {
		return nil, lengthMismatch("KEEPALIVE body", 0, len(body))
	}
	return &KeepaliveMessage{}, nil
}
