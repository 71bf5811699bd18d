package wire

import (
	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/stream"
)

// Notification error codes, RFC 4271 §4.5 / §6.
const (
	NotifyMessageHeaderError  uint8 = 1
	NotifyOpenMessageError    uint8 = 2
	NotifyUpdateMessageError  uint8 = 3
	NotifyHoldTimerExpired    uint8 = 4
	NotifyFSMError            uint8 = 5
	NotifyCease               uint8 = 6
)

// OPEN Message Error subcodes, RFC 4271 §6.2.
const (
	SubcodeUnsupportedVersionNumber uint8 = 1
	SubcodeBadPeerAS                uint8 = 2
	SubcodeBadBGPIdentifier         uint8 = 3
	SubcodeUnsupportedOptionalParam uint8 = 4
	SubcodeUnacceptableHoldTime     uint8 = 6
)

// UPDATE Message Error subcodes, RFC 4271 §6.3.
const (
	SubcodeMalformedAttributeList       uint8 = 1
	SubcodeUnrecognizedWellKnownAttr    uint8 = 2
	SubcodeMissingWellKnownAttr         uint8 = 3
	SubcodeAttributeFlagsError          uint8 = 4
	SubcodeAttributeLengthError         uint8 = 5
	SubcodeInvalidOriginAttribute       uint8 = 6
	SubcodeInvalidNextHopAttribute      uint8 = 8
	SubcodeOptionalAttributeError       uint8 = 9
	SubcodeInvalidNetworkField          uint8 = 10
	SubcodeMalformedASPath              uint8 = 11
)

// NotificationMessage signals a protocol error and precedes session
// teardown (spec.md §4.4, §7).
type NotificationMessage struct {
	ErrorCode    uint8
	ErrorSubcode uint8
	Data         []byte
}

// NewNotification builds a NotificationMessage with the given code,
// subcode and optional diagnostic data.
func NewNotification(code, subcode uint8, data []byte) *NotificationMessage {
	return &NotificationMessage{ErrorCode: code, ErrorSubcode: subcode, Data: data}
}

func (m *NotificationMessage) Type() bgp.MessageType { return bgp.MessageTypeNotification }

func (m *NotificationMessage) EncodeBody() []byte {
	w := stream.NewWriter()
	w.WriteByte(m.ErrorCode)
	w.WriteByte(m.ErrorSubcode)
	w.Write(m.Data)
	return w.Bytes()
}

func decodeNotificationMessage(body []byte) (Message, error) {
	if len(body) < 2 {
		return nil, truncated("NOTIFICATION body")
	}
	return &NotificationMessage{
		ErrorCode:    body[0],
		ErrorSubcode: body[1],
		Data:         append([]byte(nil), body[2:]...),
	}, nil
}
