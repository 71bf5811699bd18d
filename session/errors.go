package session

import (
	"fmt"

	"github.com/fritz0705/bgpkit/wire"
)

// ProtocolError is a message that is illegal for the session's current
// state or violates a wire-level constraint; the session loop converts
// it into a NOTIFICATION and tears the session down (spec.md §7).
type ProtocolError struct {
	Code, Subcode uint8
	Reason        string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("session: protocol error %d/%d: %s", e.Code, e.Subcode, e.Reason)
}

// Notification builds the NOTIFICATION message that reports e.
func (e *ProtocolError) Notification() *wire.NotificationMessage {
	return wire.NewNotification(e.Code, e.Subcode, nil)
}

func newProtocolError(code, subcode uint8, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Subcode: subcode, Reason: fmt.Sprintf(format, args...)}
}

// errUnsupportedAFISAFI is raised when an UPDATE names a route whose
// (AFI,SAFI) was not negotiated between the two speakers (spec.md §4.4,
// §9: "an implementation should emit NOTIFICATION(Error=3, Subcode=9)
// for unsupported AFI/SAFI in UPDATE").
func errUnsupportedAFISAFI(proto fmt.Stringer) *ProtocolError {
	return newProtocolError(wire.NotifyUpdateMessageError, wire.SubcodeOptionalAttributeError,
		"route proto %s not in common_protocols", proto)
}

// TimerError reports hold-timer expiry (spec.md §7).
type TimerError struct{}

func (e *TimerError) Error() string { return "session: hold timer expired" }

func (e *TimerError) Notification() *wire.NotificationMessage {
	return wire.NewNotification(wire.NotifyHoldTimerExpired, 0, nil)
}

// CollisionError reports that this session lost collision resolution
// against a concurrent session to the same peer (spec.md §4.4 §6.8).
type CollisionError struct{}

func (e *CollisionError) Error() string { return "session: lost collision resolution" }

func (e *CollisionError) Notification() *wire.NotificationMessage {
	return wire.NewNotification(wire.NotifyCease, 0, nil)
}
