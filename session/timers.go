package session

import (
	"math/rand"
	"time"
)

// 10.  BGP Timers

//    BGP employs five timers: ConnectRetryTimer, HoldTimer, KeepaliveTimer,
//    MinASOriginationIntervalTimer, and MinRouteAdvertisementIntervalTimer.
//    Two optional timers MAY be supported: DelayOpenTimer, IdleHoldTimer.

// DefaultConnectRetryTime is the suggested initial value for the
// connect-retry timer.
const DefaultConnectRetryTime = 120 * time.Second

// DefaultHoldTime is the suggested initial value for the hold timer.
const DefaultHoldTime = 90 * time.Second

// DefaultLargeHoldTime guards OPEN_SENT/OPEN_CONFIRM before a hold time
// has been negotiated with the peer.
const DefaultLargeHoldTime = 4 * time.Minute

// DefaultKeepaliveTime is the suggested initial value for the keepalive
// timer: one third of DefaultHoldTime.
const DefaultKeepaliveTime = DefaultHoldTime / 3

// To minimize the likelihood that the distribution of BGP messages by a
// given BGP speaker will contain peaks, jitter SHOULD be applied to the
// timers associated with KeepaliveTimer and ConnectRetryTimer. The
// suggested default amount of jitter SHALL be determined by multiplying
// the base value of the appropriate timer by a random factor, uniformly
// distributed in the range from 0.75 to 1.0.
func jitter(base time.Duration) time.Duration {
	factor := rand.Float64()/4.0 + 0.75
	return time.Duration(float64(base) * factor)
}

// keepaliveInterval derives the keepalive timer's period from the
// negotiated hold time, per RFC 4271 §10: one third of hold_time,
// jittered. A hold time of zero disables both timers.
func keepaliveInterval(holdTime time.Duration) time.Duration {
	return jitter(holdTime / 3)
}
