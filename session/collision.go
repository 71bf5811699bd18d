package session

import "github.com/fritz0705/bgpkit/bgp"

// initiatorIdentifier returns the BGP Identifier of whichever side
// actively opened s's TCP connection: our own router-id if we dialed
// out, the peer's if we accepted (spec.md §4.4 §6.8).
func (s *Session) initiatorIdentifier() bgp.Identifier {
	if s.cfg.Initiator {
		return s.LocalRouterID
	}
	return s.PeerRouterID
}

// initiatorASN is initiatorIdentifier's ASN analogue, used as the
// tie-break.
func (s *Session) initiatorASN() bgp.ASN4 {
	if s.cfg.Initiator {
		return s.LocalASN
	}
	return s.PeerASN
}

// CollisionLoser implements RFC 4271 §6.8 collision resolution as
// spec.md §4.4 narrows it: of two sessions to the same peer where at
// least one has reached OPEN_CONFIRM or ESTABLISHED, the one whose
// initiator identifier is lower loses, ties broken by initiator ASN.
// Returns nil if neither session qualifies for resolution yet.
func CollisionLoser(a, b *Session) *Session {
	aReady := a.State() == StateOpenConfirm || a.State() == StateEstablished
	bReady := b.State() == StateOpenConfirm || b.State() == StateEstablished
	if !aReady && !bReady {
		return nil
	}

	aID, bID := a.initiatorIdentifier(), b.initiatorIdentifier()
	if aID != bID {
		if aID < bID {
			return a
		}
		return b
	}
	if a.initiatorASN() < b.initiatorASN() {
		return a
	}
	return b
}
