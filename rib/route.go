// Package rib implements the Routing Information Base: a route and its
// convenience accessors (Route), and a (AFI,SAFI)-partitioned map of
// prefix tries supporting both a singleton Adj-RIB and a set-valued
// Loc-RIB where several peers may each hold a path to the same prefix.
package rib

import (
	"net"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/wire"
)

// Route pairs a destination (AFI, SAFI, NLRI) with the path attributes
// that describe how to reach it, and (optionally) the router that
// advertised it.
type Route struct {
	AFI          bgp.AFI
	SAFI         bgp.SAFI
	NLRI         wire.NLRI
	Attributes   []wire.PathAttribute
	SourceRouter bgp.Identifier
	HasSource    bool
}

// Proto is the (AFI, SAFI) pair this route belongs to.
func (r *Route) Proto() bgp.Proto {
	return bgp.Proto{AFI: r.AFI, SAFI: r.SAFI}
}

// Network reconstructs the full net.IPNet this route's NLRI refers to.
func (r *Route) Network() *net.IPNet {
	return wire.NLRINetwork(r.AFI, r.NLRI)
}

func (r *Route) attr(match func(wire.PathAttribute) bool) wire.PathAttribute {
	for _, a := range r.Attributes {
		if match(a) {
			return a
		}
	}
	return nil
}

// Aggregator returns the AGGREGATOR/AGGREGATOR4 attribute's (asn, ip),
// if present.
func (r *Route) Aggregator() (bgp.ASN4, net.IP, bool) {
	a := r.attr(func(a wire.PathAttribute) bool {
		_, ok := a.(*wire.AggregatorAttribute)
		return ok
	})
	if a == nil {
		return 0, nil, false
	}
	agg := a.(*wire.AggregatorAttribute)
	return agg.ASN, agg.IP, true
}

// AtomicAggregate reports whether the ATOMIC_AGGREGATE attribute is
// present.
func (r *Route) AtomicAggregate() bool {
	return r.attr(func(a wire.PathAttribute) bool {
		_, ok := a.(*wire.AtomicAggregateAttribute)
		return ok
	}) != nil
}

// Origin returns the ORIGIN attribute's value, if present.
func (r *Route) Origin() (uint8, bool) {
	a := r.attr(func(a wire.PathAttribute) bool {
		_, ok := a.(*wire.OriginAttribute)
		return ok
	})
	if a == nil {
		return 0, false
	}
	return a.(*wire.OriginAttribute).Origin, true
}

// MED returns the MULTI_EXIT_DISC attribute's value, if present.
func (r *Route) MED() (uint32, bool) {
	a := r.attr(func(a wire.PathAttribute) bool {
		_, ok := a.(*wire.MultiExitDiscAttribute)
		return ok
	})
	if a == nil {
		return 0, false
	}
	return a.(*wire.MultiExitDiscAttribute).MED, true
}

// IPPrefix returns the route's destination network when its NLRI is a
// plain IPNLRI.
func (r *Route) IPPrefix() (*net.IPNet, bool) {
	n, ok := r.NLRI.(*wire.IPNLRI)
	if !ok {
		return nil, false
	}
	return n.Net, true
}

// NextHop returns the route's next hop, preferring a MP_REACH_NLRI
// attribute's embedded next hop over a plain NEXT_HOP attribute.
func (r *Route) NextHop() (net.IP, bool) {
	if a := r.attr(func(a wire.PathAttribute) bool {
		_, ok := a.(*wire.MPReachAttribute)
		return ok
	}); a != nil {
		return a.(*wire.MPReachAttribute).NextHop, true
	}
	a := r.attr(func(a wire.PathAttribute) bool {
		_, ok := a.(*wire.NextHopAttribute)
		return ok
	})
	if a == nil {
		return nil, false
	}
	return a.(*wire.NextHopAttribute).NextHop, true
}

// LocalPref returns the LOCAL_PREF attribute's value, if present.
func (r *Route) LocalPref() (uint32, bool) {
	a := r.attr(func(a wire.PathAttribute) bool {
		_, ok := a.(*wire.LocalPrefAttribute)
		return ok
	})
	if a == nil {
		return 0, false
	}
	return a.(*wire.LocalPrefAttribute).LocalPref, true
}

// RouteAction distinguishes an announcement from a withdrawal when an
// UpdateMessage is decomposed into routes.
type RouteAction int

const (
	RouteActionAnnounce RouteAction = iota
	RouteActionWithdraw
)

// RouteEvent is one (action, route) pair produced by RoutesFromUpdate.
type RouteEvent struct {
	Action RouteAction
	Route  *Route
}

// Filter is a pure predicate deciding whether a route is admitted into
// the Loc-RIB, spec.md §6 ("Filter type: a pure predicate on Route").
type Filter func(*Route) bool

// AcceptAll is the Filter that admits every route.
func AcceptAll(*Route) bool { return true }

// RoutesFromUpdate decomposes an UPDATE message into its constituent
// route announcements and withdrawals, across both the top-level
// (IPv4 unicast) fields and any MP_REACH/MP_UNREACH attributes.
// Each MP attribute's own (AFI,SAFI) governs its routes, fixing the
// source's mpreach/mpunreach mixup for withdrawals.
func RoutesFromUpdate(update *wire.UpdateMessage) []RouteEvent {
	var plain []wire.PathAttribute
	var mpreachs []*wire.MPReachAttribute
	var mpunreachs []*wire.MPUnreachAttribute
	for _, a := range update.PathAttributes {
		switch attr := a.(type) {
		case *wire.MPReachAttribute:
			mpreachs = append(mpreachs, attr)
		case *wire.MPUnreachAttribute:
			mpunreachs = append(mpunreachs, attr)
		default:
			plain = append(plain, a)
		}
	}

	var events []RouteEvent
	for _, n := range update.NLRI {
		events = append(events, RouteEvent{
			Action: RouteActionAnnounce,
			Route:  &Route{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast, NLRI: n, Attributes: plain},
		})
	}
	for _, n := range update.Withdrawn {
		events = append(events, RouteEvent{
			Action: RouteActionWithdraw,
			Route:  &Route{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast, NLRI: n, Attributes: plain},
		})
	}
	for _, mpreach := range mpreachs {
		attrs := append(append([]wire.PathAttribute{}, plain...), mpreach)
		for _, n := range mpreach.NLRI {
			events = append(events, RouteEvent{
				Action: RouteActionAnnounce,
				Route:  &Route{AFI: mpreach.AFI, SAFI: mpreach.SAFI, NLRI: n, Attributes: attrs},
			})
		}
	}
	for _, mpunreach := range mpunreachs {
		attrs := append(append([]wire.PathAttribute{}, plain...), mpunreach)
		for _, n := range mpunreach.NLRI {
			events = append(events, RouteEvent{
				Action: RouteActionWithdraw,
				Route:  &Route{AFI: mpunreach.AFI, SAFI: mpunreach.SAFI, NLRI: n, Attributes: attrs},
			})
		}
	}
	return events
}
