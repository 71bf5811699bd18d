package rib

// 3.2.  Routing Information Base

//    The Routing Information Base (RIB) within a BGP speaker consists of
//    three distinct parts: Adj-RIBs-In, Loc-RIB and Adj-RIBs-Out. This
//    package models all three as the same generic RIB[T], partitioned by
//    (AFI, SAFI) into independent prefix tries: a singleton RIB (T =
//    *Route) for Adj-RIB-In/Out, and a set-valued RIB (T = RouteSet) for
//    Loc-RIB, where a prefix may carry one competing path per peer.

import (
	"fmt"
	"net"
	"sync"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/trie"
)

// ErrUnsupportedProtocol is returned when an operation names an
// (AFI,SAFI) that has not been registered on the RIB.
var ErrUnsupportedProtocol = fmt.Errorf("rib: protocol not registered")

// RIB maps (AFI, SAFI, NLRI) to a value of type T via one independent
// trie per registered protocol.
type RIB[T any] struct {
	mu     sync.RWMutex
	protos map[bgp.Proto]*trie.Trie[T]
}

// New constructs an empty RIB with no protocols registered.
func New[T any]() *RIB[T] {
	return &RIB[T]{protos: map[bgp.Proto]*trie.Trie[T]{}}
}

// RegisterProto registers p, creating an empty trie for it. Idempotent.
func (r *RIB[T]) RegisterProto(p bgp.Proto) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.protos[p]; ok {
		return
	}
	if p.AFI == bgp.AFIIPv6 {
		r.protos[p] = trie.NewIPv6[T]()
	} else {
		r.protos[p] = trie.NewIPv4[T]()
	}
}

// RegisterProtos registers every proto in ps.
func (r *RIB[T]) RegisterProtos(ps []bgp.Proto) {
	for _, p := range ps {
		r.RegisterProto(p)
	}
}

// UnregisterProto removes p and its trie. A no-op if not registered.
func (r *RIB[T]) UnregisterProto(p bgp.Proto) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.protos, p)
}

// HasProto reports whether p is registered.
func (r *RIB[T]) HasProto(p bgp.Proto) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.protos[p]
	return ok
}

// Protos returns every registered protocol.
func (r *RIB[T]) Protos() []bgp.Proto {
	r.mu.RLock()
	defer r.mu.RUnlock()
	protos := make([]bgp.Proto, 0, len(r.protos))
	for p := range r.protos {
		protos = append(protos, p)
	}
	return protos
}

// Set stores value at (p, n), failing with ErrUnsupportedProtocol if p
// is not registered.
func (r *RIB[T]) Set(p bgp.Proto, n *net.IPNet, value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.protos[p]
	if !ok {
		return ErrUnsupportedProtocol
	}
	t.Add(n, value)
	return nil
}

// Get returns the exact value stored at (p, n).
func (r *RIB[T]) Get(p bgp.Proto, n *net.IPNet) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	t, ok := r.protos[p]
	if !ok {
		return zero, ErrUnsupportedProtocol
	}
	return t.ExactLookup(n)
}

// Lookup returns the most-specific (network, value) covering n under
// protocol p.
func (r *RIB[T]) Lookup(p bgp.Proto, n *net.IPNet) (*net.IPNet, T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	t, ok := r.protos[p]
	if !ok {
		return nil, zero, ErrUnsupportedProtocol
	}
	return t.Lookup(n)
}

// Delete removes the entry at (p, n). A no-op if p is unregistered or n
// is absent.
func (r *RIB[T]) Delete(p bgp.Proto, n *net.IPNet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.protos[p]
	if !ok {
		return nil
	}
	if err := t.Remove(n); err != nil && err != trie.ErrNotFound {
		return err
	}
	return nil
}

// Contains reports whether (p, n) has an entry.
func (r *RIB[T]) Contains(p bgp.Proto, n *net.IPNet) bool {
	_, err := r.Get(p, n)
	return err == nil
}

// Len returns the total number of entries across every registered
// protocol.
func (r *RIB[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.protos {
		n += t.Len()
	}
	return n
}

// Entry is one (proto, net, value) triple yielded by All.
type Entry[T any] struct {
	Proto bgp.Proto
	Net   *net.IPNet
	Value T
}

// All returns every entry across every registered protocol.
func (r *RIB[T]) All() []Entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry[T]
	for p, t := range r.protos {
		for _, e := range t.All() {
			out = append(out, Entry[T]{Proto: p, Net: e.Net, Value: e.Value})
		}
	}
	return out
}

// Clear empties every registered protocol's trie without unregistering
// them.
func (r *RIB[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.protos {
		if p.AFI == bgp.AFIIPv6 {
			r.protos[p] = trie.NewIPv6[T]()
		} else {
			r.protos[p] = trie.NewIPv4[T]()
		}
	}
}

// AddRoute stores route in a singleton RIB (Adj-RIB-In/Out), keyed by
// its own (proto, network).
func AddRoute(r *RIB[*Route], route *Route) error {
	if !r.HasProto(route.Proto()) {
		return ErrUnsupportedProtocol
	}
	return r.Set(route.Proto(), route.Network(), route)
}

// RemoveRoute deletes route from a singleton RIB. A no-op if absent.
func RemoveRoute(r *RIB[*Route], route *Route) error {
	if !r.HasProto(route.Proto()) {
		return nil
	}
	return r.Delete(route.Proto(), route.Network())
}

// RouteSet holds the competing paths for one prefix in a set-valued
// RIB (Loc-RIB), one per advertising router.
type RouteSet map[bgp.Identifier]*Route

func (s RouteSet) key(r *Route) bgp.Identifier {
	if r.HasSource {
		return r.SourceRouter
	}
	return 0
}

// Add inserts or replaces route, keyed by its source router.
func (s RouteSet) Add(route *Route) {
	s[s.key(route)] = route
}

// Remove deletes the path contributed by route's source router.
func (s RouteSet) Remove(route *Route) {
	delete(s, s.key(route))
}

// Routes returns every path currently held, in no particular order.
func (s RouteSet) Routes() []*Route {
	routes := make([]*Route, 0, len(s))
	for _, r := range s {
		routes = append(routes, r)
	}
	return routes
}

// AddSetRoute inserts route into the RouteSet at its (proto, network)
// key in a set-valued RIB (Loc-RIB), creating the set if absent.
func AddSetRoute(r *RIB[RouteSet], route *Route) error {
	if !r.HasProto(route.Proto()) {
		return ErrUnsupportedProtocol
	}
	n := route.Network()
	set, err := r.Get(route.Proto(), n)
	if err != nil {
		set = RouteSet{}
	}
	set.Add(route)
	return r.Set(route.Proto(), n, set)
}

// RemoveSetRoute removes route's source router's path from the set at
// its (proto, network) key, deleting the prefix entry entirely once the
// set becomes empty (spec.md §4.4, UPDATE consumption). A no-op if the
// prefix has no set.
func RemoveSetRoute(r *RIB[RouteSet], route *Route) error {
	n := route.Network()
	set, err := r.Get(route.Proto(), n)
	if err != nil {
		return nil
	}
	set.Remove(route)
	if len(set) == 0 {
		return r.Delete(route.Proto(), n)
	}
	return nil
}
