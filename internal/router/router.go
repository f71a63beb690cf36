// Package router implements per-router BGP/IGP state (spec §3-§4,
// components D, E, G): RIBs, sessions, static routes, the decision
// process, and route dissemination: a per-router aggregate owning
// BGP/IGP state behind explicit, named mutators, the same way a
// per-device aggregate would own interfaces/VLANs/VRFs behind
// precondition-gated mutators.
package router

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/prefix"
	"github.com/netsim/bgpsim/internal/routemap"
	"github.com/netsim/bgpsim/internal/xlog"
)

const posInf = math.MaxFloat64

// RouterID, AsID and SessionType are re-exported from bgproute so callers
// of this package don't need two import paths for the same vocabulary.
type RouterID = bgproute.RouterID
type AsID = bgproute.AsID
type SessionType = bgproute.SessionType

const TODst = bgproute.TODst

// IgpEntry is one row of a router's IGP table: the equal-cost next-hop
// set and cost towards a destination router (spec §3). An empty NextHops
// with Cost 0 means "self".
type IgpEntry struct {
	NextHops []RouterID
	Cost     float64
}

// StaticKind tags a StaticRoute's behavior.
type StaticKind int

const (
	StaticDirect StaticKind = iota
	StaticIndirect
	StaticDrop
)

// StaticRoute is one static_routes entry (spec §3).
type StaticRoute struct {
	Kind   StaticKind
	Target RouterID // unused when Kind == StaticDrop
}

// Router is one internal router's complete state.
type Router[P comparable] struct {
	ID   RouterID
	Name string
	AS   AsID

	Neighbors map[RouterID]float64 // directly connected, finite link weight
	IgpTable  map[RouterID]IgpEntry

	StaticRoutes prefix.Table[P, StaticRoute]

	Sessions map[RouterID]SessionType

	RibIn  map[P]map[RouterID]bgproute.RibEntry[P]
	Rib    prefix.Table[P, bgproute.RibEntry[P]]
	RibOut map[P]map[RouterID]bgproute.RibEntry[P]

	KnownPrefixes map[P]struct{}

	RouteMapsIn  map[RouterID]*routemap.List[P]
	RouteMapsOut map[RouterID]*routemap.List[P]

	LoadBalancing bool
}

// New constructs an internal router. staticRoutes and rib are injected so
// callers pick the prefix variant (ExactTable or IPNet-backed) that fits
// their topology, per spec §9's polymorphism-over-Prefix design note.
func New[P comparable](id RouterID, name string, as AsID, staticRoutes prefix.Table[P, StaticRoute], rib prefix.Table[P, bgproute.RibEntry[P]]) *Router[P] {
	return &Router[P]{
		ID:            id,
		Name:          name,
		AS:            as,
		Neighbors:     make(map[RouterID]float64),
		IgpTable:      make(map[RouterID]IgpEntry),
		StaticRoutes:  staticRoutes,
		Sessions:      make(map[RouterID]SessionType),
		RibIn:         make(map[P]map[RouterID]bgproute.RibEntry[P]),
		Rib:           rib,
		RibOut:        make(map[P]map[RouterID]bgproute.RibEntry[P]),
		KnownPrefixes: make(map[P]struct{}),
		RouteMapsIn:   make(map[RouterID]*routemap.List[P]),
		RouteMapsOut:  make(map[RouterID]*routemap.List[P]),
	}
}

// markKnown records that p has been seen, maintaining the router
// invariant "for every p in any of the three RIBs, p ∈
// bgp_known_prefixes" (spec §3).
func (r *Router[P]) markKnown(p P) {
	r.KnownPrefixes[p] = struct{}{}
}

// SetSession establishes or updates a BGP session to peer. Internal
// routers see eBGP from this call only towards external routers; eBGP
// sessions are validated by internal/netsim before being set here (an
// internal router must never see an eBGP session to another internal
// router).
func (r *Router[P]) SetSession(peer RouterID, t SessionType) {
	r.Sessions[peer] = t
}

// RemoveSession tears down the session to peer, along with any RIB-in/
// RIB-out entries learned from or sent to it (a withdrawn peer carries
// no stale routes).
func (r *Router[P]) RemoveSession(peer RouterID) {
	delete(r.Sessions, peer)
	for _, peers := range r.RibIn {
		delete(peers, peer)
	}
	for _, peers := range r.RibOut {
		delete(peers, peer)
	}
	delete(r.RouteMapsIn, peer)
	delete(r.RouteMapsOut, peer)
}

// SetStaticRoute installs or overwrites the static route for p.
func (r *Router[P]) SetStaticRoute(p P, sr StaticRoute) {
	r.StaticRoutes.Insert(p, sr)
	r.markKnown(p)
}

// RemoveStaticRoute deletes the static route for p.
func (r *Router[P]) RemoveStaticRoute(p P) bool {
	return r.StaticRoutes.Delete(p)
}

// SetLink adds or updates the directly connected, finite-weight link to
// neighbor. Use RemoveLink to tear it down.
func (r *Router[P]) SetLink(neighbor RouterID, weight float64) {
	r.Neighbors[neighbor] = weight
}

// RemoveLink drops the direct link to neighbor.
func (r *Router[P]) RemoveLink(neighbor RouterID) {
	delete(r.Neighbors, neighbor)
}

// SetIgpTable replaces the router's full IGP table, called by
// internal/netsim after every IGP recompute.
func (r *Router[P]) SetIgpTable(table map[RouterID]IgpEntry) {
	r.IgpTable = table
}

// IgpCostTo returns the IGP cost to dst, or +Inf if unreachable.
func (r *Router[P]) IgpCostTo(dst RouterID) float64 {
	if dst == r.ID {
		return 0
	}
	e, ok := r.IgpTable[dst]
	if !ok {
		return posInf
	}
	return e.Cost
}

// IgpNextHopsTo returns the IGP next-hop set to dst, falling back to the
// direct link if dst is a neighbor but the IGP table has no entry for it
// (spec §4.3: "if a destination has an empty next-hop vector but is a
// direct neighbor, fall back to the direct link").
func (r *Router[P]) IgpNextHopsTo(dst RouterID) []RouterID {
	if dst == r.ID {
		return nil
	}
	e, ok := r.IgpTable[dst]
	if ok && len(e.NextHops) > 0 {
		if !r.LoadBalancing {
			return e.NextHops[:1]
		}
		return e.NextHops
	}
	if _, direct := r.Neighbors[dst]; direct {
		return []RouterID{dst}
	}
	return nil
}

// SetRouteMapIn installs the ordered route-map applied to routes received
// from neighbor, returning the previous map if one existed (spec §6:
// set_bgp_route_map returns Option<map>).
func (r *Router[P]) SetRouteMapIn(neighbor RouterID, list *routemap.List[P]) *routemap.List[P] {
	old := r.RouteMapsIn[neighbor]
	r.RouteMapsIn[neighbor] = list
	return old
}

// SetRouteMapOut installs the ordered route-map applied to routes sent to
// neighbor.
func (r *Router[P]) SetRouteMapOut(neighbor RouterID, list *routemap.List[P]) *routemap.List[P] {
	old := r.RouteMapsOut[neighbor]
	r.RouteMapsOut[neighbor] = list
	return old
}

// RemoveRouteMapItem deletes the item with the given order from the
// named direction's route-map for neighbor.
func (r *Router[P]) RemoveRouteMapItem(neighbor RouterID, outbound bool, order int) bool {
	m := r.RouteMapsIn
	if outbound {
		m = r.RouteMapsOut
	}
	list, ok := m[neighbor]
	if !ok {
		return false
	}
	return list.Remove(order)
}

// SetLoadBalancing toggles ECMP forwarding for this router.
func (r *Router[P]) SetLoadBalancing(enabled bool) {
	r.LoadBalancing = enabled
}

// log returns a logger scoped to this router.
func (r *Router[P]) log() *logrus.Entry {
	return xlog.WithRouter(int(r.ID))
}
