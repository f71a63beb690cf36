package netsim

import (
	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/router"
	"github.com/netsim/bgpsim/internal/routemap"
)

// Snapshot is an opaque deep copy of a Network's mutable state, taken by
// Mark and consumed by UndoToMark (spec §9's "clean redesign": a
// snapshot/restore undo model rather than per-event inverse actions —
// the same tradeoff a whole-state snapshot makes for any mutable
// in-memory lab/session state).
type Snapshot[P comparable] struct {
	routers   map[RouterID]routerSnapshot[P]
	externals map[RouterID]externalSnapshot[P]
	known     map[P]struct{}
}

type routerSnapshot[P comparable] struct {
	neighbors    map[RouterID]float64
	igpTable     map[RouterID]router.IgpEntry
	staticRoutes map[P]router.StaticRoute
	sessions     map[RouterID]bgproute.SessionType
	rib          map[P]bgproute.RibEntry[P]
	ribIn        map[P]map[RouterID]bgproute.RibEntry[P]
	ribOut       map[P]map[RouterID]bgproute.RibEntry[P]
	routeMapsIn  map[RouterID]*routemap.List[P]
	routeMapsOut map[RouterID]*routemap.List[P]
	loadBalance  bool
}

type externalSnapshot[P comparable] struct {
	peers      map[RouterID]struct{}
	advertised map[P]bgproute.Route[P]
}

// Mark captures the network's entire router/external/known-prefix state.
// Route-map lists are copied item by item, because route-map item edits
// (installRouteMapItemLocked, RemoveRouteMapItem) change a live list in
// place.
func (n *Network[P]) Mark() *Snapshot[P] {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.markLocked()
}

func (n *Network[P]) markLocked() *Snapshot[P] {
	snap := &Snapshot[P]{
		routers:   make(map[RouterID]routerSnapshot[P], len(n.routers)),
		externals: make(map[RouterID]externalSnapshot[P], len(n.externals)),
		known:     make(map[P]struct{}, len(n.knownPrefixes)),
	}
	for p := range n.knownPrefixes {
		snap.known[p] = struct{}{}
	}
	for id, r := range n.routers {
		snap.routers[id] = routerSnapshot[P]{
			neighbors:    copyFloatMap(r.Neighbors),
			igpTable:     copyIgpTable(r.IgpTable),
			staticRoutes: staticRoutesSnapshot(r),
			sessions:     copySessionMap(r.Sessions),
			rib:          ribSnapshot(r),
			ribIn:        copyNestedRib(r.RibIn),
			ribOut:       copyNestedRib(r.RibOut),
			routeMapsIn:  copyRouteMapSet(r.RouteMapsIn),
			routeMapsOut: copyRouteMapSet(r.RouteMapsOut),
			loadBalance:  r.LoadBalancing,
		}
	}
	for id, x := range n.externals {
		snap.externals[id] = externalSnapshot[P]{
			peers:      copyPeerSet(x.Peers),
			advertised: advertisedSnapshot(x),
		}
	}
	return snap
}

// UndoToMark restores every router and external router present in snap to
// its captured state. Routers added after Mark are left untouched by
// design (spec §9 scopes undo to "revert configuration", not "undo
// topology growth") — callers needing full rollback should avoid
// add_router/add_external_router between Mark and UndoToMark, or remove
// the added routers themselves first.
func (n *Network[P]) UndoToMark(snap *Snapshot[P]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.undoToMarkLocked(snap)
}

func (n *Network[P]) undoToMarkLocked(snap *Snapshot[P]) {
	n.knownPrefixes = make(map[P]struct{}, len(snap.known))
	for p := range snap.known {
		n.knownPrefixes[p] = struct{}{}
	}

	for id, rs := range snap.routers {
		r, ok := n.routers[id]
		if !ok {
			continue
		}
		r.Neighbors = copyFloatMap(rs.neighbors)
		r.IgpTable = copyIgpTable(rs.igpTable)
		restoreStaticRoutes(r, rs.staticRoutes)
		r.Sessions = copySessionMap(rs.sessions)
		restoreRib(r, rs.rib)
		r.RibIn = copyNestedRib(rs.ribIn)
		r.RibOut = copyNestedRib(rs.ribOut)
		r.RouteMapsIn = copyRouteMapSet(rs.routeMapsIn)
		r.RouteMapsOut = copyRouteMapSet(rs.routeMapsOut)
		r.LoadBalancing = rs.loadBalance
	}
	for id, xs := range snap.externals {
		x, ok := n.externals[id]
		if !ok {
			continue
		}
		x.Peers = copyPeerSet(xs.peers)
		restoreAdvertised(x, xs.advertised)
	}
	n.fwd.InvalidateAll()
}

func copyFloatMap(m map[RouterID]float64) map[RouterID]float64 {
	out := make(map[RouterID]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIgpTable(m map[RouterID]router.IgpEntry) map[RouterID]router.IgpEntry {
	out := make(map[RouterID]router.IgpEntry, len(m))
	for k, v := range m {
		out[k] = router.IgpEntry{NextHops: append([]RouterID(nil), v.NextHops...), Cost: v.Cost}
	}
	return out
}

func copySessionMap(m map[RouterID]bgproute.SessionType) map[RouterID]bgproute.SessionType {
	out := make(map[RouterID]bgproute.SessionType, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyPeerSet(m map[RouterID]struct{}) map[RouterID]struct{} {
	out := make(map[RouterID]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func copyRouteMapSet[P comparable](m map[RouterID]*routemap.List[P]) map[RouterID]*routemap.List[P] {
	out := make(map[RouterID]*routemap.List[P], len(m))
	for k, v := range m {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = routemap.NewList(v.Items()...)
	}
	return out
}

func staticRoutesSnapshot[P comparable](r *router.Router[P]) map[P]router.StaticRoute {
	out := make(map[P]router.StaticRoute)
	for _, p := range r.StaticRoutes.Keys() {
		if v, ok := r.StaticRoutes.Get(p); ok {
			out[p] = v
		}
	}
	return out
}

func restoreStaticRoutes[P comparable](r *router.Router[P], snapshot map[P]router.StaticRoute) {
	for _, p := range r.StaticRoutes.Keys() {
		r.StaticRoutes.Delete(p)
	}
	for p, v := range snapshot {
		r.StaticRoutes.Insert(p, v)
	}
}

func ribSnapshot[P comparable](r *router.Router[P]) map[P]bgproute.RibEntry[P] {
	out := make(map[P]bgproute.RibEntry[P])
	for _, p := range r.Rib.Keys() {
		if v, ok := r.Rib.Get(p); ok {
			out[p] = v.Clone()
		}
	}
	return out
}

func restoreRib[P comparable](r *router.Router[P], snapshot map[P]bgproute.RibEntry[P]) {
	for _, p := range r.Rib.Keys() {
		r.Rib.Delete(p)
	}
	for p, v := range snapshot {
		r.Rib.Insert(p, v.Clone())
	}
}

func advertisedSnapshot[P comparable](x *router.External[P]) map[P]bgproute.Route[P] {
	out := make(map[P]bgproute.Route[P])
	for _, p := range x.AdvertisedPrefixes() {
		if route, ok := x.AdvertisedRoute(p); ok {
			out[p] = route.Clone()
		}
	}
	return out
}

func restoreAdvertised[P comparable](x *router.External[P], snapshot map[P]bgproute.Route[P]) {
	for _, p := range x.AdvertisedPrefixes() {
		x.RetractRoute(p)
	}
	for p, route := range snapshot {
		x.AdvertiseRoute(p, route)
	}
}
