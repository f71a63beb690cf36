// Package forwarding derives the simulator's forwarding state (spec §5,
// component J): for each internal router and each prefix, the set of
// equal-cost next hops a packet takes, resolved from static routes and
// the selected BGP route via the IGP layer. Grounded on the original Rust
// bgpsim/src/forwarding_state.rs's cached, invalidation-on-update design.
package forwarding

import (
	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/router"
	"github.com/netsim/bgpsim/internal/simerr"
)

// RouterID is re-exported from router so callers don't need two import
// paths for the same vocabulary.
type RouterID = router.RouterID

// State holds a live view over a set of routers and caches, per prefix,
// the forwarding graph derived from their current selections. The cache
// is invalidated per-prefix by Invalidate, which internal/netsim calls
// whenever a router's Decide() call changes its selection for that
// prefix.
type State[P comparable] struct {
	internal map[RouterID]*router.Router[P]
	external map[RouterID]*router.External[P]

	cache map[P]*prefixGraph[P]
}

type prefixGraph[P comparable] struct {
	nextHops map[RouterID][]RouterID
	prevHops map[RouterID][]RouterID
	origin   map[RouterID]bool
	dropped  map[RouterID]bool
}

// New builds an empty forwarding state; routers are registered with
// AddRouter/AddExternal as the topology is built.
func New[P comparable]() *State[P] {
	return &State[P]{
		internal: make(map[RouterID]*router.Router[P]),
		external: make(map[RouterID]*router.External[P]),
		cache:    make(map[P]*prefixGraph[P]),
	}
}

// AddRouter registers an internal router.
func (s *State[P]) AddRouter(r *router.Router[P]) { s.internal[r.ID] = r }

// AddExternal registers an external router.
func (s *State[P]) AddExternal(x *router.External[P]) { s.external[x.ID] = x }

// RemoveRouter unregisters an internal router (spec §6: remove_router).
func (s *State[P]) RemoveRouter(id RouterID) {
	delete(s.internal, id)
	s.cache = make(map[P]*prefixGraph[P])
}

// RemoveExternal unregisters an external router.
func (s *State[P]) RemoveExternal(id RouterID) {
	delete(s.external, id)
	s.cache = make(map[P]*prefixGraph[P])
}

// Invalidate drops the cached forwarding graph for p, forcing the next
// query to recompute it from the routers' current RIB/static state.
func (s *State[P]) Invalidate(p P) {
	delete(s.cache, p)
}

// InvalidateAll drops every cached prefix graph, used after topology-wide
// changes (link/session edits, IGP recompute) whose blast radius isn't
// worth tracking precisely.
func (s *State[P]) InvalidateAll() {
	s.cache = make(map[P]*prefixGraph[P])
}

func (s *State[P]) resolve(p P) *prefixGraph[P] {
	if g, ok := s.cache[p]; ok {
		return g
	}
	g := &prefixGraph[P]{
		nextHops: make(map[RouterID][]RouterID),
		prevHops: make(map[RouterID][]RouterID),
		origin:   make(map[RouterID]bool),
		dropped:  make(map[RouterID]bool),
	}
	for id, r := range s.internal {
		hops, drop := nextHopsFor(r, p)
		g.nextHops[id] = hops
		g.dropped[id] = drop
		for _, h := range hops {
			g.prevHops[h] = append(g.prevHops[h], id)
		}
	}
	for id, x := range s.external {
		if x.Originates(p) {
			g.origin[id] = true
		}
	}
	s.cache[p] = g
	return g
}

// nextHopsFor resolves one internal router's forwarding next hops for p.
// When both a static and a BGP route match, the more specific of the two
// LPM-matched networks wins, ties going to static (spec §5; the original
// Rust get_next_hop picks the static route only when the BGP match's
// network contains the static match's). StaticDirect forwards straight to
// Target, StaticIndirect resolves Target through the IGP layer the same
// way a BGP next-hop would be, and StaticDrop is an intentional configured
// drop — a valid path terminus, not a black hole. An empty next-hop set
// with drop=false, by contrast, means "no route found where dissemination
// should have placed one" and is what Paths reports as a black hole.
func nextHopsFor[P comparable](r *router.Router[P], p P) (hops []RouterID, drop bool) {
	srMatch, sr, srOK := staticLPM(r, p)
	bgpMatch, best, bgpOK := ribLPM(r, p)

	useStatic := srOK
	if srOK && bgpOK {
		// The BGP match covers (is equal to or less specific than) the
		// static match only when static is at least as specific — that's
		// when static should win. Otherwise BGP's match is strictly more
		// specific and wins instead.
		useStatic = r.StaticRoutes.Covers(bgpMatch, srMatch)
	}

	if useStatic {
		switch sr.Kind {
		case router.StaticDrop:
			return nil, true
		case router.StaticDirect:
			return []RouterID{sr.Target}, false
		case router.StaticIndirect:
			return r.IgpNextHopsTo(sr.Target), false
		}
	}

	if !bgpOK {
		return nil, false
	}
	if best.Route.NextHop == r.ID {
		return nil, true // self-originated: the path ends here
	}
	return r.IgpNextHopsTo(best.Route.NextHop), false
}

func staticLPM[P comparable](r *router.Router[P], p P) (matched P, sr router.StaticRoute, ok bool) {
	return r.StaticRoutes.LPM(p)
}

func ribLPM[P comparable](r *router.Router[P], p P) (matched P, entry bgproute.RibEntry[P], ok bool) {
	return r.Rib.LPM(p)
}

// NextHops returns the forwarding next-hop set for (router, p): nil means
// either "this is the path's end" (an external origin) or "no route" —
// callers distinguish the two via IsOrigin.
func (s *State[P]) NextHops(id RouterID, p P) []RouterID {
	g := s.resolve(p)
	return append([]RouterID(nil), g.nextHops[id]...)
}

// PrevHops returns every router whose forwarding next-hop set for p
// includes id — the reverse adjacency used to trace who would be
// affected by id's selection changing.
func (s *State[P]) PrevHops(id RouterID, p P) []RouterID {
	g := s.resolve(p)
	return append([]RouterID(nil), g.prevHops[id]...)
}

// IsOrigin reports whether id is an external router currently
// originating p (spec §5: "forwarded out of the simulated domain").
func (s *State[P]) IsOrigin(id RouterID, p P) bool {
	g := s.resolve(p)
	return g.origin[id]
}

// Paths enumerates every forwarding path from src towards p, branching at
// every ECMP next-hop set, until each branch reaches an external origin
// or a router with a configured drop. It returns a ForwardingLoopError
// the first time a branch revisits a router already on its own path (the
// minimal cycle, rotated to start at its smallest RouterId, per spec
// §4.7/§8), or a ForwardingBlackHoleError the first time a branch
// dead-ends at a router with no next hop that is neither an origin nor a
// drop.
func (s *State[P]) Paths(src RouterID, p P) ([][]RouterID, error) {
	g := s.resolve(p)
	var results [][]RouterID
	onPath := make(map[RouterID]int)

	var walk func(node RouterID, path []RouterID) error
	walk = func(node RouterID, path []RouterID) error {
		if pos, seen := onPath[node]; seen {
			cycle := append([]RouterID(nil), path[pos:]...)
			return &simerr.ForwardingLoopError{Cycle: rotateToMin(cycle)}
		}
		path = append(path, node)
		onPath[node] = len(path) - 1
		defer delete(onPath, node)

		if g.origin[node] || g.dropped[node] {
			results = append(results, append([]RouterID(nil), path...))
			return nil
		}
		hops := g.nextHops[node]
		if len(hops) == 0 {
			return &simerr.ForwardingBlackHoleError{Path: toIntSlice(path)}
		}
		for _, h := range hops {
			if err := walk(h, path); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(src, nil); err != nil {
		return nil, err
	}
	return results, nil
}

// NodesAlongPaths returns the set of distinct routers appearing in any
// forwarding path from src towards p.
func (s *State[P]) NodesAlongPaths(src RouterID, p P) ([]RouterID, error) {
	paths, err := s.Paths(src, p)
	if err != nil {
		return nil, err
	}
	seen := map[RouterID]struct{}{}
	var out []RouterID
	for _, path := range paths {
		for _, n := range path {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// rotateToMin rotates cycle so its smallest RouterId comes first,
// normalizing equivalent cycles to a single canonical representation
// (spec §4.7: loop reports must be reproducible regardless of which
// router detection started from).
func rotateToMin(cycle []RouterID) []int {
	if len(cycle) == 0 {
		return nil
	}
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]int, len(cycle))
	for i := range cycle {
		out[i] = int(cycle[(minIdx+i)%len(cycle)])
	}
	return out
}

func toIntSlice(ids []RouterID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
