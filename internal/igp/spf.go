package igp

import "container/heap"

// State is the computed IGP/OSPF forwarding contract consumed by the BGP
// layer: per (src,dst) equal-cost next-hop sets and path costs (spec
// §4.3). It is immutable once returned by Compute; topology changes
// require a fresh Compute call.
type State struct {
	// dist[src][dst] is the shortest-path cost from src to dst.
	dist map[RouterID]map[RouterID]float64
	// nextHops[src][dst] is the set of equal-cost first hops from src
	// towards dst.
	nextHops map[RouterID]map[RouterID][]RouterID
	external map[RouterID]struct{}
}

// GetNextHops returns the equal-cost next-hop set and cost from src to
// dst. src==dst yields (nil, 0) per spec §4.3 ("self"). An unreachable
// dst yields (nil, +Inf).
func (s *State) GetNextHops(src, dst RouterID) ([]RouterID, float64) {
	if src == dst {
		return nil, 0
	}
	d, ok := s.dist[src]
	if !ok {
		return nil, Inf
	}
	cost, ok := d[dst]
	if !ok || cost >= Inf {
		return nil, Inf
	}
	return append([]RouterID(nil), s.nextHops[src][dst]...), cost
}

// Cost is a convenience accessor returning only the second GetNextHops
// return value.
func (s *State) Cost(src, dst RouterID) float64 {
	_, c := s.GetNextHops(src, dst)
	return c
}

// Compute runs Dijkstra with equal-cost-multipath tracking from every
// node in graph that isn't in externalIDs (external routers have no IGP
// adjacency of their own; they're excluded as SPF sources but may still
// appear as destinations is not meaningful, so they're excluded from
// both roles — callers resolve eBGP next-hops separately via directly
// connected links, per spec §4.2).
func Compute(graph *Graph, externalIDs map[RouterID]struct{}) *State {
	st := &State{
		dist:     make(map[RouterID]map[RouterID]float64),
		nextHops: make(map[RouterID]map[RouterID][]RouterID),
		external: externalIDs,
	}
	for _, src := range graph.Nodes() {
		if _, ext := externalIDs[src]; ext {
			continue
		}
		dist, preds := dijkstra(graph, src, externalIDs)
		st.dist[src] = dist
		st.nextHops[src] = firstHopSets(src, dist, preds)
	}
	return st
}

// areaCtx is the "area transit regime" a path is currently in: unset at
// the source (the first hop may enter any area), pinned to the backbone
// (area 0) once a backbone edge has been taken, or pinned to a single
// non-backbone area once one of its links has been taken. A path already
// pinned to a non-backbone area may continue within that area or step
// back out to the backbone, but may never step directly into a different
// non-backbone area — it has to transit the backbone first, same as
// standard two-level OSPF (spec §4.3).
type areaCtx struct {
	set  bool
	area int
}

// allows reports whether an edge tagged with area a may be taken while in
// ctx, and what context taking it leaves the path in.
func (ctx areaCtx) allows(a int) (areaCtx, bool) {
	if !ctx.set || ctx.area == 0 || a == 0 || a == ctx.area {
		return areaCtx{set: true, area: a}, true
	}
	return areaCtx{}, false
}

// areaState is a Dijkstra search state: a node plus the area regime the
// path reaching it is currently pinned to. The same node is reached by
// several distinct states when it sits on the boundary between areas
// (an area border router), one per regime that can reach it.
type areaState struct {
	node RouterID
	ctx  areaCtx
}

type heapItem struct {
	state areaState
	dist  float64
}

type minHeap []heapItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// dijkstra runs single-source shortest path from src over graph, skipping
// edges into/out of excluded nodes and edges that would cross directly
// between two non-backbone areas, and returns the per-node distance map
// plus, for each node, the set of predecessors u with
// dist[u]+w(u,v)==dist[v] (the equal-cost predecessor DAG used for ECMP
// next-hop reconstruction). Untagged links default to area 0 (the
// backbone), so a graph that never calls SetArea behaves exactly like
// flat single-area SPF.
func dijkstra(graph *Graph, src RouterID, excluded map[RouterID]struct{}) (map[RouterID]float64, map[RouterID][]RouterID) {
	start := areaState{node: src}
	dist := map[areaState]float64{start: 0}
	preds := map[areaState][]areaState{}
	visited := map[areaState]bool{}

	h := &minHeap{{state: start, dist: 0}}
	heap.Init(h)

	for h.Len() > 0 {
		cur := heap.Pop(h).(heapItem)
		u := cur.state
		if visited[u] {
			continue
		}
		// Stale heap entries (superseded by a shorter path found later)
		// carry a distance larger than the now-settled one; skip them.
		if cur.dist > dist[u] {
			continue
		}
		visited[u] = true

		for v, w := range graph.weight[u.node] {
			if w >= Inf {
				continue
			}
			if _, ok := excluded[v]; ok {
				continue
			}
			area, _ := graph.Area(u.node, v)
			nextCtx, ok := u.ctx.allows(area)
			if !ok {
				continue
			}
			next := areaState{node: v, ctx: nextCtx}
			nd := dist[u] + w
			existing, known := dist[next]
			switch {
			case !known || nd < existing:
				dist[next] = nd
				preds[next] = []areaState{u}
				heap.Push(h, heapItem{state: next, dist: nd})
			case nd == existing:
				preds[next] = append(preds[next], u)
			}
		}
	}
	return collapseStates(src, dist, preds)
}

// collapseStates flattens the per-(node,areaCtx) search result down to one
// distance and predecessor set per node: a node may be settled through
// more than one area regime at the same minimal cost (an area border
// router reached equally fast from its backbone side and from within its
// own area), and every such regime's predecessor contributes to ECMP.
func collapseStates(src RouterID, dist map[areaState]float64, preds map[areaState][]areaState) (map[RouterID]float64, map[RouterID][]RouterID) {
	nodeDist := map[RouterID]float64{src: 0}
	for st, d := range dist {
		if cur, ok := nodeDist[st.node]; !ok || d < cur {
			nodeDist[st.node] = d
		}
	}

	nodePreds := map[RouterID][]RouterID{}
	seen := map[RouterID]map[RouterID]struct{}{}
	for st, d := range dist {
		if st.node == src || d != nodeDist[st.node] {
			continue
		}
		for _, p := range preds[st] {
			if seen[st.node] == nil {
				seen[st.node] = map[RouterID]struct{}{}
			}
			if _, dup := seen[st.node][p.node]; dup {
				continue
			}
			seen[st.node][p.node] = struct{}{}
			nodePreds[st.node] = append(nodePreds[st.node], p.node)
		}
	}
	return nodeDist, nodePreds
}

// firstHopSets turns the predecessor DAG into, for every reachable node
// v, the set of src's immediate neighbors that start some shortest path
// to v. Nodes are processed in increasing distance order so every
// predecessor's first-hop set is already known (memoized) before it's
// needed — the DAG has no cycles because all edges go from smaller to
// equal distance, never backward.
func firstHopSets(src RouterID, dist map[RouterID]float64, preds map[RouterID][]RouterID) map[RouterID][]RouterID {
	order := make([]RouterID, 0, len(dist))
	for v := range dist {
		order = append(order, v)
	}
	sortByDist(order, dist)

	memo := map[RouterID]map[RouterID]struct{}{src: {}}
	result := make(map[RouterID][]RouterID, len(dist))

	for _, v := range order {
		if v == src {
			continue
		}
		set := map[RouterID]struct{}{}
		for _, u := range preds[v] {
			if u == src {
				set[v] = struct{}{}
				continue
			}
			for nh := range memo[u] {
				set[nh] = struct{}{}
			}
		}
		memo[v] = set
		hops := make([]RouterID, 0, len(set))
		for nh := range set {
			hops = append(hops, nh)
		}
		result[v] = hops
	}
	return result
}

func sortByDist(order []RouterID, dist map[RouterID]float64) {
	// Simple insertion sort: graphs in this simulator are small
	// (lab-scale topologies), and ties broken by distance alone suffice
	// since firstHopSets only needs "predecessors before successors".
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && dist[order[j-1]] > dist[order[j]]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
}
