// Package igp implements the IGP/OSPF-style shortest-path layer (spec
// §4.3, component F): a link graph with directed weights and
// undirected-symmetric area tags, computing per-router equal-cost
// next-hop sets via Dijkstra restricted to standard two-level OSPF area
// semantics — intra-area paths stay on links tagged with that area,
// inter-area paths transit the backbone (area 0). No example repo in the
// retrieval pack implements SPF/ECMP graph algorithms; this is grounded
// structurally on the original Rust bgpsim OSPF contract and spec §4.3 —
// see DESIGN.md for the justified stdlib-only (container/heap)
// implementation.
//
// Per spec §1, the intra-area SPF algorithm's internals beyond this
// contract are out of scope — route summarization at area borders, LSA
// flooding, and the rest of real OSPF's wire protocol are not modeled;
// what's implemented here is the contract itself (compute, GetNextHops,
// ECMP, area-restricted path selection).
package igp

import "math"

// RouterID mirrors bgproute.RouterID's underlying type without importing
// that package, to keep igp free of a dependency on the BGP layer (the
// IGP contract is consumed by, but independent of, BGP decision code).
type RouterID int

// Inf is the "logically absent" link weight (spec §3).
const Inf = math.MaxFloat64

type pairKey struct{ a, b RouterID }

func normalizedPair(a, b RouterID) pairKey {
	if a <= b {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

// Graph is the directed, weighted link graph with a symmetric area tag
// per undirected link pair.
type Graph struct {
	weight map[RouterID]map[RouterID]float64
	area   map[pairKey]int
	nodes  map[RouterID]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		weight: make(map[RouterID]map[RouterID]float64),
		area:   make(map[pairKey]int),
		nodes:  make(map[RouterID]struct{}),
	}
}

// AddNode ensures r participates in the graph even with no links yet
// (so GetNextHops(r, r) and isolation checks behave sensibly).
func (g *Graph) AddNode(r RouterID) {
	g.nodes[r] = struct{}{}
	if g.weight[r] == nil {
		g.weight[r] = make(map[RouterID]float64)
	}
}

// RemoveNode drops r and every link touching it.
func (g *Graph) RemoveNode(r RouterID) {
	delete(g.nodes, r)
	delete(g.weight, r)
	for _, m := range g.weight {
		delete(m, r)
	}
	for k := range g.area {
		if k.a == r || k.b == r {
			delete(g.area, k)
		}
	}
}

// SetWeight sets the directed weight of the edge a->b. Use Inf to mark a
// link as logically absent (spec §3) without removing its area tag.
func (g *Graph) SetWeight(a, b RouterID, w float64) {
	g.AddNode(a)
	g.AddNode(b)
	g.weight[a][b] = w
}

// Weight returns the directed weight of a->b, or Inf if absent.
func (g *Graph) Weight(a, b RouterID) float64 {
	if m, ok := g.weight[a]; ok {
		if w, ok := m[b]; ok {
			return w
		}
	}
	return Inf
}

// SetArea tags the undirected link between a and b with an OSPF area.
// The key is normalized so the tag reads the same from either side.
func (g *Graph) SetArea(a, b RouterID, area int) {
	g.area[normalizedPair(a, b)] = area
}

// Area returns the area tag for the undirected link a-b, and whether one
// was ever set.
func (g *Graph) Area(a, b RouterID) (int, bool) {
	area, ok := g.area[normalizedPair(a, b)]
	return area, ok
}

// RemoveLink clears the directed weight a->b (setting it to Inf) without
// removing either endpoint's node entry.
func (g *Graph) RemoveLink(a, b RouterID) {
	if m, ok := g.weight[a]; ok {
		delete(m, b)
	}
}

// Neighbors returns the routers reachable by one finite-weight hop from r.
func (g *Graph) Neighbors(r RouterID) []RouterID {
	var out []RouterID
	for n, w := range g.weight[r] {
		if w < Inf {
			out = append(out, n)
		}
	}
	return out
}

// Nodes returns every router participating in the graph.
func (g *Graph) Nodes() []RouterID {
	out := make([]RouterID, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// RouterAreas returns the set of areas r has at least one link tagged
// with, used by consumers that want area-aware reasoning beyond the
// plain SPF contract (e.g. policy checks on inter-area transit).
func (g *Graph) RouterAreas(r RouterID) map[int]struct{} {
	out := make(map[int]struct{})
	for k, area := range g.area {
		if k.a == r || k.b == r {
			out[area] = struct{}{}
		}
	}
	return out
}

// LinkInfo describes one undirected link slot: the (possibly asymmetric)
// weight in each direction, and the slot's area tag.
type LinkInfo struct {
	A, B               RouterID
	WeightAB, WeightBA float64
	Area               int
}

// Links enumerates every pair with at least one finite-weight direction,
// used by the config layer (spec §4.6) to reconstruct IgpLinkWeight and
// OspfArea expressions from live graph state.
func (g *Graph) Links() []LinkInfo {
	seen := make(map[pairKey]struct{})
	var out []LinkInfo
	for a, m := range g.weight {
		for b := range m {
			pk := normalizedPair(a, b)
			if _, ok := seen[pk]; ok {
				continue
			}
			seen[pk] = struct{}{}
			out = append(out, LinkInfo{
				A:        pk.a,
				B:        pk.b,
				WeightAB: g.Weight(pk.a, pk.b),
				WeightBA: g.Weight(pk.b, pk.a),
				Area:     g.area[pk],
			})
		}
	}
	return out
}
