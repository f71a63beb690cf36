package igp

import (
	"sort"
	"testing"
)

func TestComputeSelfIsZeroEmpty(t *testing.T) {
	g := NewGraph()
	g.SetWeight(1, 2, 1)
	g.SetWeight(2, 1, 1)
	st := Compute(g, nil)
	nh, cost := st.GetNextHops(1, 1)
	if cost != 0 || nh != nil {
		t.Fatalf("expected (nil, 0) for self, got (%v, %v)", nh, cost)
	}
}

func TestComputeUnreachableIsInf(t *testing.T) {
	g := NewGraph()
	g.AddNode(1)
	g.AddNode(2)
	st := Compute(g, nil)
	nh, cost := st.GetNextHops(1, 2)
	if cost != Inf || nh != nil {
		t.Fatalf("expected (nil, Inf) for unreachable, got (%v, %v)", nh, cost)
	}
}

func TestComputeECMP(t *testing.T) {
	// 1 -> 2 -> 4 (cost 2) and 1 -> 3 -> 4 (cost 2): both equal-cost.
	g := NewGraph()
	for _, e := range [][3]int{{1, 2, 1}, {2, 1, 1}, {1, 3, 1}, {3, 1, 1}, {2, 4, 1}, {4, 2, 1}, {3, 4, 1}, {4, 3, 1}} {
		g.SetWeight(RouterID(e[0]), RouterID(e[1]), float64(e[2]))
	}
	st := Compute(g, nil)
	nh, cost := st.GetNextHops(1, 4)
	if cost != 2 {
		t.Fatalf("expected cost 2, got %v", cost)
	}
	sort.Slice(nh, func(i, j int) bool { return nh[i] < nh[j] })
	if len(nh) != 2 || nh[0] != 2 || nh[1] != 3 {
		t.Fatalf("expected ECMP next-hops {2,3}, got %v", nh)
	}
}

func TestComputeSingleShortestPath(t *testing.T) {
	g := NewGraph()
	g.SetWeight(1, 2, 5)
	g.SetWeight(2, 1, 5)
	g.SetWeight(1, 3, 1)
	g.SetWeight(3, 1, 1)
	g.SetWeight(3, 2, 1)
	g.SetWeight(2, 3, 1)
	st := Compute(g, nil)
	nh, cost := st.GetNextHops(1, 2)
	if cost != 2 {
		t.Fatalf("expected cost 2 via 3, got %v", cost)
	}
	if len(nh) != 1 || nh[0] != 3 {
		t.Fatalf("expected single next-hop {3}, got %v", nh)
	}
}

func TestExternalRoutersExcludedAsSource(t *testing.T) {
	g := NewGraph()
	g.SetWeight(1, 2, 1)
	g.SetWeight(2, 1, 1)
	st := Compute(g, map[RouterID]struct{}{2: {}})
	if _, ok := st.dist[2]; ok {
		t.Fatalf("expected external router 2 excluded from SPF sources")
	}
}

// TestAreaPathMustTransitBackbone builds two non-backbone areas (1 and 2)
// joined by a shortcut through router 3 (link 1-3 in area 1, link 3-2 in
// area 2), plus a longer route via the backbone (area 0) router 0. Since
// OSPF never allows a path to cross directly from one non-backbone area
// into another, the shortcut must be ignored even though it's shorter, and
// the only usable path is the one that transits the backbone router.
func TestAreaPathMustTransitBackbone(t *testing.T) {
	g := NewGraph()
	// Backbone: 0 connects into both areas.
	g.SetWeight(0, 1, 1)
	g.SetWeight(1, 0, 1)
	g.SetWeight(0, 2, 1)
	g.SetWeight(2, 0, 1)
	g.SetArea(0, 1, 0)
	g.SetArea(0, 2, 0)

	// A shortcut from area 1 straight into area 2 through router 3, shorter
	// than transiting the backbone, but illegal under two-level area
	// semantics.
	g.SetWeight(1, 3, 0.5)
	g.SetWeight(3, 1, 0.5)
	g.SetArea(1, 3, 1)
	g.SetWeight(3, 2, 0.5)
	g.SetWeight(2, 3, 0.5)
	g.SetArea(3, 2, 2)

	st := Compute(g, nil)
	nh, cost := st.GetNextHops(1, 2)
	if cost != 2 {
		t.Fatalf("expected cost 2 via the backbone router 0, got %v (next hops %v)", cost, nh)
	}
	if len(nh) != 1 || nh[0] != 0 {
		t.Fatalf("expected the only next hop to be backbone router 0, got %v", nh)
	}
}

// TestAreaIntraAreaIgnoresOtherAreaLinks checks the complementary case: an
// intra-area path must not be pulled onto a lower-weight link that belongs
// to a different area, even when that link would otherwise look like a
// shortcut within the same SPF run.
func TestAreaIntraAreaIgnoresOtherAreaLinks(t *testing.T) {
	g := NewGraph()
	// 1 and 2 are both area-1 routers connected by an area-1 link.
	g.SetWeight(1, 2, 5)
	g.SetWeight(2, 1, 5)
	g.SetArea(1, 2, 1)

	// A much cheaper path exists, but it first has to leave into area 2 via
	// an uninvolved router 3, which is disallowed without a backbone hop.
	g.SetWeight(1, 3, 1)
	g.SetWeight(3, 1, 1)
	g.SetArea(1, 3, 1)
	g.SetWeight(3, 2, 1)
	g.SetWeight(2, 3, 1)
	g.SetArea(3, 2, 2)

	st := Compute(g, nil)
	nh, cost := st.GetNextHops(1, 2)
	if cost != 5 {
		t.Fatalf("expected cost 5 via the direct area-1 link, got %v (next hops %v)", cost, nh)
	}
	if len(nh) != 1 || nh[0] != 2 {
		t.Fatalf("expected the direct area-1 next hop {2}, got %v", nh)
	}
}
