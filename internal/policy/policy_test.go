package policy

import (
	"math/rand"
	"testing"
)

func ids(xs ...int) []RouterID {
	out := make([]RouterID, len(xs))
	for i, x := range xs {
		out[i] = RouterID(x)
	}
	return out
}

func TestPathConditionNode(t *testing.T) {
	c := Node(0)
	if !c.Matches(ids(1, 0, 2)) {
		t.Fatalf("expected node 0 to match")
	}
	if !c.Matches(ids(0)) {
		t.Fatalf("expected node 0 to match single-element path")
	}
	if c.Matches(ids(2, 1)) {
		t.Fatalf("expected node 0 to not match")
	}
	if c.Matches(ids()) {
		t.Fatalf("expected node 0 to not match empty path")
	}
}

func TestPathConditionEdge(t *testing.T) {
	c := Edge(0, 1)
	if !c.Matches(ids(2, 0, 1, 3)) {
		t.Fatalf("expected edge 0->1 to match")
	}
	if !c.Matches(ids(0, 1)) {
		t.Fatalf("expected edge 0->1 to match exact path")
	}
	if c.Matches(ids(1, 0)) {
		t.Fatalf("expected reversed edge to not match")
	}
	if c.Matches(ids(0, 2, 1)) {
		t.Fatalf("expected non-adjacent 0,1 to not match")
	}
	if c.Matches(ids(0)) {
		t.Fatalf("expected single-node path to not match an edge")
	}
	if c.Matches(ids(1)) {
		t.Fatalf("expected single-node path to not match an edge")
	}
}

func TestPathConditionNot(t *testing.T) {
	c := Not(Node(0))
	if c.Matches(ids(1, 0, 2)) {
		t.Fatalf("expected Not(Node(0)) to fail when 0 is present")
	}
	if c.Matches(ids(0)) {
		t.Fatalf("expected Not(Node(0)) to fail when 0 is present")
	}
	if !c.Matches(ids(2, 1)) {
		t.Fatalf("expected Not(Node(0)) to hold when 0 is absent")
	}
	if !c.Matches(ids()) {
		t.Fatalf("expected Not(Node(0)) to hold on an empty path")
	}
}

func TestPathConditionOr(t *testing.T) {
	c := Or(Node(0), Node(1))
	if !c.Matches(ids(0, 2, 1)) {
		t.Fatalf("expected Or to match")
	}
	if !c.Matches(ids(2, 1)) {
		t.Fatalf("expected Or to match")
	}
	if !c.Matches(ids(0, 2)) {
		t.Fatalf("expected Or to match")
	}
	if c.Matches(ids(3, 2)) {
		t.Fatalf("expected Or to fail")
	}
	if c.Matches(ids()) {
		t.Fatalf("expected Or to fail on empty path")
	}

	empty := Or()
	if empty.Matches(ids(0, 2, 1)) {
		t.Fatalf("expected empty Or to never match")
	}
	if empty.Matches(ids()) {
		t.Fatalf("expected empty Or to never match")
	}
}

func TestPathConditionAnd(t *testing.T) {
	c := And(Node(0), Node(1))
	if !c.Matches(ids(0, 2, 1)) {
		t.Fatalf("expected And to match")
	}
	if c.Matches(ids(2, 1)) {
		t.Fatalf("expected And to fail")
	}
	if c.Matches(ids(0, 2)) {
		t.Fatalf("expected And to fail")
	}
	if c.Matches(ids()) {
		t.Fatalf("expected And to fail on empty path")
	}

	empty := And()
	if !empty.Matches(ids(0, 2, 1)) {
		t.Fatalf("expected empty And to always match")
	}
	if !empty.Matches(ids()) {
		t.Fatalf("expected empty And to always match on empty path")
	}
}

func checkCNFEquivalence(t *testing.T, c PathCondition, rounds, numRouters int) {
	t.Helper()
	cnf := ToCNF(c)
	rev := cnf.ToPathCondition()
	for i := 0; i < rounds; i++ {
		perm := rand.Perm(numRouters)
		n := rand.Intn(numRouters + 1)
		path := make([]RouterID, n)
		for j := 0; j < n; j++ {
			path[j] = RouterID(perm[j])
		}
		want := c.Matches(path)
		if got := cnf.Matches(path); got != want {
			t.Fatalf("cnf mismatch for path %v: direct=%v cnf=%v", path, want, got)
		}
		if got := rev.Matches(path); got != want {
			t.Fatalf("round-trip mismatch for path %v: direct=%v rev=%v", path, want, got)
		}
	}
}

func TestPathConditionToCNFSimple(t *testing.T) {
	checkCNFEquivalence(t, Node(0), 200, 10)
	checkCNFEquivalence(t, Edge(0, 1), 200, 10)
	checkCNFEquivalence(t, Not(Node(0)), 200, 10)
	checkCNFEquivalence(t, And(Node(0), Node(1)), 200, 10)
	checkCNFEquivalence(t, Or(Node(0), Node(1)), 200, 10)
}

func TestPathConditionToCNFComplex(t *testing.T) {
	checkCNFEquivalence(t, And(Not(Node(0)), Not(Node(1))), 200, 10)
	checkCNFEquivalence(t, Or(Not(Node(0)), Not(Node(1))), 200, 10)
	checkCNFEquivalence(t, Or(
		And(Node(0), Node(1)),
		And(Edge(0, 1), Node(2)),
		Not(Node(2)),
	), 200, 10)
	checkCNFEquivalence(t, Or(
		And(Node(0), Node(1)),
		And(Not(Edge(0, 1)), Node(2)),
		Not(Node(2)),
	), 200, 10)
	checkCNFEquivalence(t, Or(
		And(Node(0), Or(Node(2), Not(Edge(0, 1)))),
		And(Not(Edge(0, 1)), Node(2)),
		Not(Node(2)),
	), 200, 10)
	checkCNFEquivalence(t, Not(Or(
		And(Node(0), Or(Node(2), Not(Edge(0, 1)))),
		And(Not(Edge(0, 1)), Node(2)),
		Not(Node(2)),
	)), 200, 10)
}

func TestPathConditionCNFIsCNF(t *testing.T) {
	if !ToCNF(And(Node(0), Or(Node(1), Edge(0, 1)))).IsCNF() {
		t.Fatalf("expected a node/edge-only condition to convert to a true CNF")
	}
	if ToCNF(And(Node(0), Positional(Any(), Fix(1)))).IsCNF() {
		t.Fatalf("expected a positional condition to not reduce to a true CNF")
	}
}

func TestPathPositionalSingleAny(t *testing.T) {
	c := Positional(Any())
	if !c.Matches(ids(0)) {
		t.Fatalf("expected single Any to match a one-router path")
	}
	if !c.Matches(ids(1)) {
		t.Fatalf("expected single Any to match any one-router path")
	}
	if c.Matches(ids()) {
		t.Fatalf("expected single Any to fail on an empty path")
	}
	if c.Matches(ids(0, 1)) {
		t.Fatalf("expected single Any to fail on a two-router path")
	}
}

func TestPathPositionalSingleStar(t *testing.T) {
	c := Positional(Star())
	if !c.Matches(ids()) {
		t.Fatalf("expected Star to match an empty path")
	}
	if !c.Matches(ids(0)) {
		t.Fatalf("expected Star to match any path")
	}
	if !c.Matches(ids(0, 1)) {
		t.Fatalf("expected Star to match any path")
	}
	if !c.Matches(ids(0, 1, 2)) {
		t.Fatalf("expected Star to match any path")
	}
}

func TestPathPositionalSingleFix(t *testing.T) {
	c := Positional(Fix(0))
	if !c.Matches(ids(0)) {
		t.Fatalf("expected Fix(0) to match [0]")
	}
	if c.Matches(ids(1)) {
		t.Fatalf("expected Fix(0) to reject [1]")
	}
	if c.Matches(ids()) {
		t.Fatalf("expected Fix(0) to reject an empty path")
	}
	if c.Matches(ids(0, 1)) {
		t.Fatalf("expected Fix(0) to reject a longer path")
	}
}

func TestPathPositionalStarAny(t *testing.T) {
	c := Positional(Star(), Any())
	if c.Matches(ids()) {
		t.Fatalf("expected [*, ?] to reject an empty path")
	}
	if !c.Matches(ids(0)) || !c.Matches(ids(0, 1)) || !c.Matches(ids(0, 1, 2)) {
		t.Fatalf("expected [*, ?] to match any non-empty path")
	}

	c = Positional(Any(), Star())
	if c.Matches(ids()) {
		t.Fatalf("expected [?, *] to reject an empty path")
	}
	if !c.Matches(ids(0)) || !c.Matches(ids(0, 1)) || !c.Matches(ids(0, 1, 2)) {
		t.Fatalf("expected [?, *] to match any non-empty path")
	}
}

func TestPathPositionalStarStar(t *testing.T) {
	c := Positional(Star(), Star())
	for _, p := range [][]RouterID{ids(), ids(0), ids(0, 1), ids(0, 1, 2)} {
		if !c.Matches(p) {
			t.Fatalf("expected [*, *] to match %v", p)
		}
	}
}

func TestPathPositionalAnyAny(t *testing.T) {
	c := Positional(Any(), Any())
	if c.Matches(ids()) || c.Matches(ids(0)) {
		t.Fatalf("expected [?, ?] to require exactly two routers")
	}
	if !c.Matches(ids(0, 1)) {
		t.Fatalf("expected [?, ?] to match a two-router path")
	}
	if c.Matches(ids(0, 1, 2)) {
		t.Fatalf("expected [?, ?] to reject a three-router path")
	}
}

func TestPathPositionalStarFix(t *testing.T) {
	c := Positional(Star(), Fix(0))
	if c.Matches(ids()) {
		t.Fatalf("expected [*, 0] to reject an empty path")
	}
	if !c.Matches(ids(0)) || !c.Matches(ids(1, 0)) || !c.Matches(ids(2, 1, 0)) {
		t.Fatalf("expected [*, 0] to match a path ending at 0")
	}
	if c.Matches(ids(2, 1, 0, 3)) {
		t.Fatalf("expected [*, 0] to reject a path not ending at 0")
	}
	if c.Matches(ids(2, 1, 3)) {
		t.Fatalf("expected [*, 0] to reject a path never reaching 0")
	}
}

func TestPathPositionalFixStar(t *testing.T) {
	c := Positional(Fix(0), Star())
	if c.Matches(ids()) {
		t.Fatalf("expected [0, *] to reject an empty path")
	}
	if !c.Matches(ids(0)) || !c.Matches(ids(0, 1)) || !c.Matches(ids(0, 1, 2)) {
		t.Fatalf("expected [0, *] to match a path starting at 0")
	}
	if c.Matches(ids(3, 0, 1, 2)) {
		t.Fatalf("expected [0, *] to reject a path not starting at 0")
	}
	if c.Matches(ids(3, 1, 2)) {
		t.Fatalf("expected [0, *] to reject a path never starting at 0")
	}
}

func TestPathPositionalStarFixStar(t *testing.T) {
	c := Positional(Star(), Fix(0), Star())
	if c.Matches(ids()) {
		t.Fatalf("expected [*, 0, *] to reject an empty path")
	}
	for _, p := range [][]RouterID{ids(0), ids(0, 1), ids(0, 1, 2), ids(3, 0, 1, 2), ids(3, 4, 0, 1, 2)} {
		if !c.Matches(p) {
			t.Fatalf("expected [*, 0, *] to match %v", p)
		}
	}
	if c.Matches(ids(3, 1, 2)) {
		t.Fatalf("expected [*, 0, *] to reject a path never visiting 0")
	}
}

func TestPathPositionalStarFixFixStar(t *testing.T) {
	c := Positional(Star(), Fix(0), Fix(1), Star())
	if c.Matches(ids()) || c.Matches(ids(0)) {
		t.Fatalf("expected [*, 0, 1, *] to require 0 immediately followed by 1")
	}
	for _, p := range [][]RouterID{ids(0, 1), ids(0, 1, 2), ids(3, 0, 1, 2), ids(3, 4, 0, 1, 2)} {
		if !c.Matches(p) {
			t.Fatalf("expected [*, 0, 1, *] to match %v", p)
		}
	}
	if c.Matches(ids(3, 1, 2)) {
		t.Fatalf("expected [*, 0, 1, *] to reject a path missing the 0,1 pair")
	}
	if c.Matches(ids(3, 0, 2, 1)) {
		t.Fatalf("expected [*, 0, 1, *] to reject 0 not immediately followed by 1")
	}
	if c.Matches(ids(3, 2, 1)) {
		t.Fatalf("expected [*, 0, 1, *] to reject a path missing 0 entirely")
	}
}

func TestPathPositionalStarFixAnyFixStar(t *testing.T) {
	c := Positional(Star(), Fix(0), Any(), Fix(1), Star())
	for _, p := range [][]RouterID{ids(), ids(0), ids(0, 1), ids(0, 1, 2), ids(3, 0, 1, 2), ids(3, 4, 0, 1, 2), ids(3, 1, 2)} {
		if c.Matches(p) {
			t.Fatalf("expected [*, 0, ?, 1, *] to reject %v", p)
		}
	}
	if !c.Matches(ids(3, 0, 2, 1)) {
		t.Fatalf("expected [*, 0, ?, 1, *] to match 0 then any then 1")
	}
	if !c.Matches(ids(3, 0, 2, 1, 3)) {
		t.Fatalf("expected [*, 0, ?, 1, *] to match with trailing star")
	}
	if c.Matches(ids(3, 0, 2, 3, 1)) {
		t.Fatalf("expected [*, 0, ?, 1, *] to reject an extra hop between ? and 1")
	}
}

func TestPathPositionalStarFixStarFixStar(t *testing.T) {
	c := Positional(Star(), Fix(0), Star(), Fix(1), Star())
	if c.Matches(ids()) || c.Matches(ids(0)) {
		t.Fatalf("expected [*, 0, *, 1, *] to require both 0 and 1 in order")
	}
	for _, p := range [][]RouterID{
		ids(0, 1), ids(0, 1, 2), ids(3, 0, 1, 2), ids(3, 4, 0, 1, 2),
		ids(3, 0, 2, 1), ids(3, 0, 2, 1, 3), ids(3, 0, 2, 3, 1),
	} {
		if !c.Matches(p) {
			t.Fatalf("expected [*, 0, *, 1, *] to match %v", p)
		}
	}
	if c.Matches(ids(3, 1, 2)) {
		t.Fatalf("expected [*, 0, *, 1, *] to reject a path missing 0")
	}
	if c.Matches(ids(3, 2, 1, 0)) {
		t.Fatalf("expected [*, 0, *, 1, *] to reject 1 appearing before 0")
	}
}
