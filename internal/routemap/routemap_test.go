package routemap

import (
	"testing"

	"github.com/netsim/bgpsim/internal/bgproute"
)

func u32(v uint32) *uint32 { return &v }

func TestApplyDenyDropsRoute(t *testing.T) {
	l := NewList[string](Item[string]{
		Order: 1,
		State: Deny,
		Conds: []Match[string]{{Kind: MatchPrefix, Prefixes: []string{"p0"}}},
		Flow:  Flow{Kind: FlowExit},
	})
	entry := bgproute.RibEntry[string]{Route: bgproute.Route[string]{Prefix: "p0"}}
	_, ok := l.Apply(entry)
	if ok {
		t.Fatalf("expected Deny item to drop the route")
	}
}

func TestApplySetsThenExit(t *testing.T) {
	l := NewList[string](Item[string]{
		Order: 1,
		State: Allow,
		Sets:  []Set[string]{{Kind: SetLocalPref, Uint32: u32(200)}},
		Flow:  Flow{Kind: FlowExit},
	})
	entry := bgproute.RibEntry[string]{Route: bgproute.Route[string]{Prefix: "p0"}}
	out, ok := l.Apply(entry)
	if !ok {
		t.Fatalf("expected Allow item to pass")
	}
	if out.Route.LocalPrefOrDefault() != 200 {
		t.Fatalf("expected local_pref 200, got %d", out.Route.LocalPrefOrDefault())
	}
}

func TestApplyContinueAtJumps(t *testing.T) {
	l := NewList[string](
		Item[string]{Order: 1, State: Allow, Sets: []Set[string]{{Kind: SetWeight, Uint32: u32(10)}}, Flow: Flow{Kind: FlowContinueAt, At: 30}},
		Item[string]{Order: 2, State: Allow, Sets: []Set[string]{{Kind: SetWeight, Uint32: u32(20)}}, Flow: Flow{Kind: FlowExit}},
		Item[string]{Order: 30, State: Allow, Sets: []Set[string]{{Kind: SetMed, Uint32: u32(5)}}, Flow: Flow{Kind: FlowExit}},
	)
	out, ok := l.Apply(bgproute.RibEntry[string]{})
	if !ok {
		t.Fatalf("expected route to survive")
	}
	if out.Weight != 10 {
		t.Fatalf("expected weight set by item 1, got %d", out.Weight)
	}
	if out.Route.MedOrDefault() != 5 {
		t.Fatalf("expected item 2 (order 2) to be skipped by ContinueAt(30), med=%d", out.Route.MedOrDefault())
	}
}

func TestApplyEndOfListUnchanged(t *testing.T) {
	l := NewList[string]()
	in := bgproute.RibEntry[string]{Route: bgproute.Route[string]{Prefix: "p0"}}
	out, ok := l.Apply(in)
	if !ok || out.Route.Prefix != "p0" {
		t.Fatalf("expected unchanged route through empty list")
	}
}

func TestInsertRejectsDuplicateOrder(t *testing.T) {
	l := NewList[string]()
	if !l.Insert(Item[string]{Order: 5}) {
		t.Fatalf("expected first insert to succeed")
	}
	if l.Insert(Item[string]{Order: 5}) {
		t.Fatalf("expected duplicate order to be rejected")
	}
}

func TestRemoveAndLen(t *testing.T) {
	l := NewList[string](Item[string]{Order: 1}, Item[string]{Order: 2})
	if l.Len() != 2 {
		t.Fatalf("expected len 2, got %d", l.Len())
	}
	if !l.Remove(1) {
		t.Fatalf("expected remove of existing order to succeed")
	}
	if l.Len() != 1 {
		t.Fatalf("expected len 1 after remove, got %d", l.Len())
	}
}
