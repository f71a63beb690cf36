package netsim

import (
	"testing"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/router"
)

func TestGetConfigRoundTripsThroughSetConfig(t *testing.T) {
	src := newTestNetwork()
	r1 := src.AddRouter("r1", 100)
	r2 := src.AddRouter("r2", 100)
	if err := src.AddLink(r1, r2, 3); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := src.SetBgpSession(r1, r2, bgproute.SessionIBgpPeer); err != nil {
		t.Fatalf("SetBgpSession: %v", err)
	}
	if err := src.SetStaticRoute(r1, "10.0.0.0/8", router.StaticRoute{Kind: router.StaticDrop}); err != nil {
		t.Fatalf("SetStaticRoute: %v", err)
	}
	if err := src.SetLoadBalancing(r2, true); err != nil {
		t.Fatalf("SetLoadBalancing: %v", err)
	}

	cfg := src.GetConfig()

	dst := newTestNetwork()
	dst.AddRouter("r1", 100)
	dst.AddRouter("r2", 100)
	if err := dst.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	got := dst.GetConfig()
	if len(got) != len(cfg) {
		t.Fatalf("expected %d config entries after SetConfig, got %d", len(cfg), len(got))
	}
	for k, want := range cfg {
		if have, ok := got[k]; !ok || have.Weight != want.Weight || have.SessType != want.SessType {
			t.Fatalf("mismatched entry for key %+v: want %+v, got %+v", k, want, have)
		}
	}
}

func TestDiffProducesInsertRemoveUpdate(t *testing.T) {
	a := Config[string]{}
	weightExpr := Expr[string]{Kind: ExprIgpLinkWeight, A: 1, B: 2, Weight: 1}
	a[weightExpr.Key()] = weightExpr

	b := Config[string]{}
	updated := Expr[string]{Kind: ExprIgpLinkWeight, A: 1, B: 2, Weight: 5}
	b[updated.Key()] = updated
	lbExpr := Expr[string]{Kind: ExprLoadBalancing, A: 1, Enabled: true}
	b[lbExpr.Key()] = lbExpr

	patch := Diff(a, b)
	var sawUpdate, sawInsert bool
	for _, m := range patch {
		switch m.Kind {
		case ModUpdate:
			sawUpdate = true
			if m.To.Weight != 5 {
				t.Fatalf("expected update to new weight 5, got %v", m.To.Weight)
			}
		case ModInsert:
			sawInsert = true
		}
	}
	if !sawUpdate || !sawInsert {
		t.Fatalf("expected both an update and an insert in the patch, got %+v", patch)
	}
}

func TestApplyPatchRollsBackOnFailure(t *testing.T) {
	n := newTestNetwork()
	r1 := n.AddRouter("r1", 100)
	r2 := n.AddRouter("r2", 100)
	if err := n.AddLink(r1, r2, 1); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	good := Expr[string]{Kind: ExprLoadBalancing, A: r1, Enabled: true}
	bad := Expr[string]{Kind: ExprLoadBalancing, A: RouterID(999), Enabled: true}
	patch := []Modifier[string]{
		{Kind: ModInsert, Expr: good},
		{Kind: ModInsert, Expr: bad},
	}

	if err := n.ApplyPatch(patch); err == nil {
		t.Fatalf("expected ApplyPatch to fail on the unknown router")
	}

	cfg := n.GetConfig()
	if _, ok := cfg[good.Key()]; ok {
		t.Fatalf("expected the first modifier's effect rolled back after the second failed")
	}
}

func TestManualSimulationSkipsAutoConvergence(t *testing.T) {
	setup := func(n *Network[string]) (RouterID, RouterID) {
		r1 := n.AddRouter("r1", 100)
		ext := n.AddExternalRouter("ext", 65001)
		if err := n.AddLink(r1, ext, 1); err != nil {
			t.Fatalf("AddLink: %v", err)
		}
		if err := n.AdvertiseExternalRoute(ext, "10.0.0.0/8", bgproute.Route[string]{}); err != nil {
			t.Fatalf("AdvertiseExternalRoute: %v", err)
		}
		return r1, ext
	}
	sessionModifier := func(r1, ext RouterID) Modifier[string] {
		return Modifier[string]{Kind: ModInsert, Expr: Expr[string]{
			Kind: ExprBgpSession, A: r1, B: ext, SessType: bgproute.SessionEBgp,
		}}
	}

	auto := newTestNetwork()
	r1, ext := setup(auto)
	if err := auto.ApplyModifier(sessionModifier(r1, ext)); err != nil {
		t.Fatalf("ApplyModifier: %v", err)
	}
	if auto.PendingEvents() != 0 {
		t.Fatalf("expected the default mode to auto-drain the replayed advertisement")
	}

	manual := newTestNetwork()
	r1, ext = setup(manual)
	manual.ManualSimulation()
	if err := manual.ApplyModifier(sessionModifier(r1, ext)); err != nil {
		t.Fatalf("ApplyModifier: %v", err)
	}
	if manual.PendingEvents() == 0 {
		t.Fatalf("expected manual simulation mode to leave the replayed advertisement queued")
	}
}
