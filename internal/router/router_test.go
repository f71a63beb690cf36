package router

import (
	"testing"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/prefix"
)

func newTestRouter(id RouterID, as AsID) *Router[string] {
	return New[string](id, "r", as, prefix.NewExactTable[string, StaticRoute](), prefix.NewExactTable[string, bgproute.RibEntry[string]]())
}

func lp(v uint32) *uint32 { return &v }

func TestIngestSuppressesOriginatorLoop(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetSession(2, bgproute.SessionIBgpPeer)

	self := RouterID(1)
	accepted := r.Ingest("10.0.0.0/8", 2, InMsg[string]{
		Kind: MsgUpdate,
		Route: bgproute.Route[string]{
			Prefix:       "10.0.0.0/8",
			OriginatorID: &self,
		},
	})
	if accepted {
		t.Fatalf("expected ingest to suppress a route originated by self")
	}
	if _, ok := r.RibIn["10.0.0.0/8"][2]; ok {
		t.Fatalf("suppressed route must not enter rib_in")
	}
}

func TestIngestIgnoresEventFromNonSessionPeer(t *testing.T) {
	r := newTestRouter(1, 100)
	// No SetSession call for peer 2: it is a stale or foreign sender.
	accepted := r.Ingest("10.0.0.0/8", 2, InMsg[string]{
		Kind:  MsgUpdate,
		Route: bgproute.Route[string]{Prefix: "10.0.0.0/8", NextHop: 2},
	})
	if accepted {
		t.Fatalf("expected ingest to reject an event from a non-session peer")
	}
	if _, ok := r.RibIn["10.0.0.0/8"][2]; ok {
		t.Fatalf("rejected event must not enter rib_in")
	}
}

func TestSelectPrefersHigherLocalPref(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetLink(2, 1)
	r.SetLink(3, 1)
	r.SetSession(2, bgproute.SessionIBgpPeer)
	r.SetSession(3, bgproute.SessionIBgpPeer)
	r.SetIgpTable(map[RouterID]IgpEntry{
		2: {NextHops: []RouterID{2}, Cost: 1},
		3: {NextHops: []RouterID{3}, Cost: 1},
	})

	r.Ingest("10.0.0.0/8", 2, InMsg[string]{Kind: MsgUpdate, Route: bgproute.Route[string]{
		Prefix: "10.0.0.0/8", NextHop: 2, LocalPref: lp(100),
	}})
	r.Ingest("10.0.0.0/8", 3, InMsg[string]{Kind: MsgUpdate, Route: bgproute.Route[string]{
		Prefix: "10.0.0.0/8", NextHop: 3, LocalPref: lp(200),
	}})

	best, ok, changed := r.Select("10.0.0.0/8")
	if !ok || !changed {
		t.Fatalf("expected a selection change, got ok=%v changed=%v", ok, changed)
	}
	if best.FromID != 3 {
		t.Fatalf("expected route from higher local-pref peer 3, got %d", best.FromID)
	}
}

func TestSelectDropsIBgpRouteWithUnreachableNextHop(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetSession(2, bgproute.SessionIBgpPeer)
	// No IGP table entry for next-hop 9: unreachable.
	r.Ingest("10.0.0.0/8", 2, InMsg[string]{Kind: MsgUpdate, Route: bgproute.Route[string]{
		Prefix: "10.0.0.0/8", NextHop: 9,
	}})

	_, ok, _ := r.Select("10.0.0.0/8")
	if ok {
		t.Fatalf("expected route with unreachable iBGP next-hop to be dropped")
	}
}

func TestEBgpLearnedRouteBypassesIgpLookup(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetSession(2, bgproute.SessionEBgp)
	// r has no IGP table entry for peer 2 at all (external routers are not
	// IGP nodes), yet the route must still be selectable.
	r.Ingest("10.0.0.0/8", 2, InMsg[string]{Kind: MsgUpdate, Route: bgproute.Route[string]{
		Prefix: "10.0.0.0/8", NextHop: 2,
	}})

	best, ok, _ := r.Select("10.0.0.0/8")
	if !ok {
		t.Fatalf("expected eBGP-learned route to be selected despite no IGP entry for the peer")
	}
	if best.IgpCost == nil || *best.IgpCost != 0 {
		t.Fatalf("expected eBGP entry igp_cost rewritten to 0, got %+v", best.IgpCost)
	}
	if best.Route.NextHop != 2 {
		t.Fatalf("expected next-hop rewritten to from_id 2, got %d", best.Route.NextHop)
	}
}

func TestDisseminateWithholdsIBgpPeerRouteFromAnotherIBgpPeer(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetSession(2, bgproute.SessionIBgpPeer) // route arrives from here
	r.SetSession(3, bgproute.SessionIBgpPeer) // must NOT be re-advertised here
	r.SetSession(4, bgproute.SessionEBgp)     // must be re-advertised here

	best := bgproute.RibEntry[string]{
		Route:    bgproute.Route[string]{Prefix: "10.0.0.0/8", NextHop: 2},
		FromType: bgproute.SessionIBgpPeer,
		FromID:   2,
	}
	msgs := r.Disseminate("10.0.0.0/8", best, true)

	var sawTo3, sawTo4 bool
	for _, m := range msgs {
		if m.To == 2 {
			t.Fatalf("must never advertise back to from_id")
		}
		if m.To == 3 {
			sawTo3 = true
		}
		if m.To == 4 {
			sawTo4 = true
		}
	}
	if sawTo3 {
		t.Fatalf("iBGP-peer-learned route must not be re-advertised to another iBGP peer")
	}
	if !sawTo4 {
		t.Fatalf("iBGP-peer-learned route must be re-advertised to eBGP peers")
	}
}

func TestDisseminateReflectsToClientAndStampsClusterList(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetSession(2, bgproute.SessionIBgpPeer)
	r.SetSession(3, bgproute.SessionIBgpClient)

	best := bgproute.RibEntry[string]{
		Route:    bgproute.Route[string]{Prefix: "10.0.0.0/8", NextHop: 2},
		FromType: bgproute.SessionIBgpPeer,
		FromID:   2,
	}
	msgs := r.Disseminate("10.0.0.0/8", best, true)

	found := false
	for _, m := range msgs {
		if m.To != 3 {
			continue
		}
		found = true
		if m.Route.OriginatorID == nil || *m.Route.OriginatorID != 2 {
			t.Fatalf("expected originator_id defaulted to from_id 2, got %+v", m.Route.OriginatorID)
		}
		if len(m.Route.ClusterList) != 1 || m.Route.ClusterList[0] != 1 {
			t.Fatalf("expected cluster_list to record this reflector's id, got %+v", m.Route.ClusterList)
		}
	}
	if !found {
		t.Fatalf("expected a reflected update to the iBGP client")
	}
}

func TestDisseminateToEBgpPrependsAsAndClearsLocalPref(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetSession(2, bgproute.SessionIBgpPeer)
	r.SetSession(4, bgproute.SessionEBgp)

	best := bgproute.RibEntry[string]{
		Route:    bgproute.Route[string]{Prefix: "10.0.0.0/8", NextHop: 2, LocalPref: lp(150)},
		FromType: bgproute.SessionIBgpPeer,
		FromID:   2,
	}
	msgs := r.Disseminate("10.0.0.0/8", best, true)

	for _, m := range msgs {
		if m.To != 4 {
			continue
		}
		if m.Route.LocalPref != nil {
			t.Fatalf("expected local_pref cleared on eBGP egress, got %+v", m.Route.LocalPref)
		}
		if len(m.Route.AsPath) == 0 || m.Route.AsPath[0] != 100 {
			t.Fatalf("expected self AS prepended, got %+v", m.Route.AsPath)
		}
		if m.Route.NextHop != 1 {
			t.Fatalf("expected next-hop rewritten to self, got %d", m.Route.NextHop)
		}
		return
	}
	t.Fatalf("expected an update towards the eBGP peer")
}

func TestDecideWithdrawsWhenSelectionDisappears(t *testing.T) {
	r := newTestRouter(1, 100)
	r.SetSession(2, bgproute.SessionEBgp)
	r.SetSession(3, bgproute.SessionIBgpPeer)

	r.Ingest("10.0.0.0/8", 2, InMsg[string]{Kind: MsgUpdate, Route: bgproute.Route[string]{
		Prefix: "10.0.0.0/8", NextHop: 2,
	}})
	if msgs := r.Decide("10.0.0.0/8"); len(msgs) == 0 {
		t.Fatalf("expected an initial advertisement to peer 3")
	}

	r.Ingest("10.0.0.0/8", 2, InMsg[string]{Kind: MsgWithdraw})
	msgs := r.Decide("10.0.0.0/8")
	found := false
	for _, m := range msgs {
		if m.To == 3 && m.Kind == MsgWithdraw {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected withdraw towards peer 3 once the only route disappears, got %+v", msgs)
	}
}
