package router

import (
	"testing"

	"github.com/netsim/bgpsim/internal/bgproute"
)

func TestExternalAdvertiseStampsOwnAs(t *testing.T) {
	x := NewExternal[string](5, "ext", 65001)
	x.AddPeer(1)
	x.AddPeer(2)

	msgs := x.AdvertiseRoute("1.2.3.0/24", bgproute.Route[string]{})
	if len(msgs) != 2 {
		t.Fatalf("expected an update to each of 2 peers, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Kind != MsgUpdate {
			t.Fatalf("expected Update messages")
		}
		if m.Route.NextHop != 5 {
			t.Fatalf("expected next-hop stamped to self, got %d", m.Route.NextHop)
		}
		if len(m.Route.AsPath) != 1 || m.Route.AsPath[0] != 65001 {
			t.Fatalf("expected as-path to start with own AS, got %+v", m.Route.AsPath)
		}
	}
}

func TestExternalRetractWithdrawsFromAllPeers(t *testing.T) {
	x := NewExternal[string](5, "ext", 65001)
	x.AddPeer(1)
	x.AdvertiseRoute("1.2.3.0/24", bgproute.Route[string]{})

	msgs := x.RetractRoute("1.2.3.0/24")
	if len(msgs) != 1 || msgs[0].Kind != MsgWithdraw || msgs[0].To != 1 {
		t.Fatalf("expected a single withdraw to peer 1, got %+v", msgs)
	}

	if again := x.RetractRoute("1.2.3.0/24"); again != nil {
		t.Fatalf("expected no-op retracting an already-withdrawn prefix, got %+v", again)
	}
}

func TestExternalOnSessionEstablishedReplaysActiveRoutes(t *testing.T) {
	x := NewExternal[string](5, "ext", 65001)
	x.AdvertiseRoute("1.2.3.0/24", bgproute.Route[string]{})
	x.AdvertiseRoute("1.2.4.0/24", bgproute.Route[string]{})

	msgs := x.OnSessionEstablished(9)
	if len(msgs) != 2 {
		t.Fatalf("expected the new peer to receive both active routes, got %d", len(msgs))
	}
	if _, ok := x.Peers[9]; !ok {
		t.Fatalf("expected the new peer to be recorded")
	}
}
