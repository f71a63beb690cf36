package router

import (
	"github.com/sirupsen/logrus"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/xlog"
)

// External is an external router: it originates routes into the
// simulation and peers with internal routers only over eBGP (spec §3's
// "external router" device kind). It carries no RIB-in, no decision
// process, and no IGP membership — it just announces and withdraws.
type External[P comparable] struct {
	ID   RouterID
	Name string
	AS   AsID

	Peers map[RouterID]struct{} // internal routers with an eBGP session to this one

	advertised map[P]bgproute.Route[P]
}

// NewExternal constructs an external router with nothing advertised yet.
func NewExternal[P comparable](id RouterID, name string, as AsID) *External[P] {
	return &External[P]{
		ID:         id,
		Name:       name,
		AS:         as,
		Peers:      make(map[RouterID]struct{}),
		advertised: make(map[P]bgproute.Route[P]),
	}
}

// AddPeer records peer as having an established eBGP session to this
// router, without emitting anything — callers wanting the "replay active
// routes to a newly joined peer" behavior call OnSessionEstablished too.
func (x *External[P]) AddPeer(peer RouterID) {
	x.Peers[peer] = struct{}{}
}

// RemovePeer tears down the session to peer. Active advertisements are
// not retracted towards other peers; they simply stop being sent to this
// one.
func (x *External[P]) RemovePeer(peer RouterID) {
	delete(x.Peers, peer)
}

// originate stamps a route with this router's identity: next-hop is
// itself, and its own AS is prepended to the path if not already the
// leftmost entry (spec §4.1: "an external router's own AS appears at the
// head of every route it originates").
func (x *External[P]) originate(p P, route bgproute.Route[P]) bgproute.Route[P] {
	out := route.Clone()
	out.Prefix = p
	out.NextHop = x.ID
	if len(out.AsPath) == 0 || out.AsPath[0] != x.AS {
		out.AsPath = append([]bgproute.AsID{x.AS}, out.AsPath...)
	}
	return out
}

// AdvertiseRoute originates or replaces p's advertisement and emits an
// Update to every peer with an established session (spec §6:
// advertise_external_route).
func (x *External[P]) AdvertiseRoute(p P, route bgproute.Route[P]) []OutMsg[P] {
	stamped := x.originate(p, route)
	x.advertised[p] = stamped

	var out []OutMsg[P]
	for peer := range x.Peers {
		out = append(out, OutMsg[P]{To: peer, Kind: MsgUpdate, Route: stamped.Clone()})
	}
	return out
}

// RetractRoute withdraws p, emitting a Withdraw to every established peer
// (spec §6: retract_external_route). A no-op if p was never advertised.
func (x *External[P]) RetractRoute(p P) []OutMsg[P] {
	if _, ok := x.advertised[p]; !ok {
		return nil
	}
	delete(x.advertised, p)

	var out []OutMsg[P]
	for peer := range x.Peers {
		out = append(out, OutMsg[P]{To: peer, Kind: MsgWithdraw})
	}
	return out
}

// OnSessionEstablished re-sends every currently active advertisement to
// peer. This covers both a brand-new session and one re-established
// after a flap; a late-joining eBGP neighbor must see the external
// router's full current state, not just advertisements made after it
// joined.
func (x *External[P]) OnSessionEstablished(peer RouterID) []OutMsg[P] {
	x.AddPeer(peer)

	var out []OutMsg[P]
	for _, route := range x.advertised {
		out = append(out, OutMsg[P]{To: peer, Kind: MsgUpdate, Route: route.Clone()})
	}
	return out
}

// AdvertisedPrefixes returns every prefix this router currently originates.
func (x *External[P]) AdvertisedPrefixes() []P {
	out := make([]P, 0, len(x.advertised))
	for p := range x.advertised {
		out = append(out, p)
	}
	return out
}

// AdvertisedRoute returns the route currently advertised for p, if any.
func (x *External[P]) AdvertisedRoute(p P) (bgproute.Route[P], bool) {
	route, ok := x.advertised[p]
	return route, ok
}

// Originates reports whether this router currently advertises p (spec §5:
// a path terminates here, "forwarded out of the simulated domain", rather
// than continuing through another IGP hop).
func (x *External[P]) Originates(p P) bool {
	_, ok := x.advertised[p]
	return ok
}

func (x *External[P]) log() *logrus.Entry {
	return xlog.WithRouter(int(x.ID))
}
