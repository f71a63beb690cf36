package router

import (
	"fmt"
	"reflect"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/simerr"
)

// MsgKind tags an incoming/outgoing BGP message.
type MsgKind int

const (
	MsgUpdate MsgKind = iota
	MsgWithdraw
)

// InMsg is a BGP message arriving at this router for one prefix, from
// one peer (spec §4.4's BgpEvent, specialized to this router's prefix
// type).
type InMsg[P comparable] struct {
	Kind  MsgKind
	Route bgproute.Route[P] // only meaningful when Kind == MsgUpdate
}

// OutMsg is a BGP message this router decided to emit towards one peer.
type OutMsg[P comparable] struct {
	To    RouterID
	Kind  MsgKind
	Route bgproute.Route[P]
}

// Ingest runs decision-process phase 1 (spec §4.2): insert/replace or
// remove the rib_in entry for (p, from). Returns false if the message was
// suppressed: either from isn't a current session peer of r (spec §4.5
// step 1 / §7: "Event sender is not a session peer → ignored → no state
// change"), or it was a route-reflection loop (the route's OriginatorID
// is this router's own id). Callers should log either case at Debug, not
// treat it as an error.
func (r *Router[P]) Ingest(p P, from RouterID, msg InMsg[P]) bool {
	fromType, hasSession := r.Sessions[from]
	if !hasSession {
		err := simerr.NewBgpError(simerr.ErrNoBgpSession, fmt.Sprintf("router %d, prefix %v", from, p))
		r.log().WithField("prefix", p).WithField("from", from).Debug(err)
		return false
	}
	r.markKnown(p)
	switch msg.Kind {
	case MsgUpdate:
		if msg.Route.OriginatorID != nil && *msg.Route.OriginatorID == r.ID {
			r.log().WithField("prefix", p).Debug("dropping update: originator-id loop")
			return false
		}
		entry := bgproute.RibEntry[P]{
			Route:    msg.Route.Clone(),
			FromType: fromType,
			FromID:   from,
		}
		if r.RibIn[p] == nil {
			r.RibIn[p] = make(map[RouterID]bgproute.RibEntry[P])
		}
		r.RibIn[p][from] = entry
	case MsgWithdraw:
		if peers, ok := r.RibIn[p]; ok {
			delete(peers, from)
		}
	}
	return true
}

// processIn implements spec §4.2 phase 2's per-candidate pipeline.
// ok is false when the candidate must be excluded from the argmax (a
// route-map Deny, or an infinite IGP cost to an iBGP-learned next-hop).
func (r *Router[P]) processIn(e bgproute.RibEntry[P]) (bgproute.RibEntry[P], bool) {
	cur := e.Clone()

	if rm, ok := r.RouteMapsIn[cur.FromID]; ok {
		applied, ok := rm.Apply(cur)
		if !ok {
			return bgproute.RibEntry[P]{}, false
		}
		cur = applied
	}

	if cur.FromType == bgproute.SessionEBgp {
		cur.Route.NextHop = cur.FromID
		zero := 0.0
		cur.IgpCost = &zero
	} else if cur.IgpCost == nil {
		cost := r.IgpCostTo(cur.Route.NextHop)
		if cost >= posInf {
			return bgproute.RibEntry[P]{}, false
		}
		c := cost
		cur.IgpCost = &c
	}

	if cur.Route.LocalPref == nil {
		lp := uint32(100)
		cur.Route.LocalPref = &lp
	}
	if cur.Route.Med == nil {
		med := uint32(0)
		cur.Route.Med = &med
	}

	cur.ToID = nil
	return cur, true
}

// Select runs decision-process phase 2: recompute the argmax over
// process_in(e) for every e in rib_in[p], and replace rib[p] if it
// changed. Returns the new selection (ok=false if nothing survived) and
// whether the selection actually changed from before.
func (r *Router[P]) Select(p P) (best bgproute.RibEntry[P], ok bool, changed bool) {
	var candidates []bgproute.RibEntry[P]
	for _, e := range r.RibIn[p] {
		if processed, ok := r.processIn(e); ok {
			candidates = append(candidates, processed)
		}
	}

	newBest, found := bgproute.Best(candidates)
	prev, hadPrev := r.Rib.Get(p)

	switch {
	case !found && !hadPrev:
		return bgproute.RibEntry[P]{}, false, false
	case !found && hadPrev:
		r.Rib.Delete(p)
		return bgproute.RibEntry[P]{}, false, true
	case found && hadPrev && ribEntryEqual(newBest, prev):
		return prev, true, false
	default:
		r.Rib.Insert(p, newBest)
		return newBest, true, true
	}
}

func ribEntryEqual[P comparable](a, b bgproute.RibEntry[P]) bool {
	return reflect.DeepEqual(a, b)
}

// processOut implements spec §4.2 phase 3 step 3: derive the entry sent
// to peer q from the router's selected best route. ok is false when the
// route-map for q dropped the route.
func (r *Router[P]) processOut(best bgproute.RibEntry[P], q RouterID) (bgproute.RibEntry[P], bool) {
	out := best.Clone()

	if out.FromType == bgproute.SessionEBgp {
		out.Route.NextHop = r.ID
	}

	targetType := r.Sessions[q]
	if out.FromType.IsIBgp() && targetType.IsIBgp() {
		if out.Route.OriginatorID == nil {
			oid := out.FromID
			out.Route.OriginatorID = &oid
		}
		out.Route.ClusterList = append(append([]RouterID(nil), out.Route.ClusterList...), r.ID)
	}

	toID := q
	out.ToID = &toID

	if rm, ok := r.RouteMapsOut[q]; ok {
		applied, ok := rm.Apply(out)
		if !ok {
			return bgproute.RibEntry[P]{}, false
		}
		out = applied
	}

	out.FromType = targetType
	if out.FromType == bgproute.SessionEBgp {
		out.Route.NextHop = r.ID
		out.Route.LocalPref = nil
		out.Route.OriginatorID = nil
		out.Route.ClusterList = nil
		out.Route.AsPath = append([]bgproute.AsID{r.AS}, out.Route.AsPath...)
	}

	return out, true
}

// exportAllowed implements spec §4.2 phase 3 step 1's re-advertisement
// rule: a route learned over eBGP or from an iBGP-client may be
// advertised to anyone; a route learned from an iBGP-peer may be
// advertised only to eBGP peers and to iBGP-clients. Never back to
// from_id.
func exportAllowed(fromType, targetType SessionType, q, fromID RouterID) bool {
	if q == fromID {
		return false
	}
	if fromType == bgproute.SessionEBgp || fromType == bgproute.SessionIBgpClient {
		return true
	}
	// fromType == iBGP-peer
	return targetType == bgproute.SessionEBgp || targetType == bgproute.SessionIBgpClient
}

// Disseminate runs decision-process phase 3 for prefix p given the
// freshly selected best entry (ok=false means "no selection", i.e. the
// route must be withdrawn from every peer that previously had it).
func (r *Router[P]) Disseminate(p P, best bgproute.RibEntry[P], ok bool) []OutMsg[P] {
	var out []OutMsg[P]
	if r.RibOut[p] == nil {
		r.RibOut[p] = make(map[RouterID]bgproute.RibEntry[P])
	}

	for q, targetType := range r.Sessions {
		prior, hadPrior := r.RibOut[p][q]

		if !ok {
			if hadPrior {
				out = append(out, OutMsg[P]{To: q, Kind: MsgWithdraw})
				delete(r.RibOut[p], q)
			}
			continue
		}

		if !exportAllowed(best.FromType, targetType, q, best.FromID) {
			if hadPrior {
				out = append(out, OutMsg[P]{To: q, Kind: MsgWithdraw})
				delete(r.RibOut[p], q)
			}
			continue
		}

		candidate, candOk := r.processOut(best, q)
		if !candOk {
			if hadPrior {
				out = append(out, OutMsg[P]{To: q, Kind: MsgWithdraw})
				delete(r.RibOut[p], q)
			}
			continue
		}

		if hadPrior && reflect.DeepEqual(candidate.Route, prior.Route) {
			continue
		}

		r.RibOut[p][q] = candidate
		out = append(out, OutMsg[P]{To: q, Kind: MsgUpdate, Route: candidate.Route.Clone()})
	}
	return out
}

// Decide runs phase 2 then phase 3 for p, the orchestration spec §4.5's
// simulation loop calls after Ingest for each popped event. Phase 3 is
// skipped (nil is returned) when phase 2 leaves the selection unchanged.
func (r *Router[P]) Decide(p P) []OutMsg[P] {
	best, ok, changed := r.Select(p)
	if !changed {
		return nil
	}
	return r.Disseminate(p, best, ok)
}
