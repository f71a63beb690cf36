// Package netsim implements the simulator's top-level façade (spec §6,
// component I): the Network object that owns every router, the IGP
// graph, the event queue, and derived forwarding state, and exposes the
// public operations used to build and mutate a topology: a top-level
// owner object guarding state behind a mutex, with hierarchical
// accessors and diff-keyed config editing, built around BGP/IGP router
// state rather than device/interface/VLAN state.
package netsim

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/forwarding"
	"github.com/netsim/bgpsim/internal/igp"
	"github.com/netsim/bgpsim/internal/prefix"
	"github.com/netsim/bgpsim/internal/queue"
	"github.com/netsim/bgpsim/internal/router"
	"github.com/netsim/bgpsim/internal/routemap"
	"github.com/netsim/bgpsim/internal/simerr"
	"github.com/netsim/bgpsim/internal/xlog"
)

// RouterID, AsID and SessionType are re-exported from router so callers
// only need one import path.
type RouterID = router.RouterID
type AsID = router.AsID
type SessionType = router.SessionType

// RibFactory and StaticFactory build the prefix table implementation used
// for a new router's RIB and static-route table respectively, letting
// callers choose the Single, Simple, or IP-network/LPM prefix variant
// (spec §9) once, at Network construction, rather than per router.
type RibFactory[P comparable] func() prefix.Table[P, bgproute.RibEntry[P]]
type StaticFactory[P comparable] func() prefix.Table[P, router.StaticRoute]

// defaultMsgLimit is the step budget Simulate is given by ApplyModifier/
// ApplyPatch/SetConfig when no narrower one has been set via
// SetMsgLimit (spec §6: set_msg_limit(n?), n optional).
const defaultMsgLimit = 10_000

// Network owns the entire simulated topology: routers, links, sessions,
// the pluggable event queue, and the derived IGP/forwarding state built
// from them.
type Network[P comparable] struct {
	mu sync.RWMutex

	routers   map[RouterID]*router.Router[P]
	externals map[RouterID]*router.External[P]
	names     map[string]RouterID
	nextID    RouterID

	graph *igp.Graph
	igpSt *igp.State
	fwd   *forwarding.State[P]
	q     queue.Queue

	ribFactory    RibFactory[P]
	staticFactory StaticFactory[P]

	knownPrefixes map[P]struct{}

	msgLimit  int
	skipQueue bool
}

// New constructs an empty network backed by q for event delivery.
func New[P comparable](q queue.Queue, ribFactory RibFactory[P], staticFactory StaticFactory[P]) *Network[P] {
	n := &Network[P]{
		routers:       make(map[RouterID]*router.Router[P]),
		externals:     make(map[RouterID]*router.External[P]),
		names:         make(map[string]RouterID),
		graph:         igp.NewGraph(),
		fwd:           forwarding.New[P](),
		q:             q,
		ribFactory:    ribFactory,
		staticFactory: staticFactory,
		knownPrefixes: make(map[P]struct{}),
		msgLimit:      defaultMsgLimit,
	}
	n.igpSt = igp.Compute(n.graph, nil)
	return n
}

// SetMsgLimit sets the step budget used internally by ApplyModifier,
// ApplyPatch and SetConfig's post-apply convergence pass (spec §6:
// set_msg_limit(n?)). limit<=0 resets it to the default budget.
func (n *Network[P]) SetMsgLimit(limit int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit <= 0 {
		limit = defaultMsgLimit
	}
	n.msgLimit = limit
}

// ManualSimulation sets skip_queue (spec §6: manual_simulation()) so
// ApplyModifier/ApplyPatch/SetConfig leave the event queue for the caller
// to drain by hand via Step, instead of auto-simulating to quiescence.
func (n *Network[P]) ManualSimulation() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.skipQueue = true
}

func (n *Network[P]) log() *logrus.Entry { return xlog.Logger.WithField("component", "netsim") }

// AddRouter creates an internal router and returns its id (spec §6:
// add_router).
func (n *Network[P]) AddRouter(name string, as AsID) RouterID {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	r := router.New[P](id, name, as, n.staticFactory(), n.ribFactory())
	n.routers[id] = r
	n.names[name] = id
	n.graph.AddNode(igp.RouterID(id))
	n.fwd.AddRouter(r)
	n.recomputeIgpLocked()
	return id
}

// AddExternalRouter creates an external router (spec §6: add_external_router).
func (n *Network[P]) AddExternalRouter(name string, as AsID) RouterID {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	x := router.NewExternal[P](id, name, as)
	n.externals[id] = x
	n.names[name] = id
	n.graph.AddNode(igp.RouterID(id))
	n.fwd.AddExternal(x)
	n.recomputeIgpLocked()
	return id
}

// RemoveRouter deletes a, internal or external, and every session/link
// referencing it (spec §6: remove_router).
func (n *Network[P]) RemoveRouter(id RouterID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.requireRouterLocked(id); err != nil {
		return err
	}
	for _, r := range n.routers {
		r.RemoveSession(id)
		r.RemoveLink(id)
	}
	for _, x := range n.externals {
		x.RemovePeer(id)
	}
	if r, ok := n.routers[id]; ok {
		delete(n.names, r.Name)
	}
	if x, ok := n.externals[id]; ok {
		delete(n.names, x.Name)
	}
	delete(n.routers, id)
	delete(n.externals, id)
	n.graph.RemoveNode(igp.RouterID(id))
	n.fwd.RemoveRouter(id)
	n.fwd.RemoveExternal(id)
	n.recomputeIgpLocked()
	return nil
}

func (n *Network[P]) requireRouterLocked(id RouterID) error {
	if _, ok := n.routers[id]; ok {
		return nil
	}
	if _, ok := n.externals[id]; ok {
		return nil
	}
	return simerr.NewTopologyError(simerr.ErrDeviceNotFound, fmt.Sprintf("router id %d", id))
}

func (n *Network[P]) requireInternalLocked(id RouterID) (*router.Router[P], error) {
	r, ok := n.routers[id]
	if !ok {
		if _, ext := n.externals[id]; ext {
			return nil, simerr.NewTopologyError(simerr.ErrDeviceIsExternal, fmt.Sprintf("router id %d", id))
		}
		return nil, simerr.NewTopologyError(simerr.ErrDeviceNotFound, fmt.Sprintf("router id %d", id))
	}
	return r, nil
}

// AddLink establishes a symmetric, equal-weight link between a and b
// (spec §6: add_link).
func (n *Network[P]) AddLink(a, b RouterID, weight float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.requireRouterLocked(a); err != nil {
		return err
	}
	if err := n.requireRouterLocked(b); err != nil {
		return err
	}
	n.setLinkLocked(a, b, weight)
	n.setLinkLocked(b, a, weight)
	n.recomputeIgpLocked()
	return nil
}

func (n *Network[P]) setLinkLocked(a, b RouterID, weight float64) {
	n.graph.SetWeight(igp.RouterID(a), igp.RouterID(b), weight)
	if r, ok := n.routers[a]; ok {
		r.SetLink(b, weight)
	}
}

// RemoveLink tears down the link between a and b (spec §6: remove_link).
func (n *Network[P]) RemoveLink(a, b RouterID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.graph.Weight(igp.RouterID(a), igp.RouterID(b)) >= igp.Inf {
		return simerr.NewTopologyError(simerr.ErrRoutersNotConnected, fmt.Sprintf("%d-%d", a, b))
	}
	n.graph.RemoveLink(igp.RouterID(a), igp.RouterID(b))
	n.graph.RemoveLink(igp.RouterID(b), igp.RouterID(a))
	if r, ok := n.routers[a]; ok {
		r.RemoveLink(b)
	}
	if r, ok := n.routers[b]; ok {
		r.RemoveLink(a)
	}
	n.recomputeIgpLocked()
	return nil
}

// SetLinkWeight updates the directed weight a->b only, allowing
// asymmetric IGP costs (spec §6: set_link_weight).
func (n *Network[P]) SetLinkWeight(a, b RouterID, weight float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.graph.Weight(igp.RouterID(a), igp.RouterID(b)) >= igp.Inf {
		return simerr.NewTopologyError(simerr.ErrRoutersNotConnected, fmt.Sprintf("%d-%d", a, b))
	}
	n.setLinkLocked(a, b, weight)
	n.recomputeIgpLocked()
	return nil
}

// SetOspfArea tags the undirected link a-b with area (spec §6:
// set_ospf_area).
func (n *Network[P]) SetOspfArea(a, b RouterID, area int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.graph.SetArea(igp.RouterID(a), igp.RouterID(b), area)
	return nil
}

func (n *Network[P]) externalIDSet() map[igp.RouterID]struct{} {
	out := make(map[igp.RouterID]struct{}, len(n.externals))
	for id := range n.externals {
		out[igp.RouterID(id)] = struct{}{}
	}
	return out
}

func (n *Network[P]) recomputeIgpLocked() {
	n.igpSt = igp.Compute(n.graph, n.externalIDSet())
	for id, r := range n.routers {
		table := make(map[RouterID]router.IgpEntry)
		for _, dst := range n.graph.Nodes() {
			if RouterID(dst) == id {
				continue
			}
			hops, cost := n.igpSt.GetNextHops(igp.RouterID(id), dst)
			if cost >= igp.Inf {
				continue
			}
			rhops := make([]RouterID, len(hops))
			for i, h := range hops {
				rhops[i] = RouterID(h)
			}
			table[RouterID(dst)] = router.IgpEntry{NextHops: rhops, Cost: cost}
		}
		r.SetIgpTable(table)
	}
	n.q.UpdateParams(n.graph)
	n.fwd.InvalidateAll()
}

// SetBgpSession establishes or updates the session between a and b (spec
// §6: set_bgp_session). t is evaluated from a's perspective:
// SessionIBgpClient means b is a's route-reflector client (b sees a as a
// plain SessionIBgpPeer in return); SessionEBgp requires exactly one of
// a/b to be an external router.
func (n *Network[P]) SetBgpSession(a, b RouterID, t SessionType) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setBgpSessionLocked(a, b, t)
}

func (n *Network[P]) setBgpSessionLocked(a, b RouterID, t SessionType) error {
	ra, aInt := n.routers[a]
	rb, bInt := n.routers[b]
	xa, aExt := n.externals[a]
	xb, bExt := n.externals[b]

	switch t {
	case bgproute.SessionEBgp:
		switch {
		case aInt && bExt:
			ra.SetSession(b, bgproute.SessionEBgp)
			n.pushReplayedMsgs(b, xb.OnSessionEstablished(a))
		case bInt && aExt:
			rb.SetSession(a, bgproute.SessionEBgp)
			n.pushReplayedMsgs(a, xa.OnSessionEstablished(b))
		default:
			return simerr.NewBgpError(simerr.ErrInvalidBgpSessionType, "eBGP session requires exactly one external endpoint")
		}
	case bgproute.SessionIBgpPeer:
		if !aInt || !bInt {
			return simerr.NewBgpError(simerr.ErrInvalidBgpSessionType, "iBGP session requires both endpoints internal")
		}
		ra.SetSession(b, bgproute.SessionIBgpPeer)
		rb.SetSession(a, bgproute.SessionIBgpPeer)
		// unlike the eBGP branch, there is no peer to replay an existing
		// RIB from: a fresh iBGP session only starts carrying routes once
		// every router's best-route selection is recomputed against it.
		n.redecideAllLocked()
	case bgproute.SessionIBgpClient:
		if !aInt || !bInt {
			return simerr.NewBgpError(simerr.ErrInvalidBgpSessionType, "iBGP session requires both endpoints internal")
		}
		ra.SetSession(b, bgproute.SessionIBgpClient)
		rb.SetSession(a, bgproute.SessionIBgpPeer)
		n.redecideAllLocked()
	default:
		return simerr.NewBgpError(simerr.ErrInvalidBgpSessionType, "unknown session type")
	}
	return nil
}

// removeBgpSessionLocked tears down whatever session exists between a
// and b, without touching the underlying link — used by the config
// layer's Remove(BgpSession{...}) modifier, which models "no session"
// rather than "no link" (spec §4.6). The withdrawn peer's RIB-in/out
// entries are gone immediately, but every other router's selection
// still needs to be recomputed before it can replace a route it no
// longer has a path to, so a removal triggers the same redecide pass an
// insert does.
func (n *Network[P]) removeBgpSessionLocked(a, b RouterID) error {
	if ra, ok := n.routers[a]; ok {
		ra.RemoveSession(b)
	}
	if rb, ok := n.routers[b]; ok {
		rb.RemoveSession(a)
	}
	if xa, ok := n.externals[a]; ok {
		xa.RemovePeer(b)
	}
	if xb, ok := n.externals[b]; ok {
		xb.RemovePeer(a)
	}
	n.redecideAllLocked()
	return nil
}

// pushReplayedMsgs delivers External.OnSessionEstablished's replayed
// updates, each carrying its own prefix (unlike Router.OutMsg's shared-p
// convention, one per call to Decide).
func (n *Network[P]) pushReplayedMsgs(from RouterID, msgs []router.OutMsg[P]) {
	for _, m := range msgs {
		n.q.Push(queue.Event{
			From: igp.RouterID(from),
			To:   igp.RouterID(m.To),
			Msg: queue.BgpEvent{
				Kind:   queue.EventUpdate,
				Prefix: m.Route.Prefix,
				Route:  m.Route,
			},
		})
	}
}

// SetBgpRouteMap installs list as r's route-map towards neighbor, inbound
// unless outbound is set, returning whatever map it replaced (spec §6:
// set_bgp_route_map).
func (n *Network[P]) SetBgpRouteMap(r, neighbor RouterID, outbound bool, list *routemap.List[P]) (*routemap.List[P], error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rt, err := n.requireInternalLocked(r)
	if err != nil {
		return nil, err
	}
	var old *routemap.List[P]
	if outbound {
		old = rt.SetRouteMapOut(neighbor, list)
	} else {
		old = rt.SetRouteMapIn(neighbor, list)
	}
	n.redecideAllLocked()
	return old, nil
}

// RemoveBgpRouteMapItem deletes one item from r's route-map towards
// neighbor (spec §6: remove_bgp_route_map).
func (n *Network[P]) RemoveBgpRouteMapItem(r, neighbor RouterID, outbound bool, order int) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rt, err := n.requireInternalLocked(r)
	if err != nil {
		return false, err
	}
	removed := rt.RemoveRouteMapItem(neighbor, outbound, order)
	n.redecideAllLocked()
	return removed, nil
}

// RouteMapEdit is one entry of a BatchUpdateRouteMaps call.
type RouteMapEdit[P comparable] struct {
	Router   RouterID
	Neighbor RouterID
	Outbound bool
	List     *routemap.List[P]
}

// BatchUpdateRouteMaps applies every edit before re-running the decision
// process once, so intermediate states between edits never disseminate
// (spec §6: batch_update_route_maps).
func (n *Network[P]) BatchUpdateRouteMaps(edits []RouteMapEdit[P]) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range edits {
		rt, err := n.requireInternalLocked(e.Router)
		if err != nil {
			return err
		}
		if e.Outbound {
			rt.SetRouteMapOut(e.Neighbor, e.List)
		} else {
			rt.SetRouteMapIn(e.Neighbor, e.List)
		}
	}
	n.redecideAllLocked()
	return nil
}

// redecideAllLocked re-runs selection and dissemination for every known
// prefix on every router, so a route-map edit's effect disseminates
// without waiting for an unrelated topology event to trigger it.
// Dissemination runs even when the selection is unchanged, since an
// outbound route-map or a new session can change what peers receive.
func (n *Network[P]) redecideAllLocked() {
	for p := range n.knownPrefixes {
		for id, r := range n.routers {
			best, ok, _ := r.Select(p)
			msgs := r.Disseminate(p, best, ok)
			n.fwd.Invalidate(p)
			n.pushOutMsgs(id, p, msgs)
		}
	}
}

// SetStaticRoute installs a static route on r (spec §6: set_static_route).
func (n *Network[P]) SetStaticRoute(r RouterID, p P, sr router.StaticRoute) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	rt, err := n.requireInternalLocked(r)
	if err != nil {
		return err
	}
	rt.SetStaticRoute(p, sr)
	n.knownPrefixes[p] = struct{}{}
	n.fwd.Invalidate(p)
	return nil
}

// SetLoadBalancing toggles ECMP forwarding on r (spec §6:
// set_load_balancing).
func (n *Network[P]) SetLoadBalancing(r RouterID, enabled bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	rt, err := n.requireInternalLocked(r)
	if err != nil {
		return err
	}
	rt.SetLoadBalancing(enabled)
	n.fwd.InvalidateAll()
	return nil
}

// AdvertiseExternalRoute originates p at external router ext (spec §6:
// advertise_external_route).
func (n *Network[P]) AdvertiseExternalRoute(ext RouterID, p P, route bgproute.Route[P]) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	x, ok := n.externals[ext]
	if !ok {
		return simerr.NewTopologyError(simerr.ErrDeviceNotFound, fmt.Sprintf("external router %d", ext))
	}
	n.knownPrefixes[p] = struct{}{}
	msgs := x.AdvertiseRoute(p, route)
	n.pushOutMsgs(ext, p, msgs)
	n.fwd.Invalidate(p)
	return nil
}

// RetractExternalRoute withdraws p at external router ext (spec §6:
// retract_external_route).
func (n *Network[P]) RetractExternalRoute(ext RouterID, p P) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	x, ok := n.externals[ext]
	if !ok {
		return simerr.NewTopologyError(simerr.ErrDeviceNotFound, fmt.Sprintf("external router %d", ext))
	}
	msgs := x.RetractRoute(p)
	n.pushOutMsgs(ext, p, msgs)
	n.fwd.Invalidate(p)
	return nil
}

func (n *Network[P]) pushOutMsgs(from RouterID, p P, msgs []router.OutMsg[P]) {
	for _, m := range msgs {
		ev := queue.Event{From: igp.RouterID(from), To: igp.RouterID(m.To)}
		switch m.Kind {
		case router.MsgUpdate:
			ev.Msg = queue.BgpEvent{Kind: queue.EventUpdate, Prefix: p, Route: m.Route}
		case router.MsgWithdraw:
			ev.Msg = queue.BgpEvent{Kind: queue.EventWithdraw, Prefix: p}
		}
		n.q.Push(ev)
	}
}

// dispatch applies one popped event to its destination router, per spec
// §4.5's simulation loop: ingest, then run the decision process, then
// enqueue whatever it disseminates.
func (n *Network[P]) dispatch(ev queue.Event) {
	to := RouterID(ev.To)
	r, ok := n.routers[to]
	if !ok {
		if _, isExternal := n.externals[to]; !isExternal {
			// Neither an internal router nor an external sink: the
			// destination was removed or never existed (spec §7: "Event
			// targets unknown router → ignored with log").
			n.log().WithField("to", to).Debug("dropping event: target router unknown")
		}
		return
	}
	from := RouterID(ev.From)

	var p P
	var in router.InMsg[P]
	switch ev.Msg.Kind {
	case queue.EventUpdate:
		p, _ = ev.Msg.Prefix.(P)
		route, _ := ev.Msg.Route.(bgproute.Route[P])
		in = router.InMsg[P]{Kind: router.MsgUpdate, Route: route}
	case queue.EventWithdraw:
		p, _ = ev.Msg.Prefix.(P)
		in = router.InMsg[P]{Kind: router.MsgWithdraw}
	}

	r.Ingest(p, from, in)
	out := r.Decide(p)
	n.fwd.Invalidate(p)
	n.knownPrefixes[p] = struct{}{}
	n.pushOutMsgs(to, p, out)
}

// Simulate drains the event queue until empty or maxSteps is exceeded,
// returning a NoConvergenceError in the latter case (spec §6: simulate).
func (n *Network[P]) Simulate(maxSteps int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	steps := 0
	for !n.q.IsEmpty() {
		if steps >= maxSteps {
			return &simerr.NoConvergenceError{StepsRun: steps, Pending: n.q.Len()}
		}
		ev, ok := n.q.Pop()
		if !ok {
			break
		}
		n.dispatch(ev)
		steps++
	}
	return nil
}

// Step pops and applies a single event, reporting false once the queue is
// empty (spec §6: manual_simulation).
func (n *Network[P]) Step() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ev, ok := n.q.Pop()
	if !ok {
		return false
	}
	n.dispatch(ev)
	return true
}

// PendingEvents reports how many events are queued, undelivered.
func (n *Network[P]) PendingEvents() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.q.Len()
}

// GetForwardingState returns the live forwarding-state view (spec §6:
// get_forwarding_state). Queries against it always reflect the network's
// current RIBs; callers don't need to re-fetch after Simulate/Step.
func (n *Network[P]) GetForwardingState() *forwarding.State[P] {
	return n.fwd
}

// GetOspfState returns the last-computed IGP/OSPF state (spec §6:
// get_ospf_state).
func (n *Network[P]) GetOspfState() *igp.State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.igpSt
}

// BgpRouterState is one router's exported RIB-in/RIB/RIB-out snapshot,
// returned by GetBgpState.
type BgpRouterState[P comparable] struct {
	Name   string
	Rib    map[P]bgproute.RibEntry[P]
	RibIn  map[P]map[RouterID]bgproute.RibEntry[P]
	RibOut map[P]map[RouterID]bgproute.RibEntry[P]
}

// GetBgpState returns a read snapshot of every internal router's BGP
// tables (spec §6: get_bgp_state).
func (n *Network[P]) GetBgpState() map[RouterID]BgpRouterState[P] {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[RouterID]BgpRouterState[P], len(n.routers))
	for id, r := range n.routers {
		rib := make(map[P]bgproute.RibEntry[P])
		for _, p := range r.Rib.Keys() {
			if v, ok := r.Rib.Get(p); ok {
				rib[p] = v
			}
		}
		out[id] = BgpRouterState[P]{
			Name:   r.Name,
			Rib:    rib,
			RibIn:  copyNestedRib(r.RibIn),
			RibOut: copyNestedRib(r.RibOut),
		}
	}
	return out
}

func copyNestedRib[P comparable](m map[P]map[RouterID]bgproute.RibEntry[P]) map[P]map[RouterID]bgproute.RibEntry[P] {
	out := make(map[P]map[RouterID]bgproute.RibEntry[P], len(m))
	for p, peers := range m {
		inner := make(map[RouterID]bgproute.RibEntry[P], len(peers))
		for peer, e := range peers {
			inner[peer] = e.Clone()
		}
		out[p] = inner
	}
	return out
}

// RouterByName resolves a router's id by the name given to AddRouter /
// AddExternalRouter.
func (n *Network[P]) RouterByName(name string) (RouterID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.names[name]
	return id, ok
}
