package netsim

import (
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/igp"
	"github.com/netsim/bgpsim/internal/router"
	"github.com/netsim/bgpsim/internal/routemap"
	"github.com/netsim/bgpsim/internal/simerr"
)

// ExprKind tags which structural slot an Expr occupies (spec §4.6).
type ExprKind int

const (
	ExprIgpLinkWeight ExprKind = iota
	ExprOspfArea
	ExprBgpSession
	ExprBgpRouteMap
	ExprStaticRoute
	ExprLoadBalancing
)

// Expr is one declarative configuration fact. Only the fields relevant
// to Kind are meaningful; the rest are zero: a table/key/value change
// generalized to the six router-config slots spec §4.6 names.
type Expr[P comparable] struct {
	Kind ExprKind

	A, B RouterID // endpoints: directional for IgpLinkWeight, A=server for
	// BgpSession when Type==SessionIBgpClient, else normalized/undirected

	Weight   float64     // IgpLinkWeight
	Area     int         // OspfArea
	SessType SessionType // BgpSession

	Outbound bool            // BgpRouteMap
	Item     routemap.Item[P] // BgpRouteMap (keyed additionally by Item.Order)

	Prefix P         // StaticRoute
	Target *RouterID // StaticRoute; nil means StaticDrop

	Enabled bool // LoadBalancing
}

// ExprKey identifies e's structural slot: at most one Expr may occupy a
// given key within a Config (spec §4.6: "so only one expression per slot
// exists").
type ExprKey[P comparable] struct {
	Kind     ExprKind
	A, B     RouterID
	Outbound bool
	Order    int
	Prefix   P
}

func normalizePair(a, b RouterID) (RouterID, RouterID) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Key computes e's ExprKey, normalizing endpoint order for the
// variants spec §4.6 calls undirected.
func (e Expr[P]) Key() ExprKey[P] {
	switch e.Kind {
	case ExprIgpLinkWeight:
		return ExprKey[P]{Kind: e.Kind, A: e.A, B: e.B}
	case ExprOspfArea:
		a, b := normalizePair(e.A, e.B)
		return ExprKey[P]{Kind: e.Kind, A: a, B: b}
	case ExprBgpSession:
		a, b := normalizePair(e.A, e.B)
		return ExprKey[P]{Kind: e.Kind, A: a, B: b}
	case ExprBgpRouteMap:
		return ExprKey[P]{Kind: e.Kind, A: e.A, B: e.B, Outbound: e.Outbound, Order: e.Item.Order}
	case ExprStaticRoute:
		return ExprKey[P]{Kind: e.Kind, A: e.A, Prefix: e.Prefix}
	case ExprLoadBalancing:
		return ExprKey[P]{Kind: e.Kind, A: e.A}
	default:
		return ExprKey[P]{Kind: e.Kind}
	}
}

// Config is an unordered set of Exprs, one per structural slot (spec
// §4.6). The zero value is a nil map; use make(Config[P]) or GetConfig.
type Config[P comparable] map[ExprKey[P]]Expr[P]

type yamlConfig[P comparable] struct {
	Exprs []Expr[P] `yaml:"exprs"`
}

// MarshalYAML renders c as a flat expression list (a list of
// declarative entries, not a keyed map — ExprKey isn't itself a useful
// wire format).
func (c Config[P]) MarshalYAML() (interface{}, error) {
	out := yamlConfig[P]{Exprs: make([]Expr[P], 0, len(c))}
	for _, e := range c {
		out.Exprs = append(out.Exprs, e)
	}
	return out, nil
}

// UnmarshalYAML rebuilds a Config from the flat expression list
// MarshalYAML produces, re-deriving each entry's key.
func (c *Config[P]) UnmarshalYAML(value *yaml.Node) error {
	var in yamlConfig[P]
	if err := value.Decode(&in); err != nil {
		return err
	}
	out := make(Config[P], len(in.Exprs))
	for _, e := range in.Exprs {
		out[e.Key()] = e
	}
	*c = out
	return nil
}

// ModifierKind tags a Modifier variant (spec §4.6: "ConfigModifier ∈
// {Insert(e), Remove(e), Update{from,to}, BatchRouteMapEdit{...}}").
type ModifierKind int

const (
	ModInsert ModifierKind = iota
	ModRemove
	ModUpdate
	ModBatchRouteMapEdit
)

// Modifier is one step of a config patch.
type Modifier[P comparable] struct {
	Kind ModifierKind

	Expr Expr[P] // Insert/Remove

	From, To Expr[P] // Update; requires From.Key() == To.Key()

	Router  RouterID  // BatchRouteMapEdit
	Updates []Expr[P] // BatchRouteMapEdit; every entry must be ExprBgpRouteMap
}

// Diff computes the patch that, applied sequentially to a, produces b
// (spec §4.6: diff(a,b)).
func Diff[P comparable](a, b Config[P]) []Modifier[P] {
	var patch []Modifier[P]
	for k, be := range b {
		if ae, ok := a[k]; ok {
			if !reflect.DeepEqual(ae, be) {
				patch = append(patch, Modifier[P]{Kind: ModUpdate, From: ae, To: be})
			}
		} else {
			patch = append(patch, Modifier[P]{Kind: ModInsert, Expr: be})
		}
	}
	for k, ae := range a {
		if _, ok := b[k]; !ok {
			patch = append(patch, Modifier[P]{Kind: ModRemove, Expr: ae})
		}
	}
	return patch
}

// ApplyModifier applies one modifier (spec §6: apply_modifier), then
// drains the event queue to quiescence unless ManualSimulation has set
// skip_queue.
func (n *Network[P]) ApplyModifier(m Modifier[P]) error {
	n.mu.Lock()
	if err := n.applyModifierLocked(m); err != nil {
		n.mu.Unlock()
		return err
	}
	skip, limit := n.skipQueue, n.msgLimit
	n.mu.Unlock()
	if skip {
		return nil
	}
	return n.Simulate(limit)
}

// ApplyPatch applies every modifier in patch, all-or-nothing: on the
// first failure, every modifier already applied in this call is undone
// via the same snapshot/restore machinery UndoToMark uses (spec §6:
// apply_patch, "on key-conflict the local mutation is undone").
func (n *Network[P]) ApplyPatch(patch []Modifier[P]) error {
	n.mu.Lock()
	mark := n.markLocked()
	for _, m := range patch {
		if err := n.applyModifierLocked(m); err != nil {
			n.undoToMarkLocked(mark)
			n.mu.Unlock()
			return err
		}
	}
	skip, limit := n.skipQueue, n.msgLimit
	n.mu.Unlock()
	if skip {
		return nil
	}
	return n.Simulate(limit)
}

// SetConfig replaces the network's entire declarative state with target,
// via Diff+ApplyPatch (spec §6: set_config).
func (n *Network[P]) SetConfig(target Config[P]) error {
	current := n.GetConfig()
	return n.ApplyPatch(Diff(current, target))
}

// GetConfig reconstructs the network's current declarative config from
// live router/graph state (spec §6: get_config).
func (n *Network[P]) GetConfig() Config[P] {
	n.mu.RLock()
	defer n.mu.RUnlock()

	cfg := make(Config[P])
	for _, link := range n.graph.Links() {
		if link.WeightAB < igp.Inf {
			e := Expr[P]{Kind: ExprIgpLinkWeight, A: link.A, B: link.B, Weight: link.WeightAB}
			cfg[e.Key()] = e
		}
		if link.WeightBA < igp.Inf {
			e := Expr[P]{Kind: ExprIgpLinkWeight, A: link.B, B: link.A, Weight: link.WeightBA}
			cfg[e.Key()] = e
		}
		if link.Area != 0 {
			e := Expr[P]{Kind: ExprOspfArea, A: link.A, B: link.B, Area: link.Area}
			cfg[e.Key()] = e
		}
	}

	for id, r := range n.routers {
		for peer, t := range r.Sessions {
			switch t {
			case bgproute.SessionEBgp:
				e := Expr[P]{Kind: ExprBgpSession, A: id, B: peer, SessType: t}
				cfg[e.Key()] = e
			case bgproute.SessionIBgpClient:
				e := Expr[P]{Kind: ExprBgpSession, A: id, B: peer, SessType: t}
				cfg[e.Key()] = e
			case bgproute.SessionIBgpPeer:
				if peerRouter, ok := n.routers[peer]; ok && peerRouter.Sessions[id] == bgproute.SessionIBgpClient {
					continue // represented once, from the reflector's side, above
				}
				e := Expr[P]{Kind: ExprBgpSession, A: id, B: peer, SessType: t}
				cfg[e.Key()] = e
			}
		}

		for neighbor, list := range r.RouteMapsIn {
			for _, it := range list.Items() {
				e := Expr[P]{Kind: ExprBgpRouteMap, A: id, B: neighbor, Outbound: false, Item: it}
				cfg[e.Key()] = e
			}
		}
		for neighbor, list := range r.RouteMapsOut {
			for _, it := range list.Items() {
				e := Expr[P]{Kind: ExprBgpRouteMap, A: id, B: neighbor, Outbound: true, Item: it}
				cfg[e.Key()] = e
			}
		}

		for _, p := range r.StaticRoutes.Keys() {
			sr, ok := r.StaticRoutes.Get(p)
			if !ok {
				continue
			}
			e := Expr[P]{Kind: ExprStaticRoute, A: id, Prefix: p}
			if sr.Kind != router.StaticDrop {
				target := sr.Target
				e.Target = &target
			}
			cfg[e.Key()] = e
		}

		if r.LoadBalancing {
			e := Expr[P]{Kind: ExprLoadBalancing, A: id, Enabled: true}
			cfg[e.Key()] = e
		}
	}
	return cfg
}

func (n *Network[P]) applyModifierLocked(m Modifier[P]) error {
	switch m.Kind {
	case ModInsert:
		return n.setExprLocked(m.Expr)
	case ModRemove:
		return n.clearExprLocked(m.Expr)
	case ModUpdate:
		if m.From.Key() != m.To.Key() {
			return simerr.NewConfigError(simerr.ErrConfigModifier, "update requires from/to to share a slot")
		}
		return n.setExprLocked(m.To)
	case ModBatchRouteMapEdit:
		rt, err := n.requireInternalLocked(m.Router)
		if err != nil {
			return err
		}
		for _, e := range m.Updates {
			if e.Kind != ExprBgpRouteMap {
				return simerr.NewConfigError(simerr.ErrConfigModifier, "batch route-map edit requires BgpRouteMap expressions")
			}
			n.installRouteMapItemLocked(rt, e)
		}
		n.redecideAllLocked()
		return nil
	default:
		return simerr.NewConfigError(simerr.ErrConfigModifier, "unknown modifier kind")
	}
}

func (n *Network[P]) setExprLocked(e Expr[P]) error {
	switch e.Kind {
	case ExprIgpLinkWeight:
		if err := n.requireRouterLocked(e.A); err != nil {
			return err
		}
		if err := n.requireRouterLocked(e.B); err != nil {
			return err
		}
		n.setLinkLocked(e.A, e.B, e.Weight)
		n.recomputeIgpLocked()
		return nil
	case ExprOspfArea:
		n.graph.SetArea(igp.RouterID(e.A), igp.RouterID(e.B), e.Area)
		return nil
	case ExprBgpSession:
		return n.setBgpSessionLocked(e.A, e.B, e.SessType)
	case ExprBgpRouteMap:
		rt, err := n.requireInternalLocked(e.A)
		if err != nil {
			return err
		}
		n.installRouteMapItemLocked(rt, e)
		n.redecideAllLocked()
		return nil
	case ExprStaticRoute:
		rt, err := n.requireInternalLocked(e.A)
		if err != nil {
			return err
		}
		sr := router.StaticRoute{Kind: router.StaticDrop}
		if e.Target != nil {
			sr = router.StaticRoute{Kind: router.StaticDirect, Target: *e.Target}
		}
		rt.SetStaticRoute(e.Prefix, sr)
		n.knownPrefixes[e.Prefix] = struct{}{}
		n.fwd.Invalidate(e.Prefix)
		return nil
	case ExprLoadBalancing:
		rt, err := n.requireInternalLocked(e.A)
		if err != nil {
			return err
		}
		rt.SetLoadBalancing(e.Enabled)
		n.fwd.InvalidateAll()
		return nil
	default:
		return simerr.NewConfigError(simerr.ErrConfigModifier, "unknown expr kind")
	}
}

func (n *Network[P]) clearExprLocked(e Expr[P]) error {
	switch e.Kind {
	case ExprIgpLinkWeight:
		n.graph.RemoveLink(igp.RouterID(e.A), igp.RouterID(e.B))
		n.recomputeIgpLocked()
		return nil
	case ExprOspfArea:
		n.graph.SetArea(igp.RouterID(e.A), igp.RouterID(e.B), 0)
		return nil
	case ExprBgpSession:
		return n.removeBgpSessionLocked(e.A, e.B)
	case ExprBgpRouteMap:
		rt, err := n.requireInternalLocked(e.A)
		if err != nil {
			return err
		}
		rt.RemoveRouteMapItem(e.B, e.Outbound, e.Item.Order)
		n.redecideAllLocked()
		return nil
	case ExprStaticRoute:
		rt, err := n.requireInternalLocked(e.A)
		if err != nil {
			return err
		}
		rt.RemoveStaticRoute(e.Prefix)
		n.fwd.Invalidate(e.Prefix)
		return nil
	case ExprLoadBalancing:
		rt, err := n.requireInternalLocked(e.A)
		if err != nil {
			return err
		}
		rt.SetLoadBalancing(false)
		n.fwd.InvalidateAll()
		return nil
	default:
		return simerr.NewConfigError(simerr.ErrConfigModifier, "unknown expr kind")
	}
}

// installRouteMapItemLocked inserts or replaces e.Item at its Order slot
// in r's named-direction route-map list, creating the list if r has none
// towards e.B yet.
func (n *Network[P]) installRouteMapItemLocked(r *router.Router[P], e Expr[P]) {
	m := r.RouteMapsIn
	if e.Outbound {
		m = r.RouteMapsOut
	}
	list, ok := m[e.B]
	if !ok {
		list = routemap.NewList[P]()
		m[e.B] = list
	}
	list.Remove(e.Item.Order)
	list.Insert(e.Item)
}
