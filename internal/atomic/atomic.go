// Package atomic implements the reconfiguration planner's atomic-command
// model (spec §4.8, component K): a semantic modifier paired with a
// pre-condition and a post-condition, both evaluated against live
// simulator state. This package never touches a real device — it only
// produces the commands and evaluates their conditions; sending the
// underlying config to hardware is the lab executor's job
// (internal/labexec).
//
// Uses a fluent builder-of-Require* shape, generalized from
// interface/VLAN/VRF existence checks to BGP route/session conditions.
package atomic

import (
	"fmt"

	"github.com/netsim/bgpsim/internal/bgproute"
	"github.com/netsim/bgpsim/internal/netsim"
	"github.com/netsim/bgpsim/internal/routemap"
	"github.com/netsim/bgpsim/internal/simerr"
)

// ModifierKind tags an AtomicModifier variant (spec §4.8).
type ModifierKind int

const (
	ModRaw ModifierKind = iota
	ModUseTempSession
	ModIgnoreTempSession
	ModAddTempSession
	ModRemoveTempSession
	ModChangePreference
	ModClearPreference
)

func (k ModifierKind) String() string {
	switch k {
	case ModRaw:
		return "Raw"
	case ModUseTempSession:
		return "UseTempSession"
	case ModIgnoreTempSession:
		return "IgnoreTempSession"
	case ModAddTempSession:
		return "AddTempSession"
	case ModRemoveTempSession:
		return "RemoveTempSession"
	case ModChangePreference:
		return "ChangePreference"
	case ModClearPreference:
		return "ClearPreference"
	default:
		return "unknown"
	}
}

// Modifier is a reconfiguration intent with a shape that carries its
// semantic purpose (used by UI/logging and by the executor's
// precondition mapping), plus the underlying ConfigModifier(s) that
// actually carry it out and the routers it touches.
type Modifier[P comparable] struct {
	Kind ModifierKind

	// Routers lists every router this modifier's ConfigModifiers
	// mutate; AtomicCommand.Routers() and IntoRaw() agree on this set
	// (spec §4.8's open question — the mapping between a semantic kind
	// and concrete route-map/session edits is implementation-chosen,
	// this package only requires the two to stay consistent).
	Routers []netsim.RouterID

	// Raw is the underlying set of config edits this modifier applies,
	// in order, via netsim.Network.ApplyPatch.
	Raw []netsim.Modifier[P]
}

// IntoRaw returns m's underlying ConfigModifiers, the concrete edits an
// executor (or a local ApplyPatch call) actually applies.
func (m Modifier[P]) IntoRaw() []netsim.Modifier[P] {
	return m.Raw
}

// UseTempSession builds the modifier for temporarily preferring a
// secondary session: it installs good as an eBGP/iBGP session on router.
// pref is not applied: no local preference or route-map is changed.
func UseTempSession[P comparable](router, good netsim.RouterID, sessType netsim.SessionType, pref uint16) Modifier[P] {
	return Modifier[P]{
		Kind:    ModUseTempSession,
		Routers: []netsim.RouterID{router, good},
		Raw: []netsim.Modifier[P]{
			{Kind: netsim.ModInsert, Expr: netsim.Expr[P]{Kind: netsim.ExprBgpSession, A: router, B: good, SessType: sessType}},
		},
	}
}

// IgnoreTempSession reverses UseTempSession's session insertion without
// touching preference (a ChangePreference command typically precedes or
// follows it).
func IgnoreTempSession[P comparable](router, temp netsim.RouterID) Modifier[P] {
	return Modifier[P]{
		Kind:    ModIgnoreTempSession,
		Routers: []netsim.RouterID{router, temp},
		Raw: []netsim.Modifier[P]{
			{Kind: netsim.ModRemove, Expr: netsim.Expr[P]{Kind: netsim.ExprBgpSession, A: router, B: temp}},
		},
	}
}

// AddTempSession inserts a session between router and temp without
// changing preference, used to stage a path before cutting over to it.
func AddTempSession[P comparable](router, temp netsim.RouterID, sessType netsim.SessionType) Modifier[P] {
	return Modifier[P]{
		Kind:    ModAddTempSession,
		Routers: []netsim.RouterID{router, temp},
		Raw: []netsim.Modifier[P]{
			{Kind: netsim.ModInsert, Expr: netsim.Expr[P]{Kind: netsim.ExprBgpSession, A: router, B: temp, SessType: sessType}},
		},
	}
}

// RemoveTempSession tears a staged session back down.
func RemoveTempSession[P comparable](router, temp netsim.RouterID) Modifier[P] {
	return Modifier[P]{
		Kind:    ModRemoveTempSession,
		Routers: []netsim.RouterID{router, temp},
		Raw: []netsim.Modifier[P]{
			{Kind: netsim.ModRemove, Expr: netsim.Expr[P]{Kind: netsim.ExprBgpSession, A: router, B: temp}},
		},
	}
}

// ChangePreference edits router's inbound route-map towards neighbor so
// prefix is assigned weight, the chosen mechanism for "preference"
// (spec §4.8's open question on ChangePreference/route-map order is
// resolved here: weight is set via a single, high-order Set item).
func ChangePreference[P comparable](router, neighbor netsim.RouterID, prefix P, weight uint16) Modifier[P] {
	item := routeMapWeightItem(prefix, weight)
	return Modifier[P]{
		Kind:    ModChangePreference,
		Routers: []netsim.RouterID{router},
		Raw: []netsim.Modifier[P]{
			{Kind: netsim.ModInsert, Expr: netsim.Expr[P]{Kind: netsim.ExprBgpRouteMap, A: router, B: neighbor, Outbound: false, Item: item}},
		},
	}
}

// ClearPreference removes a weight override previously installed by
// ChangePreference, identified by the same order ChangePreference uses.
func ClearPreference[P comparable](router, neighbor netsim.RouterID, prefix P, weight uint16) Modifier[P] {
	item := routeMapWeightItem(prefix, weight)
	return Modifier[P]{
		Kind:    ModClearPreference,
		Routers: []netsim.RouterID{router},
		Raw: []netsim.Modifier[P]{
			{Kind: netsim.ModRemove, Expr: netsim.Expr[P]{Kind: netsim.ExprBgpRouteMap, A: router, B: neighbor, Outbound: false, Item: item}},
		},
	}
}

// Raw wraps an already-built patch with no inherent semantic meaning,
// for callers driving the core's config layer directly through the
// atomic-command machinery (e.g. to share its pre/post-condition
// evaluation and deadline enforcement).
func Raw[P comparable](routers []netsim.RouterID, patch []netsim.Modifier[P]) Modifier[P] {
	return Modifier[P]{Kind: ModRaw, Routers: routers, Raw: patch}
}

// changePreferenceOrder is the fixed Item.Order ChangePreference/
// ClearPreference install their weight-setting item at; high enough to
// run after any operator-authored route-map entries in typical specs,
// low enough to stay below routemap.List's practical order range.
const changePreferenceOrder = 1 << 20

func routeMapWeightItem[P comparable](prefix P, weight uint16) routemap.Item[P] {
	w := uint32(weight)
	return routemap.Item[P]{
		Order: changePreferenceOrder,
		State: routemap.Allow,
		Conds: []routemap.Match[P]{{Kind: routemap.MatchPrefix, Prefixes: []P{prefix}}},
		Sets:  []routemap.Set[P]{{Kind: routemap.SetWeight, Uint32: &w}},
		Flow:  routemap.Flow{Kind: routemap.FlowContinue},
	}
}

// Command is (modifier, pre-condition, post-condition) — spec §4.8's
// AtomicCommand.
type Command[P comparable] struct {
	Modifier Modifier[P]
	Pre      Condition[P]
	Post     Condition[P]
}

// Routers returns the set of routers this command's modifier touches.
func (c Command[P]) Routers() []netsim.RouterID {
	return c.Modifier.Routers
}

// Apply runs the command against a live network: it requires Pre to
// hold, applies the modifier's raw patch, then requires Post to hold.
// This is the local (non-SSH) path used for simulation-only study of a
// reconfiguration plan; the real executor (internal/labexec) does the
// analogous thing against physical devices.
func (c Command[P]) Apply(n *netsim.Network[P]) error {
	if err := c.Pre.Eval(n); err != nil {
		return fmt.Errorf("pre-condition: %w", err)
	}
	if err := n.ApplyPatch(c.Modifier.IntoRaw()); err != nil {
		return err
	}
	if err := c.Post.Eval(n); err != nil {
		return fmt.Errorf("post-condition: %w", err)
	}
	return nil
}

// ConditionKind tags an AtomicCondition variant (spec §4.8).
type ConditionKind int

const (
	CondNone ConditionKind = iota
	CondSelectedRoute
	CondAvailableRoute
	CondBgpSessionEstablished
	CondRoutesLessPreferred
)

// Condition is one AtomicCondition. Only the fields relevant to Kind are
// meaningful.
type Condition[P comparable] struct {
	Kind ConditionKind

	Router   netsim.RouterID
	Prefix   P
	Neighbor *netsim.RouterID
	Weight   *uint16
	NextHop  *netsim.RouterID

	GoodNeighbors map[netsim.RouterID]struct{}
	Route         bgproute.Route[P]
}

// None is the trivially-true condition.
func None[P comparable]() Condition[P] {
	return Condition[P]{Kind: CondNone}
}

// SelectedRoute requires router's currently-selected BGP entry for
// prefix to exist and match the optional filters.
func SelectedRoute[P comparable](router netsim.RouterID, prefix P) *Condition[P] {
	return &Condition[P]{Kind: CondSelectedRoute, Router: router, Prefix: prefix}
}

// AvailableRoute requires some entry in router's bgp_rib_in[prefix] to
// match the optional filters, regardless of what's currently selected.
func AvailableRoute[P comparable](router netsim.RouterID, prefix P) *Condition[P] {
	return &Condition[P]{Kind: CondAvailableRoute, Router: router, Prefix: prefix}
}

// WithNeighbor narrows a SelectedRoute/AvailableRoute condition to
// entries learned from neighbor.
func (c *Condition[P]) WithNeighbor(neighbor netsim.RouterID) *Condition[P] {
	c.Neighbor = &neighbor
	return c
}

// WithWeight narrows to entries carrying exactly this weight.
func (c *Condition[P]) WithWeight(weight uint16) *Condition[P] {
	c.Weight = &weight
	return c
}

// WithNextHop narrows to entries whose next hop is exactly this router.
func (c *Condition[P]) WithNextHop(nextHop netsim.RouterID) *Condition[P] {
	c.NextHop = &nextHop
	return c
}

// BgpSessionEstablished requires a live session between router and
// neighbor.
func BgpSessionEstablished[P comparable](router, neighbor netsim.RouterID) Condition[P] {
	return Condition[P]{Kind: CondBgpSessionEstablished, Router: router, Neighbor: &neighbor}
}

// RoutesLessPreferred requires every entry in router's
// bgp_rib_in[prefix] not from goodNeighbors to be strictly worse than
// route under the decision-process tie-break, and every entry from
// goodNeighbors to share route's next hop.
func RoutesLessPreferred[P comparable](router netsim.RouterID, prefix P, goodNeighbors []netsim.RouterID, route bgproute.Route[P]) Condition[P] {
	good := make(map[netsim.RouterID]struct{}, len(goodNeighbors))
	for _, r := range goodNeighbors {
		good[r] = struct{}{}
	}
	return Condition[P]{Kind: CondRoutesLessPreferred, Router: router, Prefix: prefix, GoodNeighbors: good, Route: route}
}

// Eval evaluates c against n's live state (spec §4.8: "waits for
// pre-condition/post-condition to hold on the live target" — here
// evaluated once, synchronously; internal/labexec layers polling with a
// deadline on top of the same evaluation against real-device state).
func (c Condition[P]) Eval(n *netsim.Network[P]) error {
	switch c.Kind {
	case CondNone:
		return nil
	case CondSelectedRoute:
		state := n.GetBgpState()
		rs, ok := state[c.Router]
		if !ok {
			return simerr.NewPreconditionError("SelectedRoute", fmt.Sprintf("router %v not found", c.Router))
		}
		entry, ok := rs.Rib[c.Prefix]
		if !ok || !c.matches(entry) {
			return simerr.NewPreconditionError("SelectedRoute", fmt.Sprintf("no matching selected entry for prefix on router %v", c.Router))
		}
		return nil
	case CondAvailableRoute:
		state := n.GetBgpState()
		rs, ok := state[c.Router]
		if !ok {
			return simerr.NewPreconditionError("AvailableRoute", fmt.Sprintf("router %v not found", c.Router))
		}
		for _, entry := range rs.RibIn[c.Prefix] {
			if c.matches(entry) {
				return nil
			}
		}
		return simerr.NewPreconditionError("AvailableRoute", fmt.Sprintf("no matching rib-in entry for prefix on router %v", c.Router))
	case CondBgpSessionEstablished:
		cfg := n.GetConfig()
		if c.Neighbor == nil {
			return simerr.NewPreconditionError("BgpSessionEstablished", "missing neighbor")
		}
		for _, e := range cfg {
			if e.Kind != netsim.ExprBgpSession {
				continue
			}
			if (e.A == c.Router && e.B == *c.Neighbor) || (e.A == *c.Neighbor && e.B == c.Router) {
				return nil
			}
		}
		return simerr.NewPreconditionError("BgpSessionEstablished", fmt.Sprintf("no session between %v and %v", c.Router, *c.Neighbor))
	case CondRoutesLessPreferred:
		state := n.GetBgpState()
		rs, ok := state[c.Router]
		if !ok {
			return simerr.NewPreconditionError("RoutesLessPreferred", fmt.Sprintf("router %v not found", c.Router))
		}
		reference := bgproute.RibEntry[P]{Route: c.Route}
		for neighbor, entry := range rs.RibIn[c.Prefix] {
			if _, good := c.GoodNeighbors[neighbor]; good {
				if entry.Route.NextHop != c.Route.NextHop {
					return simerr.NewPreconditionError("RoutesLessPreferred", fmt.Sprintf("entry from %v has a different next hop than the reference route", neighbor))
				}
				continue
			}
			if bgproute.Compare(entry, reference) >= 0 {
				return simerr.NewPreconditionError("RoutesLessPreferred", fmt.Sprintf("entry from %v is not strictly worse than the reference route", neighbor))
			}
		}
		return nil
	default:
		return simerr.NewPreconditionError("unknown", "unrecognized condition kind")
	}
}

func (c Condition[P]) matches(entry bgproute.RibEntry[P]) bool {
	if c.Neighbor != nil && entry.FromID != *c.Neighbor {
		return false
	}
	if c.Weight != nil && entry.Weight != *c.Weight {
		return false
	}
	if c.NextHop != nil && entry.Route.NextHop != *c.NextHop {
		return false
	}
	return true
}
