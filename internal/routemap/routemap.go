// Package routemap implements the ordered match/set/flow route-map engine
// (spec §4.1, component C). A RouteMap is modeled as a tagged sum of
// Match/Set variants rather than a subclass hierarchy, per spec §9's
// design note, grounded on the original Rust bgpsim/src/config.rs
// route-map model.
package routemap

import (
	"sort"

	"github.com/netsim/bgpsim/internal/bgproute"
)

// MatchKind tags which clause a Match value represents.
type MatchKind int

const (
	MatchPrefix MatchKind = iota
	MatchAsPathContains
	MatchAsPathLength
	MatchNextHop
	MatchCommunity
	MatchDenyCommunity
)

// IntRange is an inclusive [Min,Max] range used by AsPath length matches.
type IntRange struct {
	Min, Max int
}

func (r IntRange) Contains(v int) bool { return v >= r.Min && v <= r.Max }

// Match is one AND-ed clause within a route-map item.
type Match[P comparable] struct {
	Kind MatchKind

	Prefixes []P            // MatchPrefix
	AsID     bgproute.AsID  // MatchAsPathContains
	Length   IntRange       // MatchAsPathLength
	NextHop  bgproute.RouterID // MatchNextHop
	Value    uint32         // MatchCommunity / MatchDenyCommunity
}

// eval reports whether the clause matches route r.
func (m Match[P]) eval(r bgproute.Route[P]) bool {
	switch m.Kind {
	case MatchPrefix:
		for _, p := range m.Prefixes {
			if p == r.Prefix {
				return true
			}
		}
		return false
	case MatchAsPathContains:
		for _, a := range r.AsPath {
			if a == m.AsID {
				return true
			}
		}
		return false
	case MatchAsPathLength:
		return m.Length.Contains(len(r.AsPath))
	case MatchNextHop:
		return r.NextHop == m.NextHop
	case MatchCommunity:
		return r.HasCommunity(m.Value)
	case MatchDenyCommunity:
		return !r.HasCommunity(m.Value)
	default:
		return false
	}
}

// SetKind tags which set-action a Set value represents.
type SetKind int

const (
	SetNextHop SetKind = iota
	SetWeight
	SetLocalPref
	SetMed
	SetIgpCost
	SetCommunity
	SetDelCommunity
)

// Set is one mutating action within a route-map item. For Weight/LocalPref/
// Med, a nil Uint32 means "reset to default" (100/100/0 respectively, per
// spec §4.1).
type Set[P comparable] struct {
	Kind SetKind

	NextHop bgproute.RouterID
	Uint32  *uint32
	IgpCost float64
	Value   uint32
}

func (s Set[P]) apply(e *bgproute.RibEntry[P]) {
	switch s.Kind {
	case SetNextHop:
		e.Route.NextHop = s.NextHop
	case SetWeight:
		if s.Uint32 == nil {
			e.Weight = 100
		} else {
			e.Weight = uint16(*s.Uint32)
		}
	case SetLocalPref:
		if s.Uint32 == nil {
			e.Route.LocalPref = nil
		} else {
			v := *s.Uint32
			e.Route.LocalPref = &v
		}
	case SetMed:
		if s.Uint32 == nil {
			e.Route.Med = nil
		} else {
			v := *s.Uint32
			e.Route.Med = &v
		}
	case SetIgpCost:
		c := s.IgpCost
		e.IgpCost = &c
	case SetCommunity:
		e.Route.AddCommunity(s.Value)
	case SetDelCommunity:
		e.Route.DelCommunity(s.Value)
	}
}

// State is the allow/deny disposition of a matched item.
type State int

const (
	Allow State = iota
	Deny
)

// FlowKind tags how evaluation continues after a matching item applies
// its Set actions.
type FlowKind int

const (
	FlowExit FlowKind = iota
	FlowContinue
	FlowContinueAt
)

// Flow describes what happens after an item's Set actions run.
type Flow struct {
	Kind FlowKind
	At   int // valid when Kind == FlowContinueAt
}

// Item is one route-map entry, run in ascending Order.
type Item[P comparable] struct {
	Order int
	State State
	Conds []Match[P]
	Sets  []Set[P]
	Flow  Flow
}

// matches reports whether every clause in Conds matches r (logical AND).
func (it Item[P]) matches(r bgproute.Route[P]) bool {
	for _, c := range it.Conds {
		if !c.eval(r) {
			return false
		}
	}
	return true
}

// List is an ordered route-map: items sorted by Order, unique Order keys
// (spec §3 router invariant). Mutators keep the slice sorted so Apply can
// binary-search for ContinueAt targets.
type List[P comparable] struct {
	items []Item[P]
}

// NewList builds a List from items, sorting by Order. It does not check
// for duplicate Order keys; Insert is the checked path that rejects them.
func NewList[P comparable](items ...Item[P]) *List[P] {
	l := &List[P]{}
	for _, it := range items {
		l.insertSorted(it)
	}
	return l
}

func (l *List[P]) insertSorted(it Item[P]) {
	idx := sort.Search(len(l.items), func(i int) bool { return l.items[i].Order >= it.Order })
	l.items = append(l.items, Item[P]{})
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = it
}

// Insert adds it, keeping Order ascending. Reports false if an item with
// the same Order already exists (caller must Remove first).
func (l *List[P]) Insert(it Item[P]) bool {
	idx := sort.Search(len(l.items), func(i int) bool { return l.items[i].Order >= it.Order })
	if idx < len(l.items) && l.items[idx].Order == it.Order {
		return false
	}
	l.insertSorted(it)
	return true
}

// Remove deletes the item at the given Order; reports whether it existed.
func (l *List[P]) Remove(order int) bool {
	idx := sort.Search(len(l.items), func(i int) bool { return l.items[i].Order >= order })
	if idx >= len(l.items) || l.items[idx].Order != order {
		return false
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	return true
}

// Items returns the items in ascending Order (read-only view).
func (l *List[P]) Items() []Item[P] {
	return append([]Item[P](nil), l.items...)
}

// Len reports the number of items.
func (l *List[P]) Len() int { return len(l.items) }

// Apply evaluates entry against the list per spec §4.1: items run in
// Order; a non-matching item is skipped; a matching Deny item drops the
// route (ok=false); a matching Allow item applies its Set actions then
// dispatches on Flow. Reaching the end of the list without an Exit
// returns the (possibly mutated) entry unchanged.
func (l *List[P]) Apply(entry bgproute.RibEntry[P]) (out bgproute.RibEntry[P], ok bool) {
	cur := entry.Clone()
	i := 0
	for i < len(l.items) {
		it := l.items[i]
		if !it.matches(cur.Route) {
			i++
			continue
		}
		if it.State == Deny {
			var zero bgproute.RibEntry[P]
			return zero, false
		}
		for _, s := range it.Sets {
			s.apply(&cur)
		}
		switch it.Flow.Kind {
		case FlowExit:
			return cur, true
		case FlowContinue:
			i++
		case FlowContinueAt:
			next := sort.Search(len(l.items), func(j int) bool { return l.items[j].Order >= it.Flow.At })
			i = next
		}
	}
	return cur, true
}
