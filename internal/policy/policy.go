// Package policy implements hard-policy checks against a converged
// forwarding state (spec §4.9, component L): reachability, isolation,
// path conditions (including positional waypointing), loop-freedom, and
// load-balancing, plus conjunctive-normal-form conversion for path
// conditions.
//
// Grounded on the original Rust implementation's policies.rs, carried
// over idiom-for-idiom: FwPolicy's variants become PolicyKind, its
// PathCondition enum becomes a tagged Go struct with the same
// Node/Edge/And/Or/Not/Positional cases, and PathConditionCNF keeps the
// same AND-of-(OR-of-positive, OR-of-negated) representation. The
// positional-waypoint matcher is a direct translation of the original's
// iterator-based state machine into index-based loops, since Go lacks
// peekable iterators.
package policy

import (
	"errors"
	"fmt"

	"github.com/netsim/bgpsim/internal/forwarding"
	"github.com/netsim/bgpsim/internal/simerr"
)

// RouterID is re-exported from forwarding so callers never need to
// import router/bgproute directly for policy construction.
type RouterID = forwarding.RouterID

// WaypointKind distinguishes the three positional placeholders.
type WaypointKind int

const (
	WaypointAny WaypointKind = iota
	WaypointStar
	WaypointFix
)

// Waypoint is one element of a Positional path condition: Any matches
// exactly one router, Star matches zero or more, Fix matches one
// specific router.
type Waypoint struct {
	Kind   WaypointKind
	Router RouterID
}

func Any() Waypoint           { return Waypoint{Kind: WaypointAny} }
func Star() Waypoint          { return Waypoint{Kind: WaypointStar} }
func Fix(r RouterID) Waypoint { return Waypoint{Kind: WaypointFix, Router: r} }

// ConditionKind distinguishes PathCondition's cases.
type ConditionKind int

const (
	CondNode ConditionKind = iota
	CondEdge
	CondAnd
	CondOr
	CondNot
	CondPositional
)

// PathCondition is a boolean expression over a forwarding path: a
// router that must be visited, an edge that must be traversed, a
// logical combination of sub-conditions, or a positional waypoint
// sequence that must match the whole path.
type PathCondition struct {
	Kind ConditionKind

	Node RouterID

	EdgeFrom, EdgeTo RouterID

	Children []PathCondition // And, Or

	Inner *PathCondition // Not

	Waypoints []Waypoint // Positional
}

func Node(r RouterID) PathCondition { return PathCondition{Kind: CondNode, Node: r} }

func Edge(a, b RouterID) PathCondition {
	return PathCondition{Kind: CondEdge, EdgeFrom: a, EdgeTo: b}
}

func And(cs ...PathCondition) PathCondition {
	return PathCondition{Kind: CondAnd, Children: cs}
}

func Or(cs ...PathCondition) PathCondition {
	return PathCondition{Kind: CondOr, Children: cs}
}

func Not(c PathCondition) PathCondition {
	inner := c
	return PathCondition{Kind: CondNot, Inner: &inner}
}

func Positional(ws ...Waypoint) PathCondition {
	return PathCondition{Kind: CondPositional, Waypoints: ws}
}

// Matches reports whether path satisfies the condition.
func (c PathCondition) Matches(path []RouterID) bool {
	switch c.Kind {
	case CondNode:
		for _, r := range path {
			if r == c.Node {
				return true
			}
		}
		return false
	case CondEdge:
		for i := 0; i+1 < len(path); i++ {
			if path[i] == c.EdgeFrom && path[i+1] == c.EdgeTo {
				return true
			}
		}
		return false
	case CondAnd:
		for _, ch := range c.Children {
			if !ch.Matches(path) {
				return false
			}
		}
		return true
	case CondOr:
		for _, ch := range c.Children {
			if ch.Matches(path) {
				return true
			}
		}
		return false
	case CondNot:
		return !c.Inner.Matches(path)
	case CondPositional:
		return matchPositional(c.Waypoints, path)
	default:
		return false
	}
}

// matchPositional is a direct translation of the original's peekable-
// iterator state machine into index-based loops: 'alg consumes one
// waypoint at a time against the path, and entering a Star hands
// control to an inner 'star loop that keeps consuming waypoints
// (absorbing further Stars, requiring Anys to advance the path by one,
// and fast-forwarding to the next Fix) until it finds the next fixed
// waypoint or runs out, then returns control to 'alg.
func matchPositional(ws []Waypoint, path []RouterID) bool {
	pi, vi := 0, 0
algLoop:
	for {
		if vi >= len(ws) {
			return pi >= len(path)
		}
		w := ws[vi]
		vi++
		switch w.Kind {
		case WaypointAny:
			if pi >= len(path) {
				return false
			}
			pi++
			continue algLoop
		case WaypointFix:
			if pi >= len(path) || path[pi] != w.Router {
				return false
			}
			pi++
			continue algLoop
		case WaypointStar:
			for {
				if vi >= len(ws) {
					return true
				}
				w2 := ws[vi]
				switch w2.Kind {
				case WaypointAny:
					if pi >= len(path) {
						return false
					}
					pi++
					vi++
				case WaypointStar:
					vi++
				case WaypointFix:
					found := false
					for pi < len(path) {
						cur := path[pi]
						pi++
						if cur == w2.Router {
							found = true
							break
						}
					}
					if !found {
						return false
					}
					vi++
					continue algLoop
				}
			}
		}
	}
}

// cnfClause is one AND-ed group of a CNF expression: its Pos elements
// are OR-ed directly, its Neg elements are OR-ed negated.
type cnfClause struct {
	Pos []PathCondition
	Neg []PathCondition
}

// PathConditionCNF is a PathCondition in conjunctive normal form
// (an AND of ORs). Positional conditions cannot be distributed any
// further, so a CNF containing one is not a "true" CNF over
// Node/Edge literals alone; IsCNF reports that.
type PathConditionCNF struct {
	clauses []cnfClause
	isCNF   bool
}

// ToCNF converts a PathCondition to conjunctive normal form, applying
// De Morgan's laws to push negation to the leaves and distributing Or
// over And via the cartesian product of their clause sets.
func ToCNF(c PathCondition) PathConditionCNF {
	return newCNF(c.intoCNFRecursive())
}

func newCNF(clauses []cnfClause) PathConditionCNF {
	isCNF := true
	for _, cl := range clauses {
		for _, c := range cl.Pos {
			if c.Kind != CondNode && c.Kind != CondEdge {
				isCNF = false
			}
		}
		for _, c := range cl.Neg {
			if c.Kind != CondNode && c.Kind != CondEdge {
				isCNF = false
			}
		}
	}
	return PathConditionCNF{clauses: clauses, isCNF: isCNF}
}

// IsCNF reports whether the expression is a genuine CNF over Node/Edge
// literals, with no leftover Positional conditions.
func (cnf PathConditionCNF) IsCNF() bool { return cnf.isCNF }

func (c PathCondition) intoCNFRecursive() []cnfClause {
	switch c.Kind {
	case CondNode, CondEdge, CondPositional:
		return []cnfClause{{Pos: []PathCondition{c}}}
	case CondAnd:
		var out []cnfClause
		for _, ch := range c.Children {
			out = append(out, ch.intoCNFRecursive()...)
		}
		return out
	case CondOr:
		if len(c.Children) == 0 {
			return []cnfClause{{}}
		}
		x := c.Children[0].intoCNFRecursive()
		for _, ch := range c.Children[1:] {
			e := ch.intoCNFRecursive()
			var combined []cnfClause
			for _, xc := range x {
				for _, ec := range e {
					combined = append(combined, cnfClause{
						Pos: concat(xc.Pos, ec.Pos),
						Neg: concat(xc.Neg, ec.Neg),
					})
				}
			}
			x = combined
		}
		return x
	case CondNot:
		inner := *c.Inner
		switch inner.Kind {
		case CondNode, CondEdge, CondPositional:
			return []cnfClause{{Neg: []PathCondition{inner}}}
		case CondNot:
			return inner.Inner.intoCNFRecursive()
		case CondAnd:
			negated := make([]PathCondition, len(inner.Children))
			for i, ch := range inner.Children {
				negated[i] = Not(ch)
			}
			return Or(negated...).intoCNFRecursive()
		case CondOr:
			negated := make([]PathCondition, len(inner.Children))
			for i, ch := range inner.Children {
				negated[i] = Not(ch)
			}
			return And(negated...).intoCNFRecursive()
		default:
			return nil
		}
	default:
		return nil
	}
}

func concat(a, b []PathCondition) []PathCondition {
	out := make([]PathCondition, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// ToPathCondition expands a CNF back into an ordinary nested
// And(Or(...)) PathCondition, the inverse of ToCNF.
func (cnf PathConditionCNF) ToPathCondition() PathCondition {
	clauses := make([]PathCondition, len(cnf.clauses))
	for i, cl := range cnf.clauses {
		var ors []PathCondition
		for _, n := range cl.Neg {
			ors = append(ors, Not(n))
		}
		ors = append(ors, cl.Pos...)
		clauses[i] = Or(ors...)
	}
	return And(clauses...)
}

// Matches evaluates the CNF form directly, without expanding back to a
// PathCondition tree.
func (cnf PathConditionCNF) Matches(path []RouterID) bool {
	for _, cl := range cnf.clauses {
		ok := false
		for _, c := range cl.Pos {
			if c.Matches(path) {
				ok = true
				break
			}
		}
		if !ok {
			for _, c := range cl.Neg {
				if !c.Matches(path) {
					ok = true
					break
				}
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// PolicyKind distinguishes the checkable policy types.
type PolicyKind int

const (
	Reachable PolicyKind = iota
	NotReachable
	PathConditionPolicy
	LoopFree
	LoadBalancing
)

func (k PolicyKind) String() string {
	switch k {
	case Reachable:
		return "Reachable"
	case NotReachable:
		return "NotReachable"
	case PathConditionPolicy:
		return "PathCondition"
	case LoopFree:
		return "LoopFree"
	case LoadBalancing:
		return "LoadBalancing"
	default:
		return "unknown"
	}
}

// Policy is one checkable hard policy (spec §4.9's FwPolicy): a router
// and a prefix, plus whatever extra data its Kind requires. Vertex- and
// edge-disjoint load balancing are intentionally not modeled: the
// original implementation never implements them either (its
// LoadBalancingVertexDisjoint/LoadBalancingEdgeDisjoint variants
// panic with unimplemented!()), so there is no behavior to ground a Go
// equivalent on.
type Policy[P comparable] struct {
	Kind      PolicyKind
	Router    RouterID
	Prefix    P
	Condition PathCondition // PathConditionPolicy only
	K         int           // LoadBalancing only
}

func NewReachable[P comparable](r RouterID, p P) Policy[P] {
	return Policy[P]{Kind: Reachable, Router: r, Prefix: p}
}

func NewNotReachable[P comparable](r RouterID, p P) Policy[P] {
	return Policy[P]{Kind: NotReachable, Router: r, Prefix: p}
}

func NewPathCondition[P comparable](r RouterID, p P, c PathCondition) Policy[P] {
	return Policy[P]{Kind: PathConditionPolicy, Router: r, Prefix: p, Condition: c}
}

func NewLoopFree[P comparable](r RouterID, p P) Policy[P] {
	return Policy[P]{Kind: LoopFree, Router: r, Prefix: p}
}

func NewLoadBalancing[P comparable](r RouterID, p P, k int) Policy[P] {
	return Policy[P]{Kind: LoadBalancing, Router: r, Prefix: p, K: k}
}

// Check evaluates the policy against a forwarding state, returning nil
// if it holds and one of this package's error types describing the
// violation otherwise.
func (pl Policy[P]) Check(fw *forwarding.State[P]) error {
	switch pl.Kind {
	case Reachable:
		_, err := fw.Paths(pl.Router, pl.Prefix)
		return translateUnreachable(err, pl.Prefix)

	case NotReachable:
		paths, err := fw.Paths(pl.Router, pl.Prefix)
		if isForwardingFailure(err) {
			// a black hole or forwarding loop both satisfy "not reachable"
			return nil
		}
		if err != nil {
			return err
		}
		return &UnallowedPathExistsError[P]{Router: pl.Router, Prefix: pl.Prefix, Paths: paths}

	case PathConditionPolicy:
		paths, err := fw.Paths(pl.Router, pl.Prefix)
		if isForwardingFailure(err) {
			// a black hole or forwarding loop trivially satisfies the
			// path condition, since there is no complete path to check
			return nil
		}
		if err != nil {
			return err
		}
		for _, path := range paths {
			if !pl.Condition.Matches(path) {
				return &PathConditionError[P]{Path: path, Condition: pl.Condition, Prefix: pl.Prefix}
			}
		}
		return nil

	case LoopFree:
		_, err := fw.Paths(pl.Router, pl.Prefix)
		var loopErr *simerr.ForwardingLoopError
		if errors.As(err, &loopErr) {
			return &ForwardingLoopError[P]{Path: routerIDsFromInts(loopErr.Cycle), Prefix: pl.Prefix}
		}
		return nil

	case LoadBalancing:
		paths, err := fw.Paths(pl.Router, pl.Prefix)
		if err == nil && len(paths) >= pl.K {
			return nil
		}
		return &InsufficientPathsError[P]{Router: pl.Router, Prefix: pl.Prefix, K: pl.K}

	default:
		return fmt.Errorf("policy: unrecognized kind %v", pl.Kind)
	}
}

func translateUnreachable[P comparable](err error, prefix P) error {
	if err == nil {
		return nil
	}
	var loopErr *simerr.ForwardingLoopError
	if errors.As(err, &loopErr) {
		return &ForwardingLoopError[P]{Path: routerIDsFromInts(loopErr.Cycle), Prefix: prefix}
	}
	var bhErr *simerr.ForwardingBlackHoleError
	if errors.As(err, &bhErr) {
		last := bhErr.Path[len(bhErr.Path)-1]
		return &BlackHoleError[P]{Router: RouterID(last), Prefix: prefix}
	}
	return err
}

func isForwardingFailure(err error) bool {
	var loopErr *simerr.ForwardingLoopError
	var bhErr *simerr.ForwardingBlackHoleError
	return errors.As(err, &loopErr) || errors.As(err, &bhErr)
}

func routerIDsFromInts(ints []int) []RouterID {
	out := make([]RouterID, len(ints))
	for i, v := range ints {
		out[i] = RouterID(v)
	}
	return out
}

// BlackHoleError reports that a router cannot reach a prefix because a
// forwarding black hole exists along every path.
type BlackHoleError[P comparable] struct {
	Router RouterID
	Prefix P
}

func (e *BlackHoleError[P]) Error() string {
	return fmt.Sprintf("black hole at router %d for %v", e.Router, e.Prefix)
}

// ForwardingLoopError reports that traffic towards a prefix loops
// instead of reaching an origin.
type ForwardingLoopError[P comparable] struct {
	Path   []RouterID
	Prefix P
}

func (e *ForwardingLoopError[P]) Error() string {
	return fmt.Sprintf("forwarding loop %v for %v", e.Path, e.Prefix)
}

// PathConditionError reports that a taken path fails a required
// PathCondition.
type PathConditionError[P comparable] struct {
	Path      []RouterID
	Condition PathCondition
	Prefix    P
}

func (e *PathConditionError[P]) Error() string {
	return fmt.Sprintf("invalid path for %v: %v", e.Prefix, e.Path)
}

// UnallowedPathExistsError reports that a router can reach a prefix it
// was required not to.
type UnallowedPathExistsError[P comparable] struct {
	Router RouterID
	Prefix P
	Paths  [][]RouterID
}

func (e *UnallowedPathExistsError[P]) Error() string {
	return fmt.Sprintf("router %d should not reach %v but the following paths are valid: %v", e.Router, e.Prefix, e.Paths)
}

// InsufficientPathsError reports that fewer than k forwarding paths (not
// checked for disjointness) exist, or that they could not be enumerated,
// where load balancing requires at least k.
type InsufficientPathsError[P comparable] struct {
	Router RouterID
	Prefix P
	K      int
}

func (e *InsufficientPathsError[P]) Error() string {
	return fmt.Sprintf("router %d should reach %v by at least %d paths", e.Router, e.Prefix, e.K)
}
