// Package bgproute implements the BGP path-attribute data model (spec §3,
// component B): the attribute bag exchanged between routers, the
// per-router RIB entry wrapping it with session metadata, and the six-key
// decision-process tie-break order.
//
// Fields are exported and JSON-tagged even though nothing here crosses
// the wire as JSON today — it keeps the struct shape ready for the
// (out-of-scope) vendor-config/serialization layer to consume.
package bgproute

// RouterID is a dense integer handle assigned monotonically at router
// creation. TODst is the reserved sentinel marking "prefix is originated
// here / forwarded out of the simulated domain" — it is not allocated to
// any real router.
type RouterID int

// TODst is the reserved sentinel RouterID. Call sites must never create a
// router with this id; internal/netsim enforces that at creation time.
const TODst RouterID = -1

// AsID is a 32-bit autonomous-system number.
type AsID uint32

// SessionType enumerates the three BGP session kinds (spec §3).
type SessionType int

const (
	SessionIBgpPeer SessionType = iota
	SessionIBgpClient
	SessionEBgp
)

func (t SessionType) String() string {
	switch t {
	case SessionIBgpPeer:
		return "iBGP-peer"
	case SessionIBgpClient:
		return "iBGP-client"
	case SessionEBgp:
		return "eBGP"
	default:
		return "unknown"
	}
}

// IsIBgp reports whether the session is either iBGP flavor.
func (t SessionType) IsIBgp() bool {
	return t == SessionIBgpPeer || t == SessionIBgpClient
}

// Route carries the BGP path attributes exchanged between routers, in
// decision order of relevance (spec §3).
type Route[P comparable] struct {
	Prefix  P        `json:"prefix"`
	AsPath  []AsID   `json:"as_path"`
	NextHop RouterID `json:"next_hop"`

	LocalPref *uint32 `json:"local_pref,omitempty"`
	Med       *uint32 `json:"med,omitempty"`

	Community    map[uint32]struct{} `json:"community,omitempty"`
	OriginatorID *RouterID           `json:"originator_id,omitempty"`
	ClusterList  []RouterID          `json:"cluster_list,omitempty"`
}

// Clone returns a deep copy, so route-map application and dissemination
// can mutate the result without aliasing the original RIB entry.
func (r Route[P]) Clone() Route[P] {
	out := r
	if r.AsPath != nil {
		out.AsPath = append([]AsID(nil), r.AsPath...)
	}
	if r.LocalPref != nil {
		lp := *r.LocalPref
		out.LocalPref = &lp
	}
	if r.Med != nil {
		med := *r.Med
		out.Med = &med
	}
	if r.Community != nil {
		out.Community = make(map[uint32]struct{}, len(r.Community))
		for c := range r.Community {
			out.Community[c] = struct{}{}
		}
	}
	if r.OriginatorID != nil {
		oid := *r.OriginatorID
		out.OriginatorID = &oid
	}
	if r.ClusterList != nil {
		out.ClusterList = append([]RouterID(nil), r.ClusterList...)
	}
	return out
}

// HasCommunity reports whether c is set on the route.
func (r Route[P]) HasCommunity(c uint32) bool {
	if r.Community == nil {
		return false
	}
	_, ok := r.Community[c]
	return ok
}

// AddCommunity sets community value c.
func (r *Route[P]) AddCommunity(c uint32) {
	if r.Community == nil {
		r.Community = make(map[uint32]struct{})
	}
	r.Community[c] = struct{}{}
}

// DelCommunity removes community value c.
func (r *Route[P]) DelCommunity(c uint32) {
	delete(r.Community, c)
}

// LocalPrefOrDefault returns the route's local preference, defaulting to
// 100 per spec §4.2 phase 2 step 4.
func (r Route[P]) LocalPrefOrDefault() uint32 {
	if r.LocalPref == nil {
		return 100
	}
	return *r.LocalPref
}

// MedOrDefault returns the route's MED, defaulting to 0.
func (r Route[P]) MedOrDefault() uint32 {
	if r.Med == nil {
		return 0
	}
	return *r.Med
}

// RibEntry is a Route plus the per-router, per-session bookkeeping spec
// §3 requires: which session it arrived/will leave on, IGP cost computed
// during decision, and a route-map-settable weight.
type RibEntry[P comparable] struct {
	Route Route[P] `json:"route"`

	FromType SessionType `json:"from_type"`
	FromID   RouterID    `json:"from_id"`
	ToID     *RouterID   `json:"to_id,omitempty"`

	// IgpCost is nil until phase 2 fills it in; NaN is never stored,
	// hence the pointer (a Go float64 has no dedicated "unset" value
	// spec-safe from NaN comparison pitfalls).
	IgpCost *float64 `json:"igp_cost,omitempty"`

	Weight uint16 `json:"weight"`
}

// Clone deep-copies the entry, including its Route.
func (e RibEntry[P]) Clone() RibEntry[P] {
	out := e
	out.Route = e.Route.Clone()
	if e.ToID != nil {
		id := *e.ToID
		out.ToID = &id
	}
	if e.IgpCost != nil {
		c := *e.IgpCost
		out.IgpCost = &c
	}
	return out
}
