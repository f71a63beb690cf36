// Package queue implements the pluggable event-queue contract (spec §4.4,
// component H): ordered delivery of BGP messages, with FIFO, timed, and
// Redis-backed implementations. Per spec §9's design note ("the queue is
// a capability... implementations must not hold interior references to
// routers"), every implementation here only holds the read-only
// parameters UpdateParams hands it — never a pointer into
// internal/router's live state.
package queue

import "github.com/netsim/bgpsim/internal/igp"

// RouterID mirrors bgproute.RouterID without creating a dependency on
// the BGP layer from the queue package.
type RouterID = igp.RouterID

// BgpEventKind tags an Update vs. Withdraw message.
type BgpEventKind int

const (
	EventUpdate BgpEventKind = iota
	EventWithdraw
)

// BgpEvent is the payload carried by an Event: either an Update(route) or
// a Withdraw(prefix). Route is an opaque marshaled/boxed value (any) so
// this package stays generic over the caller's concrete prefix/route
// types without importing internal/bgproute.
type BgpEvent struct {
	Kind   BgpEventKind
	Prefix any
	Route  any
}

// Event is one Event::Bgp(priority, from, to, BgpEvent) entry (spec §4.4).
// Priority is implementation-defined: FIFOQueue ignores it (insertion
// order instead), TimedQueue ignores it and samples its own delivery
// time, RedisQueue uses it as the sorted-set score.
type Event struct {
	Priority float64
	From     RouterID
	To       RouterID
	Msg      BgpEvent
}

// Queue is the capability every event-queue implementation provides.
type Queue interface {
	Push(ev Event)
	Pop() (Event, bool)
	IsEmpty() bool
	Clear()
	Len() int
	// UpdateParams is called by internal/netsim after every IGP recompute
	// (every topology change) so a priority/latency model can recalibrate;
	// session changes alone do not trigger it. graph is a read-only
	// snapshot; implementations must not retain session-level router
	// state beyond what graph exposes.
	UpdateParams(graph *igp.Graph)
}
