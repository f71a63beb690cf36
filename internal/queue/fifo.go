package queue

import "github.com/netsim/bgpsim/internal/igp"

// FIFOQueue delivers events in strict insertion order, the simulator's
// default discipline (spec §4.4, §5 "FIFO for the default queue"). A
// plain append/pop slice is enough: no priority bookkeeping is needed so
// UpdateParams is a no-op.
type FIFOQueue struct {
	events []Event
}

// NewFIFOQueue returns an empty FIFO queue.
func NewFIFOQueue() *FIFOQueue {
	return &FIFOQueue{}
}

func (q *FIFOQueue) Push(ev Event) {
	q.events = append(q.events, ev)
}

func (q *FIFOQueue) Pop() (Event, bool) {
	if len(q.events) == 0 {
		return Event{}, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

func (q *FIFOQueue) IsEmpty() bool { return len(q.events) == 0 }

func (q *FIFOQueue) Clear() { q.events = nil }

func (q *FIFOQueue) Len() int { return len(q.events) }

func (q *FIFOQueue) UpdateParams(*igp.Graph) {}
