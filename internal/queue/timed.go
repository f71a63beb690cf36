package queue

import (
	"container/heap"
	"math"
	"math/rand/v2"

	"github.com/netsim/bgpsim/internal/igp"
)

// Distribution selects the sampling family used to draw a delivery delay
// for each pushed event (spec §4.4: "exponential / log-normal family").
type Distribution int

const (
	// Exponential draws delay ~ Exp(rate), mean = 1/rate.
	Exponential Distribution = iota
	// LogNormal draws delay ~ LogNormal(mu, sigma).
	LogNormal
)

// TimedQueue delivers events in sampled-delivery-time order: each push
// draws a delay from the configured Distribution and adds it to a
// virtual clock, then a min-heap keyed on that absolute time pops events
// earliest-first.
type TimedQueue struct {
	dist  Distribution
	mu    float64 // LogNormal mu / Exponential rate, depending on dist
	sigma float64 // LogNormal sigma only
	clock float64
	rng   *rand.Rand
	h     timedHeap
}

// NewTimedQueue builds a TimedQueue. For Exponential, mu is the rate
// (events/unit time); for LogNormal, mu/sigma are the underlying normal's
// parameters. seed makes sampling reproducible across runs, matching the
// simulator's determinism requirement (spec §4.4: "deterministic given
// initial state, external actions, queue discipline").
func NewTimedQueue(dist Distribution, mu, sigma float64, seed uint64) *TimedQueue {
	return &TimedQueue{
		dist:  dist,
		mu:    mu,
		sigma: sigma,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

type timedEntry struct {
	at  float64
	seq uint64
	ev  Event
}

type timedHeap []timedEntry

func (h timedHeap) Len() int { return len(h) }
func (h timedHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	// Break exact-time ties by push order, keeping the queue deterministic.
	return h[i].seq < h[j].seq
}
func (h timedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timedHeap) Push(x interface{}) { *h = append(*h, x.(timedEntry)) }
func (h *timedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

var seqCounter uint64

func (q *TimedQueue) sample() float64 {
	switch q.dist {
	case LogNormal:
		z := q.rng.NormFloat64()*q.sigma + q.mu
		return math.Exp(z)
	default: // Exponential
		rate := q.mu
		if rate <= 0 {
			rate = 1
		}
		u := q.rng.Float64()
		return -math.Log(1-u) / rate
	}
}

func (q *TimedQueue) Push(ev Event) {
	delay := q.sample()
	at := q.clock + delay
	seqCounter++
	heap.Push(&q.h, timedEntry{at: at, seq: seqCounter, ev: ev})
}

func (q *TimedQueue) Pop() (Event, bool) {
	if len(q.h) == 0 {
		return Event{}, false
	}
	e := heap.Pop(&q.h).(timedEntry)
	q.clock = e.at
	return e.ev, true
}

func (q *TimedQueue) IsEmpty() bool { return len(q.h) == 0 }

func (q *TimedQueue) Clear() {
	q.h = nil
	q.clock = 0
}

func (q *TimedQueue) Len() int { return len(q.h) }

// UpdateParams recalibrates the exponential rate from the graph's mean
// finite link weight, treating lower-weight (faster) links as producing
// proportionally quicker deliveries — a simple, deterministic
// recalibration rule, not a claim of physical fidelity.
func (q *TimedQueue) UpdateParams(graph *igp.Graph) {
	if graph == nil || q.dist != Exponential {
		return
	}
	var sum float64
	var n int
	for _, r := range graph.Nodes() {
		for _, nb := range graph.Neighbors(r) {
			w := graph.Weight(r, nb)
			if w < igp.Inf {
				sum += w
				n++
			}
		}
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)
	if mean <= 0 {
		mean = 1
	}
	q.mu = 1 / mean
}
