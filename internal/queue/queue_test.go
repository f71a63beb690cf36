package queue

import "testing"

func TestFIFOOrder(t *testing.T) {
	q := NewFIFOQueue()
	q.Push(Event{From: 1, To: 2})
	q.Push(Event{From: 3, To: 4})
	ev, ok := q.Pop()
	if !ok || ev.From != 1 {
		t.Fatalf("expected first-pushed event first, got %+v", ev)
	}
	ev, ok = q.Pop()
	if !ok || ev.From != 3 {
		t.Fatalf("expected second event next, got %+v", ev)
	}
	if !q.IsEmpty() {
		t.Fatalf("expected queue empty after draining")
	}
}

func TestFIFOClearAndLen(t *testing.T) {
	q := NewFIFOQueue()
	q.Push(Event{})
	q.Push(Event{})
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
	q.Clear()
	if q.Len() != 0 || !q.IsEmpty() {
		t.Fatalf("expected empty after Clear")
	}
}

func TestTimedQueueDeterministicOrder(t *testing.T) {
	q1 := NewTimedQueue(Exponential, 2.0, 0, 42)
	q2 := NewTimedQueue(Exponential, 2.0, 0, 42)
	for i := 0; i < 20; i++ {
		q1.Push(Event{From: RouterID(i)})
		q2.Push(Event{From: RouterID(i)})
	}
	for i := 0; i < 20; i++ {
		e1, ok1 := q1.Pop()
		e2, ok2 := q2.Pop()
		if ok1 != ok2 || e1.From != e2.From {
			t.Fatalf("same seed should reproduce same delivery order, got %+v vs %+v", e1, e2)
		}
	}
}

func TestTimedQueuePopOrderedByTime(t *testing.T) {
	q := NewTimedQueue(Exponential, 5.0, 0, 7)
	for i := 0; i < 50; i++ {
		q.Push(Event{From: RouterID(i)})
	}
	last := -1.0
	for !q.IsEmpty() {
		q.Pop()
		if q.clock < last {
			t.Fatalf("expected non-decreasing delivery clock")
		}
		last = q.clock
	}
}
