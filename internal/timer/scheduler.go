// Package timer provides cancelable one-shot and periodic timers that fire only when polled.
//
// A Scheduler is not safe for concurrent use. Each match owns one and calls Fire from inside its
// own critical section, so a timer callback can never race with another state transition.
package timer

import (
	"container/heap"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a handle to a scheduled callback.
type Timer struct {
	s        *Scheduler
	name     string
	seq      uint64
	deadline time.Time
	period   time.Duration
	fn       func()
	index    int
}

// Name returns the label given at scheduling time.
func (t *Timer) Name() string { return t.name }

// Deadline returns the next time the timer is due.
func (t *Timer) Deadline() time.Time { return t.deadline }

// Active reports whether the timer is still scheduled.
func (t *Timer) Active() bool { return t != nil && t.index >= 0 }

// Stop cancels the timer. It returns false if the timer already fired or was stopped.
func (t *Timer) Stop() bool {
	if !t.Active() {
		return false
	}
	heap.Remove(&t.s.queue, t.index)
	return true
}

// Scheduler orders timers by deadline against a clock.
type Scheduler struct {
	clock  clockwork.Clock
	queue  timerQueue
	seq    uint64
	firing *time.Time
}

// New creates a scheduler. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock}
}

// Clock returns the underlying clock.
func (s *Scheduler) Clock() clockwork.Clock { return s.clock }

// Now returns the current time. While a callback runs it is that timer's deadline,
// so timers armed from a callback are measured from the moment the event was due.
func (s *Scheduler) Now() time.Time {
	if s.firing != nil {
		return *s.firing
	}
	return s.clock.Now()
}

// After schedules fn to run once, d from now.
func (s *Scheduler) After(name string, d time.Duration, fn func()) *Timer {
	return s.schedule(name, d, 0, fn)
}

// Every schedules fn to run every d until stopped. d must be positive.
func (s *Scheduler) Every(name string, d time.Duration, fn func()) *Timer {
	if d <= 0 {
		panic("timer: non-positive interval for Every")
	}
	return s.schedule(name, d, d, fn)
}

func (s *Scheduler) schedule(name string, d, period time.Duration, fn func()) *Timer {
	s.seq++
	t := &Timer{
		s:        s,
		name:     name,
		seq:      s.seq,
		deadline: s.Now().Add(d),
		period:   period,
		fn:       fn,
	}
	heap.Push(&s.queue, t)
	return t
}

// Fire runs every timer due at the current clock time in deadline order, including timers
// armed by callbacks that are themselves already due. It returns the number of callbacks run.
func (s *Scheduler) Fire() int {
	now := s.clock.Now()
	fired := 0
	for len(s.queue) > 0 {
		next := s.queue[0]
		if next.deadline.After(now) {
			break
		}
		heap.Pop(&s.queue)
		due := next.deadline
		if next.period > 0 {
			next.deadline = due.Add(next.period)
			heap.Push(&s.queue, next)
		}
		s.firing = &due
		next.fn()
		s.firing = nil
		fired++
	}
	return fired
}

// Pending returns the number of scheduled timers.
func (s *Scheduler) Pending() int { return len(s.queue) }

// NextDeadline returns the earliest deadline, if any.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].deadline, true
}

// StopAll cancels every scheduled timer.
func (s *Scheduler) StopAll() {
	for _, t := range s.queue {
		t.index = -1
	}
	s.queue = nil
}

type timerQueue []*Timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
