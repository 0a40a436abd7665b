package courier

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/mishnit/pubsub/internal/order"
)

type task struct {
	at    time.Time
	seq   uint64
	order order.Order
}

func taskLess(a, b task) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.seq < b.seq
}

// Scheduler holds pending pickups ordered by fire time and fires them from a
// single goroutine.
type Scheduler struct {
	mu   sync.Mutex
	tree *btree.BTreeG[task]
	seq  uint64
	wake chan struct{}
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		tree: btree.NewG[task](8, taskLess),
		wake: make(chan struct{}, 1),
	}
}

// Schedule queues o to fire at at.
func (s *Scheduler) Schedule(at time.Time, o order.Order) {
	s.mu.Lock()
	s.seq++
	s.tree.ReplaceOrInsert(task{at: at, seq: s.seq, order: o})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// Clear drops every queued task and returns how many were dropped.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.tree.Len()
	s.tree.Clear(false)
	return n
}

// next pops the earliest task if it is due, otherwise returns how long to
// wait. ok is false when nothing is queued.
func (s *Scheduler) next(now time.Time) (t task, wait time.Duration, due, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	min, ok := s.tree.Min()
	if !ok {
		return task{}, 0, false, false
	}
	if d := min.at.Sub(now); d > 0 {
		return task{}, d, false, true
	}
	s.tree.DeleteMin()
	return min, 0, true, true
}

// Run fires due tasks in order until ctx is done. fire runs on the Run
// goroutine.
func (s *Scheduler) Run(ctx context.Context, fire func(order.Order)) error {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		t, wait, due, ok := s.next(time.Now())
		if due {
			fire(t.order)
			continue
		}
		var timeout <-chan time.Time
		if ok {
			timer.Reset(wait)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-timeout:
		}
		if ok && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}
