// Package courier simulates delivery: every order handed to it is picked up
// from the shelf after a random delay and reported as delivered, discarded
// or not found.
package courier

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mishnit/pubsub/internal/decay"
	"github.com/mishnit/pubsub/internal/events"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/pkg/log"
)

// Retriever is satisfied by *shelf.Shelf.
type Retriever interface {
	Retrieve(id string, temp order.Temperature) (order.Order, decay.Tier, bool)
}

const (
	DefaultMinDelay = 2 * time.Second
	DefaultMaxDelay = 6 * time.Second
)

// Options configures a Courier.
type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Clock    decay.Clock // used for decay at pickup; timers use the wall clock
	Rand     *rand.Rand
	Reporter events.Reporter
	Logger   log.Logger
}

// Outcome of one pickup.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeNotFound  Outcome = "not_found"
)

// Courier schedules pickups and tracks the ones still pending.
type Courier struct {
	shelf    Retriever
	sched    *Scheduler
	opts     Options
	logger   log.Logger
	reporter events.Reporter

	mu        sync.Mutex
	rng       *rand.Rand
	pending   map[string]struct{}
	inputDone bool
	outcomes  map[Outcome]int
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a courier picking up from shelf.
func New(shelf Retriever, opts Options) *Courier {
	if opts.MinDelay <= 0 {
		opts.MinDelay = DefaultMinDelay
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.Clock == nil {
		opts.Clock = decay.SystemClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Reporter == nil {
		opts.Reporter = events.Nop
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Courier{
		shelf:    shelf,
		sched:    NewScheduler(),
		opts:     opts,
		logger:   opts.Logger.WithComponent("courier"),
		reporter: opts.Reporter,
		rng:      opts.Rand,
		pending:  make(map[string]struct{}),
		outcomes: make(map[Outcome]int),
		done:     make(chan struct{}),
	}
}

// delay draws a pickup delay in [MinDelay, MaxDelay]. When both bounds are
// whole seconds the draw is in whole seconds.
func (c *Courier) delay() time.Duration {
	lo, hi := c.opts.MinDelay, c.opts.MaxDelay
	if lo == hi {
		return lo
	}
	if lo%time.Second == 0 && hi%time.Second == 0 {
		n := int64((hi - lo) / time.Second)
		return lo + time.Duration(c.rng.Int63n(n+1))*time.Second
	}
	return lo + time.Duration(c.rng.Int63n(int64(hi-lo)+1))
}

// Dispatch schedules a pickup for o. An order whose pickup is already
// pending is not scheduled again and Dispatch reports false.
func (c *Courier) Dispatch(o order.Order) bool {
	c.mu.Lock()
	if _, ok := c.pending[o.ID]; ok {
		c.mu.Unlock()
		c.logger.Debug("courier already dispatched", log.Str("order_id", o.ID))
		return false
	}
	d := c.delay()
	c.pending[o.ID] = struct{}{}
	c.mu.Unlock()

	c.sched.Schedule(time.Now().Add(d), o)
	c.logger.Debug("courier dispatched", log.Str("order_id", o.ID), log.Dur("delay", d))
	return true
}

// CloseInput records that no further orders will be dispatched. Done closes
// once every pending pickup has fired.
func (c *Courier) CloseInput() {
	c.mu.Lock()
	c.inputDone = true
	empty := len(c.pending) == 0
	c.mu.Unlock()
	if empty {
		c.finish()
	}
}

// Done is closed when input is closed and no pickups remain.
func (c *Courier) Done() <-chan struct{} { return c.done }

// Pending returns the number of pickups not yet fired.
func (c *Courier) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Outcomes returns counts per outcome.
func (c *Courier) Outcomes() map[Outcome]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Outcome]int, len(c.outcomes))
	for k, v := range c.outcomes {
		out[k] = v
	}
	return out
}

func (c *Courier) finish() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Run fires pickups until Done or ctx. Pickups still queued when ctx ends
// are abandoned.
func (c *Courier) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := c.sched.Run(ctx, c.pickup)
	select {
	case <-c.done:
		return nil
	default:
	}
	if n := c.sched.Clear(); n > 0 {
		c.logger.Warn("abandoned pending pickups", log.Int("count", n))
	}
	return err
}

func (c *Courier) pickup(o order.Order) {
	now := c.opts.Clock.Now()
	outcome := OutcomeDelivered
	held, tier, ok := c.shelf.Retrieve(o.ID, o.Temp)
	switch {
	case !ok:
		outcome = OutcomeNotFound
		c.reporter.Report(events.Event{Kind: events.KindNotFound, OrderID: o.ID, Name: o.Name, Time: now})
	default:
		v := decay.Value(held, tier, now)
		if v <= 0 {
			outcome = OutcomeDiscarded
			c.reporter.Report(events.Event{
				Kind: events.KindDiscarded, OrderID: o.ID, Name: o.Name, Tier: string(tier),
				Reason: events.ReasonExpiredAtPickup, Value: v, Time: now,
			})
		} else {
			c.reporter.Report(events.Event{
				Kind: events.KindDelivered, OrderID: o.ID, Name: o.Name, Tier: string(tier), Value: v, Time: now,
			})
		}
	}

	c.mu.Lock()
	delete(c.pending, o.ID)
	c.outcomes[outcome]++
	finished := c.inputDone && len(c.pending) == 0
	c.mu.Unlock()
	if finished {
		c.finish()
	}
}
