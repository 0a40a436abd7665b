// Package dispatch publishes a finite list of orders onto the broker at a
// fixed rate per tick and returns once the list is exhausted.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mishnit/pubsub/internal/events"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/pkg/log"
)

// Publisher is satisfied by *pubsub.Publisher.
type Publisher interface {
	Publish(key string, payload []byte) (int, error)
}

// Options configures a Dispatcher.
type Options struct {
	Rate     int           // orders per tick, must be positive
	Interval time.Duration // default 1s
	Codec    order.Codec
	Logger   log.Logger
	Reporter events.Reporter
}

// Dispatcher owns the pre-loaded order list.
type Dispatcher struct {
	pub    Publisher
	orders []order.Order
	opts   Options
	logger log.Logger

	next       atomic.Int64
	dispatched atomic.Int64
	failed     atomic.Int64
}

// New returns a dispatcher for orders. It does not copy the slice.
func New(pub Publisher, orders []order.Order, opts Options) (*Dispatcher, error) {
	if opts.Rate <= 0 {
		return nil, fmt.Errorf("dispatch rate must be positive, got %d", opts.Rate)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Codec == nil {
		opts.Codec = order.JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Reporter == nil {
		opts.Reporter = events.Nop
	}
	return &Dispatcher{
		pub:    pub,
		orders: orders,
		opts:   opts,
		logger: opts.Logger.WithComponent("dispatch"),
	}, nil
}

// Run publishes up to Rate orders immediately and then on every tick until
// the list is exhausted or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatch started",
		log.Int("orders", len(d.orders)),
		log.Int("rate", d.opts.Rate),
		log.Dur("interval", d.opts.Interval),
	)
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		if d.tick() {
			d.logger.Info("dispatch finished",
				log.Int64("dispatched", d.dispatched.Load()),
				log.Int64("failed", d.failed.Load()),
			)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick publishes one batch and reports whether the list is exhausted.
func (d *Dispatcher) tick() bool {
	for i := 0; i < d.opts.Rate; i++ {
		idx := int(d.next.Load())
		if idx >= len(d.orders) {
			return true
		}
		d.next.Add(1)
		d.publish(d.orders[idx])
	}
	return int(d.next.Load()) >= len(d.orders)
}

func (d *Dispatcher) publish(o order.Order) {
	payload, err := d.opts.Codec.Encode(o)
	if err == nil {
		_, err = d.pub.Publish(o.ID, payload)
	}
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("publish failed", log.Str("order_id", o.ID), log.Err(err))
		return
	}
	d.dispatched.Add(1)
	d.opts.Reporter.Report(events.Event{Kind: events.KindDispatched, OrderID: o.ID, Name: o.Name})
}

// Dispatched returns how many orders were published.
func (d *Dispatcher) Dispatched() int64 { return d.dispatched.Load() }

// Failed returns how many orders could not be published.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

// Remaining returns how many orders have not been attempted yet.
func (d *Dispatcher) Remaining() int {
	n := len(d.orders) - int(d.next.Load())
	if n < 0 {
		return 0
	}
	return n
}
