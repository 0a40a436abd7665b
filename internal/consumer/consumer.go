package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mishnit/pubsub/internal/events"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/internal/pubsub"
	"github.com/mishnit/pubsub/pkg/log"
)

// Broker is the subset of *pubsub.Broker a consumer needs.
type Broker interface {
	RegisterSubscriber(topic string) (pubsub.SubscriberID, error)
	Poll(id pubsub.SubscriberID, topic string, max int) ([]pubsub.Record, error)
	Rewind(id pubsub.SubscriberID, count int) error
	WaitForPublish(ctx context.Context, topic string, timeout time.Duration) bool
}

// Options configures a Consumer. Zero values take the defaults below.
type Options struct {
	Name           string
	Topic          string
	BatchSize      int           // default 10
	Backoff        time.Duration // default 1s
	EmptyPollLimit int           // default 10
	MaxRetries     int           // default 5, negative retries without limit
	Codec          order.Codec   // default order.JSONCodec
	Logger         log.Logger
	Reporter       events.Reporter
}

const (
	DefaultBatchSize      = 10
	DefaultBackoff        = time.Second
	DefaultEmptyPollLimit = 10
	DefaultMaxRetries     = 5
)

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = "consumer"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.EmptyPollLimit <= 0 {
		o.EmptyPollLimit = DefaultEmptyPollLimit
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Codec == nil {
		o.Codec = order.JSONCodec{}
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.Reporter == nil {
		o.Reporter = events.Nop
	}
}

// Consumer is one polling loop bound to a topic.
type Consumer struct {
	broker  Broker
	opts    Options
	handler Handler
	logger  log.Logger

	state     atomic.Int32
	delivered atomic.Int64
}

// New returns a consumer. Run starts it.
func New(b Broker, opts Options, h Handler) *Consumer {
	opts.applyDefaults()
	return &Consumer{
		broker:  b,
		opts:    opts,
		handler: h,
		logger:  opts.Logger.WithComponent("consumer").With(log.Str("consumer", opts.Name), log.Str("topic", opts.Topic)),
	}
}

// Name returns the consumer name.
func (c *Consumer) Name() string { return c.opts.Name }

// State returns the current state.
func (c *Consumer) State() State { return State(c.state.Load()) }

// Delivered returns how many orders were handed to the handler.
func (c *Consumer) Delivered() int64 { return c.delivered.Load() }

func (c *Consumer) set(s State) { c.state.Store(int32(s)) }

// Run executes the loop until it reaches a terminal state. It returns
// StateExhausted with a nil error on normal completion, and StateAborted
// with the cause otherwise.
func (c *Consumer) Run(ctx context.Context) (State, error) {
	c.set(StateRegistering)
	id, err := c.broker.RegisterSubscriber(c.opts.Topic)
	if err != nil {
		return c.abort(ctx, err)
	}
	c.logger.Info("consumer registered", log.Str("subscriber", string(id)))

	var (
		emptyPolls int
		retries    int
	)
	for {
		if err := ctx.Err(); err != nil {
			return c.abort(ctx, err)
		}

		c.set(StatePolling)
		recs, err := c.broker.Poll(id, c.opts.Topic, c.opts.BatchSize)
		if err != nil {
			return c.abort(ctx, err)
		}

		if len(recs) == 0 {
			emptyPolls++
			if emptyPolls >= c.opts.EmptyPollLimit {
				return c.exhaust(ctx)
			}
			c.set(StateBackoff)
			c.broker.WaitForPublish(ctx, c.opts.Topic, c.opts.Backoff)
			continue
		}
		emptyPolls = 0

		c.set(StateDelivering)
		for _, rec := range recs {
			o, derr := c.opts.Codec.Decode(rec.Payload)
			if derr == nil {
				c.delivered.Add(1)
				c.handler.Handle(ctx, Decoded{Order: o.WithCreatedAt(rec.Timestamp), Record: rec})
				continue
			}

			retries++
			if c.opts.MaxRetries >= 0 && retries > c.opts.MaxRetries {
				return c.abort(ctx, &DecodeError{Key: rec.Key, Attempts: retries, Err: derr})
			}
			c.set(StateRewindRetry)
			c.logger.Warn("decode failed, rewinding batch",
				log.Str("key", rec.Key),
				log.Int("batch", len(recs)),
				log.Int("attempt", retries),
				log.Err(derr),
			)
			if err := c.broker.Rewind(id, len(recs)); err != nil {
				return c.abort(ctx, err)
			}
			break
		}
	}
}

func (c *Consumer) exhaust(ctx context.Context) (State, error) {
	c.set(StateExhausted)
	c.logger.Info("stream exhausted", log.Int64("delivered", c.delivered.Load()))
	c.opts.Reporter.Report(events.Event{Kind: events.KindExhausted, Consumer: c.opts.Name})
	c.handler.Handle(ctx, Exhausted{Consumer: c.opts.Name})
	return StateExhausted, nil
}

func (c *Consumer) abort(ctx context.Context, err error) (State, error) {
	c.set(StateAborted)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.logger.Info("consumer cancelled")
	} else {
		c.logger.Error("consumer aborted", log.Err(err))
		c.opts.Reporter.Report(events.Event{Kind: events.KindAborted, Consumer: c.opts.Name, Reason: err.Error()})
	}
	c.handler.Handle(ctx, Failed{Consumer: c.opts.Name, Err: err})
	return StateAborted, err
}
