package runtime

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/mishnit/pubsub/internal/config"
	"github.com/mishnit/pubsub/internal/consumer"
	"github.com/mishnit/pubsub/internal/courier"
	"github.com/mishnit/pubsub/internal/dispatch"
	"github.com/mishnit/pubsub/internal/events"
	"github.com/mishnit/pubsub/internal/journal"
	"github.com/mishnit/pubsub/internal/metrics"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/internal/pubsub"
	"github.com/mishnit/pubsub/internal/shelf"
	pebblestore "github.com/mishnit/pubsub/internal/storage/pebble"
	"github.com/mishnit/pubsub/pkg/log"
)

// Consumer names.
const (
	StorageConsumer  = "storage"
	DeliveryConsumer = "delivery"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Orders []order.Order
	Logger log.Logger
	// Reporter receives every event in addition to the built-in sinks.
	Reporter events.Reporter
	// Seed fixes the random sources for eviction and courier delay. Zero
	// seeds from the clock.
	Seed int64
}

// Runtime owns every component of one run.
type Runtime struct {
	cfg    cfgpkg.Config
	logger log.Logger
	orders int

	db      *pebblestore.DB
	journal *journal.Journal
	metrics *metrics.Metrics
	tally   *tally

	broker     *pubsub.Broker
	shelf      *shelf.Shelf
	reaper     *shelf.Reaper
	courier    *courier.Courier
	dispatcher *dispatch.Dispatcher
	storage    *consumer.Consumer
	delivery   *consumer.Consumer

	running atomic.Bool
	ran     atomic.Bool
}

// Open validates the configuration, opens the journal store and builds the
// components. It starts nothing.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := metrics.New()
	db, err := pebblestore.Open(pebblestore.Options{
		Dir:      cfg.Journal.Dir,
		InMemory: cfg.Journal.Dir == "",
		Sync:     syncMode(cfg.Journal.Sync),
		Observer: m,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal store: %w", err)
	}
	j, err := journal.Open(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.Journal.Dir != "" && cfg.Journal.Retention > 0 {
		if _, _, err := j.TrimOlderThan(context.Background(), time.Now().Add(-cfg.Journal.Retention.D()), 0); err != nil {
			logger.Warn("journal retention trim failed", log.Err(err))
		}
	}

	rt := &Runtime{cfg: cfg, orders: len(opts.Orders), logger: logger.WithComponent("runtime"), db: db, journal: j, metrics: m, tally: newTally()}
	reporter := events.Multi(events.NewLogReporter(logger), m, j, rt.tally, opts.Reporter)

	rt.broker = pubsub.NewBroker(pubsub.WithLogger(logger))
	pub := pubsub.NewPublisher(rt.broker, cfg.Topic)

	caps := shelf.Capacities{Hot: cfg.Shelf.Hot, Cold: cfg.Shelf.Cold, Frozen: cfg.Shelf.Frozen, Overflow: cfg.Shelf.Overflow}
	rt.shelf = shelf.New(caps,
		shelf.WithRand(rand.New(rand.NewSource(seed))),
		shelf.WithReporter(reporter),
		shelf.WithLogger(logger),
	)
	rt.reaper = shelf.NewReaper(rt.shelf, cfg.Shelf.ReaperInterval.D(), logger)
	rt.courier = courier.New(rt.shelf, courier.Options{
		MinDelay: cfg.Courier.MinDelay.D(),
		MaxDelay: cfg.Courier.MaxDelay.D(),
		Rand:     rand.New(rand.NewSource(seed + 1)),
		Reporter: reporter,
		Logger:   logger,
	})

	rt.dispatcher, err = dispatch.New(pub, opts.Orders, dispatch.Options{
		Rate:     cfg.Dispatch.RatePerSec,
		Interval: cfg.Dispatch.Interval.D(),
		Logger:   logger,
		Reporter: reporter,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	rt.storage = consumer.New(rt.broker, consumerOptions(cfg, StorageConsumer, logger, reporter), consumer.HandlerFunc(rt.admit))
	rt.delivery = consumer.New(rt.broker, consumerOptions(cfg, DeliveryConsumer, logger, reporter), consumer.HandlerFunc(rt.deliver))

	m.WatchShelf(rt.shelf, caps.Of)
	m.WatchTopic(rt.broker, cfg.Topic)
	return rt, nil
}

// consumerOptions maps the consumer section onto consumer.Options. A
// maxDecodeRetries of zero removes the retry limit.
func consumerOptions(cfg cfgpkg.Config, name string, logger log.Logger, reporter events.Reporter) consumer.Options {
	retries := cfg.Consumer.MaxDecodeRetries
	if retries == 0 {
		retries = -1
	}
	return consumer.Options{
		Name:           name,
		Topic:          cfg.Topic,
		BatchSize:      cfg.Consumer.BatchSize,
		Backoff:        cfg.Consumer.Backoff.D(),
		EmptyPollLimit: cfg.Consumer.EmptyPollLimit,
		MaxRetries:     retries,
		Logger:         logger,
		Reporter:       reporter,
	}
}

func syncMode(s string) pebblestore.SyncMode {
	switch s {
	case "always":
		return pebblestore.SyncAlways
	case "never":
		return pebblestore.SyncNever
	}
	return pebblestore.SyncGrouped
}

func (r *Runtime) admit(_ context.Context, ev consumer.Event) {
	if d, ok := ev.(consumer.Decoded); ok {
		r.shelf.Admit(d.Order)
	}
}

func (r *Runtime) deliver(_ context.Context, ev consumer.Event) {
	if d, ok := ev.(consumer.Decoded); ok {
		r.courier.Dispatch(d.Order)
	}
}

// Summary is the outcome of a run.
type Summary struct {
	Orders     int            `json:"orders"`
	Dispatched int64          `json:"dispatched"`
	Events     map[string]int `json:"events"`
	Reasons    map[string]int `json:"discardReasons"`
	StorageEnd string         `json:"storageState"`
	DeliverEnd string         `json:"deliveryState"`
	Abandoned  int            `json:"abandonedPickups"`
	Remaining  int            `json:"remainingOnShelf"`
	Elapsed    time.Duration  `json:"elapsed"`
}

// Run starts every worker and blocks until the courier has handled every
// order the delivery consumer saw, or ctx is cancelled. Consumer aborts are
// logged and reported in the Summary; they do not fail the run.
func (r *Runtime) Run(ctx context.Context) (Summary, error) {
	if !r.ran.CompareAndSwap(false, true) {
		return Summary{}, errors.New("runtime already ran")
	}
	start := time.Now()
	r.running.Store(true)
	defer r.running.Store(false)

	r.logger.Info("simulation starting",
		log.Str("topic", r.cfg.Topic),
		log.Int("orders", r.dispatcher.Remaining()),
		log.Int("rate", r.cfg.Dispatch.RatePerSec),
	)

	r.reaper.Start()
	defer r.reaper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	ends := map[string]consumer.State{}
	runConsumer := func(c *consumer.Consumer, after func()) func() error {
		return func() error {
			state, err := c.Run(gctx)
			mu.Lock()
			ends[c.Name()] = state
			mu.Unlock()
			if after != nil {
				after()
			}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		}
	}

	g.Go(func() error { return r.courier.Run(gctx) })
	g.Go(runConsumer(r.storage, nil))
	g.Go(runConsumer(r.delivery, r.courier.CloseInput))
	g.Go(func() error { return r.dispatcher.Run(gctx) })

	err := g.Wait()
	mu.Lock()
	defer mu.Unlock()
	sum := Summary{
		Orders:     r.orders,
		Dispatched: r.dispatcher.Dispatched(),
		Events:     r.tally.kinds(),
		Reasons:    r.tally.reasons(),
		StorageEnd: ends[StorageConsumer].String(),
		DeliverEnd: ends[DeliveryConsumer].String(),
		Abandoned:  r.courier.Pending(),
		Remaining:  r.shelf.Len(),
		Elapsed:    time.Since(start),
	}
	r.logger.Info("simulation finished",
		log.Int64("dispatched", sum.Dispatched),
		log.Int("delivered", sum.Events[string(events.KindDelivered)]),
		log.Int("discarded", sum.Events[string(events.KindDiscarded)]),
		log.Int("not_found", sum.Events[string(events.KindNotFound)]),
		log.Dur("elapsed", sum.Elapsed),
	)
	return sum, err
}

// Close releases the journal store.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth verifies the journal store answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("journal store not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Running reports whether Run is in progress.
func (r *Runtime) Running() bool { return r.running.Load() }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.cfg }

// Broker exposes the broker for status endpoints.
func (r *Runtime) Broker() *pubsub.Broker { return r.broker }

// Shelf exposes the storage engine for status endpoints.
func (r *Runtime) Shelf() *shelf.Shelf { return r.shelf }

// Metrics exposes the metrics registry.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Journal exposes the audit journal.
func (r *Runtime) Journal() *journal.Journal { return r.journal }

// tally counts events for the run summary.
type tally struct {
	mu      sync.Mutex
	byKind  map[string]int
	byCause map[string]int
}

func newTally() *tally {
	return &tally{byKind: map[string]int{}, byCause: map[string]int{}}
}

func (t *tally) Report(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKind[string(e.Kind)]++
	if e.Kind == events.KindDiscarded {
		t.byCause[e.Reason]++
	}
}

func (t *tally) kinds() map[string]int   { return t.copy(t.byKind) }
func (t *tally) reasons() map[string]int { return t.copy(t.byCause) }

func (t *tally) copy(m map[string]int) map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ShelfSnapshot returns the current shelf contents.
func (r *Runtime) ShelfSnapshot() shelf.Snapshot { return r.shelf.Snapshot() }

// TopicStats returns broker topic and subscriber positions.
func (r *Runtime) TopicStats() []pubsub.TopicStats { return r.broker.Stats() }

// MetricsHandler serves the Prometheus registry.
func (r *Runtime) MetricsHandler() http.Handler { return r.metrics.Handler() }

// Events reads the audit journal.
func (r *Runtime) Events(opts journal.ReadOptions) ([]journal.Entry, uint64, error) {
	return r.journal.Read(opts)
}
