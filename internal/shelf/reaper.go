package shelf

import (
	"context"
	"sync"
	"time"

	"github.com/mishnit/pubsub/pkg/log"
)

// DefaultReapInterval is the sweep interval used when none is configured.
const DefaultReapInterval = 500 * time.Millisecond

// Reaper periodically removes expired orders from a Shelf.
type Reaper struct {
	shelf    *Shelf
	interval time.Duration
	logger   log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	started bool
	sweeps  int
	reaped int
}

// NewReaper creates a reaper for s. A zero interval uses DefaultReapInterval.
func NewReaper(s *Shelf, interval time.Duration, logger log.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		shelf:    s,
		interval: interval,
		logger:   logger.WithComponent("reaper"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins sweeping in the background. It is a no-op once started or
// after Stop.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.ctx.Err() != nil {
		return
	}
	r.started = true
	r.wg.Add(1)
	go r.run()
}

// Stop cancels the reaper and waits for any sweep in progress to observe the
// cancellation. A sweep stops between orders. Done is closed on return even
// if the reaper was never started.
func (r *Reaper) Stop() {
	r.cancel()
	r.wg.Wait()
	r.closeDone()
}

func (r *Reaper) closeDone() { r.doneOnce.Do(func() { close(r.done) }) }

// Done is closed once the reaper goroutine has exited.
func (r *Reaper) Done() <-chan struct{} { return r.done }

// Stats returns how many sweeps ran and how many orders they removed.
func (r *Reaper) Stats() (sweeps, reaped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweeps, r.reaped
}

func (r *Reaper) run() {
	defer r.wg.Done()
	defer r.closeDone()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", log.Dur("interval", r.interval))
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	removed, err := r.shelf.ReapContext(r.ctx)
	r.mu.Lock()
	r.sweeps++
	r.reaped += len(removed)
	r.mu.Unlock()
	if len(removed) > 0 {
		r.logger.Debug("sweep removed expired orders", log.Int("count", len(removed)))
	}
	if err != nil {
		r.logger.Debug("sweep interrupted", log.Err(err))
	}
}
