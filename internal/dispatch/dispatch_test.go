package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishnit/pubsub/internal/events"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/internal/pubsub"
)

func someOrders(n int) []order.Order {
	out := make([]order.Order, n)
	for i := range out {
		out[i] = order.Order{ID: fmt.Sprint(i), Name: "o", Temp: order.Cold, ShelfLife: 10, DecayRate: 0.1}
	}
	return out
}

type tickRecorder struct {
	mu    sync.Mutex
	times []time.Time
	fail  map[string]bool
}

func (r *tickRecorder) Publish(key string, _ []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[key] {
		return 0, errors.New("boom")
	}
	r.times = append(r.times, time.Now())
	return len(r.times) - 1, nil
}

func TestRunPublishesAllThenReturns(t *testing.T) {
	b := pubsub.NewBroker()
	pub := pubsub.NewPublisher(b, "orders")
	rec := &events.Recorder{}
	d, err := New(pub, someOrders(7), Options{Rate: 3, Interval: 5 * time.Millisecond, Reporter: rec})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 7, b.Len("orders"))
	assert.EqualValues(t, 7, d.Dispatched())
	assert.Equal(t, 0, d.Remaining())
	assert.Equal(t, 7, rec.Count(events.KindDispatched))
}

func TestRunRespectsRatePerTick(t *testing.T) {
	p := &tickRecorder{}
	d, err := New(p, someOrders(6), Options{Rate: 2, Interval: 40 * time.Millisecond})
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, d.Run(context.Background()))
	require.Len(t, p.times, 6)
	// first batch goes out immediately, the last one two ticks later
	assert.Less(t, p.times[1].Sub(start), 30*time.Millisecond)
	assert.GreaterOrEqual(t, p.times[5].Sub(start), 70*time.Millisecond)
}

func TestPublishFailureIsCountedAndSkipped(t *testing.T) {
	p := &tickRecorder{fail: map[string]bool{"1": true}}
	d, err := New(p, someOrders(3), Options{Rate: 5, Interval: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))
	assert.EqualValues(t, 2, d.Dispatched())
	assert.EqualValues(t, 1, d.Failed())
}

func TestRunCancelled(t *testing.T) {
	p := &tickRecorder{}
	d, err := New(p, someOrders(100), Options{Rate: 1, Interval: time.Hour})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, 99, d.Remaining())
}

func TestNewRejectsNonPositiveRate(t *testing.T) {
	_, err := New(&tickRecorder{}, nil, Options{Rate: 0})
	assert.Error(t, err)
}

func TestEmptyListReturnsImmediately(t *testing.T) {
	d, err := New(&tickRecorder{}, nil, Options{Rate: 2, Interval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))
}
