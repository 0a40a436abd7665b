package courier

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishnit/pubsub/internal/decay"
	"github.com/mishnit/pubsub/internal/events"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/internal/shelf"
)

func fastCourier(s Retriever, rec *events.Recorder) *Courier {
	return New(s, Options{
		MinDelay: time.Millisecond,
		MaxDelay: 5 * time.Millisecond,
		Rand:     rand.New(rand.NewSource(7)),
		Reporter: rec,
	})
}

func TestCourierOutcomes(t *testing.T) {
	rec := &events.Recorder{}
	sh := shelf.New(shelf.DefaultCapacities())
	now := time.Now()
	fresh := order.Order{ID: "fresh", Temp: order.Hot, ShelfLife: 300, DecayRate: 0.1, CreatedAt: now}
	stale := order.Order{ID: "stale", Temp: order.Cold, ShelfLife: 1, DecayRate: 0, CreatedAt: now}
	sh.Admit(fresh)
	sh.Admit(stale)

	c := fastCourier(sh, rec)
	time.Sleep(1100 * time.Millisecond) // let stale run out of shelf life
	c.Dispatch(fresh)
	c.Dispatch(stale)
	c.Dispatch(order.Order{ID: "ghost", Temp: order.Frozen})
	c.CloseInput()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, map[Outcome]int{OutcomeDelivered: 1, OutcomeDiscarded: 1, OutcomeNotFound: 1}, c.Outcomes())
	delivered := rec.Filter(events.KindDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, "fresh", delivered[0].OrderID)
	assert.Equal(t, string(decay.TierHot), delivered[0].Tier)
	discarded := rec.Filter(events.KindDiscarded)
	require.Len(t, discarded, 1)
	assert.Equal(t, events.ReasonExpiredAtPickup, discarded[0].Reason)
	assert.Equal(t, 1, rec.Count(events.KindNotFound))
	assert.Equal(t, 0, sh.Len())
}

func TestCourierIgnoresRedeliveredOrder(t *testing.T) {
	rec := &events.Recorder{}
	sh := shelf.New(shelf.DefaultCapacities())
	o := order.Order{ID: "dup", Temp: order.Hot, ShelfLife: 300, DecayRate: 0.1, CreatedAt: time.Now()}
	sh.Admit(o)

	c := fastCourier(sh, rec)
	require.True(t, c.Dispatch(o))
	assert.False(t, c.Dispatch(o), "a pending order is scheduled once")
	assert.Equal(t, 1, c.Pending())
	c.CloseInput()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	assert.Equal(t, map[Outcome]int{OutcomeDelivered: 1}, c.Outcomes())
	assert.Equal(t, 0, rec.Count(events.KindNotFound))
}

func TestCourierDoneOnlyAfterInputClosed(t *testing.T) {
	c := fastCourier(shelf.New(shelf.DefaultCapacities()), &events.Recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	c.Dispatch(order.Order{ID: "a", Temp: order.Hot})
	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)
	select {
	case <-c.Done():
		t.Fatal("done before input closed")
	default:
	}
	c.CloseInput()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	assert.NoError(t, <-errc)
}

func TestCourierAbandonsOnCancel(t *testing.T) {
	c := New(shelf.New(shelf.DefaultCapacities()), Options{MinDelay: time.Hour, MaxDelay: time.Hour})
	c.Dispatch(order.Order{ID: "a", Temp: order.Hot})
	c.CloseInput()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, c.sched.Len())
}

func TestDelayWithinBounds(t *testing.T) {
	c := New(nil, Options{Rand: rand.New(rand.NewSource(3))})
	seen := map[time.Duration]bool{}
	for i := 0; i < 500; i++ {
		d := c.delay()
		require.GreaterOrEqual(t, d, DefaultMinDelay)
		require.LessOrEqual(t, d, DefaultMaxDelay)
		require.Zero(t, d%time.Second)
		seen[d] = true
	}
	assert.Len(t, seen, 5)
}
