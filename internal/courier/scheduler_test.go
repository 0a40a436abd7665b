package courier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishnit/pubsub/internal/order"
)

func TestSchedulerFiresInTimeOrder(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	s.Schedule(now.Add(30*time.Millisecond), order.Order{ID: "c"})
	s.Schedule(now.Add(10*time.Millisecond), order.Order{ID: "a"})
	s.Schedule(now.Add(10*time.Millisecond), order.Order{ID: "b"})
	s.Schedule(now.Add(20*time.Millisecond), order.Order{ID: "x"})

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = s.Run(ctx, func(o order.Order) {
			mu.Lock()
			got = append(got, o.ID)
			mu.Unlock()
		})
	}()
	defer cancel()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, 2*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "x", "c"}, got)
	mu.Unlock()
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerWakesForEarlierTask(t *testing.T) {
	s := NewScheduler()
	s.Schedule(time.Now().Add(time.Hour), order.Order{ID: "late"})
	fired := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, func(o order.Order) { fired <- o.ID }) }()

	time.Sleep(5 * time.Millisecond)
	s.Schedule(time.Now().Add(5*time.Millisecond), order.Order{ID: "soon"})
	select {
	case id := <-fired:
		assert.Equal(t, "soon", id)
	case <-time.After(time.Second):
		t.Fatal("earlier task not fired")
	}
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Clear())
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, func(order.Order) {}) }()
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}
}
