package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func publishN(t *testing.T, b *Broker, topic string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := b.Publish(topic, Record{Key: fmt.Sprint(i), Payload: []byte(fmt.Sprint(i))}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
}

func TestPublishMissingTopic(t *testing.T) {
	b := NewBroker()
	_, err := b.Publish("nope", Record{Key: "k"})
	var pe *PublishError
	if !errors.As(err, &pe) || !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("want PublishError/ErrTopicNotFound, got %v", err)
	}
}

func TestRegisterMissingTopic(t *testing.T) {
	b := NewBroker()
	_, err := b.RegisterSubscriber("nope")
	var se *SubscriberError
	if !errors.As(err, &se) || !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("want SubscriberError, got %v", err)
	}
}

func TestPollUnregistered(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("a")
	b.CreateTopic("b")
	id, err := b.RegisterSubscriber("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Poll("ghost", "a", 1); !errors.Is(err, ErrSubscriberNotRegistered) {
		t.Fatalf("ghost poll: %v", err)
	}
	if _, err := b.Poll(id, "b", 1); !errors.Is(err, ErrSubscriberNotRegistered) {
		t.Fatalf("poll on other topic: %v", err)
	}
	if err := b.Rewind("ghost", 1); !errors.Is(err, ErrSubscriberNotRegistered) {
		t.Fatalf("ghost rewind: %v", err)
	}
}

func TestCreateTopicIdempotent(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("orders")
	publishN(t, b, "orders", 3)
	b.CreateTopic("orders")
	if n := b.Len("orders"); n != 3 {
		t.Fatalf("len=%d after re-create", n)
	}
}

func TestEmptyPoll(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("orders")
	id, _ := b.RegisterSubscriber("orders")
	recs, err := b.Poll(id, "orders", 10)
	if err != nil || len(recs) != 0 {
		t.Fatalf("recs=%d err=%v", len(recs), err)
	}
	if off, _ := b.Offset(id); off != 0 {
		t.Fatalf("offset=%d", off)
	}
}

func TestPollBatchesInOrder(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("orders")
	publishN(t, b, "orders", 25)
	id, _ := b.RegisterSubscriber("orders")
	var got []string
	for _, want := range []int{10, 10, 5, 0} {
		recs, err := b.Poll(id, "orders", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != want {
			t.Fatalf("batch=%d want %d", len(recs), want)
		}
		for _, r := range recs {
			got = append(got, r.Key)
		}
	}
	for i, k := range got {
		if k != fmt.Sprint(i) {
			t.Fatalf("got[%d]=%s", i, k)
		}
	}
}

func TestRewindReplaysAndClamps(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("orders")
	publishN(t, b, "orders", 6)
	id, _ := b.RegisterSubscriber("orders")
	first, _ := b.Poll(id, "orders", 4)
	if err := b.Rewind(id, 3); err != nil {
		t.Fatal(err)
	}
	again, _ := b.Poll(id, "orders", 3)
	for i := range again {
		if again[i].Key != first[i+1].Key {
			t.Fatalf("replay mismatch at %d: %s vs %s", i, again[i].Key, first[i+1].Key)
		}
	}
	if err := b.Rewind(id, 100); err != nil {
		t.Fatal(err)
	}
	if off, _ := b.Offset(id); off != 0 {
		t.Fatalf("offset=%d want clamp to 0", off)
	}
	if err := b.Rewind(id, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("rewind 0: %v", err)
	}
	if _, err := b.Poll(id, "orders", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("poll 0: %v", err)
	}
}

func TestFanOutIndependentCadence(t *testing.T) {
	b := NewBroker()
	pub := NewPublisher(b, "orders")
	s1, err := NewSubscriber(b, "orders")
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := NewSubscriber(b, "orders")
	if s1.ID() == s2.ID() {
		t.Fatalf("ids must be distinct")
	}
	for i := 0; i < 12; i++ {
		if _, err := pub.Publish(fmt.Sprint(i), nil); err != nil {
			t.Fatal(err)
		}
	}
	var a, c int
	for {
		r, _ := s1.Poll(1)
		if len(r) == 0 {
			break
		}
		a++
	}
	r, _ := s2.Poll(100)
	c = len(r)
	if a != 12 || c != 12 {
		t.Fatalf("a=%d c=%d", a, c)
	}
}

func TestConcurrentPublishAndPoll(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("orders")
	const writers, each = 4, 250
	ids := make([]SubscriberID, 3)
	for i := range ids {
		ids[i], _ = b.RegisterSubscriber("orders")
	}
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, _ = b.Publish("orders", Record{Key: fmt.Sprintf("%d-%d", w, i)})
			}
		}(w)
	}
	counts := make([]int, len(ids))
	var rg sync.WaitGroup
	for i, id := range ids {
		rg.Add(1)
		go func(i int, id SubscriberID) {
			defer rg.Done()
			seen := map[string]bool{}
			for counts[i] < writers*each {
				recs, err := b.Poll(id, "orders", 7)
				if err != nil {
					t.Errorf("poll: %v", err)
					return
				}
				for _, r := range recs {
					if seen[r.Key] {
						t.Errorf("duplicate %s", r.Key)
					}
					seen[r.Key] = true
				}
				counts[i] += len(recs)
			}
		}(i, id)
	}
	wg.Wait()
	rg.Wait()
	for i, c := range counts {
		if c != writers*each {
			t.Fatalf("subscriber %d saw %d", i, c)
		}
	}
}

func TestWaitForPublish(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("orders")
	if b.WaitForPublish(context.Background(), "orders", 10*time.Millisecond) {
		t.Fatalf("expected timeout")
	}
	done := make(chan bool, 1)
	go func() { done <- b.WaitForPublish(context.Background(), "orders", time.Second) }()
	time.Sleep(20 * time.Millisecond)
	publishN(t, b, "orders", 1)
	if !<-done {
		t.Fatalf("expected wake on publish")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if b.WaitForPublish(ctx, "orders", 0) {
		t.Fatalf("cancelled ctx should not report publish")
	}
}

func TestStats(t *testing.T) {
	b := NewBroker()
	b.CreateTopic("orders")
	publishN(t, b, "orders", 5)
	id, _ := b.RegisterSubscriber("orders")
	_, _ = b.Poll(id, "orders", 2)
	st := b.Stats()
	if len(st) != 1 || st[0].Length != 5 || len(st[0].Subscribers) != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if s := st[0].Subscribers[0]; s.Offset != 2 || s.Lag != 3 {
		t.Fatalf("sub stats=%+v", s)
	}
}

// Polling without rewinds yields the published sequence exactly.
func TestPropertyNoGapsNoDuplicates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewBroker()
		b.CreateTopic("p")
		id, _ := b.RegisterSubscriber("p")
		var published, got []string
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "publish") {
				k := fmt.Sprint(len(published))
				_, _ = b.Publish("p", Record{Key: k})
				published = append(published, k)
			} else {
				max := rapid.IntRange(1, 8).Draw(t, "max")
				recs, err := b.Poll(id, "p", max)
				if err != nil {
					t.Fatal(err)
				}
				if len(recs) > max {
					t.Fatalf("returned %d > max %d", len(recs), max)
				}
				for _, r := range recs {
					got = append(got, r.Key)
				}
			}
		}
		rest, _ := b.Poll(id, "p", len(published)+1)
		for _, r := range rest {
			got = append(got, r.Key)
		}
		if len(got) != len(published) {
			t.Fatalf("got %d want %d", len(got), len(published))
		}
		for i := range got {
			if got[i] != published[i] {
				t.Fatalf("at %d got %s want %s", i, got[i], published[i])
			}
		}
	})
}

// Rewind(count) then Poll replays exactly count previously seen records and
// the offset stays within [0, len].
func TestPropertyRewindReplay(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewBroker()
		b.CreateTopic("p")
		n := rapid.IntRange(1, 40).Draw(t, "n")
		for i := 0; i < n; i++ {
			_, _ = b.Publish("p", Record{Key: fmt.Sprint(i)})
		}
		id, _ := b.RegisterSubscriber("p")
		read := rapid.IntRange(0, n).Draw(t, "read")
		if read > 0 {
			_, _ = b.Poll(id, "p", read)
		}
		count := rapid.IntRange(1, n+5).Draw(t, "count")
		_ = b.Rewind(id, count)
		off, _ := b.Offset(id)
		want := read - count
		if want < 0 {
			want = 0
		}
		if off != want {
			t.Fatalf("offset=%d want %d", off, want)
		}
		replayed := read - want
		if replayed == 0 {
			return
		}
		recs, _ := b.Poll(id, "p", replayed)
		for i, r := range recs {
			if r.Key != fmt.Sprint(want+i) {
				t.Fatalf("replay %d got %s", i, r.Key)
			}
		}
		if off, _ := b.Offset(id); off < 0 || off > n {
			t.Fatalf("offset out of range %d", off)
		}
	})
}
