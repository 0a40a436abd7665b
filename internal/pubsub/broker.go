package pubsub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mishnit/pubsub/pkg/log"
)

// Record is one log entry: a routing key plus an opaque payload. Timestamp
// is stamped on publish when left zero.
type Record struct {
	Key       string
	Payload   []byte
	Timestamp time.Time
}

// SubscriberID identifies one registration. IDs are unique across topics.
type SubscriberID string

type topicLog struct {
	mu       sync.RWMutex
	records  []Record
	notifyCh chan struct{}
}

func newTopicLog() *topicLog {
	return &topicLog{notifyCh: make(chan struct{})}
}

func (t *topicLog) length() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

type subscriber struct {
	id    SubscriberID
	topic string

	mu     sync.Mutex
	offset int
}

// Broker holds topics and subscriber offsets. Construct one per run and pass
// it to the components that need it.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]*topicLog
	subs   map[SubscriberID]*subscriber

	now    func() time.Time
	logger log.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(l log.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// NewBroker returns an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		topics: make(map[string]*topicLog),
		subs:   make(map[SubscriberID]*subscriber),
		now:    time.Now,
		logger: log.NewNopLogger(),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.WithComponent("broker")
	return b
}

// CreateTopic creates name if it does not exist.
func (b *Broker) CreateTopic(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[name]; ok {
		return
	}
	b.topics[name] = newTopicLog()
	b.logger.Debug("topic created", log.Str("topic", name))
}

func (b *Broker) topic(name string) (*topicLog, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[name]
	return t, ok
}

// Publish appends rec to topic and returns its offset.
func (b *Broker) Publish(topic string, rec Record) (int, error) {
	t, ok := b.topic(topic)
	if !ok {
		return 0, &PublishError{Topic: topic, Err: ErrTopicNotFound}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = b.now()
	}
	t.mu.Lock()
	off := len(t.records)
	t.records = append(t.records, rec)
	// wake waiters
	close(t.notifyCh)
	t.notifyCh = make(chan struct{})
	t.mu.Unlock()
	return off, nil
}

// RegisterSubscriber binds a new subscriber to topic at offset 0.
func (b *Broker) RegisterSubscriber(topic string) (SubscriberID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[topic]; !ok {
		return "", &SubscriberError{Topic: topic, Err: ErrTopicNotFound}
	}
	id := SubscriberID(uuid.NewString())
	b.subs[id] = &subscriber{id: id, topic: topic}
	b.logger.Debug("subscriber registered", log.Str("topic", topic), log.Str("subscriber", string(id)))
	return id, nil
}

func (b *Broker) subscriber(id SubscriberID, topic string) (*subscriber, *topicLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[topic]
	if !ok {
		return nil, nil, &SubscriberError{Topic: topic, Subscriber: id, Err: ErrTopicNotFound}
	}
	s, ok := b.subs[id]
	if !ok || s.topic != topic {
		return nil, nil, &SubscriberError{Topic: topic, Subscriber: id, Err: ErrSubscriberNotRegistered}
	}
	return s, t, nil
}

// Poll returns up to max records starting at the subscriber's offset and
// advances the offset by the number returned. At the end of the log it
// returns an empty slice and a nil error.
func (b *Broker) Poll(id SubscriberID, topic string, max int) ([]Record, error) {
	if max <= 0 {
		return nil, fmt.Errorf("poll max %d: %w", max, ErrInvalidArgument)
	}
	s, t, err := b.subscriber(id, topic)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t.mu.RLock()
	end := s.offset + max
	if n := len(t.records); end > n {
		end = n
	}
	out := make([]Record, end-s.offset)
	copy(out, t.records[s.offset:end])
	t.mu.RUnlock()

	s.offset = end
	return out, nil
}

// Rewind moves the subscriber's offset back by count, clamped at 0.
func (b *Broker) Rewind(id SubscriberID, count int) error {
	if count <= 0 {
		return fmt.Errorf("rewind count %d: %w", count, ErrInvalidArgument)
	}
	b.mu.RLock()
	s, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return &SubscriberError{Subscriber: id, Err: ErrSubscriberNotRegistered}
	}
	s.mu.Lock()
	s.offset -= count
	if s.offset < 0 {
		s.offset = 0
	}
	s.mu.Unlock()
	return nil
}

// Len returns the number of records in topic, or 0 when it does not exist.
func (b *Broker) Len(topic string) int {
	t, ok := b.topic(topic)
	if !ok {
		return 0
	}
	return t.length()
}

// Offset returns the subscriber's current offset.
func (b *Broker) Offset(id SubscriberID) (int, bool) {
	b.mu.RLock()
	s, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, true
}

// WaitForPublish blocks until a record is appended to topic, the timeout
// elapses or ctx is done. It returns true only when woken by a publish.
// A non-positive timeout waits on ctx alone.
func (b *Broker) WaitForPublish(ctx context.Context, topic string, timeout time.Duration) bool {
	t, ok := b.topic(topic)
	if !ok {
		return false
	}
	t.mu.RLock()
	ch := t.notifyCh
	t.mu.RUnlock()

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}
	select {
	case <-ch:
		return true
	case <-timer:
		return false
	case <-ctx.Done():
		return false
	}
}

// Topics returns the topic names in sorted order.
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.topics))
	for n := range b.topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SubscriberStats describes one subscriber's position.
type SubscriberStats struct {
	ID     SubscriberID `json:"id"`
	Offset int          `json:"offset"`
	Lag    int          `json:"lag"`
}

// TopicStats describes one topic.
type TopicStats struct {
	Name        string            `json:"name"`
	Length      int               `json:"length"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

// Stats returns a point-in-time view of every topic and its subscribers.
func (b *Broker) Stats() []TopicStats {
	b.mu.RLock()
	byTopic := make(map[string][]*subscriber, len(b.topics))
	for _, s := range b.subs {
		byTopic[s.topic] = append(byTopic[s.topic], s)
	}
	logs := make(map[string]*topicLog, len(b.topics))
	for n, t := range b.topics {
		logs[n] = t
	}
	b.mu.RUnlock()

	out := make([]TopicStats, 0, len(logs))
	for name, t := range logs {
		ts := TopicStats{Name: name, Length: t.length(), Subscribers: []SubscriberStats{}}
		for _, s := range byTopic[name] {
			s.mu.Lock()
			off := s.offset
			s.mu.Unlock()
			ts.Subscribers = append(ts.Subscribers, SubscriberStats{ID: s.id, Offset: off, Lag: ts.Length - off})
		}
		sort.Slice(ts.Subscribers, func(i, j int) bool { return ts.Subscribers[i].ID < ts.Subscribers[j].ID })
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
