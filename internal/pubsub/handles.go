package pubsub

import (
	"context"
	"time"
)

// Publisher publishes to one topic. The topic is created on construction so
// publishes through it cannot fail with ErrTopicNotFound.
type Publisher struct {
	b     *Broker
	topic string
}

// NewPublisher creates topic if needed and returns a Publisher bound to it.
func NewPublisher(b *Broker, topic string) *Publisher {
	b.CreateTopic(topic)
	return &Publisher{b: b, topic: topic}
}

// Topic returns the bound topic.
func (p *Publisher) Topic() string { return p.topic }

// Publish appends one record keyed by key.
func (p *Publisher) Publish(key string, payload []byte) (int, error) {
	return p.b.Publish(p.topic, Record{Key: key, Payload: payload})
}

// Subscriber is a single registration on one topic.
type Subscriber struct {
	b     *Broker
	topic string
	id    SubscriberID
}

// NewSubscriber registers against topic.
func NewSubscriber(b *Broker, topic string) (*Subscriber, error) {
	id, err := b.RegisterSubscriber(topic)
	if err != nil {
		return nil, err
	}
	return &Subscriber{b: b, topic: topic, id: id}, nil
}

// ID returns the registration id.
func (s *Subscriber) ID() SubscriberID { return s.id }

// Topic returns the bound topic.
func (s *Subscriber) Topic() string { return s.topic }

// Poll returns up to max records.
func (s *Subscriber) Poll(max int) ([]Record, error) {
	return s.b.Poll(s.id, s.topic, max)
}

// Rewind moves the offset back by count.
func (s *Subscriber) Rewind(count int) error {
	return s.b.Rewind(s.id, count)
}

// Offset returns the current offset.
func (s *Subscriber) Offset() int {
	off, _ := s.b.Offset(s.id)
	return off
}

// Wait blocks until the next publish on the topic, the timeout or ctx.
func (s *Subscriber) Wait(ctx context.Context, timeout time.Duration) bool {
	return s.b.WaitForPublish(ctx, s.topic, timeout)
}
