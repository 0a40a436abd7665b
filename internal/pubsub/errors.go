package pubsub

import (
	"errors"
	"fmt"
)

var (
	// ErrTopicNotFound is matched by PublishError and SubscriberError when the
	// named topic was never created.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrSubscriberNotRegistered is matched by SubscriberError when the id is
	// unknown or bound to another topic.
	ErrSubscriberNotRegistered = errors.New("subscriber not registered")
	// ErrInvalidArgument is returned for non-positive batch or rewind counts.
	ErrInvalidArgument = errors.New("invalid argument")
)

// PublishError reports a publish against a missing topic. It is not
// retryable: the caller must create the topic first.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// SubscriberError reports a registration, poll or rewind that cannot be
// served. It is fatal to the consuming loop.
type SubscriberError struct {
	Topic      string
	Subscriber SubscriberID
	Err        error
}

func (e *SubscriberError) Error() string {
	if e.Subscriber == "" {
		return fmt.Sprintf("subscribe to %q: %v", e.Topic, e.Err)
	}
	return fmt.Sprintf("subscriber %s on %q: %v", e.Subscriber, e.Topic, e.Err)
}

func (e *SubscriberError) Unwrap() error { return e.Err }
