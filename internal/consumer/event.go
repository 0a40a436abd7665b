package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/internal/pubsub"
)

// Event is delivered to a Handler. The set of variants is closed: Decoded,
// Exhausted and Failed.
type Event interface {
	isEvent()
}

// Decoded carries one successfully decoded order.
type Decoded struct {
	Order  order.Order
	Record pubsub.Record
}

// Exhausted signals that the stream produced no records for the configured
// number of consecutive polls.
type Exhausted struct {
	Consumer string
}

// Failed signals that the loop aborted.
type Failed struct {
	Consumer string
	Err      error
}

func (Decoded) isEvent()   {}
func (Exhausted) isEvent() {}
func (Failed) isEvent()    {}

// Handler receives consumer events. Handle is called from the consumer
// goroutine, one event at a time.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("decode failed")

// DecodeError reports a record that could not be decoded after the retry
// budget was spent.
type DecodeError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record %q after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeError) Unwrap() error { return e.Err }
