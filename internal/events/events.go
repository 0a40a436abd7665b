// Package events defines the fulfillment events emitted by the pipeline and
// the Reporter sinks that consume them.
package events

import (
	"sync"
	"time"

	"github.com/mishnit/pubsub/pkg/log"
)

// Kind names a fulfillment event.
type Kind string

const (
	KindDispatched Kind = "dispatched"
	KindAdmitted   Kind = "admitted"
	KindMoved      Kind = "moved"
	KindDiscarded  Kind = "discarded"
	KindDelivered  Kind = "delivered"
	KindNotFound   Kind = "not_found"
	KindExhausted  Kind = "exhausted"
	KindAborted    Kind = "aborted"
)

// Discard reasons.
const (
	ReasonExpiredOnArrival   = "expired_on_arrival"
	ReasonOverflowEvicted    = "overflow_evicted"
	ReasonInvalidTemperature = "invalid_temperature"
	ReasonDuplicate          = "duplicate"
	ReasonExpired            = "expired"
	ReasonExpiredAtPickup    = "expired_at_pickup"
	ReasonNoCapacity         = "no_capacity"
)

// Event is one observable outcome. Fields that do not apply are empty.
type Event struct {
	Kind     Kind      `json:"kind"`
	OrderID  string    `json:"order_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Tier     string    `json:"tier,omitempty"`
	From     string    `json:"from,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Value    float64   `json:"value"`
	Consumer string    `json:"consumer,omitempty"`
	Time     time.Time `json:"ts"`
}

// Reporter receives events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report implements Reporter.
func (f ReporterFunc) Report(e Event) { f(e) }

// Nop discards every event.
var Nop Reporter = ReporterFunc(func(Event) {})

// Multi fans an event out to every reporter in order.
func Multi(rs ...Reporter) Reporter {
	var out multi
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multi []Reporter

func (m multi) Report(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, r := range m {
		r.Report(e)
	}
}

// LogReporter writes each event as one log line.
type LogReporter struct {
	logger log.Logger
}

// NewLogReporter returns a Reporter writing to l.
func NewLogReporter(l log.Logger) *LogReporter {
	return &LogReporter{logger: l.WithComponent("events")}
}

// Report implements Reporter. Discards and not-found outcomes log at warn.
func (r *LogReporter) Report(e Event) {
	fields := []log.Field{log.Str("kind", string(e.Kind))}
	if e.OrderID != "" {
		fields = append(fields, log.Str("order_id", e.OrderID), log.Str("name", e.Name))
	}
	if e.Tier != "" {
		fields = append(fields, log.Str("tier", e.Tier))
	}
	if e.From != "" {
		fields = append(fields, log.Str("from", e.From))
	}
	if e.Reason != "" {
		fields = append(fields, log.Str("reason", e.Reason))
	}
	if e.Consumer != "" {
		fields = append(fields, log.Str("consumer", e.Consumer))
	}
	switch e.Kind {
	case KindDiscarded, KindNotFound, KindAborted:
		r.logger.Warn("order event", fields...)
	case KindDelivered, KindAdmitted, KindMoved:
		r.logger.Info("order event", append(fields, log.Float64("value", e.Value))...)
	default:
		r.logger.Info("order event", fields...)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report implements Reporter.
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events have kind k.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Filter returns the recorded events of kind k.
func (r *Recorder) Filter(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
