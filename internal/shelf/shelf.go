package shelf

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mishnit/pubsub/internal/decay"
	"github.com/mishnit/pubsub/internal/events"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/pkg/log"
)

// Capacities sets the slot count of each tier.
type Capacities struct {
	Hot      int `json:"hot" yaml:"hot"`
	Cold     int `json:"cold" yaml:"cold"`
	Frozen   int `json:"frozen" yaml:"frozen"`
	Overflow int `json:"overflow" yaml:"overflow"`
}

// DefaultCapacities returns 10 slots per home tier and 15 on overflow.
func DefaultCapacities() Capacities {
	return Capacities{Hot: 10, Cold: 10, Frozen: 10, Overflow: 15}
}

// Of returns the capacity configured for t.
func (c Capacities) Of(t decay.Tier) int {
	switch t {
	case decay.TierHot:
		return c.Hot
	case decay.TierCold:
		return c.Cold
	case decay.TierFrozen:
		return c.Frozen
	case decay.TierOverflow:
		return c.Overflow
	}
	return 0
}

// area is one tier's holdings. seq keeps insertion order so "first" is
// well defined when scanning for a migration candidate.
type area struct {
	capacity int
	items    map[string]order.Order
	seq      []string
}

func newArea(capacity int) *area {
	return &area{capacity: capacity, items: make(map[string]order.Order, capacity)}
}

func (a *area) free() bool { return len(a.items) < a.capacity }

func (a *area) put(o order.Order) {
	a.items[o.ID] = o
	a.seq = append(a.seq, o.ID)
}

func (a *area) remove(id string) (order.Order, bool) {
	o, ok := a.items[id]
	if !ok {
		return order.Order{}, false
	}
	delete(a.items, id)
	for i, s := range a.seq {
		if s == id {
			a.seq = append(a.seq[:i], a.seq[i+1:]...)
			break
		}
	}
	return o, true
}

// Placement is the outcome of one Admit call.
type Placement struct {
	// Tier is where the order now sits. Empty when it was discarded.
	Tier decay.Tier
	// Discarded is set with Reason when the incoming order was not stored.
	// A duplicate admit leaves Discarded false, sets Reason to
	// events.ReasonDuplicate and Tier to where the held copy sits.
	Discarded bool
	Reason    string
	// Moved names the order migrated from overflow to its home tier to make
	// room, if any.
	Moved string
	// Evicted names the overflow order dropped to make room, if any.
	Evicted string
}

// Stored reports whether the order was placed on a tier.
func (p Placement) Stored() bool { return p.Tier != "" && !p.Discarded }

// Discarded is an order removed from the shelf without delivery.
type Discarded struct {
	Order order.Order
	Tier  decay.Tier
	Value float64
}

// Shelf is the storage engine. The zero value is not usable; call New.
type Shelf struct {
	mu    sync.Mutex
	areas map[decay.Tier]*area

	clock    decay.Clock
	rng      *rand.Rand
	reporter events.Reporter
	logger   log.Logger
}

// Option configures a Shelf.
type Option func(*Shelf)

// WithClock overrides the time source used for expiry.
func WithClock(c decay.Clock) Option { return func(s *Shelf) { s.clock = c } }

// WithRand sets the source used to pick eviction victims.
func WithRand(r *rand.Rand) Option { return func(s *Shelf) { s.rng = r } }

// WithReporter sets the event sink.
func WithReporter(r events.Reporter) Option { return func(s *Shelf) { s.reporter = r } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(s *Shelf) { s.logger = l } }

// New returns an empty shelf with the given capacities.
func New(caps Capacities, opts ...Option) *Shelf {
	s := &Shelf{
		areas:    make(map[decay.Tier]*area, len(decay.Tiers)),
		clock:    decay.SystemClock{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		reporter: events.Nop,
		logger:   log.NewNopLogger(),
	}
	for _, t := range decay.Tiers {
		s.areas[t] = newArea(caps.Of(t))
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.WithComponent("shelf")
	return s
}

func (s *Shelf) heldLocked(id string) (decay.Tier, bool) {
	for _, t := range decay.Tiers {
		if _, ok := s.areas[t].items[id]; ok {
			return t, true
		}
	}
	return "", false
}

// Admit places o on its home tier, on overflow, or discards it.
func (s *Shelf) Admit(o order.Order) Placement {
	now := s.clock.Now()
	var evs []events.Event
	p := s.admit(o, now, &evs)
	s.emit(evs)
	if p.Discarded || p.Evicted != "" {
		s.logSnapshot()
	}
	return p
}

func (s *Shelf) admit(o order.Order, now time.Time, evs *[]events.Event) Placement {
	discard := func(tier decay.Tier, reason string, value float64) Placement {
		*evs = append(*evs, events.Event{
			Kind: events.KindDiscarded, OrderID: o.ID, Name: o.Name,
			Tier: string(tier), Reason: reason, Value: value, Time: now,
		})
		return Placement{Discarded: true, Reason: reason}
	}

	home, ok := decay.HomeTier(o.Temp)
	if !ok {
		s.logger.Error("order has unknown temperature", log.Str("order_id", o.ID), log.Str("temp", string(o.Temp)))
		return discard("", events.ReasonInvalidTemperature, 0)
	}
	if v := decay.Value(o, home, now); v <= 0 {
		return discard(home, events.ReasonExpiredOnArrival, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.heldLocked(o.ID); ok {
		s.logger.Warn("order already on shelf", log.Str("order_id", o.ID), log.Str("tier", string(t)))
		return Placement{Tier: t, Reason: events.ReasonDuplicate}
	}

	place := func(t decay.Tier) {
		s.areas[t].put(o)
		*evs = append(*evs, events.Event{
			Kind: events.KindAdmitted, OrderID: o.ID, Name: o.Name,
			Tier: string(t), Value: decay.Value(o, t, now), Time: now,
		})
	}

	if s.areas[home].free() {
		place(home)
		return Placement{Tier: home}
	}
	over := s.areas[decay.TierOverflow]
	if over.free() {
		place(decay.TierOverflow)
		return Placement{Tier: decay.TierOverflow}
	}

	var p Placement
	if id, ok := s.migrateFirstLocked(now, evs); ok {
		p.Moved = id
	} else if victim, ok := s.evictRandomLocked(now, evs); ok {
		p.Evicted = victim
	}
	if !over.free() {
		// only reachable with a zero-capacity overflow tier
		out := discard(home, events.ReasonNoCapacity, decay.Value(o, home, now))
		out.Moved, out.Evicted = p.Moved, p.Evicted
		return out
	}
	place(decay.TierOverflow)
	p.Tier = decay.TierOverflow
	return p
}

// migrateFirstLocked moves the first overflow order, in insertion order,
// whose home tier has room.
func (s *Shelf) migrateFirstLocked(now time.Time, evs *[]events.Event) (string, bool) {
	over := s.areas[decay.TierOverflow]
	for _, id := range over.seq {
		o := over.items[id]
		home, ok := decay.HomeTier(o.Temp)
		if !ok || !s.areas[home].free() {
			continue
		}
		over.remove(id)
		s.areas[home].put(o)
		*evs = append(*evs, events.Event{
			Kind: events.KindMoved, OrderID: o.ID, Name: o.Name,
			From: string(decay.TierOverflow), Tier: string(home),
			Value: decay.Value(o, home, now), Time: now,
		})
		return id, true
	}
	return "", false
}

func (s *Shelf) evictRandomLocked(now time.Time, evs *[]events.Event) (string, bool) {
	over := s.areas[decay.TierOverflow]
	if len(over.seq) == 0 {
		return "", false
	}
	id := over.seq[s.rng.Intn(len(over.seq))]
	o, _ := over.remove(id)
	*evs = append(*evs, events.Event{
		Kind: events.KindDiscarded, OrderID: o.ID, Name: o.Name,
		Tier: string(decay.TierOverflow), Reason: events.ReasonOverflowEvicted,
		Value: decay.Value(o, decay.TierOverflow, now), Time: now,
	})
	return id, true
}

// Retrieve removes the order from its home tier or, failing that, from
// overflow. It returns false when neither holds it, which is expected when
// the order was already reaped or delivered.
func (s *Shelf) Retrieve(id string, temp order.Temperature) (order.Order, decay.Tier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if home, ok := decay.HomeTier(temp); ok {
		if o, ok := s.areas[home].remove(id); ok {
			return o, home, true
		}
	}
	if o, ok := s.areas[decay.TierOverflow].remove(id); ok {
		return o, decay.TierOverflow, true
	}
	return order.Order{}, "", false
}

// Reap removes every holding expired at now and returns them.
func (s *Shelf) Reap(now time.Time) []Discarded {
	out, _ := s.reap(context.Background(), now)
	return out
}

// ReapContext runs one sweep at the clock's current time. It checks ctx
// between orders and returns ctx.Err() with whatever was removed so far when
// cancelled.
func (s *Shelf) ReapContext(ctx context.Context) ([]Discarded, error) {
	return s.reap(ctx, s.clock.Now())
}

type ref struct {
	id   string
	tier decay.Tier
}

func (s *Shelf) reap(ctx context.Context, now time.Time) ([]Discarded, error) {
	s.mu.Lock()
	var refs []ref
	for _, t := range decay.Tiers {
		for _, id := range s.areas[t].seq {
			refs = append(refs, ref{id: id, tier: t})
		}
	}
	s.mu.Unlock()

	var out []Discarded
	var err error
	for _, r := range refs {
		if err = ctx.Err(); err != nil {
			break
		}
		s.mu.Lock()
		a := s.areas[r.tier]
		o, ok := a.items[r.id]
		if ok {
			v := decay.Value(o, r.tier, now)
			if v <= 0 {
				a.remove(r.id)
				out = append(out, Discarded{Order: o, Tier: r.tier, Value: v})
			}
		}
		s.mu.Unlock()
	}

	if len(out) > 0 {
		evs := make([]events.Event, 0, len(out))
		for _, d := range out {
			evs = append(evs, events.Event{
				Kind: events.KindDiscarded, OrderID: d.Order.ID, Name: d.Order.Name,
				Tier: string(d.Tier), Reason: events.ReasonExpired, Value: d.Value, Time: now,
			})
		}
		s.emit(evs)
		s.logSnapshot()
	}
	return out, err
}

func (s *Shelf) emit(evs []events.Event) {
	for _, e := range evs {
		s.reporter.Report(e)
	}
}

// Holding is one order as seen in a Snapshot.
type Holding struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Temp  order.Temperature `json:"temp"`
	Value float64           `json:"value"`
}

// TierSnapshot is the state of one tier.
type TierSnapshot struct {
	Tier     decay.Tier `json:"tier"`
	Capacity int        `json:"capacity"`
	Occupied int        `json:"occupied"`
	Holdings []Holding  `json:"holdings"`
}

// Snapshot is a consistent view of every tier.
type Snapshot struct {
	Taken time.Time      `json:"taken"`
	Tiers []TierSnapshot `json:"tiers"`
}

// Snapshot returns the holdings of every tier with their current value.
func (s *Shelf) Snapshot() Snapshot {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Taken: now, Tiers: make([]TierSnapshot, 0, len(decay.Tiers))}
	for _, t := range decay.Tiers {
		a := s.areas[t]
		ts := TierSnapshot{Tier: t, Capacity: a.capacity, Occupied: len(a.items), Holdings: make([]Holding, 0, len(a.seq))}
		for _, id := range a.seq {
			o := a.items[id]
			ts.Holdings = append(ts.Holdings, Holding{ID: o.ID, Name: o.Name, Temp: o.Temp, Value: decay.Value(o, t, now)})
		}
		snap.Tiers = append(snap.Tiers, ts)
	}
	return snap
}

// Occupied returns the number of orders held on t.
func (s *Shelf) Occupied(t decay.Tier) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.areas[t]; ok {
		return len(a.items)
	}
	return 0
}

// Len returns the number of orders held across all tiers.
func (s *Shelf) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.areas {
		n += len(a.items)
	}
	return n
}

// String renders occupancy as "hot=1/10 cold=0/10 ...".
func (snap Snapshot) String() string {
	parts := make([]string, 0, len(snap.Tiers))
	for _, t := range snap.Tiers {
		parts = append(parts, fmt.Sprintf("%s=%d/%d", t.Tier, t.Occupied, t.Capacity))
	}
	return strings.Join(parts, " ")
}

func (s *Shelf) logSnapshot() {
	if s.logger.GetLevel() > log.DebugLevel {
		return
	}
	snap := s.Snapshot()
	fields := []log.Field{log.Str("occupancy", snap.String())}
	for _, t := range snap.Tiers {
		ids := make([]string, 0, len(t.Holdings))
		for _, h := range t.Holdings {
			ids = append(ids, fmt.Sprintf("%s:%.2f", h.ID, h.Value))
		}
		fields = append(fields, log.Str(string(t.Tier), strings.Join(ids, ",")))
	}
	s.logger.Debug("shelf contents", fields...)
}
