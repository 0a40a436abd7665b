// Package decay computes the current value of a perishable order.
//
//	value(age) = (shelfLife - age - decayRate*age*modifier) / shelfLife
//
// where age is elapsed seconds since the order was created and modifier
// depends on the tier currently holding the order. An order is expired when
// its value is <= 0. Nothing here is cached: callers evaluate at the moment
// they need an answer.
package decay

import (
	"time"

	"github.com/mishnit/pubsub/internal/order"
)

// Tier is a storage area with its own capacity and decay modifier.
type Tier string

const (
	TierHot      Tier = "hot"
	TierCold     Tier = "cold"
	TierFrozen   Tier = "frozen"
	TierOverflow Tier = "overflow"
)

// Tiers lists every tier, home tiers first.
var Tiers = []Tier{TierHot, TierCold, TierFrozen, TierOverflow}

// Modifier returns the decay multiplier for t.
func (t Tier) Modifier() int {
	if t == TierOverflow {
		return 2
	}
	return 1
}

// HomeTier maps a temperature to its home tier.
func HomeTier(temp order.Temperature) (Tier, bool) {
	switch temp {
	case order.Hot:
		return TierHot, true
	case order.Cold:
		return TierCold, true
	case order.Frozen:
		return TierFrozen, true
	}
	t, err := order.ParseTemperature(string(temp))
	if err != nil {
		return "", false
	}
	return HomeTier(t)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic reading.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Age returns the seconds elapsed between o.CreatedAt and now, never negative.
// time.Time.Sub uses the monotonic reading when both operands carry one.
func Age(o order.Order, now time.Time) float64 {
	d := now.Sub(o.CreatedAt)
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

// ValueAt evaluates the decay formula for an explicit age in seconds.
// A non-positive shelf life has no meaningful value and evaluates to 0.
func ValueAt(shelfLife int, decayRate, age float64, modifier int) float64 {
	if shelfLife <= 0 {
		return 0
	}
	sl := float64(shelfLife)
	return (sl - age - decayRate*age*float64(modifier)) / sl
}

// Value returns the current value of o while held in tier.
func Value(o order.Order, tier Tier, now time.Time) float64 {
	return ValueAt(o.ShelfLife, o.DecayRate, Age(o, now), tier.Modifier())
}

// Expired reports whether o has no value left while held in tier.
func Expired(o order.Order, tier Tier, now time.Time) bool {
	return Value(o, tier, now) <= 0
}
