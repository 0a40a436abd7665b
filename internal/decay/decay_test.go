package decay

import (
	"math"
	"testing"
	"time"

	"github.com/mishnit/pubsub/internal/order"
	"pgregory.net/rapid"
)

func TestValueAtSixtySeconds(t *testing.T) {
	t0 := time.Now()
	o := order.Order{ID: "1", Temp: order.Hot, ShelfLife: 300, DecayRate: 0.45, CreatedAt: t0}
	v := Value(o, TierHot, t0.Add(60*time.Second))
	want := (300 - 60 - 0.45*60) / 300.0
	if math.Abs(v-want) > 1e-9 {
		t.Fatalf("value=%v want %v", v, want)
	}
	if math.Abs(v-0.91) > 0.005 {
		t.Fatalf("value=%v, expected about 0.91", v)
	}
	if Expired(o, TierHot, t0.Add(60*time.Second)) {
		t.Fatalf("should not be expired")
	}
}

func TestOverflowDecaysFaster(t *testing.T) {
	t0 := time.Now()
	o := order.Order{ShelfLife: 100, DecayRate: 1, CreatedAt: t0}
	now := t0.Add(10 * time.Second)
	if Value(o, TierOverflow, now) >= Value(o, TierHot, now) {
		t.Fatalf("overflow should decay faster")
	}
	// 100 - 40 - 1*40*2 = -20 on overflow, 100-40-40 = 20 at home
	if !Expired(o, TierOverflow, t0.Add(40*time.Second)) {
		t.Fatalf("expected expiry on overflow")
	}
	if Expired(o, TierCold, t0.Add(40*time.Second)) {
		t.Fatalf("not expired at home")
	}
}

func TestExpiredAtExactlyZero(t *testing.T) {
	// 10 - 5 - 1*5*1 = 0
	t0 := time.Now()
	o := order.Order{ShelfLife: 10, DecayRate: 1, CreatedAt: t0}
	if v := Value(o, TierHot, t0.Add(5*time.Second)); v != 0 {
		t.Fatalf("value=%v want 0", v)
	}
	if !Expired(o, TierHot, t0.Add(5*time.Second)) {
		t.Fatalf("value 0 must count as expired")
	}
}

func TestNonPositiveShelfLifeIsExpired(t *testing.T) {
	o := order.Order{ShelfLife: 0, DecayRate: 0.5, CreatedAt: time.Now()}
	if !Expired(o, TierHot, time.Now()) {
		t.Fatalf("zero shelf life should be expired")
	}
}

func TestAgeNeverNegative(t *testing.T) {
	t0 := time.Now()
	o := order.Order{CreatedAt: t0}
	if a := Age(o, t0.Add(-time.Second)); a != 0 {
		t.Fatalf("age=%v", a)
	}
}

func TestHomeTier(t *testing.T) {
	tests := map[order.Temperature]Tier{
		order.Hot:    TierHot,
		order.Cold:   TierCold,
		order.Frozen: TierFrozen,
		"FROZEN":     TierFrozen,
	}
	for temp, want := range tests {
		got, ok := HomeTier(temp)
		if !ok || got != want {
			t.Fatalf("HomeTier(%q)=%q,%v", temp, got, ok)
		}
	}
	if _, ok := HomeTier("ambient"); ok {
		t.Fatalf("ambient has no home tier")
	}
}

func TestPropertyValueNonIncreasing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		shelfLife := rapid.IntRange(1, 10000).Draw(t, "shelfLife")
		rate := rapid.Float64Range(0, 5).Draw(t, "rate")
		tier := rapid.SampledFrom(Tiers).Draw(t, "tier")
		a1 := rapid.Float64Range(0, 20000).Draw(t, "a1")
		delta := rapid.Float64Range(0, 20000).Draw(t, "delta")
		v1 := ValueAt(shelfLife, rate, a1, tier.Modifier())
		v2 := ValueAt(shelfLife, rate, a1+delta, tier.Modifier())
		if v2 > v1 {
			t.Fatalf("value increased with age: %v -> %v", v1, v2)
		}
	})
}

func TestPropertyExpiredMatchesValue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		t0 := time.Unix(1_700_000_000, 0)
		o := order.Order{
			ShelfLife: rapid.IntRange(-5, 600).Draw(t, "shelfLife"),
			DecayRate: rapid.Float64Range(0, 3).Draw(t, "rate"),
			CreatedAt: t0,
		}
		tier := rapid.SampledFrom(Tiers).Draw(t, "tier")
		now := t0.Add(time.Duration(rapid.Int64Range(0, 3600_000).Draw(t, "ms")) * time.Millisecond)
		if Expired(o, tier, now) != (Value(o, tier, now) <= 0) {
			t.Fatalf("expired/value disagree")
		}
	})
}
