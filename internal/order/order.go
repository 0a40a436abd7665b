// Package order defines the Order record that flows through the pipeline,
// its temperature classes, the wire codec and the initial order loader.
package order

import (
	"fmt"
	"strings"
	"time"
)

// Temperature is the storage class an order declares.
type Temperature string

const (
	Hot    Temperature = "hot"
	Cold   Temperature = "cold"
	Frozen Temperature = "frozen"
)

// ParseTemperature normalizes s and reports whether it names a known class.
func ParseTemperature(s string) (Temperature, error) {
	t := Temperature(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case Hot, Cold, Frozen:
		return t, nil
	}
	return t, fmt.Errorf("unknown temperature %q", s)
}

// Valid reports whether t is one of the known classes.
func (t Temperature) Valid() bool {
	_, err := ParseTemperature(string(t))
	return err == nil
}

// Order is immutable once it enters the system. CreatedAt is the age
// reference point and is stamped from the broker record, never from the
// wire payload.
type Order struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Temp      Temperature `json:"temp"`
	ShelfLife int         `json:"shelfLife"`
	DecayRate float64     `json:"decayRate"`
	CreatedAt time.Time   `json:"-"`
}

// WithCreatedAt returns a copy of o stamped with ts.
func (o Order) WithCreatedAt(ts time.Time) Order {
	o.CreatedAt = ts
	return o
}
