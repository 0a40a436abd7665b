package order

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
)

// Codec turns orders into broker payloads and back.
type Codec interface {
	Encode(Order) ([]byte, error)
	Decode([]byte) (Order, error)
}

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed order payload")

// JSONCodec encodes orders with the field names used by the orders file:
// id, name, temp, shelfLife, decayRate.
type JSONCodec struct{}

// Encode implements Codec.
func (JSONCodec) Encode(o Order) ([]byte, error) {
	b, err := sonic.Marshal(&o)
	if err != nil {
		return nil, fmt.Errorf("encode order %s: %w", o.ID, err)
	}
	return b, nil
}

// Decode implements Codec. Payloads that do not parse or lack an id are
// rejected with an error wrapping ErrMalformed.
func (JSONCodec) Decode(b []byte) (Order, error) {
	if len(b) == 0 {
		return Order{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var o Order
	if err := sonic.Unmarshal(b, &o); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if o.ID == "" {
		return Order{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	return o, nil
}

// Load reads a JSON array of orders.
func Load(r io.Reader) ([]Order, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	var orders []Order
	if err := sonic.Unmarshal(b, &orders); err != nil {
		return nil, fmt.Errorf("parse orders: %w", err)
	}
	return orders, nil
}

// LoadFile reads the orders file at path.
func LoadFile(path string) ([]Order, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
