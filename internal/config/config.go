package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mishnit/pubsub/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Topic      string         `json:"topic" yaml:"topic"`
	OrdersFile string         `json:"ordersFile" yaml:"ordersFile"`
	Dispatch   DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Consumer   ConsumerConfig `json:"consumer" yaml:"consumer"`
	Shelf      ShelfConfig    `json:"shelf" yaml:"shelf"`
	Courier    CourierConfig  `json:"courier" yaml:"courier"`
	Journal    JournalConfig  `json:"journal" yaml:"journal"`
	Server     ServerConfig   `json:"server" yaml:"server"`
	Log        log.Config     `json:"log" yaml:"log"`
}

// DispatchConfig tunes the producer.
type DispatchConfig struct {
	RatePerSec int      `json:"ratePerSec" yaml:"ratePerSec"`
	Interval   Duration `json:"interval" yaml:"interval"`
}

// ConsumerConfig tunes both consumption loops.
type ConsumerConfig struct {
	BatchSize        int      `json:"batchSize" yaml:"batchSize"`
	Backoff          Duration `json:"backoff" yaml:"backoff"`
	EmptyPollLimit   int      `json:"emptyPollLimit" yaml:"emptyPollLimit"`
	MaxDecodeRetries int      `json:"maxDecodeRetries" yaml:"maxDecodeRetries"`
}

// ShelfConfig sets tier capacities and the reaper interval.
type ShelfConfig struct {
	Hot            int      `json:"hot" yaml:"hot"`
	Cold           int      `json:"cold" yaml:"cold"`
	Frozen         int      `json:"frozen" yaml:"frozen"`
	Overflow       int      `json:"overflow" yaml:"overflow"`
	ReaperInterval Duration `json:"reaperInterval" yaml:"reaperInterval"`
}

// CourierConfig bounds the random pickup delay.
type CourierConfig struct {
	MinDelay Duration `json:"minDelay" yaml:"minDelay"`
	MaxDelay Duration `json:"maxDelay" yaml:"maxDelay"`
}

// JournalConfig selects where audit events are persisted. An empty Dir
// keeps the journal in memory for the lifetime of the run.
type JournalConfig struct {
	Dir  string `json:"dir" yaml:"dir"`
	Sync string `json:"sync" yaml:"sync"` // grouped|always|never
	// Retention drops persisted entries older than this when the journal
	// is opened. Zero keeps everything.
	Retention Duration `json:"retention" yaml:"retention"`
}

// ServerConfig enables the status surfaces. Empty addresses disable them.
type ServerConfig struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
	GRPCAddr string `json:"grpcAddr" yaml:"grpcAddr"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Topic:      "orders",
		OrdersFile: "orders.json",
		Dispatch: DispatchConfig{
			RatePerSec: 2,
			Interval:   Duration(time.Second),
		},
		Consumer: ConsumerConfig{
			BatchSize:        10,
			Backoff:          Duration(time.Second),
			EmptyPollLimit:   10,
			MaxDecodeRetries: 5,
		},
		Shelf: ShelfConfig{
			Hot: 10, Cold: 10, Frozen: 10, Overflow: 15,
			ReaperInterval: Duration(500 * time.Millisecond),
		},
		Courier: CourierConfig{
			MinDelay: Duration(2 * time.Second),
			MaxDelay: Duration(6 * time.Second),
		},
		Journal: JournalConfig{Sync: "grouped"},
		Log:     log.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(strings.TrimSpace(c.Topic) != "", "topic must not be empty")
	check(c.Dispatch.RatePerSec > 0, "dispatch.ratePerSec must be positive, got %d", c.Dispatch.RatePerSec)
	check(c.Dispatch.Interval > 0, "dispatch.interval must be positive")
	check(c.Consumer.BatchSize > 0, "consumer.batchSize must be positive, got %d", c.Consumer.BatchSize)
	check(c.Consumer.Backoff > 0, "consumer.backoff must be positive")
	check(c.Consumer.EmptyPollLimit > 0, "consumer.emptyPollLimit must be positive, got %d", c.Consumer.EmptyPollLimit)
	check(c.Consumer.MaxDecodeRetries >= 0, "consumer.maxDecodeRetries must not be negative")
	for _, tier := range []struct {
		name string
		n    int
	}{{"hot", c.Shelf.Hot}, {"cold", c.Shelf.Cold}, {"frozen", c.Shelf.Frozen}, {"overflow", c.Shelf.Overflow}} {
		check(tier.n > 0, "shelf.%s capacity must be positive, got %d", tier.name, tier.n)
	}
	check(c.Shelf.ReaperInterval > 0, "shelf.reaperInterval must be positive")
	check(c.Courier.MinDelay > 0, "courier.minDelay must be positive")
	check(c.Courier.MaxDelay >= c.Courier.MinDelay, "courier.maxDelay %s is below minDelay %s", c.Courier.MaxDelay, c.Courier.MinDelay)
	switch c.Journal.Sync {
	case "", "grouped", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("journal.sync must be grouped|always|never, got %q", c.Journal.Sync))
	}
	check(c.Journal.Retention >= 0, "journal.retention must not be negative")
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
