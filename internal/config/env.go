package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays PUBSUB_* environment variables onto cfg. Values that do
// not parse are ignored.
func FromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = Duration(d)
			}
		}
	}

	str("PUBSUB_TOPIC", &cfg.Topic)
	str("PUBSUB_ORDERS_FILE", &cfg.OrdersFile)
	num("PUBSUB_DISPATCH_RATE", &cfg.Dispatch.RatePerSec)
	dur("PUBSUB_DISPATCH_INTERVAL", &cfg.Dispatch.Interval)
	num("PUBSUB_POLL_BATCH", &cfg.Consumer.BatchSize)
	dur("PUBSUB_POLL_BACKOFF", &cfg.Consumer.Backoff)
	num("PUBSUB_EMPTY_POLL_LIMIT", &cfg.Consumer.EmptyPollLimit)
	num("PUBSUB_MAX_DECODE_RETRIES", &cfg.Consumer.MaxDecodeRetries)
	num("PUBSUB_SHELF_HOT", &cfg.Shelf.Hot)
	num("PUBSUB_SHELF_COLD", &cfg.Shelf.Cold)
	num("PUBSUB_SHELF_FROZEN", &cfg.Shelf.Frozen)
	num("PUBSUB_SHELF_OVERFLOW", &cfg.Shelf.Overflow)
	dur("PUBSUB_REAPER_INTERVAL", &cfg.Shelf.ReaperInterval)
	dur("PUBSUB_COURIER_MIN_DELAY", &cfg.Courier.MinDelay)
	dur("PUBSUB_COURIER_MAX_DELAY", &cfg.Courier.MaxDelay)
	str("PUBSUB_JOURNAL_DIR", &cfg.Journal.Dir)
	str("PUBSUB_JOURNAL_SYNC", &cfg.Journal.Sync)
	dur("PUBSUB_JOURNAL_RETENTION", &cfg.Journal.Retention)
	str("PUBSUB_HTTP_ADDR", &cfg.Server.HTTPAddr)
	str("PUBSUB_GRPC_ADDR", &cfg.Server.GRPCAddr)
	str("PUBSUB_LOG_LEVEL", &cfg.Log.Level)
	str("PUBSUB_LOG_FORMAT", &cfg.Log.Format)
}
