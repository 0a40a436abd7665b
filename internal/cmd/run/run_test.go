package runcmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/mishnit/pubsub/internal/config"
	"github.com/mishnit/pubsub/internal/order"
)

func fastConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Dispatch.RatePerSec = 50
	cfg.Dispatch.Interval = cfgpkg.Duration(time.Millisecond)
	cfg.Consumer.Backoff = cfgpkg.Duration(time.Millisecond)
	cfg.Consumer.EmptyPollLimit = 3
	cfg.Courier.MinDelay = cfgpkg.Duration(time.Millisecond)
	cfg.Courier.MaxDelay = cfgpkg.Duration(3 * time.Millisecond)
	cfg.Shelf.ReaperInterval = cfgpkg.Duration(5 * time.Millisecond)
	cfg.Log.Level = "error"
	cfg.Log.Output = "null"
	return cfg
}

const ordersJSON = `[
 {"id":"a1","name":"Banana Split","temp":"frozen","shelfLife":20,"decayRate":0.63},
 {"id":"a2","name":"McFlury","temp":"frozen","shelfLife":375,"decayRate":0.4},
 {"id":"a3","name":"Acai Bowl","temp":"cold","shelfLife":249,"decayRate":0.3},
 {"id":"a4","name":"Yogurt","temp":"cold","shelfLife":263,"decayRate":0.37},
 {"id":"a5","name":"Cheese Pizza","temp":"hot","shelfLife":300,"decayRate":0.45}
]`

func TestRunFromOrdersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.json")
	if err := os.WriteFile(path, []byte(ordersJSON), 0o644); err != nil {
		t.Fatalf("write orders: %v", err)
	}
	cfg := fastConfig(t)
	cfg.OrdersFile = path
	cfg.Journal.Dir = filepath.Join(dir, "journal")

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sum, err := Run(ctx, Options{Config: cfg, Out: &out, Seed: 7})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Orders != 5 || sum.Dispatched != 5 {
		t.Fatalf("summary: %+v", sum)
	}
	if got := sum.Events["delivered"] + sum.Events["not_found"]; got != 5 {
		t.Fatalf("pickups = %d, want 5", got)
	}
	if !strings.Contains(out.String(), `"dispatched": 5`) {
		t.Fatalf("summary output: %s", out.String())
	}
	if _, err := os.Stat(cfg.Journal.Dir); err != nil {
		t.Fatalf("journal dir not created: %v", err)
	}
}

func TestRunMissingOrdersFile(t *testing.T) {
	cfg := fastConfig(t)
	cfg.OrdersFile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := Run(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatal("expected error for missing orders file")
	}
}

func TestRunBadLogConfig(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Log.Format = "xml"
	if _, err := Run(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatal("expected log config error")
	}
}

func TestRunWithStatusServers(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	orders, err := loadOrders(ordersJSON)
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sum, err := Run(ctx, Options{Config: cfg, Orders: orders})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Dispatched != 5 {
		t.Fatalf("dispatched = %d", sum.Dispatched)
	}
}

func TestLoadConfigEnvOverlay(t *testing.T) {
	t.Setenv("PUBSUB_DISPATCH_RATE", "9")
	t.Setenv("PUBSUB_TOPIC", "kitchen")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dispatch.RatePerSec != 9 || cfg.Topic != "kitchen" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func loadOrders(s string) ([]order.Order, error) { return order.Load(strings.NewReader(s)) }
