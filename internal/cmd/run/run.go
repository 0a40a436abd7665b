package runcmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bytedance/sonic"

	cfgpkg "github.com/mishnit/pubsub/internal/config"
	"github.com/mishnit/pubsub/internal/order"
	"github.com/mishnit/pubsub/internal/runtime"
	grpcserver "github.com/mishnit/pubsub/internal/server/grpc"
	httpserver "github.com/mishnit/pubsub/internal/server/http"
	logpkg "github.com/mishnit/pubsub/pkg/log"
)

// Options configures one invocation.
type Options struct {
	Config cfgpkg.Config
	// Orders overrides Config.OrdersFile when non-nil.
	Orders []order.Order
	// Out receives the JSON summary. Nil discards it.
	Out io.Writer
	// Linger keeps the status servers up after the run until ctx is done.
	Linger bool
	Seed   int64
}

// LoadConfig reads path (may be empty) and overlays PUBSUB_* variables.
func LoadConfig(path string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	return cfg, nil
}

// Run executes a simulation and blocks until it finishes or ctx is done.
func Run(ctx context.Context, opts Options) (runtime.Summary, error) {
	cfg := opts.Config
	logger, err := logpkg.ApplyConfig(&cfg.Log)
	if err != nil {
		return runtime.Summary{}, fmt.Errorf("log config: %w", err)
	}
	logpkg.RedirectStdLog(logger)

	orders := opts.Orders
	if orders == nil {
		if orders, err = order.LoadFile(cfg.OrdersFile); err != nil {
			return runtime.Summary{}, err
		}
	}

	rt, err := runtime.Open(runtime.Options{Config: cfg, Orders: orders, Logger: logger, Seed: opts.Seed})
	if err != nil {
		return runtime.Summary{}, err
	}
	defer rt.Close()

	logger.Info("starting simulation",
		logpkg.Int("orders", len(orders)),
		logpkg.Str("topic", cfg.Topic),
		logpkg.Int("rate", cfg.Dispatch.RatePerSec),
		logpkg.Str("journal", cfg.Journal.Dir),
		logpkg.Str("http", cfg.Server.HTTPAddr),
		logpkg.Str("grpc", cfg.Server.GRPCAddr),
	)

	sctx, stop := context.WithCancel(ctx)
	defer stop()
	var wg sync.WaitGroup
	var gsrv *grpcserver.Server
	var hsrv *httpserver.Server
	if addr := cfg.Server.GRPCAddr; addr != "" {
		gsrv = grpcserver.New(rt)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gsrv.ListenAndServe(sctx, addr); err != nil && sctx.Err() == nil {
				logger.Error("grpc server", logpkg.Err(err))
			}
		}()
	}
	if addr := cfg.Server.HTTPAddr; addr != "" {
		hsrv = httpserver.New(rt, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, addr); err != nil && sctx.Err() == nil {
				logger.Error("http server", logpkg.Err(err))
			}
		}()
	}

	sum, runErr := rt.Run(ctx)
	if runErr == nil {
		if err := writeSummary(opts.Out, sum); err != nil {
			logger.Warn("write summary", logpkg.Err(err))
		}
		if opts.Linger && (gsrv != nil || hsrv != nil) {
			logger.Info("serving status until interrupted")
			<-ctx.Done()
		}
	}

	// Stop the servers before the deferred runtime close releases the store.
	stop()
	if gsrv != nil {
		gsrv.Close()
	}
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	return sum, runErr
}

func writeSummary(w io.Writer, sum runtime.Summary) error {
	if w == nil {
		return nil
	}
	b, err := sonic.ConfigStd.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
