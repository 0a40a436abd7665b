package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	runcmd "github.com/mishnit/pubsub/internal/cmd/run"
	cfgpkg "github.com/mishnit/pubsub/internal/config"
	"github.com/mishnit/pubsub/internal/journal"
	pebblestore "github.com/mishnit/pubsub/internal/storage/pebble"
	logpkg "github.com/mishnit/pubsub/pkg/log"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pubsub",
		Short: "Perishable order fulfillment simulator",
		Long:  "pubsub replays an orders file through an in-memory broker, a tiered shelf and a courier, and reports what was delivered and what decayed.",
	}
	rootCmd.AddCommand(newRunCmd(), newJournalCmd(), newVersionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := runcmd.LoadConfig(path)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("orders") {
				cfg.OrdersFile, _ = flags.GetString("orders")
			}
			if flags.Changed("rate") {
				cfg.Dispatch.RatePerSec, _ = flags.GetInt("rate")
			}
			if flags.Changed("journal") {
				cfg.Journal.Dir, _ = flags.GetString("journal")
			}
			if flags.Changed("http") {
				cfg.Server.HTTPAddr, _ = flags.GetString("http")
			}
			if flags.Changed("grpc") {
				cfg.Server.GRPCAddr, _ = flags.GetString("grpc")
			}
			if flags.Changed("log-level") {
				cfg.Log.Level, _ = flags.GetString("log-level")
			}
			if flags.Changed("log-format") {
				cfg.Log.Format, _ = flags.GetString("log-format")
			}
			linger, _ := flags.GetBool("linger")
			seed, _ := flags.GetInt64("seed")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if _, err := runcmd.Run(ctx, runcmd.Options{Config: cfg, Out: os.Stdout, Linger: linger, Seed: seed}); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	cmd.Flags().String("config", os.Getenv("PUBSUB_CONFIG"), "Config file (.json, .yaml)")
	cmd.Flags().String("orders", "orders.json", "Orders file")
	cmd.Flags().Int("rate", 2, "Orders dispatched per second")
	cmd.Flags().String("journal", "", "Journal directory (empty keeps it in memory)")
	cmd.Flags().String("http", "", "Status HTTP listen address (empty disables)")
	cmd.Flags().String("grpc", "", "gRPC health listen address (empty disables)")
	cmd.Flags().String("log-level", "info", "Log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "text", "Log format: text|json")
	cmd.Flags().Bool("linger", false, "Keep status servers up after the run until interrupted")
	cmd.Flags().Int64("seed", 0, "Random seed for eviction and courier delays (0 uses the clock)")
	return cmd
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print events from a persisted journal",
		Example: `  pubsub journal --journal ./data/journal --filter 'kind == "discarded" && reason == "expired"'
  pubsub journal --journal ./data/journal --from 120 --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("journal")
			expr, _ := cmd.Flags().GetString("filter")
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")
			if dir == "" {
				dir = cfgpkg.DefaultJournalDir()
			}
			filter, err := journal.Compile(expr)
			if err != nil {
				return err
			}
			logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.WarnLevel), logpkg.WithOutput(logpkg.NewConsoleOutput()))
			logpkg.RedirectStdLog(logger)

			db, err := pebblestore.Open(pebblestore.Options{Dir: dir})
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer db.Close()
			j, err := journal.Open(db, logger)
			if err != nil {
				return err
			}
			entries, next, err := j.Read(journal.ReadOptions{From: from, Limit: limit, Filter: filter})
			if err != nil {
				return err
			}
			for _, e := range entries {
				b, err := sonic.Marshal(e)
				if err != nil {
					return err
				}
				fmt.Println(string(b))
			}
			if next != 0 {
				fmt.Fprintf(os.Stderr, "more entries: --from %d\n", next)
			}
			return nil
		},
	}
	cmd.Flags().String("journal", "", "Journal directory (default: OS data dir)")
	cmd.Flags().String("filter", "", "CEL expression over seq, kind, order_id, name, tier, from, reason, consumer, value, ts_ms, now_ms")
	cmd.Flags().Uint64("from", 0, "First sequence number")
	cmd.Flags().Int("limit", 0, "Maximum entries (0 for all)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
