// Package runcmd is the shared entrypoint the CLI uses to execute one
// simulation: it builds the process logger, loads the orders, opens the
// runtime, starts the optional status servers and prints the summary.
//
// Example:
//
//	cfg, _ := runcmd.LoadConfig("pubsub.yaml")
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	_, _ = runcmd.Run(ctx, runcmd.Options{Config: cfg, Out: os.Stdout})
package runcmd
