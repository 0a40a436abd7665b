// Package runtime wires one simulation run: broker, shelf, reaper, courier,
// dispatcher, the storage and delivery consumers, the audit journal and the
// metrics registry. Nothing here is global; every run owns its instances.
//
//	rt, err := runtime.Open(runtime.Options{Config: cfg, Orders: orders, Logger: logger})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	summary, err := rt.Run(ctx)
package runtime
