// Package httpserver serves the read-only status API of a running
// simulation:
//
//	GET /v1/healthz   journal store health and run state
//	GET /v1/shelf     shelf snapshot with current order values
//	GET /v1/topics    broker topics and subscriber offsets
//	GET /v1/events    audit journal, ?from=&limit=&filter=<CEL>
//	GET /metrics      Prometheus exposition
//
// Example:
//
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
