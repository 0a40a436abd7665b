// Package grpcserver hosts the gRPC server of a simulation run. It exposes
// the standard grpc.health.v1 service, answering SERVING while the journal
// store is reachable. Server reflection is registered for grpcurl.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
