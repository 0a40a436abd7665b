// Package consumer runs a polling subscription against the broker, decodes
// each record into an order and hands it to a Handler.
//
// A Consumer moves through these states:
//
//	Registering -> Polling -> {Delivering | Backoff | RewindRetry} -> Polling
//
// and ends in Exhausted (too many consecutive empty polls) or Aborted
// (subscriber error, decode retries used up, or context cancelled).
// Exhausted is delivered to the handler exactly once; Aborted is delivered as
// a Failed event carrying the cause.
package consumer
