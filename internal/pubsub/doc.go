// Package pubsub is an in-memory, topic-addressed publish/subscribe broker.
//
// Each topic is an append-only log of Records. Subscribers register against
// a topic and receive their own offset starting at zero, so every
// registration reads the whole log at its own pace (fan-out, not
// competing consumers). Logs are never truncated.
//
// Concurrency: the topic map is guarded by one RWMutex, each topic log by
// its own mutex, and each subscriber's offset by a per-subscriber mutex.
// Polls from different subscribers never contend with each other beyond a
// brief read of the topic log.
package pubsub
