// Package journal persists fulfillment events to Pebble as an append-only
// audit trail and reads them back, optionally filtered by a CEL expression.
//
// Layout:
//
//	j/e/{seq}  framed entry, seq is 8 bytes big-endian starting at 1
//	j/m        last assigned seq, 8 bytes big-endian
//
// Each entry is framed as varint(headerLen) | header | payload | crc32c,
// where header is the event time in unix milliseconds (8 bytes) followed by
// the event kind and payload is the JSON encoded event.
package journal
