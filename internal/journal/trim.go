package journal

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/mishnit/pubsub/pkg/log"
)

const defaultTrimBatch = 512

// TrimOlderThan deletes the oldest entries whose header timestamp is before
// cutoff, stopping at the first newer entry. Deletes are committed in
// batches of up to batchLimit keys and ctx is checked between batches. It
// returns the number of deleted entries and the last deleted sequence.
func (j *Journal) TrimOlderThan(ctx context.Context, cutoff time.Time, batchLimit int) (int, uint64, error) {
	if batchLimit <= 0 {
		batchLimit = defaultTrimBatch
	}
	cutoffMs := cutoff.UnixMilli()
	it, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: entryKey(0),
		UpperBound: append(entryKey(^uint64(0)), 0x00),
	})
	if err != nil {
		return 0, 0, err
	}
	defer it.Close()

	deleted := 0
	var lastSeq uint64
	for ok := it.First(); ok; {
		if err := ctx.Err(); err != nil {
			return deleted, lastSeq, err
		}
		b, err := j.db.NewBatch()
		if err != nil {
			return deleted, lastSeq, err
		}
		n := 0
		var batchLast uint64
		for ok && n < batchLimit {
			seq, okKey := seqFromKey(it.Key())
			header, _, okFrame := decodeFrame(it.Value())
			if okKey && okFrame {
				if ms, _ := decodeHeader(header); ms >= cutoffMs {
					ok = false
					break
				}
			}
			// unreadable frames are dropped with the expired prefix
			if err := b.Delete(it.Key(), nil); err != nil {
				b.Close()
				return deleted, lastSeq, err
			}
			n++
			batchLast = seq
			ok = it.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		if err := j.db.CommitBatch(b); err != nil {
			b.Close()
			return deleted, lastSeq, err
		}
		b.Close()
		deleted += n
		lastSeq = batchLast
	}
	if deleted > 0 {
		j.logger.Info("journal trimmed", log.Int("entries", deleted), log.Int64("through_seq", int64(lastSeq)))
	}
	return deleted, lastSeq, it.Error()
}
