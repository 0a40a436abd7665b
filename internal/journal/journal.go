package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/pebble"

	"github.com/mishnit/pubsub/internal/events"
	pebblestore "github.com/mishnit/pubsub/internal/storage/pebble"
	"github.com/mishnit/pubsub/pkg/log"
)

// Entry is one stored event.
type Entry struct {
	Seq   uint64       `json:"seq"`
	Event events.Event `json:"event"`
}

// Journal appends events to a Pebble store. It implements events.Reporter.
type Journal struct {
	db     *pebblestore.DB
	logger log.Logger

	mu      sync.Mutex
	lastSeq uint64
	errors  int
}

// Open loads the last sequence number from db.
func Open(db *pebblestore.DB, logger log.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	j := &Journal{db: db, logger: logger.WithComponent("journal")}
	meta, err := db.Get(keyMeta)
	switch {
	case err == nil && len(meta) >= 8:
		j.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, fmt.Errorf("load journal meta: %w", err)
	}
	return j, nil
}

// Append stores ev and returns its sequence number.
func (j *Journal) Append(ev events.Event) (uint64, error) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := sonic.Marshal(&ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	header := encodeHeader(ev.Time.UnixMilli(), string(ev.Kind))

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.lastSeq + 1
	b, err := j.db.NewBatch()
	if err != nil {
		return 0, err
	}
	defer b.Close()
	if err := b.Set(entryKey(seq), encodeFrame(header, payload), nil); err != nil {
		return 0, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(keyMeta, meta[:], nil); err != nil {
		return 0, err
	}
	if err := j.db.CommitBatch(b); err != nil {
		return 0, fmt.Errorf("commit journal entry %d: %w", seq, err)
	}
	j.lastSeq = seq
	return seq, nil
}

// Report implements events.Reporter. Write failures are logged and counted.
func (j *Journal) Report(ev events.Event) {
	if _, err := j.Append(ev); err != nil {
		j.mu.Lock()
		j.errors++
		j.mu.Unlock()
		j.logger.Error("journal append failed", log.Str("kind", string(ev.Kind)), log.Err(err))
	}
}

// LastSeq returns the most recently assigned sequence number.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

// Errors returns how many Report calls failed to persist.
func (j *Journal) Errors() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errors
}

// ReadOptions bounds a forward scan.
type ReadOptions struct {
	// From is the first sequence to return. Zero starts at the beginning.
	From uint64
	// Limit caps the number of entries. Zero means no limit.
	Limit int
	// Filter, when set, drops entries it does not match.
	Filter *Filter
}

// Read scans forward from opts.From. It returns the entries and the
// sequence to resume from, which is zero when the scan reached the end.
// Entries whose frame fails its checksum are skipped.
func (j *Journal) Read(opts ReadOptions) ([]Entry, uint64, error) {
	lower := entryKey(opts.From)
	upper := entryKey(^uint64(0))
	it, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: append(upper, 0x00)})
	if err != nil {
		return nil, 0, err
	}
	defer it.Close()

	var out []Entry
	for it.First(); it.Valid(); it.Next() {
		seq, ok := seqFromKey(it.Key())
		if !ok {
			continue
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return out, seq, nil
		}
		_, payload, ok := decodeFrame(it.Value())
		if !ok {
			j.logger.Warn("skipping corrupt journal entry", log.Int64("seq", int64(seq)))
			continue
		}
		var ev events.Event
		if err := sonic.Unmarshal(payload, &ev); err != nil {
			j.logger.Warn("skipping undecodable journal entry", log.Int64("seq", int64(seq)), log.Err(err))
			continue
		}
		if opts.Filter != nil {
			match, err := opts.Filter.Match(seq, ev)
			if err != nil {
				return out, 0, err
			}
			if !match {
				continue
			}
		}
		out = append(out, Entry{Seq: seq, Event: ev})
	}
	return out, 0, it.Error()
}
