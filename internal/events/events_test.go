package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishnit/pubsub/pkg/log"
)

func TestMultiStampsAndFansOut(t *testing.T) {
	var a, b Recorder
	r := Multi(&a, nil, &b)
	r.Report(Event{Kind: KindAdmitted, OrderID: "1"})

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.False(t, a.Events()[0].Time.IsZero())
	assert.Equal(t, 1, b.Count(KindAdmitted))
	assert.Empty(t, b.Filter(KindDelivered))
}

func TestLogReporterLevels(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewLogger(log.WithFormatter(&log.TextFormatter{}), log.WithOutput(log.NewWriterOutput(&buf)), log.WithLevel(log.InfoLevel))
	r := NewLogReporter(l)
	r.Report(Event{Kind: KindDiscarded, OrderID: "9", Name: "Pad Thai", Tier: "overflow", Reason: ReasonOverflowEvicted})
	r.Report(Event{Kind: KindDelivered, OrderID: "3", Name: "Sushi", Tier: "cold", Value: 0.5})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "WARN")
	assert.Contains(t, lines[0], "reason=overflow_evicted")
	assert.Contains(t, lines[1], "INFO")
	assert.Contains(t, lines[1], "order_id=3")
}
