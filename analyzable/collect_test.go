package analyzable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectOrdersByExactTimestamp(t *testing.T) {
	c := New(Process{}, Options{})

	// these differ by less than a microsecond, float64 can't tell
	// them apart at this magnitude
	c.Response().ExecutionTrace().AddAt("1700000000.0000003", "third")
	c.Request.ExecutionTrace().AddAt("1700000000.0000001", "first")
	c.WebService.ExecutionTrace().AddAt("1700000000.0000002", "second")
	c.ExecutionTrace().AddAt("1699999999.9999999", "zeroth")

	entries := Collect(c)
	var details []interface{}
	for _, e := range entries {
		details = append(details, e.Details)
	}

	assert.Equal(t, []interface{}{"zeroth", "first", "second", "third"}, details)
	for i := 1; i < len(entries); i++ {
		assert.False(t, timestampLess(entries[i].Timestamp, entries[i-1].Timestamp))
	}
}

func TestCollectSources(t *testing.T) {
	c := New(Process{}, Options{})
	c.Request.ExecutionTrace().AddAt("2", "b")
	c.DestinationRequest.ExecutionTrace().AddAt("1", "a")

	entries := Collect(c)
	require.Len(t, entries, 2)
	assert.Equal(t, "DestinationRequest", entries[0].Source)
	assert.Equal(t, "InitiatorRequest", entries[1].Source)
}

func TestCollectStableForEqualTimestamps(t *testing.T) {
	c := New(Process{}, Options{})
	c.ExecutionTrace().AddAt("5", "root")
	c.Request.ExecutionTrace().AddAt("5.0", "request")

	entries := Collect(c)
	require.Len(t, entries, 2)
	assert.Equal(t, "root", entries[0].Details)
	assert.Equal(t, "request", entries[1].Details)
}

func TestTimestampLessFallback(t *testing.T) {
	assert.True(t, timestampLess("1e3", "1001"))
	assert.False(t, timestampLess("1001", "1e3"))
	assert.False(t, timestampLess("1.5", "not-a-number"))
	assert.True(t, timestampLess("not-a-number", "1.5"))
}

func TestTraceEntryExport(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := TraceEntry{
		Timestamp: "1704067200.002500000",
		Source:    "Timing",
		Details:   map[string]int{"n": 1},
	}

	assert.Equal(t, ExportedTraceEntry{
		Datetime:     "2024-01-01T00:00:00.002500Z",
		Microseconds: "2500",
		Source:       "Timing",
		Details:      `{"n":1}`,
	}, e.Export(Process{Start: start}))

	e.Details = func() {}
	assert.Contains(t, e.Export(Process{}).Details, "0x")
}
