package analyzable

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TraceEntry is a single diagnostic fact recorded by a component.
type TraceEntry struct {
	// Timestamp in decimal seconds since the epoch, kept as a string so
	// that the full recorded precision survives.
	Timestamp string

	// Source is the name of the component that recorded the entry.
	Source string

	// Details can be any value that can be encoded as JSON.
	Details interface{}
}

// ExportedTraceEntry is the serialized form of a TraceEntry.
type ExportedTraceEntry struct {
	Datetime     string `json:"datetime"`
	Microseconds string `json:"microseconds"`
	Source       string `json:"source"`
	Details      string `json:"details"`
}

// ExecutionTrace records trace entries for one component. It can be
// attached to any component by implementing TraceProvider.
type ExecutionTrace struct {
	mu      sync.Mutex
	source  string
	entries []TraceEntry
	now     func() time.Time
}

// TraceProvider is implemented by the components that carry an execution
// trace.
type TraceProvider interface {
	ExecutionTrace() *ExecutionTrace
}

// NewExecutionTrace creates a trace for the component called source.
func NewExecutionTrace(source string, now func() time.Time) *ExecutionTrace {
	if now == nil {
		now = time.Now
	}

	return &ExecutionTrace{source: source, now: now}
}

// Add records details with the current time.
func (t *ExecutionTrace) Add(details interface{}) {
	if t == nil {
		return
	}

	t.AddAt(timestamp(t.now()).StringFixed(9), details)
}

// AddAt records details with a raw timestamp.
func (t *ExecutionTrace) AddAt(ts string, details interface{}) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TraceEntry{Timestamp: ts, Source: t.source, Details: details})
}

// Entries returns a copy of the recorded entries.
func (t *ExecutionTrace) Entries() []TraceEntry {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEntry(nil), t.entries...)
}

// Export serializes the entry relative to the start of the process.
func (e TraceEntry) Export(p Process) ExportedTraceEntry {
	x := ExportedTraceEntry{Source: e.Source, Details: detailsString(e.Details)}
	if ts, err := decimal.NewFromString(e.Timestamp); err == nil {
		x.Datetime = FormatTime(timeOf(ts))
		if !p.Start.IsZero() {
			x.Microseconds = microseconds(ts.Sub(timestamp(p.Start)))
		}
	}

	return x
}

func detailsString(d interface{}) string {
	if s, ok := d.(string); ok {
		return s
	}

	if b, err := json.Marshal(d); err == nil {
		return string(b)
	}

	return fmt.Sprintf("%v", d)
}
