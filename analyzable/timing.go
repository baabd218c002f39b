package analyzable

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Checkpoint names a moment in the lifecycle of a transaction.
type Checkpoint string

const (
	// Init is marked when the transaction is created.
	Init Checkpoint = "INIT"

	// Start is marked right before the request is sent to the
	// destination.
	Start Checkpoint = "START"

	// StartedReceiving is marked when the first byte of the destination
	// response arrived.
	StartedReceiving Checkpoint = "STARTED_RECEIVING"

	// Stop is marked when the destination response was fully received.
	Stop Checkpoint = "STOP"
)

var checkpoints = []Checkpoint{Init, Start, StartedReceiving, Stop}

type durationDef struct {
	name     string
	from, to Checkpoint
}

var durations = []durationDef{
	{"wait_duration", Start, StartedReceiving},
	{"receiving_duration", StartedReceiving, Stop},
	{"round_trip_duration", Start, Stop},
	{"total_duration", Init, Stop},
}

// Timing stores the checkpoints of a transaction as decimal seconds.
type Timing struct {
	mu     sync.Mutex
	points map[Checkpoint]decimal.Decimal
	now    func() time.Time
}

// NewTiming creates an empty timing component. When now is nil, time.Now
// is used.
func NewTiming(now func() time.Time) *Timing {
	if now == nil {
		now = time.Now
	}

	return &Timing{points: make(map[Checkpoint]decimal.Decimal), now: now}
}

// Mark sets the checkpoint to the current time, overwriting any earlier
// value.
func (t *Timing) Mark(cp Checkpoint) {
	t.MarkAt(cp, t.now())
}

// MarkAt sets the checkpoint to the given time.
func (t *Timing) MarkAt(cp Checkpoint, at time.Time) {
	t.Set(cp, timestamp(at))
}

// Set sets the checkpoint to a raw timestamp in decimal seconds.
func (t *Timing) Set(cp Checkpoint, seconds decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points[cp] = seconds
}

// Get returns the raw timestamp of a checkpoint.
func (t *Timing) Get(cp Checkpoint) (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.points[cp]
	return d, ok
}

// Has tells whether the checkpoint was marked.
func (t *Timing) Has(cp Checkpoint) bool {
	_, ok := t.Get(cp)
	return ok
}

// Time returns the time of a checkpoint.
func (t *Timing) Time(cp Checkpoint) (time.Time, bool) {
	d, ok := t.Get(cp)
	if !ok {
		return time.Time{}, false
	}

	return timeOf(d), true
}

// Duration returns the seconds between two checkpoints. It returns false
// when either of them is missing.
func (t *Timing) Duration(from, to Checkpoint) (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.points[from]
	if !ok {
		return decimal.Decimal{}, false
	}

	tt, ok := t.points[to]
	if !ok {
		return decimal.Decimal{}, false
	}

	return tt.Sub(f), true
}

// Microseconds returns the integer microseconds between two checkpoints,
// formatted as a decimal string.
func (t *Timing) Microseconds(from, to Checkpoint) (string, bool) {
	d, ok := t.Duration(from, to)
	if !ok {
		return "", false
	}

	return microseconds(d), true
}

func (t *Timing) ComponentName() string { return "Timing" }
func (t *Timing) Children() []Component { return nil }

func (t *Timing) DataToLog() map[string]interface{} {
	m := make(map[string]interface{})
	for _, cp := range checkpoints {
		if at, ok := t.Time(cp); ok {
			m[strings.ToLower(string(cp))+"_time"] = FormatTime(at)
		}
	}

	for _, d := range durations {
		if us, ok := t.Microseconds(d.from, d.to); ok {
			m[d.name] = us
		}
	}

	return m
}
