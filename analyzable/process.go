package analyzable

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeFormat is used for all exported *_time fields: ISO-8601, UTC, with
// microseconds.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Process carries the facts about the running gateway process that the
// transactions need, instead of reading them from global state.
type Process struct {
	// Start is the time the process started serving.
	Start time.Time

	// Hostname of the gateway instance, exported with every record
	// when set.
	Hostname string
}

// NewProcess returns a process context started now.
func NewProcess(hostname string) Process {
	return Process{Start: time.Now(), Hostname: hostname}
}

// timestamp converts a time to decimal seconds since the epoch, with
// nanosecond precision.
func timestamp(t time.Time) decimal.Decimal {
	return decimal.New(t.UnixNano(), -9)
}

// timeOf converts decimal seconds since the epoch back to a time.
func timeOf(d decimal.Decimal) time.Time {
	secs := d.Truncate(0)
	nanos := d.Sub(secs).Shift(9).IntPart()
	return time.Unix(secs.IntPart(), nanos).UTC()
}

// FormatTime formats a time the way it is exported.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// microseconds returns the integer number of microseconds in a decimal
// seconds value, as a decimal string.
func microseconds(seconds decimal.Decimal) string {
	return seconds.Shift(6).Truncate(0).String()
}
