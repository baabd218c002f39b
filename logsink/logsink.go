/*
Package logsink defines the log sink that stores the records of the
transactions, and that the history tasks search for earlier responses.

Implementations:

	memory   in-process, for tests and single instance setups
	elastic  Elasticsearch, using the olivere client
	sqlite   local sqlite database with retention pruning

Any implementation can be wrapped with NewResilient, that adds retries
and a circuit breaker, so that a failing sink doesn't slow down the
transactions.
*/
package logsink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Well known record fields.
const (
	// TimeField holds the time of the record in ISO-8601 format.
	TimeField = "timestamp"

	// StatusField holds the status code of the destination response.
	StatusField = "destination_response_http_status_code"

	// ParentField references the transaction record from the error
	// records.
	ParentField = "parent_id"
)

// Default indices of the transaction and the error records.
const (
	DefaultIndex       = "passeplat-log"
	DefaultErrorsIndex = "passeplat-errors"
)

// ResultCreated is the result of a successful LogItem.
const ResultCreated = "created"

// ErrClosed is returned by the sinks after Close.
var ErrClosed = errors.New("sink closed")

// Record is a flat record of a transaction, or of an error.
type Record map[string]interface{}

// ItemResult is returned by LogItem.
type ItemResult struct {
	ID     string
	Result string
}

// Query selects records. Results are ordered by time, newest first.
type Query struct {

	// Terms are matched exactly against the string fields.
	Terms map[string]string

	// StatusFrom and StatusTo bound the status code field, inclusive.
	// Zero means unbounded.
	StatusFrom, StatusTo int

	// Since excludes the records older than it, when set.
	Since time.Time

	// Exclude lists boolean fields. The records where any of them is
	// true don't match.
	Exclude []string

	// Size limits the number of results. Defaults to 1.
	Size int
}

// Hit is a search result.
type Hit struct {
	ID     string
	Record Record
}

// Sink stores and searches records.
type Sink interface {
	LogItem(ctx context.Context, index string, r Record) (ItemResult, error)
	LogBulk(ctx context.Context, index string, r []Record) error
	Search(ctx context.Context, index string, q Query) ([]Hit, error)
	Close() error
}

// Limit returns the size of the query with the default applied.
func (q Query) Limit() int {
	if q.Size <= 0 {
		return 1
	}

	return q.Size
}

// Match tells whether a record satisfies the query. It is used by the
// sinks that filter in process.
func (q Query) Match(r Record) bool {
	for k, v := range q.Terms {
		if s, ok := r[k].(string); !ok || s != v {
			return false
		}
	}

	for _, k := range q.Exclude {
		if b, ok := r[k].(bool); ok && b {
			return false
		}
	}

	if q.StatusFrom != 0 || q.StatusTo != 0 {
		code, ok := r.Int(StatusField)
		if !ok || q.StatusFrom != 0 && code < q.StatusFrom || q.StatusTo != 0 && code > q.StatusTo {
			return false
		}
	}

	if !q.Since.IsZero() {
		t, ok := r.Time()
		if !ok || t.Before(q.Since) {
			return false
		}
	}

	return true
}

// Time returns the time of the record.
func (r Record) Time() (time.Time, bool) {
	s, ok := r[TimeField].(string)
	if !ok {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

// Int returns a numeric field of the record. Records decoded from JSON
// carry float64 numbers.
func (r Record) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	default:
		return 0, false
	}
}

// String returns a field of the record as string.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
