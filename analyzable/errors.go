package analyzable

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrorType classifies a loggable error.
type ErrorType string

const (
	ValidationError    ErrorType = "validation"
	RuntimeError       ErrorType = "runtime"
	TaskFailure        ErrorType = "task"
	ConditionFailure   ErrorType = "condition"
	DestinationFailure ErrorType = "destination"
)

var validErrorTypes = map[ErrorType]bool{
	ValidationError:    true,
	RuntimeError:       true,
	TaskFailure:        true,
	ConditionFailure:   true,
	DestinationFailure: true,
}

// ErrInvalidLoggableError is returned when an error entry doesn't match
// the schema of the error records.
var ErrInvalidLoggableError = errors.New("invalid loggable error")

// LoggableError is a structured error collected during a transaction.
type LoggableError struct {
	Type    ErrorType              `json:"type"`
	Source  string                 `json:"source,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Time    time.Time              `json:"-"`
}

func (e LoggableError) validate() error {
	if !validErrorTypes[e.Type] {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidLoggableError, e.Type)
	}

	if e.Message == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidLoggableError)
	}

	if e.Details != nil {
		if _, err := json.Marshal(e.Details); err != nil {
			return fmt.Errorf("%w: details: %v", ErrInvalidLoggableError, err)
		}
	}

	return nil
}

// LoggableErrors is the list of the structured errors of a transaction.
type LoggableErrors struct {
	mu     sync.Mutex
	errors []LoggableError
	now    func() time.Time
}

func NewLoggableErrors(now func() time.Time) *LoggableErrors {
	if now == nil {
		now = time.Now
	}

	return &LoggableErrors{now: now}
}

// Add validates and appends an error. Invalid entries are rejected.
func (le *LoggableErrors) Add(e LoggableError) error {
	if err := e.validate(); err != nil {
		return err
	}

	if e.Time.IsZero() {
		e.Time = le.now()
	}

	le.mu.Lock()
	defer le.mu.Unlock()
	le.errors = append(le.errors, e)
	return nil
}

// List returns a copy of the collected errors.
func (le *LoggableErrors) List() []LoggableError {
	le.mu.Lock()
	defer le.mu.Unlock()
	return append([]LoggableError(nil), le.errors...)
}

func (le *LoggableErrors) Len() int {
	le.mu.Lock()
	defer le.mu.Unlock()
	return len(le.errors)
}

// Records returns the errors as flat records referencing the record of
// the transaction.
func (le *LoggableErrors) Records(parentID string) []map[string]interface{} {
	list := le.List()
	records := make([]map[string]interface{}, 0, len(list))
	for _, e := range list {
		r := map[string]interface{}{
			"parent_id":     parentID,
			"error_type":    string(e.Type),
			"error_source":  e.Source,
			"error_message": e.Message,
			"error_time":    FormatTime(e.Time),
		}

		if e.Details != nil {
			if b, err := json.Marshal(e.Details); err == nil {
				r["error_details"] = string(b)
			}
		}

		records = append(records, r)
	}

	return records
}

func (le *LoggableErrors) ComponentName() string { return "LoggableErrors" }
func (le *LoggableErrors) Children() []Component { return nil }

func (le *LoggableErrors) DataToLog() map[string]interface{} {
	return map[string]interface{}{"errors_count": le.Len()}
}
