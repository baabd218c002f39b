/*
Package recorder exports the analyzable content of the transactions to
the log sink.

Every transaction is written as a single flat record, containing the
fields of all the components of the content and the collected execution
trace. The loggable errors of the transaction are written in bulk to the
errors index, referencing the transaction record by its id.

The failures of the sink never reach the initiator: they are logged and
counted.
*/
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/logsink"
)

const (
	// TraceField holds the JSON encoded execution trace.
	TraceField = "execution_trace"

	DefaultTimeout = 30 * time.Second
)

// Options of the recorder.
type Options struct {
	Sink logsink.Sink

	// Index of the transaction records, defaults to
	// logsink.DefaultIndex.
	Index string

	// ErrorsIndex of the error records, defaults to
	// logsink.DefaultErrorsIndex.
	ErrorsIndex string

	// Timeout bounds the asynchronous recording of a transaction.
	Timeout time.Duration

	// DisableTrace leaves the execution trace out from the records.
	DisableTrace bool
}

// Recorder writes the transactions to the sink.
type Recorder struct {
	options Options
	wg      sync.WaitGroup
}

func New(o Options) *Recorder {
	if o.Index == "" {
		o.Index = logsink.DefaultIndex
	}

	if o.ErrorsIndex == "" {
		o.ErrorsIndex = logsink.DefaultErrorsIndex
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	return &Recorder{options: o}
}

// Build returns the flat record of a transaction.
func (r *Recorder) Build(c *analyzable.Content) logsink.Record {
	rec := logsink.Record(analyzable.DataToLog(c))
	if t, ok := c.Timing.Time(analyzable.Init); ok {
		rec[logsink.TimeField] = analyzable.FormatTime(t)
	}

	if !r.options.DisableTrace {
		trace := analyzable.CollectExported(c, c.Process())
		if b, err := json.Marshal(trace); err == nil {
			rec[TraceField] = string(b)
		} else {
			log.Debugf("transaction %s: failed to encode the execution trace: %v", c.ID(), err)
		}
	}

	return rec
}

// Record writes the transaction record, and then its error records.
func (r *Recorder) Record(ctx context.Context, c *analyzable.Content) (string, error) {
	res, err := r.options.Sink.LogItem(ctx, r.options.Index, r.Build(c))
	if err != nil {
		return "", fmt.Errorf("failed to record transaction %s: %w", c.ID(), err)
	}

	if res.Result != logsink.ResultCreated {
		log.Warnf("transaction %s recorded with result %q", c.ID(), res.Result)
	}

	if c.Errors.Len() == 0 {
		return res.ID, nil
	}

	records := c.Errors.Records(res.ID)
	bulk := make([]logsink.Record, len(records))
	for i, er := range records {
		bulk[i] = logsink.Record(er)
	}

	if err := r.options.Sink.LogBulk(ctx, r.options.ErrorsIndex, bulk); err != nil {
		return res.ID, fmt.Errorf("failed to record the errors of transaction %s: %w", c.ID(), err)
	}

	return res.ID, nil
}

// RecordAsync records the transaction in the background. The failures
// are logged.
func (r *Recorder) RecordAsync(c *analyzable.Content) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.options.Timeout)
		defer cancel()
		if _, err := r.Record(ctx, c); err != nil {
			log.Errorf("recorder: %v", err)
		}
	}()
}

// Wait blocks until the pending asynchronous records are written.
func (r *Recorder) Wait() { r.wg.Wait() }
