package logsink

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/passeplat/passeplat/metrics"
)

const (
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultRetries         = 2
	DefaultRetryInterval   = 100 * time.Millisecond
)

// Operations reported to the sink failure metrics.
const (
	OperationItem   = "item"
	OperationBulk   = "bulk"
	OperationSearch = "search"
)

// ResilientOptions configures the wrapper created by NewResilient.
type ResilientOptions struct {

	// Name of the sink in the logs.
	Name string

	// Failures is the number of consecutive failures that open the
	// circuit breaker. Defaults to DefaultBreakerFailures.
	Failures int

	// Timeout is how long the breaker stays open before it lets a
	// probing call through. Defaults to DefaultBreakerTimeout.
	Timeout time.Duration

	// Retries of the writes. Searches are not retried, they are
	// on the path of the transactions. Negative means no retries.
	// Defaults to DefaultRetries.
	Retries int

	// RetryInterval is the initial interval of the exponential backoff.
	// Defaults to DefaultRetryInterval.
	RetryInterval time.Duration

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics
}

// Resilient wraps a sink with retries and a circuit breaker.
type Resilient struct {
	sink    Sink
	options ResilientOptions
	breaker *gobreaker.CircuitBreaker
}

// NewResilient wraps s.
func NewResilient(s Sink, o ResilientOptions) *Resilient {
	if o.Failures <= 0 {
		o.Failures = DefaultBreakerFailures
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultBreakerTimeout
	}

	if o.Retries == 0 {
		o.Retries = DefaultRetries
	} else if o.Retries < 0 {
		o.Retries = 0
	}

	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	r := &Resilient{sink: s, options: o}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        o.Name,
		MaxRequests: 1,
		Timeout:     o.Timeout,
		ReadyToTrip: r.readyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infof("circuit breaker of log sink %v went from %v to %v", name, from.String(), to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return r
}

func (r *Resilient) readyToTrip(c gobreaker.Counts) bool {
	return int(c.ConsecutiveFailures) >= r.options.Failures
}

// State returns the state of the circuit breaker.
func (r *Resilient) State() gobreaker.State { return r.breaker.State() }

func (r *Resilient) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.options.RetryInterval
	return b
}

func execute[T any](ctx context.Context, r *Resilient, op string, retry bool, f func() (T, error)) (T, error) {
	call := func() (T, error) {
		v, err := r.breaker.Execute(func() (interface{}, error) { return f() })
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			var zero T
			return zero, backoff.Permanent(err)
		}

		if err != nil {
			var zero T
			return zero, err
		}

		return v.(T), nil
	}

	tries := uint(1)
	if retry {
		tries += uint(r.options.Retries)
	}

	v, err := backoff.Retry(ctx, call, backoff.WithBackOff(r.backOff()), backoff.WithMaxTries(tries))
	if err != nil {
		r.options.Metrics.IncSinkFailures(op)
	}

	return v, err
}

func (r *Resilient) LogItem(ctx context.Context, index string, rec Record) (ItemResult, error) {
	return execute(ctx, r, OperationItem, true, func() (ItemResult, error) {
		return r.sink.LogItem(ctx, index, rec)
	})
}

func (r *Resilient) LogBulk(ctx context.Context, index string, recs []Record) error {
	_, err := execute(ctx, r, OperationBulk, true, func() (struct{}, error) {
		return struct{}{}, r.sink.LogBulk(ctx, index, recs)
	})

	return err
}

func (r *Resilient) Search(ctx context.Context, index string, q Query) ([]Hit, error) {
	return execute(ctx, r, OperationSearch, false, func() ([]Hit, error) {
		return r.sink.Search(ctx, index, q)
	})
}

func (r *Resilient) Close() error { return r.sink.Close() }
