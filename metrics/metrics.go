/*
Package metrics implements the collection of the performance metrics of
the gateway.

The collected metrics include the duration of the pipeline phases and of
every single task, the failures of the tasks and the conditions, the time
spent waiting for the destinations and the reach failures by scheme, the
total serving time by web service, the outcome of the authentication, the
size of the host classification cache and the failures of the log sink.

The metrics are exposed on the support listener under /metrics, in the
Prometheus format, in the CodaHale JSON format, or in both, depending on
the configured flavours. With both flavours, the clients select the
CodaHale format with the Accept: application/codahale+json header.
*/
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Keys used by the metrics mock and the custom metrics.
const (
	KeyPhase           = "phase.%s"
	KeyTask            = "task.%s.%s"
	KeyTaskFailure     = "task.%s.failure"
	KeyConditionFailed = "condition.%s.failure"
	KeyBackend         = "backend.%s"
	KeyBackendFailure  = "backend.%s.failure"
	KeyServe           = "serve.%s.%s.%d"
	KeyAuth            = "auth.%s"
	KeyHostCache       = "hostcache.size"
	KeySinkFailure     = "sink.%s.failure"
)

// Metrics flavours.
const (
	PrometheusKind = "prometheus"
	CodaHaleKind   = "codahale"
)

// Authentication outcomes.
const (
	AuthSuccess      = "success"
	AuthUnknownHost  = "unknown_host"
	AuthNoUser       = "no_user"
	AuthError        = "error"
	AuthUnrestricted = "unrestricted"
)

// Metrics is the common interface of the metrics implementations.
type Metrics interface {
	MeasurePhase(phase string, start time.Time)
	MeasureTask(task, phase string, start time.Time)
	IncTaskFailures(task string)
	IncConditionFailures(condition string)
	MeasureBackend(scheme string, start time.Time)
	IncBackendReachFailures(scheme string)
	MeasureServe(webService, method string, code int, start time.Time)
	IncAuth(outcome string)
	UpdateHostCacheSize(n int)
	IncSinkFailures(operation string)
	Handler() http.Handler
}

// Options for initializing metrics collection.
type Options struct {

	// Prefix is used as the namespace of the Prometheus metrics.
	// Defaults to "passeplat".
	Prefix string

	// If set, the Go runtime and process collectors are registered.
	EnableRuntimeMetrics bool

	// HistogramBuckets of the duration histograms. Defaults to the
	// Prometheus default buckets.
	HistogramBuckets []float64

	// Registry to register the collectors with. A new one is created
	// when not set.
	Registry *prometheus.Registry

	// Flavours lists the metrics backends, prometheus and codahale.
	// Defaults to prometheus.
	Flavours []string

	// UseExpDecaySample selects an exponentially decaying sample for
	// the CodaHale timers instead of a uniform one.
	UseExpDecaySample bool
}

// New creates the metrics backend selected by the flavours of the
// options.
func New(o Options) (Metrics, error) {
	var prom, coda bool
	for _, f := range o.Flavours {
		switch f {
		case PrometheusKind:
			prom = true
		case CodaHaleKind:
			coda = true
		default:
			return nil, fmt.Errorf("invalid metrics flavour: %s", f)
		}
	}

	switch {
	case prom && coda:
		return NewAll(o), nil
	case coda:
		return NewCodaHale(o), nil
	default:
		return NewPrometheus(o), nil
	}
}

type void struct{}

// Void discards all the measurements.
var Void Metrics = void{}

func (void) MeasurePhase(string, time.Time)              {}
func (void) MeasureTask(string, string, time.Time)       {}
func (void) IncTaskFailures(string)                      {}
func (void) IncConditionFailures(string)                 {}
func (void) MeasureBackend(string, time.Time)            {}
func (void) IncBackendReachFailures(string)              {}
func (void) MeasureServe(string, string, int, time.Time) {}
func (void) IncAuth(string)                              {}
func (void) UpdateHostCacheSize(int)                     {}
func (void) IncSinkFailures(string)                      {}
func (void) Handler() http.Handler                       { return http.NotFoundHandler() }
