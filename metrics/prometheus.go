package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace         = "passeplat"
	promPipelineSubsystem = "pipeline"
	promTaskSubsystem     = "task"
	promConditionSubsys   = "condition"
	promBackendSubsystem  = "backend"
	promServeSubsystem    = "serve"
	promAuthSubsystem     = "auth"
	promHostSubsystem     = "host"
	promSinkSubsystem     = "sink"
)

// Prometheus implements the prometheus metrics backend.
type Prometheus struct {
	phaseM            *prometheus.HistogramVec
	taskM             *prometheus.HistogramVec
	taskFailuresM     *prometheus.CounterVec
	conditionFailures *prometheus.CounterVec
	backendM          *prometheus.HistogramVec
	backendFailuresM  *prometheus.CounterVec
	serveM            *prometheus.HistogramVec
	serveCounterM     *prometheus.CounterVec
	authM             *prometheus.CounterVec
	hostCacheM        prometheus.Gauge
	sinkFailuresM     *prometheus.CounterVec

	opts     Options
	registry *prometheus.Registry
	handler  http.Handler
}

// NewPrometheus returns a new Prometheus metric backend.
func NewPrometheus(opts Options) *Prometheus {
	namespace := promNamespace
	if opts.Prefix != "" {
		namespace = strings.TrimSuffix(opts.Prefix, ".")
	}

	if len(opts.HistogramBuckets) == 0 {
		opts.HistogramBuckets = prometheus.DefBuckets
	}

	phase := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promPipelineSubsystem,
		Name:      "phase_duration_seconds",
		Help:      "Duration in seconds of running the tasks of a pipeline phase.",
		Buckets:   opts.HistogramBuckets,
	}, []string{"phase"})

	task := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promTaskSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration in seconds of a task execution.",
		Buckets:   opts.HistogramBuckets,
	}, []string{"task", "phase"})

	taskFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promTaskSubsystem,
		Name:      "error_total",
		Help:      "The total of failed task executions.",
	}, []string{"task"})

	conditionFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promConditionSubsys,
		Name:      "error_total",
		Help:      "The total of failed condition evaluations.",
	}, []string{"condition"})

	backend := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promBackendSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration in seconds of a destination call.",
		Buckets:   opts.HistogramBuckets,
	}, []string{"scheme"})

	backendFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promBackendSubsystem,
		Name:      "error_total",
		Help:      "Total number of unreachable destinations.",
	}, []string{"scheme"})

	serve := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "webservice_duration_seconds",
		Help:      "Duration in seconds of serving a web service.",
		Buckets:   opts.HistogramBuckets,
	}, []string{"webservice", "method", "code"})

	serveCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "webservice_count",
		Help:      "Total number of requests of serving a web service.",
	}, []string{"webservice", "method", "code"})

	auth := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promAuthSubsystem,
		Name:      "total",
		Help:      "Total number of authentications by outcome.",
	}, []string{"outcome"})

	hostCache := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: promHostSubsystem,
		Name:      "cache_size",
		Help:      "Number of cached host classifications.",
	})

	sinkFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promSinkSubsystem,
		Name:      "error_total",
		Help:      "Total number of failed log sink operations.",
	}, []string{"operation"})

	p := &Prometheus{
		phaseM:            phase,
		taskM:             task,
		taskFailuresM:     taskFailures,
		conditionFailures: conditionFailures,
		backendM:          backend,
		backendFailuresM:  backendFailures,
		serveM:            serve,
		serveCounterM:     serveCounter,
		authM:             auth,
		hostCacheM:        hostCache,
		sinkFailuresM:     sinkFailures,
		registry:          opts.Registry,
		opts:              opts,
	}

	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
	}

	p.registerMetrics()
	return p
}

// sinceS returns the seconds passed since the start time until now.
func (p *Prometheus) sinceS(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func (p *Prometheus) registerMetrics() {
	p.registry.MustRegister(p.phaseM)
	p.registry.MustRegister(p.taskM)
	p.registry.MustRegister(p.taskFailuresM)
	p.registry.MustRegister(p.conditionFailures)
	p.registry.MustRegister(p.backendM)
	p.registry.MustRegister(p.backendFailuresM)
	p.registry.MustRegister(p.serveM)
	p.registry.MustRegister(p.serveCounterM)
	p.registry.MustRegister(p.authM)
	p.registry.MustRegister(p.hostCacheM)
	p.registry.MustRegister(p.sinkFailuresM)

	if p.opts.EnableRuntimeMetrics {
		p.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		p.registry.MustRegister(collectors.NewGoCollector())
	}
}

// Handler satisfies Metrics interface.
func (p *Prometheus) Handler() http.Handler {
	if p.handler == nil {
		p.handler = promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
	}

	return p.handler
}

// MeasurePhase satisfies Metrics interface.
func (p *Prometheus) MeasurePhase(phase string, start time.Time) {
	p.phaseM.WithLabelValues(phase).Observe(p.sinceS(start))
}

// MeasureTask satisfies Metrics interface.
func (p *Prometheus) MeasureTask(task, phase string, start time.Time) {
	p.taskM.WithLabelValues(task, phase).Observe(p.sinceS(start))
}

// IncTaskFailures satisfies Metrics interface.
func (p *Prometheus) IncTaskFailures(task string) {
	p.taskFailuresM.WithLabelValues(task).Inc()
}

// IncConditionFailures satisfies Metrics interface.
func (p *Prometheus) IncConditionFailures(condition string) {
	p.conditionFailures.WithLabelValues(condition).Inc()
}

// MeasureBackend satisfies Metrics interface.
func (p *Prometheus) MeasureBackend(scheme string, start time.Time) {
	p.backendM.WithLabelValues(scheme).Observe(p.sinceS(start))
}

// IncBackendReachFailures satisfies Metrics interface.
func (p *Prometheus) IncBackendReachFailures(scheme string) {
	p.backendFailuresM.WithLabelValues(scheme).Inc()
}

// MeasureServe satisfies Metrics interface.
func (p *Prometheus) MeasureServe(webService, method string, code int, start time.Time) {
	method = measuredMethod(method)
	c := strconv.Itoa(code)
	p.serveM.WithLabelValues(webService, method, c).Observe(p.sinceS(start))
	p.serveCounterM.WithLabelValues(webService, method, c).Inc()
}

// IncAuth satisfies Metrics interface.
func (p *Prometheus) IncAuth(outcome string) {
	p.authM.WithLabelValues(outcome).Inc()
}

// UpdateHostCacheSize satisfies Metrics interface.
func (p *Prometheus) UpdateHostCacheSize(n int) {
	p.hostCacheM.Set(float64(n))
}

// IncSinkFailures satisfies Metrics interface.
func (p *Prometheus) IncSinkFailures(operation string) {
	p.sinkFailuresM.WithLabelValues(operation).Inc()
}
