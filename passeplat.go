package passeplat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/auth"
	conditionsbuiltin "github.com/passeplat/passeplat/conditions/builtin"
	"github.com/passeplat/passeplat/configdir"
	"github.com/passeplat/passeplat/definitions"
	"github.com/passeplat/passeplat/hostmatch"
	"github.com/passeplat/passeplat/logging"
	"github.com/passeplat/passeplat/logsink"
	"github.com/passeplat/passeplat/logsink/elastic"
	"github.com/passeplat/passeplat/logsink/memory"
	"github.com/passeplat/passeplat/logsink/sqlite"
	"github.com/passeplat/passeplat/metrics"
	"github.com/passeplat/passeplat/openapi"
	"github.com/passeplat/passeplat/pipeline"
	"github.com/passeplat/passeplat/proxy"
	"github.com/passeplat/passeplat/recorder"
	"github.com/passeplat/passeplat/scheme"
	"github.com/passeplat/passeplat/scheme/ftpscheme"
	"github.com/passeplat/passeplat/scheme/httpscheme"
	tasksbuiltin "github.com/passeplat/passeplat/tasks/builtin"
	"github.com/passeplat/passeplat/webservice"
)

const (
	DefaultAddress            = ":8080"
	DefaultSupportListener    = ":9911"
	DefaultDestinationTimeout = 30 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultReadHeaderTimeout  = 60 * time.Second
)

// Log sink types.
const (
	MemorySink  = "memory"
	ElasticSink = "elastic"
	SQLiteSink  = "sqlite"
)

// Options to start the gateway.
type Options struct {

	// Network address that the gateway listens on.
	Address string

	// Network address of the support endpoints, /metrics and
	// /healthz. When empty, no support listener is started.
	SupportListener string

	// ConfigDir is the root of the configuration directory, with the
	// global and the users subdirectories.
	ConfigDir string

	// WatchConfigDir reloads the configuration when the files of the
	// configuration directory change.
	WatchConfigDir bool

	// ConfigDebounce is the quiet period before a reload.
	ConfigDebounce time.Duration

	// MaxBodySize limits the bytes of the bodies stored for the
	// analysis. Defaults to analyzable.DefaultMaxBodySize.
	MaxBodySize int

	// DestinationTimeout bounds the exchange with the destination.
	// Defaults to DefaultDestinationTimeout, negative means no
	// deadline.
	DestinationTimeout time.Duration

	// FTPTimeout bounds the connection to the ftp destinations.
	FTPTimeout time.Duration

	// FTPDisableEPSV forces the PASV command on ftp data connections.
	FTPDisableEPSV bool

	// HostCacheSize is the number of the host classifications kept.
	HostCacheSize int

	// Insecure skips the TLS verification of the destinations.
	Insecure bool

	// LogSink is one of memory, elastic or sqlite. Defaults to
	// memory.
	LogSink string

	ElasticURLs     []string
	ElasticUsername string
	ElasticPassword string

	// ElasticSniff enables the discovery of the cluster nodes.
	ElasticSniff bool

	// LogIndex and LogErrorsIndex name the indices of the
	// transaction and the error records.
	LogIndex       string
	LogErrorsIndex string

	SQLitePath          string
	SQLiteRetention     time.Duration
	SQLitePruneSchedule string

	// SinkBreakerFailures is the number of the consecutive sink
	// failures that open the circuit breaker.
	SinkBreakerFailures int

	// SinkBreakerTimeout is how long the open breaker rejects the
	// sink calls.
	SinkBreakerTimeout time.Duration

	// SinkRetries of the sink writes. Negative disables retries.
	SinkRetries int

	// SinkRetryInterval is the initial backoff interval of the
	// retries.
	SinkRetryInterval time.Duration

	// DisableExecutionTrace leaves the execution trace out from the
	// records.
	DisableExecutionTrace bool

	// OpenAPIValidatorURL is the endpoint of the external validator
	// used by the openapi task and condition.
	OpenAPIValidatorURL string

	// Hostname of the instance, exported with the records. Defaults
	// to os.Hostname.
	Hostname string

	// Prefix of the metrics. It is the namespace of the Prometheus
	// metrics, and the key prefix of the CodaHale ones.
	MetricsPrefix string

	// MetricsFlavours selects the metrics backends, prometheus and
	// codahale. Defaults to prometheus.
	MetricsFlavours []string

	// MetricsUseExpDecaySample selects an exponentially decaying
	// sample for the CodaHale timers.
	MetricsUseExpDecaySample bool

	// EnableRuntimeMetrics registers the Go runtime collectors.
	EnableRuntimeMetrics bool

	// Prefix for application log entries.
	ApplicationLogPrefix string

	// Output for the application log entries, when nil, the
	// ApplicationLogFile or os.Stderr is used.
	ApplicationLogOutput io.Writer

	// ApplicationLogFile is the path of the application log. The file
	// is opened in append mode.
	ApplicationLogFile string

	// ApplicationLogLevel, e.g. INFO or DEBUG.
	ApplicationLogLevel string

	// ApplicationLogJSONEnabled switches the application log to JSON.
	ApplicationLogJSONEnabled bool

	// Output for the access log entries, when nil, the AccessLogFile
	// or os.Stderr is used.
	AccessLogOutput io.Writer

	// AccessLogFile is the path of the access log. The file is opened
	// in append mode.
	AccessLogFile string

	// When set, no access log is printed.
	AccessLogDisabled bool

	// When set, the access log is printed in JSON format.
	AccessLogJSONEnabled bool
}

// Gateway contains the wired components of a running gateway.
type Gateway struct {
	options  Options
	metrics  metrics.Metrics
	sink     logsink.Sink
	recorder *recorder.Recorder
	engine   *pipeline.Engine
	proxy    *proxy.Proxy
	schemes  *scheme.Registry
	http     *httpscheme.Processor
	reloadMu sync.Mutex
}

func newSink(o Options, m metrics.Metrics) (logsink.Sink, error) {
	var (
		s   logsink.Sink
		err error
	)

	name := strings.ToLower(o.LogSink)
	switch name {
	case "", MemorySink:
		name = MemorySink
		s = memory.New()
	case ElasticSink:
		s, err = elastic.New(elastic.Options{
			URLs:     o.ElasticURLs,
			Username: o.ElasticUsername,
			Password: o.ElasticPassword,
			Sniff:    o.ElasticSniff,
		})
	case SQLiteSink:
		s, err = sqlite.New(sqlite.Options{
			Path:          o.SQLitePath,
			Retention:     o.SQLiteRetention,
			PruneSchedule: o.SQLitePruneSchedule,
		})
	default:
		return nil, fmt.Errorf("invalid log sink: %s", o.LogSink)
	}

	if err != nil {
		return nil, err
	}

	return logsink.NewResilient(s, logsink.ResilientOptions{
		Name:          name,
		Failures:      o.SinkBreakerFailures,
		Timeout:       o.SinkBreakerTimeout,
		Retries:       o.SinkRetries,
		RetryInterval: o.SinkRetryInterval,
		Metrics:       m,
	}), nil
}

func newValidator(o Options) (openapi.Validator, error) {
	if o.OpenAPIValidatorURL == "" {
		return nil, nil
	}

	return openapi.NewRemote(openapi.RemoteOptions{URL: o.OpenAPIValidatorURL})
}

// loadRuntime reads the configuration directory and creates the
// components derived from it.
func loadRuntime(o Options, engine *pipeline.Engine) (proxy.Runtime, error) {
	d, err := definitions.Load(o.ConfigDir)
	if err != nil {
		return proxy.Runtime{}, err
	}

	matcher, err := hostmatch.New(d.TrustedHosts, hostmatch.Options{CacheSize: o.HostCacheSize})
	if err != nil {
		return proxy.Runtime{}, err
	}

	rt := proxy.Runtime{
		Authenticator: auth.New(auth.NewMapRepository(d.Users), matcher),
		Resolver:      webservice.NewResolver(d, matcher),
		Pipelines:     engine,
	}

	if !d.TrustedHosts.Empty() {
		rt.Hosts = matcher
	}

	return rt, nil
}

func logOutput(w io.Writer, path string) (io.Writer, error) {
	if w != nil || path == "" {
		return w, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return f, nil
}

// New initializes logging, and creates the components of the gateway
// from the options. The returned gateway is not serving yet.
func New(o Options) (*Gateway, error) {
	appLog, err := logOutput(o.ApplicationLogOutput, o.ApplicationLogFile)
	if err != nil {
		return nil, err
	}

	accessLog, err := logOutput(o.AccessLogOutput, o.AccessLogFile)
	if err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogOutput:      appLog,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
		AccessLogOutput:           accessLog,
		AccessLogDisabled:         o.AccessLogDisabled,
		AccessLogJSONEnabled:      o.AccessLogJSONEnabled,
	}); err != nil {
		return nil, err
	}

	if o.ConfigDir == "" {
		return nil, errors.New("missing config directory")
	}

	if o.DestinationTimeout == 0 {
		o.DestinationTimeout = DefaultDestinationTimeout
	} else if o.DestinationTimeout < 0 {
		o.DestinationTimeout = 0
	}

	if o.Hostname == "" {
		o.Hostname, _ = os.Hostname()
	}

	m, err := metrics.New(metrics.Options{
		Prefix:               o.MetricsPrefix,
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
		Flavours:             o.MetricsFlavours,
		UseExpDecaySample:    o.MetricsUseExpDecaySample,
	})

	if err != nil {
		return nil, err
	}

	validator, err := newValidator(o)
	if err != nil {
		return nil, err
	}

	sink, err := newSink(o, m)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		options: o,
		metrics: m,
		sink:    sink,
		recorder: recorder.New(recorder.Options{
			Sink:         sink,
			Index:        o.LogIndex,
			ErrorsIndex:  o.LogErrorsIndex,
			DisableTrace: o.DisableExecutionTrace,
		}),
		engine: pipeline.NewEngine(pipeline.Options{
			Tasks: tasksbuiltin.MakeRegistry(tasksbuiltin.Options{
				Sink:      sink,
				Index:     o.LogIndex,
				Validator: validator,
			}),
			Conditions: conditionsbuiltin.MakeRegistry(validator),
			Metrics:    m,
		}),
		http: httpscheme.New(httpscheme.Options{Insecure: o.Insecure, Metrics: m}),
	}

	g.schemes = scheme.NewRegistry()
	g.schemes.Register(
		g.http,
		ftpscheme.New(ftpscheme.Options{Timeout: o.FTPTimeout, DisableEPSV: o.FTPDisableEPSV, Metrics: m}),
	)

	rt, err := loadRuntime(o, g.engine)
	if err != nil {
		sink.Close()
		return nil, err
	}

	g.proxy, err = proxy.New(proxy.Params{
		Runtime:           rt,
		Schemes:           g.schemes,
		Recorder:          g.recorder,
		Process:           analyzable.NewProcess(o.Hostname),
		MaxBodySize:       o.MaxBodySize,
		Timeout:           o.DestinationTimeout,
		AccessLogDisabled: o.AccessLogDisabled,
		Metrics:           m,
	})

	if err != nil {
		sink.Close()
		return nil, err
	}

	return g, nil
}

// Handler returns the handler of the gateway requests.
func (g *Gateway) Handler() http.Handler { return g.proxy }

// SupportHandler returns the handler of the support endpoints.
func (g *Gateway) SupportHandler() http.Handler {
	return metrics.NewSupportHandler(g.metrics, nil)
}

// Reload reads the configuration directory again, and replaces the
// runtime of the proxy. On failure, the previous configuration stays
// active.
func (g *Gateway) Reload() error {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	rt, err := loadRuntime(g.options, g.engine)
	if err != nil {
		return err
	}

	g.engine.Reset()
	return g.proxy.Update(rt)
}

// Close waits for the pending records and releases the sink.
func (g *Gateway) Close() error {
	g.recorder.Wait()
	g.http.Close()
	return g.sink.Close()
}

func listen(name string, s *http.Server, errs chan<- error) {
	log.Infof("%s listening on %s", name, s.Addr)
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		errs <- fmt.Errorf("%s: %w", name, err)
	}
}

// Serve starts the listeners, and blocks until the context is done or a
// listener fails. The servers are shut down gracefully.
func (g *Gateway) Serve(ctx context.Context) error {
	o := g.options
	if o.Address == "" {
		o.Address = DefaultAddress
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	servers := []*http.Server{{
		Addr:              o.Address,
		Handler:           g.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}}

	go listen("gateway", servers[0], errs)
	if o.SupportListener != "" {
		s := &http.Server{
			Addr:              o.SupportListener,
			Handler:           g.SupportHandler(),
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		}

		servers = append(servers, s)
		go listen("support", s, errs)
	}

	if o.WatchConfigDir {
		w, err := configdir.NewWatcher(configdir.WatcherOptions{
			Root:     o.ConfigDir,
			Debounce: o.ConfigDebounce,
		})

		if err != nil {
			return err
		}

		defer w.Close()
		go func() {
			if err := w.Watch(ctx, g.Reload); err != nil {
				log.Errorf("config watcher stopped: %v", err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()
	for _, s := range servers {
		if serr := s.Shutdown(shutdownCtx); serr != nil {
			log.Errorf("error during shutdown: %v", serr)
		}
	}

	return err
}

// Run starts the gateway with the options, and serves until SIGINT or
// SIGTERM is received.
func Run(o Options) error {
	g, err := New(o)
	if err != nil {
		return err
	}

	defer func() {
		if err := g.Close(); err != nil {
			log.Errorf("failed to close the log sink: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return g.Serve(ctx)
}
