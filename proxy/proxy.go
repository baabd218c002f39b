package proxy

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/auth"
	"github.com/passeplat/passeplat/hostmatch"
	"github.com/passeplat/passeplat/logging"
	"github.com/passeplat/passeplat/metrics"
	"github.com/passeplat/passeplat/pipeline"
	"github.com/passeplat/passeplat/scheme"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/webservice"
)

// Realm is sent in the WWW-Authenticate header of the unauthorized
// responses.
const Realm = "passeplat"

// HostClassifier is implemented by *hostmatch.Matcher.
type HostClassifier interface {
	Classify(host string) hostmatch.Kind
	CacheLen() int
}

// Authenticator is implemented by *auth.Authenticator.
type Authenticator interface {
	Authenticate(*http.Request) (auth.User, bool, error)
}

// Resolver is implemented by *webservice.Resolver.
type Resolver interface {
	Resolve(*http.Request, auth.User) *webservice.WebService
}

// Pipelines is implemented by *pipeline.Engine.
type Pipelines interface {
	Pipeline(*webservice.WebService) *pipeline.Pipeline
}

// Recorder is implemented by *recorder.Recorder.
type Recorder interface {
	RecordAsync(*analyzable.Content)
}

// Runtime contains the components derived from the configuration
// directory. They are replaced together when the configuration is
// reloaded.
type Runtime struct {

	// Hosts, when set, rejects the requests whose host doesn't match
	// any of the trusted host patterns.
	Hosts HostClassifier

	Authenticator Authenticator
	Resolver      Resolver

	// Pipelines is optional. Without it, no tasks are executed.
	Pipelines Pipelines
}

type Params struct {

	// Runtime is the initial runtime. Authenticator and Resolver are
	// required.
	Runtime Runtime

	// Schemes provides the processors of the destination schemes.
	Schemes *scheme.Registry

	// Recorder receives the content of the finished transactions.
	// Optional.
	Recorder Recorder

	// Process is exported with every transaction. Defaults to a
	// process started when the proxy is created.
	Process analyzable.Process

	// MaxBodySize limits the bytes of the bodies stored for the
	// analysis. Defaults to analyzable.DefaultMaxBodySize.
	MaxBodySize int

	// Timeout bounds the exchange with the destination. No deadline
	// when zero.
	Timeout time.Duration

	// When set, no access log is printed.
	AccessLogDisabled bool

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics

	// Log defaults to a logger writing to the application log.
	Log logging.Logger
}

// Proxy is the http.Handler of the gateway.
type Proxy struct {
	params  Params
	runtime atomic.Pointer[Runtime]
	metrics metrics.Metrics
	log     logging.Logger
}

// New creates a proxy.
func New(p Params) (*Proxy, error) {
	if err := validateRuntime(p.Runtime); err != nil {
		return nil, err
	}

	if p.Schemes == nil {
		p.Schemes = scheme.NewRegistry()
	}

	if p.Process.Start.IsZero() {
		p.Process = analyzable.NewProcess(p.Process.Hostname)
	}

	if p.Metrics == nil {
		p.Metrics = metrics.Void
	}

	if p.Log == nil {
		p.Log = logging.New()
	}

	px := &Proxy{params: p, metrics: p.Metrics, log: p.Log}
	rt := p.Runtime
	px.runtime.Store(&rt)
	return px, nil
}

func validateRuntime(rt Runtime) error {
	if rt.Authenticator == nil {
		return fmt.Errorf("invalid runtime: missing authenticator")
	}

	if rt.Resolver == nil {
		return fmt.Errorf("invalid runtime: missing resolver")
	}

	return nil
}

// Update replaces the runtime. The requests in progress finish with
// the previous one.
func (p *Proxy) Update(rt Runtime) error {
	if err := validateRuntime(rt); err != nil {
		return err
	}

	p.runtime.Store(&rt)
	return nil
}

func (p *Proxy) authenticate(ctx *context) *Error {
	ctx.stage = stageAuthentication
	r := ctx.request
	if h := ctx.runtime.Hosts; h != nil {
		kind := h.Classify(r.Host)
		p.metrics.UpdateHostCacheSize(h.CacheLen())
		if kind == hostmatch.Unknown {
			p.metrics.IncAuth(metrics.AuthUnknownHost)
			return &Error{
				Status: http.StatusForbidden,
				Codes:  []int{codeUntrustedHost},
				Err:    fmt.Errorf("untrusted host: %s", r.Host),
			}
		}
	}

	u, ok, err := ctx.runtime.Authenticator.Authenticate(r)
	switch {
	case err != nil:
		p.metrics.IncAuth(metrics.AuthError)
		return &Error{
			Status: http.StatusInternalServerError,
			Codes:  []int{codeAuthentication},
			Err:    err,
		}
	case !ok:
		p.metrics.IncAuth(metrics.AuthNoUser)
		return &Error{
			Status:           http.StatusUnauthorized,
			Codes:            []int{codeUnauthorized},
			additionalHeader: http.Header{"Www-Authenticate": []string{fmt.Sprintf("Basic realm=%q", Realm)}},
		}
	case u.Unrestricted:
		p.metrics.IncAuth(metrics.AuthUnrestricted)
	default:
		p.metrics.IncAuth(metrics.AuthSuccess)
	}

	ctx.user = u
	return nil
}

func (p *Proxy) resolve(ctx *context) {
	ctx.stage = stageResolution
	ws := ctx.runtime.Resolver.Resolve(ctx.request, ctx.user)
	ctx.webService = ws

	c := ctx.content
	c.SetUserID(ctx.user.ID)
	c.WebService.SetWebService(ws.ID, ws.Name, ws.Scope, ws.Unnamed)
	c.Request.SetRequest(ctx.request)
}

func (p *Proxy) pipeline(ctx *context) scheme.PhaseRunner {
	if ctx.runtime.Pipelines == nil {
		return nil
	}

	pl := ctx.runtime.Pipelines.Pipeline(ctx.webService)
	pl.Report(ctx.content)
	return pl
}

// dispatch hands the transaction to the processors of the destination
// scheme, in registration order, until one of them finishes it.
func (p *Proxy) dispatch(ctx *context, tx *scheme.Transaction) {
	ctx.stage = stageDispatch
	d := tx.Destination()
	processors := p.params.Schemes.Dispatch(d.Scheme)
	if len(processors) == 0 {
		tx.Fail(fmt.Errorf("%w: %s", ErrUnsupportedScheme, d.Scheme))
		return
	}

	for _, sp := range processors {
		sp.Process(tx)
		if tx.State().Terminal() {
			return
		}
	}

	tx.Fail(errNotProcessed)
}

// emitStopped sends the response constructed by the tasks that stopped
// the request.
func (p *Proxy) emitStopped(ctx *context, tx *scheme.Transaction) {
	ctx.stage = stageEmit
	c := ctx.content
	c.Trace(map[string]interface{}{"stopped": true})
	if c.WebService.Status() == analyzable.StatusNone {
		c.WebService.SetStatus(analyzable.StatusStopped)
	}

	if err := scheme.Emit(tx); err != nil {
		ctx.log(p).Debugf("failed to emit the response of the stopped request: %v", err)
	}

	tx.Complete()
}

func (p *Proxy) do(ctx *context) *Error {
	if err := p.authenticate(ctx); err != nil {
		return err
	}

	p.resolve(ctx)
	destination, derr := ctx.webService.DestinationURL(ctx.request, ctx.user)

	ctx.stage = stagePreparation
	tx := scheme.New(scheme.Options{
		Request:     ctx.request,
		Writer:      ctx.writer,
		Content:     ctx.content,
		WebService:  ctx.webService,
		Destination: destination,
		Pipeline:    p.pipeline(ctx),
		Timeout:     p.params.Timeout,
	})

	defer tx.Close()
	if err := tx.CaptureRequestBody(); err != nil {
		return &Error{
			Status: http.StatusBadRequest,
			Codes:  []int{codeRequestBody},
			Err:    err,
		}
	}

	tx.PrepareDestinationRequest()
	tx.RunPhase(tasks.DestinationRequestPreparation)
	if ctx.content.StopRequested() {
		p.emitStopped(ctx, tx)
		return nil
	}

	if derr != nil {
		ctx.stage = stageDispatch
		tx.Fail(derr)
		return nil
	}

	p.dispatch(ctx, tx)
	return nil
}

func (p *Proxy) errorResponse(ctx *context, err *Error) {
	switch err.status() {
	case http.StatusUnauthorized, http.StatusForbidden:
		ctx.log(p).Debugf("request rejected: %v", err)
	default:
		ctx.log(p).Errorf("error while serving: %v", err)
	}

	if ctx.writer.Started() {
		return
	}

	sendError(ctx.writer, err)
}

func (p *Proxy) logAccess(ctx *context) {
	if p.params.AccessLogDisabled {
		return
	}

	logging.LogAccess(&logging.AccessEntry{
		Request:       ctx.request,
		StatusCode:    ctx.writer.GetCode(),
		ResponseSize:  ctx.writer.GetBytes(),
		RequestTime:   ctx.startServe,
		Duration:      time.Since(ctx.startServe),
		TransactionID: ctx.content.ID(),
		WebServiceID:  ctx.webServiceID(),
		UserID:        ctx.user.ID,
	})
}

// http.Handler implementation
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lw := logging.NewLoggingWriter(w)
	ctx := &context{
		writer:     lw,
		request:    r,
		runtime:    p.runtime.Load(),
		startServe: time.Now(),
		content: analyzable.New(p.params.Process, analyzable.Options{
			MaxBodySize: p.params.MaxBodySize,
		}),
	}

	defer func() {
		p.logAccess(ctx)
		p.metrics.MeasureServe(ctx.metricsWebService(), r.Method, lw.GetCode(), ctx.startServe)
		if ctx.recordable() && p.params.Recorder != nil {
			p.params.Recorder.RecordAsync(ctx.content)
		}
	}()

	tasks.TryCatch(func() {
		if err := p.do(ctx); err != nil {
			p.errorResponse(ctx, err)
		}
	}, func(err interface{}, stack string) {
		ctx.content.Errors.Add(analyzable.LoggableError{
			Type:    analyzable.RuntimeError,
			Source:  "proxy",
			Message: fmt.Sprint(err),
		})

		perr := &Error{
			Status: http.StatusInternalServerError,
			Codes:  []int{codePanic, ctx.stage},
			Err:    fmt.Errorf("panic: %v", err),
		}

		if stack != "" {
			ctx.log(p).Errorf("panic while serving: %v\n%s", err, stack)
		}

		p.errorResponse(ctx, perr)
	})
}
