/*
Package httpscheme implements the processor of the http and https
destinations.

The destination request is built from the destination request of the
analyzable content, so the tasks of the request preparation phase can
change its header. The response is streamed to the initiator while it
is captured, unless a task registered a body transform, in which case
the whole body is received before it is transformed and emitted. Bodies
larger than the body cap are never buffered; they are streamed without
the transforms.

Compressed response bodies are forwarded unchanged, and decoded only for
the analysis, up to the body cap.
*/
package httpscheme

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/metrics"
	"github.com/passeplat/passeplat/scheme"
	"github.com/passeplat/passeplat/tasks"
)

const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultIdleConnsPerHost      = 64
	DefaultIdleConnTimeout       = 90 * time.Second
)

// Options of the processor.
type Options struct {

	// DialTimeout bounds the connection to the destination.
	DialTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for the response header
	// after the request was sent.
	ResponseHeaderTimeout time.Duration

	IdleConnsPerHost int
	IdleConnTimeout  time.Duration

	// Insecure skips the TLS verification of the destinations.
	Insecure bool

	// Transport overrides the default transport.
	Transport http.RoundTripper

	Metrics metrics.Metrics
}

// Processor forwards the transactions to http and https destinations.
type Processor struct {
	transport http.RoundTripper
	metrics   metrics.Metrics
}

func New(o Options) *Processor {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}

	if o.ResponseHeaderTimeout <= 0 {
		o.ResponseHeaderTimeout = DefaultResponseHeaderTimeout
	}

	if o.IdleConnsPerHost <= 0 {
		o.IdleConnsPerHost = DefaultIdleConnsPerHost
	}

	if o.IdleConnTimeout <= 0 {
		o.IdleConnTimeout = DefaultIdleConnTimeout
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	if o.Transport == nil {
		o.Transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   o.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   o.DialTimeout,
			ResponseHeaderTimeout: o.ResponseHeaderTimeout,
			MaxIdleConnsPerHost:   o.IdleConnsPerHost,
			IdleConnTimeout:       o.IdleConnTimeout,
			DisableCompression:    true,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: o.Insecure},
		}
	}

	return &Processor{transport: o.Transport, metrics: o.Metrics}
}

func (p *Processor) Schemes() []string { return []string{"http", "https"} }

// Close releases the idle connections.
func (p *Processor) Close() {
	if t, ok := p.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

func transition(tx *scheme.Transaction, s scheme.State) {
	if err := tx.Transition(s); err != nil {
		log.Debugf("transaction %s: %v", tx.Content.ID(), err)
	}
}

func (p *Processor) newRequest(tx *scheme.Transaction) (*http.Request, error) {
	c := tx.Content
	dr := c.DestinationRequest
	uri := dr.URI()
	if uri == "" {
		uri = tx.Destination().String()
	}

	trace := &httptrace.ClientTrace{
		GotConn:      func(httptrace.GotConnInfo) { transition(tx, scheme.SendingRequest) },
		WroteRequest: func(httptrace.WroteRequestInfo) { transition(tx, scheme.AwaitingResponse) },
		GotFirstResponseByte: func() {
			if !c.Timing.Has(analyzable.StartedReceiving) {
				c.Timing.Mark(analyzable.StartedReceiving)
			}
		},
	}

	ctx := httptrace.WithClientTrace(tx.Context(), trace)
	req, err := http.NewRequestWithContext(ctx, dr.Method(), uri, tx.RequestBody())
	if err != nil {
		return nil, err
	}

	req.Header = dr.Header.ToHTTP()
	scheme.RemoveHopHeaders(req.Header)
	if h := req.Header.Get("Host"); h != "" {
		req.Host = h
		req.Header.Del("Host")
	}

	req.ContentLength = tx.Request.ContentLength
	if req.ContentLength == 0 {
		req.Body = http.NoBody
	}

	return req, nil
}

func (p *Processor) Process(tx *scheme.Transaction) {
	c := tx.Content
	schemeName := strings.ToLower(tx.Destination().Scheme)
	transition(tx, scheme.Connecting)
	req, err := p.newRequest(tx)
	if err != nil {
		tx.Fail(err)
		return
	}

	start := time.Now()
	c.Timing.Mark(analyzable.Start)
	rsp, err := p.transport.RoundTrip(req)
	p.metrics.MeasureBackend(schemeName, start)
	if err != nil {
		p.metrics.IncBackendReachFailures(schemeName)
		tx.Fail(err)
		return
	}

	defer rsp.Body.Close()
	if !c.Timing.Has(analyzable.StartedReceiving) {
		c.Timing.Mark(analyzable.StartedReceiving)
	}

	transition(tx, scheme.ReceivingBody)
	h := rsp.Header.Clone()
	scheme.RemoveHopHeaders(h)
	r := c.Response()
	r.SetStatusCode(rsp.StatusCode)
	r.Header.FromHTTP(h)
	c.WebService.SetStatus(analyzable.ClassifyHTTPStatus(rsp.StatusCode))
	tx.RunPhase(tasks.StartedReceiving)

	if len(c.Response().BodyTransforms()) > 0 {
		err = p.buffered(tx, rsp.Body)
	} else {
		err = p.stream(tx, rsp.Body)
	}

	if err != nil {
		p.metrics.IncBackendReachFailures(schemeName)
		tx.Fail(err)
		return
	}

	tx.Complete()
}

func addRuntimeError(c *analyzable.Content, err error) {
	c.Errors.Add(analyzable.LoggableError{
		Type:    analyzable.RuntimeError,
		Source:  "httpscheme",
		Message: err.Error(),
	})
}

// decodeCaptured replaces the captured compressed body with its decoded
// form, for analysis. Decoding stops at the body cap.
func decodeCaptured(r *analyzable.ResponseInfo) error {
	enc := r.Header.Get("Content-Encoding")
	if enc == "" || !r.Body.IsAnalyzable() {
		return nil
	}

	decoded, truncated, err := analyzable.DecodeBody(enc, r.Body.Bytes(), r.Body.Cap())
	if err != nil {
		return err
	}

	r.Body.SetDecoded(decoded, truncated)
	return nil
}

// stream copies the body to the initiator while capturing it.
func (p *Processor) stream(tx *scheme.Transaction, body io.Reader) error {
	c := tx.Content
	r := c.Response()
	tx.WriteHeader()
	_, err := scheme.CopyStream(tx.Writer, io.TeeReader(body, r.Body))
	c.Timing.Mark(analyzable.Stop)
	if err != nil {
		return err
	}

	if err := decodeCaptured(r); err != nil {
		addRuntimeError(c, err)
	}

	return nil
}

// buffered receives the complete body, and emits it after the body
// transforms were applied. Bodies that don't fit the cap, compressed or
// decoded, are sent untransformed.
func (p *Processor) buffered(tx *scheme.Transaction, body io.Reader) error {
	c := tx.Content
	r := c.Response()
	b, complete, err := scheme.ReceiveBuffered(tx, body, "httpscheme")
	c.Timing.Mark(analyzable.Stop)
	if err != nil || !complete {
		return err
	}

	r.Body.Write(b)
	err = decodeCaptured(r)
	if err == nil && !r.Body.IsAnalyzable() {
		err = fmt.Errorf("decoded body larger than %d bytes, transforms skipped", r.Body.Cap())
	}

	if err != nil {
		addRuntimeError(c, err)
		tx.WriteHeader()
		_, err = tx.Writer.Write(b)
		return err
	}

	return scheme.EmitBuffered(tx, r.Body.Bytes())
}
