package scheme

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/webservice"
)

// PhaseRunner executes the tasks of a phase.
type PhaseRunner interface {
	RunPhase(*tasks.Context, tasks.Phase)
}

// Options of a transaction.
type Options struct {

	// Request received from the initiator.
	Request *http.Request

	// Writer of the response to the initiator.
	Writer http.ResponseWriter

	Content     *analyzable.Content
	WebService  *webservice.WebService
	Destination *url.URL

	// Pipeline of the web service. Optional.
	Pipeline PhaseRunner

	// Timeout bounds the whole exchange with the destination. No
	// deadline when zero.
	Timeout time.Duration
}

// Transaction is the exchange of one initiator request with its
// destination.
type Transaction struct {
	mu            sync.Mutex
	state         State
	headerWritten bool
	ctx           context.Context
	cancel        context.CancelFunc
	pipeline      PhaseRunner
	body          io.Reader

	// Request received from the initiator, bound to the context of the
	// transaction.
	Request *http.Request

	Writer  http.ResponseWriter
	Content *analyzable.Content

	// TaskContext is passed to the tasks of the pipeline.
	TaskContext *tasks.Context
}

// New creates a transaction. It must be closed to release the deadline
// timer.
func New(o Options) *Transaction {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(o.Request.Context(), o.Timeout)
	} else {
		ctx, cancel = context.WithCancel(o.Request.Context())
	}

	r := o.Request.WithContext(ctx)
	tx := &Transaction{
		ctx:      ctx,
		cancel:   cancel,
		pipeline: o.Pipeline,
		Request:  r,
		Writer:   o.Writer,
		Content:  o.Content,
		TaskContext: &tasks.Context{
			Content:     o.Content,
			Request:     r,
			WebService:  o.WebService,
			Destination: o.Destination,
		},
	}

	if o.Destination != nil {
		o.Content.SetDestinationURL(o.Destination.String())
	}

	return tx
}

// Context is canceled when the deadline of the transaction is reached,
// or when the initiator goes away.
func (tx *Transaction) Context() context.Context { return tx.ctx }

func (tx *Transaction) Close() { tx.cancel() }

func (tx *Transaction) Destination() *url.URL { return tx.TaskContext.Destination }

func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Transition moves the transaction to a new state.
func (tx *Transaction) Transition(to State) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := checkTransition(tx.state, to); err != nil {
		return err
	}

	tx.state = to
	tx.Content.Trace(map[string]interface{}{"state": to.String()})
	return nil
}

// RunPhase executes the tasks of the web service bound to phase.
func (tx *Transaction) RunPhase(phase tasks.Phase) {
	if tx.pipeline != nil {
		tx.pipeline.RunPhase(tx.TaskContext, phase)
	}
}

// CaptureRequestBody reads the initiator request body up to the body
// size limit into the analyzable content, so that the tasks of the
// request preparation phase can inspect it. The rest of the body is
// captured while it is forwarded.
func (tx *Transaction) CaptureRequestBody() error {
	rb := tx.Request.Body
	if rb == nil || rb == http.NoBody {
		tx.body = http.NoBody
		return nil
	}

	c := tx.Content
	head, err := io.ReadAll(io.LimitReader(rb, int64(c.MaxBodySize())+1))
	c.Request.Body.Write(head)
	c.DestinationRequest.Body.Write(head)
	if err != nil {
		return fmt.Errorf("failed to read the request body: %w", err)
	}

	tx.body = io.MultiReader(
		bytes.NewReader(head),
		io.TeeReader(rb, io.MultiWriter(c.Request.Body, c.DestinationRequest.Body)),
	)

	return nil
}

// RequestBody returns the body to forward to the destination.
func (tx *Transaction) RequestBody() io.Reader {
	if tx.body == nil {
		return tx.Request.Body
	}

	return tx.body
}

// PrepareDestinationRequest initializes the destination request of the
// content from the initiator request, before the tasks of the request
// preparation phase can change it.
func (tx *Transaction) PrepareDestinationRequest() {
	dr := tx.Content.DestinationRequest
	method := tx.Request.Method
	if method == "" {
		method = "GET"
	}

	var uri string
	if d := tx.Destination(); d != nil {
		uri = d.String()
	}

	dr.Set(method, uri)
	h := tx.Request.Header.Clone()
	RemoveHopHeaders(h)
	dr.Header.FromHTTP(h)
}

// HeaderWritten tells whether the response header was already sent to
// the initiator.
func (tx *Transaction) HeaderWritten() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.headerWritten
}

// WriteHeader sends the status and the header of the content response
// to the initiator, once.
func (tx *Transaction) WriteHeader() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.headerWritten {
		return
	}

	tx.headerWritten = true
	r := tx.Content.Response()
	h := tx.Writer.Header()
	for k, v := range r.Header.ToHTTP() {
		h[k] = v
	}

	code := r.StatusCode()
	if code == 0 {
		code = http.StatusBadGateway
	}

	tx.Writer.WriteHeader(code)
}

// Complete finishes a successful exchange and runs the emittedResponse
// phase.
func (tx *Transaction) Complete() {
	if err := tx.Transition(Complete); err != nil {
		log.Debugf("transaction %s: %v", tx.Content.ID(), err)
		return
	}

	if !tx.Content.Timing.Has(analyzable.Stop) {
		tx.Content.Timing.Mark(analyzable.Stop)
	}

	tx.RunPhase(tasks.EmittedResponse)
}

// Fail finishes an exchange that couldn't reach the destination. It runs
// the destinationReachFailure phase, and when the response header was
// not sent yet, emits the response constructed by its tasks, or a
// synthetic 502 Bad Gateway.
func (tx *Transaction) Fail(err error) {
	c := tx.Content
	if terr := tx.Transition(Failed); terr != nil {
		log.Debugf("transaction %s: %v", c.ID(), terr)
		return
	}

	log.Debugf("transaction %s: destination not reached: %v", c.ID(), err)
	if !c.Timing.Has(analyzable.Stop) {
		c.Timing.Mark(analyzable.Stop)
	}

	c.WebService.SetStatus(analyzable.StatusNotReachable)
	c.Errors.Add(analyzable.LoggableError{
		Type:    analyzable.DestinationFailure,
		Source:  "scheme",
		Message: err.Error(),
		Details: map[string]interface{}{"destination": c.DestinationURL()},
	})

	current := c.Response()
	tx.RunPhase(tasks.DestinationReachFailure)
	if tx.HeaderWritten() {
		return
	}

	if c.Response() != current && c.Response().StatusCode() != 0 {
		if err := Emit(tx); err != nil {
			log.Debugf("transaction %s: failed to emit the response: %v", c.ID(), err)
		}

		return
	}

	SynthesizeFailure(tx, http.StatusBadGateway)
}
