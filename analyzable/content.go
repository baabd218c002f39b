package analyzable

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// Prefixes of the message components of a transaction.
const (
	InitiatorRequestPrefix    = "initiator_request"
	DestinationRequestPrefix  = "destination_request"
	DestinationResponsePrefix = "destination_response"
)

// StopRequest is the execution info key that tasks set to prevent the
// request from being forwarded to the destination.
const StopRequest = "stopRequest"

// ServedFromHistory is the execution info key holding the name of the
// task that replayed a logged response instead of the destination's.
const ServedFromHistory = "servedFromHistory"

// Record fields telling that the response was constructed by the gateway.
const (
	StopRequestField       = "stop_request"
	ServedFromHistoryField = "served_from_history"
)

// Component is one node of the content tree.
type Component interface {

	// ComponentName identifies the component in the execution trace.
	ComponentName() string

	// Children returns the nested components, in export order.
	Children() []Component

	// DataToLog returns the fields contributed by the component itself,
	// without the fields of the children.
	DataToLog() map[string]interface{}
}

// Options for creating a Content.
type Options struct {

	// MaxBodySize limits the bytes stored by every body component.
	// Defaults to DefaultMaxBodySize.
	MaxBodySize int

	// ID of the transaction. When empty, a ULID is generated.
	ID string

	// Now overrides the clock, for testing.
	Now func() time.Time
}

// ExecutionInfo holds flags that control the processing of a
// transaction, e.g. StopRequest.
type ExecutionInfo struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func (ei *ExecutionInfo) Set(key string, value interface{}) {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	if ei.values == nil {
		ei.values = make(map[string]interface{})
	}

	ei.values[key] = value
}

func (ei *ExecutionInfo) Get(key string) (interface{}, bool) {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	v, ok := ei.values[key]
	return v, ok
}

// Bool returns the value of key if it is a bool, otherwise false.
func (ei *ExecutionInfo) Bool(key string) bool {
	v, _ := ei.Get(key)
	b, _ := v.(bool)
	return b
}

// Content is the root of the component tree of one transaction.
type Content struct {
	mu              sync.Mutex
	id              string
	process         Process
	maxBody         int
	now             func() time.Time
	userID          string
	destinationURL  string
	response        *ResponseInfo
	extensions      map[string]Component
	extensionsOrder []string
	trace           *ExecutionTrace

	// Request is the request received from the initiator.
	Request *RequestInfo

	// DestinationRequest is the request sent to the destination.
	DestinationRequest *RequestInfo

	Timing        *Timing
	WebService    *WebServiceStatus
	Errors        *LoggableErrors
	ExecutionInfo *ExecutionInfo
}

// New creates the content of a transaction and marks the Init checkpoint.
func New(p Process, o Options) *Content {
	if o.Now == nil {
		o.Now = time.Now
	}

	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}

	now := o.Now()
	if o.ID == "" {
		o.ID = ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	}

	c := &Content{
		id:            o.ID,
		process:       p,
		maxBody:       o.MaxBodySize,
		now:           o.Now,
		trace:         NewExecutionTrace("Content", o.Now),
		Timing:        NewTiming(o.Now),
		Errors:        NewLoggableErrors(o.Now),
		ExecutionInfo: &ExecutionInfo{},
		extensions:    make(map[string]Component),
	}

	c.Request = NewRequestInfo(InitiatorRequestPrefix, c.maxBody, NewExecutionTrace("InitiatorRequest", o.Now))
	c.DestinationRequest = NewRequestInfo(DestinationRequestPrefix, c.maxBody, NewExecutionTrace("DestinationRequest", o.Now))
	c.response = c.NewResponse()
	c.WebService = newWebServiceStatus(NewExecutionTrace("WebServiceStatus", o.Now))
	c.Timing.MarkAt(Init, now)
	return c
}

func (c *Content) ID() string       { return c.id }
func (c *Content) Process() Process { return c.process }
func (c *Content) MaxBodySize() int { return c.maxBody }

// Now returns the current time of the content's clock.
func (c *Content) Now() time.Time { return c.now() }

// NewResponse creates an empty response component that can replace the
// current one.
func (c *Content) NewResponse() *ResponseInfo {
	return NewResponseInfo(DestinationResponsePrefix, c.maxBody, NewExecutionTrace("DestinationResponse", c.now))
}

// Response returns the current response.
func (c *Content) Response() *ResponseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// SetResponse replaces the response wholesale.
func (c *Content) SetResponse(r *ResponseInfo) {
	c.mu.Lock()
	c.response = r
	c.mu.Unlock()
	c.trace.Add("response replaced")
}

func (c *Content) SetUserID(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = uid
}

func (c *Content) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Content) SetDestinationURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destinationURL = u
}

func (c *Content) DestinationURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destinationURL
}

// StopRequest marks the transaction so that the request is not forwarded
// to the destination.
func (c *Content) StopRequest() {
	c.ExecutionInfo.Set(StopRequest, true)
	c.trace.Add(StopRequest)
}

// StopRequested tells whether a task stopped the request.
func (c *Content) StopRequested() bool {
	return c.ExecutionInfo.Bool(StopRequest)
}

// SetServedFromHistory marks the response as replayed by the named task.
func (c *Content) SetServedFromHistory(task string) {
	c.ExecutionInfo.Set(ServedFromHistory, task)
}

// ServedFromHistory returns the name of the task that replayed the
// response, or an empty string.
func (c *Content) ServedFromHistory() string {
	v, _ := c.ExecutionInfo.Get(ServedFromHistory)
	s, _ := v.(string)
	return s
}

// Trace records a diagnostic entry on the root component.
func (c *Content) Trace(details interface{}) { c.trace.Add(details) }

// GetOrCreate returns the extension component registered with tag, or
// creates it with create and registers it.
func (c *Content) GetOrCreate(tag string, create func() Component) Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.extensions[tag]; ok {
		return e
	}

	e := create()
	c.extensions[tag] = e
	c.extensionsOrder = append(c.extensionsOrder, tag)
	return e
}

// Extension returns the extension component registered with tag.
func (c *Content) Extension(tag string) (Component, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.extensions[tag]
	return e, ok
}

func (c *Content) ExecutionTrace() *ExecutionTrace { return c.trace }
func (c *Content) ComponentName() string           { return "Content" }

func (c *Content) Children() []Component {
	children := []Component{
		c.Request,
		c.DestinationRequest,
		c.Response(),
		c.Timing,
		c.WebService,
		c.Errors,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range c.extensionsOrder {
		children = append(children, c.extensions[tag])
	}

	return children
}

func (c *Content) DataToLog() map[string]interface{} {
	m := map[string]interface{}{
		"transaction_id":       c.id,
		"passeplat_uid":        c.UserID(),
		"destination_url":      c.DestinationURL(),
		"http_method":          c.Request.Method(),
		StopRequestField:       c.StopRequested(),
		ServedFromHistoryField: c.ServedFromHistory() != "",
	}

	if c.process.Hostname != "" {
		m["gateway_hostname"] = c.process.Hostname
	}

	return m
}

// DataToLog flattens the tree below root into a single record. The fields
// of the components are merged in depth first order, and later components
// overwrite the fields of earlier ones.
func DataToLog(root Component) map[string]interface{} {
	m := make(map[string]interface{})
	walk(root, func(c Component) {
		for k, v := range c.DataToLog() {
			m[k] = v
		}
	})

	return m
}
