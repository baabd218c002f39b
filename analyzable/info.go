package analyzable

import (
	"net/http"
	"sync"
)

// BodyTransform rewrites a complete response body before it is emitted to
// the client. It may change the header, e.g. the content type.
type BodyTransform func(body []byte, h *Header) ([]byte, error)

// RequestInfo describes a request, either the one received from the
// initiator or the one sent to the destination.
type RequestInfo struct {
	mu     sync.Mutex
	prefix string
	method string
	uri    string
	Header *Header
	Body   *Body
	trace  *ExecutionTrace
}

// NewRequestInfo creates a request component. Its fields and the fields
// of its header and body are prefixed with prefix.
func NewRequestInfo(prefix string, maxBody int, trace *ExecutionTrace) *RequestInfo {
	return &RequestInfo{
		prefix: prefix,
		Header: NewHeader(prefix),
		Body:   NewBody(prefix, maxBody),
		trace:  trace,
	}
}

// SetRequest copies the method, the URI and the header of r. The body is
// not read.
func (ri *RequestInfo) SetRequest(r *http.Request) {
	uri := r.RequestURI
	if uri == "" && r.URL != nil {
		uri = r.URL.String()
	}

	ri.Set(r.Method, uri)
	ri.Header.FromHTTP(r.Header)
}

// Set sets the method and the URI.
func (ri *RequestInfo) Set(method, uri string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.method, ri.uri = method, uri
}

func (ri *RequestInfo) Method() string {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.method
}

func (ri *RequestInfo) URI() string {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.uri
}

func (ri *RequestInfo) ExecutionTrace() *ExecutionTrace { return ri.trace }
func (ri *RequestInfo) ComponentName() string           { return "RequestInfo" }
func (ri *RequestInfo) Children() []Component           { return []Component{ri.Header, ri.Body} }

func (ri *RequestInfo) DataToLog() map[string]interface{} {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return map[string]interface{}{
		ri.prefix + "_method": ri.method,
		ri.prefix + "_uri":    ri.uri,
	}
}

// ResponseInfo describes a response. The destination response is stored
// in one, and tasks can replace it wholesale with one they construct.
type ResponseInfo struct {
	mu         sync.Mutex
	prefix     string
	statusCode int
	transforms []BodyTransform
	Header     *Header
	Body       *Body
	trace      *ExecutionTrace
}

// NewResponseInfo creates a response component.
func NewResponseInfo(prefix string, maxBody int, trace *ExecutionTrace) *ResponseInfo {
	return &ResponseInfo{
		prefix: prefix,
		Header: NewHeader(prefix),
		Body:   NewBody(prefix, maxBody),
		trace:  trace,
	}
}

func (ri *ResponseInfo) SetStatusCode(code int) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.statusCode = code
}

// StatusCode returns the status code, 0 when not set yet.
func (ri *ResponseInfo) StatusCode() int {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.statusCode
}

// AddBodyTransform registers a transformation of the complete body. When
// a response has transforms, the body is buffered before emitting it.
func (ri *ResponseInfo) AddBodyTransform(t BodyTransform) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.transforms = append(ri.transforms, t)
}

func (ri *ResponseInfo) BodyTransforms() []BodyTransform {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return append([]BodyTransform(nil), ri.transforms...)
}

func (ri *ResponseInfo) ExecutionTrace() *ExecutionTrace { return ri.trace }
func (ri *ResponseInfo) ComponentName() string           { return "ResponseInfo" }
func (ri *ResponseInfo) Children() []Component           { return []Component{ri.Header, ri.Body} }

func (ri *ResponseInfo) DataToLog() map[string]interface{} {
	m := make(map[string]interface{})
	if code := ri.StatusCode(); code != 0 {
		m[ri.prefix+"_http_status_code"] = code
	}

	return m
}
