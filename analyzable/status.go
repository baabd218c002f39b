package analyzable

import "sync"

// StatusClass classifies the outcome of the destination call.
type StatusClass string

const (
	StatusNone         StatusClass = ""
	Status1XX          StatusClass = "1XX"
	Status2XX          StatusClass = "2XX"
	Status3XX          StatusClass = "3XX"
	Status4XX          StatusClass = "4XX"
	Status5XX          StatusClass = "5XX"
	StatusOK           StatusClass = "OK"
	StatusNotReachable StatusClass = "NOT_REACHABLE"
	StatusStopped      StatusClass = "STOPPED"
)

// ClassifyHTTPStatus returns the bucket of an HTTP status code.
func ClassifyHTTPStatus(code int) StatusClass {
	switch {
	case code >= 100 && code < 200:
		return Status1XX
	case code >= 200 && code < 300:
		return Status2XX
	case code >= 300 && code < 400:
		return Status3XX
	case code >= 400 && code < 500:
		return Status4XX
	case code >= 500 && code < 600:
		return Status5XX
	default:
		return StatusNone
	}
}

// WebServiceStatus references the resolved web service and the
// classification of the destination call.
type WebServiceStatus struct {
	mu      sync.Mutex
	id      string
	name    string
	scope   string
	unnamed bool
	status  StatusClass
	trace   *ExecutionTrace
}

func newWebServiceStatus(trace *ExecutionTrace) *WebServiceStatus {
	return &WebServiceStatus{unnamed: true, trace: trace}
}

// SetWebService records the resolved web service.
func (s *WebServiceStatus) SetWebService(id, name, scope string, unnamed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.name, s.scope, s.unnamed = id, name, scope, unnamed
}

// SetStatus sets the status classification.
func (s *WebServiceStatus) SetStatus(c StatusClass) {
	s.mu.Lock()
	s.status = c
	s.mu.Unlock()
	s.trace.Add(map[string]string{"status": string(c)})
}

func (s *WebServiceStatus) Status() StatusClass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *WebServiceStatus) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *WebServiceStatus) Unnamed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unnamed
}

func (s *WebServiceStatus) ExecutionTrace() *ExecutionTrace { return s.trace }
func (s *WebServiceStatus) ComponentName() string           { return "WebServiceStatus" }
func (s *WebServiceStatus) Children() []Component           { return nil }

func (s *WebServiceStatus) DataToLog() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"passeplat_wsid":      s.id,
		"web_service_name":    s.name,
		"web_service_scope":   s.scope,
		"web_service_unnamed": s.unnamed,
		"web_service_status":  string(s.status),
	}
}
