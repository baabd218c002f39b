package metrics

import (
	"net/http"
	"time"
)

// CodaHaleContentType, when accepted by the client, selects the
// CodaHale JSON format on the handler of All.
const CodaHaleContentType = "application/codahale+json"

// All reports every measurement to both the Prometheus and the CodaHale
// backends.
type All struct {
	prometheus *Prometheus
	codaHale   *CodaHale
	handler    http.Handler
}

func NewAll(o Options) *All {
	return &All{
		prometheus: NewPrometheus(o),
		codaHale:   NewCodaHale(o),
	}
}

func (a *All) MeasurePhase(phase string, start time.Time) {
	a.prometheus.MeasurePhase(phase, start)
	a.codaHale.MeasurePhase(phase, start)
}

func (a *All) MeasureTask(task, phase string, start time.Time) {
	a.prometheus.MeasureTask(task, phase, start)
	a.codaHale.MeasureTask(task, phase, start)
}

func (a *All) IncTaskFailures(task string) {
	a.prometheus.IncTaskFailures(task)
	a.codaHale.IncTaskFailures(task)
}

func (a *All) IncConditionFailures(condition string) {
	a.prometheus.IncConditionFailures(condition)
	a.codaHale.IncConditionFailures(condition)
}

func (a *All) MeasureBackend(scheme string, start time.Time) {
	a.prometheus.MeasureBackend(scheme, start)
	a.codaHale.MeasureBackend(scheme, start)
}

func (a *All) IncBackendReachFailures(scheme string) {
	a.prometheus.IncBackendReachFailures(scheme)
	a.codaHale.IncBackendReachFailures(scheme)
}

func (a *All) MeasureServe(webService, method string, code int, start time.Time) {
	a.prometheus.MeasureServe(webService, method, code, start)
	a.codaHale.MeasureServe(webService, method, code, start)
}

func (a *All) IncAuth(outcome string) {
	a.prometheus.IncAuth(outcome)
	a.codaHale.IncAuth(outcome)
}

func (a *All) UpdateHostCacheSize(n int) {
	a.prometheus.UpdateHostCacheSize(n)
	a.codaHale.UpdateHostCacheSize(n)
}

func (a *All) IncSinkFailures(operation string) {
	a.prometheus.IncSinkFailures(operation)
	a.codaHale.IncSinkFailures(operation)
}

func (a *All) Handler() http.Handler {
	if a.handler != nil {
		return a.handler
	}

	prometheusHandler := a.prometheus.Handler()
	codaHaleHandler := a.codaHale.Handler()
	a.handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Accept") == CodaHaleContentType {
			codaHaleHandler.ServeHTTP(w, req)
		} else {
			prometheusHandler.ServeHTTP(w, req)
		}
	})

	return a.handler
}
