package metricstest

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/passeplat/passeplat/metrics"
)

// MockMetrics records the measurements by the keys defined in the
// metrics package.
type MockMetrics struct {
	mu sync.Mutex

	counters map[string]int64
	gauges   map[string]float64
	measures map[string][]time.Duration
}

func (m *MockMetrics) WithCounters(f func(counters map[string]int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}

	f(m.counters)
}

func (m *MockMetrics) WithMeasures(f func(measures map[string][]time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.measures == nil {
		m.measures = make(map[string][]time.Duration)
	}

	f(m.measures)
}

func (m *MockMetrics) WithGauges(f func(map[string]float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauges == nil {
		m.gauges = make(map[string]float64)
	}

	f(m.gauges)
}

// Counter returns the value of a counter.
func (m *MockMetrics) Counter(key string) (v int64) {
	m.WithCounters(func(c map[string]int64) { v = c[key] })
	return
}

// Measures returns the number of measurements of a key.
func (m *MockMetrics) Measures(key string) (n int) {
	m.WithMeasures(func(ms map[string][]time.Duration) { n = len(ms[key]) })
	return
}

func (m *MockMetrics) measure(key string, start time.Time) {
	m.WithMeasures(func(measures map[string][]time.Duration) {
		measures[key] = append(measures[key], time.Since(start))
	})
}

func (m *MockMetrics) inc(key string) {
	m.WithCounters(func(counters map[string]int64) {
		counters[key]++
	})
}

func (m *MockMetrics) MeasurePhase(phase string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyPhase, phase), start)
}

func (m *MockMetrics) MeasureTask(task, phase string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyTask, task, phase), start)
}

func (m *MockMetrics) IncTaskFailures(task string) {
	m.inc(fmt.Sprintf(metrics.KeyTaskFailure, task))
}

func (m *MockMetrics) IncConditionFailures(condition string) {
	m.inc(fmt.Sprintf(metrics.KeyConditionFailed, condition))
}

func (m *MockMetrics) MeasureBackend(scheme string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyBackend, scheme), start)
}

func (m *MockMetrics) IncBackendReachFailures(scheme string) {
	m.inc(fmt.Sprintf(metrics.KeyBackendFailure, scheme))
}

func (m *MockMetrics) MeasureServe(webService, method string, code int, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyServe, webService, method, code), start)
}

func (m *MockMetrics) IncAuth(outcome string) {
	m.inc(fmt.Sprintf(metrics.KeyAuth, outcome))
}

func (m *MockMetrics) UpdateHostCacheSize(n int) {
	m.WithGauges(func(g map[string]float64) { g[metrics.KeyHostCache] = float64(n) })
}

func (m *MockMetrics) IncSinkFailures(operation string) {
	m.inc(fmt.Sprintf(metrics.KeySinkFailure, operation))
}

func (m *MockMetrics) Handler() http.Handler { return http.NotFoundHandler() }
