package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
)

const (
	statsRefreshDuration = 5 * time.Second

	defaultUniformReservoirSize  = 1024
	defaultExpDecayReservoirSize = 1028
	defaultExpDecayAlpha         = 0.015
)

// Families of the CodaHale JSON document.
const (
	familyGauges     = "gauges"
	familyCounters   = "counters"
	familyHistograms = "histograms"
	familyTimers     = "timers"
	familyUnknown    = "unknown"
)

var percentiles = []float64{0.5, 0.75, 0.95, 0.99, 0.999}

// CodaHale collects the gateway metrics in a go-metrics registry, and
// serves them in the JSON format of DropWizard's CodaHale metrics.
type CodaHale struct {
	reg      metrics.Registry
	newTimer func() metrics.Timer
	options  Options
	handler  http.Handler
}

// NewCodaHale returns a new CodaHale backend of metrics.
func NewCodaHale(o Options) *CodaHale {
	sample := newUniformSample
	if o.UseExpDecaySample {
		sample = newExpDecaySample
	}

	c := &CodaHale{
		reg:      metrics.NewRegistry(),
		newTimer: func() metrics.Timer { return createTimer(sample()) },
		options:  o,
	}

	if o.EnableRuntimeMetrics {
		metrics.RegisterRuntimeMemStats(c.reg)
		go metrics.CaptureRuntimeMemStats(c.reg, statsRefreshDuration)
	}

	return c
}

func (c *CodaHale) measureSince(key string, start time.Time) {
	c.reg.GetOrRegister(key, c.newTimer).(metrics.Timer).UpdateSince(start)
}

func (c *CodaHale) inc(key string) {
	c.reg.GetOrRegister(key, metrics.NewCounter).(metrics.Counter).Inc(1)
}

func (c *CodaHale) MeasurePhase(phase string, start time.Time) {
	c.measureSince(fmt.Sprintf(KeyPhase, phase), start)
}

func (c *CodaHale) MeasureTask(task, phase string, start time.Time) {
	c.measureSince(fmt.Sprintf(KeyTask, task, phase), start)
}

func (c *CodaHale) IncTaskFailures(task string) {
	c.inc(fmt.Sprintf(KeyTaskFailure, task))
}

func (c *CodaHale) IncConditionFailures(condition string) {
	c.inc(fmt.Sprintf(KeyConditionFailed, condition))
}

func (c *CodaHale) MeasureBackend(scheme string, start time.Time) {
	c.measureSince(fmt.Sprintf(KeyBackend, scheme), start)
}

func (c *CodaHale) IncBackendReachFailures(scheme string) {
	c.inc(fmt.Sprintf(KeyBackendFailure, scheme))
}

func (c *CodaHale) MeasureServe(webService, method string, code int, start time.Time) {
	c.measureSince(fmt.Sprintf(KeyServe, webService, measuredMethod(method), code), start)
}

func (c *CodaHale) IncAuth(outcome string) {
	c.inc(fmt.Sprintf(KeyAuth, outcome))
}

func (c *CodaHale) UpdateHostCacheSize(n int) {
	c.reg.GetOrRegister(KeyHostCache, metrics.NewGaugeFloat64).(metrics.GaugeFloat64).Update(float64(n))
}

func (c *CodaHale) IncSinkFailures(operation string) {
	c.inc(fmt.Sprintf(KeySinkFailure, operation))
}

// Handler serves the metrics in JSON. The last path segment of the
// request, when it is not "metrics", selects the metrics by key prefix,
// e.g. /metrics/task.alter.
func (c *CodaHale) Handler() http.Handler {
	if c.handler == nil {
		c.handler = &codaHaleMetricsHandler{registry: c.reg, prefix: c.options.Prefix}
	}

	return c.handler
}

type codaHaleMetricsHandler struct {
	registry metrics.Registry
	prefix   string
}

func (h *codaHaleMetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	p := strings.Trim(r.URL.Path, "/")
	key := p[strings.LastIndex(p, "/")+1:]
	if key == "metrics" {
		key = ""
	}

	selected := filterMetrics(h.registry, h.prefix, key)
	if len(selected) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(selected)
}

// filterMetrics selects the metric registered exactly under key, or all
// the metrics whose name starts with key. The returned names carry the
// prefix.
func filterMetrics(reg metrics.Registry, prefix, key string) gatewayMetrics {
	selected := make(gatewayMetrics)
	name := strings.TrimPrefix(key, prefix)
	if m := reg.Get(name); m != nil {
		selected[key] = m
		return selected
	}

	reg.Each(func(n string, m interface{}) {
		if strings.HasPrefix(n, name) {
			selected[prefix+n] = m
		}
	})

	return selected
}

// distribution is implemented by the snapshots of the histograms and the
// timers.
type distribution interface {
	Count() int64
	Min() int64
	Max() int64
	Mean() float64
	StdDev() float64
	Percentiles([]float64) []float64
}

func distributionValues(d distribution) map[string]interface{} {
	ps := d.Percentiles(percentiles)
	return map[string]interface{}{
		"count":  d.Count(),
		"min":    d.Min(),
		"max":    d.Max(),
		"mean":   d.Mean(),
		"stddev": d.StdDev(),
		"median": ps[0],
		"75%":    ps[1],
		"95%":    ps[2],
		"99%":    ps[3],
		"99.9%":  ps[4],
	}
}

type gatewayMetrics map[string]interface{}

// MarshalJSON groups the metrics by family.
func (gm gatewayMetrics) MarshalJSON() ([]byte, error) {
	data := make(map[string]map[string]interface{})
	for name, metric := range gm {
		var (
			family string
			values map[string]interface{}
		)

		switch m := metric.(type) {
		case metrics.Gauge:
			family, values = familyGauges, map[string]interface{}{"value": m.Value()}
		case metrics.GaugeFloat64:
			family, values = familyGauges, map[string]interface{}{"value": m.Snapshot().Value()}
		case metrics.Counter:
			family, values = familyCounters, map[string]interface{}{"count": m.Snapshot().Count()}
		case metrics.Histogram:
			family, values = familyHistograms, distributionValues(m.Snapshot())
		case metrics.Timer:
			t := m.Snapshot()
			family, values = familyTimers, distributionValues(t)
			values["1m.rate"] = t.Rate1()
			values["5m.rate"] = t.Rate5()
			values["15m.rate"] = t.Rate15()
			values["mean.rate"] = t.RateMean()
		default:
			family, values = familyUnknown, map[string]interface{}{"error": fmt.Sprintf("unknown metrics type %T", m)}
		}

		if data[family] == nil {
			data[family] = make(map[string]interface{})
		}

		data[family][name] = values
	}

	return json.Marshal(data)
}
