/*
Package history implements the tasks that replay earlier responses of a
web service from the log sink:

	cache     before forwarding the request, replays the latest
	          successful response with the same destination, web service
	          and method within the configured window, and stops the
	          request
	fallback  when the destination can't be reached, replays the latest
	          successful response, optionally within a window

Options:

	window:  how old the replayed response can be, e.g. 1h. Required by
	         the cache task.
	methods: the request methods to handle. The cache task defaults to
	         GET and HEAD, the fallback task handles all methods.

The replayed responses are marked with a diagnostic header. Concurrent
identical searches are collapsed into a single sink query. Responses
that were truncated when they were logged are not replayed, and neither
are the responses constructed by the gateway: earlier replays and
stopped requests. This way the window always bounds the age of the
response received from the destination.
*/
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/logsink"
	"github.com/passeplat/passeplat/tasks"
)

const (
	CacheName    = "cache"
	FallbackName = "fallback"

	CacheHeader    = "X-Cached-By-Passeplat"
	FallbackHeader = "X-Fallback-By-Passeplat"

	// ServedFrom is the execution info key holding the name of the task
	// that replayed the response.
	ServedFrom = analyzable.ServedFromHistory

	DefaultIndex = logsink.DefaultIndex
)

var defaultCacheMethods = []string{"GET", "HEAD"}

// Options of the history task specs.
type Options struct {
	Sink logsink.Sink

	// Index searched for the records. Defaults to DefaultIndex.
	Index string

	// Now overrides the clock, for testing.
	Now func() time.Time
}

type options struct {
	Window  tasks.Duration `json:"window"`
	Methods []string       `json:"methods"`
}

type spec struct {
	name           string
	phase          tasks.Phase
	header         string
	stop           bool
	requireWindow  bool
	defaultMethods []string
	options        Options
	group          *singleflight.Group
}

type task struct {
	spec    *spec
	window  time.Duration
	methods map[string]bool
}

func newSpec(s *spec, o Options) *spec {
	if o.Index == "" {
		o.Index = DefaultIndex
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	s.options = o
	s.group = &singleflight.Group{}
	return s
}

// NewCache creates the cache task.
func NewCache(o Options) tasks.Spec {
	return newSpec(&spec{
		name:           CacheName,
		phase:          tasks.DestinationRequestPreparation,
		header:         CacheHeader,
		stop:           true,
		requireWindow:  true,
		defaultMethods: defaultCacheMethods,
	}, o)
}

// NewFallback creates the fallback task.
func NewFallback(o Options) tasks.Spec {
	return newSpec(&spec{
		name:   FallbackName,
		phase:  tasks.DestinationReachFailure,
		header: FallbackHeader,
	}, o)
}

func (s *spec) Name() string          { return s.name }
func (s *spec) Version() int          { return 1 }
func (s *spec) Phases() []tasks.Phase { return []tasks.Phase{s.phase} }

func (s *spec) CreateTask(o tasks.Options) (tasks.Task, error) {
	if s.options.Sink == nil {
		return nil, &tasks.MissingParameterError{Source: s.name, Parameter: "log sink"}
	}

	var opts options
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if s.requireWindow && opts.Window == 0 {
		return nil, &tasks.MissingParameterError{Source: s.name, Parameter: "window"}
	}

	if len(opts.Methods) == 0 {
		opts.Methods = s.defaultMethods
	}

	t := &task{spec: s, window: opts.Window.Duration()}
	if len(opts.Methods) > 0 {
		t.methods = make(map[string]bool)
		for _, m := range opts.Methods {
			t.methods[strings.ToUpper(m)] = true
		}
	}

	return t, nil
}

func (t *task) query(destination, wsid, method string) logsink.Query {
	q := logsink.Query{
		Terms: map[string]string{
			"destination_url": destination,
			"passeplat_wsid":  wsid,
			"http_method":     method,
		},
		StatusFrom: 200,
		StatusTo:   299,
		Exclude:    []string{analyzable.StopRequestField, analyzable.ServedFromHistoryField},
		Size:       1,
	}

	if t.window > 0 {
		q.Since = t.spec.options.Now().Add(-t.window)
	}

	return q
}

func (t *task) Execute(ctx *tasks.Context, _ tasks.Phase) error {
	c := ctx.Content
	method := c.Request.Method()
	if t.methods != nil && !t.methods[method] {
		return nil
	}

	destination := c.DestinationURL()
	if destination == "" {
		return nil
	}

	q := t.query(destination, c.WebService.ID(), method)
	key := fmt.Sprintf("%s|%s|%s|%s|%d", t.spec.options.Index, destination, c.WebService.ID(), method, t.window)
	// the search is shared with the collapsed callers, so it must not
	// fail when the first initiator goes away
	sctx := context.WithoutCancel(ctx.Context())
	v, err, _ := t.spec.group.Do(key, func() (interface{}, error) {
		return t.spec.options.Sink.Search(sctx, t.spec.options.Index, q)
	})

	if err != nil {
		return fmt.Errorf("failed to search the history: %w", err)
	}

	hits := v.([]logsink.Hit)
	if len(hits) == 0 {
		c.Trace(map[string]interface{}{"task": t.spec.name, "history": "no match"})
		return nil
	}

	r, err := t.replay(c, hits[0].Record)
	if err != nil {
		return fmt.Errorf("failed to replay record %s: %w", hits[0].ID, err)
	}

	if r == nil {
		c.Trace(map[string]interface{}{"task": t.spec.name, "history": "not replayable", "record": hits[0].ID})
		return nil
	}

	c.SetResponse(r)
	c.SetServedFromHistory(t.spec.name)
	c.Trace(map[string]interface{}{"task": t.spec.name, "history": "replayed", "record": hits[0].ID})
	if t.spec.stop {
		c.WebService.SetStatus(analyzable.ClassifyHTTPStatus(r.StatusCode()))
		c.StopRequest()
	}

	return nil
}

var replayedHeaderExclusions = map[string]bool{
	"content-length":    true,
	"content-encoding":  true,
	"transfer-encoding": true,
	"connection":        true,
}

// replay constructs a response from a record. It returns nil when the
// logged body was truncated.
func (t *task) replay(c *analyzable.Content, rec logsink.Record) (*analyzable.ResponseInfo, error) {
	if v, ok := rec[analyzable.DestinationResponsePrefix+"_body_analyzable"].(bool); ok && !v {
		return nil, nil
	}

	code, ok := rec.Int(logsink.StatusField)
	if !ok {
		return nil, fmt.Errorf("missing status code")
	}

	var fields []analyzable.Field
	if h := rec.String(analyzable.DestinationResponsePrefix + "_headers"); h != "" {
		if err := json.Unmarshal([]byte(h), &fields); err != nil {
			return nil, fmt.Errorf("invalid headers: %w", err)
		}
	}

	body := rec.String(analyzable.DestinationResponsePrefix + "_body")
	r := c.NewResponse()
	r.SetStatusCode(code)
	for _, f := range fields {
		if !replayedHeaderExclusions[strings.ToLower(f.Key)] {
			r.Header.Add(f.Key, f.Value)
		}
	}

	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
	r.Header.Set(t.spec.header, "1")
	r.Body.Write([]byte(body))
	return r, nil
}
