/*
Package alter implements the alter task, that masks sensitive header
and body values in the logged data of the transactions.

The task runs after the response was emitted, so it changes only what
gets logged, never what the client or the destination receives.

Options:

	headers:          header names to mask, "*" masks all
	headerExclusions: header names never masked
	bodyFields:       JSON object keys to mask at any depth, "*" masks all
	bodyExclusions:   JSON object keys never masked
	targets:          initiator_request, destination_request and/or
	                  destination_response, all when empty

Values are replaced by a mask of '*' characters of the same length.
Bodies that are not valid JSON or that were truncated are masked
entirely when any body field is configured.
*/
package alter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
)

const (
	Name = "alter"
	all  = "*"
)

type options struct {
	Headers          []string `json:"headers"`
	HeaderExclusions []string `json:"headerExclusions"`
	BodyFields       []string `json:"bodyFields"`
	BodyExclusions   []string `json:"bodyExclusions"`
	Targets          []string `json:"targets"`
}

type nameSet map[string]bool

func newNameSet(names []string) nameSet {
	s := make(nameSet)
	for _, n := range names {
		s[strings.ToLower(n)] = true
	}

	return s
}

func (s nameSet) has(name string) bool { return s[strings.ToLower(name)] }

type spec struct{}

type task struct {
	headers, headerExclusions nameSet
	fields, fieldExclusions   nameSet
	targets                   nameSet
}

func NewAlter() tasks.Spec { return spec{} }

func (spec) Name() string          { return Name }
func (spec) Version() int          { return 1 }
func (spec) Phases() []tasks.Phase { return []tasks.Phase{tasks.EmittedResponse} }

var validTargets = []string{
	analyzable.InitiatorRequestPrefix,
	analyzable.DestinationRequestPrefix,
	analyzable.DestinationResponsePrefix,
}

func (spec) CreateTask(o tasks.Options) (tasks.Task, error) {
	var opts options
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if len(opts.Headers) == 0 && len(opts.BodyFields) == 0 {
		return nil, &tasks.MissingParameterError{Source: Name, Parameter: "headers or bodyFields"}
	}

	if len(opts.Targets) == 0 {
		opts.Targets = validTargets
	}

	targets := newNameSet(opts.Targets)
	for t := range targets {
		if !newNameSet(validTargets).has(t) {
			return nil, fmt.Errorf("%w: invalid target %s", tasks.ErrInvalidOptions, t)
		}
	}

	return &task{
		headers:          newNameSet(opts.Headers),
		headerExclusions: newNameSet(opts.HeaderExclusions),
		fields:           newNameSet(opts.BodyFields),
		fieldExclusions:  newNameSet(opts.BodyExclusions),
		targets:          targets,
	}, nil
}

func mask(s string) string { return strings.Repeat("*", len(s)) }

func (t *task) maskHeader(f analyzable.Field) string {
	if t.headerExclusions.has(f.Key) || !t.headers.has(all) && !t.headers.has(f.Key) {
		return f.Value
	}

	return mask(f.Value)
}

func (t *task) maskValue(v interface{}, force bool) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		for k, vi := range vv {
			if t.fieldExclusions.has(k) {
				continue
			}

			vv[k] = t.maskValue(vi, force || t.fields.has(all) || t.fields.has(k))
		}

		return vv
	case []interface{}:
		for i, vi := range vv {
			vv[i] = t.maskValue(vi, force)
		}

		return vv
	case nil:
		return nil
	default:
		if !force {
			return v
		}

		return mask(fmt.Sprint(v))
	}
}

func maskAll(b []byte) []byte { return bytes.Repeat([]byte("*"), len(b)) }

func (t *task) maskBody(b *analyzable.Body) {
	if len(t.fields) == 0 || b.Len() == 0 {
		return
	}

	if !b.IsAnalyzable() {
		b.Mask(maskAll)
		return
	}

	d := json.NewDecoder(bytes.NewReader(b.Bytes()))
	d.UseNumber()
	var v interface{}
	if err := d.Decode(&v); err != nil {
		b.Mask(maskAll)
		return
	}

	masked, err := json.Marshal(t.maskValue(v, t.fields.has(all)))
	if err != nil {
		b.Mask(maskAll)
		return
	}

	b.Mask(func([]byte) []byte { return masked })
}

func (t *task) alter(h *analyzable.Header, b *analyzable.Body) {
	if len(t.headers) > 0 {
		h.Map(t.maskHeader)
	}

	t.maskBody(b)
}

func (t *task) Execute(ctx *tasks.Context, _ tasks.Phase) error {
	c := ctx.Content
	if t.targets.has(analyzable.InitiatorRequestPrefix) {
		t.alter(c.Request.Header, c.Request.Body)
	}

	if t.targets.has(analyzable.DestinationRequestPrefix) {
		t.alter(c.DestinationRequest.Header, c.DestinationRequest.Body)
	}

	if t.targets.has(analyzable.DestinationResponsePrefix) {
		r := c.Response()
		t.alter(r.Header, r.Body)
	}

	return nil
}
