/*
Package response implements the conditions that check the response of
the destination, or in case of the jsonBody condition, optionally the
request body:

	status    options: from and to, an inclusive range of status codes,
	          and/or classes, e.g. ["4XX", "5XX"]
	jsonBody  options: path, a gjson path, and optionally value, the
	          expected string value at the path. Without a value, the
	          condition checks that the path exists. The target option
	          selects request or response, defaults to response.

The status condition can be evaluated once the response started to be
received, the jsonBody condition on the response only after it was
emitted. Evaluated earlier, they fail.
*/
package response

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/tasks"
)

const (
	StatusName   = "status"
	JSONBodyName = "jsonBody"
)

var (
	errNoResponse     = errors.New("no response received")
	errBodyIncomplete = errors.New("response body not received yet")
	errBodyTruncated  = errors.New("body truncated")
	errInvalidJSON    = errors.New("body is not valid JSON")
)

var statusClasses = map[analyzable.StatusClass]bool{
	analyzable.Status1XX: true,
	analyzable.Status2XX: true,
	analyzable.Status3XX: true,
	analyzable.Status4XX: true,
	analyzable.Status5XX: true,
}

type statusOptions struct {
	From    int      `json:"from"`
	To      int      `json:"to"`
	Classes []string `json:"classes"`
}

type statusSpec struct{}

type statusCondition struct {
	from, to int
	classes  map[analyzable.StatusClass]bool
}

func NewStatus() conditions.Spec { return statusSpec{} }

func (statusSpec) Name() string { return StatusName }

func (statusSpec) CreateCondition(o tasks.Options) (conditions.Condition, error) {
	var opts statusOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if opts.From == 0 && opts.To == 0 && len(opts.Classes) == 0 {
		return nil, &tasks.MissingParameterError{Source: StatusName, Parameter: "from, to or classes"}
	}

	if opts.To != 0 && opts.To < opts.From {
		return nil, fmt.Errorf("%w: invalid status range %d-%d", tasks.ErrInvalidOptions, opts.From, opts.To)
	}

	c := &statusCondition{from: opts.From, to: opts.To}
	if len(opts.Classes) > 0 {
		c.classes = make(map[analyzable.StatusClass]bool)
		for _, cl := range opts.Classes {
			sc := analyzable.StatusClass(strings.ToUpper(cl))
			if !statusClasses[sc] {
				return nil, fmt.Errorf("%w: invalid status class %q", tasks.ErrInvalidOptions, cl)
			}

			c.classes[sc] = true
		}
	}

	return c, nil
}

func (c *statusCondition) Evaluate(ctx *tasks.Context, _ tasks.Phase) (bool, error) {
	code := ctx.Content.Response().StatusCode()
	if code == 0 {
		return false, errNoResponse
	}

	if c.classes != nil && !c.classes[analyzable.ClassifyHTTPStatus(code)] {
		return false, nil
	}

	if c.from != 0 && code < c.from || c.to != 0 && code > c.to {
		return false, nil
	}

	return true, nil
}

type jsonBodyOptions struct {
	Path   string  `json:"path"`
	Value  *string `json:"value"`
	Target string  `json:"target"`
}

type jsonBodySpec struct{}

type jsonBodyCondition struct {
	path    string
	value   *string
	request bool
}

func NewJSONBody() conditions.Spec { return jsonBodySpec{} }

func (jsonBodySpec) Name() string { return JSONBodyName }

func (jsonBodySpec) CreateCondition(o tasks.Options) (conditions.Condition, error) {
	var opts jsonBodyOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if opts.Path == "" {
		return nil, &tasks.MissingParameterError{Source: JSONBodyName, Parameter: "path"}
	}

	c := &jsonBodyCondition{path: opts.Path, value: opts.Value}
	switch opts.Target {
	case "", "response":
	case "request":
		c.request = true
	default:
		return nil, fmt.Errorf("%w: invalid target %q", tasks.ErrInvalidOptions, opts.Target)
	}

	return c, nil
}

func (c *jsonBodyCondition) body(ctx *tasks.Context, phase tasks.Phase) (*analyzable.Body, error) {
	if c.request {
		return ctx.Content.Request.Body, nil
	}

	if phase != tasks.EmittedResponse {
		return nil, errBodyIncomplete
	}

	return ctx.Content.Response().Body, nil
}

func (c *jsonBodyCondition) Evaluate(ctx *tasks.Context, phase tasks.Phase) (bool, error) {
	b, err := c.body(ctx, phase)
	if err != nil {
		return false, err
	}

	if !b.IsAnalyzable() {
		return false, errBodyTruncated
	}

	data := b.Bytes()
	if !gjson.ValidBytes(data) {
		return false, errInvalidJSON
	}

	r := gjson.GetBytes(data, c.path)
	if !r.Exists() {
		return false, nil
	}

	return c.value == nil || r.String() == *c.value, nil
}
