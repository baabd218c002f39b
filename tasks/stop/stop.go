/*
Package stop implements the stopOnCondition task. When its conditions
are satisfied, the request is not forwarded to the destination, and a
synthetic response is emitted instead.

Options:

	status:      status code of the response, defaults to 403
	message:     body of the response, defaults to the status text
	contentType: defaults to text/plain
*/
package stop

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
)

const (
	Name = "stopOnCondition"

	// Header marks the responses constructed by the task.
	Header = "X-Stopped-By-Passeplat"

	defaultContentType = "text/plain; charset=utf-8"
)

type options struct {
	Status      int    `json:"status"`
	Message     string `json:"message"`
	ContentType string `json:"contentType"`
}

type spec struct{}

type task struct {
	options
}

func NewStopOnCondition() tasks.Spec { return spec{} }

func (spec) Name() string          { return Name }
func (spec) Version() int          { return 1 }
func (spec) Phases() []tasks.Phase { return []tasks.Phase{tasks.DestinationRequestPreparation} }

func (spec) CreateTask(o tasks.Options) (tasks.Task, error) {
	var opts options
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if opts.Status == 0 {
		opts.Status = http.StatusForbidden
	}

	if opts.Status < 100 || opts.Status > 599 {
		return nil, fmt.Errorf("%w: invalid status %d", tasks.ErrInvalidOptions, opts.Status)
	}

	if opts.Message == "" {
		opts.Message = http.StatusText(opts.Status)
	}

	if opts.ContentType == "" {
		opts.ContentType = defaultContentType
	}

	return &task{opts}, nil
}

func (t *task) Execute(ctx *tasks.Context, _ tasks.Phase) error {
	c := ctx.Content
	r := c.NewResponse()
	r.SetStatusCode(t.Status)
	r.Header.Set("Content-Type", t.ContentType)
	r.Header.Set("Content-Length", strconv.Itoa(len(t.Message)))
	r.Header.Set(Header, "1")
	r.Body.Write([]byte(t.Message))
	c.SetResponse(r)
	c.WebService.SetStatus(analyzable.StatusStopped)
	c.StopRequest()
	return nil
}
