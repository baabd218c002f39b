package openapi

import (
	"net/http"
	"strconv"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
)

type taskOptions struct {
	options
	Reject  bool `json:"reject"`
}

type taskSpec struct {
	validator Validator
}

type task struct {
	taskOptions
	validator Validator
}

// NewTask creates the openapi task.
func NewTask(v Validator) tasks.Spec { return &taskSpec{validator: v} }

func (s *taskSpec) Name() string { return Name }
func (s *taskSpec) Version() int { return 1 }

func (s *taskSpec) Phases() []tasks.Phase {
	return []tasks.Phase{tasks.DestinationRequestPreparation, tasks.EmittedResponse}
}

func (s *taskSpec) CreateTask(o tasks.Options) (tasks.Task, error) {
	if s.validator == nil {
		return nil, &tasks.MissingParameterError{Source: Name, Parameter: "validator"}
	}

	var opts taskOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if err := opts.init(); err != nil {
		return nil, err
	}

	return &task{taskOptions: opts, validator: s.validator}, nil
}

func (t *task) Execute(ctx *tasks.Context, phase tasks.Phase) error {
	if phase != t.phase() {
		return nil
	}

	vs, err := t.validate(t.validator, ctx)
	if err != nil {
		return err
	}

	c := ctx.Content
	for _, v := range vs {
		details := map[string]interface{}{"target": string(t.Target)}
		if v.Path != "" {
			details["path"] = v.Path
		}

		c.Errors.Add(analyzable.LoggableError{
			Type:    analyzable.ValidationError,
			Source:  Name,
			Message: v.Message,
			Details: details,
		})
	}

	c.Trace(map[string]interface{}{"task": Name, "target": t.Target, "violations": len(vs)})
	if len(vs) > 0 && t.Reject && t.Target == Request {
		reject(c)
	}

	return nil
}

func reject(c *analyzable.Content) {
	msg := http.StatusText(http.StatusBadRequest)
	r := c.NewResponse()
	r.SetStatusCode(http.StatusBadRequest)
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Header.Set("Content-Length", strconv.Itoa(len(msg)))
	r.Body.Write([]byte(msg))
	c.SetResponse(r)
	c.WebService.SetStatus(analyzable.StatusStopped)
	c.StopRequest()
}
