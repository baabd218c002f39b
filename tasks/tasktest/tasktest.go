// Package tasktest provides test doubles for the tasks and the
// conditions of the pipeline.
package tasktest

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/webservice"
)

// Call is one recorded task execution or condition evaluation.
type Call struct {
	Name  string
	Phase tasks.Phase
	Time  time.Time
}

// Calls records the calls of the test tasks and conditions, in order.
type Calls struct {
	mu    sync.Mutex
	calls []Call
}

func (c *Calls) add(name string, p tasks.Phase) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Name: name, Phase: p, Time: time.Now()})
}

// List returns a copy of the recorded calls.
func (c *Calls) List() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Names returns the names of the recorded calls in order.
func (c *Calls) Names() []string {
	var n []string
	for _, ci := range c.List() {
		n = append(n, ci.Name)
	}

	return n
}

// Task is a spec and a task at the same time. The task instances are
// copies of the Spec with the options set.
type Task struct {
	TaskName    string
	TaskVersion int
	TaskPhases  []tasks.Phase
	Options     tasks.Options
	Calls       *Calls

	// F is called on execute, when set.
	F func(*tasks.Context, tasks.Phase) error

	// CreateErr is returned by CreateTask, when set.
	CreateErr error
}

func (t *Task) Name() string          { return t.TaskName }
func (t *Task) Version() int          { return t.TaskVersion }
func (t *Task) Phases() []tasks.Phase { return t.TaskPhases }

func (t *Task) CreateTask(o tasks.Options) (tasks.Task, error) {
	if t.CreateErr != nil {
		return nil, t.CreateErr
	}

	c := *t
	c.Options = o
	return &c, nil
}

func (t *Task) Execute(ctx *tasks.Context, p tasks.Phase) error {
	t.Calls.add(t.TaskName, p)
	if t.F != nil {
		return t.F(ctx, p)
	}

	return nil
}

// Condition is a spec and a condition at the same time.
type Condition struct {
	ConditionName string
	Result        bool
	Err           error
	Calls         *Calls

	// Panic makes the evaluation panic, when set.
	Panic bool
}

func (c *Condition) Name() string { return c.ConditionName }

func (c *Condition) CreateCondition(tasks.Options) (conditions.Condition, error) {
	return c, nil
}

func (c *Condition) Evaluate(_ *tasks.Context, p tasks.Phase) (bool, error) {
	c.Calls.add(c.ConditionName, p)
	if c.Panic {
		panic("condition panic")
	}

	return c.Result, c.Err
}

// NewContext creates a task context for r with a fresh transaction
// content and the web service ws. Both r and ws can be nil.
func NewContext(r *http.Request, ws *webservice.WebService) *tasks.Context {
	if r == nil {
		r, _ = http.NewRequest("GET", "https://gateway.test/", nil)
	}

	if ws == nil {
		ws = &webservice.WebService{Unnamed: true}
	}

	c := analyzable.New(analyzable.NewProcess("test"), analyzable.Options{})
	c.Request.SetRequest(r)
	c.WebService.SetWebService(ws.ID, ws.Name, ws.Scope, ws.Unnamed)
	ctx := &tasks.Context{Content: c, Request: r, WebService: ws}
	if u, err := url.Parse("https://destination.test" + r.URL.RequestURI()); err == nil {
		ctx.Destination = u
		c.SetDestinationURL(u.String())
	}

	return ctx
}
