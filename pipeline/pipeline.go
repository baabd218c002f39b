/*
Package pipeline runs the tasks of the web services in the phases of
the transactions.

The pipeline of a web service is built once from its definition, and
cached by the Engine until the definitions are reloaded. Tasks run in
the order of the definition. The conditions of a task are evaluated
before the task, all of them have to be satisfied.

Failing tasks and conditions don't break the phase: the failures are
logged, counted and added to the loggable errors of the transaction.
*/
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/definitions"
	"github.com/passeplat/passeplat/metrics"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/webservice"
)

var (
	ErrUnknownTask      = errors.New("unknown task")
	ErrUnknownCondition = errors.New("unknown condition")
)

// Options of the Engine.
type Options struct {
	Tasks      *tasks.Registry
	Conditions *conditions.Registry

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics
}

// Engine builds and caches the pipelines of the web services.
type Engine struct {
	options   Options
	mu        sync.Mutex
	pipelines map[*definitions.WebService]*Pipeline
	empty     *Pipeline
}

type conditionInstance struct {
	name      string
	condition conditions.Condition
}

type taskInstance struct {
	name       string
	task       tasks.Task
	phases     map[tasks.Phase]bool
	conditions []conditionInstance
}

// Pipeline is the list of the task instances of a web service.
type Pipeline struct {
	webService string
	tasks      []*taskInstance
	errors     []error
	metrics    metrics.Metrics
}

func NewEngine(o Options) *Engine {
	if o.Tasks == nil {
		o.Tasks = tasks.NewRegistry()
	}

	if o.Conditions == nil {
		o.Conditions = conditions.NewRegistry()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	return &Engine{
		options:   o,
		pipelines: make(map[*definitions.WebService]*Pipeline),
		empty:     &Pipeline{metrics: o.Metrics},
	}
}

// Pipeline returns the pipeline of a web service. The unnamed web
// service gets an empty pipeline.
func (e *Engine) Pipeline(ws *webservice.WebService) *Pipeline {
	if ws == nil || ws.Definition == nil {
		return e.empty
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pipelines[ws.Definition]; ok {
		return p
	}

	p := e.build(ws.Definition)
	e.pipelines[ws.Definition] = p
	return p
}

// Reset drops the cached pipelines. It is called when the definitions
// are reloaded.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipelines = make(map[*definitions.WebService]*Pipeline)
}

func (e *Engine) build(d *definitions.WebService) *Pipeline {
	p := &Pipeline{webService: d.ID, metrics: e.options.Metrics}
	for i, td := range d.Tasks {
		if td.Disabled {
			continue
		}

		t, err := e.buildTask(td)
		if err != nil {
			err = fmt.Errorf("task %d of web service %s: %w", i, d.ID, err)
			log.Warnf("task ignored: %v", err)
			p.errors = append(p.errors, err)
			continue
		}

		p.tasks = append(p.tasks, t)
	}

	return p
}

func (e *Engine) buildTask(td definitions.Task) (*taskInstance, error) {
	spec, ok := e.options.Tasks.Get(td.Type, td.Version)
	if !ok {
		return nil, fmt.Errorf("%w: %s (version %d)", ErrUnknownTask, td.Type, td.Version)
	}

	task, err := spec.CreateTask(tasks.Options(td.Options))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", td.Type, err)
	}

	ti := &taskInstance{
		name:   td.Type,
		task:   task,
		phases: make(map[tasks.Phase]bool),
	}

	for _, p := range spec.Phases() {
		ti.phases[p] = true
	}

	for _, cd := range td.Conditions {
		cs, ok := e.options.Conditions.Get(cd.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, cd.Type)
		}

		c, err := cs.CreateCondition(tasks.Options(cd.Options))
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", cd.Type, err)
		}

		ti.conditions = append(ti.conditions, conditionInstance{name: cd.Type, condition: c})
	}

	return ti, nil
}

// Len returns the number of the task instances.
func (p *Pipeline) Len() int { return len(p.tasks) }

// BuildErrors returns the errors of the task definitions that were left
// out from the pipeline.
func (p *Pipeline) BuildErrors() []error { return p.errors }

// Report adds the build errors to the loggable errors of a transaction.
func (p *Pipeline) Report(c *analyzable.Content) {
	for _, err := range p.errors {
		c.Errors.Add(analyzable.LoggableError{
			Type:    analyzable.TaskFailure,
			Source:  "pipeline",
			Message: err.Error(),
		})
	}
}

// RunPhase executes the tasks bound to a phase, in order. After a task
// stopped the request, the remaining tasks of the phase still run.
func (p *Pipeline) RunPhase(ctx *tasks.Context, phase tasks.Phase) {
	if len(p.tasks) == 0 {
		return
	}

	start := time.Now()
	defer p.metrics.MeasurePhase(string(phase), start)
	for _, t := range p.tasks {
		if !t.phases[phase] {
			continue
		}

		if !p.enabled(ctx, t, phase) {
			ctx.Content.Trace(map[string]interface{}{"task": t.name, "phase": phase, "skipped": true})
			continue
		}

		p.execute(ctx, t, phase)
	}
}

func (p *Pipeline) enabled(ctx *tasks.Context, t *taskInstance, phase tasks.Phase) bool {
	for _, c := range t.conditions {
		var (
			ok  bool
			err error
		)

		tasks.TryCatch(func() {
			ok, err = c.condition.Evaluate(ctx, phase)
		}, func(perr interface{}, stack string) {
			err = fmt.Errorf("panic: %v", perr)
			log.Errorf("panic while evaluating condition %s: %v (%s)", c.name, perr, stack)
		})

		if err != nil {
			p.conditionFailed(ctx, &tasks.ConditionError{Condition: c.name, Err: err}, t.name, phase)
			return false
		}

		if !ok {
			return false
		}
	}

	return true
}

func (p *Pipeline) conditionFailed(ctx *tasks.Context, err *tasks.ConditionError, task string, phase tasks.Phase) {
	log.Debugf("condition of task %s not satisfied: %v", task, err)
	p.metrics.IncConditionFailures(err.Condition)
	ctx.Content.Errors.Add(analyzable.LoggableError{
		Type:    analyzable.ConditionFailure,
		Source:  err.Condition,
		Message: err.Error(),
		Details: map[string]interface{}{"task": task, "phase": string(phase)},
	})
}

func (p *Pipeline) execute(ctx *tasks.Context, t *taskInstance, phase tasks.Phase) {
	start := time.Now()
	var err error
	tasks.TryCatch(func() {
		err = t.task.Execute(ctx, phase)
	}, func(perr interface{}, stack string) {
		err = fmt.Errorf("panic: %v", perr)
		log.Errorf("panic while executing task %s: %v (%s)", t.name, perr, stack)
	})

	p.metrics.MeasureTask(t.name, string(phase), start)
	ctx.Content.Trace(map[string]interface{}{"task": t.name, "phase": phase})
	if err == nil {
		return
	}

	terr := &tasks.TaskError{Task: t.name, Phase: phase, Err: err}
	log.Errorf("web service %s: %v", p.webService, terr)
	p.metrics.IncTaskFailures(t.name)
	ctx.Content.Errors.Add(analyzable.LoggableError{
		Type:    analyzable.TaskFailure,
		Source:  t.name,
		Message: terr.Error(),
		Details: map[string]interface{}{"phase": string(phase)},
	})
}
