package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/definitions"
	"github.com/passeplat/passeplat/metrics"
	"github.com/passeplat/passeplat/metrics/metricstest"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/tasks/tasktest"
	"github.com/passeplat/passeplat/webservice"
)

var allPhases = []tasks.Phase{tasks.DestinationRequestPreparation, tasks.StartedReceiving, tasks.EmittedResponse}

type fixture struct {
	calls   *tasktest.Calls
	metrics *metricstest.MockMetrics
	engine  *Engine
}

func newFixture() *fixture {
	calls := &tasktest.Calls{}
	tr := tasks.NewRegistry()
	tr.Add(
		&tasktest.Task{TaskName: "first", TaskPhases: allPhases, Calls: calls},
		&tasktest.Task{TaskName: "second", TaskPhases: allPhases, Calls: calls},
		&tasktest.Task{TaskName: "request", TaskPhases: []tasks.Phase{tasks.DestinationRequestPreparation}, Calls: calls},
		&tasktest.Task{TaskName: "failure", TaskPhases: []tasks.Phase{tasks.DestinationReachFailure}, Calls: calls},
		&tasktest.Task{TaskName: "broken", TaskPhases: allPhases, Calls: calls, F: func(*tasks.Context, tasks.Phase) error {
			return errors.New("broken task")
		}},
		&tasktest.Task{TaskName: "panicking", TaskPhases: allPhases, Calls: calls, F: func(*tasks.Context, tasks.Phase) error {
			panic("task panic")
		}},
		&tasktest.Task{TaskName: "invalid", CreateErr: tasks.ErrInvalidOptions},
	)

	cr := conditions.NewRegistry()
	cr.Add(
		&tasktest.Condition{ConditionName: "yes", Result: true, Calls: calls},
		&tasktest.Condition{ConditionName: "no", Calls: calls},
		&tasktest.Condition{ConditionName: "failing", Err: errors.New("no data"), Calls: calls},
		&tasktest.Condition{ConditionName: "panicking", Panic: true, Calls: calls},
	)

	m := &metricstest.MockMetrics{}
	return &fixture{
		calls:   calls,
		metrics: m,
		engine:  NewEngine(Options{Tasks: tr, Conditions: cr, Metrics: m}),
	}
}

func webService(t ...definitions.Task) *webservice.WebService {
	return &webservice.WebService{ID: "test", Definition: &definitions.WebService{ID: "test", Tasks: t}}
}

func task(name string, conditions ...string) definitions.Task {
	t := definitions.Task{Type: name}
	for _, c := range conditions {
		t.Conditions = append(t.Conditions, definitions.Condition{Type: c})
	}

	return t
}

func TestRunPhase(t *testing.T) {
	for _, ti := range []struct {
		msg    string
		tasks  []definitions.Task
		phase  tasks.Phase
		expect []string
		errors []analyzable.ErrorType
	}{{
		msg:    "no tasks",
		phase:  tasks.DestinationRequestPreparation,
		expect: nil,
	}, {
		msg:    "tasks run in order",
		tasks:  []definitions.Task{task("second"), task("first"), task("second")},
		phase:  tasks.StartedReceiving,
		expect: []string{"second", "first", "second"},
	}, {
		msg:    "only the tasks bound to the phase",
		tasks:  []definitions.Task{task("request"), task("first"), task("failure")},
		phase:  tasks.EmittedResponse,
		expect: []string{"first"},
	}, {
		msg:    "reach failure phase",
		tasks:  []definitions.Task{task("request"), task("failure")},
		phase:  tasks.DestinationReachFailure,
		expect: []string{"failure"},
	}, {
		msg:    "disabled task",
		tasks:  []definitions.Task{{Type: "first", Disabled: true}, task("second")},
		phase:  tasks.EmittedResponse,
		expect: []string{"second"},
	}, {
		msg:    "conditions are evaluated before the task",
		tasks:  []definitions.Task{task("first", "yes", "yes")},
		phase:  tasks.EmittedResponse,
		expect: []string{"yes", "yes", "first"},
	}, {
		msg:    "all conditions must be satisfied",
		tasks:  []definitions.Task{task("first", "yes", "no", "yes"), task("second")},
		phase:  tasks.EmittedResponse,
		expect: []string{"yes", "no", "second"},
	}, {
		msg:    "failing condition is not satisfied",
		tasks:  []definitions.Task{task("first", "failing"), task("second")},
		phase:  tasks.EmittedResponse,
		expect: []string{"failing", "second"},
		errors: []analyzable.ErrorType{analyzable.ConditionFailure},
	}, {
		msg:    "panicking condition is not satisfied",
		tasks:  []definitions.Task{task("first", "panicking"), task("second")},
		phase:  tasks.EmittedResponse,
		expect: []string{"panicking", "second"},
		errors: []analyzable.ErrorType{analyzable.ConditionFailure},
	}, {
		msg:    "failing task doesn't block the others",
		tasks:  []definitions.Task{task("broken"), task("first")},
		phase:  tasks.StartedReceiving,
		expect: []string{"broken", "first"},
		errors: []analyzable.ErrorType{analyzable.TaskFailure},
	}, {
		msg:    "panicking task doesn't block the others",
		tasks:  []definitions.Task{task("first"), task("panicking"), task("second")},
		phase:  tasks.StartedReceiving,
		expect: []string{"first", "panicking", "second"},
		errors: []analyzable.ErrorType{analyzable.TaskFailure},
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			f := newFixture()
			ctx := tasktest.NewContext(nil, nil)
			f.engine.Pipeline(webService(ti.tasks...)).RunPhase(ctx, ti.phase)
			assert.Equal(t, ti.expect, f.calls.Names())

			var errorTypes []analyzable.ErrorType
			for _, e := range ctx.Content.Errors.List() {
				errorTypes = append(errorTypes, e.Type)
			}

			assert.Equal(t, ti.errors, errorTypes)
		})
	}
}

func TestStopRequestKeepsRunningThePhase(t *testing.T) {
	f := newFixture()
	stop := &tasktest.Task{
		TaskName:   "stop",
		TaskPhases: allPhases,
		Calls:      f.calls,
		F: func(ctx *tasks.Context, _ tasks.Phase) error {
			ctx.Content.StopRequest()
			return nil
		},
	}

	f.engine.options.Tasks.Add(stop)
	ctx := tasktest.NewContext(nil, nil)
	f.engine.Pipeline(webService(task("stop"), task("first"))).RunPhase(ctx, tasks.DestinationRequestPreparation)
	assert.True(t, ctx.Content.StopRequested())
	assert.Equal(t, []string{"stop", "first"}, f.calls.Names())
}

func TestMetrics(t *testing.T) {
	f := newFixture()
	ctx := tasktest.NewContext(nil, nil)
	f.engine.Pipeline(webService(task("broken"), task("first", "failing"), task("second"))).RunPhase(ctx, tasks.EmittedResponse)

	assert.Equal(t, int64(1), f.metrics.Counter(fmt.Sprintf(metrics.KeyTaskFailure, "broken")))
	assert.Equal(t, int64(1), f.metrics.Counter(fmt.Sprintf(metrics.KeyConditionFailed, "failing")))
	assert.Equal(t, 1, f.metrics.Measures(fmt.Sprintf(metrics.KeyTask, "second", tasks.EmittedResponse)))
	assert.Equal(t, 0, f.metrics.Measures(fmt.Sprintf(metrics.KeyTask, "first", tasks.EmittedResponse)))
	assert.Equal(t, 1, f.metrics.Measures(fmt.Sprintf(metrics.KeyPhase, tasks.EmittedResponse)))
}

func TestBuildErrors(t *testing.T) {
	f := newFixture()
	p := f.engine.Pipeline(webService(
		task("unknown"),
		task("invalid"),
		task("first", "unknown"),
		definitions.Task{Type: "first", Version: 2},
		task("second"),
	))

	assert.Equal(t, 1, p.Len())
	require.Len(t, p.BuildErrors(), 4)
	assert.ErrorIs(t, p.BuildErrors()[0], ErrUnknownTask)
	assert.ErrorIs(t, p.BuildErrors()[1], tasks.ErrInvalidOptions)
	assert.ErrorIs(t, p.BuildErrors()[2], ErrUnknownCondition)
	assert.ErrorIs(t, p.BuildErrors()[3], ErrUnknownTask)

	ctx := tasktest.NewContext(nil, nil)
	p.Report(ctx.Content)
	assert.Equal(t, 4, ctx.Content.Errors.Len())
}

func TestPipelineCache(t *testing.T) {
	f := newFixture()
	ws := webService(task("first"))

	p := f.engine.Pipeline(ws)
	assert.Same(t, p, f.engine.Pipeline(ws))
	assert.NotSame(t, p, f.engine.Pipeline(webService(task("first"))))

	f.engine.Reset()
	assert.NotSame(t, p, f.engine.Pipeline(ws))
}

func TestUnnamedWebService(t *testing.T) {
	f := newFixture()
	p := f.engine.Pipeline(&webservice.WebService{Unnamed: true})
	assert.Equal(t, 0, p.Len())

	ctx := tasktest.NewContext(nil, nil)
	p.RunPhase(ctx, tasks.DestinationRequestPreparation)
	assert.Empty(t, f.calls.Names())
}

func TestExecutionTrace(t *testing.T) {
	f := newFixture()
	ctx := tasktest.NewContext(nil, nil)
	f.engine.Pipeline(webService(task("first"), task("second", "no"))).RunPhase(ctx, tasks.EmittedResponse)

	entries := ctx.Content.ExecutionTrace().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{"task": "first", "phase": tasks.EmittedResponse}, entries[0].Details)
	assert.Equal(t, map[string]interface{}{"task": "second", "phase": tasks.EmittedResponse, "skipped": true}, entries[1].Details)
}
