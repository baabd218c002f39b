package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/tasks/tasktest"
	"github.com/passeplat/passeplat/webservice"
)

type validatorCall struct {
	spec    string
	message *Message
}

func recordingValidator(calls *[]validatorCall, vs []Violation, err error) Validator {
	return ValidatorFunc(func(_ context.Context, spec string, m *Message) ([]Violation, error) {
		*calls = append(*calls, validatorCall{spec: spec, message: m})
		return vs, err
	})
}

func newContext() *tasks.Context {
	r, _ := http.NewRequest("POST", "https://gateway.test/orders", strings.NewReader(`{"id":1}`))
	r.Header.Set("Content-Type", "application/json")
	ctx := tasktest.NewContext(r, &webservice.WebService{ID: "orders"})
	ctx.Content.Request.Body.Write([]byte(`{"id":1}`))
	rsp := ctx.Content.Response()
	rsp.SetStatusCode(201)
	rsp.Body.Write([]byte(`{"ok":true}`))
	return ctx
}

func TestCreate(t *testing.T) {
	for _, ti := range []struct {
		msg       string
		validator Validator
		options   tasks.Options
		fail      bool
	}{{
		msg:       "defaults",
		validator: ValidatorFunc(nil),
	}, {
		msg:  "missing validator",
		fail: true,
	}, {
		msg:       "invalid target",
		validator: ValidatorFunc(nil),
		options:   tasks.Options{"target": "body"},
		fail:      true,
	}, {
		msg:       "unknown option",
		validator: ValidatorFunc(nil),
		options:   tasks.Options{"strict": true},
		fail:      true,
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			_, err := NewTask(ti.validator).CreateTask(ti.options)
			assert.Equal(t, ti.fail, err != nil, "task: %v", err)

			_, err = NewCondition(ti.validator).CreateCondition(ti.options)
			assert.Equal(t, ti.fail, err != nil, "condition: %v", err)
		})
	}
}

func TestTask(t *testing.T) {
	for _, ti := range []struct {
		msg        string
		options    tasks.Options
		phase      tasks.Phase
		violations []Violation
		validErr   error
		calls      int
		errors     int
		stopped    bool
		fail       bool
	}{{
		msg:   "valid request",
		phase: tasks.DestinationRequestPreparation,
		calls: 1,
	}, {
		msg:   "other phase",
		phase: tasks.EmittedResponse,
	}, {
		msg:        "invalid request",
		phase:      tasks.DestinationRequestPreparation,
		violations: []Violation{{Message: "missing property name", Path: "/name"}, {Message: "id must be a string"}},
		calls:      1,
		errors:     2,
	}, {
		msg:        "rejected request",
		options:    tasks.Options{"reject": true},
		phase:      tasks.DestinationRequestPreparation,
		violations: []Violation{{Message: "missing property name"}},
		calls:      1,
		errors:     1,
		stopped:    true,
	}, {
		msg:        "invalid response",
		options:    tasks.Options{"target": "response", "reject": true},
		phase:      tasks.EmittedResponse,
		violations: []Violation{{Message: "unexpected status"}},
		calls:      1,
		errors:     1,
	}, {
		msg:      "validator failure",
		phase:    tasks.DestinationRequestPreparation,
		validErr: errors.New("validator down"),
		calls:    1,
		fail:     true,
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			var calls []validatorCall
			task, err := NewTask(recordingValidator(&calls, ti.violations, ti.validErr)).CreateTask(ti.options)
			require.NoError(t, err)

			ctx := newContext()
			err = task.Execute(ctx, ti.phase)
			assert.Equal(t, ti.fail, err != nil)
			assert.Len(t, calls, ti.calls)
			assert.Equal(t, ti.errors, ctx.Content.Errors.Len())
			assert.Equal(t, ti.stopped, ctx.Content.StopRequested())
			for _, e := range ctx.Content.Errors.List() {
				assert.Equal(t, analyzable.ValidationError, e.Type)
			}

			if ti.stopped {
				assert.Equal(t, http.StatusBadRequest, ctx.Content.Response().StatusCode())
			}
		})
	}
}

func TestMessages(t *testing.T) {
	var calls []validatorCall
	v := recordingValidator(&calls, nil, nil)

	rt, err := NewTask(v).CreateTask(nil)
	require.NoError(t, err)
	st, err := NewTask(v).CreateTask(tasks.Options{"target": "response", "spec": "orders-v2"})
	require.NoError(t, err)

	ctx := newContext()
	require.NoError(t, rt.Execute(ctx, tasks.DestinationRequestPreparation))
	require.NoError(t, st.Execute(ctx, tasks.EmittedResponse))
	require.Len(t, calls, 2)

	assert.Equal(t, "orders", calls[0].spec)
	assert.Equal(t, Request, calls[0].message.Target)
	assert.Equal(t, "POST", calls[0].message.Method)
	assert.Equal(t, `{"id":1}`, calls[0].message.Body)
	assert.Equal(t, "application/json", calls[0].message.Header.Get("Content-Type"))

	assert.Equal(t, "orders-v2", calls[1].spec)
	assert.Equal(t, Response, calls[1].message.Target)
	assert.Equal(t, 201, calls[1].message.Status)
	assert.Equal(t, `{"ok":true}`, calls[1].message.Body)
}

func TestCondition(t *testing.T) {
	invalid := []Violation{{Message: "invalid"}}
	for _, ti := range []struct {
		msg        string
		options    tasks.Options
		phase      tasks.Phase
		violations []Violation
		expect     bool
		fail       bool
	}{{
		msg:    "valid request",
		phase:  tasks.DestinationRequestPreparation,
		expect: true,
	}, {
		msg:        "invalid request",
		phase:      tasks.DestinationRequestPreparation,
		violations: invalid,
	}, {
		msg:        "expecting invalid",
		options:    tasks.Options{"valid": false},
		phase:      tasks.DestinationRequestPreparation,
		violations: invalid,
		expect:     true,
	}, {
		msg:     "response before receiving",
		options: tasks.Options{"target": "response"},
		phase:   tasks.StartedReceiving,
		fail:    true,
	}, {
		msg:     "valid response",
		options: tasks.Options{"target": "response"},
		phase:   tasks.EmittedResponse,
		expect:  true,
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			var calls []validatorCall
			c, err := NewCondition(recordingValidator(&calls, ti.violations, nil)).CreateCondition(ti.options)
			require.NoError(t, err)

			ok, err := c.Evaluate(newContext(), ti.phase)
			assert.Equal(t, ti.fail, err != nil)
			assert.Equal(t, ti.expect, ok)
		})
	}
}

func TestRemote(t *testing.T) {
	var received remoteRequest
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"violations":[{"message":"missing property name","path":"/name"}]}`))
	}))
	defer s.Close()

	_, err := NewRemote(RemoteOptions{})
	assert.Error(t, err)

	r, err := NewRemote(RemoteOptions{URL: s.URL + "/validate"})
	require.NoError(t, err)

	vs, err := r.Validate(context.Background(), "orders", &Message{Target: Request, Method: "GET", URI: "/orders"})
	require.NoError(t, err)
	assert.Equal(t, []Violation{{Message: "missing property name", Path: "/name"}}, vs)
	assert.Equal(t, "orders", received.Spec)
	assert.Equal(t, "/orders", received.Message.URI)

	r, err = NewRemote(RemoteOptions{URL: s.URL + "/missing"})
	require.NoError(t, err)
	_, err = r.Validate(context.Background(), "orders", &Message{Target: Request})
	assert.Error(t, err)
}
