package alter

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/tasks/tasktest"
)

func TestCreateTask(t *testing.T) {
	for _, ti := range []struct {
		msg     string
		options tasks.Options
		fail    bool
	}{{
		msg:     "headers",
		options: tasks.Options{"headers": []interface{}{"Authorization"}},
	}, {
		msg:     "body fields with targets",
		options: tasks.Options{"bodyFields": []interface{}{"password"}, "targets": []interface{}{"initiator_request"}},
	}, {
		msg:  "nothing to mask",
		fail: true,
	}, {
		msg:     "invalid target",
		options: tasks.Options{"headers": []interface{}{"*"}, "targets": []interface{}{"response"}},
		fail:    true,
	}, {
		msg:     "unknown option",
		options: tasks.Options{"fields": []interface{}{"password"}},
		fail:    true,
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			_, err := NewAlter().CreateTask(ti.options)
			if ti.fail {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAlter(t *testing.T) {
	for _, ti := range []struct {
		msg        string
		options    tasks.Options
		body       string
		maxBody    int
		expectBody string
		expectAuth string
		expectType string
	}{{
		msg:        "mask header",
		options:    tasks.Options{"headers": []interface{}{"authorization"}},
		body:       `{"password":"secret"}`,
		expectBody: `{"password":"secret"}`,
		expectAuth: "*************",
		expectType: "application/json",
	}, {
		msg:        "mask all headers with exclusion",
		options:    tasks.Options{"headers": []interface{}{"*"}, "headerExclusions": []interface{}{"Content-Type"}},
		body:       `{}`,
		expectBody: `{}`,
		expectAuth: "*************",
		expectType: "application/json",
	}, {
		msg:        "mask body fields at any depth",
		options:    tasks.Options{"bodyFields": []interface{}{"password", "card"}},
		body:       `{"user":"joe","password":"secret","payment":{"card":{"number":4111,"cvc":"123"}},"list":[{"password":"x"}]}`,
		expectBody: `{"list":[{"password":"*"}],"password":"******","payment":{"card":{"cvc":"***","number":"****"}},"user":"joe"}`,
		expectAuth: "Bearer secret",
		expectType: "application/json",
	}, {
		msg:        "mask all body fields with exclusion",
		options:    tasks.Options{"bodyFields": []interface{}{"*"}, "bodyExclusions": []interface{}{"user"}},
		body:       `{"user":"joe","password":"secret","flag":true,"none":null}`,
		expectBody: `{"flag":"****","none":null,"password":"******","user":"joe"}`,
		expectAuth: "Bearer secret",
		expectType: "application/json",
	}, {
		msg:        "not json",
		options:    tasks.Options{"bodyFields": []interface{}{"password"}},
		body:       `password=secret`,
		expectBody: `***************`,
		expectAuth: "Bearer secret",
		expectType: "application/json",
	}, {
		msg:        "truncated",
		options:    tasks.Options{"bodyFields": []interface{}{"password"}},
		body:       `{"password":"secret"}`,
		maxBody:    8,
		expectBody: `********`,
		expectAuth: "Bearer secret",
		expectType: "application/json",
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			task, err := NewAlter().CreateTask(ti.options)
			require.NoError(t, err)

			ctx := tasktest.NewContext(nil, nil)
			c := analyzable.New(analyzable.NewProcess("test"), analyzable.Options{MaxBodySize: ti.maxBody})
			ctx.Content = c

			h := http.Header{"Authorization": []string{"Bearer secret"}, "Content-Type": []string{"application/json"}}
			c.Request.Header.FromHTTP(h)
			c.Request.Body.Write([]byte(ti.body))
			c.Response().Header.FromHTTP(h)
			c.Response().Body.Write([]byte(ti.body))

			require.NoError(t, task.Execute(ctx, tasks.EmittedResponse))
			for _, r := range []struct {
				h *analyzable.Header
				b *analyzable.Body
			}{{c.Request.Header, c.Request.Body}, {c.Response().Header, c.Response().Body}} {
				assert.Equal(t, ti.expectBody, r.b.String())
				assert.Equal(t, int64(len(ti.body)), r.b.RealLength())
				assert.Equal(t, ti.expectAuth, r.h.Get("Authorization"))
				assert.Equal(t, ti.expectType, r.h.Get("Content-Type"))
			}
		})
	}
}

func TestAlterTargets(t *testing.T) {
	task, err := NewAlter().CreateTask(tasks.Options{
		"headers": []interface{}{"authorization"},
		"targets": []interface{}{"destination_request"},
	})

	require.NoError(t, err)

	ctx := tasktest.NewContext(nil, nil)
	c := ctx.Content
	c.Request.Header.Set("Authorization", "token")
	c.DestinationRequest.Header.Set("Authorization", "token")
	require.NoError(t, task.Execute(ctx, tasks.EmittedResponse))
	assert.Equal(t, "token", c.Request.Header.Get("Authorization"))
	assert.Equal(t, "*****", c.DestinationRequest.Header.Get("Authorization"))
}
