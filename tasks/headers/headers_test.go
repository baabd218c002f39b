package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/tasks/tasktest"
)

func TestHeaders(t *testing.T) {
	for _, ti := range []struct {
		msg      string
		options  tasks.Options
		phase    tasks.Phase
		request  map[string][]string
		response map[string][]string
		fail     bool
	}{{
		msg:  "no operation",
		fail: true,
	}, {
		msg:     "invalid target",
		options: tasks.Options{"target": "both", "remove": []interface{}{"X-Debug"}},
		fail:    true,
	}, {
		msg: "request headers",
		options: tasks.Options{
			"remove": []interface{}{"Cookie"},
			"set":    map[string]interface{}{"X-Api-Key": "key"},
			"add":    map[string]interface{}{"Accept": "application/xml"},
		},
		phase: tasks.DestinationRequestPreparation,
		request: map[string][]string{
			"Accept":    {"application/json", "application/xml"},
			"X-Api-Key": {"key"},
		},
		response: map[string][]string{"Server": {"destination"}},
	}, {
		msg:      "request target ignores the response phase",
		options:  tasks.Options{"remove": []interface{}{"Accept"}},
		phase:    tasks.StartedReceiving,
		request:  map[string][]string{"Accept": {"application/json"}, "Cookie": {"session=1"}},
		response: map[string][]string{"Server": {"destination"}},
	}, {
		msg: "response headers",
		options: tasks.Options{
			"target": "response",
			"remove": []interface{}{"server"},
			"set":    map[string]interface{}{"Cache-Control": "no-store"},
		},
		phase:    tasks.StartedReceiving,
		request:  map[string][]string{"Accept": {"application/json"}, "Cookie": {"session=1"}},
		response: map[string][]string{"Cache-Control": {"no-store"}},
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			task, err := NewHeaders().CreateTask(ti.options)
			if ti.fail {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			ctx := tasktest.NewContext(nil, nil)
			ctx.Content.DestinationRequest.Header.FromHTTP(map[string][]string{
				"Accept": {"application/json"},
				"Cookie": {"session=1"},
			})

			ctx.Content.Response().Header.Set("Server", "destination")
			require.NoError(t, task.Execute(ctx, ti.phase))
			assert.Equal(t, ti.request, map[string][]string(ctx.Content.DestinationRequest.Header.ToHTTP()))
			assert.Equal(t, ti.response, map[string][]string(ctx.Content.Response().Header.ToHTTP()))
		})
	}
}
