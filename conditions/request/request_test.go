package request

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/tasks/tasktest"
)

func TestConditions(t *testing.T) {
	for _, ti := range []struct {
		msg     string
		spec    conditions.Spec
		options tasks.Options
		method  string
		url     string
		header  http.Header
		expect  bool
	}{{
		msg:     "method matches",
		spec:    NewMethod(),
		options: tasks.Options{"methods": []string{"get", "HEAD"}},
		method:  "GET",
		expect:  true,
	}, {
		msg:     "method doesn't match",
		spec:    NewMethod(),
		options: tasks.Options{"methods": []string{"GET"}},
		method:  "POST",
	}, {
		msg:     "header exists",
		spec:    NewHeader(),
		options: tasks.Options{"name": "x-debug"},
		header:  http.Header{"X-Debug": []string{""}},
		expect:  true,
	}, {
		msg:     "header missing",
		spec:    NewHeader(),
		options: tasks.Options{"name": "X-Debug"},
	}, {
		msg:     "header value matches",
		spec:    NewHeader(),
		options: tasks.Options{"name": "Accept", "value": "json$"},
		header:  http.Header{"Accept": []string{"text/html", "application/json"}},
		expect:  true,
	}, {
		msg:     "header value doesn't match",
		spec:    NewHeader(),
		options: tasks.Options{"name": "Accept", "value": "^application/xml$"},
		header:  http.Header{"Accept": []string{"application/json"}},
	}, {
		msg:     "query exists without value",
		spec:    NewQuery(),
		options: tasks.Options{"name": "debug"},
		url:     "https://gateway.test/orders?debug=",
		expect:  true,
	}, {
		msg:     "query missing",
		spec:    NewQuery(),
		options: tasks.Options{"name": "debug"},
		url:     "https://gateway.test/orders?page=1",
	}, {
		msg:     "query value matches any",
		spec:    NewQuery(),
		options: tasks.Options{"name": "tag", "value": "^beta$"},
		url:     "https://gateway.test/orders?tag=alpha&tag=beta",
		expect:  true,
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			c, err := ti.spec.CreateCondition(ti.options)
			require.NoError(t, err)

			if ti.method == "" {
				ti.method = "GET"
			}

			if ti.url == "" {
				ti.url = "https://gateway.test/orders"
			}

			r, err := http.NewRequest(ti.method, ti.url, nil)
			require.NoError(t, err)
			for k, v := range ti.header {
				r.Header[k] = v
			}

			ok, err := c.Evaluate(tasktest.NewContext(r, nil), tasks.DestinationRequestPreparation)
			require.NoError(t, err)
			assert.Equal(t, ti.expect, ok)
		})
	}
}

func TestInvalidOptions(t *testing.T) {
	for _, ti := range []struct {
		msg     string
		spec    conditions.Spec
		options tasks.Options
	}{{
		msg:  "no methods",
		spec: NewMethod(),
	}, {
		msg:  "no header name",
		spec: NewHeader(),
	}, {
		msg:     "invalid expression",
		spec:    NewQuery(),
		options: tasks.Options{"name": "tag", "value": "("},
	}, {
		msg:     "unknown option",
		spec:    NewHeader(),
		options: tasks.Options{"name": "Accept", "values": []string{"json"}},
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			_, err := ti.spec.CreateCondition(ti.options)
			assert.Error(t, err)
		})
	}
}
