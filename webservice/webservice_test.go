package webservice

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/auth"
	"github.com/passeplat/passeplat/definitions"
	"github.com/passeplat/passeplat/hostmatch"
)

func testDefinitions() *definitions.Definitions {
	ws := func(id, scope, uid, dest string) *definitions.WebService {
		return &definitions.WebService{ID: id, Scope: scope, UserID: uid, Name: id + "-" + scope, Destination: dest}
	}

	return &definitions.Definitions{
		GlobalWebServices: map[string]*definitions.WebService{
			"orders":  ws("orders", definitions.ScopeGlobal, "", "https://orders.example.org/v1"),
			"default": ws("default", definitions.ScopeGlobal, "", "https://default.example.org/{path}"),
		},
		UserWebServices: map[string]map[string]*definitions.WebService{
			"user42": {
				"orders":  ws("orders", definitions.ScopeUser, "user42", "http://localhost:9000/{uid}/{path}"),
				"default": ws("default", definitions.ScopeUser, "user42", "http://localhost:9001"),
			},
		},
	}
}

func testResolver(t *testing.T, d *definitions.Definitions) *Resolver {
	m, err := hostmatch.New(hostmatch.Patterns{
		Base:            []string{`gw\.test`},
		WithUserID:      []string{`[a-z0-9]+\.gw\.test`},
		WithDestination: []string{`[a-z0-9-]+---[a-z0-9]+\.gw\.test`},
	}, hostmatch.Options{})
	require.NoError(t, err)
	return NewResolver(d, m)
}

func TestResolve(t *testing.T) {
	r := testResolver(t, testDefinitions())
	user42 := auth.User{ID: "user42"}
	other := auth.User{ID: "other"}

	for _, ti := range []struct {
		msg           string
		url           string
		header        string
		user          auth.User
		expectedID    string
		expectedScope string
		unnamed       bool
	}{{
		msg:           "user scope first",
		url:           "https://user42.gw.test/?PP_WSID=orders",
		user:          user42,
		expectedID:    "orders",
		expectedScope: definitions.ScopeUser,
	}, {
		msg:           "global scope when the user has none",
		url:           "https://other.gw.test/?PP_WSID=orders",
		user:          other,
		expectedID:    "orders",
		expectedScope: definitions.ScopeGlobal,
	}, {
		msg:           "id from header",
		url:           "https://other.gw.test/",
		header:        "orders",
		user:          other,
		expectedID:    "orders",
		expectedScope: definitions.ScopeGlobal,
	}, {
		msg:           "unknown id falls back to the user default",
		url:           "https://user42.gw.test/?PP_WSID=missing",
		user:          user42,
		expectedID:    "default",
		expectedScope: definitions.ScopeUser,
	}, {
		msg:           "no id, global default",
		url:           "https://other.gw.test/",
		user:          other,
		expectedID:    "default",
		expectedScope: definitions.ScopeGlobal,
	}, {
		msg:           "unrestricted user",
		url:           "https://gw.test/?PP_WSID=orders",
		user:          auth.Unrestricted,
		expectedID:    "orders",
		expectedScope: definitions.ScopeGlobal,
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			req := httptest.NewRequest("GET", ti.url, nil)
			if ti.header != "" {
				req.Header.Set(Header, ti.header)
			}

			ws := r.Resolve(req, ti.user)
			assert.Equal(t, ti.expectedID, ws.ID)
			assert.Equal(t, ti.expectedScope, ws.Scope)
			assert.Equal(t, ti.unnamed, ws.Unnamed)
		})
	}
}

func TestResolveUnnamedFallback(t *testing.T) {
	for _, d := range []*definitions.Definitions{
		{},
		nil,
	} {
		var r *Resolver
		if d == nil {
			r = NewResolver(nil, nil)
		} else {
			r = testResolver(t, d)
		}

		ws := r.Resolve(httptest.NewRequest("GET", "https://prod--example--com---user42.gw.test/a?PP_WSID=x", nil), auth.User{ID: "user42"})
		assert.True(t, ws.Unnamed)
		assert.Empty(t, ws.ID)
		assert.Nil(t, ws.Tasks())
	}
}

func TestDestinationURL(t *testing.T) {
	r := testResolver(t, testDefinitions())
	user42 := auth.User{ID: "user42"}

	for _, ti := range []struct {
		msg      string
		url      string
		user     auth.User
		expected string
	}{{
		msg:      "destination in host",
		url:      "https://prod--example--com---user42.gw.test/api/items?a=1&PP_TOKEN=abc",
		user:     user42,
		expected: "https://prod.example.com/api/items?a=1",
	}, {
		msg:      "destination and scheme in host",
		url:      "https://http---localhost--test---user42.gw.test/x",
		user:     user42,
		expected: "http://localhost.test/x",
	}, {
		msg:      "host wins over the template",
		url:      "https://prod--example--com---user42.gw.test/y?PP_WSID=orders",
		user:     user42,
		expected: "https://prod.example.com/y",
	}, {
		msg:      "template with placeholders",
		url:      "https://user42.gw.test/items/1?PP_WSID=orders&PP_TOKEN=t&q=x%20y",
		user:     user42,
		expected: "http://localhost:9000/user42/items/1?q=x%20y",
	}, {
		msg:      "template without path placeholder",
		url:      "https://other.gw.test/items/1?PP_WSID=orders",
		user:     auth.User{ID: "other"},
		expected: "https://orders.example.org/v1/items/1",
	}, {
		msg:      "template without path placeholder, root path",
		url:      "https://user42.gw.test/",
		user:     user42,
		expected: "http://localhost:9001",
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			req := httptest.NewRequest("GET", ti.url, nil)
			u, err := r.Resolve(req, ti.user).DestinationURL(req, ti.user)
			require.NoError(t, err)
			assert.Equal(t, ti.expected, u.String())
		})
	}
}

func TestNoDestination(t *testing.T) {
	req := httptest.NewRequest("GET", "https://gw.test/", nil)
	for _, ws := range []*WebService{
		{Unnamed: true},
		{ID: "empty", Definition: &definitions.WebService{ID: "empty"}},
	} {
		_, err := ws.DestinationURL(req, auth.User{})
		assert.ErrorIs(t, err, ErrNoDestination)
	}
}

func TestForwardedQuery(t *testing.T) {
	assert.Equal(t, "", ForwardedQuery(""))
	assert.Equal(t, "b=2&a=1", ForwardedQuery("b=2&PP_UID=u&a=1&PP_TOKEN=t"))
	assert.Equal(t, "flag&x=", ForwardedQuery("flag&&PP_WSID&x="))
	assert.Equal(t, "", ForwardedQuery("PP%5FUID=u"))
}
