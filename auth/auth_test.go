package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/hostmatch"
)

var testPatterns = hostmatch.Patterns{
	Base:            []string{`gw\.test`},
	WithUserID:      []string{`[a-z0-9_-]+\.gw\.test`},
	WithDestination: []string{`[a-z0-9-]+---[a-z0-9_]+\.gw\.test`},
}

var testUsers = map[string]User{
	"user42": {Token: "abc"},
	"open":   {},
	"user7":  {Token: "{SHA}/vNB+F2HQ559kaLUZbmHHvZrXpg="},
}

func newTestAuthenticator(t *testing.T, users map[string]User) *Authenticator {
	m, err := hostmatch.New(testPatterns, hostmatch.Options{})
	require.NoError(t, err)
	return New(NewMapRepository(users), m)
}

type recordingStrategy struct {
	name   string
	user   User
	ok     bool
	err    error
	called *[]string
}

func (s *recordingStrategy) Name() string { return s.name }

func (s *recordingStrategy) Authenticate(*http.Request) (User, bool, error) {
	*s.called = append(*s.called, s.name)
	return s.user, s.ok, s.err
}

type brokenRepository struct{}

var errBroken = errors.New("broken")

func (brokenRepository) Count() (int, error)               { return 1, nil }
func (brokenRepository) Lookup(string) (User, bool, error) { return User{}, false, errBroken }

func TestAuthenticate(t *testing.T) {
	a := newTestAuthenticator(t, testUsers)
	for _, ti := range []struct {
		msg      string
		url      string
		header   http.Header
		expected string
		ok       bool
	}{{
		msg:      "uid in host with token",
		url:      "https://user42.gw.test/path?PP_TOKEN=abc",
		expected: "user42",
		ok:       true,
	}, {
		msg: "uid in host with wrong token",
		url: "https://user42.gw.test/path?PP_TOKEN=abd",
	}, {
		msg: "uid in host without token",
		url: "https://user42.gw.test/path",
	}, {
		msg:      "user without token",
		url:      "https://open.gw.test/",
		expected: "open",
		ok:       true,
	}, {
		msg: "unknown user",
		url: "https://nobody.gw.test/?PP_TOKEN=abc",
	}, {
		msg:      "destination and uid in host",
		url:      "https://prod--example--com---user42.gw.test/?PP_TOKEN=abc",
		expected: "user42",
		ok:       true,
	}, {
		msg:      "destination with scheme and uid in host",
		url:      "https://http---prod--example--com---open.gw.test/",
		expected: "open",
		ok:       true,
	}, {
		msg: "destination with too many segments",
		url: "https://a---b---c---open.gw.test/",
	}, {
		msg:      "query parameters on the base host",
		url:      "https://gw.test/?PP_UID=user42&PP_TOKEN=abc",
		expected: "user42",
		ok:       true,
	}, {
		msg: "query parameters with wrong token",
		url: "https://gw.test/?PP_UID=user42&PP_TOKEN=x",
	}, {
		msg: "base host without credentials",
		url: "https://gw.test/",
	}, {
		msg:      "basic credentials for hashed token",
		url:      "https://gw.test/",
		header:   http.Header{"Authorization": []string{"Basic dXNlcjc6czNjcmV0"}},
		expected: "user7",
		ok:       true,
	}, {
		msg: "hashed token is not accepted as query token",
		url: "https://user7.gw.test/?PP_TOKEN=s3cret",
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			r := httptest.NewRequest("GET", ti.url, nil)
			for k, v := range ti.header {
				r.Header[k] = v
			}

			u, ok, err := a.Authenticate(r)
			require.NoError(t, err)
			assert.Equal(t, ti.ok, ok)
			assert.Equal(t, ti.expected, u.ID)
		})
	}
}

func TestNoUsersConfigured(t *testing.T) {
	a := newTestAuthenticator(t, map[string]User{})
	u, ok, err := a.Authenticate(httptest.NewRequest("GET", "https://anything.gw.test/", nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, u.Unrestricted)
}

func TestInvalidRepository(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	_, ok, err := a.Authenticate(httptest.NewRequest("GET", "https://user42.gw.test/", nil))
	assert.False(t, ok)

	var aerr *AuthenticationError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, ErrInvalidRepository)
}

func TestRepositoryFailureInStrategy(t *testing.T) {
	m, err := hostmatch.New(testPatterns, hostmatch.Options{})
	require.NoError(t, err)

	a := New(brokenRepository{}, m)
	_, ok, err := a.Authenticate(httptest.NewRequest("GET", "https://user42.gw.test/", nil))
	assert.False(t, ok)

	var aerr *AuthenticationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "uid-in-host", aerr.Strategy)
	assert.ErrorIs(t, err, errBroken)
}

func TestStrategyPrecedence(t *testing.T) {
	var called []string
	m, err := hostmatch.New(testPatterns, hostmatch.Options{})
	require.NoError(t, err)

	um := NewUserManager(NewMapRepository(testUsers))
	after := &recordingStrategy{name: "after", ok: true, user: User{ID: "other"}, called: &called}
	a := NewWithStrategies(
		NewMapRepository(testUsers),
		NewQueryParamStrategy(um),
		NewUIDInHostStrategy(m, um),
		NewDestinationAndUIDInHostStrategy(m, um),
		after,
	)

	u, ok, err := a.Authenticate(httptest.NewRequest("GET", "https://prod--example--com---user42.gw.test/?PP_TOKEN=abc", nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user42", u.ID)
	assert.Empty(t, called)

	u, ok, err = a.Authenticate(httptest.NewRequest("GET", "https://gw.test/", nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "other", u.ID)
	assert.Equal(t, []string{"after"}, called)
}

func TestFirstMatchShortCircuits(t *testing.T) {
	var called []string
	a := NewWithStrategies(
		NewMapRepository(testUsers),
		&recordingStrategy{name: "first", called: &called},
		&recordingStrategy{name: "second", ok: true, user: User{ID: "u"}, called: &called},
		&recordingStrategy{name: "third", ok: true, called: &called},
	)

	u, ok, err := a.Authenticate(httptest.NewRequest("GET", "https://gw.test/", nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u", u.ID)
	assert.Equal(t, []string{"first", "second"}, called)
}
