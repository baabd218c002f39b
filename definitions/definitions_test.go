package definitions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/auth"
	"github.com/passeplat/passeplat/hostmatch"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	return root
}

func TestLoad(t *testing.T) {
	root := writeTree(t, map[string]string{
		"global/trusted_hosts.yaml": `
base: ['gw\.test']
with_user_id: ['[a-z0-9]+\.gw\.test']
with_destination: ['[a-z0-9-]+---[a-z0-9]+\.gw\.test']
`,
		"global/users.json": `{"user42": {"token": "abc"}, "open": {}}`,
		"global/webservices/default.yaml": `
destination: https://fallback.example.org/{path}
`,
		"global/webservices/orders.yaml": `
name: Orders
destination: https://orders.example.org/{uid}/{path}
tasks:
- type: cache
  options:
    window: 1h
  conditions:
  - type: method
    options:
      methods: [GET]
`,
		"global/webservices/broken.yaml":         "destination: not-a-url\n",
		"global/webservices/unknown-field.yaml":  "destination: https://x.org\nfoo: bar\n",
		"users/user42/webservices/orders.json":   `{"name": "My orders", "destination": "http://localhost:9000"}`,
		"users/user42/webservices/default.yml":   "name: Mine\n",
		"users/nobody/webservices/notes.txt":     "ignored",
		"users/.hidden/webservices/default.yaml": "name: Hidden\n",
		"global/webservices/missing-type.yaml":   "tasks:\n- options: {}\n",
		"global/webservices/condition-type.yaml": "tasks:\n- type: cache\n  conditions:\n  - {}\n",
	})

	d, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, hostmatch.Patterns{
		Base:            []string{`gw\.test`},
		WithUserID:      []string{`[a-z0-9]+\.gw\.test`},
		WithDestination: []string{`[a-z0-9-]+---[a-z0-9]+\.gw\.test`},
	}, d.TrustedHosts)

	assert.Equal(t, map[string]auth.User{
		"user42": {Token: "abc"},
		"open":   {},
	}, d.Users)

	assert.Len(t, d.GlobalWebServices, 2)
	orders, ok := d.Global("orders")
	require.True(t, ok)
	if diff := cmp.Diff(&WebService{
		ID:          "orders",
		Scope:       ScopeGlobal,
		Name:        "Orders",
		Destination: "https://orders.example.org/{uid}/{path}",
		Tasks: []Task{{
			Type:    "cache",
			Options: map[string]interface{}{"window": "1h"},
			Conditions: []Condition{{
				Type:    "method",
				Options: map[string]interface{}{"methods": []interface{}{"GET"}},
			}},
		}},
	}, orders); diff != "" {
		t.Errorf("unexpected web service (-want +got):\n%s", diff)
	}

	mine, ok := d.User("user42", "orders")
	require.True(t, ok)
	assert.Equal(t, ScopeUser, mine.Scope)
	assert.Equal(t, "user42", mine.UserID)
	assert.Equal(t, "http://localhost:9000", mine.Destination)

	_, ok = d.User("user42", DefaultWebServiceID)
	assert.True(t, ok)

	_, ok = d.User("nobody", "notes")
	assert.False(t, ok)
	assert.NotContains(t, d.UserWebServices, ".hidden")
}

func TestLoadOpenGateway(t *testing.T) {
	d, err := Load(writeTree(t, map[string]string{"global/webservices/default.yaml": "name: x\n"}))
	require.NoError(t, err)
	assert.Empty(t, d.Users)
	assert.NotNil(t, d.Users)
	assert.True(t, d.TrustedHosts.Empty())
}

func TestLoadFailures(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = Load(writeTree(t, map[string]string{"global/users.yaml": "[1, 2\n"}))
	assert.Error(t, err)

	_, err = Load(writeTree(t, map[string]string{"global/trusted_hosts.yaml": "base: 42\nother: 1\n"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, ti := range []struct {
		msg string
		ws  WebService
		ok  bool
	}{{
		msg: "empty",
		ok:  true,
	}, {
		msg: "template",
		ws:  WebService{Destination: "https://{wsid}.example.org/{uid}/{path}"},
		ok:  true,
	}, {
		msg: "relative destination",
		ws:  WebService{Destination: "/api"},
	}, {
		msg: "missing task type",
		ws:  WebService{Tasks: []Task{{}}},
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			err := ti.ws.Validate()
			if ti.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
