package passeplat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newDestination(t *testing.T, body string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Path", r.URL.Path)
		w.Write([]byte(body))
	}))

	t.Cleanup(s.Close)
	return s
}

func testOptions(root string) Options {
	return Options{
		ConfigDir:            root,
		ApplicationLogOutput: io.Discard,
		AccessLogOutput:      io.Discard,
	}
}

func newGateway(t *testing.T, o Options) *Gateway {
	t.Helper()
	g, err := New(o)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func get(h http.Handler, url string) *httptest.ResponseRecorder {
	rsp := httptest.NewRecorder()
	h.ServeHTTP(rsp, httptest.NewRequest("GET", url, nil))
	return rsp
}

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestNewFailures(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, map[string]string{
		"badhosts/global/trusted_hosts.yaml": "base: ['(']\n",
	})

	for _, test := range []struct {
		msg     string
		options Options
	}{{
		msg:     "missing config directory",
		options: Options{},
	}, {
		msg:     "config directory does not exist",
		options: Options{ConfigDir: filepath.Join(root, "missing")},
	}, {
		msg:     "invalid log sink",
		options: Options{ConfigDir: root, LogSink: "kafka"},
	}, {
		msg:     "invalid log level",
		options: Options{ConfigDir: root, ApplicationLogLevel: "loud"},
	}, {
		msg:     "invalid trusted host pattern",
		options: Options{ConfigDir: filepath.Join(root, "badhosts")},
	}} {
		t.Run(test.msg, func(t *testing.T) {
			test.options.ApplicationLogOutput = io.Discard
			test.options.AccessLogOutput = io.Discard
			_, err := New(test.options)
			assert.Error(t, err)
		})
	}
}

func TestGateway(t *testing.T) {
	d := newDestination(t, "hello")
	root := t.TempDir()
	writeConfig(t, root, map[string]string{
		"global/webservices/default.yaml": fmt.Sprintf("destination: %s/{path}\n", d.URL),
		"global/users.yaml":               "alice:\n  token: secret\n",
	})

	g := newGateway(t, testOptions(root))
	h := g.Handler()

	rsp := get(h, "/hello?PP_UID=alice&PP_TOKEN=secret")
	assert.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, "hello", rsp.Body.String())

	rsp = get(h, "/hello")
	assert.Equal(t, http.StatusUnauthorized, rsp.Code)

	rsp = get(h, "/hello?PP_UID=alice&PP_TOKEN=wrong")
	assert.Equal(t, http.StatusUnauthorized, rsp.Code)
}

func TestReload(t *testing.T) {
	first := newDestination(t, "first")
	second := newDestination(t, "second")
	root := t.TempDir()
	writeConfig(t, root, map[string]string{
		"global/webservices/default.yaml": fmt.Sprintf("destination: %s\n", first.URL),
	})

	g := newGateway(t, testOptions(root))
	assert.Equal(t, "first", get(g.Handler(), "/").Body.String())

	writeConfig(t, root, map[string]string{
		"global/webservices/default.yaml": fmt.Sprintf("destination: %s\n", second.URL),
	})

	require.NoError(t, g.Reload())
	assert.Equal(t, "second", get(g.Handler(), "/").Body.String())

	writeConfig(t, root, map[string]string{
		"global/trusted_hosts.yaml": "base: ['(']\n",
	})

	assert.Error(t, g.Reload())
	assert.Equal(t, "second", get(g.Handler(), "/").Body.String(), "previous configuration stays active")
}

func TestSupportHandler(t *testing.T) {
	d := newDestination(t, "hello")
	root := t.TempDir()
	writeConfig(t, root, map[string]string{
		"global/webservices/default.yaml": fmt.Sprintf("destination: %s\n", d.URL),
	})

	o := testOptions(root)
	o.MetricsPrefix = "gw"
	g := newGateway(t, o)
	get(g.Handler(), "/")

	s := g.SupportHandler()
	rsp := get(s, "/healthz")
	assert.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, "ok\n", rsp.Body.String())

	rsp = get(s, "/metrics")
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Contains(t, rsp.Body.String(), "gw_serve_webservice_count")
	assert.Contains(t, rsp.Body.String(), "gw_auth_total")

	rsp = get(s, "/other")
	assert.Equal(t, http.StatusNotFound, rsp.Code)
}

func TestAccessLog(t *testing.T) {
	d := newDestination(t, "hello")
	root := t.TempDir()
	writeConfig(t, root, map[string]string{
		"global/webservices/default.yaml": fmt.Sprintf("destination: %s\n", d.URL),
	})

	var buf bytes.Buffer
	o := testOptions(root)
	o.AccessLogOutput = &buf
	g := newGateway(t, o)

	get(g.Handler(), "/foo")
	assert.Contains(t, buf.String(), `"GET /foo HTTP/1.1" 200 5`)
}

func TestServe(t *testing.T) {
	d := newDestination(t, "served")
	root := t.TempDir()
	writeConfig(t, root, map[string]string{
		"global/webservices/default.yaml": fmt.Sprintf("destination: %s/{path}\n", d.URL),
	})

	o := testOptions(root)
	o.Address = freeAddress(t)
	o.SupportListener = freeAddress(t)
	o.WatchConfigDir = true
	o.ConfigDebounce = 10 * time.Millisecond
	g := newGateway(t, o)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Serve(ctx) }()

	require.Eventually(t, func() bool {
		rsp, err := http.Get("http://" + o.Address + "/foo")
		if err != nil {
			return false
		}

		defer rsp.Body.Close()
		b, _ := io.ReadAll(rsp.Body)
		return rsp.StatusCode == http.StatusOK && string(b) == "served"
	}, 3*time.Second, 20*time.Millisecond)

	rsp, err := http.Get("http://" + o.SupportListener + "/healthz")
	require.NoError(t, err)
	rsp.Body.Close()
	assert.Equal(t, http.StatusOK, rsp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}

func TestServeListenFailure(t *testing.T) {
	root := t.TempDir()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	o := testOptions(root)
	o.Address = l.Addr().String()
	g := newGateway(t, o)
	assert.Error(t, g.Serve(context.Background()))
}
