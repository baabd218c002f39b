package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWritesAndCounts(t *testing.T) {
	rr := httptest.NewRecorder()
	w := NewLoggingWriter(rr)

	body := "Hello, world!"
	w.Write([]byte(body))
	assert.Equal(t, body, rr.Body.String())
	assert.Equal(t, int64(len(body)), w.GetBytes())
	assert.Equal(t, http.StatusOK, w.GetCode())
	assert.True(t, w.Started())
}

func TestWritesAndStoresStatusCode(t *testing.T) {
	rr := httptest.NewRecorder()
	w := NewLoggingWriter(rr)
	assert.False(t, w.Started())

	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusBadGateway)
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, http.StatusTeapot, w.GetCode())
	assert.True(t, w.Started())
}

func TestReturnsUnderlyingHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	w := NewLoggingWriter(rr)
	w.Header().Set("X-Test-Header", "test-value")
	assert.Equal(t, "test-value", rr.Header().Get("X-Test-Header"))
}

func TestFlushesPartialPayload(t *testing.T) {
	rr := httptest.NewRecorder()
	w := NewLoggingWriter(rr)
	w.Write([]byte("Hello, world!"))
	w.Flush()
	assert.True(t, rr.Flushed)
}

type plainWriter struct {
	http.ResponseWriter
}

func TestFlushWithoutFlusher(t *testing.T) {
	w := NewLoggingWriter(plainWriter{httptest.NewRecorder()})
	assert.NotPanics(t, w.Flush)
}

func TestSets200OnMissingStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	w := NewLoggingWriter(rr)
	w.WriteHeader(0)
	assert.Equal(t, http.StatusOK, w.GetCode())
}

func TestHijackUnsupported(t *testing.T) {
	w := NewLoggingWriter(httptest.NewRecorder())
	_, _, err := w.Hijack()
	assert.Error(t, err)
}
