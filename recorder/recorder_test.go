package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/logsink"
	"github.com/passeplat/passeplat/logsink/memory"
)

func newContent(t *testing.T) *analyzable.Content {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := analyzable.New(analyzable.Process{Start: now, Hostname: "gw1"}, analyzable.Options{ID: "tx1", Now: func() time.Time { return now }})
	c.Request.Set("GET", "/orders")
	c.SetDestinationURL("https://destination.test/orders")
	c.WebService.SetWebService("orders", "Orders", "global", false)
	c.WebService.SetStatus(analyzable.Status2XX)
	c.Response().SetStatusCode(200)
	c.Response().Body.Write([]byte(`{"orders":[]}`))
	c.Trace("handled")
	return c
}

func TestBuild(t *testing.T) {
	r := New(Options{Sink: memory.New()})
	rec := r.Build(newContent(t))

	assert.Equal(t, "2024-05-01T10:00:00.000000Z", rec[logsink.TimeField])
	assert.Equal(t, 200, rec[logsink.StatusField])
	assert.Equal(t, "orders", rec["passeplat_wsid"])
	assert.Equal(t, "GET", rec["http_method"])
	assert.Equal(t, "https://destination.test/orders", rec["destination_url"])
	assert.Equal(t, "gw1", rec["gateway_hostname"])

	var trace []analyzable.ExportedTraceEntry
	require.NoError(t, json.Unmarshal([]byte(rec.String(TraceField)), &trace))
	assert.Contains(t, trace, analyzable.ExportedTraceEntry{
		Datetime:     "2024-05-01T10:00:00.000000Z",
		Microseconds: "0",
		Source:       "Content",
		Details:      "handled",
	})

	r = New(Options{Sink: memory.New(), DisableTrace: true})
	_, ok := r.Build(newContent(t))[TraceField]
	assert.False(t, ok)
}

func TestRecord(t *testing.T) {
	s := memory.New()
	r := New(Options{Sink: s})
	c := newContent(t)
	require.NoError(t, c.Errors.Add(analyzable.LoggableError{Type: analyzable.TaskFailure, Source: "alter", Message: "failed"}))
	require.NoError(t, c.Errors.Add(analyzable.LoggableError{Type: analyzable.ValidationError, Source: "openapi", Message: "invalid"}))

	id, err := r.Record(context.Background(), c)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records := s.Records(logsink.DefaultIndex)
	require.Len(t, records, 1)
	assert.Equal(t, "orders", records[0]["passeplat_wsid"])

	errs := s.Records(logsink.DefaultErrorsIndex)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, id, e[logsink.ParentField])
	}
}

func TestRecordAsync(t *testing.T) {
	s := memory.New()
	r := New(Options{Sink: s, Index: "log", ErrorsIndex: "errors"})
	for i := 0; i < 3; i++ {
		r.RecordAsync(newContent(t))
	}

	r.Wait()
	assert.Len(t, s.Records("log"), 3)
	assert.Empty(t, s.Records("errors"))
}

type failingSink struct{ *memory.Sink }

func (failingSink) LogItem(context.Context, string, logsink.Record) (logsink.ItemResult, error) {
	return logsink.ItemResult{}, errors.New("sink down")
}

func TestSinkFailure(t *testing.T) {
	r := New(Options{Sink: failingSink{memory.New()}})
	_, err := r.Record(context.Background(), newContent(t))
	assert.Error(t, err)

	r.RecordAsync(newContent(t))
	r.Wait()
}
