package logging

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	dateFormat = "02/Jan/2006:15:04:05 -0700"

	// remote_host - user [date] "method uri protocol" status response_size
	// "referer" "user_agent" duration_ms requested_host transaction webservice
	accessLogFormat = `%s - %s [%s] "%s %s %s" %d %d "%s" "%s" %d %s %s %s` + "\n"
)

// The order of the fields in the text access log.
var accessLogKeys = []string{
	"host", "user", "timestamp", "method", "uri", "proto",
	"status", "response-size", "referer", "user-agent",
	"duration", "requested-host", "transaction", "webservice",
}

type accessLogFormatter struct {
	format string
}

// AccessEntry is one line of the gateway access log.
type AccessEntry struct {

	// The initiator request.
	Request *http.Request

	// The status code sent to the initiator.
	StatusCode int

	// The size of the response body in bytes.
	ResponseSize int64

	// The time spent serving the transaction.
	Duration time.Duration

	// The time that the request was received.
	RequestTime time.Time

	// Identifier of the transaction, shared with the recorded
	// telemetry.
	TransactionID string

	// The resolved web service, empty for the unnamed fallback.
	WebServiceID string

	// The authenticated user, empty for unrestricted access.
	UserID string
}

var accessLog *logrus.Logger

// clientHost returns the host of the initiator, preferring the
// X-Forwarded-For header over the remote address.
func clientHost(r *http.Request) string {
	a := r.Header.Get("X-Forwarded-For")
	if a == "" {
		a = r.RemoteAddr
	}

	if h, _, err := net.SplitHostPort(a); err == nil {
		a = h
	}

	return orDash(a)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func (f *accessLogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	values := make([]interface{}, len(accessLogKeys))
	for i, key := range accessLogKeys {
		values[i] = e.Data[key]
	}

	return []byte(fmt.Sprintf(f.format, values...)), nil
}

func (entry *AccessEntry) fields() logrus.Fields {
	f := logrus.Fields{
		"timestamp":      entry.RequestTime.Format(dateFormat),
		"host":           "-",
		"user":           orDash(entry.UserID),
		"method":         "",
		"uri":            "",
		"proto":          "",
		"referer":        "",
		"user-agent":     "",
		"requested-host": "",
		"status":         entry.StatusCode,
		"response-size":  entry.ResponseSize,
		"duration":       entry.Duration.Milliseconds(),
		"transaction":    orDash(entry.TransactionID),
		"webservice":     orDash(entry.WebServiceID),
	}

	if r := entry.Request; r != nil {
		f["host"] = clientHost(r)
		f["method"] = r.Method
		f["uri"] = r.RequestURI
		f["proto"] = r.Proto
		f["referer"] = r.Referer()
		f["user-agent"] = r.UserAgent()
		f["requested-host"] = r.Host
	}

	return f
}

// LogAccess logs a served transaction in Apache combined log format,
// with the duration, the requested host, the transaction and the web
// service appended. It does nothing when the access log is disabled.
func LogAccess(entry *AccessEntry) {
	if accessLog == nil || entry == nil {
		return
	}

	accessLog.WithFields(entry.fields()).Infoln()
}
