package logging

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// LoggingWriter wraps the response writer of a transaction, recording
// the status code and the number of body bytes written.
type LoggingWriter struct {
	writer  http.ResponseWriter
	code    int
	bytes   int64
	started bool
}

func NewLoggingWriter(w http.ResponseWriter) *LoggingWriter {
	return &LoggingWriter{writer: w}
}

func (lw *LoggingWriter) Write(data []byte) (count int, err error) {
	if !lw.started {
		lw.WriteHeader(http.StatusOK)
	}

	count, err = lw.writer.Write(data)
	lw.bytes += int64(count)
	return
}

func (lw *LoggingWriter) WriteHeader(code int) {
	if lw.started {
		return
	}

	if code == 0 {
		code = http.StatusOK
	}

	lw.writer.WriteHeader(code)
	lw.code = code
	lw.started = true
}

func (lw *LoggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *LoggingWriter) Flush() {
	if f, ok := lw.writer.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *LoggingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hij, ok := lw.writer.(http.Hijacker)
	if ok {
		return hij.Hijack()
	}
	return nil, nil, fmt.Errorf("could not hijack connection")
}

// GetCode returns the status code sent to the client, 0 when
// nothing was sent yet.
func (lw *LoggingWriter) GetCode() int { return lw.code }

// GetBytes returns the number of body bytes sent to the client.
func (lw *LoggingWriter) GetBytes() int64 { return lw.bytes }

// Started tells whether the response header was already sent.
func (lw *LoggingWriter) Started() bool { return lw.started }
