package scheme

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpguts"

	"github.com/passeplat/passeplat/analyzable"
)

const bufferSize = 8192

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopHeaders deletes the hop-by-hop headers, including the ones
// listed in the Connection header. "Te: trailers" is kept.
func RemoveHopHeaders(h http.Header) {
	for _, v := range h["Connection"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); httpguts.ValidHeaderFieldName(name) {
				h.Del(name)
			}
		}
	}

	trailers := httpguts.HeaderValuesContainsToken(h["Te"], "trailers")
	for _, name := range hopHeaders {
		h.Del(name)
	}

	if trailers {
		h.Set("Te", "trailers")
	}
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// CopyStream copies from to the response writer, flushing after every
// read, and returns the number of the bytes written.
func CopyStream(to http.ResponseWriter, from io.Reader) (int64, error) {
	var n int64
	b := make([]byte, bufferSize)
	for {
		l, rerr := from.Read(b)
		if rerr != nil && rerr != io.EOF {
			return n, rerr
		}

		if l > 0 {
			w, werr := to.Write(b[:l])
			n += int64(w)
			if werr != nil {
				return n, werr
			}

			flush(to)
		}

		if rerr == io.EOF {
			return n, nil
		}
	}
}

// applyTransforms applies the body transforms of the content response.
// A failing transform is skipped and recorded as a runtime error.
func applyTransforms(tx *Transaction, body []byte) []byte {
	r := tx.Content.Response()
	for _, t := range r.BodyTransforms() {
		b, err := t(body, r.Header)
		if err != nil {
			log.Debugf("transaction %s: body transform failed: %v", tx.Content.ID(), err)
			tx.Content.Errors.Add(analyzable.LoggableError{
				Type:    analyzable.RuntimeError,
				Source:  "transform",
				Message: err.Error(),
			})

			continue
		}

		body = b
	}

	return body
}

// EmitBuffered sends the content response header and body to the
// initiator, after applying the body transforms registered by the
// tasks.
func EmitBuffered(tx *Transaction, body []byte) error {
	body = applyTransforms(tx, body)
	r := tx.Content.Response()
	r.Header.Del("Content-Encoding")
	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
	tx.WriteHeader()
	_, err := tx.Writer.Write(body)
	return err
}

// ReceiveBuffered reads the destination body for the body transforms, up
// to the body cap of the content. It returns complete false when the body
// is larger. In that case the transforms are skipped: the header and the
// whole body are streamed to the initiator as received, the body component
// captures what fits, and a runtime error is recorded.
func ReceiveBuffered(tx *Transaction, body io.Reader, source string) (b []byte, complete bool, err error) {
	c := tx.Content
	r := c.Response()
	max := r.Body.Cap()
	b, err = io.ReadAll(io.LimitReader(body, int64(max)+1))
	if err != nil {
		return nil, false, err
	}

	if len(b) <= max {
		return b, true, nil
	}

	c.Errors.Add(analyzable.LoggableError{
		Type:    analyzable.RuntimeError,
		Source:  source,
		Message: fmt.Sprintf("body larger than %d bytes, transforms skipped", max),
	})

	tx.WriteHeader()
	_, err = CopyStream(tx.Writer, io.TeeReader(io.MultiReader(bytes.NewReader(b), body), r.Body))
	return nil, false, err
}

// Emit sends the content response, as constructed by the tasks, to the
// initiator.
func Emit(tx *Transaction) error {
	r := tx.Content.Response()
	if len(r.BodyTransforms()) > 0 {
		return EmitBuffered(tx, r.Body.Bytes())
	}

	tx.WriteHeader()
	_, err := tx.Writer.Write(r.Body.Bytes())
	return err
}

// SynthesizeFailure replaces the content response with a plain text
// error response and emits it. Nothing is sent when the response
// header was already written.
func SynthesizeFailure(tx *Transaction, code int) {
	if tx.HeaderWritten() {
		return
	}

	msg := http.StatusText(code)
	c := tx.Content
	r := c.NewResponse()
	r.SetStatusCode(code)
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Header.Set("Content-Length", strconv.Itoa(len(msg)))
	r.Body.Write([]byte(msg))
	c.SetResponse(r)
	if err := Emit(tx); err != nil {
		log.Debugf("transaction %s: failed to emit the error response: %v", c.ID(), err)
	}
}
