package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrorCodeHeader carries the opaque code of the error responses.
const ErrorCodeHeader = "X-Passeplat-Error-Code"

// Error codes, the first element of the code chain.
const (
	codeUntrustedHost = 1 + iota
	codeUnauthorized
	codeAuthentication
	codeRequestBody
	codePanic = 9
)

// Stages of the processing, appended to the code chain of the panics.
const (
	stageAuthentication = 1 + iota
	stageResolution
	stagePreparation
	stageDispatch
	stageEmit
)

var (
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	errNotProcessed      = errors.New("transaction not processed")
)

// Error is returned when the proxy rejects a request. Only its status
// and code are sent to the initiator.
type Error struct {

	// Status is the HTTP status code of the response.
	Status int

	// Codes is the opaque code chain, e.g. {9, 4} for a panic during
	// the dispatch.
	Codes []int

	// Err is the internal cause, logged only.
	Err error

	additionalHeader http.Header
}

// Code returns the opaque code, in the format PP-<status>-<n>[.<n>].
func (e *Error) Code() string {
	codes := make([]string, len(e.Codes))
	for i, c := range e.Codes {
		codes[i] = strconv.Itoa(c)
	}

	return fmt.Sprintf("PP-%d-%s", e.status(), strings.Join(codes, "."))
}

func (e *Error) status() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}

	return e.Status
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("proxy error %s", e.Code())
	}

	return fmt.Sprintf("proxy error %s: %v", e.Code(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// body returns the text sent to the initiator.
func (e *Error) body() string {
	return fmt.Sprintf("%s (code: %s)", http.StatusText(e.status()), e.Code())
}

func sendError(w http.ResponseWriter, e *Error) {
	for k, v := range e.additionalHeader {
		w.Header()[k] = v
	}

	w.Header().Set(ErrorCodeHeader, e.Code())
	http.Error(w, e.body(), e.status())
}
