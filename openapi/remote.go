package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRemoteTimeout = 5 * time.Second

// RemoteOptions configure a validator service client.
type RemoteOptions struct {

	// URL of the validation endpoint.
	URL string

	// Timeout of a validation call, defaults to 5s.
	Timeout time.Duration

	// Client overrides the HTTP client.
	Client *http.Client
}

type remoteRequest struct {
	Spec    string   `json:"spec"`
	Message *Message `json:"message"`
}

type remoteResponse struct {
	Violations []Violation `json:"violations"`
}

// Remote calls a validator service. The service receives the document
// name and the message as JSON, and responds with the list of the
// violations.
type Remote struct {
	url    string
	client *http.Client
}

func NewRemote(o RemoteOptions) (*Remote, error) {
	if o.URL == "" {
		return nil, fmt.Errorf("missing validator URL")
	}

	if o.Timeout <= 0 {
		o.Timeout = defaultRemoteTimeout
	}

	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}

	return &Remote{url: o.URL, client: o.Client}, nil
}

func (r *Remote) Validate(ctx context.Context, spec string, m *Message) ([]Violation, error) {
	b, err := json.Marshal(remoteRequest{Spec: spec, Message: m})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	rsp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, rsp.Body)
		return nil, fmt.Errorf("validator responded with %d", rsp.StatusCode)
	}

	var vr remoteResponse
	if err := json.NewDecoder(rsp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("invalid validator response: %w", err)
	}

	return vr.Violations, nil
}
