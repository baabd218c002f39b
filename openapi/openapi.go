/*
Package openapi binds an external OpenAPI validator to the pipeline.

The validation of the messages against the OpenAPI documents is done by
the Validator. The package provides the openapi task, that logs the
violations as validation errors of the transaction, and the openapi
condition, that gates tasks on the validity of the messages.

Options of both:

	target: request or response, defaults to request
	spec:   name of the OpenAPI document, defaults to the web service id

Options of the task:

	reject: stop invalid requests with 400 Bad Request

Options of the condition:

	valid: the expected outcome of the validation, defaults to true
*/
package openapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
)

const Name = "openapi"

// Target selects the validated message.
type Target string

const (
	Request  Target = "request"
	Response Target = "response"
)

// Message is the validated request or response.
type Message struct {
	Target  Target      `json:"target"`
	Method  string      `json:"method,omitempty"`
	URI     string      `json:"uri,omitempty"`
	Status  int         `json:"status,omitempty"`
	Header  http.Header `json:"header,omitempty"`
	Body    string      `json:"body,omitempty"`
	Partial bool        `json:"partial,omitempty"`
}

// Violation is one mismatch between a message and its OpenAPI document.
type Violation struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Validator checks a message against an OpenAPI document.
type Validator interface {
	Validate(ctx context.Context, spec string, m *Message) ([]Violation, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(context.Context, string, *Message) ([]Violation, error)

func (f ValidatorFunc) Validate(ctx context.Context, spec string, m *Message) ([]Violation, error) {
	return f(ctx, spec, m)
}

type options struct {
	Target Target `json:"target"`
	Spec   string `json:"spec"`
}

func (o *options) init() error {
	switch o.Target {
	case "":
		o.Target = Request
	case Request, Response:
	default:
		return fmt.Errorf("%w: invalid target %q", tasks.ErrInvalidOptions, o.Target)
	}

	return nil
}

// phase returns the phase when the target message is complete.
func (o options) phase() tasks.Phase {
	if o.Target == Response {
		return tasks.EmittedResponse
	}

	return tasks.DestinationRequestPreparation
}

func (o options) specName(ctx *tasks.Context) string {
	if o.Spec != "" {
		return o.Spec
	}

	return ctx.Content.WebService.ID()
}

func (o options) message(c *analyzable.Content) *Message {
	if o.Target == Response {
		r := c.Response()
		return &Message{
			Target:  Response,
			Status:  r.StatusCode(),
			Header:  r.Header.ToHTTP(),
			Body:    r.Body.String(),
			Partial: !r.Body.IsAnalyzable(),
		}
	}

	return &Message{
		Target:  Request,
		Method:  c.Request.Method(),
		URI:     c.Request.URI(),
		Header:  c.Request.Header.ToHTTP(),
		Body:    c.Request.Body.String(),
		Partial: !c.Request.Body.IsAnalyzable(),
	}
}

func (o options) validate(v Validator, ctx *tasks.Context) ([]Violation, error) {
	vs, err := v.Validate(ctx.Context(), o.specName(ctx), o.message(ctx.Content))
	if err != nil {
		return nil, fmt.Errorf("validation of the %s failed: %w", o.Target, err)
	}

	return vs, nil
}
