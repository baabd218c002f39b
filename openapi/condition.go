package openapi

import (
	"errors"

	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/tasks"
)

var errResponseNotReceived = errors.New("response not received yet")

type conditionOptions struct {
	options
	Valid   *bool `json:"valid"`
}

type conditionSpec struct {
	validator Validator
}

type condition struct {
	options
	valid     bool
	validator Validator
}

// NewCondition creates the openapi condition.
func NewCondition(v Validator) conditions.Spec { return &conditionSpec{validator: v} }

func (s *conditionSpec) Name() string { return Name }

func (s *conditionSpec) CreateCondition(o tasks.Options) (conditions.Condition, error) {
	if s.validator == nil {
		return nil, &tasks.MissingParameterError{Source: Name, Parameter: "validator"}
	}

	var opts conditionOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if err := opts.init(); err != nil {
		return nil, err
	}

	c := &condition{options: opts.options, valid: true, validator: s.validator}
	if opts.Valid != nil {
		c.valid = *opts.Valid
	}

	return c, nil
}

// Evaluate validates the target message. The response can be validated
// only after it was received.
func (c *condition) Evaluate(ctx *tasks.Context, phase tasks.Phase) (bool, error) {
	if c.Target == Response && phase != tasks.EmittedResponse {
		return false, errResponseNotReceived
	}

	vs, err := c.validate(c.validator, ctx)
	if err != nil {
		return false, err
	}

	return (len(vs) == 0) == c.valid, nil
}
