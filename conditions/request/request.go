/*
Package request implements the conditions that check the request
received from the initiator:

	method  options: methods, the accepted request methods
	header  options: name, and optionally value, a regular expression
	        matched against the values of the header
	query   options: name, and optionally value, a regular expression
	        matched against the values of the query parameter

Without a value, the header and query conditions check only that the
header or the query parameter exists.
*/
package request

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/tasks"
)

const (
	MethodName = "method"
	HeaderName = "header"
	QueryName  = "query"
)

type methodOptions struct {
	Methods []string `json:"methods"`
}

type methodSpec struct{}

type methodCondition map[string]bool

func NewMethod() conditions.Spec { return methodSpec{} }

func (methodSpec) Name() string { return MethodName }

func (methodSpec) CreateCondition(o tasks.Options) (conditions.Condition, error) {
	var opts methodOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if len(opts.Methods) == 0 {
		return nil, &tasks.MissingParameterError{Source: MethodName, Parameter: "methods"}
	}

	c := make(methodCondition)
	for _, m := range opts.Methods {
		c[strings.ToUpper(m)] = true
	}

	return c, nil
}

func (c methodCondition) Evaluate(ctx *tasks.Context, _ tasks.Phase) (bool, error) {
	return c[ctx.Content.Request.Method()], nil
}

type matchType int

const (
	exists matchType = iota + 1
	matches
)

type valueOptions struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type valueSpec struct {
	name   string
	values func(*tasks.Context, string) ([]string, bool)
}

type valueCondition struct {
	typ    matchType
	name   string
	exp    *regexp.Regexp
	values func(*tasks.Context, string) ([]string, bool)
}

// NewHeader creates the header condition.
func NewHeader() conditions.Spec { return &valueSpec{name: HeaderName, values: headerValues} }

// NewQuery creates the query condition.
func NewQuery() conditions.Spec { return &valueSpec{name: QueryName, values: queryValues} }

func headerValues(ctx *tasks.Context, name string) ([]string, bool) {
	h := ctx.Content.Request.Header
	return h.Values(name), h.Has(name)
}

func queryValues(ctx *tasks.Context, name string) ([]string, bool) {
	u, err := url.ParseRequestURI(ctx.Content.Request.URI())
	if err != nil {
		return nil, false
	}

	v, ok := u.Query()[name]
	return v, ok
}

func (s *valueSpec) Name() string { return s.name }

func (s *valueSpec) CreateCondition(o tasks.Options) (conditions.Condition, error) {
	var opts valueOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	if opts.Name == "" {
		return nil, &tasks.MissingParameterError{Source: s.name, Parameter: "name"}
	}

	c := &valueCondition{typ: exists, name: opts.Name, values: s.values}
	if opts.Value != "" {
		exp, err := regexp.Compile(opts.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", tasks.ErrInvalidOptions, err)
		}

		c.typ, c.exp = matches, exp
	}

	return c, nil
}

func (c *valueCondition) Evaluate(ctx *tasks.Context, _ tasks.Phase) (bool, error) {
	values, ok := c.values(ctx, c.name)
	if !ok {
		return false, nil
	}

	if c.typ == exists {
		return true, nil
	}

	for _, v := range values {
		if c.exp.MatchString(v) {
			return true, nil
		}
	}

	return false, nil
}
