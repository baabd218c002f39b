/*
Package headers implements the headers task, that modifies the headers
of the request forwarded to the destination, or of the response
emitted to the client.

Options:

	target: request (default) or response
	set:    header values to set, replacing the existing ones
	add:    header values to add
	remove: header names to delete

The removals are applied first, then the set and the add operations.
*/
package headers

import (
	"fmt"
	"sort"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
)

const (
	Name = "headers"

	TargetRequest  = "request"
	TargetResponse = "response"
)

type options struct {
	Target string            `json:"target"`
	Set    map[string]string `json:"set"`
	Add    map[string]string `json:"add"`
	Remove []string          `json:"remove"`
}

type spec struct{}

type task struct {
	phase  tasks.Phase
	set    [][2]string
	add    [][2]string
	remove []string
}

func NewHeaders() tasks.Spec { return spec{} }

func (spec) Name() string { return Name }
func (spec) Version() int { return 1 }

func (spec) Phases() []tasks.Phase {
	return []tasks.Phase{tasks.DestinationRequestPreparation, tasks.StartedReceiving}
}

func sorted(m map[string]string) [][2]string {
	var kv [][2]string
	for k, v := range m {
		kv = append(kv, [2]string{k, v})
	}

	sort.Slice(kv, func(i, j int) bool { return kv[i][0] < kv[j][0] })
	return kv
}

func (spec) CreateTask(o tasks.Options) (tasks.Task, error) {
	var opts options
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	t := &task{set: sorted(opts.Set), add: sorted(opts.Add), remove: opts.Remove}
	switch opts.Target {
	case "", TargetRequest:
		t.phase = tasks.DestinationRequestPreparation
	case TargetResponse:
		t.phase = tasks.StartedReceiving
	default:
		return nil, fmt.Errorf("%w: invalid target %s", tasks.ErrInvalidOptions, opts.Target)
	}

	if len(t.set) == 0 && len(t.add) == 0 && len(t.remove) == 0 {
		return nil, &tasks.MissingParameterError{Source: Name, Parameter: "set, add or remove"}
	}

	return t, nil
}

func (t *task) Execute(ctx *tasks.Context, p tasks.Phase) error {
	if p != t.phase {
		return nil
	}

	var h *analyzable.Header
	if p == tasks.DestinationRequestPreparation {
		h = ctx.Content.DestinationRequest.Header
	} else {
		h = ctx.Content.Response().Header
	}

	for _, k := range t.remove {
		h.Del(k)
	}

	for _, kv := range t.set {
		h.Set(kv[0], kv[1])
	}

	for _, kv := range t.add {
		h.Add(kv[0], kv[1])
	}

	return nil
}
