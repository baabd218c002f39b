/*
Package conditions defines the plugin interface of the conditions that
gate the execution of the tasks.

A task runs only when all its conditions are satisfied. A condition
that fails to evaluate, e.g. because the data it checks is not
available in the current phase, is treated as not satisfied.
*/
package conditions

import (
	"sort"

	"github.com/passeplat/passeplat/tasks"
)

// Spec creates the condition instances of a condition type.
type Spec interface {
	Name() string
	CreateCondition(tasks.Options) (Condition, error)
}

// Condition instances are shared by the concurrent transactions.
type Condition interface {

	// Evaluate tells whether the task can run in the phase. An error
	// means that the condition is not satisfied.
	Evaluate(*tasks.Context, tasks.Phase) (bool, error)
}

// Registry of the condition specs by name.
type Registry struct {
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

func (r *Registry) Add(s ...Spec) {
	for _, si := range s {
		r.specs[si.Name()] = si
	}
}

func (r *Registry) Get(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

func (r *Registry) Remove(name string) {
	delete(r.specs, name)
}

// Names returns the registered condition types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}

	sort.Strings(names)
	return names
}
