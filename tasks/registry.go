package tasks

import "sort"

// Registry of the task specs by name and version.
type Registry struct {
	specs map[string]map[int]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]map[int]Spec)}
}

// Add registers specs. A spec replaces a registered one with the same
// name and version.
func (r *Registry) Add(s ...Spec) {
	for _, si := range s {
		versions, ok := r.specs[si.Name()]
		if !ok {
			versions = make(map[int]Spec)
			r.specs[si.Name()] = versions
		}

		versions[si.Version()] = si
	}
}

// Get returns the Spec of a task type. Version 0 selects the highest
// registered version.
func (r *Registry) Get(name string, version int) (Spec, bool) {
	versions := r.specs[name]
	if version != 0 {
		s, ok := versions[version]
		return s, ok
	}

	var (
		latest Spec
		max    int
	)

	for v, s := range versions {
		if latest == nil || v > max {
			latest, max = s, v
		}
	}

	return latest, latest != nil
}

func (r *Registry) Remove(name string) {
	delete(r.specs, name)
}

// Names returns the registered task types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}

	sort.Strings(names)
	return names
}
