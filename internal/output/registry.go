package output

import (
	"fmt"
	"slices"
	"sort"
)

// Registry maps each export format to the adapter that writes it
type Registry struct {
	byFormat map[Format]Adapter
}

// NewRegistry registers the given adapters. A format claimed by two
// adapters is an error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{byFormat: make(map[Format]Adapter)}
	for _, a := range adapters {
		for _, f := range a.Formats() {
			if prev, ok := r.byFormat[f]; ok {
				return nil, fmt.Errorf("format %s claimed by both %s and %s", f, prev.Name(), a.Name())
			}
			r.byFormat[f] = a
		}
	}
	return r, nil
}

// ForFormat returns the adapter writing format
func (r *Registry) ForFormat(format Format) (Adapter, error) {
	a, ok := r.byFormat[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q (supported: %v)", format, r.Formats())
	}
	return a, nil
}

// Formats lists the supported formats in name order
func (r *Registry) Formats() []Format {
	out := make([]Format, 0, len(r.byFormat))
	for f := range r.byFormat {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Adapters lists the distinct adapters sorted by name
func (r *Registry) Adapters() []Adapter {
	seen := make(map[string]Adapter)
	for _, a := range r.byFormat {
		seen[a.Name()] = a
	}
	out := make([]Adapter, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
