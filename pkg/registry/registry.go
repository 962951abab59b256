// Package registry tracks the supervised services of one deployment.
package registry

import (
	"github.com/core-tools/hsu-deploy/pkg/process"
)

// Well-known names of the single-instance services
const (
	ServiceRegistry        = "registry"
	ServiceFailureDetector = "pfd"
)

// Registry maps a logical service name to its current process handle.
// Only names inserted with Set are supervised. Entries are overwritten in
// place on restart and never removed; iteration follows first insertion.
//
// A Registry belongs to the supervision loop alone and does no locking.
type Registry struct {
	order   []string
	handles map[string]process.Handle
}

func New() *Registry {
	return &Registry{
		handles: make(map[string]process.Handle),
	}
}

// Set inserts name or replaces its handle
func (r *Registry) Set(name string, handle process.Handle) {
	if _, exists := r.handles[name]; !exists {
		r.order = append(r.order, name)
	}
	r.handles[name] = handle
}

func (r *Registry) Get(name string) (process.Handle, bool) {
	handle, ok := r.handles[name]
	return handle, ok
}

// Names returns the tracked service names in insertion order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Each calls fn for every entry in insertion order. fn may Set the entry it
// is given; the handle passed in is the one current when the entry was reached.
func (r *Registry) Each(fn func(name string, handle process.Handle) error) error {
	for _, name := range r.Names() {
		if err := fn(name, r.handles[name]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Len() int {
	return len(r.order)
}
