package provider

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoProviders = errors.New("no providers configured")

// Registry holds the configured invokers in registration order. The first
// registered invoker is the auto-selection target used by fallback attempts.
type Registry struct {
	order    []string
	invokers map[string]Invoker
}

func NewRegistry() *Registry {
	return &Registry{invokers: make(map[string]Invoker)}
}

func (r *Registry) Register(inv Invoker) {
	name := inv.Name()
	if _, exists := r.invokers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.invokers[name] = inv
}

// Resolve returns the invoker for name. An empty name or "auto" selects the
// first registered provider.
func (r *Registry) Resolve(name string) (Invoker, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		if len(r.order) == 0 {
			return nil, ErrNoProviders
		}
		return r.invokers[r.order[0]], nil
	}
	inv, ok := r.invokers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return inv, nil
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
