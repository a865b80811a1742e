package payment

import (
	"fmt"
	"sync"
)

// Registry holds gateways in registration order.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

func (r *Registry) Register(g Gateway) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := g.ID()
	if id == "" {
		return fmt.Errorf("gateway id is empty")
	}
	if _, ok := r.gateways[id]; ok {
		return fmt.Errorf("gateway %q already registered", id)
	}
	r.gateways[id] = g
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) Get(id string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, id)
	}
	return g, nil
}

// Available lists enabled gateways.
func (r *Registry) Available() []Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Gateway, 0, len(r.order))
	for _, id := range r.order {
		if g := r.gateways[id]; g.Enabled() {
			out = append(out, g)
		}
	}
	return out
}

func (r *Registry) All() []Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Gateway, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.gateways[id])
	}
	return out
}
