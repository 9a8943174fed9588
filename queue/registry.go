package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Handler executes one command. args is the JSON the job was submitted with.
// The returned value is stored as the job result.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type commandKey struct {
	namespace string
	name      string
}

func (k commandKey) String() string {
	return k.namespace + "." + k.name
}

// Registry maps (namespace, command name) pairs to handlers.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[commandKey]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[commandKey]Handler)}
}

// Register adds a handler. Registering the same command twice fails with ErrDuplicateHandler.
func (r *Registry) Register(namespace, name string, handler Handler) error {
	if namespace == "" || name == "" {
		return fmt.Errorf("command namespace and name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("nil handler for %s.%s", namespace, name)
	}
	key := commandKey{namespace, name}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}
	r.handlers[key] = handler
	return nil
}

// Lookup returns the handler for a command, or ErrHandlerNotFound.
func (r *Registry) Lookup(namespace, name string) (Handler, error) {
	key := commandKey{namespace, name}
	r.mu.RLock()
	h, ok := r.handlers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, key)
	}
	return h, nil
}

// Commands lists the registered commands as "namespace.name", sorted.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k.String())
	}
	slices.Sort(out)
	return out
}
