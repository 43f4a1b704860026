package primitives

import (
	"sort"
	"sync"

	"github.com/isdmx/luabox/sandbox"
	"go.uber.org/zap"
)

// Factory builds the host function for one sandbox.
type Factory func(sb *sandbox.Sandbox, logger *zap.Logger) sandbox.HostFunc

// Registry holds the primitives installed into new sandboxes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// Default returns a registry with the built-in primitives.
func Default(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(PrintName, Print)
	r.Register(LogName, Log)
	r.Register(InfoName, Info)
	return r
}

// Register adds or replaces the primitive called name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	return f, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install sets every registered primitive as a global of sb's VM.
func (r *Registry) Install(sb *sandbox.Sandbox) error {
	names := r.List()
	logger := r.logger.With(zap.String("sandbox", sb.Name()))

	for _, name := range names {
		f, ok := r.Get(name)
		if !ok {
			continue
		}
		if err := sb.Register(name, f(sb, logger)); err != nil {
			return err
		}
	}
	logger.Debug("primitives installed", zap.Strings("names", names))
	return nil
}
