package chunker

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pedjoni/idiorag/internal/domain"
)

// DefaultName is the strategy used when nothing else is selected.
const DefaultName = "default"

// StrategyNotFoundError is returned by Get for an unregistered name.
type StrategyNotFoundError struct {
	Name  string
	Known []string
}

func (e *StrategyNotFoundError) Error() string {
	return fmt.Sprintf("chunker %q not found, available chunkers: %s", e.Name, strings.Join(e.Known, ", "))
}

func (e *StrategyNotFoundError) Unwrap() error {
	return domain.ErrStrategyNotFound
}

// Registry maps names to strategy factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	catalog   Catalog
}

// NewRegistry returns a registry holding defaultFactory under DefaultName.
func NewRegistry(defaultFactory Factory, catalog Catalog) *Registry {
	return &Registry{
		factories: map[string]Factory{DefaultName: defaultFactory},
		catalog:   catalog,
	}
}

// Register adds a factory under name, replacing any previous one.
// The factory is invoked once so a broken factory fails here rather than
// during ingestion.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("register chunker: empty name")
	}
	if f == nil {
		return fmt.Errorf("register chunker %q: nil factory", name)
	}
	s, err := f()
	if err != nil {
		return fmt.Errorf("register chunker %q: factory failed: %w", name, err)
	}
	if s == nil {
		return fmt.Errorf("register chunker %q: factory returned nil strategy", name)
	}

	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
	return nil
}

// RegisterStrategy adds an existing instance under name. Every Get returns
// that same instance.
func (r *Registry) RegisterStrategy(name string, s Strategy) error {
	if s == nil {
		return fmt.Errorf("register chunker %q: nil strategy", name)
	}
	return r.Register(name, func() (Strategy, error) { return s, nil })
}

// RegisterFromPath resolves path in the registry's catalog and registers
// the result under name.
func (r *Registry) RegisterFromPath(name, path string) error {
	f, err := r.catalog.Resolve(path)
	if err != nil {
		return fmt.Errorf("register chunker %q: %w", name, err)
	}
	return r.Register(name, f)
}

// Get returns a strategy instance for name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &StrategyNotFoundError{Name: name, Known: r.Names()}
	}
	s, err := f()
	if err != nil {
		return nil, fmt.Errorf("chunker %q: %w", name, err)
	}
	if s == nil {
		return nil, fmt.Errorf("chunker %q: factory returned nil strategy", name)
	}
	return s, nil
}

// Resolve picks a strategy name: an explicit name wins, then the doc type
// mapping, then DefaultName.
func (r *Registry) Resolve(explicit, docType string, docTypeMapping map[string]string) string {
	if explicit != "" {
		return explicit
	}
	if docType != "" {
		if name, ok := docTypeMapping[docType]; ok {
			return name
		}
	}
	return DefaultName
}

// ForDocType returns the strategy mapped to docType, or the default.
func (r *Registry) ForDocType(docType string, docTypeMapping map[string]string) (Strategy, error) {
	return r.Get(r.Resolve("", docType, docTypeMapping))
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
