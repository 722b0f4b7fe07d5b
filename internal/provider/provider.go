package provider

import (
	"context"
	"sort"
	"strings"
)

// Adapter abstracts a text-generation backend. Implementations stream a lazy,
// finite sequence of text fragments by invoking onFragment once per fragment.
// The sequence is not restartable: once consumption fails partway there is no
// way to resume it, only to start a new generation. Implementations must
// return promptly when the context is canceled.
type Adapter interface {
	// Name returns the provider identifier used in requests (e.g. "openai").
	Name() string
	// DefaultModel returns the model used when a request omits one.
	DefaultModel() string
	// Generate streams fragments for the given request. A non-nil error from
	// onFragment aborts the stream and is returned as-is.
	Generate(ctx context.Context, req Request, onFragment func(string) error) error
}

// Request captures generation parameters passed to an adapter.
type Request struct {
	Prompt       string
	Model        string
	Temperature  float64
	MaxFragments int
}

// Registry maps provider names to adapters.
type Registry struct {
	adapters map[string]Adapter
	def      string
}

// NewRegistry builds a registry from the given adapters. The first adapter is
// the default unless overridden with SetDefault.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		name := strings.ToLower(a.Name())
		r.adapters[name] = a
		if r.def == "" {
			r.def = name
		}
	}
	return r
}

// SetDefault overrides the default provider name. Unknown names are ignored.
func (r *Registry) SetDefault(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := r.adapters[name]; ok {
		r.def = name
	}
}

// Default returns the default provider name ("" when the registry is empty).
func (r *Registry) Default() string { return r.def }

// Get resolves a provider by name. An empty name resolves to the default.
func (r *Registry) Get(name string) (Adapter, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.def
	}
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
