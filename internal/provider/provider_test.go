package provider

import (
	"context"
	"testing"
)

type fakeAdapter struct{ name, model string }

func (f fakeAdapter) Name() string         { return f.name }
func (f fakeAdapter) DefaultModel() string { return f.model }
func (f fakeAdapter) Generate(ctx context.Context, req Request, onFragment func(string) error) error {
	return nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(fakeAdapter{name: "openai", model: "gpt-4o"}, fakeAdapter{name: "ollama", model: "llama3"})
	if _, ok := r.Get("openai"); !ok {
		t.Fatalf("expected openai to resolve")
	}
	if _, ok := r.Get("OLLAMA"); !ok {
		t.Fatalf("expected lookup to be case-insensitive")
	}
	if _, ok := r.Get("anthropic"); ok {
		t.Fatalf("unexpected resolution for unregistered provider")
	}
}

func TestRegistryDefault(t *testing.T) {
	r := NewRegistry(fakeAdapter{name: "openai"}, fakeAdapter{name: "ollama"})
	if r.Default() != "openai" {
		t.Fatalf("expected first adapter as default, got %q", r.Default())
	}
	a, ok := r.Get("")
	if !ok || a.Name() != "openai" {
		t.Fatalf("empty name should resolve to default, got %v %v", a, ok)
	}
	r.SetDefault("ollama")
	if r.Default() != "ollama" {
		t.Fatalf("SetDefault not applied: %q", r.Default())
	}
	r.SetDefault("missing")
	if r.Default() != "ollama" {
		t.Fatalf("SetDefault with unknown name must be ignored: %q", r.Default())
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry(fakeAdapter{name: "ollama"}, fakeAdapter{name: "openai"})
	names := r.Names()
	if len(names) != 2 || names[0] != "ollama" || names[1] != "openai" {
		t.Fatalf("unexpected names: %v", names)
	}
}
