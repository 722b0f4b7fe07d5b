package cache

import (
	"context"
	"testing"
	"time"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("Hello", "openai", "gpt-4o")
	b := Fingerprint("Hello", "openai", "gpt-4o")
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", a)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint("Hello", "openai", "gpt-4o")
	if Fingerprint("Hello!", "openai", "gpt-4o") == base {
		t.Fatalf("prompt change must change fingerprint")
	}
	if Fingerprint("Hello", "anthropic", "gpt-4o") == base {
		t.Fatalf("provider change must change fingerprint")
	}
	if Fingerprint("Hello", "openai", "gpt-4o-mini") == base {
		t.Fatalf("model change must change fingerprint")
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(16, time.Minute)
	fp := Fingerprint("p", "openai", "m")

	if _, ok, err := c.Lookup(ctx, fp); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	want := Entry{FullText: "Hello!", Provider: "openai", Model: "m"}
	if err := c.Store(ctx, fp, want); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, ok, err := c.Lookup(ctx, fp)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(16, 20*time.Millisecond)
	fp := Fingerprint("p", "openai", "m")
	if err := c.Store(ctx, fp, Entry{FullText: "x"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := c.Lookup(ctx, fp); ok {
		t.Fatalf("expected expired entry to behave as a miss")
	}
}
