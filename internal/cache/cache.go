// Package cache maps normalized request fingerprints to completed responses
// so equivalent requests can be answered without re-invoking a provider.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Entry is a completed full response stored under a fingerprint.
// Entries are written once and immutable; concurrent writers of the same
// fingerprint race benignly (last write wins, content is equivalent).
type Entry struct {
	FullText string `json:"full_response"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Cache is the response cache contract. A miss (or an expired entry) is a
// normal outcome, never an error.
type Cache interface {
	Lookup(ctx context.Context, fingerprint string) (Entry, bool, error)
	Store(ctx context.Context, fingerprint string, e Entry) error
}

// Fingerprint derives the deterministic digest identifying an equivalent
// (prompt, provider, model) request. Temperature is deliberately excluded.
func Fingerprint(prompt, provider, model string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", prompt, provider, model)))
	return hex.EncodeToString(sum[:])
}
