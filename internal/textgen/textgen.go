// Package textgen wraps the external text-generation collaborator behind a
// single capability: generate(prompt) -> text.
package textgen

import "context"

// Provider is the interface every text-generation integration implements.
// Never call a specific provider directly — always inject this interface.
// Implementations classify failures with the sentinel errors in this
// package so callers can tell retryable from fatal.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}
