package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// GenerationError wraps a provider call failure (network, auth, rate limit,
// malformed response). Transient failures may be retried by the coordinator
// as long as no chunk has been appended yet.
type GenerationError struct {
	Provider  string
	Err       error
	Transient bool
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (provider %s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NewGenerationError classifies err and wraps it for the given provider.
// Context cancellation is passed through untouched so callers can tell an
// aborted task from a failed one.
func NewGenerationError(providerName string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &GenerationError{Provider: providerName, Err: err, Transient: isTransient(err)}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var he *httpStatusError
	if errors.As(err, &he) {
		return he.status == 429 || he.status >= 500
	}
	return false
}

// IsGenerationError reports whether err is a provider generation failure.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// IsTransient reports whether err is a generation failure worth retrying.
func IsTransient(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Transient
}

// httpStatusError carries a non-2xx response status from a provider endpoint.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider http error: status %d: %s", e.status, e.body)
}
