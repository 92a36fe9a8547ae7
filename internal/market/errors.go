package market

import (
	"errors"
	"fmt"
)

// ProviderError wraps a transport or API failure reported by a provider.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s provider error (%d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// EmptyResultError indicates the provider answered but returned no usable bars.
type EmptyResultError struct {
	Provider string
	Symbol   string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s returned no bars for %s", e.Provider, e.Symbol)
}

// Retryable reports whether err is one of the provider failures the resilient
// source retries and eventually replaces with synthetic data.
func Retryable(err error) bool {
	var providerErr *ProviderError
	var emptyErr *EmptyResultError
	return errors.As(err, &providerErr) || errors.As(err, &emptyErr)
}
