package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCode means the callback carried neither a code nor a provider error.
	ErrNoCode = errors.New("no authorization code in callback")

	// ErrAccessDenied is the admin gate's rejection.
	ErrAccessDenied = errors.New("admin access denied")

	// ErrMethodNotAllowed is returned for callback methods other than GET and OPTIONS.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// ProviderError is the provider reporting an authorization failure through the
// callback's error parameter (e.g. the user clicked "cancel").
type ProviderError struct {
	Reason      string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider returned error %q", e.Reason)
	}
	return fmt.Sprintf("provider returned error %q: %s", e.Reason, e.Description)
}
