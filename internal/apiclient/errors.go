package apiclient

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when an authenticated call is attempted
// with no session token. In normal operation this indicates a missing guard
// in the caller, not a user-facing condition.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrInvalidRuleName is returned before any network call when a rule name
// does not match the required <name>.yar pattern.
var ErrInvalidRuleName = errors.New("invalid rule name; expected <name>.yar")

// ErrEmptyContent is returned before any network call when rule content is
// blank.
var ErrEmptyContent = errors.New("rule content must not be empty")

// AuthError reports a rejected login or setup attempt. Non-fatal and
// retryable; shown inline on the auth form.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed [%d]: %s", e.Status, e.Body)
}

// RepositoryError reports a non-2xx response from a rule or agent endpoint.
type RepositoryError struct {
	Status int
	Body   string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// NotFoundError reports a missing rule file.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule %q not found", e.Name)
}
