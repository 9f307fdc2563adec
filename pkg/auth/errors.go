package auth

import (
	"fmt"
	"strings"
)

// InvalidTokenError reports a request whose bearer token is missing,
// malformed, or does not match any configured credential.
// It maps to an HTTP 401 response.
type InvalidTokenError struct {
	// Reason describes why the token was rejected. It never contains
	// the token itself.
	Reason string
}

// Error implements the error interface.
func (e *InvalidTokenError) Error() string {
	if e.Reason == "" {
		return "invalid API token"
	}
	return fmt.Sprintf("invalid API token: %s", e.Reason)
}

// GroupNotAllowedError reports an authenticated caller whose groups do
// not permit any configured host group. It maps to an HTTP 403 response.
type GroupNotAllowedError struct {
	// Groups are the caller's resolved groups.
	Groups []string
}

// Error implements the error interface.
func (e *GroupNotAllowedError) Error() string {
	return fmt.Sprintf("groups [%s] are not allowed on any host group", strings.Join(e.Groups, ", "))
}
