package upstream

import "fmt"

// NoAvailableBackendError reports that the caller is permitted on at
// least one host group, but no endpoint can take the request: every
// permitted endpoint is cooling down, or none serves the requested
// model. It maps to an HTTP 503 response.
type NoAvailableBackendError struct {
	// Model is the requested model, empty when the request named none.
	Model string

	// Reason describes which filter emptied the candidate list.
	Reason string
}

// Error implements the error interface.
func (e *NoAvailableBackendError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("no available backend: %s", e.Reason)
	}
	return fmt.Sprintf("no available backend for model %q: %s", e.Model, e.Reason)
}
