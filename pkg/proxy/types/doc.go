// Package types defines the OpenAI-compatible wire types the gateway emits.
//
// The gateway relays completion and embedding bodies to vLLM backends
// verbatim, so the only request type here is RequestPreview, a partial
// decode of the fields routing needs (model name and stream flag). The
// response types cover what the gateway itself originates: the aggregated
// model listing for /v1/models and the error envelope.
//
// # Error Envelope
//
// All error conditions produce an ErrorResponse so that OpenAI SDKs and
// tools can parse failures without modification:
//
//	{"error": {"message": "...", "type": "authentication_error", "code": "invalid_api_key"}}
//
// ErrorDetail.Type selects the HTTP status via HTTPStatusCode; Code carries
// the machine-readable reason. Backend-originated errors pass through the
// gateway untouched and never take this shape unless the backend itself
// uses it.
//
// # Model Listing
//
// ModelList matches the OpenAI GET /v1/models response. The gateway
// rewrites each entry's owned_by to the configured fleet operator and
// deduplicates models served by multiple backends.
//
// All types use standard encoding/json with OpenAI's snake_case field
// names.
package types
