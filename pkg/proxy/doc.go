// Package proxy forwards OpenAI-compatible requests to vLLM backends.
//
// The proxy layer is the data plane of the gateway. It buffers each inbound
// request body once, then relays it to one backend at a time until an
// attempt succeeds or the retry budget is spent. Responses are streamed back
// to the caller verbatim, including Server-Sent Events for streaming
// completions.
//
// # Architecture
//
//   - Forwarder: single-attempt relay with per-attempt timeout and health
//     reporting
//   - Handlers: request orchestration (completions, model listing, admin)
//   - Middleware: cross-cutting concerns (auth, rate limiting, logging,
//     CORS, request ID, recovery)
//   - Types: the wire types the gateway itself originates
//
// # Request Flow
//
//  1. Middleware authenticates the bearer token and resolves group
//     membership.
//  2. The handler peeks at the body for the model name and stream flag.
//  3. The router produces an ordered candidate list of eligible backends.
//  4. The forwarder attempts candidates in order. A 5xx response, transport
//     failure, or per-attempt timeout reports a failure to the health
//     registry and moves on; the first response at or below 499 is streamed
//     back verbatim.
//  5. When every attempt fails, the handler synthesizes an error envelope
//     describing the last failure.
//
// # Timeout Semantics
//
// The per-attempt timeout bounds time-to-first-byte of the response
// headers, not the whole exchange. A backend that acknowledges promptly may
// stream its body for as long as it likes, which is what long generation
// requests need.
//
// # Error Handling
//
// All gateway-originated errors follow the OpenAI error response format:
//
//	{
//	  "error": {
//	    "message": "invalid API token: no matching credential",
//	    "type": "authentication_error",
//	    "code": "invalid_api_key"
//	  }
//	}
//
// Backend responses, error or not, are never rewritten.
package proxy
