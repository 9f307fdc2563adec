package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/proxy/types"
)

// CredentialSource returns the credential store for the current
// configuration snapshot. Reloads swap the store, so the middleware calls
// this on every request instead of caching the result.
type CredentialSource func() *auth.CredentialStore

// AuthMiddleware authenticates every request with a bearer token before any
// backend is contacted. Requests to the listed skip paths (health probes,
// metrics scrapes) pass through unauthenticated.
//
// On success the resolved identity is attached to the request context for
// handlers and later middleware. On failure the request ends with a 401 in
// OpenAI error format; the raw token value is never logged.
//
// Example usage:
//
//	handler = AuthMiddleware(runtime.Credentials, "/health")(handler)
func AuthMiddleware(credentials CredentialSource, skipPaths ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := auth.ExtractBearer(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(w, r, "missing bearer token")
				return
			}

			identity, err := credentials().Resolve(token)
			if err != nil {
				writeAuthError(w, r, err.Error())
				return
			}

			slog.DebugContext(r.Context(), "request authenticated",
				"request_id", GetRequestID(r.Context()),
				"token", identity.TokenDigest,
				"groups", identity.Groups,
				"admin", identity.Admin,
			)

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// writeAuthError ends the request with a 401 in OpenAI error format.
func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	slog.WarnContext(r.Context(), "authentication failed",
		"request_id", GetRequestID(r.Context()),
		"path", r.URL.Path,
		"reason", message,
	)

	errResp := types.NewAuthenticationError(message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errResp)
}
