/*
Package auth provides bearer token authentication for Saturn.

Tokens are configured in the secrets file as group to token lists and
inverted into a token to groups lookup at load time. A CredentialStore
is immutable; reloading secrets builds a new store and swaps it in
atomically, so request handling never observes a half-updated table.

# Basic Usage

Build a store from loaded secrets and resolve a caller:

	store := auth.NewCredentialStore(secrets.TokenGroups(), cfg.Auth.AdminGroups)

	token, ok := auth.ExtractBearer(r.Header.Get("Authorization"))
	if !ok {
		// 401, no bearer token presented
	}
	identity, err := store.Resolve(token)
	if err != nil {
		// 401, token matched no credential
	}

The returned Identity carries the caller's groups, whether any of them
is an administrative group, and a short token fingerprint for logging.
Raw token values must never be logged or stored.
*/
package auth
