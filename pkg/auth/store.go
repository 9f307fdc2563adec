package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Identity describes an authenticated caller.
type Identity struct {
	// Groups are the access groups the caller's token belongs to,
	// sorted for deterministic comparison and logging.
	Groups []string

	// Admin reports whether any of the caller's groups is configured
	// as an administrative group. Admin callers bypass host group
	// allow-lists.
	Admin bool

	// TokenDigest is a short fingerprint of the presented token, safe
	// to log and record. The raw token is never exposed.
	TokenDigest string
}

// CredentialStore resolves bearer tokens to caller identities.
//
// A store is immutable after construction. Configuration reloads build
// a fresh store from the new secrets snapshot and swap it in whole, so
// there are no partial-update races and no locking on the lookup path.
type CredentialStore struct {
	tokens map[string][]string
	admins map[string]struct{}
}

// NewCredentialStore builds a store from a token to groups mapping and
// the set of group names that grant administrative access. The input
// slices are copied; callers may reuse them afterwards.
func NewCredentialStore(tokenGroups map[string][]string, adminGroups []string) *CredentialStore {
	tokens := make(map[string][]string, len(tokenGroups))
	for token, groups := range tokenGroups {
		copied := make([]string, len(groups))
		copy(copied, groups)
		sort.Strings(copied)
		tokens[token] = copied
	}

	admins := make(map[string]struct{}, len(adminGroups))
	for _, group := range adminGroups {
		admins[group] = struct{}{}
	}

	return &CredentialStore{
		tokens: tokens,
		admins: admins,
	}
}

// Resolve looks up the given token and returns the caller's identity.
// Tokens are compared for exact, case-sensitive equality; an unknown or
// empty token yields an InvalidTokenError.
func (s *CredentialStore) Resolve(token string) (*Identity, error) {
	if token == "" {
		return nil, &InvalidTokenError{Reason: "empty token"}
	}

	groups, ok := s.tokens[token]
	if !ok {
		return nil, &InvalidTokenError{Reason: "no matching credential"}
	}

	return &Identity{
		Groups:      groups,
		Admin:       s.isAdmin(groups),
		TokenDigest: digest(token),
	}, nil
}

// Tokens returns the number of distinct tokens in the store.
func (s *CredentialStore) Tokens() int {
	return len(s.tokens)
}

func (s *CredentialStore) isAdmin(groups []string) bool {
	for _, group := range groups {
		if _, ok := s.admins[group]; ok {
			return true
		}
	}
	return false
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}

// bearerPrefix is the scheme expected in the Authorization header.
// The comparison is case-sensitive.
const bearerPrefix = "Bearer "

// ExtractBearer parses an Authorization header value and returns the
// bearer token it carries. Surrounding whitespace around the token is
// trimmed; an absent or non-bearer header yields ok = false.
func ExtractBearer(header string) (token string, ok bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token = strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
