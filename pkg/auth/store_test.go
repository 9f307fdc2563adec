package auth

import (
	"errors"
	"reflect"
	"testing"
)

func testTokenGroups() map[string][]string {
	return map[string][]string{
		"tok-research-1": {"research"},
		"tok-staff-1":    {"staff"},
		"tok-shared":     {"staff", "research"},
		"tok-admin-1":    {"ops"},
	}
}

func TestCredentialStore_Resolve(t *testing.T) {
	store := NewCredentialStore(testTokenGroups(), []string{"ops"})

	tests := []struct {
		name       string
		token      string
		wantGroups []string
		wantAdmin  bool
		wantError  bool
	}{
		{
			name:       "single group token",
			token:      "tok-research-1",
			wantGroups: []string{"research"},
		},
		{
			name:       "multi group token sorted",
			token:      "tok-shared",
			wantGroups: []string{"research", "staff"},
		},
		{
			name:       "admin group token",
			token:      "tok-admin-1",
			wantGroups: []string{"ops"},
			wantAdmin:  true,
		},
		{
			name:      "unknown token",
			token:     "tok-unknown",
			wantError: true,
		},
		{
			name:      "empty token",
			token:     "",
			wantError: true,
		},
		{
			name:      "case sensitive match",
			token:     "TOK-RESEARCH-1",
			wantError: true,
		},
		{
			name:      "prefix is not a match",
			token:     "tok-research",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := store.Resolve(tt.token)

			if tt.wantError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				var invalidErr *InvalidTokenError
				if !errors.As(err, &invalidErr) {
					t.Errorf("Expected InvalidTokenError, got %T", err)
				}
				if identity != nil {
					t.Error("Expected nil identity on error")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(identity.Groups, tt.wantGroups) {
				t.Errorf("Expected groups %v, got %v", tt.wantGroups, identity.Groups)
			}
			if identity.Admin != tt.wantAdmin {
				t.Errorf("Expected admin=%v, got %v", tt.wantAdmin, identity.Admin)
			}
			if identity.TokenDigest == "" {
				t.Error("Expected non-empty token digest")
			}
			if identity.TokenDigest == tt.token {
				t.Error("Token digest must not equal the raw token")
			}
		})
	}
}

func TestCredentialStore_DigestIsStable(t *testing.T) {
	store := NewCredentialStore(testTokenGroups(), nil)

	first, err := store.Resolve("tok-staff-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := store.Resolve("tok-staff-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if first.TokenDigest != second.TokenDigest {
		t.Errorf("Digest changed between lookups: %s vs %s", first.TokenDigest, second.TokenDigest)
	}
}

func TestCredentialStore_Tokens(t *testing.T) {
	store := NewCredentialStore(testTokenGroups(), nil)
	if got := store.Tokens(); got != 4 {
		t.Errorf("Expected 4 tokens, got %d", got)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{
			name:   "plain bearer token",
			header: "Bearer tok-123",
			want:   "tok-123",
			wantOK: true,
		},
		{
			name:   "token with surrounding whitespace",
			header: "Bearer   tok-123  ",
			want:   "tok-123",
			wantOK: true,
		},
		{
			name:   "lowercase scheme rejected",
			header: "bearer tok-123",
			wantOK: false,
		},
		{
			name:   "basic scheme rejected",
			header: "Basic dXNlcjpwYXNz",
			wantOK: false,
		},
		{
			name:   "missing header",
			header: "",
			wantOK: false,
		},
		{
			name:   "scheme without token",
			header: "Bearer ",
			wantOK: false,
		},
		{
			name:   "scheme without separator",
			header: "Bearertok-123",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractBearer(tt.header)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if got != tt.want {
				t.Errorf("Expected token %q, got %q", tt.want, got)
			}
		})
	}
}
