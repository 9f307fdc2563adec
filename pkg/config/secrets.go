package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Secrets holds the credential material loaded from the secrets file. It is
// kept separate from Config so the two files can be permissioned and rotated
// independently.
type Secrets struct {
	// ServiceToken is the bearer token the gateway presents to backends
	// in place of the caller's token. Backends are expected to trust
	// only the gateway.
	ServiceToken string `yaml:"service_token"`

	// Groups maps a group name to the list of caller tokens belonging
	// to it. A token may appear under several groups.
	Groups map[string][]string `yaml:"groups"`
}

// LoadSecrets loads and validates the secrets file at the given path.
func LoadSecrets(path string) (*Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %q: %w", path, err)
	}

	var s Secrets
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %q: %w", path, err)
	}

	if err := validateSecrets(&s); err != nil {
		return nil, fmt.Errorf("secrets validation failed: %w", err)
	}

	return &s, nil
}

// validateSecrets checks the loaded secrets for structural problems.
func validateSecrets(s *Secrets) error {
	var errs []FieldError

	if len(s.Groups) == 0 {
		errs = append(errs, FieldError{
			Field:   "groups",
			Message: "at least one group is required",
		})
	}
	for group, tokens := range s.Groups {
		if group == "" {
			errs = append(errs, FieldError{
				Field:   "groups",
				Message: "group names must not be empty",
			})
		}
		if len(tokens) == 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("groups.%s", group),
				Message: "group has no tokens",
			})
		}
		for i, tok := range tokens {
			if tok == "" {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("groups.%s[%d]", group, i),
					Message: "empty token",
				})
			}
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// TokenGroups inverts the group-to-tokens mapping into token-to-groups.
// Group lists are sorted so repeated loads of the same file produce
// identical results.
func (s *Secrets) TokenGroups() map[string][]string {
	inverted := make(map[string][]string)
	for group, tokens := range s.Groups {
		for _, tok := range tokens {
			inverted[tok] = append(inverted[tok], group)
		}
	}
	for _, groups := range inverted {
		sort.Strings(groups)
	}
	return inverted
}
