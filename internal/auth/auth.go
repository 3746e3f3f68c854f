package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	RoleReader = "reader"
	RoleWriter = "writer"
)

type Identity struct {
	Principal string
	Roles     []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// Can reports whether the identity may act in the given role. Writers may
// also read.
func (i Identity) Can(role string) bool {
	if i.HasRole(role) {
		return true
	}
	return role == RoleReader && i.HasRole(RoleWriter)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:principal:role|role
// entries.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		identity, key, err := parseEntry(entry)
		if err != nil {
			return nil, err
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}
		validator.keys[key] = identity
	}
	return validator, nil
}

func parseEntry(entry string) (Identity, string, error) {
	parts := strings.Split(strings.TrimSpace(entry), ":")
	if len(parts) != 3 {
		return Identity{}, "", fmt.Errorf("invalid static key entry %q: expected key:principal:role|role", entry)
	}
	key := strings.TrimSpace(parts[0])
	principal := strings.TrimSpace(parts[1])
	if key == "" || principal == "" {
		return Identity{}, "", fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
	}

	roles := make([]string, 0, 2)
	for _, role := range strings.Split(parts[2], "|") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if role != RoleReader && role != RoleWriter {
			return Identity{}, "", fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return Identity{}, "", fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
	}
	slices.Sort(roles)
	return Identity{Principal: principal, Roles: slices.Compact(roles)}, key, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
