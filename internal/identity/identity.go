// Package identity provides the token validation capability consumed by
// the HTTP surface. The identity provider itself is external; this
// package only turns a bearer token into a subject with roles.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned for missing, invalid or expired tokens
var ErrUnauthenticated = errors.New("unauthenticated")

// Subject is an authenticated caller
type Subject struct {
	ID    string
	Name  string
	Email string
	Roles []string
}

// Validator validates bearer tokens
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*Subject, error)
}

// HasRole reports whether the subject carries the role. Matching is
// exact and case-sensitive.
func (s *Subject) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
