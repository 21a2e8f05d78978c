// Package auth verifies bearer tokens against the managed auth service (or a
// shared JWT secret for self-hosted setups) and carries the resulting
// identity through request contexts.
package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrMissingToken is returned when the Authorization header carries no
	// usable bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when verification fails for any reason.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrNotAllowed is returned when a verified identity is not an admin.
	ErrNotAllowed = errors.New("account is not allowed to manage content")
)

// User is the identity resolved from a bearer token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Verifier resolves a bearer token into a User.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}
	return parts[1], nil
}

// AllowList restricts verified identities to a set of email addresses. An
// empty list allows everyone the verifier accepts.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList builds an AllowList; entries are trimmed and compared
// case-insensitively.
func NewAllowList(emails []string) AllowList {
	l := AllowList{emails: make(map[string]struct{})}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			l.emails[e] = struct{}{}
		}
	}
	return l
}

// Allows reports whether u may act as an admin.
func (l AllowList) Allows(u User) bool {
	if len(l.emails) == 0 {
		return true
	}
	_, ok := l.emails[strings.ToLower(strings.TrimSpace(u.Email))]
	return ok
}

// Len returns the number of allowed addresses.
func (l AllowList) Len() int { return len(l.emails) }

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFrom returns the identity attached by WithUser.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}
