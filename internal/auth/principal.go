// Package auth holds the principal abstraction shared by both protocol
// front ends and the authorization gate that sits between them and the
// OKR service.
package auth

import (
	"context"
	"errors"
)

// Sentinel errors for authentication and authorization failures
var (
	// ErrUnauthenticated means the credential was missing, malformed,
	// expired, or revoked. No principal is available.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied means the credential was valid but the policy
	// engine denied the requested action.
	ErrPermissionDenied = errors.New("permission denied")
)

// Action is a permission verb in the fixed policy vocabulary.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource is a resource kind in the fixed policy vocabulary.
type Resource string

const (
	ResourceObjective Resource = "objective"
	ResourceKeyResult Resource = "key_result"
)

// AuthorizationCheck names the permission an operation requires. The
// session verification path sends it to the identity platform alongside
// the credential so authentication and the first authorization decision
// share one round trip.
type AuthorizationCheck struct {
	Action   Action
	Resource Resource
}

// Principal is the authenticated actor behind an operation. It carries
// identity only, never an authorization decision: a principal cached for
// the lifetime of an agent connection still goes through the gate on
// every call.
//
// Lifetime is one request on the REST adapter and one connection on the
// agent adapter.
type Principal struct {
	OrgID       string
	PrincipalID string
	Roles       []string

	// RawCredential is the opaque credential the principal presented,
	// kept so long-lived connections can be re-checked against the
	// policy engine. Never persisted.
	RawCredential string
}

type contextKey int

const principalContextKey contextKey = iota

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from the
// context. Returns nil if no principal is present.
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}
