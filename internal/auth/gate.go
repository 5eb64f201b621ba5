package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/okrd/internal/telemetry"
)

// PolicyChecker is the policy engine entry point the gate delegates to.
// Implemented by idp.Client in production.
type PolicyChecker interface {
	CheckPermission(ctx context.Context, principal *Principal, action Action, resource Resource) error
}

// Gate decides whether a principal may perform an action on a resource
// kind. Both protocol adapters call Check on every operation; results
// are never cached because tenant roles can change between calls on a
// long-lived connection.
type Gate interface {
	Check(ctx context.Context, principal *Principal, action Action, resource Resource) error
}

type policyGate struct {
	checker PolicyChecker
}

// NewGate creates a Gate backed by the external policy engine.
func NewGate(checker PolicyChecker) Gate {
	return &policyGate{checker: checker}
}

// Check asks the policy engine for a fresh decision. A deny aborts the
// calling operation before any store access.
func (g *policyGate) Check(ctx context.Context, principal *Principal, action Action, resource Resource) error {
	if principal == nil {
		return ErrUnauthenticated
	}

	telemetry.GetMetrics().AuthzChecksTotal.Add(ctx, 1)

	err := g.checker.CheckPermission(ctx, principal, action, resource)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			telemetry.GetMetrics().AuthzDeniedTotal.Add(ctx, 1)
			zerolog.Ctx(ctx).Warn().
				Str("org_id", principal.OrgID).
				Str("principal_id", principal.PrincipalID).
				Str("action", string(action)).
				Str("resource", string(resource)).
				Msg("permission denied")
		}
		return err
	}

	return nil
}
