package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/okrd/internal/models"
)

// Sentinel errors for tenant store operations
var (
	// ErrTenantNotFound is returned by Load when no aggregate has been
	// persisted for the organization yet. Callers seed the default
	// aggregate on this error rather than treating it as a failure.
	ErrTenantNotFound = errors.New("tenant aggregate not found")

	// ErrStoreUnavailable indicates the backend could not be reached or
	// timed out. Surfaced to callers as-is; no retries in this layer.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// TenantStore persists one OKR aggregate document per organization.
//
// The aggregate is always written whole: there is no per-objective update
// and no versioning or compare-and-swap, so two concurrent
// read-modify-write cycles against the same organization race and the
// later Save wins. That is an accepted limitation at this scale; callers
// wanting stronger guarantees need per-tenant mutual exclusion or
// conditional writes on top of this interface.
type TenantStore interface {
	// Load returns the aggregate stored for the organization.
	// Returns ErrTenantNotFound if the organization has no aggregate yet.
	Load(ctx context.Context, orgID string) ([]models.Objective, error)

	// Save overwrites the organization's aggregate with the given
	// objectives. The caller is responsible for sorting before saving.
	Save(ctx context.Context, orgID string, objectives []models.Objective) error
}
