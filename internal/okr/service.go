package okr

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/okrd/internal/models"
	"github.com/wolfeidau/okrd/internal/store"
	"github.com/wolfeidau/okrd/internal/telemetry"
)

// Sentinel errors for OKR service operations
var (
	ErrObjectiveNotFound = errors.New("objective not found")
	ErrKeyResultNotFound = errors.New("key result not found")

	// ErrInvalidAttainment is returned when an attainment value falls
	// outside the 0-100 range. Enforced here so both protocol front ends
	// share the same validation.
	ErrInvalidAttainment = errors.New("attainment must be between 0 and 100")
)

// Service is the CRUD state machine over one organization's OKR aggregate.
//
// Every mutation runs the same cycle: load (seeding the default aggregate
// on a miss), mutate in memory, sort objectives by id, persist the whole
// document, return the full new aggregate. No operation returns a delta.
//
// The cycle is not transactional: two concurrent mutations against the
// same organization race and the later save wins. See store.TenantStore.
type Service struct {
	store store.TenantStore
	orgID string
}

// NewService creates a service bound to one organization. Construction is
// cheap; adapters create one per operation or per connection as suits
// their lifetime.
func NewService(tenantStore store.TenantStore, orgID string) *Service {
	return &Service{
		store: tenantStore,
		orgID: orgID,
	}
}

// Get returns the organization's aggregate, seeding and persisting the
// default objective on first access.
func (s *Service) Get(ctx context.Context) ([]models.Objective, error) {
	objectives, err := s.store.Load(ctx, s.orgID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			zerolog.Ctx(ctx).Info().Str("org_id", s.orgID).Msg("seeding default aggregate")
			telemetry.GetMetrics().AggregatesSeededTotal.Add(ctx, 1)
			return s.save(ctx, models.DefaultObjectives())
		}
		return nil, fmt.Errorf("failed to load aggregate: %w", err)
	}
	return objectives, nil
}

// AddObjective appends a new objective with a generated id and no key
// results, then persists and returns the sorted aggregate.
func (s *Service) AddObjective(ctx context.Context, objectiveText string) ([]models.Objective, error) {
	objectives, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	objectives = append(objectives, models.Objective{
		ID:            models.NewObjectiveID(),
		ObjectiveText: objectiveText,
		KeyResults:    []models.KeyResult{},
	})

	telemetry.GetMetrics().ObjectivesCreatedTotal.Add(ctx, 1)
	return s.save(ctx, objectives)
}

// DeleteObjective removes the objective with the given id. Deletes are
// idempotent: a missing id leaves the aggregate unchanged and is not an
// error.
func (s *Service) DeleteObjective(ctx context.Context, okrID string) ([]models.Objective, error) {
	objectives, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	kept := objectives[:0]
	for _, objective := range objectives {
		if objective.ID != okrID {
			kept = append(kept, objective)
		}
	}

	telemetry.GetMetrics().ObjectivesDeletedTotal.Add(ctx, 1)
	return s.save(ctx, kept)
}

// AddKeyResult appends a new key result at attainment 0 to the given
// objective. Returns ErrObjectiveNotFound if the objective doesn't exist;
// nothing is persisted in that case.
func (s *Service) AddKeyResult(ctx context.Context, okrID string, keyResultText string) ([]models.Objective, error) {
	objectives, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	objective := models.FindObjective(objectives, okrID)
	if objective == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectiveNotFound, okrID)
	}

	objective.KeyResults = append(objective.KeyResults, models.KeyResult{
		ID:         models.NewKeyResultID(),
		Text:       keyResultText,
		Attainment: 0,
	})

	telemetry.GetMetrics().KeyResultsCreatedTotal.Add(ctx, 1)
	return s.save(ctx, objectives)
}

// SetKeyResultAttainment overwrites the attainment of one key result.
// Returns ErrObjectiveNotFound or ErrKeyResultNotFound if either id does
// not resolve, and ErrInvalidAttainment outside [0,100]; no partial state
// is persisted on any failure.
func (s *Service) SetKeyResultAttainment(ctx context.Context, okrID, keyResultID string, attainment int) ([]models.Objective, error) {
	if attainment < 0 || attainment > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAttainment, attainment)
	}

	objectives, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	objective := models.FindObjective(objectives, okrID)
	if objective == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectiveNotFound, okrID)
	}

	keyResult := models.FindKeyResult(objective, keyResultID)
	if keyResult == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyResultNotFound, keyResultID)
	}

	keyResult.Attainment = attainment

	telemetry.GetMetrics().KeyResultsUpdatedTotal.Add(ctx, 1)
	return s.save(ctx, objectives)
}

// DeleteKeyResult removes one key result from the given objective. Like
// DeleteObjective, deletes are idempotent: a missing objective or key
// result id leaves the aggregate unchanged and is not an error.
func (s *Service) DeleteKeyResult(ctx context.Context, okrID, keyResultID string) ([]models.Objective, error) {
	objectives, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if objective := models.FindObjective(objectives, okrID); objective != nil {
		kept := objective.KeyResults[:0]
		for _, keyResult := range objective.KeyResults {
			if keyResult.ID != keyResultID {
				kept = append(kept, keyResult)
			}
		}
		objective.KeyResults = kept
	}

	telemetry.GetMetrics().KeyResultsDeletedTotal.Add(ctx, 1)
	return s.save(ctx, objectives)
}

// save sorts the aggregate by objective id and overwrites the stored
// document. Every persist goes through here so the store never holds an
// unsorted aggregate at rest.
func (s *Service) save(ctx context.Context, objectives []models.Objective) ([]models.Objective, error) {
	models.SortObjectives(objectives)

	if err := s.store.Save(ctx, s.orgID, objectives); err != nil {
		return nil, fmt.Errorf("failed to save aggregate: %w", err)
	}

	return objectives, nil
}
