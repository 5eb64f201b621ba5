package memory

import (
	"context"
	"sync"

	"github.com/wolfeidau/okrd/internal/models"
	"github.com/wolfeidau/okrd/internal/store"
)

// TenantStore implements store.TenantStore using in-memory storage.
// Data is lost on restart; intended for development and testing.
type TenantStore struct {
	mu sync.RWMutex

	aggregates map[string][]models.Objective // org_id -> objectives
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		aggregates: make(map[string][]models.Objective),
	}
}

// Load returns a deep copy of the organization's aggregate.
func (s *TenantStore) Load(ctx context.Context, orgID string) ([]models.Objective, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objectives, exists := s.aggregates[orgID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	// Clone to avoid external modifications
	return models.CloneObjectives(objectives), nil
}

// Save overwrites the organization's aggregate.
func (s *TenantStore) Save(ctx context.Context, orgID string, objectives []models.Objective) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone so later caller mutations don't leak into stored state
	s.aggregates[orgID] = models.CloneObjectives(objectives)

	return nil
}
