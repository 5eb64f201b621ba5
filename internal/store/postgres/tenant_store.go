package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/okrd/internal/models"
	"github.com/wolfeidau/okrd/internal/store"
)

// statementTimeout bounds every store round trip so a slow backend
// surfaces as an error instead of hanging the calling operation.
const statementTimeout = 5 * time.Second

// TenantStore implements store.TenantStore using PostgreSQL.
// The aggregate is stored as a single jsonb document per organization.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a new PostgreSQL-backed tenant store, optionally
// running embedded schema migrations first.
func NewTenantStore(ctx context.Context, pool *pgxpool.Pool, autoMigrate bool) (*TenantStore, error) {
	if autoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &TenantStore{pool: pool}, nil
}

// Load retrieves the organization's aggregate document.
func (s *TenantStore) Load(ctx context.Context, orgID string) ([]models.Objective, error) {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	query := `
		SELECT document
		FROM tenant_okrs
		WHERE org_id = $1
	`

	var document []byte
	err := s.pool.QueryRow(ctx, query, orgID).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, mapPostgresError(err)
	}

	var objectives []models.Objective
	if err := json.Unmarshal(document, &objectives); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate for org %s: %w", orgID, err)
	}

	return objectives, nil
}

// Save overwrites the organization's aggregate document. The write is a
// plain upsert with no version check, so concurrent writers last-win.
func (s *TenantStore) Save(ctx context.Context, orgID string, objectives []models.Objective) error {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	document, err := json.Marshal(objectives)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate for org %s: %w", orgID, err)
	}

	query := `
		INSERT INTO tenant_okrs (org_id, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (org_id) DO UPDATE
		SET document = EXCLUDED.document, updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, orgID, document); err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("org_id", orgID).
		Int("objectives", len(objectives)).
		Msg("Saved tenant aggregate")

	return nil
}
