//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/okrd/internal/models"
	"github.com/wolfeidau/okrd/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*TenantStore, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	// Auto-migrate so the tenant_okrs table exists
	tenantStore, err := NewTenantStore(ctx, pool, true)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return tenantStore, cleanup
}

func TestIntegration_TenantStore(t *testing.T) {
	ctx := context.Background()
	tenantStore, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("load of unknown organization returns not found", func(t *testing.T) {
		_, err := tenantStore.Load(ctx, "org-unknown")
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})

	t.Run("save then load round trips", func(t *testing.T) {
		objectives := []models.Objective{
			{
				ID:            "okr_a",
				ObjectiveText: "ship the thing",
				KeyResults: []models.KeyResult{
					{ID: "kr_a", Text: "pass the release checklist", Attainment: 40},
					{ID: "kr_b", Text: "announce it", Attainment: 0},
				},
			},
		}

		require.NoError(t, tenantStore.Save(ctx, "org-1", objectives))

		loaded, err := tenantStore.Load(ctx, "org-1")
		require.NoError(t, err)
		require.Equal(t, objectives, loaded)
	})

	t.Run("save overwrites the whole document", func(t *testing.T) {
		require.NoError(t, tenantStore.Save(ctx, "org-2", []models.Objective{
			{ID: "okr_a", ObjectiveText: "first version"},
		}))
		require.NoError(t, tenantStore.Save(ctx, "org-2", []models.Objective{
			{ID: "okr_b", ObjectiveText: "second version"},
		}))

		loaded, err := tenantStore.Load(ctx, "org-2")
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		require.Equal(t, "okr_b", loaded[0].ID)
	})

	t.Run("organizations are isolated", func(t *testing.T) {
		require.NoError(t, tenantStore.Save(ctx, "org-3", []models.Objective{{ID: "okr_three"}}))
		require.NoError(t, tenantStore.Save(ctx, "org-4", []models.Objective{{ID: "okr_four"}}))

		loaded3, err := tenantStore.Load(ctx, "org-3")
		require.NoError(t, err)
		require.Equal(t, "okr_three", loaded3[0].ID)

		loaded4, err := tenantStore.Load(ctx, "org-4")
		require.NoError(t, err)
		require.Equal(t, "okr_four", loaded4[0].ID)
	})

	t.Run("empty aggregate persists as a document", func(t *testing.T) {
		require.NoError(t, tenantStore.Save(ctx, "org-5", []models.Objective{}))

		loaded, err := tenantStore.Load(ctx, "org-5")
		require.NoError(t, err)
		require.Empty(t, loaded)
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, runMigrations(ctx, tenantStore.pool))
	})
}
