package okr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/okrd/internal/models"
	"github.com/wolfeidau/okrd/internal/store"
)

// recordingStore is an in-memory TenantStore that counts saves so tests
// can assert nothing was persisted on a failed operation.
type recordingStore struct {
	documents map[string][]models.Objective
	saves     int
	loadErr   error
	saveErr   error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{documents: map[string][]models.Objective{}}
}

func (s *recordingStore) Load(_ context.Context, orgID string) ([]models.Objective, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	objectives, ok := s.documents[orgID]
	if !ok {
		return nil, store.ErrTenantNotFound
	}
	return models.CloneObjectives(objectives), nil
}

func (s *recordingStore) Save(_ context.Context, orgID string, objectives []models.Objective) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.documents[orgID] = models.CloneObjectives(objectives)
	return nil
}

func TestServiceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("first access seeds and persists the default aggregate", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		objectives, err := svc.Get(ctx)
		require.NoError(t, err)
		require.Len(t, objectives, 1)
		require.Equal(t, "okr_0", objectives[0].ID)
		require.Len(t, objectives[0].KeyResults, 2)

		// Seed was written through, not just returned
		require.Equal(t, 1, st.saves)
		stored, err := st.Load(ctx, "org-1")
		require.NoError(t, err)
		require.Equal(t, objectives, stored)
	})

	t.Run("subsequent access returns the stored aggregate without saving", func(t *testing.T) {
		st := newRecordingStore()
		st.documents["org-1"] = []models.Objective{{ID: "okr_a", ObjectiveText: "existing"}}

		svc := NewService(st, "org-1")
		objectives, err := svc.Get(ctx)
		require.NoError(t, err)
		require.Len(t, objectives, 1)
		require.Equal(t, "okr_a", objectives[0].ID)
		require.Equal(t, 0, st.saves)
	})

	t.Run("store failures propagate", func(t *testing.T) {
		st := newRecordingStore()
		st.loadErr = store.ErrStoreUnavailable

		svc := NewService(st, "org-1")
		_, err := svc.Get(ctx)
		require.ErrorIs(t, err, store.ErrStoreUnavailable)
	})
}

func TestServiceAddObjective(t *testing.T) {
	ctx := context.Background()

	t.Run("appends an objective with no key results", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		objectives, err := svc.AddObjective(ctx, "Grow revenue")
		require.NoError(t, err)
		require.Len(t, objectives, 2)

		added := models.FindObjective(objectives, objectiveIDOtherThan(objectives, "okr_0"))
		require.NotNil(t, added)
		require.Equal(t, "Grow revenue", added.ObjectiveText)
		require.NotNil(t, added.KeyResults)
		require.Empty(t, added.KeyResults)
	})

	t.Run("result is sorted by objective id", func(t *testing.T) {
		st := newRecordingStore()
		st.documents["org-1"] = []models.Objective{{ID: "okr_zzz"}}

		svc := NewService(st, "org-1")
		objectives, err := svc.AddObjective(ctx, "sorted in")
		require.NoError(t, err)
		require.Len(t, objectives, 2)
		require.Less(t, objectives[0].ID, objectives[1].ID)
	})
}

func TestServiceDeleteObjective(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the objective", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		objectives, err := svc.DeleteObjective(ctx, "okr_0")
		require.NoError(t, err)
		require.Empty(t, objectives)
	})

	t.Run("unknown id succeeds and leaves the aggregate unchanged", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		before, err := svc.Get(ctx)
		require.NoError(t, err)

		after, err := svc.DeleteObjective(ctx, "okr_nonexistent")
		require.NoError(t, err)
		require.Equal(t, before, after)
	})
}

func TestServiceAddKeyResult(t *testing.T) {
	ctx := context.Background()

	t.Run("appends at attainment zero", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		objectives, err := svc.AddKeyResult(ctx, "okr_0", "Hire two engineers")
		require.NoError(t, err)

		objective := models.FindObjective(objectives, "okr_0")
		require.NotNil(t, objective)
		require.Len(t, objective.KeyResults, 3)
		require.Equal(t, "Hire two engineers", objective.KeyResults[2].Text)
		require.Equal(t, 0, objective.KeyResults[2].Attainment)
	})

	t.Run("unknown objective fails without persisting", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		_, err := svc.Get(ctx)
		require.NoError(t, err)
		savesBefore := st.saves

		_, err = svc.AddKeyResult(ctx, "okr_missing", "orphan")
		require.ErrorIs(t, err, ErrObjectiveNotFound)
		require.Equal(t, savesBefore, st.saves)
	})
}

func TestServiceSetKeyResultAttainment(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrites attainment", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		objectives, err := svc.SetKeyResultAttainment(ctx, "okr_0", "kr_0", 75)
		require.NoError(t, err)

		objective := models.FindObjective(objectives, "okr_0")
		require.NotNil(t, objective)
		keyResult := models.FindKeyResult(objective, "kr_0")
		require.NotNil(t, keyResult)
		require.Equal(t, 75, keyResult.Attainment)
	})

	t.Run("boundary values are accepted", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		_, err := svc.SetKeyResultAttainment(ctx, "okr_0", "kr_0", 0)
		require.NoError(t, err)
		_, err = svc.SetKeyResultAttainment(ctx, "okr_0", "kr_0", 100)
		require.NoError(t, err)
	})

	t.Run("out of range attainment fails before touching the store", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		_, err := svc.SetKeyResultAttainment(ctx, "okr_0", "kr_0", 101)
		require.ErrorIs(t, err, ErrInvalidAttainment)
		_, err = svc.SetKeyResultAttainment(ctx, "okr_0", "kr_0", -1)
		require.ErrorIs(t, err, ErrInvalidAttainment)
		require.Equal(t, 0, st.saves)
	})

	t.Run("unknown objective fails without persisting", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		_, err := svc.Get(ctx)
		require.NoError(t, err)
		savesBefore := st.saves

		_, err = svc.SetKeyResultAttainment(ctx, "okr_missing", "kr_0", 50)
		require.ErrorIs(t, err, ErrObjectiveNotFound)
		require.Equal(t, savesBefore, st.saves)
	})

	t.Run("unknown key result fails without persisting", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		_, err := svc.Get(ctx)
		require.NoError(t, err)
		savesBefore := st.saves

		_, err = svc.SetKeyResultAttainment(ctx, "okr_0", "kr_missing", 50)
		require.ErrorIs(t, err, ErrKeyResultNotFound)
		require.Equal(t, savesBefore, st.saves)
	})
}

func TestServiceDeleteKeyResult(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the key result", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		objectives, err := svc.DeleteKeyResult(ctx, "okr_0", "kr_0")
		require.NoError(t, err)

		objective := models.FindObjective(objectives, "okr_0")
		require.NotNil(t, objective)
		require.Len(t, objective.KeyResults, 1)
		require.Equal(t, "kr_1", objective.KeyResults[0].ID)
	})

	t.Run("unknown objective succeeds unchanged", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		before, err := svc.Get(ctx)
		require.NoError(t, err)

		after, err := svc.DeleteKeyResult(ctx, "okr_missing", "kr_0")
		require.NoError(t, err)
		require.Equal(t, before, after)
	})

	t.Run("unknown key result succeeds unchanged", func(t *testing.T) {
		st := newRecordingStore()
		svc := NewService(st, "org-1")

		before, err := svc.Get(ctx)
		require.NoError(t, err)

		after, err := svc.DeleteKeyResult(ctx, "okr_0", "kr_missing")
		require.NoError(t, err)
		require.Equal(t, before, after)
	})
}

func TestServiceTenantIsolation(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()

	svc1 := NewService(st, "org-1")
	svc2 := NewService(st, "org-2")

	_, err := svc1.AddObjective(ctx, "only in org-1")
	require.NoError(t, err)

	objectives2, err := svc2.Get(ctx)
	require.NoError(t, err)
	require.Len(t, objectives2, 1)
	require.Equal(t, "okr_0", objectives2[0].ID)
}

func TestServiceSaveFailure(t *testing.T) {
	ctx := context.Background()

	st := newRecordingStore()
	st.documents["org-1"] = []models.Objective{{ID: "okr_a"}}
	st.saveErr = errors.New("connection reset")

	svc := NewService(st, "org-1")
	_, err := svc.AddObjective(ctx, "doomed")
	require.Error(t, err)
	require.Equal(t, 0, st.saves)
}

func objectiveIDOtherThan(objectives []models.Objective, excluded string) string {
	for _, objective := range objectives {
		if objective.ID != excluded {
			return objective.ID
		}
	}
	return ""
}
