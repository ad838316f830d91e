package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

func seedInspection(t *testing.T, a *Adapter, id string, triggers ...models.Trigger) {
	t.Helper()
	require.NoError(t, a.SaveInspection(context.Background(), &models.Inspection{
		ID: id, CompanyID: "co-1", Address: "12 Main St",
	}))
	for i := range triggers {
		appended, err := a.AppendTrigger(context.Background(), id, &triggers[i])
		require.NoError(t, err)
		require.True(t, appended)
	}
}

func TestSaveInspectionPreservesEngineState(t *testing.T) {
	a := NewAdapter()
	defer a.Close()
	ctx := context.Background()

	seedInspection(t, a, "insp-1", models.Trigger{ID: "tr-1", ActionID: "act-1"})

	require.NoError(t, a.SaveInspection(ctx, &models.Inspection{
		ID: "insp-1", CompanyID: "co-1", Address: "14 Main St",
	}))

	stored, err := a.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, "14 Main St", stored.Address)
	require.Len(t, stored.Triggers, 1)
	assert.Equal(t, "tr-1", stored.Triggers[0].ID)
}

func TestAppendTriggerDeduplicatesByAction(t *testing.T) {
	a := NewAdapter()
	defer a.Close()
	ctx := context.Background()

	seedInspection(t, a, "insp-1", models.Trigger{ID: "tr-1", ActionID: "act-1"})

	appended, err := a.AppendTrigger(ctx, "insp-1", &models.Trigger{ID: "tr-2", ActionID: "act-1"})
	require.NoError(t, err)
	assert.False(t, appended)

	_, err = a.AppendTrigger(ctx, "missing", &models.Trigger{ID: "tr-3", ActionID: "act-2"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClaimTriggerIsSingleWinner(t *testing.T) {
	a := NewAdapter()
	defer a.Close()
	ctx := context.Background()

	seedInspection(t, a, "insp-1", models.Trigger{ID: "tr-1", ActionID: "act-1"})

	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := a.ClaimTrigger(ctx, "insp-1", "tr-1")
			assert.NoError(t, err)
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestFinalizeTriggerRecordsOutcome(t *testing.T) {
	a := NewAdapter()
	defer a.Close()
	ctx := context.Background()

	seedInspection(t, a, "insp-1", models.Trigger{ID: "tr-1", ActionID: "act-1"})

	won, err := a.ClaimTrigger(ctx, "insp-1", "tr-1")
	require.NoError(t, err)
	require.True(t, won)

	sentAt := time.Now().UTC()
	require.NoError(t, a.FinalizeTrigger(ctx, "insp-1", "tr-1", models.StatusSent, &sentAt))

	stored, err := a.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, stored.Triggers[0].Status)
	require.NotNil(t, stored.Triggers[0].SentAt)
	assert.WithinDuration(t, sentAt, *stored.Triggers[0].SentAt, time.Second)
}

func TestMarkTriggerEventKeepsFirstArrival(t *testing.T) {
	a := NewAdapter()
	defer a.Close()
	ctx := context.Background()

	seedInspection(t, a, "insp-1", models.Trigger{ID: "tr-1", ActionID: "act-1"})

	first := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.MarkTriggerEvent(ctx, "insp-1", "tr-1", first))
	require.NoError(t, a.MarkTriggerEvent(ctx, "insp-1", "tr-1", first.Add(time.Hour)))

	stored, err := a.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Triggers[0].EventAt)
	assert.True(t, stored.Triggers[0].EventAt.Equal(first))
}

func TestListInspectionsWithUnfiredTriggers(t *testing.T) {
	a := NewAdapter()
	defer a.Close()
	ctx := context.Background()

	seedInspection(t, a, "insp-1", models.Trigger{ID: "tr-1", ActionID: "act-1"})
	seedInspection(t, a, "insp-2", models.Trigger{ID: "tr-2", ActionID: "act-2"})
	seedInspection(t, a, "insp-3")

	won, err := a.ClaimTrigger(ctx, "insp-1", "tr-1")
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, a.FinalizeTrigger(ctx, "insp-1", "tr-1", models.StatusSent, nil))

	pending, err := a.ListInspectionsWithUnfiredTriggers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "insp-2", pending[0].ID)

	limited, err := a.ListInspectionsWithUnfiredTriggers(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStoredRecordsDoNotAliasCallerState(t *testing.T) {
	a := NewAdapter()
	defer a.Close()
	ctx := context.Background()

	action := &models.Action{ID: "act-1", CompanyID: "co-1", Name: "Original"}
	require.NoError(t, a.CreateAction(ctx, action))
	action.Name = "Mutated"

	stored, err := a.GetAction(ctx, "co-1", "act-1")
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Name)
}
