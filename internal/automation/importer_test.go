package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
	"automation-engine/internal/storage/memory"
)

func seedStore(t *testing.T) storage.Storage {
	t.Helper()

	store := memory.NewAdapter()
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreateCompany(ctx, &models.Company{
		ID:       "co-1",
		Name:     "Acme Inspections",
		Timezone: "UTC",
	}))
	require.NoError(t, store.SaveInspection(ctx, &models.Inspection{
		ID:        "insp-1",
		CompanyID: "co-1",
		Services: []models.InspectionService{
			{ServiceID: "svc-res", Name: "Residential Inspection", Category: models.CategoryResidential},
		},
	}))
	return store
}

func seedAction(t *testing.T, store storage.Storage, action *models.Action) {
	t.Helper()
	require.NoError(t, store.CreateAction(context.Background(), action))
}

func TestImporterAttach(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	importer := NewImporter(store, logging.NewDefaultLogger())

	seedAction(t, store, &models.Action{
		ID:         "act-match",
		CompanyID:  "co-1",
		Name:       "Scheduling confirmation",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
		Conditions: []models.Condition{{Type: models.ConditionService, ServiceID: "svc-res"}},
	})
	seedAction(t, store, &models.Action{
		ID:         "act-nomatch",
		CompanyID:  "co-1",
		Name:       "Commercial follow-up",
		TriggerKey: models.KeyAfterInspection,
		IsActive:   true,
		Conditions: []models.Condition{{Type: models.ConditionServiceCategory, ServiceCategory: "commercial"}},
	})
	seedAction(t, store, &models.Action{
		ID:         "act-inactive",
		CompanyID:  "co-1",
		Name:       "Paused reminder",
		TriggerKey: models.KeyBeforeInspection,
		IsActive:   false,
	})

	result, err := importer.Attach(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Considered) // inactive action is never listed

	inspection, err := store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	require.Len(t, inspection.Triggers, 1)

	trigger := inspection.Triggers[0]
	assert.NotEmpty(t, trigger.ID)
	assert.Equal(t, "act-match", trigger.ActionID)
	assert.Equal(t, models.KeyInspectionScheduled, trigger.TriggerKey)
	assert.Equal(t, models.StatusUnfired, trigger.Status)
	assert.Nil(t, trigger.EventAt)
}

func TestImporterAttachIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	importer := NewImporter(store, logging.NewDefaultLogger())

	seedAction(t, store, &models.Action{
		ID:         "act-1",
		CompanyID:  "co-1",
		Name:       "Scheduling confirmation",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
	})

	first, err := importer.Attach(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	second, err := importer.Attach(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, "no new actions", second.Reason())

	inspection, err := store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	assert.Len(t, inspection.Triggers, 1)
}

func TestImporterZeroImportReasons(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	importer := NewImporter(store, logging.NewDefaultLogger())

	result, err := importer.Attach(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, "no active actions", result.Reason())

	seedAction(t, store, &models.Action{
		ID:         "act-nomatch",
		CompanyID:  "co-1",
		Name:       "Commercial follow-up",
		TriggerKey: models.KeyAfterInspection,
		IsActive:   true,
		Conditions: []models.Condition{{Type: models.ConditionServiceCategory, ServiceCategory: "commercial"}},
	})

	result, err = importer.Attach(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, "no matching actions", result.Reason())
}

func TestImporterSnapshotsAction(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	importer := NewImporter(store, logging.NewDefaultLogger())

	action := &models.Action{
		ID:         "act-1",
		CompanyID:  "co-1",
		Name:       "Scheduling confirmation",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
		Delivery:   models.DeliveryParams{Subject: "Your inspection is booked"},
	}
	seedAction(t, store, action)

	_, err := importer.Attach(ctx, "insp-1")
	require.NoError(t, err)

	// Edits to the template after import must not reach the trigger
	action.Delivery.Subject = "REVISED"
	require.NoError(t, store.UpdateAction(ctx, action))

	inspection, err := store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	require.Len(t, inspection.Triggers, 1)
	assert.Equal(t, "Your inspection is booked", inspection.Triggers[0].Delivery.Subject)
}

func TestImporterFailsClosedPerAction(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	importer := NewImporter(store, logging.NewDefaultLogger())

	seedAction(t, store, &models.Action{
		ID:         "act-broken",
		CompanyID:  "co-1",
		Name:       "Malformed",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
		Conditions: []models.Condition{{Type: "zipcode"}},
	})
	seedAction(t, store, &models.Action{
		ID:         "act-good",
		CompanyID:  "co-1",
		Name:       "Scheduling confirmation",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
	})

	result, err := importer.Attach(ctx, "insp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	inspection, err := store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	require.Len(t, inspection.Triggers, 1)
	assert.Equal(t, "act-good", inspection.Triggers[0].ActionID)
}

func TestImporterUnknownInspection(t *testing.T) {
	store := seedStore(t)
	importer := NewImporter(store, logging.NewDefaultLogger())

	_, err := importer.Attach(context.Background(), "insp-missing")
	assert.ErrorIs(t, err, ErrInspectionNotFound)
}

func TestImporterStampsEventOnMatchingKey(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	importer := NewImporter(store, logging.NewDefaultLogger())

	seedAction(t, store, &models.Action{
		ID:         "act-payment",
		CompanyID:  "co-1",
		Name:       "Payment receipt",
		TriggerKey: models.KeyPaymentCompleted,
		IsActive:   true,
	})
	seedAction(t, store, &models.Action{
		ID:         "act-report",
		CompanyID:  "co-1",
		Name:       "Report reminder",
		TriggerKey: models.KeyAfterInspection,
		IsActive:   true,
	})

	eventAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	result, err := importer.attach(ctx, "insp-1", models.KeyPaymentCompleted, eventAt)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	inspection, err := store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	for _, trigger := range inspection.Triggers {
		if trigger.ActionID == "act-payment" {
			require.NotNil(t, trigger.EventAt)
			assert.True(t, trigger.EventAt.Equal(eventAt))
		} else {
			assert.Nil(t, trigger.EventAt)
		}
	}
}
