package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
	"automation-engine/internal/storage/memory"
)

func newRegistry(t *testing.T) (*Registry, storage.Storage) {
	t.Helper()

	store := memory.NewAdapter()
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreateCompany(ctx, &models.Company{ID: "co-1", Name: "Acme", Timezone: "UTC"}))
	require.NoError(t, store.SaveService(ctx, &models.Service{
		ID: "svc-res", CompanyID: "co-1", Name: "Residential", Category: models.CategoryResidential,
		Addons: []models.Addon{{Name: "Radon Testing"}},
	}))
	require.NoError(t, store.SaveCategory(ctx, &models.Category{ID: "cat-vip", CompanyID: "co-1", Name: "VIP"}))

	return NewRegistry(store, logging.NewDefaultLogger()), store
}

func validAction() *models.Action {
	return &models.Action{
		CompanyID:  "co-1",
		Name:       "Scheduling confirmation",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
		Conditions: []models.Condition{{Type: models.ConditionService, ServiceID: "svc-res"}},
	}
}

func TestRegistryCreate(t *testing.T) {
	registry, store := newRegistry(t)
	ctx := context.Background()

	action := validAction()
	require.NoError(t, registry.Create(ctx, action))
	assert.NotEmpty(t, action.ID)
	assert.False(t, action.CreatedAt.IsZero())

	stored, err := store.GetAction(ctx, "co-1", action.ID)
	require.NoError(t, err)
	assert.Equal(t, action.Name, stored.Name)
}

func TestRegistryCreateResolvesOwnedReferences(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	action := validAction()
	action.CategoryID = "cat-vip"
	action.Conditions = []models.Condition{
		{Type: models.ConditionAddon, ServiceID: "svc-res", AddonName: "Radon Testing"},
	}
	assert.NoError(t, registry.Create(ctx, action))
}

func TestRegistryCreateValidation(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.Action)
	}{
		{"missing name", func(a *models.Action) { a.Name = "" }},
		{"missing company", func(a *models.Action) { a.CompanyID = "" }},
		{"unknown trigger key", func(a *models.Action) { a.TriggerKey = "ON_FIRE" }},
		{"dangling action category", func(a *models.Action) { a.CategoryID = "cat-gone" }},
		{"negative delay", func(a *models.Action) { a.Delivery.SendDelay = -1 }},
		{"delay without unit", func(a *models.Action) {
			a.Delivery.SendDelay = 2
			a.Delivery.SendDelayUnit = "fortnights"
		}},
		{"unknown send timing", func(a *models.Action) { a.Delivery.SendTiming = "eventually" }},
		{"window without clock bounds", func(a *models.Action) {
			a.Delivery.SendDuringCertainHoursOnly = true
			a.Delivery.StartTime = "9am"
		}},
		{"unknown condition type", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: "zipcode"}}
		}},
		{"service condition without id", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionService}}
		}},
		{"dangling service reference", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionService, ServiceID: "svc-gone"}}
		}},
		{"addon not offered by service", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionAddon, ServiceID: "svc-res", AddonName: "Sewer Scope"}}
		}},
		{"addon name is case sensitive", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionAddon, ServiceID: "svc-res", AddonName: "radon testing"}}
		}},
		{"dangling category reference", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionCategory, CategoryID: "cat-gone"}}
		}},
		{"unknown service category", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionServiceCategory, ServiceCategory: "boats"}}
		}},
		{"attribute without field", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionAttribute, Operator: models.OperatorEquals, Value: "x"}}
		}},
		{"attribute operator without value", func(a *models.Action) {
			a.Conditions = []models.Condition{{Type: models.ConditionAttribute, Operator: models.OperatorEquals, Field: "sqft"}}
		}},
		{"unknown condition logic", func(a *models.Action) {
			a.Conditions = append(a.Conditions, a.Conditions[0])
			a.ConditionLogic = "XOR"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := validAction()
			tt.mutate(action)
			err := registry.Create(ctx, action)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
		})
	}
}

func TestRegistryValidationReportsConditionIndex(t *testing.T) {
	registry, _ := newRegistry(t)

	action := validAction()
	action.Conditions = append(action.Conditions, models.Condition{Type: models.ConditionService, ServiceID: "svc-gone"})

	err := registry.Create(context.Background(), action)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 1, appErr.Context["condition_index"])
}

func TestRegistryLogicNormalization(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	t.Run("defaulted for multi-condition lists", func(t *testing.T) {
		action := validAction()
		action.Conditions = append(action.Conditions, models.Condition{Type: models.ConditionCategory, CategoryID: "cat-vip"})
		action.ConditionLogic = ""
		require.NoError(t, registry.Create(ctx, action))
		assert.Equal(t, models.LogicAnd, action.ConditionLogic)
	})

	t.Run("cleared for single-condition lists", func(t *testing.T) {
		action := validAction()
		action.ConditionLogic = models.LogicOr
		require.NoError(t, registry.Create(ctx, action))
		assert.Equal(t, models.ConditionLogic(""), action.ConditionLogic)
	})
}

func TestRegistryUpdate(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	action := validAction()
	require.NoError(t, registry.Create(ctx, action))
	created := action.CreatedAt

	action.Name = "Renamed"
	require.NoError(t, registry.Update(ctx, action))
	assert.Equal(t, created, action.CreatedAt)

	stored, err := registry.Get(ctx, "co-1", action.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
}

func TestRegistryUpdateMissing(t *testing.T) {
	registry, _ := newRegistry(t)

	action := validAction()
	action.ID = "act-gone"
	err := registry.Update(context.Background(), action)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestRegistryDelete(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	action := validAction()
	require.NoError(t, registry.Create(ctx, action))
	require.NoError(t, registry.Delete(ctx, "co-1", action.ID))

	_, err := registry.Get(ctx, "co-1", action.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	err = registry.Delete(ctx, "co-1", action.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestRegistryCompanyScoping(t *testing.T) {
	registry, store := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCompany(ctx, &models.Company{ID: "co-2", Name: "Other", Timezone: "UTC"}))

	action := validAction()
	require.NoError(t, registry.Create(ctx, action))

	_, err := registry.Get(ctx, "co-2", action.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	// A service reference never resolves across companies
	other := &models.Action{
		CompanyID:  "co-2",
		Name:       "Cross-tenant",
		TriggerKey: models.KeyInspectionScheduled,
		Conditions: []models.Condition{{Type: models.ConditionService, ServiceID: "svc-res"}},
	}
	err = registry.Create(ctx, other)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}
